package domain

// Subscription is a live stream of T with a teardown handle.
type Subscription[T any] struct {
	Stream      chan T
	Unsubscribe func()
	Topic       string
}

// BookFeed is what order-book consumers receive on each render tick:
// the current projection plus transport health. Connected stays the only
// caller-visible failure signal; adverse network conditions never surface
// as errors on the stream.
type BookFeed struct {
	Projection *BookProjection
	Connected  bool
	LatencyMs  int64
}
