package usecase

import (
	"sync"
	"time"

	"github.com/milkmamado/biscal-sub002/domain"
	"github.com/milkmamado/biscal-sub002/provider"
)

// BookSource is the connection manager surface the use case needs.
type BookSource interface {
	Acquire(symbol *domain.MarketSymbol) (*provider.BookHandle, error)
	Release(symbol *domain.MarketSymbol)
	Connected() bool
}

// OrderBookStreamUseCase exposes per-symbol live book feeds. One projector
// goroutine per symbol renders on a fixed interval, decoupling the publish
// cadence from the network update rate, and only when the book changed since
// the last tick.
type OrderBookStreamUseCase struct {
	source         BookSource
	renderInterval time.Duration

	mu         sync.Mutex
	projectors map[string]*projector
}

func NewOrderBookStreamUseCase(source BookSource, renderInterval time.Duration) *OrderBookStreamUseCase {
	if renderInterval <= 0 {
		renderInterval = 150 * time.Millisecond
	}
	return &OrderBookStreamUseCase{
		source:         source,
		renderInterval: renderInterval,
		projectors:     make(map[string]*projector),
	}
}

// Subscribe returns a live feed of projections for the symbol. Rapid bursts
// of updates coalesce into at most one feed per render tick. Unsubscribing
// the last consumer releases the underlying book handle.
func (uc *OrderBookStreamUseCase) Subscribe(symbol *domain.MarketSymbol, depth int) (*domain.Subscription[domain.BookFeed], error) {
	key := symbol.String()

	uc.mu.Lock()
	p, ok := uc.projectors[key]
	if !ok {
		handle, err := uc.source.Acquire(symbol)
		if err != nil {
			uc.mu.Unlock()
			return nil, err
		}

		p = newProjector(uc, handle, depth)
		uc.projectors[key] = p
		go p.run(uc.renderInterval)
	}

	// Registration happens under the same lock that guards projector
	// teardown: a concurrent last-unsubscribe either sees this subscriber
	// or this call sees the projector already gone from the map.
	id, ch := p.addSubscriber()
	uc.mu.Unlock()

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			if p.removeSubscriber(id) > 0 {
				return
			}

			uc.mu.Lock()
			if uc.projectors[key] == p && p.subscriberCount() == 0 {
				delete(uc.projectors, key)
				close(p.done)
				uc.source.Release(symbol)
			}
			uc.mu.Unlock()
		})
	}

	return &domain.Subscription[domain.BookFeed]{
		Stream:      ch,
		Unsubscribe: unsubscribe,
		Topic:       key,
	}, nil
}

// Snapshot returns the current projection without subscribing. The book may
// still be syncing, in which case the projection is empty.
func (uc *OrderBookStreamUseCase) Snapshot(symbol *domain.MarketSymbol, depth int) (*domain.BookProjection, error) {
	key := symbol.String()

	uc.mu.Lock()
	if p, ok := uc.projectors[key]; ok {
		uc.mu.Unlock()
		return p.handle.Book.Projection(depth), nil
	}
	uc.mu.Unlock()

	handle, err := uc.source.Acquire(symbol)
	if err != nil {
		return nil, err
	}
	defer uc.source.Release(symbol)

	return handle.Book.Projection(depth), nil
}

type projector struct {
	uc     *OrderBookStreamUseCase
	handle *provider.BookHandle
	depth  int
	done   chan struct{}

	mu            sync.Mutex
	subs          map[int64]chan domain.BookFeed
	nextSubID     int64
	lastConnected bool
}

func newProjector(uc *OrderBookStreamUseCase, handle *provider.BookHandle, depth int) *projector {
	return &projector{
		uc:     uc,
		handle: handle,
		depth:  depth,
		done:   make(chan struct{}),
		subs:   make(map[int64]chan domain.BookFeed),
	}
}

func (p *projector) addSubscriber() (int64, chan domain.BookFeed) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.nextSubID++
	id := p.nextSubID
	ch := make(chan domain.BookFeed, 1)
	p.subs[id] = ch
	return id, ch
}

func (p *projector) removeSubscriber(id int64) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	if ch, ok := p.subs[id]; ok {
		close(ch)
		delete(p.subs, id)
	}
	return len(p.subs)
}

func (p *projector) subscriberCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.subs)
}

func (p *projector) run(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-p.done:
			return
		case <-ticker.C:
			p.renderTick()
		}
	}
}

// renderTick publishes a fresh projection when the book mutated since the
// last tick, or when connectivity flipped. A book mutation always completes
// before the dirty flag is visible, so a published projection never exposes
// a half-applied event.
func (p *projector) renderTick() {
	connected := p.uc.source.Connected() && p.handle.Maintainer.Synced()

	p.mu.Lock()
	connectivityChanged := connected != p.lastConnected
	p.lastConnected = connected
	p.mu.Unlock()

	if !p.handle.Book.ConsumeDirty() && !connectivityChanged {
		return
	}

	feed := domain.BookFeed{
		Projection: p.handle.Book.Projection(p.depth),
		Connected:  connected,
		LatencyMs:  p.handle.Maintainer.LatencyMs(),
	}

	p.mu.Lock()
	for _, ch := range p.subs {
		// Latest wins: a slow consumer gets the newest feed, not a backlog.
		select {
		case ch <- feed:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- feed:
			default:
			}
		}
	}
	p.mu.Unlock()
}
