package domain

import "context"

// SnapshotAPI fetches a full depth snapshot from the exchange REST endpoint.
// Implementations coalesce concurrent requests for the same symbol.
type SnapshotAPI interface {
	OrderBookSnapshot(ctx context.Context, symbol *MarketSymbol, limit int) (*BookSnapshot, error)
}

// DepthStreamAPI exposes the exchange's incremental depth-diff stream.
type DepthStreamAPI interface {
	DepthDiffStream(symbol *MarketSymbol) (*Subscription[*DepthUpdate], error)
	Connected() bool
}

// BookMaintainer is the handle the connection manager keeps per symbol.
type BookMaintainer interface {
	Synced() bool
	LatencyMs() int64
	Stop()
}
