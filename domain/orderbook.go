package domain

import (
	"sort"
	"sync"
	"time"
)

// BookSnapshot is a full order-book snapshot as returned by the REST depth
// endpoint: two price ladders as decimal-string pairs plus the sequence id
// the snapshot is consistent with.
type BookSnapshot struct {
	LastUpdateID int64      `json:"lastUpdateId"`
	Bids         [][]string `json:"bids"`
	Asks         [][]string `json:"asks"`
}

// BookProjection is the bounded, sorted, read-only view of an order book,
// recomputed on each publish and never mutated in place.
type BookProjection struct {
	Symbol       *MarketSymbol
	LastUpdateID int64
	Bids         []PriceLevel // sorted descending by price
	Asks         []PriceLevel // sorted ascending by price
}

// OrderBook is the per-symbol mutable state: sparse price->quantity maps for
// both sides keyed off the last applied sequence id. A quantity of zero is a
// tombstone and removes the level; zero is never stored. Mutation is owned by
// a single maintainer; everything else reads projections.
type OrderBook struct {
	Symbol *MarketSymbol

	mu             sync.Mutex
	bids           map[float64]float64
	asks           map[float64]float64
	lastUpdateID   int64
	lastUpdateTime int64
	dirty          bool
}

func NewOrderBook(symbol *MarketSymbol) *OrderBook {
	return &OrderBook{
		Symbol: symbol,
		bids:   make(map[float64]float64),
		asks:   make(map[float64]float64),
	}
}

// ApplySnapshot resets the book to the snapshot's ladders and sequence id.
// Used both on cold start and on resync after a detected gap.
func (ob *OrderBook) ApplySnapshot(snapshot *BookSnapshot) error {
	bids, err := ParsePriceLevels(snapshot.Bids)
	if err != nil {
		return err
	}
	asks, err := ParsePriceLevels(snapshot.Asks)
	if err != nil {
		return err
	}

	ob.mu.Lock()
	defer ob.mu.Unlock()

	ob.bids = make(map[float64]float64, len(bids))
	ob.asks = make(map[float64]float64, len(asks))
	for _, l := range bids {
		if l.Qty > 0 {
			ob.bids[l.Price] = l.Qty
		}
	}
	for _, l := range asks {
		if l.Qty > 0 {
			ob.asks[l.Price] = l.Qty
		}
	}

	ob.lastUpdateID = snapshot.LastUpdateID
	ob.lastUpdateTime = time.Now().UnixMilli()
	ob.dirty = true
	return nil
}

// ApplyUpdate overlays one depth diff onto the book and advances the
// sequence id. Stale events (FinalUpdateID <= lastUpdateID) are a no-op and
// return false.
func (ob *OrderBook) ApplyUpdate(update *DepthUpdate) bool {
	ob.mu.Lock()
	defer ob.mu.Unlock()

	if update.FinalUpdateID <= ob.lastUpdateID {
		return false
	}

	overlay(ob.bids, update.Bids)
	overlay(ob.asks, update.Asks)

	ob.lastUpdateID = update.FinalUpdateID
	ob.lastUpdateTime = update.EventTime
	ob.dirty = true
	return true
}

// Non-positive quantities are tombstones; the side maps only ever hold
// strictly positive sizes.
func overlay(side map[float64]float64, changes []PriceLevel) {
	for _, l := range changes {
		if l.Qty <= 0 {
			delete(side, l.Price)
		} else {
			side[l.Price] = l.Qty
		}
	}
}

func (ob *OrderBook) LastUpdateID() int64 {
	ob.mu.Lock()
	defer ob.mu.Unlock()
	return ob.lastUpdateID
}

func (ob *OrderBook) LastUpdateTime() int64 {
	ob.mu.Lock()
	defer ob.mu.Unlock()
	return ob.lastUpdateTime
}

// ConsumeDirty reports whether the book changed since the last call and
// clears the flag. The projector uses it to skip redundant publishes.
func (ob *OrderBook) ConsumeDirty() bool {
	ob.mu.Lock()
	defer ob.mu.Unlock()
	d := ob.dirty
	ob.dirty = false
	return d
}

// Projection collects both sides, drops non-positive quantities defensively,
// sorts (bids descending, asks ascending) and truncates to depth.
func (ob *OrderBook) Projection(depth int) *BookProjection {
	ob.mu.Lock()
	bids := collect(ob.bids)
	asks := collect(ob.asks)
	lastID := ob.lastUpdateID
	ob.mu.Unlock()

	sort.Slice(bids, func(i, j int) bool { return bids[i].Price > bids[j].Price })
	sort.Slice(asks, func(i, j int) bool { return asks[i].Price < asks[j].Price })

	return &BookProjection{
		Symbol:       ob.Symbol,
		LastUpdateID: lastID,
		Bids:         limitDepth(bids, depth),
		Asks:         limitDepth(asks, depth),
	}
}

func collect(side map[float64]float64) []PriceLevel {
	levels := make([]PriceLevel, 0, len(side))
	for price, qty := range side {
		if qty <= 0 {
			continue
		}
		levels = append(levels, PriceLevel{Price: price, Qty: qty})
	}
	return levels
}

func limitDepth(levels []PriceLevel, limit int) []PriceLevel {
	if limit > 0 && len(levels) > limit {
		return levels[:limit]
	}
	return levels
}
