package domain

import (
	"fmt"
	"strconv"
)

// PriceLevel is a single (price, quantity) pair of one book side.
type PriceLevel struct {
	Price float64
	Qty   float64
}

// DepthUpdate is one incremental depth-diff event from the exchange stream.
// It covers the half-open sequence range [FirstUpdateID, FinalUpdateID];
// PrevFinalUpdateID is the FinalUpdateID advertised by the prior event and
// is used for gap detection. A level with Qty == 0 removes the price.
// Updates are transient: they live in the maintainer's buffer at most.
type DepthUpdate struct {
	Symbol            *MarketSymbol
	EventTime         int64 // exchange timestamp, unix ms
	FirstUpdateID     int64
	FinalUpdateID     int64
	PrevFinalUpdateID int64
	Bids              []PriceLevel
	Asks              []PriceLevel
}

func NewDepthUpdate(
	symbol *MarketSymbol,
	eventTime, firstID, finalID, prevFinalID int64,
	bids, asks []PriceLevel,
) *DepthUpdate {
	return &DepthUpdate{
		Symbol:            symbol,
		EventTime:         eventTime,
		FirstUpdateID:     firstID,
		FinalUpdateID:     finalID,
		PrevFinalUpdateID: prevFinalID,
		Bids:              bids,
		Asks:              asks,
	}
}

// ParsePriceLevels converts the exchange's [price, qty] decimal-string pairs.
// Returns an error instead of panicking so malformed frames can be dropped.
func ParsePriceLevels(depth [][]string) ([]PriceLevel, error) {
	result := make([]PriceLevel, len(depth))
	for i, level := range depth {
		if len(level) < 2 {
			return nil, fmt.Errorf("price level %d has %d fields", i, len(level))
		}
		price, err := strconv.ParseFloat(level[0], 64)
		if err != nil {
			return nil, fmt.Errorf("price %q: %w", level[0], err)
		}
		qty, err := strconv.ParseFloat(level[1], 64)
		if err != nil {
			return nil, fmt.Errorf("quantity %q: %w", level[1], err)
		}
		result[i] = PriceLevel{Price: price, Qty: qty}
	}
	return result, nil
}

// SerializePriceLevels renders levels back to [price, qty] string pairs for
// the gateway wire format.
func SerializePriceLevels(levels []PriceLevel) [][]string {
	result := make([][]string, len(levels))
	for i, l := range levels {
		result[i] = []string{
			strconv.FormatFloat(l.Price, 'f', -1, 64),
			strconv.FormatFloat(l.Qty, 'f', -1, 64),
		}
	}
	return result
}
