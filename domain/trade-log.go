package domain

import (
	"fmt"
	"time"
)

// TradeLog is a trade record sent by the dashboard for persistence.
type TradeLog struct {
	ID        int64
	Symbol    string
	Side      string // "buy" or "sell"
	Price     float64
	Qty       float64
	Pnl       float64
	Note      string
	CreatedAt time.Time
}

func (t *TradeLog) Validate() error {
	if t.Symbol == "" {
		return fmt.Errorf("trade log: symbol is required")
	}
	if t.Side != "buy" && t.Side != "sell" {
		return fmt.Errorf("trade log: side must be buy or sell, got %q", t.Side)
	}
	if t.Qty <= 0 {
		return fmt.Errorf("trade log: quantity must be positive")
	}
	if t.Price <= 0 {
		return fmt.Errorf("trade log: price must be positive")
	}
	return nil
}
