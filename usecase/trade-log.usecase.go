package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/milkmamado/biscal-sub002/domain"
)

const maxTradeLogPage = 500

// TradeLogStore persists dashboard trade records.
type TradeLogStore interface {
	Insert(ctx context.Context, t *domain.TradeLog) error
	InsertBatch(ctx context.Context, logs []domain.TradeLog) error
	ListRecent(ctx context.Context, limit int) ([]domain.TradeLog, error)
}

type TradeLogUseCase struct {
	store TradeLogStore
}

func NewTradeLogUseCase(store TradeLogStore) *TradeLogUseCase {
	return &TradeLogUseCase{store: store}
}

func (uc *TradeLogUseCase) Record(ctx context.Context, t *domain.TradeLog) error {
	if err := t.Validate(); err != nil {
		return err
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	return uc.store.Insert(ctx, t)
}

// RecordBatch validates and persists several trades in one round trip.
// The batch is all-or-nothing: a single invalid entry rejects the whole set.
func (uc *TradeLogUseCase) RecordBatch(ctx context.Context, logs []domain.TradeLog) error {
	if len(logs) == 0 {
		return nil
	}
	for i := range logs {
		if err := logs[i].Validate(); err != nil {
			return fmt.Errorf("entry %d: %w", i, err)
		}
		if logs[i].CreatedAt.IsZero() {
			logs[i].CreatedAt = time.Now().UTC()
		}
	}
	return uc.store.InsertBatch(ctx, logs)
}

func (uc *TradeLogUseCase) Recent(ctx context.Context, limit int) ([]domain.TradeLog, error) {
	if limit <= 0 || limit > maxTradeLogPage {
		limit = 100
	}
	return uc.store.ListRecent(ctx, limit)
}
