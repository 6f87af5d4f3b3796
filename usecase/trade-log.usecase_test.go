package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/milkmamado/biscal-sub002/domain"
)

type fakeTradeLogStore struct {
	inserted []domain.TradeLog
	batches  int
}

func (f *fakeTradeLogStore) Insert(ctx context.Context, entry *domain.TradeLog) error {
	f.inserted = append(f.inserted, *entry)
	return nil
}

func (f *fakeTradeLogStore) InsertBatch(ctx context.Context, logs []domain.TradeLog) error {
	f.batches++
	f.inserted = append(f.inserted, logs...)
	return nil
}

func (f *fakeTradeLogStore) ListRecent(ctx context.Context, limit int) ([]domain.TradeLog, error) {
	if limit > len(f.inserted) {
		limit = len(f.inserted)
	}
	return f.inserted[:limit], nil
}

func validTrade() *domain.TradeLog {
	return &domain.TradeLog{
		Symbol: "btc_usdt",
		Side:   "buy",
		Price:  42000,
		Qty:    0.5,
	}
}

func TestTradeLogRecord(t *testing.T) {
	store := &fakeTradeLogStore{}
	uc := NewTradeLogUseCase(store)

	err := uc.Record(context.Background(), validTrade())

	assert.NoError(t, err)
	if assert.Len(t, store.inserted, 1) {
		assert.False(t, store.inserted[0].CreatedAt.IsZero(), "a missing timestamp gets defaulted")
	}
}

func TestTradeLogRecord_KeepsExplicitTimestamp(t *testing.T) {
	store := &fakeTradeLogStore{}
	uc := NewTradeLogUseCase(store)

	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	trade := validTrade()
	trade.CreatedAt = at

	assert.NoError(t, uc.Record(context.Background(), trade))
	assert.Equal(t, at, store.inserted[0].CreatedAt)
}

func TestTradeLogRecord_RejectsInvalid(t *testing.T) {
	store := &fakeTradeLogStore{}
	uc := NewTradeLogUseCase(store)

	bad := validTrade()
	bad.Side = "hold"
	assert.Error(t, uc.Record(context.Background(), bad))

	bad = validTrade()
	bad.Qty = 0
	assert.Error(t, uc.Record(context.Background(), bad))

	bad = validTrade()
	bad.Price = -1
	assert.Error(t, uc.Record(context.Background(), bad))

	assert.Empty(t, store.inserted, "invalid trades must never reach the store")
}

func TestTradeLogRecordBatch(t *testing.T) {
	store := &fakeTradeLogStore{}
	uc := NewTradeLogUseCase(store)

	logs := []domain.TradeLog{*validTrade(), *validTrade()}
	assert.NoError(t, uc.RecordBatch(context.Background(), logs))

	assert.Equal(t, 1, store.batches, "the whole set goes in one round trip")
	if assert.Len(t, store.inserted, 2) {
		for _, entry := range store.inserted {
			assert.False(t, entry.CreatedAt.IsZero())
		}
	}
}

func TestTradeLogRecordBatch_RejectsWholeBatchOnInvalidEntry(t *testing.T) {
	store := &fakeTradeLogStore{}
	uc := NewTradeLogUseCase(store)

	bad := *validTrade()
	bad.Side = "hold"
	err := uc.RecordBatch(context.Background(), []domain.TradeLog{*validTrade(), bad})

	assert.Error(t, err)
	assert.Empty(t, store.inserted)
	assert.Zero(t, store.batches)
}

func TestTradeLogRecordBatch_EmptyIsNoOp(t *testing.T) {
	store := &fakeTradeLogStore{}
	uc := NewTradeLogUseCase(store)

	assert.NoError(t, uc.RecordBatch(context.Background(), nil))
	assert.Zero(t, store.batches)
}

func TestTradeLogRecent_ClampsLimit(t *testing.T) {
	store := &fakeTradeLogStore{}
	uc := NewTradeLogUseCase(store)

	for i := 0; i < 3; i++ {
		assert.NoError(t, uc.Record(context.Background(), validTrade()))
	}

	entries, err := uc.Recent(context.Background(), 0)
	assert.NoError(t, err)
	assert.NotEmpty(t, entries, "a non-positive limit falls back to a default page size")

	entries, err = uc.Recent(context.Background(), 2)
	assert.NoError(t, err)
	assert.Len(t, entries, 2)
}
