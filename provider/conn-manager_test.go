package provider

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/milkmamado/biscal-sub002/config"
	"github.com/milkmamado/biscal-sub002/domain"
)

type fakeSnapshotAPI struct{}

func (f *fakeSnapshotAPI) OrderBookSnapshot(ctx context.Context, symbol *domain.MarketSymbol, limit int) (*domain.BookSnapshot, error) {
	return &domain.BookSnapshot{
		LastUpdateID: 1000,
		Bids:         [][]string{{"100", "5"}},
		Asks:         [][]string{{"101", "2"}},
	}, nil
}

type fakeDepthStream struct {
	unsubscribes int32
}

func (f *fakeDepthStream) DepthDiffStream(symbol *domain.MarketSymbol) (*domain.Subscription[*domain.DepthUpdate], error) {
	return &domain.Subscription[*domain.DepthUpdate]{
		Stream:      make(chan *domain.DepthUpdate),
		Unsubscribe: func() { atomic.AddInt32(&f.unsubscribes, 1) },
		Topic:       symbol.Join("") + "@depth",
	}, nil
}

func (f *fakeDepthStream) Connected() bool { return true }

func testConfig() *config.Config {
	return &config.Config{
		ReleaseGrace:     30 * time.Millisecond,
		SnapshotRetryMin: time.Millisecond,
		SnapshotRetryMax: 5 * time.Millisecond,
	}
}

func TestConnManager_AcquireSharesHandle(t *testing.T) {
	stream := &fakeDepthStream{}
	cm := newConnManagerWithAPIs(testConfig(), &fakeSnapshotAPI{}, stream)
	defer cm.Close()

	symbol, _ := domain.NewMarketSymbol("btc", "usdt")

	first, err := cm.Acquire(symbol)
	assert.NoError(t, err)
	second, err := cm.Acquire(symbol)
	assert.NoError(t, err)

	assert.Same(t, first, second, "both consumers should share one handle")
	assert.Equal(t, 1, cm.OpenBookCount())
}

func TestConnManager_TeardownAfterGracePeriod(t *testing.T) {
	stream := &fakeDepthStream{}
	cm := newConnManagerWithAPIs(testConfig(), &fakeSnapshotAPI{}, stream)
	defer cm.Close()

	symbol, _ := domain.NewMarketSymbol("btc", "usdt")

	_, err := cm.Acquire(symbol)
	assert.NoError(t, err)
	_, err = cm.Acquire(symbol)
	assert.NoError(t, err)

	cm.Release(symbol)
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, 1, cm.OpenBookCount(), "the book must survive while a reference remains")

	cm.Release(symbol)
	assert.Equal(t, 1, cm.OpenBookCount(), "teardown is deferred by the grace period")

	assert.Eventually(t, func() bool { return cm.OpenBookCount() == 0 },
		time.Second, 5*time.Millisecond)
	assert.Eventually(t, func() bool { return atomic.LoadInt32(&stream.unsubscribes) == 1 },
		time.Second, 5*time.Millisecond, "the maintainer should have been stopped")
}

func TestConnManager_ReacquireWithinGraceCancelsTeardown(t *testing.T) {
	stream := &fakeDepthStream{}
	cm := newConnManagerWithAPIs(testConfig(), &fakeSnapshotAPI{}, stream)
	defer cm.Close()

	symbol, _ := domain.NewMarketSymbol("btc", "usdt")

	first, err := cm.Acquire(symbol)
	assert.NoError(t, err)
	cm.Release(symbol)

	second, err := cm.Acquire(symbol)
	assert.NoError(t, err)
	assert.Same(t, first, second, "a re-acquire within the grace window keeps the same book")

	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, 1, cm.OpenBookCount())
	assert.Equal(t, int32(0), atomic.LoadInt32(&stream.unsubscribes))
}

func TestConnManager_ReleaseUnknownSymbolIsNoOp(t *testing.T) {
	cm := newConnManagerWithAPIs(testConfig(), &fakeSnapshotAPI{}, &fakeDepthStream{})
	defer cm.Close()

	symbol, _ := domain.NewMarketSymbol("eth", "usdt")
	cm.Release(symbol)

	assert.Equal(t, 0, cm.OpenBookCount())
}

func TestConnManager_CloseStopsAllBooks(t *testing.T) {
	stream := &fakeDepthStream{}
	cm := newConnManagerWithAPIs(testConfig(), &fakeSnapshotAPI{}, stream)

	btc, _ := domain.NewMarketSymbol("btc", "usdt")
	eth, _ := domain.NewMarketSymbol("eth", "usdt")
	_, err := cm.Acquire(btc)
	assert.NoError(t, err)
	_, err = cm.Acquire(eth)
	assert.NoError(t, err)

	cm.Close()

	assert.Equal(t, 0, cm.OpenBookCount())
	assert.Equal(t, int32(2), atomic.LoadInt32(&stream.unsubscribes))
}
