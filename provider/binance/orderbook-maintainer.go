package binance

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gammazero/deque"
	"github.com/jpillora/backoff"

	"github.com/milkmamado/biscal-sub002/config"
	"github.com/milkmamado/biscal-sub002/domain"
	promclient "github.com/milkmamado/biscal-sub002/infrastructure/prometheus"
)

type maintainerState string

const (
	stateUninitialized maintainerState = "uninitialized"
	stateBuffering     maintainerState = "buffering"
	stateSynced        maintainerState = "synced"
)

type MaintainerConfig struct {
	SnapshotDepth     int
	BufferCap         int
	LargeGapThreshold int64
	ResyncCooldown    time.Duration
	SnapshotRetryMin  time.Duration
	SnapshotRetryMax  time.Duration
}

func (cfg MaintainerConfig) withDefaults() MaintainerConfig {
	if cfg.SnapshotDepth == 0 {
		cfg.SnapshotDepth = 1000
	}
	if cfg.BufferCap == 0 {
		cfg.BufferCap = 100
	}
	if cfg.LargeGapThreshold == 0 {
		cfg.LargeGapThreshold = 1000
	}
	if cfg.ResyncCooldown == 0 {
		cfg.ResyncCooldown = 5 * time.Second
	}
	if cfg.SnapshotRetryMin == 0 {
		cfg.SnapshotRetryMin = 500 * time.Millisecond
	}
	if cfg.SnapshotRetryMax == 0 {
		cfg.SnapshotRetryMax = 10 * time.Second
	}
	return cfg
}

// OrderbookMaintainer reconciles one symbol's local order book against the
// depth-diff stream.
//
// Lifecycle: buffering (events queued, snapshot fetch in flight) -> synced
// (diffs applied live) -> back to buffering when a sequence gap beyond the
// threshold is detected. Snapshot installation filters the buffer to events
// past the snapshot id, replays them in ascending order and clears the queue.
type OrderbookMaintainer struct {
	cfg       MaintainerConfig
	syncAPI   domain.SnapshotAPI
	streamAPI domain.DepthStreamAPI

	book *domain.OrderBook
	sub  *domain.Subscription[*domain.DepthUpdate]

	mu               sync.Mutex
	state            maintainerState
	buffer           deque.Deque[*domain.DepthUpdate]
	snapshotInFlight bool
	lastResync       time.Time

	latencyMs int64

	ctx      context.Context
	cancel   context.CancelFunc
	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func NewOrderBookMaintainer(
	syncAPI domain.SnapshotAPI,
	streamAPI domain.DepthStreamAPI,
	cfg MaintainerConfig,
) *OrderbookMaintainer {
	ctx, cancel := context.WithCancel(context.Background())

	return &OrderbookMaintainer{
		cfg:       cfg.withDefaults(),
		syncAPI:   syncAPI,
		streamAPI: streamAPI,

		state:  stateUninitialized,
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
}

// Start subscribes to the symbol's depth stream and kicks off the initial
// snapshot fetch. Events arriving before the snapshot lands are buffered.
func (m *OrderbookMaintainer) Start(symbol *domain.MarketSymbol) error {
	m.book = domain.NewOrderBook(symbol)

	sub, err := m.streamAPI.DepthDiffStream(symbol)
	if err != nil {
		return fmt.Errorf("subscribe depth stream for %s: %w", symbol, err)
	}
	m.sub = sub

	m.mu.Lock()
	m.state = stateBuffering
	m.requestSnapshotLocked()
	m.mu.Unlock()

	promclient.OpenOrderBookGauge.Inc()
	if config.DebugMode {
		logger.Printf("maintainer started for %s", symbol)
	}

	m.wg.Add(1)
	go m.readLoop()
	return nil
}

// Stop tears the maintainer down: cancels any in-flight snapshot fetch,
// unsubscribes from the stream and waits for worker goroutines.
func (m *OrderbookMaintainer) Stop() {
	m.stopOnce.Do(func() {
		close(m.done)
		m.cancel()
		if m.sub != nil {
			m.sub.Unsubscribe()
		}
		promclient.OpenOrderBookGauge.Dec()
		m.wg.Wait()
	})
}

func (m *OrderbookMaintainer) Book() *domain.OrderBook {
	return m.book
}

func (m *OrderbookMaintainer) Synced() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state == stateSynced
}

// LatencyMs is the difference between the local clock and the last event's
// embedded exchange timestamp.
func (m *OrderbookMaintainer) LatencyMs() int64 {
	return atomic.LoadInt64(&m.latencyMs)
}

func (m *OrderbookMaintainer) readLoop() {
	defer m.wg.Done()

	for {
		select {
		case <-m.done:
			return
		case update, ok := <-m.sub.Stream:
			if !ok {
				return
			}
			m.handleUpdate(update)
		}
	}
}

func (m *OrderbookMaintainer) handleUpdate(update *domain.DepthUpdate) {
	if update.EventTime > 0 {
		atomic.StoreInt64(&m.latencyMs, time.Now().UnixMilli()-update.EventTime)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	switch m.state {
	case stateSynced:
		m.applyLiveLocked(update)
	default:
		m.bufferLocked(update)
		m.requestSnapshotLocked()
	}
}

// bufferLocked appends to the bounded queue, evicting the oldest entries on
// overflow. A dropped prefix is harmless: the snapshot replay filter discards
// anything at or below the snapshot id anyway.
func (m *OrderbookMaintainer) bufferLocked(update *domain.DepthUpdate) {
	for m.buffer.Len() >= m.cfg.BufferCap {
		m.buffer.PopFront()
	}
	m.buffer.PushBack(update)
}

func (m *OrderbookMaintainer) applyLiveLocked(update *domain.DepthUpdate) {
	lastID := m.book.LastUpdateID()

	if update.FinalUpdateID <= lastID {
		promclient.DepthUpdatesDroppedStale.Inc()
		return
	}

	gap := update.PrevFinalUpdateID - lastID
	if gap < 0 {
		gap = -gap
	}

	if gap == 0 {
		if m.book.ApplyUpdate(update) {
			promclient.DepthUpdatesApplied.Inc()
		}
		return
	}

	if gap <= m.cfg.LargeGapThreshold {
		// Small drift: apply anyway and let the next snapshot cycle heal
		// the book. Availability over strict consistency.
		promclient.DepthUpdatesOutOfSequence.Inc()
		if m.book.ApplyUpdate(update) {
			promclient.DepthUpdatesApplied.Inc()
		}
		return
	}

	// Gap beyond the threshold: the book missed events and must resync.
	// Within the cooldown window the event is dropped, not buffered, to
	// bound memory during sustained packet loss.
	if time.Since(m.lastResync) < m.cfg.ResyncCooldown {
		return
	}

	logger.Printf("sequence gap of %d on %s, resyncing from snapshot", gap, m.book.Symbol)
	m.lastResync = time.Now()
	m.state = stateBuffering
	m.bufferLocked(update)
	promclient.OrderBookResyncs.Inc()
	m.requestSnapshotLocked()
}

func (m *OrderbookMaintainer) requestSnapshotLocked() {
	if m.snapshotInFlight {
		return
	}
	m.snapshotInFlight = true

	m.wg.Add(1)
	go m.fetchAndInstall()
}

// fetchAndInstall retries the snapshot fetch with jittered exponential
// backoff until it succeeds or the maintainer stops. The buffer keeps
// accumulating (capped) while retries proceed.
func (m *OrderbookMaintainer) fetchAndInstall() {
	defer m.wg.Done()

	bo := &backoff.Backoff{
		Min:    m.cfg.SnapshotRetryMin,
		Max:    m.cfg.SnapshotRetryMax,
		Factor: 2,
		Jitter: true,
	}

	for {
		snapshot, err := m.syncAPI.OrderBookSnapshot(m.ctx, m.book.Symbol, m.cfg.SnapshotDepth)
		if err == nil {
			if err = m.installSnapshot(snapshot); err == nil {
				return
			}
		}

		if m.ctx.Err() != nil {
			m.clearInFlight()
			return
		}

		promclient.SnapshotFailures.Inc()
		logger.Printf("snapshot fetch for %s: %s", m.book.Symbol, err)

		select {
		case <-m.done:
			m.clearInFlight()
			return
		case <-time.After(bo.Duration()):
		}
	}
}

// installSnapshot resets the book from the snapshot, replays buffered events
// whose final id lies beyond it in ascending first-id order, clears the
// buffer and flips the maintainer to synced.
func (m *OrderbookMaintainer) installSnapshot(snapshot *domain.BookSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.book.ApplySnapshot(snapshot); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrSnapshotUnavailable, err)
	}

	pending := make([]*domain.DepthUpdate, 0, m.buffer.Len())
	for m.buffer.Len() > 0 {
		update := m.buffer.PopFront()
		if update.FinalUpdateID > snapshot.LastUpdateID {
			pending = append(pending, update)
		}
	}
	sort.Slice(pending, func(i, j int) bool {
		return pending[i].FirstUpdateID < pending[j].FirstUpdateID
	})

	for _, update := range pending {
		// No replay across a hole: the event must chain onto what is
		// already applied.
		if update.FirstUpdateID <= m.book.LastUpdateID()+1 {
			if m.book.ApplyUpdate(update) {
				promclient.DepthUpdatesApplied.Inc()
			}
		}
	}

	m.state = stateSynced
	m.snapshotInFlight = false

	if config.DebugMode {
		logger.Printf("snapshot %d installed for %s, %d buffered events replayed",
			snapshot.LastUpdateID, m.book.Symbol, len(pending))
	}
	return nil
}

func (m *OrderbookMaintainer) clearInFlight() {
	m.mu.Lock()
	m.snapshotInFlight = false
	m.mu.Unlock()
}
