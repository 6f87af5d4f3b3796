package provider

import (
	"log"
	"os"
	"sync"
	"time"

	"github.com/milkmamado/biscal-sub002/config"
	"github.com/milkmamado/biscal-sub002/domain"
	"github.com/milkmamado/biscal-sub002/provider/binance"
)

var logger = log.New(os.Stdout, "[conn-manager] ", log.LstdFlags)

// BookHandle is the shared per-symbol resource consumers acquire: the live
// book plus its maintainer. Handles are shared across consumers; mutation
// stays with the maintainer, consumers only read projections.
type BookHandle struct {
	Symbol     *domain.MarketSymbol
	Book       *domain.OrderBook
	Maintainer domain.BookMaintainer
}

type bookEntry struct {
	handle     *BookHandle
	refs       int
	graceTimer *time.Timer
}

// ConnManager owns the exchange connections and the refcounted per-symbol
// book handles. A book is created on first Acquire and torn down only after
// the last Release plus a grace period, which absorbs rapid resubscription
// when the dashboard switches symbols back and forth.
type ConnManager struct {
	cfg *config.Config

	syncAPI  domain.SnapshotAPI
	depthAPI domain.DepthStreamAPI

	streamClient *binance.StreamClient
	streamAPI    *binance.StreamAPI

	mu    sync.Mutex
	books map[string]*bookEntry
}

func NewConnManager(cfg *config.Config) *ConnManager {
	streamClient := binance.NewStreamClient(cfg.WsEndpoint, cfg.ReconnectMin, cfg.ReconnectMax)
	streamAPI := binance.NewStreamAPI(streamClient)

	return &ConnManager{
		cfg:          cfg,
		syncAPI:      binance.NewRestAPI(cfg.RestEndpoint),
		depthAPI:     streamAPI,
		streamClient: streamClient,
		streamAPI:    streamAPI,
		books:        make(map[string]*bookEntry),
	}
}

// newConnManagerWithAPIs wires explicit APIs; used by tests.
func newConnManagerWithAPIs(cfg *config.Config, syncAPI domain.SnapshotAPI, depthAPI domain.DepthStreamAPI) *ConnManager {
	return &ConnManager{
		cfg:      cfg,
		syncAPI:  syncAPI,
		depthAPI: depthAPI,
		books:    make(map[string]*bookEntry),
	}
}

// Init dials the exchange stream connection.
func (cm *ConnManager) Init() error {
	if cm.streamClient == nil {
		return nil
	}
	return cm.streamClient.Connect()
}

// StreamAPI exposes the typed passthrough streams (ticker, kline, trades)
// for the gateway.
func (cm *ConnManager) StreamAPI() *binance.StreamAPI {
	return cm.streamAPI
}

func (cm *ConnManager) Connected() bool {
	return cm.depthAPI.Connected()
}

// Acquire returns the symbol's shared book handle, creating and starting a
// maintainer on first use.
func (cm *ConnManager) Acquire(symbol *domain.MarketSymbol) (*BookHandle, error) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	key := symbol.String()

	if entry, ok := cm.books[key]; ok {
		if entry.graceTimer != nil {
			entry.graceTimer.Stop()
			entry.graceTimer = nil
		}
		entry.refs++
		return entry.handle, nil
	}

	maintainer := binance.NewOrderBookMaintainer(cm.syncAPI, cm.depthAPI, binance.MaintainerConfig{
		SnapshotDepth:     cm.cfg.SnapshotDepth,
		BufferCap:         cm.cfg.BufferCap,
		LargeGapThreshold: cm.cfg.LargeGapThreshold,
		ResyncCooldown:    cm.cfg.ResyncCooldown,
		SnapshotRetryMin:  cm.cfg.SnapshotRetryMin,
		SnapshotRetryMax:  cm.cfg.SnapshotRetryMax,
	})
	if err := maintainer.Start(symbol); err != nil {
		return nil, err
	}

	handle := &BookHandle{
		Symbol:     symbol,
		Book:       maintainer.Book(),
		Maintainer: maintainer,
	}
	cm.books[key] = &bookEntry{handle: handle, refs: 1}

	logger.Printf("order book opened for %s", key)
	return handle, nil
}

// Release drops one reference. When the last reference goes, teardown is
// deferred by the grace period; a re-Acquire within the window cancels it.
func (cm *ConnManager) Release(symbol *domain.MarketSymbol) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	key := symbol.String()
	entry, ok := cm.books[key]
	if !ok {
		return
	}

	entry.refs--
	if entry.refs > 0 {
		return
	}

	entry.graceTimer = time.AfterFunc(cm.cfg.ReleaseGrace, func() {
		cm.mu.Lock()
		current, ok := cm.books[key]
		if !ok || current != entry || entry.refs > 0 {
			cm.mu.Unlock()
			return
		}
		delete(cm.books, key)
		cm.mu.Unlock()

		entry.handle.Maintainer.Stop()
		logger.Printf("order book closed for %s", key)
	})
}

func (cm *ConnManager) OpenBookCount() int {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	return len(cm.books)
}

func (cm *ConnManager) Close() {
	cm.mu.Lock()
	handles := make([]*BookHandle, 0, len(cm.books))
	for key, entry := range cm.books {
		if entry.graceTimer != nil {
			entry.graceTimer.Stop()
		}
		handles = append(handles, entry.handle)
		delete(cm.books, key)
	}
	cm.mu.Unlock()

	for _, h := range handles {
		h.Maintainer.Stop()
	}
	if cm.streamClient != nil {
		cm.streamClient.Close()
	}
}
