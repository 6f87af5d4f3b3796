package server

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/milkmamado/biscal-sub002/domain"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBufferSize = 256

	requestTimeout = 5 * time.Second
)

// request is the JSON message a dashboard client sends.
type request struct {
	Action   string         `json:"action"`
	Symbol   string         `json:"symbol,omitempty"`
	Depth    int            `json:"depth,omitempty"`
	Interval string         `json:"interval,omitempty"`
	Limit    int            `json:"limit,omitempty"`
	Trade    *tradePayload  `json:"trade,omitempty"`
	Trades   []tradePayload `json:"trades,omitempty"`
}

type tradePayload struct {
	Symbol string  `json:"symbol"`
	Side   string  `json:"side"`
	Price  float64 `json:"price"`
	Qty    float64 `json:"qty"`
	Pnl    float64 `json:"pnl"`
	Note   string  `json:"note"`
}

type bookMessage struct {
	Type         string     `json:"type"`
	Symbol       string     `json:"symbol"`
	LastUpdateID int64      `json:"lastUpdateId"`
	Bids         [][]string `json:"bids"`
	Asks         [][]string `json:"asks"`
	Connected    bool       `json:"connected"`
	LatencyMs    int64      `json:"latencyMs"`
}

type dataMessage struct {
	Type   string `json:"type"`
	Symbol string `json:"symbol"`
	Data   any    `json:"data"`
}

type ackMessage struct {
	Type   string `json:"type"`
	Action string `json:"action"`
	Topic  string `json:"topic,omitempty"`
}

type errorMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type client struct {
	id     string
	server *Server
	conn   *websocket.Conn
	send   chan []byte

	mu   sync.Mutex
	subs map[string]func()

	closeOnce sync.Once
}

func newClient(s *Server, conn *websocket.Conn) *client {
	return &client{
		id:     uuid.NewString(),
		server: s,
		conn:   conn,
		send:   make(chan []byte, sendBufferSize),
		subs:   make(map[string]func()),
	}
}

func (c *client) readPump() {
	defer c.teardown()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		var req request
		if err := json.Unmarshal(raw, &req); err != nil {
			c.sendError("malformed request")
			continue
		}
		c.handleRequest(&req)
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *client) teardown() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		for key, unsub := range c.subs {
			unsub()
			delete(c.subs, key)
		}
		c.mu.Unlock()

		close(c.send)
		c.conn.Close()
	})
}

func (c *client) handleRequest(req *request) {
	switch req.Action {
	case "subscribe_book":
		c.subscribeBook(req)
	case "subscribe_ticker":
		c.subscribeStream(req, "ticker")
	case "subscribe_kline":
		c.subscribeStream(req, "kline")
	case "subscribe_trades":
		c.subscribeStream(req, "trades")
	case "unsubscribe_book", "unsubscribe_ticker", "unsubscribe_kline", "unsubscribe_trades":
		c.unsubscribe(req)
	case "record_trade":
		c.recordTrade(req)
	case "record_trades":
		c.recordTrades(req)
	case "list_trades":
		c.listTrades(req)
	default:
		c.sendError("unknown action " + req.Action)
	}
}

func (c *client) parseSymbol(raw string) *domain.MarketSymbol {
	if !c.server.validation.IsAllowedSymbol(raw) {
		c.sendError("symbol " + raw + " is not served by this gateway")
		return nil
	}
	symbol, err := domain.NewMarketSymbolFromString(raw)
	if err != nil {
		c.sendError("invalid symbol " + raw + ", expected base_quote")
		return nil
	}
	return symbol
}

func (c *client) subscribeBook(req *request) {
	symbol := c.parseSymbol(req.Symbol)
	if symbol == nil {
		return
	}

	depth := req.Depth
	if depth <= 0 {
		depth = 20
	}

	key := "book:" + symbol.String()
	if c.hasSub(key) {
		c.sendAck(req.Action, key)
		return
	}

	sub, err := c.server.books.Subscribe(symbol, depth)
	if err != nil {
		logger.Printf("client %s: book subscribe %s: %s", c.id, symbol, err)
		c.sendError("could not open order book for " + req.Symbol)
		return
	}
	c.addSub(key, sub.Unsubscribe)

	go func() {
		for feed := range sub.Stream {
			c.enqueue(bookMessage{
				Type:         "book",
				Symbol:       symbol.String(),
				LastUpdateID: feed.Projection.LastUpdateID,
				Bids:         domain.SerializePriceLevels(feed.Projection.Bids),
				Asks:         domain.SerializePriceLevels(feed.Projection.Asks),
				Connected:    feed.Connected,
				LatencyMs:    feed.LatencyMs,
			})
		}
	}()

	c.sendAck(req.Action, key)
}

func (c *client) subscribeStream(req *request, kind string) {
	if c.server.streams == nil {
		c.sendError("market streams unavailable")
		return
	}

	symbol := c.parseSymbol(req.Symbol)
	if symbol == nil {
		return
	}

	key := kind + ":" + symbol.String()
	if kind == "kline" {
		interval := req.Interval
		if interval == "" {
			interval = "1m"
		}
		key += ":" + interval
	}
	if c.hasSub(key) {
		c.sendAck(req.Action, key)
		return
	}

	switch kind {
	case "ticker":
		sub, err := c.server.streams.TickerStream(symbol)
		if err != nil {
			c.sendError("could not subscribe ticker for " + req.Symbol)
			return
		}
		c.addSub(key, sub.Unsubscribe)
		go forward(c, "ticker", symbol.String(), sub.Stream)
	case "kline":
		interval := req.Interval
		if interval == "" {
			interval = "1m"
		}
		sub, err := c.server.streams.KlineStream(symbol, interval)
		if err != nil {
			c.sendError("could not subscribe kline for " + req.Symbol)
			return
		}
		c.addSub(key, sub.Unsubscribe)
		go forward(c, "kline", symbol.String(), sub.Stream)
	case "trades":
		sub, err := c.server.streams.TradeStream(symbol)
		if err != nil {
			c.sendError("could not subscribe trades for " + req.Symbol)
			return
		}
		c.addSub(key, sub.Unsubscribe)
		go forward(c, "trade", symbol.String(), sub.Stream)
	}

	c.sendAck(req.Action, key)
}

func forward[T any](c *client, msgType, symbol string, stream chan *T) {
	for data := range stream {
		c.enqueue(dataMessage{Type: msgType, Symbol: symbol, Data: data})
	}
}

func (c *client) unsubscribe(req *request) {
	symbol, err := domain.NewMarketSymbolFromString(req.Symbol)
	if err != nil {
		c.sendError("invalid symbol " + req.Symbol)
		return
	}

	// "unsubscribe_book" -> "book", "unsubscribe_trades" -> "trades", ...
	kind := req.Action[len("unsubscribe_"):]
	key := kind + ":" + symbol.String()
	if kind == "kline" {
		interval := req.Interval
		if interval == "" {
			interval = "1m"
		}
		key += ":" + interval
	}

	c.mu.Lock()
	unsub, ok := c.subs[key]
	if ok {
		delete(c.subs, key)
	}
	c.mu.Unlock()

	if ok {
		unsub()
	}
	c.sendAck(req.Action, key)
}

func (c *client) recordTrade(req *request) {
	if c.server.tradeLogs == nil {
		c.sendError("trade log persistence is disabled")
		return
	}
	if req.Trade == nil {
		c.sendError("record_trade requires a trade payload")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	t := &domain.TradeLog{
		Symbol: req.Trade.Symbol,
		Side:   req.Trade.Side,
		Price:  req.Trade.Price,
		Qty:    req.Trade.Qty,
		Pnl:    req.Trade.Pnl,
		Note:   req.Trade.Note,
	}
	if err := c.server.tradeLogs.Record(ctx, t); err != nil {
		c.sendError(err.Error())
		return
	}
	c.sendAck(req.Action, "")
}

func (c *client) recordTrades(req *request) {
	if c.server.tradeLogs == nil {
		c.sendError("trade log persistence is disabled")
		return
	}
	if len(req.Trades) == 0 {
		c.sendError("record_trades requires a trades payload")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	logs := make([]domain.TradeLog, 0, len(req.Trades))
	for _, p := range req.Trades {
		logs = append(logs, domain.TradeLog{
			Symbol: p.Symbol,
			Side:   p.Side,
			Price:  p.Price,
			Qty:    p.Qty,
			Pnl:    p.Pnl,
			Note:   p.Note,
		})
	}
	if err := c.server.tradeLogs.RecordBatch(ctx, logs); err != nil {
		c.sendError(err.Error())
		return
	}
	c.sendAck(req.Action, "")
}

func (c *client) listTrades(req *request) {
	if c.server.tradeLogs == nil {
		c.sendError("trade log persistence is disabled")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	logs, err := c.server.tradeLogs.Recent(ctx, req.Limit)
	if err != nil {
		logger.Printf("client %s: list trades: %s", c.id, err)
		c.sendError("could not load trade logs")
		return
	}
	c.enqueue(dataMessage{Type: "trade_logs", Data: logs})
}

func (c *client) hasSub(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.subs[key]
	return ok
}

func (c *client) addSub(key string, unsub func()) {
	c.mu.Lock()
	c.subs[key] = unsub
	c.mu.Unlock()
}

func (c *client) enqueue(msg any) {
	raw, err := json.Marshal(msg)
	if err != nil {
		return
	}

	defer func() {
		// The send channel closes on teardown; a forwarder racing the
		// close may still try to enqueue.
		_ = recover()
	}()

	select {
	case c.send <- raw:
	default:
		// Slow client: drop rather than block the feed.
	}
}

func (c *client) sendAck(action, topic string) {
	c.enqueue(ackMessage{Type: "ack", Action: action, Topic: topic})
}

func (c *client) sendError(message string) {
	c.enqueue(errorMessage{Type: "error", Message: message})
}
