package binance

import (
	"encoding/json"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/recws-org/recws"

	"github.com/milkmamado/biscal-sub002/domain"
	promclient "github.com/milkmamado/biscal-sub002/infrastructure/prometheus"
)

const (
	pingDelay = time.Minute * 9

	// topicBufferSize bounds each subscriber channel; a consumer that
	// stalls loses frames rather than stalling the read loop.
	topicBufferSize = 64
)

type subscriptionEntry struct {
	subs   map[int]chan []byte
	nextID int
}

type wsRequestModel struct {
	ReqId  int      `json:"id"`
	Params []string `json:"params"`
	Method string   `json:"method"`
}

// StreamClient multiplexes topic subscriptions over one auto-reconnecting
// combined-stream connection. Topics are refcounted: the UNSUBSCRIBE message
// is only sent once the last subscriber of a topic is gone.
type StreamClient struct {
	endpoint     string
	reconnectMin time.Duration
	reconnectMax time.Duration

	conn          *recws.RecConn
	subscriptions map[string]*subscriptionEntry
	mu            sync.Mutex

	done      chan struct{}
	closeOnce sync.Once
}

func NewStreamClient(endpoint string, reconnectMin, reconnectMax time.Duration) *StreamClient {
	return &StreamClient{
		endpoint:      endpoint,
		reconnectMin:  reconnectMin,
		reconnectMax:  reconnectMax,
		subscriptions: make(map[string]*subscriptionEntry),
		done:          make(chan struct{}),
	}
}

// Connect dials the stream endpoint. Reconnects after a drop use a jittered
// delay growing between the configured bounds to avoid reconnect storms.
func (c *StreamClient) Connect() error {
	conn := &recws.RecConn{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: 5 * time.Second,
		KeepAliveTimeout: pingDelay,
		RecIntvlMin:      c.reconnectMin,
		RecIntvlMax:      c.reconnectMax,
		NonVerbose:       true,
	}

	conn.Dial(c.endpoint, nil)
	c.conn = conn

	go c.read()
	return nil
}

// Connected reports transport health; consumers surface it as the
// dashboard's connectivity flag.
func (c *StreamClient) Connected() bool {
	return c.conn != nil && c.conn.IsConnected()
}

func (c *StreamClient) Subscribe(topic string) (*domain.Subscription[[]byte], error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.subscriptions[topic]
	if !ok {
		entry = &subscriptionEntry{subs: make(map[int]chan []byte)}
		c.subscriptions[topic] = entry

		logger.Println("subscribing to", topic)

		if err := c.conn.WriteJSON(wsRequestModel{
			Method: "SUBSCRIBE",
			ReqId:  getRandomReqID(),
			Params: []string{topic},
		}); err != nil {
			delete(c.subscriptions, topic)
			return nil, err
		}
	}

	entry.nextID++
	id := entry.nextID
	ch := make(chan []byte, topicBufferSize)
	entry.subs[id] = ch

	return &domain.Subscription[[]byte]{
		Stream: ch,
		Unsubscribe: func() {
			c.unsubscribe(topic, id)
		},
		Topic: topic,
	}, nil
}

func (c *StreamClient) unsubscribe(topic string, id int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.subscriptions[topic]
	if !ok {
		return
	}

	ch, ok := entry.subs[id]
	if !ok {
		return
	}
	close(ch)
	delete(entry.subs, id)

	if len(entry.subs) > 0 {
		return
	}

	logger.Println("unsubscribing from", topic)
	delete(c.subscriptions, topic)

	if err := c.conn.WriteJSON(wsRequestModel{
		Method: "UNSUBSCRIBE",
		ReqId:  getRandomReqID(),
		Params: []string{topic},
	}); err != nil {
		logger.Println("failed to send unsubscribe for", topic, err)
	}
}

func (c *StreamClient) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)

		c.mu.Lock()
		for topic, entry := range c.subscriptions {
			for id, ch := range entry.subs {
				close(ch)
				delete(entry.subs, id)
			}
			delete(c.subscriptions, topic)
		}
		c.mu.Unlock()

		if c.conn != nil {
			c.conn.Close()
		}
	})
	return nil
}

type routingHeader struct {
	Stream string `json:"stream"`
}

func (c *StreamClient) read() {
	for {
		select {
		case <-c.done:
			return
		default:
		}

		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			// recws reconnects on its own; back off until it does.
			select {
			case <-c.done:
				return
			case <-time.After(250 * time.Millisecond):
			}
			continue
		}

		var header routingHeader
		if err := json.Unmarshal(msg, &header); err != nil {
			promclient.MalformedFrames.Inc()
			continue
		}

		// Subscribe acks carry an id and no stream key; nothing to route.
		if header.Stream == "" {
			continue
		}

		c.mu.Lock()
		entry, ok := c.subscriptions[header.Stream]
		if ok {
			for _, ch := range entry.subs {
				select {
				case ch <- msg:
				default:
					// Subscriber is behind; depth books heal via
					// sequence checks, passthrough frames are droppable.
				}
			}
		}
		c.mu.Unlock()
	}
}

func getRandomReqID() int {
	min := 10000
	max := 9999999
	return min + rand.Intn(max-min)
}
