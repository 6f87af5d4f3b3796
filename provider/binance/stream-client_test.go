package binance

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"

	"github.com/milkmamado/biscal-sub002/domain"
)

// newStreamServer runs a websocket endpoint that floods depth frames for
// btcusdt as soon as a connection is established.
func newStreamServer(t *testing.T) string {
	t.Helper()

	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		// Drain client control messages (SUBSCRIBE/UNSUBSCRIBE).
		go func() {
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		for seq := int64(1); ; seq++ {
			frame := fmt.Sprintf(`{"stream":"btcusdt@depth@100ms","data":{"e":"depthUpdate","E":1,"s":"BTCUSDT","U":%d,"u":%d,"pu":%d,"b":[["100","1"]],"a":[]}}`,
				seq, seq, seq-1)
			if err := conn.WriteMessage(websocket.TextMessage, []byte(frame)); err != nil {
				return
			}
			time.Sleep(time.Millisecond)
		}
	}))
	t.Cleanup(srv.Close)

	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestStreamClient_ReadExitsAfterClose(t *testing.T) {
	client := NewStreamClient("ws://127.0.0.1:0", time.Millisecond, 2*time.Millisecond)
	assert.NoError(t, client.Close())
	assert.NoError(t, client.Close()) // idempotent

	exited := make(chan struct{})
	go func() {
		client.read()
		close(exited)
	}()

	select {
	case <-exited:
	case <-time.After(time.Second):
		t.Fatal("read loop did not exit after Close")
	}
}

func TestDepthDiffStream_DeliversDecodedUpdates(t *testing.T) {
	client := NewStreamClient(newStreamServer(t), 10*time.Millisecond, 20*time.Millisecond)
	assert.NoError(t, client.Connect())
	defer client.Close()
	assert.Eventually(t, client.Connected, 2*time.Second, 10*time.Millisecond)

	symbol, _ := domain.NewMarketSymbol("btc", "usdt")
	api := NewStreamAPI(client)
	sub, err := api.DepthDiffStream(symbol)
	assert.NoError(t, err)
	defer sub.Unsubscribe()

	select {
	case update := <-sub.Stream:
		assert.GreaterOrEqual(t, update.FinalUpdateID, int64(1))
		assert.Equal(t, []domain.PriceLevel{{Price: 100, Qty: 1}}, update.Bids)
	case <-time.After(2 * time.Second):
		t.Fatal("no depth update arrived")
	}
}

func TestDepthDiffStream_UnsubscribeClosesStalledStream(t *testing.T) {
	client := NewStreamClient(newStreamServer(t), 10*time.Millisecond, 20*time.Millisecond)
	assert.NoError(t, client.Connect())
	defer client.Close()
	assert.Eventually(t, client.Connected, 2*time.Second, 10*time.Millisecond)

	symbol, _ := domain.NewMarketSymbol("btc", "usdt")
	api := NewStreamAPI(client)
	sub, err := api.DepthDiffStream(symbol)
	assert.NoError(t, err)

	// Stop consuming long enough for the server to overrun every buffer
	// between the socket and this test.
	time.Sleep(300 * time.Millisecond)
	sub.Unsubscribe()

	// The decoder must wind down and close the stream even though the
	// consumer stalled with a full channel.
	assert.Eventually(t, func() bool {
		for {
			select {
			case _, ok := <-sub.Stream:
				if !ok {
					return true
				}
			default:
				return false
			}
		}
	}, 2*time.Second, 10*time.Millisecond)
}
