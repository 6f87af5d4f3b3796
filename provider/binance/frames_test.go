package binance

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDecodeFrame_DepthUpdate(t *testing.T) {
	raw := []byte(`{
		"stream": "btcusdt@depth@100ms",
		"data": {
			"e": "depthUpdate", "E": 1700000000123, "s": "BTCUSDT",
			"U": 1001, "u": 1005, "pu": 1000,
			"b": [["100.5", "2"]], "a": [["101", "0"]]
		}
	}`)

	frame, err := decodeFrame(raw)

	assert.NoError(t, err)
	assert.Equal(t, "btcusdt@depth@100ms", frame.Stream)
	if assert.NotNil(t, frame.Depth) {
		assert.Equal(t, int64(1001), frame.Depth.FirstUpdateId)
		assert.Equal(t, int64(1005), frame.Depth.FinalUpdateId)
		assert.Equal(t, int64(1000), frame.Depth.PrevFinalUpdateId)
		assert.Equal(t, [][]string{{"100.5", "2"}}, frame.Depth.Bids)
		assert.Equal(t, [][]string{{"101", "0"}}, frame.Depth.Asks)
	}
	assert.Nil(t, frame.Ticker)
	assert.Nil(t, frame.Kline)
	assert.Nil(t, frame.Trade)
}

func TestDecodeFrame_Ticker(t *testing.T) {
	raw := []byte(`{
		"stream": "btcusdt@ticker",
		"data": {"e": "24hrTicker", "E": 1, "s": "BTCUSDT", "c": "42000.1", "p": "-120.5"}
	}`)

	frame, err := decodeFrame(raw)

	assert.NoError(t, err)
	if assert.NotNil(t, frame.Ticker) {
		assert.Equal(t, "42000.1", frame.Ticker.LastPrice)
		assert.Equal(t, "-120.5", frame.Ticker.PriceChange)
	}
}

func TestDecodeFrame_Kline(t *testing.T) {
	raw := []byte(`{
		"stream": "btcusdt@kline_1m",
		"data": {"e": "kline", "E": 1, "s": "BTCUSDT",
			"k": {"t": 100, "T": 160, "i": "1m", "o": "1", "c": "2", "h": "3", "l": "0.5", "v": "9", "x": true}}
	}`)

	frame, err := decodeFrame(raw)

	assert.NoError(t, err)
	if assert.NotNil(t, frame.Kline) {
		assert.Equal(t, "1m", frame.Kline.Kline.Interval)
		assert.True(t, frame.Kline.Kline.Closed)
	}
}

func TestDecodeFrame_AggTrade(t *testing.T) {
	raw := []byte(`{
		"stream": "btcusdt@aggTrade",
		"data": {"e": "aggTrade", "E": 1, "s": "BTCUSDT", "a": 77, "p": "42000", "q": "0.5", "T": 5, "m": true}
	}`)

	frame, err := decodeFrame(raw)

	assert.NoError(t, err)
	if assert.NotNil(t, frame.Trade) {
		assert.Equal(t, int64(77), frame.Trade.TradeID)
		assert.True(t, frame.Trade.IsMaker)
	}
}

func TestDecodeFrame_Malformed(t *testing.T) {
	_, err := decodeFrame([]byte(`not json`))
	assert.Error(t, err)

	_, err = decodeFrame([]byte(`{"stream": "x"}`))
	assert.Error(t, err, "a message without data must be rejected")

	_, err = decodeFrame([]byte(`{"stream": "x", "data": {"e": "somethingElse"}}`))
	assert.Error(t, err, "unknown event types must be rejected")
}
