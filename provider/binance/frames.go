package binance

import (
	"encoding/json"
	"fmt"
)

// Message is the combined-stream envelope: {"stream": "...", "data": {...}}.
type Message[T any] struct {
	Stream string `json:"stream"`
	Data   T      `json:"data"`
}

type DepthUpdateData struct {
	Event             string     `json:"e"`
	EventTime         int64      `json:"E"`
	Symbol            string     `json:"s"`
	FirstUpdateId     int64      `json:"U"`
	FinalUpdateId     int64      `json:"u"`
	PrevFinalUpdateId int64      `json:"pu"`
	Bids              [][]string `json:"b"`
	Asks              [][]string `json:"a"`
}

type TickerData struct {
	Event              string `json:"e"`
	EventTime          int64  `json:"E"`
	Symbol             string `json:"s"`
	PriceChange        string `json:"p"`
	PriceChangePercent string `json:"P"`
	LastPrice          string `json:"c"`
	OpenPrice          string `json:"o"`
	HighPrice          string `json:"h"`
	LowPrice           string `json:"l"`
	Volume             string `json:"v"`
	QuoteVolume        string `json:"q"`
}

type KlineData struct {
	Event     string `json:"e"`
	EventTime int64  `json:"E"`
	Symbol    string `json:"s"`
	Kline     struct {
		OpenTime  int64  `json:"t"`
		CloseTime int64  `json:"T"`
		Symbol    string `json:"s"`
		Interval  string `json:"i"`
		Open      string `json:"o"`
		Close     string `json:"c"`
		High      string `json:"h"`
		Low       string `json:"l"`
		Volume    string `json:"v"`
		Closed    bool   `json:"x"`
	} `json:"k"`
}

type AggTradeData struct {
	Event     string `json:"e"`
	EventTime int64  `json:"E"`
	Symbol    string `json:"s"`
	TradeID   int64  `json:"a"`
	Price     string `json:"p"`
	Qty       string `json:"q"`
	TradeTime int64  `json:"T"`
	IsMaker   bool   `json:"m"`
}

// Frame is the decoded variant of one stream message. Exactly one field is
// non-nil. Decoding happens once at the transport boundary; downstream code
// dispatches on the variant instead of re-inspecting raw JSON.
type Frame struct {
	Stream string
	Depth  *DepthUpdateData
	Ticker *TickerData
	Kline  *KlineData
	Trade  *AggTradeData
}

type frameHeader struct {
	Event string `json:"e"`
}

// decodeFrame parses a raw combined-stream message into a Frame. Unknown or
// unparseable payloads yield an error; the caller drops and counts them.
func decodeFrame(raw []byte) (*Frame, error) {
	var envelope Message[json.RawMessage]
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, fmt.Errorf("envelope: %w", err)
	}
	if len(envelope.Data) == 0 {
		return nil, fmt.Errorf("envelope has no data field")
	}

	var header frameHeader
	if err := json.Unmarshal(envelope.Data, &header); err != nil {
		return nil, fmt.Errorf("event type: %w", err)
	}

	frame := &Frame{Stream: envelope.Stream}

	switch header.Event {
	case "depthUpdate":
		frame.Depth = &DepthUpdateData{}
		if err := json.Unmarshal(envelope.Data, frame.Depth); err != nil {
			return nil, fmt.Errorf("depth update: %w", err)
		}
	case "24hrTicker":
		frame.Ticker = &TickerData{}
		if err := json.Unmarshal(envelope.Data, frame.Ticker); err != nil {
			return nil, fmt.Errorf("ticker: %w", err)
		}
	case "kline":
		frame.Kline = &KlineData{}
		if err := json.Unmarshal(envelope.Data, frame.Kline); err != nil {
			return nil, fmt.Errorf("kline: %w", err)
		}
	case "aggTrade":
		frame.Trade = &AggTradeData{}
		if err := json.Unmarshal(envelope.Data, frame.Trade); err != nil {
			return nil, fmt.Errorf("agg trade: %w", err)
		}
	default:
		return nil, fmt.Errorf("unknown event type %q", header.Event)
	}

	return frame, nil
}
