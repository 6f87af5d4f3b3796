package binance

import (
	"fmt"

	"github.com/milkmamado/biscal-sub002/domain"
	promclient "github.com/milkmamado/biscal-sub002/infrastructure/prometheus"
)

// StreamAPI decodes raw combined-stream frames into typed subscriptions.
// Malformed frames are dropped and counted, never propagated.
type StreamAPI struct {
	streamClient *StreamClient
}

func NewStreamAPI(client *StreamClient) *StreamAPI {
	return &StreamAPI{streamClient: client}
}

func (bs *StreamAPI) Connected() bool {
	return bs.streamClient.Connected()
}

// DepthDiffStream subscribes to the symbol's incremental depth updates.
func (bs *StreamAPI) DepthDiffStream(symbol *domain.MarketSymbol) (*domain.Subscription[*domain.DepthUpdate], error) {
	topic := fmt.Sprintf("%s@depth@100ms", symbol.Join(""))
	subscription, err := bs.streamClient.Subscribe(topic)
	if err != nil {
		return nil, err
	}

	s := make(chan *domain.DepthUpdate, topicBufferSize)

	go func() {
		defer close(s)

		for msg := range subscription.Stream {
			frame, err := decodeFrame(msg)
			if err != nil || frame.Depth == nil {
				promclient.MalformedFrames.Inc()
				continue
			}

			update, err := depthUpdateFromFrame(symbol, frame.Depth)
			if err != nil {
				promclient.MalformedFrames.Inc()
				continue
			}

			// Never block on a stalled consumer; a dropped diff shows up
			// as a sequence gap and the maintainer resyncs.
			select {
			case s <- update:
			default:
			}
		}
	}()

	return &domain.Subscription[*domain.DepthUpdate]{
		Stream:      s,
		Unsubscribe: subscription.Unsubscribe,
		Topic:       topic,
	}, nil
}

func depthUpdateFromFrame(symbol *domain.MarketSymbol, data *DepthUpdateData) (*domain.DepthUpdate, error) {
	bids, err := domain.ParsePriceLevels(data.Bids)
	if err != nil {
		return nil, fmt.Errorf("bid changes: %w", err)
	}
	asks, err := domain.ParsePriceLevels(data.Asks)
	if err != nil {
		return nil, fmt.Errorf("ask changes: %w", err)
	}

	return domain.NewDepthUpdate(
		symbol,
		data.EventTime,
		data.FirstUpdateId, data.FinalUpdateId, data.PrevFinalUpdateId,
		bids, asks,
	), nil
}

// TickerStream subscribes to the 24h rolling ticker for a symbol.
func (bs *StreamAPI) TickerStream(symbol *domain.MarketSymbol) (*domain.Subscription[*TickerData], error) {
	topic := fmt.Sprintf("%s@ticker", symbol.Join(""))
	return typedStream(bs.streamClient, topic, func(f *Frame) *TickerData { return f.Ticker })
}

// KlineStream subscribes to candlesticks for an interval, e.g. "1m".
func (bs *StreamAPI) KlineStream(symbol *domain.MarketSymbol, interval string) (*domain.Subscription[*KlineData], error) {
	topic := fmt.Sprintf("%s@kline_%s", symbol.Join(""), interval)
	return typedStream(bs.streamClient, topic, func(f *Frame) *KlineData { return f.Kline })
}

// TradeStream subscribes to aggregated trades for a symbol.
func (bs *StreamAPI) TradeStream(symbol *domain.MarketSymbol) (*domain.Subscription[*AggTradeData], error) {
	topic := fmt.Sprintf("%s@aggTrade", symbol.Join(""))
	return typedStream(bs.streamClient, topic, func(f *Frame) *AggTradeData { return f.Trade })
}

func typedStream[T any](client *StreamClient, topic string, pick func(*Frame) *T) (*domain.Subscription[*T], error) {
	subscription, err := client.Subscribe(topic)
	if err != nil {
		return nil, err
	}

	s := make(chan *T, topicBufferSize)

	go func() {
		defer close(s)

		for msg := range subscription.Stream {
			frame, err := decodeFrame(msg)
			if err != nil {
				promclient.MalformedFrames.Inc()
				continue
			}
			if data := pick(frame); data != nil {
				select {
				case s <- data:
				default:
				}
			}
		}
	}()

	return &domain.Subscription[*T]{
		Stream:      s,
		Unsubscribe: subscription.Unsubscribe,
		Topic:       topic,
	}, nil
}
