package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewMarketSymbol(t *testing.T) {
	symbol, err := NewMarketSymbol("BTC", "USDT")

	assert.NoError(t, err)
	assert.Equal(t, "btc", symbol.BaseAsset)
	assert.Equal(t, "usdt", symbol.QuoteAsset)
	assert.Equal(t, "btc_usdt", symbol.String())
	assert.Equal(t, "btcusdt", symbol.Join(""))
	assert.Equal(t, "BTCUSDT", symbol.Upper())
}

func TestNewMarketSymbol_Invalid(t *testing.T) {
	_, err := NewMarketSymbol("btc", "btc")
	assert.Error(t, err, "base and quote must be different")

	_, err = NewMarketSymbol("", "usdt")
	assert.Error(t, err, "base must not be empty")

	_, err = NewMarketSymbol("btc", "")
	assert.Error(t, err, "quote must not be empty")
}

func TestNewMarketSymbolFromString(t *testing.T) {
	symbol, err := NewMarketSymbolFromString("eth_usdt")

	assert.NoError(t, err)
	assert.Equal(t, "eth", symbol.BaseAsset)
	assert.Equal(t, "usdt", symbol.QuoteAsset)

	_, err = NewMarketSymbolFromString("ethusdt")
	assert.Error(t, err, "missing separator must be rejected")

	_, err = NewMarketSymbolFromString("a_b_c")
	assert.Error(t, err)
}

func TestMarketSymbolEqual(t *testing.T) {
	a, _ := NewMarketSymbol("btc", "usdt")
	b, _ := NewMarketSymbol("BTC", "USDT")
	c, _ := NewMarketSymbol("eth", "usdt")

	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c))
}
