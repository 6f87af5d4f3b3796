package server

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsAllowedSymbol_EmptyListAllowsAll(t *testing.T) {
	s := NewValidationService(&ValidationServiceConfig{})

	assert.True(t, s.IsAllowedSymbol("btc_usdt"))
	assert.True(t, s.IsAllowedSymbol("doge_usdt"))
}

func TestIsAllowedSymbol_ListRestricts(t *testing.T) {
	s := NewValidationService(&ValidationServiceConfig{
		AllowedSymbols: []string{"btc_usdt", "eth_usdt"},
	})

	assert.True(t, s.IsAllowedSymbol("btc_usdt"))
	assert.True(t, s.IsAllowedSymbol("eth_usdt"))
	assert.False(t, s.IsAllowedSymbol("doge_usdt"))
}
