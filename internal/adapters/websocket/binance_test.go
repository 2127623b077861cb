package websocket

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chronos/internal/domain/regime"
	"chronos/pkg/logger"
)

func newTestClient(t *testing.T, handler BarHandler) *BinanceKlineClient {
	t.Helper()
	c, err := NewBinanceKlineClient("", []string{"BTCUSDT"}, "5m", handler, logger.Get())
	require.NoError(t, err)
	return c
}

func TestNewBinanceKlineClientValidation(t *testing.T) {
	_, err := NewBinanceKlineClient("", nil, "5m", func(string, regime.Bar) {}, logger.Get())
	assert.Error(t, err)

	_, err = NewBinanceKlineClient("", []string{"BTCUSDT"}, "5m", nil, logger.Get())
	assert.Error(t, err)
}

func TestProcessMessageClosedKline(t *testing.T) {
	var gotSymbol string
	var gotBar regime.Bar
	var calls int

	c := newTestClient(t, func(symbol string, bar regime.Bar) {
		gotSymbol = symbol
		gotBar = bar
		calls++
	})

	msg := []byte(`{
		"e": "kline",
		"s": "BTCUSDT",
		"k": {
			"t": 1717243200000,
			"o": "68000.10",
			"h": "68150.00",
			"l": "67900.50",
			"c": "68100.00",
			"v": "123.456",
			"x": true
		}
	}`)
	c.processMessage(msg)

	require.Equal(t, 1, calls)
	assert.Equal(t, "BTCUSDT", gotSymbol)
	assert.True(t, time.UnixMilli(1717243200000).Equal(gotBar.Timestamp))
	assert.Equal(t, 68000.10, gotBar.Open)
	assert.Equal(t, 68150.00, gotBar.High)
	assert.Equal(t, 67900.50, gotBar.Low)
	assert.Equal(t, 68100.00, gotBar.Close)
	assert.Equal(t, 123.456, gotBar.Volume)
}

func TestProcessMessageIgnoresOpenKline(t *testing.T) {
	var calls int
	c := newTestClient(t, func(string, regime.Bar) { calls++ })

	c.processMessage([]byte(`{"e":"kline","s":"BTCUSDT","k":{"t":1,"o":"1","h":"1","l":"1","c":"1","v":"1","x":false}}`))
	assert.Equal(t, 0, calls)
}

func TestProcessMessageIgnoresOtherEvents(t *testing.T) {
	var calls int
	c := newTestClient(t, func(string, regime.Bar) { calls++ })

	c.processMessage([]byte(`{"result":null,"id":1}`))
	c.processMessage([]byte(`{"e":"24hrTicker","s":"BTCUSDT"}`))
	c.processMessage([]byte(`not json`))
	assert.Equal(t, 0, calls)
}

func TestProcessMessageBadNumbers(t *testing.T) {
	var calls int
	c := newTestClient(t, func(string, regime.Bar) { calls++ })

	c.processMessage([]byte(`{"e":"kline","s":"BTCUSDT","k":{"t":1,"o":"oops","h":"1","l":"1","c":"1","v":"1","x":true}}`))
	assert.Equal(t, 0, calls)
}
