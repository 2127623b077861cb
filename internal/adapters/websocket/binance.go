package websocket

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"chronos/internal/domain/regime"
	"chronos/internal/metrics"
	"chronos/pkg/errors"
	"chronos/pkg/logger"
)

const (
	binancePingInterval = 3 * time.Minute
	binanceReadTimeout  = 10 * time.Second
	binanceWriteTimeout = 5 * time.Second

	defaultBinanceWSURL = "wss://stream.binance.com:9443/ws"
)

// BarHandler receives each closed kline converted into a bar.
type BarHandler func(symbol string, bar regime.Bar)

// BinanceKlineClient streams klines for a set of symbols and forwards
// closed bars to the handler. Reconnects automatically with a rate-limited
// backoff until the context is cancelled.
type BinanceKlineClient struct {
	url      string
	symbols  []string
	interval string
	handler  BarHandler

	conn      *websocket.Conn
	connected bool
	mu        sync.RWMutex
	wg        sync.WaitGroup

	// One reconnect attempt per 5s, small burst for the initial connect.
	reconnects *rate.Limiter

	log    *logger.Logger
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewBinanceKlineClient creates a new kline stream client
func NewBinanceKlineClient(url string, symbols []string, interval string, handler BarHandler, log *logger.Logger) (*BinanceKlineClient, error) {
	if len(symbols) == 0 {
		return nil, errors.Wrap(errors.ErrInvalidInput, "at least one symbol is required")
	}
	if handler == nil {
		return nil, errors.Wrap(errors.ErrInvalidInput, "bar handler is required")
	}
	if url == "" {
		url = defaultBinanceWSURL
	}
	if interval == "" {
		interval = "5m"
	}

	return &BinanceKlineClient{
		url:        url,
		symbols:    symbols,
		interval:   interval,
		handler:    handler,
		reconnects: rate.NewLimiter(rate.Every(5*time.Second), 3),
		log:        log.With("component", "binance_kline_ws"),
		done:       make(chan struct{}),
	}, nil
}

// Start connects and keeps the stream alive until the context is cancelled.
// The initial connect is synchronous so startup fails fast on bad config.
func (c *BinanceKlineClient) Start(ctx context.Context) error {
	c.ctx, c.cancel = context.WithCancel(ctx)

	if err := c.connect(); err != nil {
		return err
	}

	c.wg.Add(1)
	go c.supervise()

	return nil
}

// Stop disconnects and waits for all goroutines to finish.
func (c *BinanceKlineClient) Stop() error {
	c.mu.Lock()
	if c.cancel != nil {
		c.cancel()
	}
	select {
	case <-c.done:
	default:
		close(c.done)
	}
	c.closeConnLocked()
	c.mu.Unlock()

	finished := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		c.log.Info("Binance kline stream stopped")
		return nil
	case <-time.After(10 * time.Second):
		return errors.Wrap(errors.ErrTimeout, "websocket shutdown timeout")
	}
}

// IsConnected returns connection status
func (c *BinanceKlineClient) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

func (c *BinanceKlineClient) connect() error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}

	conn, _, err := dialer.DialContext(c.ctx, c.url, nil)
	if err != nil {
		metrics.MarketDataReconnects.WithLabelValues("failed").Inc()
		return errors.Wrapf(err, "failed to connect to binance websocket: %s", c.url)
	}

	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.mu.Unlock()

	if err := c.subscribeKlines(); err != nil {
		c.mu.Lock()
		c.closeConnLocked()
		c.mu.Unlock()
		return err
	}

	metrics.WebSocketConnections.WithLabelValues("binance", "kline").Set(1)
	c.log.Infow("Connected to Binance kline stream",
		"url", c.url,
		"symbols", c.symbols,
		"interval", c.interval,
	)

	c.wg.Add(2)
	go c.readMessages(conn)
	go c.pingLoop(conn)

	return nil
}

// subscribeKlines sends a single SUBSCRIBE for all symbol streams.
func (c *BinanceKlineClient) subscribeKlines() error {
	streams := make([]string, 0, len(c.symbols))
	for _, symbol := range c.symbols {
		// Binance kline stream: <symbol>@kline_<interval>
		streams = append(streams, strings.ToLower(symbol)+"@kline_"+c.interval)
	}

	msg := map[string]interface{}{
		"method": "SUBSCRIBE",
		"params": streams,
		"id":     time.Now().Unix(),
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.connected || c.conn == nil {
		return errors.ErrWSNotConnected
	}
	if err := c.conn.SetWriteDeadline(time.Now().Add(binanceWriteTimeout)); err != nil {
		return err
	}
	if err := c.conn.WriteJSON(msg); err != nil {
		return errors.Wrap(err, "failed to send kline subscription")
	}

	c.log.Infof("Subscribed to %d kline streams", len(streams))
	return nil
}

// supervise reconnects whenever the reader exits until shutdown.
func (c *BinanceKlineClient) supervise() {
	defer c.wg.Done()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-c.done:
			return
		case <-time.After(time.Second):
		}

		if c.IsConnected() {
			continue
		}

		if err := c.reconnects.Wait(c.ctx); err != nil {
			return
		}

		c.log.Warn("Binance kline stream disconnected, reconnecting")
		if err := c.connect(); err != nil {
			c.log.Errorf("Reconnect failed: %v", err)
			continue
		}
		metrics.MarketDataReconnects.WithLabelValues("success").Inc()
	}
}

func (c *BinanceKlineClient) readMessages(conn *websocket.Conn) {
	defer c.wg.Done()
	defer func() {
		c.mu.Lock()
		if c.conn == conn {
			c.closeConnLocked()
		}
		c.mu.Unlock()
	}()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-c.done:
			return
		default:
		}

		// Read deadline lets us check the context periodically.
		if err := conn.SetReadDeadline(time.Now().Add(binanceReadTimeout)); err != nil {
			c.log.Errorf("Failed to set read deadline: %v", err)
			return
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.log.Info("WebSocket closed normally")
				return
			}
			if netErr, ok := err.(interface{ Timeout() bool }); ok && netErr.Timeout() {
				continue
			}
			c.log.Errorf("Error reading message: %v", err)
			return
		}

		c.processMessage(message)
	}
}

func (c *BinanceKlineClient) pingLoop(conn *websocket.Conn) {
	defer c.wg.Done()

	ticker := time.NewTicker(binancePingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-c.done:
			return
		case <-ticker.C:
			if err := conn.SetWriteDeadline(time.Now().Add(binanceWriteTimeout)); err != nil {
				return
			}
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.log.Warnf("Ping failed: %v", err)
				return
			}
		}
	}
}

// klineEvent mirrors the Binance kline payload. Numeric fields arrive as
// strings on the wire.
type klineEvent struct {
	EventType string `json:"e"`
	Symbol    string `json:"s"`
	Kline     struct {
		StartTime int64  `json:"t"`
		Open      string `json:"o"`
		High      string `json:"h"`
		Low       string `json:"l"`
		Close     string `json:"c"`
		Volume    string `json:"v"`
		Closed    bool   `json:"x"`
	} `json:"k"`
}

func (c *BinanceKlineClient) processMessage(message []byte) {
	var event klineEvent
	if err := json.Unmarshal(message, &event); err != nil {
		c.log.Debugf("Skipping unparseable message: %v", err)
		return
	}
	if event.EventType != "kline" {
		return
	}
	// Only closed klines become bars; in-progress updates are ignored.
	if !event.Kline.Closed {
		return
	}

	bar, err := c.parseBar(event)
	if err != nil {
		c.log.Errorw("Failed to parse kline", "symbol", event.Symbol, "error", err)
		return
	}

	c.handler(event.Symbol, bar)
}

func (c *BinanceKlineClient) parseBar(event klineEvent) (regime.Bar, error) {
	k := event.Kline

	bar := regime.Bar{Timestamp: time.UnixMilli(k.StartTime)}
	fields := []struct {
		name  string
		value string
		dst   *float64
	}{
		{"open", k.Open, &bar.Open},
		{"high", k.High, &bar.High},
		{"low", k.Low, &bar.Low},
		{"close", k.Close, &bar.Close},
		{"volume", k.Volume, &bar.Volume},
	}
	for _, f := range fields {
		v, err := strconv.ParseFloat(f.value, 64)
		if err != nil {
			return regime.Bar{}, errors.Wrapf(err, "parse %s %q", f.name, f.value)
		}
		*f.dst = v
	}

	return bar, nil
}

// closeConnLocked closes the socket and flips state. Caller holds c.mu.
func (c *BinanceKlineClient) closeConnLocked() {
	if c.conn != nil {
		_ = c.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		c.conn.Close()
		c.conn = nil
	}
	if c.connected {
		c.connected = false
		metrics.WebSocketConnections.WithLabelValues("binance", "kline").Set(0)
	}
}
