// Package wsfeed is a reference TickSource adapter over a generic
// JSON-over-websocket trade stream. It is grounded on the connection,
// ping, and read-loop management of the teacher's
// internal/providers/kraken WebSocketClient, generalized from a
// Kraken-specific subscription protocol to a minimal wire contract any
// exchange gateway could be fronted with: a trade message is a single
// JSON object per websocket.TextMessage frame,
//
//	{"symbol":"BTC-USD","trade_id":123,"ts":"2026-01-01T00:00:00Z","price":"100.5","qty":"0.01","side":"buy"}
//
// Wiring this adapter to a specific exchange's actual protocol is outside
// scope (spec Non-goals: exchange connectivity). It exists to exercise
// gorilla/websocket end to end and to give internal/ingest something
// concrete to depend on via the TickSource interface.
package wsfeed

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/sawpanic/cryptorun/internal/source"
	"github.com/sawpanic/cryptorun/internal/tick"
)

// Config controls connection and health-check behavior.
type Config struct {
	URL               string
	HandshakeTimeout  time.Duration
	ReadTimeout       time.Duration
	PingInterval      time.Duration
}

// DefaultConfig mirrors the teacher's kraken client: 30s handshake, 60s
// read deadline, 30s ping interval.
func DefaultConfig(url string) Config {
	return Config{
		URL:              url,
		HandshakeTimeout: 30 * time.Second,
		ReadTimeout:      60 * time.Second,
		PingInterval:     30 * time.Second,
	}
}

type wireTick struct {
	Symbol  string `json:"symbol"`
	TradeID uint64 `json:"trade_id"`
	TS      string `json:"ts"`
	Price   string `json:"price"`
	Qty     string `json:"qty"`
	Side    string `json:"side"`
}

// Feed is a TickSource backed by a single websocket connection.
type Feed struct {
	cfg Config
	log zerolog.Logger

	mu     sync.Mutex
	conn   *websocket.Conn
	closed bool

	out chan tick.Tick
	errs chan error
}

var _ source.TickSource = (*Feed)(nil)

// Connect dials cfg.URL and starts the background read/ping loops. The
// returned Feed's Next drains the decoded tick stream; symbols is used
// only to filter incoming messages to the requested set.
func Connect(ctx context.Context, cfg Config, symbols []tick.Symbol, log zerolog.Logger) (*Feed, error) {
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("wsfeed: invalid url: %w", err)
	}

	dialer := websocket.Dialer{HandshakeTimeout: cfg.HandshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("wsfeed: dial: %w", err)
	}

	want := make(map[tick.Symbol]bool, len(symbols))
	for _, s := range symbols {
		want[s] = true
	}

	f := &Feed{
		cfg:  cfg,
		log:  log.With().Str("component", "wsfeed").Logger(),
		conn: conn,
		out:  make(chan tick.Tick, 256),
		errs: make(chan error, 1),
	}

	go f.readLoop(ctx, want)
	go f.pingLoop(ctx)

	return f, nil
}

// Next implements source.TickSource.
func (f *Feed) Next(ctx context.Context) (tick.Tick, error) {
	select {
	case <-ctx.Done():
		return tick.Tick{}, ctx.Err()
	case t, ok := <-f.out:
		if !ok {
			return tick.Tick{}, source.ErrClosed
		}
		return t, nil
	case err := <-f.errs:
		return tick.Tick{}, err
	}
}

// Close implements source.TickSource.
func (f *Feed) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil
	}
	f.closed = true
	return f.conn.Close()
}

func (f *Feed) readLoop(ctx context.Context, want map[tick.Symbol]bool) {
	defer close(f.out)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		f.conn.SetReadDeadline(time.Now().Add(f.cfg.ReadTimeout))
		msgType, data, err := f.conn.ReadMessage()
		if err != nil {
			select {
			case f.errs <- fmt.Errorf("wsfeed: read: %w", err):
			default:
			}
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}

		var wt wireTick
		if err := json.Unmarshal(data, &wt); err != nil {
			f.log.Warn().Err(err).Msg("wsfeed: dropping malformed message")
			continue
		}
		t, err := decodeTick(wt)
		if err != nil {
			f.log.Warn().Err(err).Msg("wsfeed: dropping undecodable tick")
			continue
		}
		if len(want) > 0 && !want[t.Symbol] {
			continue
		}

		select {
		case f.out <- t:
		case <-ctx.Done():
			return
		}
	}
}

func (f *Feed) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(f.cfg.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			f.mu.Lock()
			closed := f.closed
			if !closed {
				f.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
				_ = f.conn.WriteMessage(websocket.PingMessage, nil)
			}
			f.mu.Unlock()
			if closed {
				return
			}
		}
	}
}

func decodeTick(wt wireTick) (tick.Tick, error) {
	sym, err := tick.NewSymbol(wt.Symbol)
	if err != nil {
		return tick.Tick{}, err
	}
	ts, err := time.Parse(time.RFC3339Nano, wt.TS)
	if err != nil {
		return tick.Tick{}, fmt.Errorf("wsfeed: parse ts: %w", err)
	}
	ts = ts.UTC().Truncate(time.Microsecond)
	price, err := decimal.NewFromString(wt.Price)
	if err != nil {
		return tick.Tick{}, fmt.Errorf("wsfeed: parse price: %w", err)
	}
	qty, err := decimal.NewFromString(wt.Qty)
	if err != nil {
		return tick.Tick{}, fmt.Errorf("wsfeed: parse qty: %w", err)
	}

	side := tick.SideUnknown
	switch wt.Side {
	case "buy", "b":
		side = tick.SideBuy
	case "sell", "s":
		side = tick.SideSell
	}

	t := tick.Tick{Symbol: sym, TS: ts, Price: price, Qty: qty, Side: side, TradeID: wt.TradeID}
	if err := t.Validate(); err != nil {
		return tick.Tick{}, err
	}
	return t, nil
}
