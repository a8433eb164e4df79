// Package stream consumes the exchange trade stream and persists it.
package stream

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"MomentumTrader/internal/metrics"
	"MomentumTrader/internal/model"
)

// MaxStreamsPerSubscribe is the largest SUBSCRIBE batch sent in one frame.
const MaxStreamsPerSubscribe = 200

// Feed is a reconnecting client of the combined trade stream.
type Feed struct {
	URL     string
	Symbols []string

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	PingInterval time.Duration
	MinBackoff   time.Duration
	MaxBackoff   time.Duration

	dialer *websocket.Dialer
	log    zerolog.Logger
}

// NewFeed creates a feed for the trade streams of symbols.
func NewFeed(url string, symbols []string, log zerolog.Logger) *Feed {
	return &Feed{
		URL:          url,
		Symbols:      symbols,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 10 * time.Second,
		PingInterval: 20 * time.Second,
		MinBackoff:   time.Second,
		MaxBackoff:   time.Minute,
		dialer:       websocket.DefaultDialer,
		log:          log.With().Str("component", "feed").Logger(),
	}
}

// Ticks runs the feed in the background. The channel is closed only once ctx is
// done; reconnects are invisible to the reader.
func (f *Feed) Ticks(ctx context.Context) <-chan model.Tick {
	out := make(chan model.Tick, 1024)
	go func() {
		defer close(out)
		_ = f.Run(ctx, out)
	}()
	return out
}

// Run streams ticks into out until ctx is done, reconnecting with capped
// exponential backoff. It always returns ctx.Err().
func (f *Feed) Run(ctx context.Context, out chan<- model.Tick) error {
	backoff := f.MinBackoff
	for {
		started := time.Now()
		err := f.session(ctx, out)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if time.Since(started) > f.MaxBackoff {
			backoff = f.MinBackoff
		}
		f.log.Warn().Err(err).Dur("backoff", backoff).Msg("stream disconnected, reconnecting")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > f.MaxBackoff {
			backoff = f.MaxBackoff
		}
	}
}

type subscribeFrame struct {
	Method string   `json:"method"`
	Params []string `json:"params"`
	ID     int      `json:"id"`
}

type envelope struct {
	Stream string `json:"stream"`
	Data   *struct {
		Event     string          `json:"e"`
		Symbol    string          `json:"s"`
		Price     decimal.Decimal `json:"p"`
		TradeTime int64           `json:"T"`
	} `json:"data"`
}

// session holds one connection open until it fails or ctx ends.
func (f *Feed) session(ctx context.Context, out chan<- model.Tick) error {
	conn, _, err := f.dialer.DialContext(ctx, f.URL, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	var writeMu sync.Mutex
	write := func(kind int, data []byte) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		conn.SetWriteDeadline(time.Now().Add(f.WriteTimeout))
		return conn.WriteMessage(kind, data)
	}

	for i, chunk := range SubscribeBatches(f.Symbols) {
		frame, err := json.Marshal(subscribeFrame{Method: "SUBSCRIBE", Params: chunk, ID: i + 1})
		if err != nil {
			return err
		}
		if err := write(websocket.TextMessage, frame); err != nil {
			return fmt.Errorf("subscribe: %w", err)
		}
	}
	f.log.Info().Int("symbols", len(f.Symbols)).Msg("stream connected")

	conn.SetReadDeadline(time.Now().Add(f.ReadTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(f.ReadTimeout))
	})

	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(f.PingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				conn.Close()
				return
			case <-ticker.C:
				if err := write(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	}()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		conn.SetReadDeadline(time.Now().Add(f.ReadTimeout))
		tick, ok, err := parseTrade(msg)
		if err != nil {
			f.log.Debug().Err(err).Msg("skipping malformed frame")
			continue
		}
		if !ok {
			continue
		}
		metrics.TicksTotal.WithLabelValues(tick.Symbol).Inc()
		select {
		case out <- tick:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// parseTrade decodes a combined-stream trade frame. Control replies such as
// subscription acknowledgements report ok=false.
func parseTrade(msg []byte) (model.Tick, bool, error) {
	var env envelope
	if err := json.Unmarshal(msg, &env); err != nil {
		return model.Tick{}, false, err
	}
	if env.Data == nil || env.Data.Event != "trade" {
		return model.Tick{}, false, nil
	}
	if env.Data.Symbol == "" || !env.Data.Price.IsPositive() {
		return model.Tick{}, false, errors.New("trade frame without symbol or price")
	}
	return model.Tick{
		Time:   time.UnixMilli(env.Data.TradeTime),
		Symbol: env.Data.Symbol,
		Price:  env.Data.Price,
	}, true, nil
}

// SubscribeBatches turns symbols into lowercase trade stream names, split into
// frames of at most MaxStreamsPerSubscribe.
func SubscribeBatches(symbols []string) [][]string {
	var out [][]string
	for start := 0; start < len(symbols); start += MaxStreamsPerSubscribe {
		end := min(start+MaxStreamsPerSubscribe, len(symbols))
		chunk := make([]string, 0, end-start)
		for _, s := range symbols[start:end] {
			chunk = append(chunk, strings.ToLower(s)+"@trade")
		}
		out = append(out, chunk)
	}
	return out
}
