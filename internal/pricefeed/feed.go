package pricefeed

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
)

// Feed maintains a cache of last-seen mark prices from the oracle's
// streaming endpoint. It is an optimization only: the scheduler uses it to
// pre-filter stop-loss candidates far from their stop price, and every
// actual trigger decision still uses a fresh REST quote. Cached prices are
// never order state, so losing them on restart is harmless.
type Feed struct {
	URL        string
	StaleAfter time.Duration
	Logger     *zap.Logger

	mu     sync.RWMutex
	prices map[string]markPrice
}

type markPrice struct {
	price decimal.Decimal
	at    time.Time
}

type tickMessage struct {
	TokenIn  string `json:"token_in"`
	TokenOut string `json:"token_out"`
	ChainID  int64  `json:"chain_id"`
	Price    string `json:"price"`
}

func key(tokenIn, tokenOut string, chainID int64) string {
	return fmt.Sprintf("%d:%s:%s", chainID, strings.ToLower(tokenIn), strings.ToLower(tokenOut))
}

// Lookup returns the cached mark price for a pair if one is fresh enough.
func (f *Feed) Lookup(tokenIn, tokenOut string, chainID int64) (decimal.Decimal, bool) {
	if f == nil {
		return decimal.Zero, false
	}
	f.mu.RLock()
	entry, ok := f.prices[key(tokenIn, tokenOut, chainID)]
	f.mu.RUnlock()
	if !ok {
		return decimal.Zero, false
	}
	stale := f.StaleAfter
	if stale <= 0 {
		stale = 30 * time.Second
	}
	if time.Since(entry.at) > stale {
		return decimal.Zero, false
	}
	return entry.price, true
}

func (f *Feed) Run(ctx context.Context) error {
	if f == nil || strings.TrimSpace(f.URL) == "" {
		return nil
	}
	backoff := time.Second
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		err := f.stream(ctx)
		if err != nil && ctx.Err() == nil && f.Logger != nil {
			f.Logger.Warn("price feed disconnected", zap.Error(err))
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		// Jittered reconnect so a fleet of workers does not stampede.
		sleep := backoff + time.Duration(rand.Int63n(int64(backoff)))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(sleep):
		}
		if backoff < 30*time.Second {
			backoff *= 2
		}
	}
}

func (f *Feed) stream(ctx context.Context) error {
	conn, _, err := websocket.Dial(ctx, f.URL, nil)
	if err != nil {
		return err
	}
	defer conn.Close(websocket.StatusNormalClosure, "shutdown")
	conn.SetReadLimit(1 << 20)

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}
		var tick tickMessage
		if err := json.Unmarshal(data, &tick); err != nil {
			continue
		}
		price, err := decimal.NewFromString(strings.TrimSpace(tick.Price))
		if err != nil || price.LessThanOrEqual(decimal.Zero) {
			continue
		}
		f.mu.Lock()
		if f.prices == nil {
			f.prices = map[string]markPrice{}
		}
		f.prices[key(tick.TokenIn, tick.TokenOut, tick.ChainID)] = markPrice{price: price, at: time.Now().UTC()}
		f.mu.Unlock()
	}
}
