package scheduler

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"

	"orderengine/internal/events"
	"orderengine/internal/executor"
	"orderengine/internal/models"
	"orderengine/internal/oracle"
	"orderengine/internal/pricefeed"
	"orderengine/internal/repository"
)

// Engine drives the conditional-order lifecycle: each tick it re-reads
// candidates from the store, evaluates them against fresh quotes, and
// claims-then-dispatches the ones whose trigger fired. The engine keeps no
// order state between ticks, so any number of workers can run the same
// loops against the same database; the conditional updates in the store
// decide who executes what.
type Engine struct {
	Store    repository.Store
	Oracle   oracle.PriceOracle
	Executor executor.SwapExecutor
	Events   events.Publisher
	Feed     *pricefeed.Feed
	Logger   *zap.Logger

	TickInterval  time.Duration
	MaxCandidates int

	// A DCA occurrence older than this is skipped instead of executed,
	// so a schedule recovering from an outage does not buy at stale times.
	DCARetryWindow time.Duration

	// Stop-loss candidates whose cached mark price is further than this
	// many percent above the stop skip the REST quote for the tick.
	FeedProximityPct float64
}

func (e *Engine) tickInterval() time.Duration {
	if e.TickInterval > 0 {
		return e.TickInterval
	}
	return 10 * time.Second
}

func (e *Engine) maxCandidates() int {
	if e.MaxCandidates > 0 {
		return e.MaxCandidates
	}
	return 200
}

func (e *Engine) retryWindow() time.Duration {
	if e.DCARetryWindow > 0 {
		return e.DCARetryWindow
	}
	return 6 * time.Hour
}

// Run starts the three evaluation loops and blocks until ctx is done.
func (e *Engine) Run(ctx context.Context) error {
	if e == nil || e.Store == nil {
		return nil
	}
	var wg sync.WaitGroup
	loops := []struct {
		kind string
		scan func(context.Context) error
	}{
		{models.KindLimit, e.scanLimitOnce},
		{models.KindStopLoss, e.scanStopLossOnce},
		{models.KindDCA, e.scanDCAOnce},
	}
	for _, loop := range loops {
		wg.Add(1)
		go func(kind string, scan func(context.Context) error) {
			defer wg.Done()
			e.runLoop(ctx, kind, scan)
		}(loop.kind, loop.scan)
	}
	wg.Wait()
	return ctx.Err()
}

func (e *Engine) runLoop(ctx context.Context, kind string, scan func(context.Context) error) {
	ticker := time.NewTicker(e.tickInterval())
	defer ticker.Stop()
	for {
		if err := scan(ctx); err != nil && ctx.Err() == nil && e.Logger != nil {
			e.Logger.Warn("scheduler tick failed", zap.String("kind", kind), zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (e *Engine) emit(ctx context.Context, event events.Event) {
	if e.Events == nil {
		return
	}
	// Publishing is at-least-once and never blocks a state transition;
	// consumers de-duplicate on the deterministic event id.
	if err := e.Events.Publish(ctx, event); err != nil && e.Logger != nil {
		e.Logger.Warn("event publish failed",
			zap.String("order_kind", event.OrderKind),
			zap.Uint64("order_id", event.OrderID),
			zap.Error(err),
		)
	}
}

func (e *Engine) audit(ctx context.Context, item *models.Execution) {
	if err := e.Store.InsertExecution(ctx, item); err != nil && e.Logger != nil {
		e.Logger.Warn("execution audit insert failed",
			zap.String("order_kind", item.OrderKind),
			zap.Uint64("order_id", item.OrderID),
			zap.Error(err),
		)
	}
}

func quoteJSON(quote *oracle.Quote) []byte {
	if quote == nil {
		return nil
	}
	data, err := json.Marshal(quote)
	if err != nil {
		return nil
	}
	return data
}
