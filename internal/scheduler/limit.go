package scheduler

import (
	"context"
	"time"

	"go.uber.org/zap"

	"orderengine/internal/events"
	"orderengine/internal/executor"
	"orderengine/internal/metrics"
	"orderengine/internal/models"
	"orderengine/internal/oracle"
	"orderengine/internal/trigger"
)

func (e *Engine) scanLimitOnce(ctx context.Context) error {
	now := time.Now().UTC()
	metrics.TicksTotal.WithLabelValues(models.KindLimit).Inc()

	// Expiry wins over execution: sweep due orders before evaluating, so
	// an order whose deadline passed is never dispatched on the same tick.
	if err := e.expireDueLimits(ctx, now); err != nil {
		return err
	}

	candidates, err := e.Store.ListPendingLimitOrders(ctx, now, e.maxCandidates())
	if err != nil {
		return err
	}
	metrics.CandidatesSeen.WithLabelValues(models.KindLimit).Add(float64(len(candidates)))

	for i := range candidates {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		e.evaluateLimit(ctx, &candidates[i], now)
	}
	return nil
}

func (e *Engine) expireDueLimits(ctx context.Context, now time.Time) error {
	due, err := e.Store.ListExpirableLimitOrders(ctx, now, e.maxCandidates())
	if err != nil {
		return err
	}
	for i := range due {
		order := &due[i]
		ok, err := e.Store.ExpireLimitOrder(ctx, order.ID)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		metrics.ExpiredTotal.Inc()
		e.emit(ctx, events.New(models.KindLimit, order.ID, models.LimitStatusExpired, "", ""))
	}
	return nil
}

func (e *Engine) evaluateLimit(ctx context.Context, order *models.LimitOrder, now time.Time) {
	if order.Expired(now) {
		return
	}
	remaining := order.Remaining()
	quote, err := e.Oracle.GetQuote(ctx, order.TokenIn, order.TokenOut, remaining, order.ChainID)
	if err != nil {
		// Quote failures are transient; the order was never claimed, so
		// the next tick simply retries.
		if e.Logger != nil {
			e.Logger.Debug("quote unavailable", zap.Uint64("order_id", order.ID), zap.Error(err))
		}
		return
	}

	decision := trigger.EvaluateLimit(order, quote)
	if !decision.Trigger {
		return
	}

	claimed, err := e.Store.ClaimLimitOrder(ctx, order.ID, order.FilledAmount)
	if err != nil {
		if e.Logger != nil {
			e.Logger.Warn("limit claim failed", zap.Uint64("order_id", order.ID), zap.Error(err))
		}
		return
	}
	if !claimed {
		// Another worker (or a user cancel) won the race. Not an error.
		metrics.ClaimsTotal.WithLabelValues(models.KindLimit, "lost").Inc()
		return
	}
	metrics.ClaimsTotal.WithLabelValues(models.KindLimit, "won").Inc()

	result, execErr := e.Executor.Execute(ctx, executor.Request{
		TokenIn:     order.TokenIn,
		TokenOut:    order.TokenOut,
		Amount:      remaining,
		MinOut:      order.RemainingOutMin(),
		ChainID:     order.ChainID,
		UserAddress: order.UserAddress,
	})
	if execErr != nil {
		e.recordLimitFailure(ctx, order, quote, execErr)
		return
	}

	newTotal := order.FilledAmount.Add(result.FilledAmount)
	if newTotal.GreaterThanOrEqual(order.AmountIn) {
		if _, err := e.Store.FinishLimitOrder(ctx, order.ID, result.TxHash, newTotal, time.Now().UTC()); err != nil {
			if e.Logger != nil {
				e.Logger.Error("limit finish failed", zap.Uint64("order_id", order.ID), zap.Error(err))
			}
			return
		}
		metrics.DispatchesTotal.WithLabelValues(models.KindLimit, "filled").Inc()
		e.audit(ctx, &models.Execution{
			OrderKind:    models.KindLimit,
			OrderID:      order.ID,
			Status:       models.ExecutionFilled,
			TxHash:       result.TxHash,
			FilledAmount: result.FilledAmount,
			Quote:        quoteJSON(quote),
		})
		e.emit(ctx, events.New(models.KindLimit, order.ID, models.LimitStatusFilled, result.TxHash, ""))
		if e.Logger != nil {
			e.Logger.Info("limit order filled",
				zap.Uint64("order_id", order.ID),
				zap.String("tx_hash", result.TxHash),
				zap.String("filled_amount", result.FilledAmount.String()),
			)
		}
		return
	}

	// Partial fill: bank the progress and return the order to pending so
	// the remainder stays eligible on later ticks.
	if _, err := e.Store.RecordLimitPartialFill(ctx, order.ID, result.TxHash, newTotal); err != nil {
		if e.Logger != nil {
			e.Logger.Error("limit partial fill record failed", zap.Uint64("order_id", order.ID), zap.Error(err))
		}
		return
	}
	metrics.DispatchesTotal.WithLabelValues(models.KindLimit, "partial").Inc()
	e.audit(ctx, &models.Execution{
		OrderKind:    models.KindLimit,
		OrderID:      order.ID,
		Status:       models.ExecutionPartial,
		TxHash:       result.TxHash,
		FilledAmount: result.FilledAmount,
		Quote:        quoteJSON(quote),
	})
	// The tx hash keys the event so each partial fill has its own identity.
	e.emit(ctx, events.New(models.KindLimit, order.ID, "partial_fill", result.TxHash, result.TxHash))
}

func (e *Engine) recordLimitFailure(ctx context.Context, order *models.LimitOrder, quote *oracle.Quote, execErr error) {
	class := executor.Classify(execErr)
	switch class {
	case executor.ClassPermanent:
		if _, err := e.Store.FailLimitOrder(ctx, order.ID, execErr.Error()); err != nil && e.Logger != nil {
			e.Logger.Error("limit fail transition failed", zap.Uint64("order_id", order.ID), zap.Error(err))
		}
		metrics.DispatchesTotal.WithLabelValues(models.KindLimit, "permanent").Inc()
		e.emit(ctx, events.New(models.KindLimit, order.ID, models.LimitStatusFailed, "", ""))
	default:
		if _, err := e.Store.ReleaseLimitOrder(ctx, order.ID); err != nil && e.Logger != nil {
			e.Logger.Error("limit release failed", zap.Uint64("order_id", order.ID), zap.Error(err))
		}
		metrics.DispatchesTotal.WithLabelValues(models.KindLimit, "transient").Inc()
	}
	e.audit(ctx, &models.Execution{
		OrderKind:    models.KindLimit,
		OrderID:      order.ID,
		Status:       models.ExecutionFailed,
		ErrorClass:   string(class),
		ErrorMessage: execErr.Error(),
		Quote:        quoteJSON(quote),
	})
	if e.Logger != nil {
		e.Logger.Warn("limit dispatch failed",
			zap.Uint64("order_id", order.ID),
			zap.String("class", string(class)),
			zap.Error(execErr),
		)
	}
}
