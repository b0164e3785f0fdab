package scheduler

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"orderengine/internal/events"
	"orderengine/internal/executor"
	"orderengine/internal/metrics"
	"orderengine/internal/models"
	"orderengine/internal/trigger"
)

func (e *Engine) scanStopLossOnce(ctx context.Context) error {
	metrics.TicksTotal.WithLabelValues(models.KindStopLoss).Inc()

	candidates, err := e.Store.ListActiveStopLossOrders(ctx, e.maxCandidates())
	if err != nil {
		return err
	}
	metrics.CandidatesSeen.WithLabelValues(models.KindStopLoss).Add(float64(len(candidates)))

	for i := range candidates {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		e.evaluateStopLoss(ctx, &candidates[i])
	}
	return nil
}

// farFromStop consults the streamed mark price to skip the REST quote for
// orders clearly out of range. Best effort only: any cache miss, staleness
// or in-range price falls through to the authoritative quote.
func (e *Engine) farFromStop(order *models.StopLossOrder) bool {
	if e.Feed == nil || e.FeedProximityPct <= 0 {
		return false
	}
	mark, ok := e.Feed.Lookup(order.TokenIn, order.TokenOut, order.ChainID)
	if !ok {
		return false
	}
	margin := decimal.NewFromFloat(1 + e.FeedProximityPct/100)
	return mark.GreaterThan(order.StopPrice.Mul(margin))
}

func (e *Engine) evaluateStopLoss(ctx context.Context, order *models.StopLossOrder) {
	if e.farFromStop(order) {
		return
	}
	quote, err := e.Oracle.GetQuote(ctx, order.TokenIn, order.TokenOut, order.Amount, order.ChainID)
	if err != nil {
		if e.Logger != nil {
			e.Logger.Debug("quote unavailable", zap.Uint64("order_id", order.ID), zap.Error(err))
		}
		return
	}

	decision := trigger.EvaluateStopLoss(order, quote)
	if !decision.Trigger {
		return
	}

	claimed, err := e.Store.ClaimStopLossOrder(ctx, order.ID, time.Now().UTC())
	if err != nil {
		if e.Logger != nil {
			e.Logger.Warn("stop-loss claim failed", zap.Uint64("order_id", order.ID), zap.Error(err))
		}
		return
	}
	if !claimed {
		metrics.ClaimsTotal.WithLabelValues(models.KindStopLoss, "lost").Inc()
		return
	}
	metrics.ClaimsTotal.WithLabelValues(models.KindStopLoss, "won").Inc()

	result, execErr := e.Executor.Execute(ctx, executor.Request{
		TokenIn:     order.TokenIn,
		TokenOut:    order.TokenOut,
		Amount:      order.Amount,
		MinOut:      quote.AmountOutMin,
		ChainID:     order.ChainID,
		UserAddress: order.UserAddress,
	})
	if execErr != nil {
		class := executor.Classify(execErr)
		switch class {
		case executor.ClassPermanent:
			// triggered is terminal: the market condition fired, so the
			// order never re-arms. The failure is recorded on the row and
			// in the audit trail for manual follow-up.
			if _, err := e.Store.RecordStopLossFailure(ctx, order.ID, execErr.Error()); err != nil && e.Logger != nil {
				e.Logger.Error("stop-loss failure record failed", zap.Uint64("order_id", order.ID), zap.Error(err))
			}
			metrics.DispatchesTotal.WithLabelValues(models.KindStopLoss, "permanent").Inc()
			e.emit(ctx, events.New(models.KindStopLoss, order.ID, models.StopLossStatusTriggered, "", ""))
		default:
			if _, err := e.Store.ReleaseStopLossOrder(ctx, order.ID); err != nil && e.Logger != nil {
				e.Logger.Error("stop-loss release failed", zap.Uint64("order_id", order.ID), zap.Error(err))
			}
			metrics.DispatchesTotal.WithLabelValues(models.KindStopLoss, "transient").Inc()
		}
		e.audit(ctx, &models.Execution{
			OrderKind:    models.KindStopLoss,
			OrderID:      order.ID,
			Status:       models.ExecutionFailed,
			ErrorClass:   string(class),
			ErrorMessage: execErr.Error(),
			Quote:        quoteJSON(quote),
		})
		if e.Logger != nil {
			e.Logger.Warn("stop-loss dispatch failed",
				zap.Uint64("order_id", order.ID),
				zap.String("class", string(class)),
				zap.Error(execErr),
			)
		}
		return
	}

	if _, err := e.Store.SettleStopLossOrder(ctx, order.ID, result.TxHash); err != nil {
		if e.Logger != nil {
			e.Logger.Error("stop-loss settle failed", zap.Uint64("order_id", order.ID), zap.Error(err))
		}
		return
	}
	metrics.DispatchesTotal.WithLabelValues(models.KindStopLoss, "filled").Inc()
	e.audit(ctx, &models.Execution{
		OrderKind:    models.KindStopLoss,
		OrderID:      order.ID,
		Status:       models.ExecutionFilled,
		TxHash:       result.TxHash,
		FilledAmount: result.FilledAmount,
		Quote:        quoteJSON(quote),
	})
	e.emit(ctx, events.New(models.KindStopLoss, order.ID, models.StopLossStatusTriggered, result.TxHash, ""))
	if e.Logger != nil {
		e.Logger.Info("stop-loss triggered",
			zap.Uint64("order_id", order.ID),
			zap.String("tx_hash", result.TxHash),
			zap.String("reason", decision.Reason),
		)
	}
}
