package scheduler

import (
	"context"
	"time"

	"go.uber.org/zap"

	"orderengine/internal/events"
	"orderengine/internal/executor"
	"orderengine/internal/metrics"
	"orderengine/internal/models"
	"orderengine/internal/trigger"
)

func (e *Engine) scanDCAOnce(ctx context.Context) error {
	now := time.Now().UTC()
	metrics.TicksTotal.WithLabelValues(models.KindDCA).Inc()

	candidates, err := e.Store.ListDueDCASchedules(ctx, now, e.maxCandidates())
	if err != nil {
		return err
	}
	metrics.CandidatesSeen.WithLabelValues(models.KindDCA).Add(float64(len(candidates)))

	for i := range candidates {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		e.evaluateDCA(ctx, &candidates[i], now)
	}
	return nil
}

func (e *Engine) evaluateDCA(ctx context.Context, schedule *models.DCASchedule, now time.Time) {
	decision := trigger.EvaluateDCA(schedule, now)
	if !decision.Trigger {
		return
	}

	// due is the occurrence this worker is acting on. The claim pins it, so
	// the advance below can never jump a schedule past an occurrence some
	// other worker already processed.
	due := schedule.NextExecution

	if now.Sub(due) > e.retryWindow() {
		e.skipDCAOccurrence(ctx, schedule, due)
		return
	}

	// Size the trade before claiming: a quote outage then costs nothing
	// but this tick.
	quote, err := e.Oracle.GetQuote(ctx, schedule.TokenIn, schedule.TokenOut, schedule.AmountPerOrder, schedule.ChainID)
	if err != nil {
		if e.Logger != nil {
			e.Logger.Debug("quote unavailable", zap.Uint64("schedule_id", schedule.ID), zap.Error(err))
		}
		return
	}

	claimed, err := e.Store.ClaimDCAOccurrence(ctx, schedule.ID, due)
	if err != nil {
		if e.Logger != nil {
			e.Logger.Warn("dca claim failed", zap.Uint64("schedule_id", schedule.ID), zap.Error(err))
		}
		return
	}
	if !claimed {
		metrics.ClaimsTotal.WithLabelValues(models.KindDCA, "lost").Inc()
		return
	}
	metrics.ClaimsTotal.WithLabelValues(models.KindDCA, "won").Inc()

	result, execErr := e.Executor.Execute(ctx, executor.Request{
		TokenIn:     schedule.TokenIn,
		TokenOut:    schedule.TokenOut,
		Amount:      schedule.AmountPerOrder,
		MinOut:      quote.AmountOutMin,
		ChainID:     schedule.ChainID,
		UserAddress: schedule.UserAddress,
	})
	if execErr != nil {
		class := executor.Classify(execErr)
		switch class {
		case executor.ClassPermanent:
			// Something about the schedule itself is broken (allowance,
			// pair, address). Park it paused for the user to fix; retrying
			// the same occurrence would fail the same way.
			if _, err := e.Store.SuspendDCASchedule(ctx, schedule.ID); err != nil && e.Logger != nil {
				e.Logger.Error("dca suspend failed", zap.Uint64("schedule_id", schedule.ID), zap.Error(err))
			}
			metrics.DispatchesTotal.WithLabelValues(models.KindDCA, "permanent").Inc()
			e.emit(ctx, events.New(models.KindDCA, schedule.ID, models.DCAStatusPaused, "", occurrenceKey(due)))
		default:
			// next_execution is untouched, so the same occurrence retries
			// on the next tick until the retry window closes.
			if _, err := e.Store.ReleaseDCASchedule(ctx, schedule.ID); err != nil && e.Logger != nil {
				e.Logger.Error("dca release failed", zap.Uint64("schedule_id", schedule.ID), zap.Error(err))
			}
			metrics.DispatchesTotal.WithLabelValues(models.KindDCA, "transient").Inc()
		}
		e.audit(ctx, &models.Execution{
			OrderKind:    models.KindDCA,
			OrderID:      schedule.ID,
			Occurrence:   &due,
			Status:       models.ExecutionFailed,
			ErrorClass:   string(class),
			ErrorMessage: execErr.Error(),
			Quote:        quoteJSON(quote),
		})
		if e.Logger != nil {
			e.Logger.Warn("dca dispatch failed",
				zap.Uint64("schedule_id", schedule.ID),
				zap.String("class", string(class)),
				zap.Error(execErr),
			)
		}
		return
	}

	next := models.NextOccurrence(schedule.Frequency, due)
	completed := schedule.Exhausted(next)
	if _, err := e.Store.AdvanceDCASchedule(ctx, schedule.ID, next, schedule.AmountPerOrder, completed); err != nil {
		if e.Logger != nil {
			e.Logger.Error("dca advance failed", zap.Uint64("schedule_id", schedule.ID), zap.Error(err))
		}
		return
	}
	metrics.DispatchesTotal.WithLabelValues(models.KindDCA, "filled").Inc()
	e.audit(ctx, &models.Execution{
		OrderKind:    models.KindDCA,
		OrderID:      schedule.ID,
		Occurrence:   &due,
		Status:       models.ExecutionFilled,
		TxHash:       result.TxHash,
		FilledAmount: result.FilledAmount,
		Quote:        quoteJSON(quote),
	})
	e.emit(ctx, events.New(models.KindDCA, schedule.ID, "executed", result.TxHash, occurrenceKey(due)))
	if completed {
		e.emit(ctx, events.New(models.KindDCA, schedule.ID, models.DCAStatusCompleted, "", ""))
	}
	if e.Logger != nil {
		e.Logger.Info("dca occurrence executed",
			zap.Uint64("schedule_id", schedule.ID),
			zap.Time("occurrence", due),
			zap.String("tx_hash", result.TxHash),
			zap.Bool("completed", completed),
		)
	}
}

// skipDCAOccurrence advances past an occurrence that went stale while the
// system was down or the pair kept failing. One occurrence per tick: a long
// outage drains one skipped (and audited) occurrence at a time.
func (e *Engine) skipDCAOccurrence(ctx context.Context, schedule *models.DCASchedule, due time.Time) {
	claimed, err := e.Store.ClaimDCAOccurrence(ctx, schedule.ID, due)
	if err != nil || !claimed {
		if err != nil && e.Logger != nil {
			e.Logger.Warn("dca claim failed", zap.Uint64("schedule_id", schedule.ID), zap.Error(err))
		}
		return
	}
	next := models.NextOccurrence(schedule.Frequency, due)
	completed := schedule.Exhausted(next)
	if _, err := e.Store.SkipDCAOccurrence(ctx, schedule.ID, next, completed); err != nil {
		if e.Logger != nil {
			e.Logger.Error("dca skip failed", zap.Uint64("schedule_id", schedule.ID), zap.Error(err))
		}
		return
	}
	e.audit(ctx, &models.Execution{
		OrderKind:    models.KindDCA,
		OrderID:      schedule.ID,
		Occurrence:   &due,
		Status:       models.ExecutionSkipped,
		ErrorMessage: "occurrence missed beyond retry window",
	})
	if completed {
		e.emit(ctx, events.New(models.KindDCA, schedule.ID, models.DCAStatusCompleted, "", ""))
	}
	if e.Logger != nil {
		e.Logger.Info("dca occurrence skipped",
			zap.Uint64("schedule_id", schedule.ID),
			zap.Time("occurrence", due),
			zap.Bool("completed", completed),
		)
	}
}

func occurrenceKey(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
