package trigger

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"orderengine/internal/models"
	"orderengine/internal/oracle"
)

func dec(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func TestEvaluateLimit_TriggersAtLimit(t *testing.T) {
	order := &models.LimitOrder{
		AmountIn:     dec(10),
		AmountOutMin: dec(19),
		PriceLimit:   dec(2),
	}
	d := EvaluateLimit(order, &oracle.Quote{AmountOut: dec(20)})
	if !d.Trigger {
		t.Fatalf("want trigger at exact limit, got %q", d.Reason)
	}
}

func TestEvaluateLimit_HoldsBelowLimit(t *testing.T) {
	order := &models.LimitOrder{
		AmountIn:     dec(10),
		AmountOutMin: dec(15),
		PriceLimit:   dec(2),
	}
	d := EvaluateLimit(order, &oracle.Quote{AmountOut: dec(19)})
	if d.Trigger {
		t.Fatalf("should not trigger below limit")
	}
}

func TestEvaluateLimit_SlippageFloorBlocks(t *testing.T) {
	// Price limit is met but the quote is under the slippage floor.
	order := &models.LimitOrder{
		AmountIn:     dec(10),
		AmountOutMin: dec(25),
		PriceLimit:   dec(2),
	}
	d := EvaluateLimit(order, &oracle.Quote{AmountOut: dec(22)})
	if d.Trigger {
		t.Fatalf("should not trigger under the slippage floor")
	}
}

func TestEvaluateLimit_ProratesForPartialFill(t *testing.T) {
	order := &models.LimitOrder{
		AmountIn:     dec(1000),
		AmountOutMin: dec(900),
		PriceLimit:   dec(1),
		FilledAmount: dec(400),
	}
	// Remainder is 600; prorated floor is 540 and required out is 600.
	d := EvaluateLimit(order, &oracle.Quote{AmountOut: dec(600)})
	if !d.Trigger {
		t.Fatalf("want trigger on the remainder, got %q", d.Reason)
	}
	d = EvaluateLimit(order, &oracle.Quote{AmountOut: dec(539)})
	if d.Trigger {
		t.Fatalf("should not trigger under prorated requirements")
	}
}

func TestEvaluateLimit_FullyFilled(t *testing.T) {
	order := &models.LimitOrder{
		AmountIn:     dec(10),
		AmountOutMin: dec(19),
		PriceLimit:   dec(2),
		FilledAmount: dec(10),
	}
	d := EvaluateLimit(order, &oracle.Quote{AmountOut: dec(100)})
	if d.Trigger {
		t.Fatalf("should not trigger with nothing left to fill")
	}
}

func TestEvaluateStopLoss_Direction(t *testing.T) {
	order := &models.StopLossOrder{
		Amount:    dec(2),
		StopPrice: dec(100),
	}
	// Unit price 95: at or below stop, triggers.
	if d := EvaluateStopLoss(order, &oracle.Quote{AmountOut: dec(190)}); !d.Trigger {
		t.Fatalf("want trigger at unit price 95, got %q", d.Reason)
	}
	// Unit price exactly 100: still triggers.
	if d := EvaluateStopLoss(order, &oracle.Quote{AmountOut: dec(200)}); !d.Trigger {
		t.Fatalf("want trigger at exact stop price, got %q", d.Reason)
	}
	// Unit price 105: holds.
	if d := EvaluateStopLoss(order, &oracle.Quote{AmountOut: dec(210)}); d.Trigger {
		t.Fatalf("should not trigger above stop price")
	}
}

func TestEvaluateDCA_TimeOnly(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	schedule := &models.DCASchedule{
		Status:        models.DCAStatusActive,
		NextExecution: now.Add(-time.Minute),
	}
	if d := EvaluateDCA(schedule, now); !d.Trigger {
		t.Fatalf("want trigger for due occurrence, got %q", d.Reason)
	}

	schedule.NextExecution = now.Add(time.Minute)
	if d := EvaluateDCA(schedule, now); d.Trigger {
		t.Fatalf("should not trigger before the occurrence is due")
	}

	schedule.NextExecution = now.Add(-time.Minute)
	schedule.Status = models.DCAStatusPaused
	if d := EvaluateDCA(schedule, now); d.Trigger {
		t.Fatalf("should not trigger while paused")
	}

	schedule.Status = models.DCAStatusActive
	end := now.Add(-time.Second)
	schedule.EndDate = &end
	if d := EvaluateDCA(schedule, now); d.Trigger {
		t.Fatalf("should not trigger past the end date")
	}
}
