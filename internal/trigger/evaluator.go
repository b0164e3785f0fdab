package trigger

import (
	"time"

	"github.com/shopspring/decimal"

	"orderengine/internal/models"
	"orderengine/internal/oracle"
)

// Decision is the outcome of evaluating one order against one fresh quote.
// Not triggering is a normal state, never an error.
type Decision struct {
	Trigger bool
	Reason  string
}

func no(reason string) Decision  { return Decision{Trigger: false, Reason: reason} }
func yes(reason string) Decision { return Decision{Trigger: true, Reason: reason} }

// EvaluateLimit decides whether a pending limit order is executable at the
// current quote. Two conditions must both hold on the unfilled remainder:
// the achievable output satisfies the price limit, and it clears the
// (prorated) slippage floor.
func EvaluateLimit(order *models.LimitOrder, quote *oracle.Quote) Decision {
	if order == nil || quote == nil {
		return no("missing order or quote")
	}
	remaining := order.Remaining()
	if remaining.LessThanOrEqual(decimal.Zero) {
		return no("nothing left to fill")
	}
	// price_limit is the minimum token_out per token_in the user accepts.
	requiredOut := order.PriceLimit.Mul(remaining)
	if quote.AmountOut.LessThan(requiredOut) {
		return no("quote below price limit")
	}
	if quote.AmountOut.LessThan(order.RemainingOutMin()) {
		return no("quote below slippage floor")
	}
	return yes("price limit reached")
}

// EvaluateStopLoss decides whether the market has moved to or past the stop
// price in the adverse direction. The comparison direction is fixed by order
// semantics: a protective sell triggers when the unit price of token_in (in
// token_out) has fallen to or below stop_price.
func EvaluateStopLoss(order *models.StopLossOrder, quote *oracle.Quote) Decision {
	if order == nil || quote == nil {
		return no("missing order or quote")
	}
	price := quote.UnitPrice(order.Amount)
	if price.LessThanOrEqual(decimal.Zero) {
		return no("no executable price")
	}
	if price.GreaterThan(order.StopPrice) {
		return no("price above stop")
	}
	return yes("stop price breached")
}

// EvaluateDCA is time-based only: a schedule is eligible whenever its next
// occurrence is due, regardless of market price. No quote is consulted for
// the eligibility decision; the quote is fetched at dispatch time to size
// the trade.
func EvaluateDCA(schedule *models.DCASchedule, now time.Time) Decision {
	if schedule == nil {
		return no("missing schedule")
	}
	if schedule.Status != models.DCAStatusActive {
		return no("schedule not active")
	}
	if schedule.NextExecution.After(now) {
		return no("occurrence not yet due")
	}
	if schedule.EndDate != nil && !schedule.EndDate.After(now) {
		return no("schedule past end date")
	}
	return yes("occurrence due")
}
