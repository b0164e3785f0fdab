package oracle

import (
	"context"

	"github.com/shopspring/decimal"
)

// Quote is the current executable pricing for swapping amountIn of a pair.
type Quote struct {
	AmountOut    decimal.Decimal `json:"amount_out"`
	AmountOutMin decimal.Decimal `json:"amount_out_min"`
	PriceImpact  decimal.Decimal `json:"price_impact"`
	GasEstimate  decimal.Decimal `json:"gas_estimate"`
}

// UnitPrice is token_out per one token_in at this quote.
func (q Quote) UnitPrice(amountIn decimal.Decimal) decimal.Decimal {
	if amountIn.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero
	}
	return q.AmountOut.Div(amountIn)
}

// PriceOracle is the external quote aggregator. Calls carry a bounded
// timeout; a timeout is a transient failure, never "trigger not met".
type PriceOracle interface {
	GetQuote(ctx context.Context, tokenIn, tokenOut string, amountIn decimal.Decimal, chainID int64) (*Quote, error)
}
