package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Limit order statuses. pending/filled/cancelled/expired/failed are the
// durable lifecycle; executing is the in-flight claim marker held by exactly
// one worker between claim and record.
const (
	LimitStatusPending   = "pending"
	LimitStatusExecuting = "executing"
	LimitStatusFilled    = "filled"
	LimitStatusCancelled = "cancelled"
	LimitStatusExpired   = "expired"
	LimitStatusFailed    = "failed"
)

type LimitOrder struct {
	ID          uint64 `gorm:"primaryKey;autoIncrement"`
	UserAddress string `gorm:"type:varchar(64);not null;index"`
	TokenIn     string `gorm:"type:varchar(64);not null"`
	TokenOut    string `gorm:"type:varchar(64);not null"`

	AmountIn     decimal.Decimal `gorm:"type:numeric(32,18);not null"`
	AmountOutMin decimal.Decimal `gorm:"type:numeric(32,18);not null"`
	PriceLimit   decimal.Decimal `gorm:"type:numeric(32,18);not null"`

	ChainID int64 `gorm:"not null;index"`

	Status        string          `gorm:"type:varchar(20);not null;default:'pending';index"`
	TxHash        string          `gorm:"type:varchar(80)"`
	FilledAmount  decimal.Decimal `gorm:"type:numeric(32,18);not null;default:0"`
	FailureReason string          `gorm:"type:text"`

	CreatedAt time.Time  `gorm:"type:timestamptz;autoCreateTime;index"`
	UpdatedAt time.Time  `gorm:"type:timestamptz;autoUpdateTime"`
	ExpiresAt *time.Time `gorm:"type:timestamptz;index"`
	FilledAt  *time.Time `gorm:"type:timestamptz"`
}

func (LimitOrder) TableName() string {
	return "limit_orders"
}

// Remaining is the unfilled portion still eligible for execution. Partial
// fills are non-terminal: the order stays pending for the remainder.
func (o *LimitOrder) Remaining() decimal.Decimal {
	return o.AmountIn.Sub(o.FilledAmount)
}

// RemainingOutMin prorates the slippage floor to the unfilled portion.
func (o *LimitOrder) RemainingOutMin() decimal.Decimal {
	if o.AmountIn.LessThanOrEqual(decimal.Zero) {
		return o.AmountOutMin
	}
	return o.AmountOutMin.Mul(o.Remaining()).Div(o.AmountIn)
}

func (o *LimitOrder) Expired(now time.Time) bool {
	return o.ExpiresAt != nil && !o.ExpiresAt.After(now)
}

func (o *LimitOrder) Validate() error {
	if strings.TrimSpace(o.UserAddress) == "" {
		return invalid("user_address", "required")
	}
	if strings.TrimSpace(o.TokenIn) == "" || strings.TrimSpace(o.TokenOut) == "" {
		return invalid("token_pair", "token_in and token_out are required")
	}
	if strings.EqualFold(o.TokenIn, o.TokenOut) {
		return invalid("token_pair", "token_in and token_out must differ")
	}
	if o.ChainID <= 0 {
		return invalid("chain_id", "must be positive")
	}
	if o.AmountIn.LessThanOrEqual(decimal.Zero) {
		return invalid("amount_in", "must be positive")
	}
	if o.AmountOutMin.LessThanOrEqual(decimal.Zero) {
		return invalid("amount_out_min", "must be positive")
	}
	if o.PriceLimit.LessThanOrEqual(decimal.Zero) {
		return invalid("price_limit", "must be positive")
	}
	if o.FilledAmount.GreaterThan(o.AmountIn) {
		return invalid("filled_amount", "cannot exceed amount_in")
	}
	if o.ExpiresAt != nil {
		ref := o.CreatedAt
		if ref.IsZero() {
			ref = time.Now().UTC()
		}
		if !o.ExpiresAt.After(ref) {
			return invalid("expires_at", "must be after created_at")
		}
	}
	return nil
}
