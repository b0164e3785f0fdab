package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Stop-loss statuses. triggered is terminal regardless of execution outcome;
// a triggered-but-failed order records the failure and never re-arms.
const (
	StopLossStatusActive    = "active"
	StopLossStatusTriggered = "triggered"
	StopLossStatusCancelled = "cancelled"
)

type StopLossOrder struct {
	ID          uint64 `gorm:"primaryKey;autoIncrement"`
	UserAddress string `gorm:"type:varchar(64);not null;index"`
	TokenIn     string `gorm:"type:varchar(64);not null"`
	TokenOut    string `gorm:"type:varchar(64);not null"`

	Amount    decimal.Decimal `gorm:"type:numeric(32,18);not null"`
	StopPrice decimal.Decimal `gorm:"type:numeric(32,18);not null"`

	ChainID int64 `gorm:"not null;index"`

	Status        string `gorm:"type:varchar(20);not null;default:'active';index"`
	TxHash        string `gorm:"type:varchar(80)"`
	FailureReason string `gorm:"type:text"`

	TriggeredAt *time.Time `gorm:"type:timestamptz"`
	CreatedAt   time.Time  `gorm:"type:timestamptz;autoCreateTime;index"`
	UpdatedAt   time.Time  `gorm:"type:timestamptz;autoUpdateTime"`
}

func (StopLossOrder) TableName() string {
	return "stop_loss_orders"
}

func (o *StopLossOrder) Validate() error {
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
	if o.Amount.LessThanOrEqual(decimal.Zero) {
		return invalid("amount", "must be positive")
	}
	if o.StopPrice.LessThanOrEqual(decimal.Zero) {
		return invalid("stop_price", "must be positive")
	}
	return nil
}
