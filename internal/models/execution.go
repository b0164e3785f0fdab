package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

const (
	KindLimit    = "limit"
	KindStopLoss = "stop_loss"
	KindDCA      = "dca"
)

const (
	ExecutionFilled  = "filled"
	ExecutionPartial = "partial"
	ExecutionFailed  = "failed"
	ExecutionSkipped = "skipped"
)

// Execution is the durable audit trail: one row per dispatch attempt (or
// per skipped DCA occurrence). Terminal order rows are never rewritten to
// describe a failure; the failure lands here.
type Execution struct {
	ID         uint64     `gorm:"primaryKey;autoIncrement"`
	OrderKind  string     `gorm:"type:varchar(12);not null;index:idx_executions_order"`
	OrderID    uint64     `gorm:"not null;index:idx_executions_order"`
	Occurrence *time.Time `gorm:"type:timestamptz"`

	Status       string          `gorm:"type:varchar(12);not null;index"`
	TxHash       string          `gorm:"type:varchar(80)"`
	FilledAmount decimal.Decimal `gorm:"type:numeric(32,18);not null;default:0"`

	ErrorClass   string `gorm:"type:varchar(20)"`
	ErrorMessage string `gorm:"type:text"`

	Quote datatypes.JSON `gorm:"type:jsonb"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime;index"`
}

func (Execution) TableName() string {
	return "executions"
}
