package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	DCAStatusActive    = "active"
	DCAStatusExecuting = "executing"
	DCAStatusPaused    = "paused"
	DCAStatusCompleted = "completed"
	DCAStatusCancelled = "cancelled"
)

const (
	FrequencyDaily   = "daily"
	FrequencyWeekly  = "weekly"
	FrequencyMonthly = "monthly"
)

type DCASchedule struct {
	ID          uint64 `gorm:"primaryKey;autoIncrement"`
	UserAddress string `gorm:"type:varchar(64);not null;index"`
	TokenIn     string `gorm:"type:varchar(64);not null"`
	TokenOut    string `gorm:"type:varchar(64);not null"`

	AmountPerOrder decimal.Decimal `gorm:"type:numeric(32,18);not null"`
	Frequency      string          `gorm:"type:varchar(10);not null"`

	ChainID int64 `gorm:"not null;index"`

	Status string `gorm:"type:varchar(20);not null;default:'active';index"`

	StartDate     time.Time  `gorm:"type:timestamptz;not null"`
	EndDate       *time.Time `gorm:"type:timestamptz"`
	NextExecution time.Time  `gorm:"type:timestamptz;not null;index"`

	TotalExecuted int64           `gorm:"not null;default:0"`
	TotalSpent    decimal.Decimal `gorm:"type:numeric(32,18);not null;default:0"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime;index"`
	UpdatedAt time.Time `gorm:"type:timestamptz;autoUpdateTime"`
}

func (DCASchedule) TableName() string {
	return "dca_schedules"
}

// NextOccurrence advances t by one frequency step. Monthly steps use
// calendar months, so Jan 31 + monthly normalizes per time.AddDate.
func NextOccurrence(frequency string, t time.Time) time.Time {
	switch frequency {
	case FrequencyWeekly:
		return t.AddDate(0, 0, 7)
	case FrequencyMonthly:
		return t.AddDate(0, 1, 0)
	default:
		return t.AddDate(0, 0, 1)
	}
}

// Exhausted reports whether advancing past occurrence would run beyond the
// schedule's end date, i.e. the schedule is complete.
func (s *DCASchedule) Exhausted(next time.Time) bool {
	return s.EndDate != nil && next.After(*s.EndDate)
}

func (s *DCASchedule) Validate() error {
	if strings.TrimSpace(s.UserAddress) == "" {
		return invalid("user_address", "required")
	}
	if strings.TrimSpace(s.TokenIn) == "" || strings.TrimSpace(s.TokenOut) == "" {
		return invalid("token_pair", "token_in and token_out are required")
	}
	if strings.EqualFold(s.TokenIn, s.TokenOut) {
		return invalid("token_pair", "token_in and token_out must differ")
	}
	if s.ChainID <= 0 {
		return invalid("chain_id", "must be positive")
	}
	if s.AmountPerOrder.LessThanOrEqual(decimal.Zero) {
		return invalid("amount_per_order", "must be positive")
	}
	switch s.Frequency {
	case FrequencyDaily, FrequencyWeekly, FrequencyMonthly:
	default:
		return invalid("frequency", "must be daily, weekly or monthly")
	}
	if s.StartDate.IsZero() {
		return invalid("start_date", "required")
	}
	if s.EndDate != nil && !s.EndDate.After(s.StartDate) {
		return invalid("end_date", "must be after start_date")
	}
	if !s.NextExecution.IsZero() && s.NextExecution.Before(s.StartDate) {
		return invalid("next_execution", "cannot precede start_date")
	}
	return nil
}
