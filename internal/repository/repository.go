package repository

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"orderengine/internal/models"
)

// Store owns all persisted order state. Every lifecycle transition is a
// conditional update keyed on the expected prior status; the boolean result
// is the rows-affected outcome. false means another worker (or a user
// action) got there first, which is the claim protocol working, not an
// error. The scheduler holds no order state across ticks: every tick
// re-reads candidates from here.
type Store interface {
	// Creation. Each validates invariants and inserts with the kind's
	// initial status; a models.ValidationError never reaches the scheduler.
	CreateLimitOrder(ctx context.Context, order *models.LimitOrder) error
	CreateStopLossOrder(ctx context.Context, order *models.StopLossOrder) error
	CreateDCASchedule(ctx context.Context, schedule *models.DCASchedule) error

	GetLimitOrderByID(ctx context.Context, id uint64) (*models.LimitOrder, error)
	GetStopLossOrderByID(ctx context.Context, id uint64) (*models.StopLossOrder, error)
	GetDCAScheduleByID(ctx context.Context, id uint64) (*models.DCASchedule, error)

	ListLimitOrders(ctx context.Context, params ListOrdersParams) ([]models.LimitOrder, error)
	ListStopLossOrders(ctx context.Context, params ListOrdersParams) ([]models.StopLossOrder, error)
	ListDCASchedules(ctx context.Context, params ListOrdersParams) ([]models.DCASchedule, error)

	// Candidate sets for one scheduler tick.
	ListExpirableLimitOrders(ctx context.Context, now time.Time, limit int) ([]models.LimitOrder, error)
	ListPendingLimitOrders(ctx context.Context, now time.Time, limit int) ([]models.LimitOrder, error)
	ListActiveStopLossOrders(ctx context.Context, limit int) ([]models.StopLossOrder, error)
	ListDueDCASchedules(ctx context.Context, now time.Time, limit int) ([]models.DCASchedule, error)

	// Limit order transitions. The claim pins the filled_amount the worker
	// evaluated against, so a snapshot that went stale behind another
	// worker's partial fill can never win and dispatch the wrong remainder.
	ClaimLimitOrder(ctx context.Context, id uint64, filledAmount decimal.Decimal) (bool, error)
	FinishLimitOrder(ctx context.Context, id uint64, txHash string, filledAmount decimal.Decimal, filledAt time.Time) (bool, error)
	RecordLimitPartialFill(ctx context.Context, id uint64, txHash string, filledTotal decimal.Decimal) (bool, error)
	ReleaseLimitOrder(ctx context.Context, id uint64) (bool, error)
	FailLimitOrder(ctx context.Context, id uint64, reason string) (bool, error)
	CancelLimitOrder(ctx context.Context, id uint64) (bool, error)
	ExpireLimitOrder(ctx context.Context, id uint64) (bool, error)
	ExpireDueLimitOrders(ctx context.Context, now time.Time) (int64, error)
	ReleaseStaleLimitClaims(ctx context.Context, before time.Time) (int64, error)

	// Stop-loss transitions. Claim moves active straight to triggered:
	// the status is terminal by order semantics, so a permanent dispatch
	// failure records the error without re-arming the order.
	ClaimStopLossOrder(ctx context.Context, id uint64, triggeredAt time.Time) (bool, error)
	SettleStopLossOrder(ctx context.Context, id uint64, txHash string) (bool, error)
	RecordStopLossFailure(ctx context.Context, id uint64, reason string) (bool, error)
	ReleaseStopLossOrder(ctx context.Context, id uint64) (bool, error)
	CancelStopLossOrder(ctx context.Context, id uint64) (bool, error)

	// DCA transitions. The claim captures the occurrence being acted on:
	// the WHERE clause pins next_execution, so a worker waking up late can
	// never double-advance past an occurrence already processed.
	ClaimDCAOccurrence(ctx context.Context, id uint64, due time.Time) (bool, error)
	AdvanceDCASchedule(ctx context.Context, id uint64, next time.Time, spent decimal.Decimal, completed bool) (bool, error)
	SkipDCAOccurrence(ctx context.Context, id uint64, next time.Time, completed bool) (bool, error)
	ReleaseDCASchedule(ctx context.Context, id uint64) (bool, error)
	SuspendDCASchedule(ctx context.Context, id uint64) (bool, error)
	PauseDCASchedule(ctx context.Context, id uint64) (bool, error)
	ResumeDCASchedule(ctx context.Context, id uint64) (bool, error)
	CancelDCASchedule(ctx context.Context, id uint64) (bool, error)
	ReleaseStaleDCAClaims(ctx context.Context, before time.Time) (int64, error)

	// Execution audit trail.
	InsertExecution(ctx context.Context, item *models.Execution) error
	ListExecutions(ctx context.Context, params ListExecutionsParams) ([]models.Execution, error)
	DeleteOldExecutions(ctx context.Context, before time.Time) (int64, error)
}

type ListOrdersParams struct {
	Limit       int
	Offset      int
	UserAddress *string
	Status      *string
	ChainID     *int64
	OrderBy     string
	Asc         *bool
}

type ListExecutionsParams struct {
	Limit     int
	Offset    int
	OrderKind *string
	OrderID   *uint64
	Status    *string
	Since     *time.Time
	OrderBy   string
	Asc       *bool
}
