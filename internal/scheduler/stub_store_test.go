package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"orderengine/internal/models"
	"orderengine/internal/repository"
)

// stubStore is a test-only in-memory implementation of repository.Store.
// Transitions use the same conditional-update semantics as the SQL layer:
// the boolean result is rows-affected, and every mutation holds the mutex so
// concurrent claim tests exercise the real race.
type stubStore struct {
	mu         sync.Mutex
	nextID     uint64
	limits     map[uint64]*models.LimitOrder
	stops      map[uint64]*models.StopLossOrder
	dcas       map[uint64]*models.DCASchedule
	executions []models.Execution
}

func newStubStore() *stubStore {
	return &stubStore{
		limits: map[uint64]*models.LimitOrder{},
		stops:  map[uint64]*models.StopLossOrder{},
		dcas:   map[uint64]*models.DCASchedule{},
	}
}

func (s *stubStore) id() uint64 {
	s.nextID++
	return s.nextID
}

func (s *stubStore) CreateLimitOrder(ctx context.Context, order *models.LimitOrder) error {
	if err := order.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	order.ID = s.id()
	if order.Status == "" {
		order.Status = models.LimitStatusPending
	}
	cp := *order
	s.limits[order.ID] = &cp
	return nil
}

func (s *stubStore) CreateStopLossOrder(ctx context.Context, order *models.StopLossOrder) error {
	if err := order.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	order.ID = s.id()
	if order.Status == "" {
		order.Status = models.StopLossStatusActive
	}
	cp := *order
	s.stops[order.ID] = &cp
	return nil
}

func (s *stubStore) CreateDCASchedule(ctx context.Context, schedule *models.DCASchedule) error {
	if schedule.NextExecution.IsZero() {
		schedule.NextExecution = schedule.StartDate
	}
	if err := schedule.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	schedule.ID = s.id()
	if schedule.Status == "" {
		schedule.Status = models.DCAStatusActive
	}
	cp := *schedule
	s.dcas[schedule.ID] = &cp
	return nil
}

func (s *stubStore) GetLimitOrderByID(ctx context.Context, id uint64) (*models.LimitOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if o, ok := s.limits[id]; ok {
		cp := *o
		return &cp, nil
	}
	return nil, nil
}

func (s *stubStore) GetStopLossOrderByID(ctx context.Context, id uint64) (*models.StopLossOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if o, ok := s.stops[id]; ok {
		cp := *o
		return &cp, nil
	}
	return nil, nil
}

func (s *stubStore) GetDCAScheduleByID(ctx context.Context, id uint64) (*models.DCASchedule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if o, ok := s.dcas[id]; ok {
		cp := *o
		return &cp, nil
	}
	return nil, nil
}

func (s *stubStore) ListLimitOrders(ctx context.Context, params repository.ListOrdersParams) ([]models.LimitOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.LimitOrder
	for _, o := range s.limits {
		out = append(out, *o)
	}
	return out, nil
}

func (s *stubStore) ListStopLossOrders(ctx context.Context, params repository.ListOrdersParams) ([]models.StopLossOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.StopLossOrder
	for _, o := range s.stops {
		out = append(out, *o)
	}
	return out, nil
}

func (s *stubStore) ListDCASchedules(ctx context.Context, params repository.ListOrdersParams) ([]models.DCASchedule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.DCASchedule
	for _, o := range s.dcas {
		out = append(out, *o)
	}
	return out, nil
}

func (s *stubStore) ListExpirableLimitOrders(ctx context.Context, now time.Time, limit int) ([]models.LimitOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.LimitOrder
	for _, o := range s.limits {
		if o.Status == models.LimitStatusPending && o.Expired(now) {
			out = append(out, *o)
		}
	}
	return out, nil
}

func (s *stubStore) ListPendingLimitOrders(ctx context.Context, now time.Time, limit int) ([]models.LimitOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.LimitOrder
	for _, o := range s.limits {
		if o.Status == models.LimitStatusPending && !o.Expired(now) {
			out = append(out, *o)
		}
	}
	return out, nil
}

func (s *stubStore) ListActiveStopLossOrders(ctx context.Context, limit int) ([]models.StopLossOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.StopLossOrder
	for _, o := range s.stops {
		if o.Status == models.StopLossStatusActive {
			out = append(out, *o)
		}
	}
	return out, nil
}

func (s *stubStore) ListDueDCASchedules(ctx context.Context, now time.Time, limit int) ([]models.DCASchedule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.DCASchedule
	for _, d := range s.dcas {
		if d.Status != models.DCAStatusActive || d.NextExecution.After(now) {
			continue
		}
		if d.EndDate != nil && !d.EndDate.After(now) {
			continue
		}
		out = append(out, *d)
	}
	return out, nil
}

func (s *stubStore) ClaimLimitOrder(ctx context.Context, id uint64, filledAmount decimal.Decimal) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.limits[id]
	if !ok || o.Status != models.LimitStatusPending || o.FilledAmount.Cmp(filledAmount) != 0 {
		return false, nil
	}
	o.Status = models.LimitStatusExecuting
	o.UpdatedAt = time.Now().UTC()
	return true, nil
}

func (s *stubStore) FinishLimitOrder(ctx context.Context, id uint64, txHash string, filledAmount decimal.Decimal, filledAt time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.limits[id]
	if !ok || o.Status != models.LimitStatusExecuting {
		return false, nil
	}
	o.Status = models.LimitStatusFilled
	o.TxHash = txHash
	o.FilledAmount = filledAmount
	o.FilledAt = &filledAt
	return true, nil
}

func (s *stubStore) RecordLimitPartialFill(ctx context.Context, id uint64, txHash string, filledTotal decimal.Decimal) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.limits[id]
	if !ok || o.Status != models.LimitStatusExecuting {
		return false, nil
	}
	o.Status = models.LimitStatusPending
	o.TxHash = txHash
	o.FilledAmount = filledTotal
	return true, nil
}

func (s *stubStore) ReleaseLimitOrder(ctx context.Context, id uint64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.limits[id]
	if !ok || o.Status != models.LimitStatusExecuting {
		return false, nil
	}
	o.Status = models.LimitStatusPending
	return true, nil
}

func (s *stubStore) FailLimitOrder(ctx context.Context, id uint64, reason string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.limits[id]
	if !ok || o.Status != models.LimitStatusExecuting {
		return false, nil
	}
	o.Status = models.LimitStatusFailed
	o.FailureReason = reason
	return true, nil
}

func (s *stubStore) CancelLimitOrder(ctx context.Context, id uint64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.limits[id]
	if !ok || o.Status != models.LimitStatusPending {
		return false, nil
	}
	o.Status = models.LimitStatusCancelled
	return true, nil
}

func (s *stubStore) ExpireLimitOrder(ctx context.Context, id uint64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.limits[id]
	if !ok || o.Status != models.LimitStatusPending {
		return false, nil
	}
	o.Status = models.LimitStatusExpired
	return true, nil
}

func (s *stubStore) ReleaseStaleLimitClaims(ctx context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, o := range s.limits {
		if o.Status == models.LimitStatusExecuting && o.UpdatedAt.Before(before) {
			o.Status = models.LimitStatusPending
			o.UpdatedAt = time.Now().UTC()
			n++
		}
	}
	return n, nil
}

func (s *stubStore) ExpireDueLimitOrders(ctx context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, o := range s.limits {
		if o.Status == models.LimitStatusPending && o.Expired(now) {
			o.Status = models.LimitStatusExpired
			n++
		}
	}
	return n, nil
}

func (s *stubStore) ClaimStopLossOrder(ctx context.Context, id uint64, triggeredAt time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.stops[id]
	if !ok || o.Status != models.StopLossStatusActive {
		return false, nil
	}
	o.Status = models.StopLossStatusTriggered
	o.TriggeredAt = &triggeredAt
	return true, nil
}

func (s *stubStore) SettleStopLossOrder(ctx context.Context, id uint64, txHash string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.stops[id]
	if !ok || o.Status != models.StopLossStatusTriggered {
		return false, nil
	}
	o.TxHash = txHash
	return true, nil
}

func (s *stubStore) RecordStopLossFailure(ctx context.Context, id uint64, reason string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.stops[id]
	if !ok || o.Status != models.StopLossStatusTriggered {
		return false, nil
	}
	o.FailureReason = reason
	return true, nil
}

func (s *stubStore) ReleaseStopLossOrder(ctx context.Context, id uint64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.stops[id]
	if !ok || o.Status != models.StopLossStatusTriggered {
		return false, nil
	}
	o.Status = models.StopLossStatusActive
	o.TriggeredAt = nil
	return true, nil
}

func (s *stubStore) CancelStopLossOrder(ctx context.Context, id uint64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.stops[id]
	if !ok || o.Status != models.StopLossStatusActive {
		return false, nil
	}
	o.Status = models.StopLossStatusCancelled
	return true, nil
}

func (s *stubStore) ClaimDCAOccurrence(ctx context.Context, id uint64, due time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.dcas[id]
	if !ok || d.Status != models.DCAStatusActive || !d.NextExecution.Equal(due) {
		return false, nil
	}
	d.Status = models.DCAStatusExecuting
	d.UpdatedAt = time.Now().UTC()
	return true, nil
}

func (s *stubStore) ReleaseStaleDCAClaims(ctx context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, d := range s.dcas {
		if d.Status == models.DCAStatusExecuting && d.UpdatedAt.Before(before) {
			d.Status = models.DCAStatusActive
			d.UpdatedAt = time.Now().UTC()
			n++
		}
	}
	return n, nil
}

func (s *stubStore) AdvanceDCASchedule(ctx context.Context, id uint64, next time.Time, spent decimal.Decimal, completed bool) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.dcas[id]
	if !ok || d.Status != models.DCAStatusExecuting {
		return false, nil
	}
	d.NextExecution = next
	d.TotalExecuted++
	d.TotalSpent = d.TotalSpent.Add(spent)
	if completed {
		d.Status = models.DCAStatusCompleted
	} else {
		d.Status = models.DCAStatusActive
	}
	return true, nil
}

func (s *stubStore) SkipDCAOccurrence(ctx context.Context, id uint64, next time.Time, completed bool) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.dcas[id]
	if !ok || d.Status != models.DCAStatusExecuting {
		return false, nil
	}
	d.NextExecution = next
	if completed {
		d.Status = models.DCAStatusCompleted
	} else {
		d.Status = models.DCAStatusActive
	}
	return true, nil
}

func (s *stubStore) ReleaseDCASchedule(ctx context.Context, id uint64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.dcas[id]
	if !ok || d.Status != models.DCAStatusExecuting {
		return false, nil
	}
	d.Status = models.DCAStatusActive
	return true, nil
}

func (s *stubStore) SuspendDCASchedule(ctx context.Context, id uint64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.dcas[id]
	if !ok || d.Status != models.DCAStatusExecuting {
		return false, nil
	}
	d.Status = models.DCAStatusPaused
	return true, nil
}

func (s *stubStore) PauseDCASchedule(ctx context.Context, id uint64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.dcas[id]
	if !ok || d.Status != models.DCAStatusActive {
		return false, nil
	}
	d.Status = models.DCAStatusPaused
	return true, nil
}

func (s *stubStore) ResumeDCASchedule(ctx context.Context, id uint64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.dcas[id]
	if !ok || d.Status != models.DCAStatusPaused {
		return false, nil
	}
	d.Status = models.DCAStatusActive
	return true, nil
}

func (s *stubStore) CancelDCASchedule(ctx context.Context, id uint64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.dcas[id]
	if !ok || (d.Status != models.DCAStatusActive && d.Status != models.DCAStatusPaused) {
		return false, nil
	}
	d.Status = models.DCAStatusCancelled
	return true, nil
}

func (s *stubStore) InsertExecution(ctx context.Context, item *models.Execution) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	item.ID = s.id()
	item.CreatedAt = time.Now().UTC()
	s.executions = append(s.executions, *item)
	return nil
}

func (s *stubStore) ListExecutions(ctx context.Context, params repository.ListExecutionsParams) ([]models.Execution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Execution, len(s.executions))
	copy(out, s.executions)
	return out, nil
}

func (s *stubStore) DeleteOldExecutions(ctx context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var kept []models.Execution
	var n int64
	for _, e := range s.executions {
		if e.CreatedAt.Before(before) {
			n++
			continue
		}
		kept = append(kept, e)
	}
	s.executions = kept
	return n, nil
}

func (s *stubStore) executionStatuses() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.executions))
	for _, e := range s.executions {
		out = append(out, e.Status)
	}
	return out
}

var _ repository.Store = (*stubStore)(nil)
