package gormrepository

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"orderengine/internal/models"
	"orderengine/internal/repository"
)

type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// --- creation ---------------------------------------------------------------

func (s *Store) CreateLimitOrder(ctx context.Context, order *models.LimitOrder) error {
	if s == nil || s.db == nil || order == nil {
		return nil
	}
	if err := order.Validate(); err != nil {
		return err
	}
	if order.Status == "" {
		order.Status = models.LimitStatusPending
	}
	return s.db.WithContext(ctx).Create(order).Error
}

func (s *Store) CreateStopLossOrder(ctx context.Context, order *models.StopLossOrder) error {
	if s == nil || s.db == nil || order == nil {
		return nil
	}
	if err := order.Validate(); err != nil {
		return err
	}
	if order.Status == "" {
		order.Status = models.StopLossStatusActive
	}
	return s.db.WithContext(ctx).Create(order).Error
}

func (s *Store) CreateDCASchedule(ctx context.Context, schedule *models.DCASchedule) error {
	if s == nil || s.db == nil || schedule == nil {
		return nil
	}
	if schedule.NextExecution.IsZero() {
		schedule.NextExecution = schedule.StartDate
	}
	if err := schedule.Validate(); err != nil {
		return err
	}
	if schedule.Status == "" {
		schedule.Status = models.DCAStatusActive
	}
	return s.db.WithContext(ctx).Create(schedule).Error
}

// --- reads ------------------------------------------------------------------

func (s *Store) GetLimitOrderByID(ctx context.Context, id uint64) (*models.LimitOrder, error) {
	if s == nil || s.db == nil || id == 0 {
		return nil, nil
	}
	var item models.LimitOrder
	err := s.db.WithContext(ctx).Model(&models.LimitOrder{}).Where("id = ?", id).First(&item).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &item, nil
}

func (s *Store) GetStopLossOrderByID(ctx context.Context, id uint64) (*models.StopLossOrder, error) {
	if s == nil || s.db == nil || id == 0 {
		return nil, nil
	}
	var item models.StopLossOrder
	err := s.db.WithContext(ctx).Model(&models.StopLossOrder{}).Where("id = ?", id).First(&item).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &item, nil
}

func (s *Store) GetDCAScheduleByID(ctx context.Context, id uint64) (*models.DCASchedule, error) {
	if s == nil || s.db == nil || id == 0 {
		return nil, nil
	}
	var item models.DCASchedule
	err := s.db.WithContext(ctx).Model(&models.DCASchedule{}).Where("id = ?", id).First(&item).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &item, nil
}

func (s *Store) ListLimitOrders(ctx context.Context, params repository.ListOrdersParams) ([]models.LimitOrder, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := applyOrderFilters(s.db.WithContext(ctx).Model(&models.LimitOrder{}), params)
	query = applyOrder(query, params.OrderBy, params.Asc, "created_at")
	var items []models.LimitOrder
	if err := query.Limit(normalizeLimit(params.Limit, 100)).Offset(normalizeOffset(params.Offset)).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) ListStopLossOrders(ctx context.Context, params repository.ListOrdersParams) ([]models.StopLossOrder, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := applyOrderFilters(s.db.WithContext(ctx).Model(&models.StopLossOrder{}), params)
	query = applyOrder(query, params.OrderBy, params.Asc, "created_at")
	var items []models.StopLossOrder
	if err := query.Limit(normalizeLimit(params.Limit, 100)).Offset(normalizeOffset(params.Offset)).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) ListDCASchedules(ctx context.Context, params repository.ListOrdersParams) ([]models.DCASchedule, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := applyOrderFilters(s.db.WithContext(ctx).Model(&models.DCASchedule{}), params)
	query = applyOrder(query, params.OrderBy, params.Asc, "created_at")
	var items []models.DCASchedule
	if err := query.Limit(normalizeLimit(params.Limit, 100)).Offset(normalizeOffset(params.Offset)).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// --- candidate sets ---------------------------------------------------------

func (s *Store) ListExpirableLimitOrders(ctx context.Context, now time.Time, limit int) ([]models.LimitOrder, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}
	var items []models.LimitOrder
	err := s.db.WithContext(ctx).
		Model(&models.LimitOrder{}).
		Where("status = ?", models.LimitStatusPending).
		Where("expires_at IS NOT NULL").
		Where("expires_at <= ?", now).
		Order("expires_at asc").
		Limit(normalizeLimit(limit, 200)).
		Find(&items).Error
	return items, err
}

func (s *Store) ListPendingLimitOrders(ctx context.Context, now time.Time, limit int) ([]models.LimitOrder, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}
	var items []models.LimitOrder
	err := s.db.WithContext(ctx).
		Model(&models.LimitOrder{}).
		Where("status = ?", models.LimitStatusPending).
		Where("expires_at IS NULL OR expires_at > ?", now).
		Order("created_at asc").
		Limit(normalizeLimit(limit, 200)).
		Find(&items).Error
	return items, err
}

func (s *Store) ListActiveStopLossOrders(ctx context.Context, limit int) ([]models.StopLossOrder, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var items []models.StopLossOrder
	err := s.db.WithContext(ctx).
		Model(&models.StopLossOrder{}).
		Where("status = ?", models.StopLossStatusActive).
		Order("created_at asc").
		Limit(normalizeLimit(limit, 200)).
		Find(&items).Error
	return items, err
}

func (s *Store) ListDueDCASchedules(ctx context.Context, now time.Time, limit int) ([]models.DCASchedule, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}
	var items []models.DCASchedule
	err := s.db.WithContext(ctx).
		Model(&models.DCASchedule{}).
		Where("status = ?", models.DCAStatusActive).
		Where("next_execution <= ?", now).
		Where("end_date IS NULL OR end_date > ?", now).
		Order("next_execution asc").
		Limit(normalizeLimit(limit, 200)).
		Find(&items).Error
	return items, err
}

// --- limit order transitions ------------------------------------------------
//
// Rows-affected on the conditional update is the only locking discipline:
// one statement, one expected prior status, no read-then-write.

func (s *Store) ClaimLimitOrder(ctx context.Context, id uint64, filledAmount decimal.Decimal) (bool, error) {
	if s == nil || s.db == nil || id == 0 {
		return false, nil
	}
	// Pinning filled_amount makes the claim snapshot-scoped: if another
	// worker banked a partial fill after this worker fetched the candidate,
	// the stale remainder loses here instead of dispatching.
	res := s.db.WithContext(ctx).
		Model(&models.LimitOrder{}).
		Where("id = ?", id).
		Where("status = ?", models.LimitStatusPending).
		Where("filled_amount = ?", filledAmount).
		Updates(map[string]any{"status": models.LimitStatusExecuting, "updated_at": time.Now().UTC()})
	return res.RowsAffected > 0, res.Error
}

func (s *Store) FinishLimitOrder(ctx context.Context, id uint64, txHash string, filledAmount decimal.Decimal, filledAt time.Time) (bool, error) {
	return s.transitionLimit(ctx, id, models.LimitStatusExecuting, map[string]any{
		"status":        models.LimitStatusFilled,
		"tx_hash":       txHash,
		"filled_amount": filledAmount,
		"filled_at":     filledAt,
	})
}

func (s *Store) RecordLimitPartialFill(ctx context.Context, id uint64, txHash string, filledTotal decimal.Decimal) (bool, error) {
	return s.transitionLimit(ctx, id, models.LimitStatusExecuting, map[string]any{
		"status":        models.LimitStatusPending,
		"tx_hash":       txHash,
		"filled_amount": filledTotal,
	})
}

func (s *Store) ReleaseLimitOrder(ctx context.Context, id uint64) (bool, error) {
	return s.transitionLimit(ctx, id, models.LimitStatusExecuting, map[string]any{
		"status": models.LimitStatusPending,
	})
}

func (s *Store) FailLimitOrder(ctx context.Context, id uint64, reason string) (bool, error) {
	return s.transitionLimit(ctx, id, models.LimitStatusExecuting, map[string]any{
		"status":         models.LimitStatusFailed,
		"failure_reason": reason,
	})
}

func (s *Store) CancelLimitOrder(ctx context.Context, id uint64) (bool, error) {
	return s.transitionLimit(ctx, id, models.LimitStatusPending, map[string]any{
		"status": models.LimitStatusCancelled,
	})
}

func (s *Store) ExpireLimitOrder(ctx context.Context, id uint64) (bool, error) {
	return s.transitionLimit(ctx, id, models.LimitStatusPending, map[string]any{
		"status": models.LimitStatusExpired,
	})
}

func (s *Store) ExpireDueLimitOrders(ctx context.Context, now time.Time) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}
	res := s.db.WithContext(ctx).
		Model(&models.LimitOrder{}).
		Where("status = ?", models.LimitStatusPending).
		Where("expires_at IS NOT NULL").
		Where("expires_at <= ?", now).
		Updates(map[string]any{"status": models.LimitStatusExpired, "updated_at": time.Now().UTC()})
	return res.RowsAffected, res.Error
}

// ReleaseStaleLimitClaims returns wedged in-flight claims to pending: rows a
// crashed worker left in executing, identified by updated_at older than the
// claim timeout. The cutoff must comfortably exceed the executor timeout, or
// a live claim could be re-opened while its dispatch is still in flight.
func (s *Store) ReleaseStaleLimitClaims(ctx context.Context, before time.Time) (int64, error) {
	if s == nil || s.db == nil || before.IsZero() {
		return 0, nil
	}
	res := s.db.WithContext(ctx).
		Model(&models.LimitOrder{}).
		Where("status = ?", models.LimitStatusExecuting).
		Where("updated_at < ?", before).
		Updates(map[string]any{"status": models.LimitStatusPending, "updated_at": time.Now().UTC()})
	return res.RowsAffected, res.Error
}

func (s *Store) transitionLimit(ctx context.Context, id uint64, from string, updates map[string]any) (bool, error) {
	if s == nil || s.db == nil || id == 0 {
		return false, nil
	}
	updates["updated_at"] = time.Now().UTC()
	res := s.db.WithContext(ctx).
		Model(&models.LimitOrder{}).
		Where("id = ?", id).
		Where("status = ?", from).
		Updates(updates)
	return res.RowsAffected > 0, res.Error
}

// --- stop-loss transitions --------------------------------------------------

func (s *Store) ClaimStopLossOrder(ctx context.Context, id uint64, triggeredAt time.Time) (bool, error) {
	if triggeredAt.IsZero() {
		triggeredAt = time.Now().UTC()
	}
	return s.transitionStopLoss(ctx, id, models.StopLossStatusActive, map[string]any{
		"status":       models.StopLossStatusTriggered,
		"triggered_at": triggeredAt,
	})
}

func (s *Store) SettleStopLossOrder(ctx context.Context, id uint64, txHash string) (bool, error) {
	return s.transitionStopLoss(ctx, id, models.StopLossStatusTriggered, map[string]any{
		"tx_hash": txHash,
	})
}

func (s *Store) RecordStopLossFailure(ctx context.Context, id uint64, reason string) (bool, error) {
	return s.transitionStopLoss(ctx, id, models.StopLossStatusTriggered, map[string]any{
		"failure_reason": reason,
	})
}

func (s *Store) ReleaseStopLossOrder(ctx context.Context, id uint64) (bool, error) {
	return s.transitionStopLoss(ctx, id, models.StopLossStatusTriggered, map[string]any{
		"status":       models.StopLossStatusActive,
		"triggered_at": nil,
	})
}

func (s *Store) CancelStopLossOrder(ctx context.Context, id uint64) (bool, error) {
	return s.transitionStopLoss(ctx, id, models.StopLossStatusActive, map[string]any{
		"status": models.StopLossStatusCancelled,
	})
}

func (s *Store) transitionStopLoss(ctx context.Context, id uint64, from string, updates map[string]any) (bool, error) {
	if s == nil || s.db == nil || id == 0 {
		return false, nil
	}
	updates["updated_at"] = time.Now().UTC()
	res := s.db.WithContext(ctx).
		Model(&models.StopLossOrder{}).
		Where("id = ?", id).
		Where("status = ?", from).
		Updates(updates)
	return res.RowsAffected > 0, res.Error
}

// --- DCA transitions --------------------------------------------------------

func (s *Store) ClaimDCAOccurrence(ctx context.Context, id uint64, due time.Time) (bool, error) {
	if s == nil || s.db == nil || id == 0 || due.IsZero() {
		return false, nil
	}
	// Pinning next_execution here is what makes the claim occurrence-scoped.
	res := s.db.WithContext(ctx).
		Model(&models.DCASchedule{}).
		Where("id = ?", id).
		Where("status = ?", models.DCAStatusActive).
		Where("next_execution = ?", due).
		Updates(map[string]any{"status": models.DCAStatusExecuting, "updated_at": time.Now().UTC()})
	return res.RowsAffected > 0, res.Error
}

func (s *Store) AdvanceDCASchedule(ctx context.Context, id uint64, next time.Time, spent decimal.Decimal, completed bool) (bool, error) {
	if s == nil || s.db == nil || id == 0 {
		return false, nil
	}
	status := models.DCAStatusActive
	if completed {
		status = models.DCAStatusCompleted
	}
	res := s.db.WithContext(ctx).
		Model(&models.DCASchedule{}).
		Where("id = ?", id).
		Where("status = ?", models.DCAStatusExecuting).
		Updates(map[string]any{
			"status":         status,
			"next_execution": next,
			"total_executed": gorm.Expr("total_executed + 1"),
			"total_spent":    gorm.Expr("total_spent + ?", spent),
			"updated_at":     time.Now().UTC(),
		})
	return res.RowsAffected > 0, res.Error
}

func (s *Store) SkipDCAOccurrence(ctx context.Context, id uint64, next time.Time, completed bool) (bool, error) {
	if s == nil || s.db == nil || id == 0 {
		return false, nil
	}
	status := models.DCAStatusActive
	if completed {
		status = models.DCAStatusCompleted
	}
	res := s.db.WithContext(ctx).
		Model(&models.DCASchedule{}).
		Where("id = ?", id).
		Where("status = ?", models.DCAStatusExecuting).
		Updates(map[string]any{
			"status":         status,
			"next_execution": next,
			"updated_at":     time.Now().UTC(),
		})
	return res.RowsAffected > 0, res.Error
}

func (s *Store) ReleaseDCASchedule(ctx context.Context, id uint64) (bool, error) {
	return s.transitionDCA(ctx, id, models.DCAStatusExecuting, models.DCAStatusActive)
}

func (s *Store) SuspendDCASchedule(ctx context.Context, id uint64) (bool, error) {
	return s.transitionDCA(ctx, id, models.DCAStatusExecuting, models.DCAStatusPaused)
}

func (s *Store) PauseDCASchedule(ctx context.Context, id uint64) (bool, error) {
	return s.transitionDCA(ctx, id, models.DCAStatusActive, models.DCAStatusPaused)
}

func (s *Store) ResumeDCASchedule(ctx context.Context, id uint64) (bool, error) {
	return s.transitionDCA(ctx, id, models.DCAStatusPaused, models.DCAStatusActive)
}

func (s *Store) CancelDCASchedule(ctx context.Context, id uint64) (bool, error) {
	if s == nil || s.db == nil || id == 0 {
		return false, nil
	}
	res := s.db.WithContext(ctx).
		Model(&models.DCASchedule{}).
		Where("id = ?", id).
		Where("status IN ?", []string{models.DCAStatusActive, models.DCAStatusPaused}).
		Updates(map[string]any{"status": models.DCAStatusCancelled, "updated_at": time.Now().UTC()})
	return res.RowsAffected > 0, res.Error
}

// ReleaseStaleDCAClaims is the DCA counterpart of ReleaseStaleLimitClaims.
// next_execution is untouched, so the released occurrence retries or is
// skipped by the retry window like any other missed occurrence.
func (s *Store) ReleaseStaleDCAClaims(ctx context.Context, before time.Time) (int64, error) {
	if s == nil || s.db == nil || before.IsZero() {
		return 0, nil
	}
	res := s.db.WithContext(ctx).
		Model(&models.DCASchedule{}).
		Where("status = ?", models.DCAStatusExecuting).
		Where("updated_at < ?", before).
		Updates(map[string]any{"status": models.DCAStatusActive, "updated_at": time.Now().UTC()})
	return res.RowsAffected, res.Error
}

func (s *Store) transitionDCA(ctx context.Context, id uint64, from, to string) (bool, error) {
	if s == nil || s.db == nil || id == 0 {
		return false, nil
	}
	res := s.db.WithContext(ctx).
		Model(&models.DCASchedule{}).
		Where("id = ?", id).
		Where("status = ?", from).
		Updates(map[string]any{"status": to, "updated_at": time.Now().UTC()})
	return res.RowsAffected > 0, res.Error
}

// --- execution audit --------------------------------------------------------

func (s *Store) InsertExecution(ctx context.Context, item *models.Execution) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.db.WithContext(ctx).Create(item).Error
}

func (s *Store) ListExecutions(ctx context.Context, params repository.ListExecutionsParams) ([]models.Execution, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := s.db.WithContext(ctx).Model(&models.Execution{})
	if params.OrderKind != nil && strings.TrimSpace(*params.OrderKind) != "" {
		query = query.Where("order_kind = ?", strings.TrimSpace(*params.OrderKind))
	}
	if params.OrderID != nil && *params.OrderID > 0 {
		query = query.Where("order_id = ?", *params.OrderID)
	}
	if params.Status != nil && strings.TrimSpace(*params.Status) != "" {
		query = query.Where("status = ?", strings.TrimSpace(*params.Status))
	}
	if params.Since != nil && !params.Since.IsZero() {
		query = query.Where("created_at >= ?", *params.Since)
	}
	query = applyOrder(query, params.OrderBy, params.Asc, "created_at")
	var items []models.Execution
	if err := query.Limit(normalizeLimit(params.Limit, 200)).Offset(normalizeOffset(params.Offset)).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) DeleteOldExecutions(ctx context.Context, before time.Time) (int64, error) {
	if s == nil || s.db == nil || before.IsZero() {
		return 0, nil
	}
	res := s.db.WithContext(ctx).
		Where("created_at < ?", before).
		Delete(&models.Execution{})
	return res.RowsAffected, res.Error
}

// --- helpers ----------------------------------------------------------------

func applyOrderFilters(query *gorm.DB, params repository.ListOrdersParams) *gorm.DB {
	if params.UserAddress != nil && strings.TrimSpace(*params.UserAddress) != "" {
		query = query.Where("user_address = ?", strings.TrimSpace(*params.UserAddress))
	}
	if params.Status != nil && strings.TrimSpace(*params.Status) != "" {
		query = query.Where("status = ?", strings.TrimSpace(*params.Status))
	}
	if params.ChainID != nil && *params.ChainID > 0 {
		query = query.Where("chain_id = ?", *params.ChainID)
	}
	return query
}

func applyOrder(query *gorm.DB, orderBy string, asc *bool, fallback string) *gorm.DB {
	column := strings.TrimSpace(orderBy)
	if column == "" {
		column = fallback
	}
	direction := "desc"
	if asc != nil && *asc {
		direction = "asc"
	}
	return query.Order(column + " " + direction)
}

func normalizeLimit(limit, fallback int) int {
	if limit <= 0 {
		return fallback
	}
	if limit > 500 {
		return 500
	}
	return limit
}

func normalizeOffset(offset int) int {
	if offset < 0 {
		return 0
	}
	return offset
}
