package payments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/warp/ops-console/core"
	"github.com/warp/ops-console/events"
)

const (
	DefaultListLimit = 100
	MaxListLimit     = 500
)

// RefundExceedsError is returned when a refund would return more than was captured.
type RefundExceedsError struct {
	TransactionID string
	Captured      core.Money
	Committed     core.Money // approved + pending refunds before this one
	Requested     core.Money
}

func (e *RefundExceedsError) Error() string {
	return fmt.Sprintf("refund of %s exceeds remaining %s on transaction %s",
		e.Requested, e.Captured.Sub(e.Committed), e.TransactionID)
}

func (e *RefundExceedsError) Unwrap() error {
	return core.ErrConflict
}

// Service implements the payments operations.
type Service struct {
	store  Store
	events events.Publisher
	audit  core.AuditLog
	log    *zap.Logger
	now    func() time.Time
}

func NewService(store Store, pub events.Publisher, audit core.AuditLog, log *zap.Logger) *Service {
	return &Service{
		store:  store,
		events: pub,
		audit:  audit,
		log:    log.Named("payments"),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// RecordTransaction stores a payment reported by the ride backend.
func (s *Service) RecordTransaction(ctx context.Context, tx Transaction) (*Transaction, error) {
	var missing []string
	if tx.RideID == "" {
		missing = append(missing, "ride_id")
	}
	if tx.RiderID == "" {
		missing = append(missing, "rider_id")
	}
	if tx.Method == "" {
		missing = append(missing, "method")
	}
	if len(missing) > 0 {
		return nil, core.Missing(missing...)
	}
	if !tx.Method.Valid() {
		return nil, core.Invalid("unknown payment method %q", tx.Method)
	}
	if !tx.Amount.IsPositive() {
		return nil, core.Invalid("amount must be greater than zero")
	}
	if err := core.CheckAmount("amount", tx.Amount); err != nil {
		return nil, err
	}

	now := s.now()
	if tx.ID == "" {
		tx.ID = core.NewID("txn")
	}
	if tx.Status == "" {
		tx.Status = StatusCaptured
	}
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = now
	}
	if tx.Status.Settled() && tx.CapturedAt == nil {
		captured := tx.CreatedAt
		tx.CapturedAt = &captured
	}
	if tx.Provider == "" && tx.Method != MethodCash {
		tx.Provider = string(tx.Method)
	}

	if err := s.store.SaveTransaction(ctx, tx); err != nil {
		return nil, err
	}

	events.Emit(ctx, s.events, s.log, events.New(events.PaymentRecorded, tx.ID, map[string]any{
		"ride_id": tx.RideID,
		"amount":  tx.Amount.Amount.StringFixed(2),
		"method":  string(tx.Method),
		"status":  string(tx.Status),
	}))
	return &tx, nil
}

// GetTransaction returns a transaction or a not-found error.
func (s *Service) GetTransaction(ctx context.Context, id string) (*Transaction, error) {
	tx, err := s.store.GetTransaction(ctx, id)
	if err != nil {
		return nil, err
	}
	if tx == nil {
		return nil, core.NotFound("transaction", id)
	}
	return tx, nil
}

// ListTransactions returns matching transactions, newest first.
func (s *Service) ListTransactions(ctx context.Context, filter TransactionFilter) ([]Transaction, error) {
	filter.Limit = clampLimit(filter.Limit)
	return s.store.ListTransactions(ctx, filter)
}

// =============================================================================
// REFUNDS
// =============================================================================

// RequestRefund opens a pending refund against a captured transaction.
func (s *Service) RequestRefund(ctx context.Context, txID string, amount core.Money, reason, requestedBy string) (*Refund, error) {
	var missing []string
	if txID == "" {
		missing = append(missing, "transaction_id")
	}
	if reason == "" {
		missing = append(missing, "reason")
	}
	if len(missing) > 0 {
		return nil, core.Missing(missing...)
	}
	if !amount.IsPositive() {
		return nil, core.Invalid("refund amount must be greater than zero")
	}
	if err := core.CheckAmount("amount", amount); err != nil {
		return nil, err
	}

	tx, err := s.GetTransaction(ctx, txID)
	if err != nil {
		return nil, err
	}
	if !tx.Status.Refundable() {
		return nil, &core.InvalidTransitionError{Kind: "transaction", ID: tx.ID, From: string(tx.Status), To: "refund"}
	}

	refund := Refund{
		ID:            core.NewID("rfd"),
		TransactionID: tx.ID,
		Amount:        core.Money{Amount: amount.Amount, Currency: tx.Amount.Currency},
		Reason:        reason,
		Status:        RefundPending,
		RequestedBy:   requestedBy,
		CreatedAt:     s.now(),
	}
	if err := s.store.InsertRefund(ctx, refund); err != nil {
		return nil, err
	}

	s.record(ctx, requestedBy, core.AuditRefundRequested, refund.ID, fmt.Sprintf("%s on %s: %s", refund.Amount, tx.ID, reason))
	events.Emit(ctx, s.events, s.log, events.New(events.RefundRequested, refund.ID, map[string]any{
		"transaction_id": tx.ID,
		"amount":         refund.Amount.Amount.StringFixed(2),
	}))
	return &refund, nil
}

// ApproveRefund approves a pending refund and updates the transaction status.
func (s *Service) ApproveRefund(ctx context.Context, id, approver, note string) (*Refund, error) {
	return s.decide(ctx, id, RefundApproved, approver, note)
}

// RejectRefund rejects a pending refund. The transaction is untouched.
func (s *Service) RejectRefund(ctx context.Context, id, approver, note string) (*Refund, error) {
	if note == "" {
		return nil, core.Missing("note")
	}
	return s.decide(ctx, id, RefundRejected, approver, note)
}

func (s *Service) decide(ctx context.Context, id string, to RefundStatus, actor, note string) (*Refund, error) {
	refund, err := s.store.GetRefund(ctx, id)
	if err != nil {
		return nil, err
	}
	if refund == nil {
		return nil, core.NotFound("refund", id)
	}
	if refund.Status != RefundPending {
		return nil, &core.InvalidTransitionError{Kind: "refund", ID: id, From: string(refund.Status), To: string(to)}
	}

	now := s.now()
	refund.Status = to
	refund.DecidedBy = actor
	refund.DecisionNote = note
	refund.DecidedAt = &now

	txStatus, err := s.store.DecideRefund(ctx, *refund)
	if err != nil {
		return nil, err
	}

	action, eventType := core.AuditRefundApproved, events.RefundApproved
	if to == RefundRejected {
		action, eventType = core.AuditRefundRejected, events.RefundRejected
	}
	s.record(ctx, actor, action, refund.ID, note)
	events.Emit(ctx, s.events, s.log, events.New(eventType, refund.ID, map[string]any{
		"transaction_id":     refund.TransactionID,
		"amount":             refund.Amount.Amount.StringFixed(2),
		"transaction_status": string(txStatus),
	}))
	return refund, nil
}

// ListRefunds returns matching refunds, newest first.
func (s *Service) ListRefunds(ctx context.Context, filter RefundFilter) ([]Refund, error) {
	filter.Limit = clampLimit(filter.Limit)
	return s.store.ListRefunds(ctx, filter)
}

// =============================================================================
// RECONCILIATION
// =============================================================================

// Reconcile matches a provider settlement report against captured payments and stores the run.
func (s *Service) Reconcile(ctx context.Context, provider string, period core.Period, lines []SettlementLine, runBy string) (*ReconciliationRun, error) {
	if provider == "" {
		return nil, core.Missing("provider")
	}
	if err := period.Validate(); err != nil {
		return nil, err
	}
	for i, l := range lines {
		if err := core.CheckAmount(fmt.Sprintf("lines[%d].amount", i), l.Amount); err != nil {
			return nil, err
		}
	}

	txs, err := s.store.ListTransactions(ctx, TransactionFilter{Provider: provider, Period: &period})
	if err != nil {
		return nil, fmt.Errorf("failed to load transactions: %w", err)
	}

	run := Match(txs, lines)
	run.ID = core.NewID("rec")
	run.Provider = provider
	run.Period = period
	run.RunBy = runBy
	run.CreatedAt = s.now()

	if err := s.store.SaveReconciliationRun(ctx, run); err != nil {
		return nil, err
	}

	s.record(ctx, runBy, core.AuditReconciliationRun, run.ID,
		fmt.Sprintf("%s %s: %d matched, %d discrepancies", provider, period, run.Matched, len(run.Discrepancies)))
	events.Emit(ctx, s.events, s.log, events.New(events.ReconciliationCompleted, run.ID, map[string]any{
		"provider":      provider,
		"matched":       run.Matched,
		"discrepancies": len(run.Discrepancies),
	}))
	if !run.Clean() {
		s.log.Warn("reconciliation found discrepancies",
			zap.String("run_id", run.ID),
			zap.String("provider", provider),
			zap.Int("missing_internal", run.MissingInternal),
			zap.Int("missing_provider", run.MissingProvider),
			zap.Int("mismatched", run.Mismatched))
	}
	return &run, nil
}

// GetReconciliationRun returns a run or a not-found error.
func (s *Service) GetReconciliationRun(ctx context.Context, id string) (*ReconciliationRun, error) {
	run, err := s.store.GetReconciliationRun(ctx, id)
	if err != nil {
		return nil, err
	}
	if run == nil {
		return nil, core.NotFound("reconciliation run", id)
	}
	return run, nil
}

// ListReconciliationRuns returns runs, newest first, optionally for one provider.
func (s *Service) ListReconciliationRuns(ctx context.Context, provider string, limit int) ([]ReconciliationRun, error) {
	return s.store.ListReconciliationRuns(ctx, provider, clampLimit(limit))
}

func (s *Service) record(ctx context.Context, actor string, action core.AuditAction, subject, detail string) {
	if err := core.Audit(ctx, s.audit, actor, action, subject, detail); err != nil && !errors.Is(err, context.Canceled) {
		s.log.Error("audit append failed", zap.String("action", string(action)), zap.Error(err))
	}
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return DefaultListLimit
	}
	if limit > MaxListLimit {
		return MaxListLimit
	}
	return limit
}
