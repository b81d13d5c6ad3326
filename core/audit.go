package core

import (
	"context"
	"time"
)

// =============================================================================
// AUDIT LOG - Tracks who decided what, and when
// =============================================================================

// AuditEntry records a back-office decision.
type AuditEntry struct {
	ID      string
	Actor   string // console user, or "system" for the scheduler
	Action  AuditAction
	Subject string // id of the record acted on
	Detail  string
	At      time.Time
}

type AuditAction string

const (
	AuditRefundRequested   AuditAction = "refund_requested"
	AuditRefundApproved    AuditAction = "refund_approved"
	AuditRefundRejected    AuditAction = "refund_rejected"
	AuditReconciliationRun AuditAction = "reconciliation_run"
	AuditPayoutCreated     AuditAction = "payout_created"
	AuditPayoutStatus      AuditAction = "payout_status"
	AuditReceiptIssued     AuditAction = "receipt_issued"
	AuditReceiptVoided     AuditAction = "receipt_voided"
	AuditDSRSubmitted      AuditAction = "dsr_submitted"
	AuditDSRTransition     AuditAction = "dsr_transition"
	AuditInsuranceVerified AuditAction = "insurance_verified"
)

// AuditLog stores audit entries. Append-only.
type AuditLog interface {
	AppendAudit(ctx context.Context, entry AuditEntry) error
	QueryAudit(ctx context.Context, filter AuditFilter) ([]AuditEntry, error)
}

// AuditFilter narrows an audit query. Zero values match everything.
type AuditFilter struct {
	Actor   string
	Subject string
	Action  AuditAction
	Limit   int
}

// Audit appends an entry, filling ID and timestamp. A nil log is a no-op.
func Audit(ctx context.Context, log AuditLog, actor string, action AuditAction, subject, detail string) error {
	if log == nil {
		return nil
	}
	if actor == "" {
		actor = "system"
	}
	return log.AppendAudit(ctx, AuditEntry{
		ID:      NewID("aud"),
		Actor:   actor,
		Action:  action,
		Subject: subject,
		Detail:  detail,
		At:      time.Now().UTC(),
	})
}
