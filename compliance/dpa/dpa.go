/*
Package dpa handles data-subject requests under the Philippine Data Privacy Act.

PURPOSE:
  Riders and drivers may ask to see, correct, port or erase their personal
  data, or object to its processing. The privacy team tracks each request
  from receipt to resolution and must answer within the response window.

STATUS FLOW:
  received -> in_progress -> completed | rejected
  received -> rejected
  Completing or rejecting needs a written resolution.

DEADLINE:
  due_at = received_at + response window (30 days unless configured).
  An open request past due_at is overdue and raises a console alert.

SEE ALSO:
  - api/scheduler.go: Overdue alerts
  - api/compliance.go: HTTP endpoints
*/
package dpa

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/warp/ops-console/core"
	"github.com/warp/ops-console/events"
	"github.com/warp/ops-console/payments"
)

// DefaultResponseDays is the response window for a request.
const DefaultResponseDays = 30

type RequestType string

const (
	TypeAccess        RequestType = "access"
	TypeRectification RequestType = "rectification"
	TypeErasure       RequestType = "erasure"
	TypePortability   RequestType = "portability"
	TypeObjection     RequestType = "objection"
)

func (t RequestType) Valid() bool {
	switch t {
	case TypeAccess, TypeRectification, TypeErasure, TypePortability, TypeObjection:
		return true
	}
	return false
}

type SubjectType string

const (
	SubjectRider  SubjectType = "rider"
	SubjectDriver SubjectType = "driver"
)

func (t SubjectType) Valid() bool {
	return t == SubjectRider || t == SubjectDriver
}

type Status string

const (
	StatusReceived   Status = "received"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusRejected   Status = "rejected"
)

var transitions = map[Status][]Status{
	StatusReceived:   {StatusInProgress, StatusRejected},
	StatusInProgress: {StatusCompleted, StatusRejected},
}

func (s Status) Valid() bool {
	switch s {
	case StatusReceived, StatusInProgress, StatusCompleted, StatusRejected:
		return true
	}
	return false
}

// Open reports whether the request still needs work.
func (s Status) Open() bool {
	return s == StatusReceived || s == StatusInProgress
}

func (s Status) CanMoveTo(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

type Request struct {
	ID          string
	SubjectID   string
	SubjectType SubjectType
	Type        RequestType
	Status      Status
	Details     string
	Resolution  string
	HandledBy   string
	ReceivedAt  time.Time
	DueAt       time.Time
	UpdatedAt   time.Time
	CompletedAt *time.Time
}

// Overdue reports whether an open request is past its due date.
func (r Request) Overdue(now time.Time) bool {
	return r.Status.Open() && now.After(r.DueAt)
}

// DaysLeft is the number of days until due (negative when overdue).
func (r Request) DaysLeft(now time.Time) int {
	return core.DaysBetween(now, r.DueAt)
}

type Filter struct {
	SubjectID string
	Status    Status
	OpenOnly  bool
}

type Store interface {
	SaveSubjectRequest(ctx context.Context, r Request) error
	// UpdateSubjectRequest writes r only if the stored request is still in
	// from. Otherwise it fails with core.ErrConflict.
	UpdateSubjectRequest(ctx context.Context, r Request, from Status) error
	GetSubjectRequest(ctx context.Context, id string) (*Request, error)
	ListSubjectRequests(ctx context.Context, filter Filter) ([]Request, error)
}

// PaymentSource provides the payment records included in an access export.
type PaymentSource interface {
	ListTransactions(ctx context.Context, filter payments.TransactionFilter) ([]payments.Transaction, error)
}

// Export is the data package delivered for access and portability requests.
type Export struct {
	Request       Request
	GeneratedAt   time.Time
	Transactions  []payments.Transaction
	PriorRequests []Request
}

// =============================================================================
// SERVICE
// =============================================================================

type Service struct {
	store        Store
	payments     PaymentSource
	responseDays int
	events       events.Publisher
	audit        core.AuditLog
	log          *zap.Logger
	now          func() time.Time
}

func NewService(store Store, paymentSource PaymentSource, responseDays int, pub events.Publisher, audit core.AuditLog, log *zap.Logger) *Service {
	if responseDays <= 0 {
		responseDays = DefaultResponseDays
	}
	return &Service{
		store:        store,
		payments:     paymentSource,
		responseDays: responseDays,
		events:       pub,
		audit:        audit,
		log:          log.Named("dpa"),
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// Submit logs a new data-subject request.
func (s *Service) Submit(ctx context.Context, r Request, actor string) (*Request, error) {
	var missing []string
	if r.SubjectID == "" {
		missing = append(missing, "subject_id")
	}
	if r.SubjectType == "" {
		missing = append(missing, "subject_type")
	}
	if r.Type == "" {
		missing = append(missing, "type")
	}
	if len(missing) > 0 {
		return nil, core.Missing(missing...)
	}
	if !r.SubjectType.Valid() {
		return nil, core.Invalid("subject_type must be rider or driver")
	}
	if !r.Type.Valid() {
		return nil, core.Invalid("unknown request type %q", r.Type)
	}

	now := s.now()
	r.ID = core.NewID("dsr")
	r.Status = StatusReceived
	if r.ReceivedAt.IsZero() {
		r.ReceivedAt = now
	}
	r.DueAt = r.ReceivedAt.AddDate(0, 0, s.responseDays)
	r.UpdatedAt = now
	r.Resolution = ""
	r.CompletedAt = nil

	if err := s.store.SaveSubjectRequest(ctx, r); err != nil {
		return nil, err
	}
	if err := core.Audit(ctx, s.audit, actor, core.AuditDSRSubmitted, r.ID, fmt.Sprintf("%s request for %s %s", r.Type, r.SubjectType, r.SubjectID)); err != nil {
		s.log.Error("audit append failed", zap.Error(err))
	}
	events.Emit(ctx, s.events, s.log, events.New(events.SubjectRequestReceived, r.ID, map[string]any{
		"type":   string(r.Type),
		"due_at": r.DueAt.Format(time.RFC3339),
	}))
	return &r, nil
}

// Get returns a request or a not-found error.
func (s *Service) Get(ctx context.Context, id string) (*Request, error) {
	r, err := s.store.GetSubjectRequest(ctx, id)
	if err != nil {
		return nil, err
	}
	if r == nil {
		return nil, core.NotFound("data subject request", id)
	}
	return r, nil
}

// List returns requests ordered by due date. overdueOnly keeps open requests past due.
func (s *Service) List(ctx context.Context, filter Filter, overdueOnly bool) ([]Request, error) {
	if overdueOnly {
		filter.OpenOnly = true
	}
	list, err := s.store.ListSubjectRequests(ctx, filter)
	if err != nil {
		return nil, err
	}
	if !overdueOnly {
		return list, nil
	}
	now := s.now()
	out := list[:0]
	for _, r := range list {
		if r.Overdue(now) {
			out = append(out, r)
		}
	}
	return out, nil
}

// Overdue returns open requests past due as of now.
func (s *Service) Overdue(ctx context.Context) ([]Request, error) {
	return s.List(ctx, Filter{}, true)
}

// Transition moves a request along its status flow.
func (s *Service) Transition(ctx context.Context, id string, to Status, resolution, actor string) (*Request, error) {
	if to == "" {
		return nil, core.Missing("status")
	}
	if !to.Valid() {
		return nil, core.Invalid("unknown status %q", to)
	}
	r, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	from := r.Status
	if !from.CanMoveTo(to) {
		return nil, &core.InvalidTransitionError{Kind: "data subject request", ID: id, From: string(from), To: string(to)}
	}
	if !to.Open() && resolution == "" {
		return nil, core.Missing("resolution")
	}

	now := s.now()
	r.Status = to
	r.HandledBy = actor
	r.UpdatedAt = now
	if !to.Open() {
		r.Resolution = resolution
		r.CompletedAt = &now
	}
	if err := s.store.UpdateSubjectRequest(ctx, *r, from); err != nil {
		return nil, err
	}

	if err := core.Audit(ctx, s.audit, actor, core.AuditDSRTransition, r.ID, string(to)); err != nil {
		s.log.Error("audit append failed", zap.Error(err))
	}
	events.Emit(ctx, s.events, s.log, events.New(events.SubjectRequestUpdated, r.ID, map[string]any{
		"status": string(to),
	}))
	return r, nil
}

// Export assembles the subject's data for an access or portability request.
func (s *Service) Export(ctx context.Context, id string) (*Export, error) {
	r, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if r.Type != TypeAccess && r.Type != TypePortability {
		return nil, core.Invalid("export is only available for access and portability requests")
	}

	filter := payments.TransactionFilter{}
	if r.SubjectType == SubjectRider {
		filter.RiderID = r.SubjectID
	} else {
		filter.DriverID = r.SubjectID
	}
	txs, err := s.payments.ListTransactions(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to load subject transactions: %w", err)
	}

	history, err := s.store.ListSubjectRequests(ctx, Filter{SubjectID: r.SubjectID})
	if err != nil {
		return nil, fmt.Errorf("failed to load subject requests: %w", err)
	}
	prior := make([]Request, 0, len(history))
	for _, h := range history {
		if h.ID != r.ID {
			prior = append(prior, h)
		}
	}

	return &Export{Request: *r, GeneratedAt: s.now(), Transactions: txs, PriorRequests: prior}, nil
}
