package earnings

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/warp/ops-console/core"
	"github.com/warp/ops-console/events"
)

// Breakdown is a driver's earnings for a period.
type Breakdown struct {
	DriverID    string
	Period      core.Period
	ByType      []TypeTotal
	Gross       core.Money
	Commission  core.Money
	Withholding core.Money
	Net         core.Money
	Unpaid      core.Money // net of earnings not yet in a payout
	TripCount   int
	Daily       []DailyNet
}

type TypeTotal struct {
	Type   Type
	Count  int
	Amount core.Money
}

type DailyNet struct {
	Date  time.Time
	Gross core.Money
	Net   core.Money
}

// DriverTotal ranks drivers by net earnings.
type DriverTotal struct {
	DriverID  string
	Gross     core.Money
	Net       core.Money
	TripCount int
}

type Service struct {
	store  Store
	rates  Rates
	events events.Publisher
	audit  core.AuditLog
	log    *zap.Logger
	now    func() time.Time
}

func NewService(store Store, rates Rates, pub events.Publisher, audit core.AuditLog, log *zap.Logger) *Service {
	if rates.Commission.IsZero() && rates.Withholding.IsZero() {
		rates = DefaultRates
	}
	return &Service{
		store:  store,
		rates:  rates,
		events: pub,
		audit:  audit,
		log:    log.Named("earnings"),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Record stores an earning credited to a driver.
func (s *Service) Record(ctx context.Context, e Earning) (*Earning, error) {
	var missing []string
	if e.DriverID == "" {
		missing = append(missing, "driver_id")
	}
	if e.Type == "" {
		missing = append(missing, "type")
	}
	if len(missing) > 0 {
		return nil, core.Missing(missing...)
	}
	if !e.Type.Valid() {
		return nil, core.Invalid("unknown earning type %q", e.Type)
	}
	if e.Amount.IsZero() {
		return nil, core.Invalid("amount must not be zero")
	}
	if e.Amount.IsNegative() && e.Type != TypeAdjustment {
		return nil, core.Invalid("only adjustments may be negative")
	}
	if err := core.CheckAmount("amount", e.Amount); err != nil {
		return nil, err
	}
	if e.ID == "" {
		e.ID = core.NewID("ern")
	}
	if e.EarnedAt.IsZero() {
		e.EarnedAt = s.now()
	}
	if err := s.store.SaveEarning(ctx, e); err != nil {
		return nil, err
	}
	return &e, nil
}

// Breakdown groups a driver's earnings for the period.
func (s *Service) Breakdown(ctx context.Context, driverID string, period core.Period) (*Breakdown, error) {
	if driverID == "" {
		return nil, core.Missing("driver_id")
	}
	if err := period.Validate(); err != nil {
		return nil, err
	}
	list, err := s.store.ListEarnings(ctx, EarningFilter{DriverID: driverID, Period: &period})
	if err != nil {
		return nil, fmt.Errorf("failed to load earnings: %w", err)
	}
	b := s.compute(driverID, period, list)
	return &b, nil
}

func (s *Service) compute(driverID string, period core.Period, list []Earning) Breakdown {
	zero := core.ZeroMoney(core.DefaultCurrency)
	b := Breakdown{DriverID: driverID, Period: period, Gross: zero, Unpaid: zero}

	byType := make(map[Type]*TypeTotal)
	daily := make(map[time.Time]*DailyNet)
	for _, d := range period.Days() {
		daily[d] = &DailyNet{Date: d, Gross: zero, Net: zero}
	}
	rides := make(map[string]bool)

	for _, e := range list {
		t, ok := byType[e.Type]
		if !ok {
			t = &TypeTotal{Type: e.Type, Amount: zero}
			byType[e.Type] = t
		}
		t.Count++
		t.Amount = t.Amount.Add(e.Amount)
		b.Gross = b.Gross.Add(e.Amount)

		net := s.net(e)
		if d, ok := daily[core.Day(e.EarnedAt)]; ok {
			d.Gross = d.Gross.Add(e.Amount)
			d.Net = d.Net.Add(net)
		}
		if e.PayoutID == "" {
			b.Unpaid = b.Unpaid.Add(net)
		}
		if e.RideID != "" {
			rides[e.RideID] = true
		}
	}

	b.Commission, b.Withholding, b.Net = s.deductions(list)
	b.Unpaid = b.Unpaid.Round2()
	b.TripCount = len(rides)

	for _, t := range Types {
		if tt, ok := byType[t]; ok {
			b.ByType = append(b.ByType, *tt)
		}
	}
	for _, d := range period.Days() {
		dn := daily[d]
		dn.Net = dn.Net.Round2()
		b.Daily = append(b.Daily, *dn)
	}
	return b
}

// deductions returns commission, withholding and net for a set of earnings.
func (s *Service) deductions(list []Earning) (commission, withholding, net core.Money) {
	gross := core.ZeroMoney(core.DefaultCurrency)
	commissionable := core.ZeroMoney(core.DefaultCurrency)
	for _, e := range list {
		gross = gross.Add(e.Amount)
		if e.Type.Commissionable() {
			commissionable = commissionable.Add(e.Amount)
		}
	}
	commission = commissionable.Mul(s.rates.Commission).Round2()
	withholding = gross.Sub(commission).Mul(s.rates.Withholding).Round2()
	if withholding.IsNegative() {
		withholding = core.ZeroMoney(core.DefaultCurrency)
	}
	net = gross.Sub(commission).Sub(withholding)
	return commission, withholding, net
}

// net is the driver's share of a single earning, unrounded.
func (s *Service) net(e Earning) core.Money {
	amount := e.Amount
	if e.Type.Commissionable() {
		amount = amount.Sub(amount.Mul(s.rates.Commission))
	}
	return amount.Sub(amount.Mul(s.rates.Withholding))
}

// =============================================================================
// PAYOUTS
// =============================================================================

// CreatePayout sweeps the driver's unpaid earnings in the period into a pending payout.
func (s *Service) CreatePayout(ctx context.Context, driverID string, method PayoutMethod, period core.Period, actor string) (*Payout, error) {
	var missing []string
	if driverID == "" {
		missing = append(missing, "driver_id")
	}
	if method == "" {
		missing = append(missing, "method")
	}
	if len(missing) > 0 {
		return nil, core.Missing(missing...)
	}
	if !method.Valid() {
		return nil, core.Invalid("unknown payout method %q", method)
	}

	unpaid, err := s.store.ListEarnings(ctx, EarningFilter{DriverID: driverID, Period: &period, UnpaidOnly: true})
	if err != nil {
		return nil, fmt.Errorf("failed to load unpaid earnings: %w", err)
	}
	if len(unpaid) == 0 {
		return nil, core.Invalid("driver %s has no unpaid earnings in %s", driverID, period)
	}

	commission, withholding, net := s.deductions(unpaid)
	if !net.IsPositive() {
		return nil, core.Invalid("net payout for driver %s is not positive", driverID)
	}

	ids := make([]string, len(unpaid))
	gross := core.ZeroMoney(core.DefaultCurrency)
	for i, e := range unpaid {
		ids[i] = e.ID
		gross = gross.Add(e.Amount)
	}

	now := s.now()
	p := Payout{
		ID:           core.NewID("pay"),
		DriverID:     driverID,
		Period:       period,
		Gross:        gross,
		Commission:   commission,
		Withholding:  withholding,
		Net:          net,
		EarningCount: len(unpaid),
		Method:       method,
		Status:       PayoutPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.CreatePayout(ctx, p, ids); err != nil {
		return nil, err
	}

	if err := core.Audit(ctx, s.audit, actor, core.AuditPayoutCreated, p.ID,
		fmt.Sprintf("%s to %s via %s (%d earnings)", p.Net, driverID, method, p.EarningCount)); err != nil {
		s.log.Error("audit append failed", zap.Error(err))
	}
	events.Emit(ctx, s.events, s.log, events.New(events.PayoutCreated, p.ID, map[string]any{
		"driver_id": driverID,
		"net":       p.Net.Amount.StringFixed(2),
		"method":    string(method),
	}))
	return &p, nil
}

// ListPayouts returns a driver's payouts, newest first.
func (s *Service) ListPayouts(ctx context.Context, driverID string) ([]Payout, error) {
	if driverID == "" {
		return nil, core.Missing("driver_id")
	}
	return s.store.ListPayouts(ctx, driverID)
}

// MarkPayout moves a payout along its status flow.
func (s *Service) MarkPayout(ctx context.Context, id string, status PayoutStatus, actor string) (*Payout, error) {
	p, err := s.store.GetPayout(ctx, id)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, core.NotFound("payout", id)
	}
	if !p.Status.CanMoveTo(status) {
		return nil, &core.InvalidTransitionError{Kind: "payout", ID: id, From: string(p.Status), To: string(status)}
	}
	now := s.now()
	if err := s.store.UpdatePayoutStatus(ctx, id, p.Status, status, now); err != nil {
		return nil, err
	}
	p.Status = status
	p.UpdatedAt = now

	if err := core.Audit(ctx, s.audit, actor, core.AuditPayoutStatus, id, string(status)); err != nil {
		s.log.Error("audit append failed", zap.Error(err))
	}
	return p, nil
}

// TopEarners ranks drivers by net earnings in the period.
func (s *Service) TopEarners(ctx context.Context, period core.Period, limit int) ([]DriverTotal, error) {
	if limit <= 0 {
		limit = 10
	}
	if err := period.Validate(); err != nil {
		return nil, err
	}
	list, err := s.store.ListEarnings(ctx, EarningFilter{Period: &period})
	if err != nil {
		return nil, fmt.Errorf("failed to load earnings: %w", err)
	}

	byDriver := make(map[string][]Earning)
	for _, e := range list {
		byDriver[e.DriverID] = append(byDriver[e.DriverID], e)
	}

	totals := make([]DriverTotal, 0, len(byDriver))
	for driverID, es := range byDriver {
		_, _, net := s.deductions(es)
		rides := make(map[string]bool)
		gross := core.ZeroMoney(core.DefaultCurrency)
		for _, e := range es {
			gross = gross.Add(e.Amount)
			if e.RideID != "" {
				rides[e.RideID] = true
			}
		}
		totals = append(totals, DriverTotal{DriverID: driverID, Gross: gross, Net: net, TripCount: len(rides)})
	}

	sort.Slice(totals, func(i, j int) bool {
		if !totals[i].Net.Equal(totals[j].Net) {
			return totals[i].Net.GreaterThan(totals[j].Net)
		}
		return totals[i].DriverID < totals[j].DriverID
	})
	if len(totals) > limit {
		totals = totals[:limit]
	}
	return totals, nil
}
