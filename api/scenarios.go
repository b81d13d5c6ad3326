/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the database with realistic
	console data. Loaders go through the same services as the API, so the
	seeded records carry real receipt numbers, audit entries and events.

AVAILABLE SCENARIOS:

	console-demo:      Two weeks of payments, refunds, earnings, payouts,
	                   receipts, data-subject requests and a small fleet
	compliance-audit:  Fleet with expiring and expired documents, overdue
	                   data-subject requests, and a dirty reconciliation

HOW SCENARIOS WORK:
 1. Reset database (clear all data)
 2. Register fleet (vehicles, drivers, insurance)
 3. Record transactions and earnings relative to today
 4. Decide refunds, issue receipts, submit requests
 5. Run the compliance sweep so banners are populated

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "console-demo"}

ADDING NEW SCENARIOS:
 1. Add to 'scenarios' slice with ID, name, description
 2. Create loader function: loadXxxScenario(ctx)
 3. Add case to LoadScenario handler

NOTE:

	Scenarios reset the database. Only use in development/demo environments.

SEE ALSO:
  - handlers.go: ResetDatabase
  - scheduler.go: Compliance sweep run after loading
*/
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/warp/ops-console/compliance/bir"
	"github.com/warp/ops-console/compliance/dpa"
	"github.com/warp/ops-console/compliance/ltfrb"
	"github.com/warp/ops-console/core"
	"github.com/warp/ops-console/earnings"
	"github.com/warp/ops-console/payments"
)

const scenarioActor = "scenario"

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "console-demo",
		Name:        "Console Demo",
		Description: "Two weeks of rides: payments, refunds, earnings, payouts, receipts, DSRs and a compliant fleet",
		Category:    "billing",
	},
	{
		ID:          "compliance-audit",
		Name:        "Compliance Audit",
		Description: "Expiring franchises, lapsed insurance and licenses, overdue DSRs, a dirty settlement",
		Category:    "compliance",
	},
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeData(w, http.StatusOK, scenarios, "")
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	if h.currentScenario == "" {
		writeData(w, http.StatusOK, nil, "no scenario loaded")
		return
	}
	for _, s := range scenarios {
		if s.ID == h.currentScenario {
			writeData(w, http.StatusOK, s, "")
			return
		}
	}
	writeData(w, http.StatusOK, ScenarioDTO{ID: h.currentScenario, Name: h.currentScenario}, "")
}

// LoadScenario loads a predefined scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if err := h.decode(r, &req); err != nil {
		h.handleError(w, r, err)
		return
	}

	var load func(context.Context) error
	switch req.ScenarioID {
	case "console-demo":
		load = h.loadConsoleDemoScenario
	case "compliance-audit":
		load = h.loadComplianceAuditScenario
	default:
		writeError(w, http.StatusBadRequest, "unknown scenario "+req.ScenarioID)
		return
	}

	ctx := r.Context()

	// Reset first
	if err := h.Store.Reset(ctx); err != nil {
		h.handleError(w, r, err)
		return
	}
	h.currentScenario = ""

	if err := load(ctx); err != nil {
		h.handleError(w, r, fmt.Errorf("failed to load scenario %s: %w", req.ScenarioID, err))
		return
	}
	res := h.Sweep.RunNow(ctx)

	h.currentScenario = req.ScenarioID
	h.log.Info("scenario loaded", zap.String("scenario", req.ScenarioID), zap.Int("alerts", res.Raised))
	writeData(w, http.StatusOK, map[string]string{"status": "loaded", "scenario": req.ScenarioID}, "")
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

// daysAgo returns noon UTC n days before today.
func (h *Handler) daysAgo(n int) time.Time {
	return core.Day(h.now()).AddDate(0, 0, -n).Add(12 * time.Hour)
}

func (h *Handler) dateIn(days int) time.Time {
	return core.Day(h.now()).AddDate(0, 0, days)
}

type demoRide struct {
	id      string
	rider   string
	driver  string
	method  payments.Method
	amount  float64
	daysAgo int
	failed  bool
	tip     float64
	surge   float64
}

func (h *Handler) loadConsoleDemoScenario(ctx context.Context) error {
	// Fleet: all compliant
	fleet := []struct {
		vehicle ltfrb.Vehicle
		driver  ltfrb.Driver
	}{
		{
			ltfrb.Vehicle{ID: "veh-001", PlateNumber: "NAB 1234", CaseNumber: "2023-11-00123", Operator: "Reyes Transport",
				Make: "Toyota", Model: "Vios", YearModel: h.now().Year() - 2, FranchiseExpiry: h.dateIn(400)},
			ltfrb.Driver{ID: "drv-001", Name: "Juan Dela Cruz", LicenseNumber: "N01-19-123456", LicenseType: ltfrb.LicenseProfessional,
				LicenseExpiry: h.dateIn(700), TrainingCompleted: true, VehicleID: "veh-001"},
		},
		{
			ltfrb.Vehicle{ID: "veh-002", PlateNumber: "DAC 5678", CaseNumber: "2022-08-00456", Operator: "Santos Fleet",
				Make: "Mitsubishi", Model: "Mirage G4", YearModel: h.now().Year() - 4, FranchiseExpiry: h.dateIn(250)},
			ltfrb.Driver{ID: "drv-002", Name: "Maria Santos", LicenseNumber: "N02-18-654321", LicenseType: ltfrb.LicenseProfessional,
				LicenseExpiry: h.dateIn(500), TrainingCompleted: true, VehicleID: "veh-002"},
		},
		{
			ltfrb.Vehicle{ID: "veh-003", PlateNumber: "NEB 9012", CaseNumber: "2024-02-00789", Operator: "Reyes Transport",
				Make: "Honda", Model: "City", YearModel: h.now().Year() - 1, FranchiseExpiry: h.dateIn(900)},
			ltfrb.Driver{ID: "drv-003", Name: "Paolo Garcia", LicenseNumber: "N03-20-111222", LicenseType: ltfrb.LicenseProfessional,
				LicenseExpiry: h.dateIn(1000), TrainingCompleted: true, VehicleID: "veh-003"},
		},
	}
	for _, f := range fleet {
		if _, err := h.Fleet.RegisterVehicle(ctx, f.vehicle); err != nil {
			return err
		}
		if _, err := h.Fleet.VerifyInsurance(ctx, f.vehicle.ID, "Malayan Insurance", "PPAI-"+f.vehicle.ID,
			h.dateIn(300), scenarioActor); err != nil {
			return err
		}
		if _, err := h.Fleet.RegisterDriver(ctx, f.driver); err != nil {
			return err
		}
	}

	rides := []demoRide{
		{id: "ride-1001", rider: "rdr-ana", driver: "drv-001", method: payments.MethodGCash, amount: 245.50, daysAgo: 13, tip: 20},
		{id: "ride-1002", rider: "rdr-ben", driver: "drv-002", method: payments.MethodCard, amount: 412.00, daysAgo: 12},
		{id: "ride-1003", rider: "rdr-carla", driver: "drv-003", method: payments.MethodCash, amount: 180.00, daysAgo: 11},
		{id: "ride-1004", rider: "rdr-ana", driver: "drv-001", method: payments.MethodMaya, amount: 320.75, daysAgo: 10, surge: 64},
		{id: "ride-1005", rider: "rdr-dan", driver: "drv-002", method: payments.MethodGCash, amount: 198.00, daysAgo: 9},
		{id: "ride-1006", rider: "rdr-ben", driver: "drv-003", method: payments.MethodCard, amount: 275.00, daysAgo: 8, failed: true},
		{id: "ride-1007", rider: "rdr-ella", driver: "drv-001", method: payments.MethodWallet, amount: 150.00, daysAgo: 7},
		{id: "ride-1008", rider: "rdr-carla", driver: "drv-002", method: payments.MethodGCash, amount: 530.25, daysAgo: 6, tip: 50},
		{id: "ride-1009", rider: "rdr-dan", driver: "drv-003", method: payments.MethodMaya, amount: 222.00, daysAgo: 5},
		{id: "ride-1010", rider: "rdr-ella", driver: "drv-001", method: payments.MethodCard, amount: 389.50, daysAgo: 4},
		{id: "ride-1011", rider: "rdr-ana", driver: "drv-002", method: payments.MethodCash, amount: 140.00, daysAgo: 3},
		{id: "ride-1012", rider: "rdr-ben", driver: "drv-003", method: payments.MethodGCash, amount: 305.00, daysAgo: 2, surge: 61},
		{id: "ride-1013", rider: "rdr-carla", driver: "drv-001", method: payments.MethodMaya, amount: 265.00, daysAgo: 1},
		{id: "ride-1014", rider: "rdr-dan", driver: "drv-002", method: payments.MethodGCash, amount: 175.50, daysAgo: 0},
	}

	txs := make(map[string]*payments.Transaction, len(rides))
	for i, ride := range rides {
		tx := payments.Transaction{
			ID:        fmt.Sprintf("txn-demo-%02d", i+1),
			RideID:    ride.id,
			RiderID:   ride.rider,
			DriverID:  ride.driver,
			Method:    ride.method,
			Amount:    core.PHP(ride.amount),
			CreatedAt: h.daysAgo(ride.daysAgo),
		}
		if ride.method != payments.MethodCash {
			tx.ProviderRef = fmt.Sprintf("%s-%06d", ride.method, 500100+i)
		}
		if ride.failed {
			tx.Status = payments.StatusFailed
		}
		saved, err := h.Payments.RecordTransaction(ctx, tx)
		if err != nil {
			return err
		}
		txs[ride.id] = saved
		if ride.failed {
			continue
		}

		if err := h.recordRideEarnings(ctx, ride); err != nil {
			return err
		}
	}

	// Refunds: one approved partial, one pending, one rejected
	approved, err := h.Payments.RequestRefund(ctx, txs["ride-1002"].ID, core.PHP(100), "Driver took a longer route", "support-lea")
	if err != nil {
		return err
	}
	if _, err := h.Payments.ApproveRefund(ctx, approved.ID, "finance-marco", "Route deviation confirmed from GPS trace"); err != nil {
		return err
	}
	if _, err := h.Payments.RequestRefund(ctx, txs["ride-1008"].ID, core.PHP(530.25), "Rider charged twice", "support-lea"); err != nil {
		return err
	}
	rejected, err := h.Payments.RequestRefund(ctx, txs["ride-1010"].ID, core.PHP(50), "Air conditioning not working", "support-lea")
	if err != nil {
		return err
	}
	if _, err := h.Payments.RejectRefund(ctx, rejected.ID, "finance-marco", "No report filed during the trip"); err != nil {
		return err
	}

	// Receipts, one voided and re-issued to a business buyer
	for _, rideID := range []string{"ride-1001", "ride-1003", "ride-1005", "ride-1009"} {
		if _, err := h.Receipts.IssueReceipt(ctx, txs[rideID].ID, "", "", bir.TaxVatable, scenarioActor); err != nil {
			return err
		}
	}
	rc, err := h.Receipts.IssueReceipt(ctx, txs["ride-1012"].ID, "Ben Cruz", "", bir.TaxVatable, scenarioActor)
	if err != nil {
		return err
	}
	if _, err := h.Receipts.VoidReceipt(ctx, rc.ID, "Buyer requested company name on receipt", "finance-marco"); err != nil {
		return err
	}
	if _, err := h.Receipts.IssueReceipt(ctx, txs["ride-1012"].ID, "Acme Logistics Inc.", "123-456-789-000", bir.TaxVatable, scenarioActor); err != nil {
		return err
	}

	// Payout of drv-001's first week
	payout, err := h.Earnings.CreatePayout(ctx, "drv-001", earnings.PayoutGCash,
		core.Period{Start: core.Day(h.daysAgo(13)), End: core.Day(h.daysAgo(7))}, "finance-marco")
	if err != nil {
		return err
	}
	if _, err := h.Earnings.MarkPayout(ctx, payout.ID, earnings.PayoutProcessing, "finance-marco"); err != nil {
		return err
	}

	// Data-subject requests
	access, err := h.Privacy.Submit(ctx, dpa.Request{SubjectID: "rdr-ana", SubjectType: dpa.SubjectRider,
		Type: dpa.TypeAccess, Details: "Requests a copy of all trip and payment data", ReceivedAt: h.daysAgo(5)}, "privacy-officer")
	if err != nil {
		return err
	}
	if _, err := h.Privacy.Transition(ctx, access.ID, dpa.StatusInProgress, "", "privacy-officer"); err != nil {
		return err
	}
	if _, err := h.Privacy.Submit(ctx, dpa.Request{SubjectID: "rdr-dan", SubjectType: dpa.SubjectRider,
		Type: dpa.TypeRectification, Details: "Wrong email on account", ReceivedAt: h.daysAgo(2)}, "privacy-officer"); err != nil {
		return err
	}
	erasure, err := h.Privacy.Submit(ctx, dpa.Request{SubjectID: "rdr-ella", SubjectType: dpa.SubjectRider,
		Type: dpa.TypeErasure, ReceivedAt: h.daysAgo(12)}, "privacy-officer")
	if err != nil {
		return err
	}
	if _, err := h.Privacy.Transition(ctx, erasure.ID, dpa.StatusInProgress, "", "privacy-officer"); err != nil {
		return err
	}
	if _, err := h.Privacy.Transition(ctx, erasure.ID, dpa.StatusCompleted,
		"Profile anonymized; payment records kept for BIR retention", "privacy-officer"); err != nil {
		return err
	}

	// Clean GCash settlement for the period
	var lines []payments.SettlementLine
	for _, tx := range txs {
		if tx.Method == payments.MethodGCash && tx.Status.Settled() {
			lines = append(lines, payments.SettlementLine{ProviderRef: tx.ProviderRef, Amount: tx.Amount, SettledAt: tx.CreatedAt.Add(24 * time.Hour)})
		}
	}
	_, err = h.Payments.Reconcile(ctx, "gcash", core.Period{Start: core.Day(h.daysAgo(13)), End: core.Day(h.now())}, lines, "finance-marco")
	return err
}

// recordRideEarnings books the fare, surge and tip of a completed ride.
func (h *Handler) recordRideEarnings(ctx context.Context, ride demoRide) error {
	at := h.daysAgo(ride.daysAgo)
	items := []struct {
		typ    earnings.Type
		amount float64
	}{
		{earnings.TypeRideFare, ride.amount - ride.surge},
		{earnings.TypeSurge, ride.surge},
		{earnings.TypeTip, ride.tip},
	}
	for _, it := range items {
		if it.amount == 0 {
			continue
		}
		if _, err := h.Earnings.Record(ctx, earnings.Earning{
			DriverID: ride.driver,
			RideID:   ride.id,
			Type:     it.typ,
			Amount:   core.PHP(it.amount),
			EarnedAt: at,
		}); err != nil {
			return err
		}
	}
	return nil
}

func (h *Handler) loadComplianceAuditScenario(ctx context.Context) error {
	year := h.now().Year()
	vehicles := []ltfrb.Vehicle{
		{ID: "veh-101", PlateNumber: "NAA 1001", CaseNumber: "2021-05-01001", Operator: "Metro TNVS Co.",
			Make: "Toyota", Model: "Innova", YearModel: year - 3, FranchiseExpiry: h.dateIn(12)},
		{ID: "veh-102", PlateNumber: "NAA 1002", CaseNumber: "2020-01-01002", Operator: "Metro TNVS Co.",
			Make: "Nissan", Model: "Almera", YearModel: year - 5, FranchiseExpiry: h.dateIn(-20)},
		{ID: "veh-103", PlateNumber: "NAA 1003", CaseNumber: "2016-03-01003", Operator: "Luzon Rides",
			Make: "Toyota", Model: "Vios", YearModel: year - 9, FranchiseExpiry: h.dateIn(200)},
		{ID: "veh-104", PlateNumber: "NAA 1004", CaseNumber: "2022-07-01004", Operator: "Luzon Rides",
			Make: "Hyundai", Model: "Accent", YearModel: year - 2, FranchiseExpiry: h.dateIn(365),
			Status: ltfrb.VehicleSuspended},
		{ID: "veh-105", PlateNumber: "NAA 1005", CaseNumber: "2023-09-01005", Operator: "Luzon Rides",
			Make: "Honda", Model: "BR-V", YearModel: year - 1, FranchiseExpiry: h.dateIn(500)},
	}
	for _, v := range vehicles {
		if _, err := h.Fleet.RegisterVehicle(ctx, v); err != nil {
			return err
		}
	}

	// veh-101 insured but expiring; veh-105 policy already lapsed; the rest current
	insurance := []struct {
		vehicleID string
		days      int
	}{
		{"veh-101", 20}, {"veh-102", 120}, {"veh-103", 120}, {"veh-104", 120}, {"veh-105", -5},
	}
	for _, ins := range insurance {
		if _, err := h.Fleet.VerifyInsurance(ctx, ins.vehicleID, "Pioneer Insurance", "PPAI-"+ins.vehicleID,
			h.dateIn(ins.days), "compliance-joy"); err != nil {
			return err
		}
	}

	drivers := []ltfrb.Driver{
		{ID: "drv-101", Name: "Ramon Bautista", LicenseNumber: "N10-15-000101", LicenseType: ltfrb.LicenseProfessional,
			LicenseExpiry: h.dateIn(-3), TrainingCompleted: true, VehicleID: "veh-101"},
		{ID: "drv-102", Name: "Liza Mendoza", LicenseNumber: "N10-17-000102", LicenseType: ltfrb.LicenseNonProfessional,
			LicenseExpiry: h.dateIn(400), TrainingCompleted: true, VehicleID: "veh-102"},
		{ID: "drv-103", Name: "Carlo Reyes", LicenseNumber: "N10-19-000103", LicenseType: ltfrb.LicenseProfessional,
			LicenseExpiry: h.dateIn(25), TrainingCompleted: false, VehicleID: "veh-103"},
		{ID: "drv-104", Name: "Grace Villanueva", LicenseNumber: "N10-20-000104", LicenseType: ltfrb.LicenseProfessional,
			LicenseExpiry: h.dateIn(800), TrainingCompleted: true, VehicleID: "veh-105"},
	}
	for _, d := range drivers {
		if _, err := h.Fleet.RegisterDriver(ctx, d); err != nil {
			return err
		}
	}

	// Overdue and nearly due data-subject requests
	dsrs := []dpa.Request{
		{SubjectID: "rdr-zoe", SubjectType: dpa.SubjectRider, Type: dpa.TypeAccess, ReceivedAt: h.daysAgo(45)},
		{SubjectID: "drv-102", SubjectType: dpa.SubjectDriver, Type: dpa.TypeErasure, ReceivedAt: h.daysAgo(33)},
		{SubjectID: "rdr-yuri", SubjectType: dpa.SubjectRider, Type: dpa.TypePortability, ReceivedAt: h.daysAgo(26)},
	}
	for _, r := range dsrs {
		if _, err := h.Privacy.Submit(ctx, r, "privacy-officer"); err != nil {
			return err
		}
	}

	// Maya settlement with one mismatch and one reference we never captured
	var lines []payments.SettlementLine
	for i, amount := range []float64{210, 315.5, 189} {
		tx, err := h.Payments.RecordTransaction(ctx, payments.Transaction{
			ID:          fmt.Sprintf("txn-audit-%02d", i+1),
			RideID:      fmt.Sprintf("ride-2%03d", i+1),
			RiderID:     "rdr-zoe",
			DriverID:    "drv-104",
			Method:      payments.MethodMaya,
			Amount:      core.PHP(amount),
			ProviderRef: fmt.Sprintf("maya-%06d", 700100+i),
			CreatedAt:   h.daysAgo(3 - i),
		})
		if err != nil {
			return err
		}
		settled := tx.Amount
		if i == 1 {
			settled = core.PHP(amount - 15)
		}
		lines = append(lines, payments.SettlementLine{ProviderRef: tx.ProviderRef, Amount: settled, SettledAt: h.daysAgo(1)})
	}
	lines = append(lines, payments.SettlementLine{ProviderRef: "maya-799999", Amount: core.PHP(99), SettledAt: h.daysAgo(1)})

	_, err := h.Payments.Reconcile(ctx, "maya", core.Period{Start: core.Day(h.daysAgo(7)), End: core.Day(h.now())}, lines, "finance-marco")
	return err
}
