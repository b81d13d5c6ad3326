/*
endpoints_test.go - HTTP tests for the earnings and compliance write paths

Tests for:
- Earnings: record, top earners, payouts and their status flow
- BIR: issue, void, monthly summary
- DPA: submit, transition, export
- LTFRB: vehicles, insurance, drivers, trip checks
- KPI comparison against the previous period
- Rejections (400, 404, 409) across all of the above
*/
package api

import (
	"net/http"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (s *testServer) date(years, months, days int) string {
	return s.h.now().AddDate(years, months, days).Format("2006-01-02")
}

func (s *testServer) recordEarning(driverID, rideID, typ string, amount float64) EarningDTO {
	s.t.Helper()
	rec, env := s.do(http.MethodPost, "/api/earnings", RecordEarningRequest{
		DriverID: driverID, RideID: rideID, Type: typ, Amount: amount,
	})
	require.Equal(s.t, http.StatusCreated, rec.Code, rec.Body.String())
	return decodeData[EarningDTO](s.t, env)
}

// =============================================================================
// EARNINGS
// =============================================================================

func TestEarningsEndpoints(t *testing.T) {
	// GIVEN: a fare and a tip for one driver, a smaller fare for another
	s := newTestServer(t, RouterOptions{})
	fare := s.recordEarning("drv-001", "ride-1", "ride_fare", 500)
	assert.Equal(t, "PHP", fare.Currency)
	assert.Equal(t, 500.0, fare.Amount)
	s.recordEarning("drv-001", "", "tip", 50)
	s.recordEarning("drv-002", "ride-2", "ride_fare", 300)

	// WHEN: finance looks at the leaderboard
	rec, env := s.do(http.MethodGet, "/api/earnings/top?limit=1", nil)

	// THEN: the best net earner is first and the limit holds
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	top := decodeData[[]DriverTotalDTO](t, env)
	require.Len(t, top, 1)
	assert.Equal(t, "drv-001", top[0].DriverID)
	assert.Equal(t, 550.0, top[0].Gross)
	assert.Equal(t, 445.5, top[0].Net)
	assert.Equal(t, 1, top[0].TripCount)

	// WHEN: the driver's unpaid earnings are swept into a payout
	rec, env = s.do(http.MethodPost, "/api/earnings/drivers/drv-001/payouts", CreatePayoutRequest{Method: "gcash"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	payout := decodeData[PayoutDTO](t, env)

	// THEN: commission is on the fare only and withholding on the rest
	assert.Equal(t, "pending", payout.Status)
	assert.Equal(t, 2, payout.EarningCount)
	assert.Equal(t, 550.0, payout.Gross)
	assert.Equal(t, 100.0, payout.Commission)
	assert.Equal(t, 4.5, payout.Withholding)
	assert.Equal(t, 445.5, payout.Net)

	rec, _ = s.do(http.MethodPost, "/api/earnings/drivers/drv-001/payouts", CreatePayoutRequest{Method: "gcash"})
	assert.Equal(t, http.StatusBadRequest, rec.Code, "nothing left to pay out")

	steps := []struct {
		status string
		want   int
	}{
		{"completed", http.StatusConflict},
		{"processing", http.StatusOK},
		{"processing", http.StatusConflict},
		{"completed", http.StatusOK},
		{"failed", http.StatusConflict},
	}
	for _, step := range steps {
		rec, env = s.do(http.MethodPost, "/api/earnings/payouts/"+payout.ID+"/status", PayoutStatusRequest{Status: step.status})
		assert.Equal(t, step.want, rec.Code, "%s: %s", step.status, rec.Body.String())
		if step.want == http.StatusOK {
			assert.Equal(t, "payout "+step.status, env.Message)
		}
	}

	rec, env = s.do(http.MethodGet, "/api/earnings/drivers/drv-001/payouts", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decodeData[[]PayoutDTO](t, env)
	require.Len(t, list, 1)
	assert.Equal(t, "completed", list[0].Status)
}

// =============================================================================
// BIR
// =============================================================================

func TestReceiptEndpoints(t *testing.T) {
	// GIVEN: two captured payments and a failed one
	s := newTestServer(t, RouterOptions{})
	s.recordTransaction("txn-1", 112)
	s.recordTransaction("txn-2", 50)
	rec, _ := s.do(http.MethodPost, "/api/payments/transactions", RecordTransactionRequest{
		ID: "txn-3", RideID: "ride-3", RiderID: "rdr-ana", Method: "card", Status: "failed", Amount: 80,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	series := "OR-" + strconv.Itoa(s.h.now().Year())

	// WHEN: receipts are issued for both captures
	rec, env := s.do(http.MethodPost, "/api/compliance/bir/receipts", IssueReceiptRequest{TransactionID: "txn-1"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	first := decodeData[ReceiptDTO](t, env)
	assert.Equal(t, "receipt "+series+"-000001 issued", env.Message)

	rec, env = s.do(http.MethodPost, "/api/compliance/bir/receipts", IssueReceiptRequest{
		TransactionID: "txn-2", BuyerName: "Acme Logistics", BuyerTIN: "123-456-789-000", TaxType: "vat_exempt",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	second := decodeData[ReceiptDTO](t, env)

	// THEN: numbers run in sequence and VAT is split out of the inclusive total
	assert.Equal(t, series+"-000001", first.Number)
	assert.Equal(t, "vatable", first.TaxType)
	assert.Equal(t, 100.0, first.VatableSales)
	assert.Equal(t, 12.0, first.VAT)
	assert.Equal(t, series+"-000002", second.Number)
	assert.Equal(t, 50.0, second.VATExempt)
	assert.Zero(t, second.VAT)

	rec, env = s.do(http.MethodPost, "/api/compliance/bir/receipts", IssueReceiptRequest{TransactionID: "txn-3"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, env.Error, "only settled payments")

	// WHEN: the second receipt is voided
	rec, env = s.do(http.MethodPost, "/api/compliance/bir/receipts/"+second.ID+"/void", VoidReceiptRequest{Reason: "wrong buyer TIN"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	voided := decodeData[ReceiptDTO](t, env)
	assert.Equal(t, "void", voided.Status)
	assert.Equal(t, "wrong buyer TIN", voided.VoidReason)
	assert.NotEmpty(t, voided.VoidedAt)

	rec, _ = s.do(http.MethodPost, "/api/compliance/bir/receipts/"+second.ID+"/void", VoidReceiptRequest{Reason: "again"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	// THEN: the month counts the void but leaves it out of the amounts
	rec, env = s.do(http.MethodGet, "/api/compliance/bir/summary", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	sum := decodeData[SummaryDTO](t, env)
	assert.Equal(t, 1, sum.Issued)
	assert.Equal(t, 1, sum.Voided)
	assert.Equal(t, first.Number, sum.FirstNumber)
	assert.Equal(t, second.Number, sum.LastNumber)
	assert.Equal(t, 112.0, sum.Gross)
	assert.Equal(t, 12.0, sum.VAT)
	assert.Zero(t, sum.VATExempt)

	rec, env = s.do(http.MethodGet, "/api/compliance/bir/summary?year=2020&month=1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	empty := decodeData[SummaryDTO](t, env)
	assert.Zero(t, empty.Issued)
	assert.Empty(t, empty.FirstNumber)
}

// =============================================================================
// DPA
// =============================================================================

func TestSubjectRequestEndpoints(t *testing.T) {
	// GIVEN: a rider with one payment asks for their data
	s := newTestServer(t, RouterOptions{})
	s.recordTransaction("txn-1", 245.5)

	rec, env := s.do(http.MethodPost, "/api/compliance/dpa/requests", SubmitDSRRequest{
		SubjectID: "rdr-ana", SubjectType: "rider", Type: "access", Details: "All trip and payment records",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	access := decodeData[DSRDTO](t, env)
	assert.Equal(t, "received", access.Status)
	assert.Equal(t, 30, access.DaysLeft)
	assert.False(t, access.Overdue)
	assert.Equal(t, "request received, due "+access.DueAt[:len("2006-01-02")], env.Message)

	// WHEN: the export is generated
	rec, env = s.do(http.MethodGet, "/api/compliance/dpa/requests/"+access.ID+"/export", nil)

	// THEN: it carries the subject's payments
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	exp := decodeData[ExportDTO](t, env)
	assert.Equal(t, access.ID, exp.Request.ID)
	require.Len(t, exp.Transactions, 1)
	assert.Equal(t, "txn-1", exp.Transactions[0].ID)
	assert.NotEmpty(t, exp.GeneratedAt)

	// the status flow, step by step
	steps := []struct {
		name string
		body TransitionDSRRequest
		want int
	}{
		{"unknown status", TransitionDSRRequest{Status: "bogus"}, http.StatusBadRequest},
		{"skip ahead", TransitionDSRRequest{Status: "completed", Resolution: "sent"}, http.StatusConflict},
		{"start work", TransitionDSRRequest{Status: "in_progress"}, http.StatusOK},
		{"close without resolution", TransitionDSRRequest{Status: "completed"}, http.StatusBadRequest},
		{"close", TransitionDSRRequest{Status: "completed", Resolution: "Export emailed"}, http.StatusOK},
		{"reopen", TransitionDSRRequest{Status: "in_progress"}, http.StatusConflict},
	}
	for _, step := range steps {
		rec, env = s.do(http.MethodPost, "/api/compliance/dpa/requests/"+access.ID+"/transition", step.body)
		assert.Equal(t, step.want, rec.Code, "%s: %s", step.name, rec.Body.String())
	}

	rec, env = s.do(http.MethodGet, "/api/compliance/dpa/requests/"+access.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	done := decodeData[DSRDTO](t, env)
	assert.Equal(t, "completed", done.Status)
	assert.Equal(t, "Export emailed", done.Resolution)
	assert.Equal(t, "console", done.HandledBy)
	assert.NotEmpty(t, done.CompletedAt)

	// erasure requests have nothing to export
	rec, env = s.do(http.MethodPost, "/api/compliance/dpa/requests", SubmitDSRRequest{
		SubjectID: "rdr-ana", SubjectType: "rider", Type: "erasure",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	erasure := decodeData[DSRDTO](t, env)
	rec, _ = s.do(http.MethodGet, "/api/compliance/dpa/requests/"+erasure.ID+"/export", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// =============================================================================
// LTFRB
// =============================================================================

func TestFleetEndpoints(t *testing.T) {
	s := newTestServer(t, RouterOptions{})

	// GIVEN: a new vehicle without insurance on file
	rec, env := s.do(http.MethodPost, "/api/compliance/ltfrb/vehicles", RegisterVehicleRequest{
		ID: "veh-1", PlateNumber: " nab 1234 ", CaseNumber: "2023-11-00123", Make: "Toyota", Model: "Vios",
		YearModel: s.h.now().Year() - 1, FranchiseExpiry: s.date(1, 0, 0),
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	vehicle := decodeData[VehicleDTO](t, env)
	assert.Equal(t, "NAB 1234", vehicle.PlateNumber)
	assert.Equal(t, "active", vehicle.Status)
	require.NotNil(t, vehicle.Check)
	assert.False(t, vehicle.Check.Compliant)
	require.Len(t, vehicle.Check.Findings, 1)
	assert.Equal(t, "insurance_missing", vehicle.Check.Findings[0].Code)

	// WHEN: one lapsed policy and one current policy are verified
	rec, env = s.do(http.MethodPost, "/api/compliance/ltfrb/vehicles/veh-1/insurance", VerifyInsuranceRequest{
		Provider: "Malayan", PolicyNumber: "POL-OLD", CoverageEnd: s.date(0, 0, -10),
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "expired", decodeData[InsuranceVerificationDTO](t, env).Status)

	rec, env = s.do(http.MethodPost, "/api/compliance/ltfrb/vehicles/veh-1/insurance", VerifyInsuranceRequest{
		Provider: "Malayan", PolicyNumber: "POL-NEW", CoverageEnd: s.date(1, 0, 0),
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	verified := decodeData[InsuranceVerificationDTO](t, env)
	assert.Equal(t, "verified", verified.Status)
	assert.Equal(t, "console", verified.VerifiedBy)

	// THEN: the vehicle is compliant and keeps both checks on record
	rec, env = s.do(http.MethodGet, "/api/compliance/ltfrb/vehicles/veh-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	vehicle = decodeData[VehicleDTO](t, env)
	assert.Equal(t, s.date(1, 0, 0), vehicle.InsuranceExpiry)
	require.NotNil(t, vehicle.Check)
	assert.True(t, vehicle.Check.Compliant)
	assert.Empty(t, vehicle.Check.Findings)
	assert.Len(t, vehicle.Insurance, 2)

	// a professional driver with the seminar done
	rec, env = s.do(http.MethodPost, "/api/compliance/ltfrb/drivers", RegisterDriverRequest{
		ID: "drv-1", Name: "Juan dela Cruz", LicenseNumber: "N01-23-456789", LicenseType: "professional",
		LicenseExpiry: s.date(2, 0, 0), TrainingCompleted: true, VehicleID: "veh-1",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	driver := decodeData[DriverDTO](t, env)
	require.NotNil(t, driver.Check)
	assert.True(t, driver.Check.Compliant)

	// 40 base + 10 km x 15 + 20 min x 2 = 230
	trips := []struct {
		name      string
		fare      float64
		surge     float64
		compliant bool
		codes     []string
	}{
		{"at the ceiling", 230, 1, true, nil},
		{"overcharged", 230.01, 1, false, []string{"fare_above_ceiling"}},
		{"surge over the cap", 100, 3, true, []string{"surge_above_cap"}},
	}
	for _, tt := range trips {
		t.Run(tt.name, func(t *testing.T) {
			rec, env := s.do(http.MethodPost, "/api/compliance/ltfrb/trips/check", TripCheckRequest{
				TripID: "trip-1", VehicleID: "veh-1", DriverID: "drv-1",
				DistanceKm: 10, DurationMinutes: 20, SurgeMultiplier: tt.surge, Fare: tt.fare,
			})
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
			check := decodeData[CheckDTO](t, env)
			assert.Equal(t, "trip", check.Kind)
			assert.Equal(t, tt.compliant, check.Compliant)
			var codes []string
			for _, f := range check.Findings {
				codes = append(codes, f.Code)
			}
			assert.Equal(t, tt.codes, codes)
		})
	}
}

// =============================================================================
// KPI COMPARISON
// =============================================================================

func TestCompareKPIsEndpoint(t *testing.T) {
	// GIVEN: one capture yesterday and two today
	s := newTestServer(t, RouterOptions{})
	yesterday := s.h.daysAgo(1).Format("2006-01-02T15:04:05Z07:00")
	rec, _ := s.do(http.MethodPost, "/api/payments/transactions", RecordTransactionRequest{
		ID: "txn-0", RideID: "ride-0", RiderID: "rdr-ana", Method: "maya", Amount: 150, CreatedAt: yesterday,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	s.recordTransaction("txn-1", 100)
	s.recordTransaction("txn-2", 200)
	today := s.date(0, 0, 0)

	// WHEN
	rec, env := s.do(http.MethodGet, "/api/billing/kpis/compare?from="+today+"&to="+today, nil)

	// THEN: today is measured against yesterday
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	cmp := decodeData[ComparisonDTO](t, env)
	assert.Equal(t, 2, cmp.Current.TransactionCount)
	assert.Equal(t, 1, cmp.Previous.TransactionCount)
	assert.Equal(t, s.date(0, 0, -1), cmp.Previous.From)
	assert.Equal(t, cmp.Previous.From, cmp.Previous.To)
	require.NotNil(t, cmp.GrossChange)
	assert.Equal(t, 100.0, *cmp.GrossChange)
	require.NotNil(t, cmp.CountChange)
	assert.Equal(t, 100.0, *cmp.CountChange)
}

// =============================================================================
// REJECTIONS
// =============================================================================

func TestWriteEndpoints_RejectBadRequests(t *testing.T) {
	s := newTestServer(t, RouterOptions{})
	s.recordTransaction("txn-1", 100)
	rec, env := s.do(http.MethodPost, "/api/compliance/dpa/requests", SubmitDSRRequest{
		SubjectID: "rdr-ana", SubjectType: "rider", Type: "access",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	dsr := decodeData[DSRDTO](t, env)

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		want   int
	}{
		{"transaction in dollars", http.MethodPost, "/api/payments/transactions", RecordTransactionRequest{RideID: "r", RiderID: "u", Method: "card", Amount: 10, Currency: "USD"}, http.StatusBadRequest},
		{"refund below a centavo", http.MethodPost, "/api/payments/refunds", RequestRefundRequest{TransactionID: "txn-1", Amount: 0.001, Reason: "rounding"}, http.StatusBadRequest},
		{"earning without fields", http.MethodPost, "/api/earnings", RecordEarningRequest{}, http.StatusBadRequest},
		{"earning of unknown type", http.MethodPost, "/api/earnings", RecordEarningRequest{DriverID: "drv-1", Type: "salary", Amount: 10}, http.StatusBadRequest},
		{"earning below a centavo", http.MethodPost, "/api/earnings", RecordEarningRequest{DriverID: "drv-1", Type: "tip", Amount: 0.005}, http.StatusBadRequest},
		{"payout with nothing unpaid", http.MethodPost, "/api/earnings/drivers/drv-9/payouts", CreatePayoutRequest{Method: "gcash"}, http.StatusBadRequest},
		{"payout with unknown method", http.MethodPost, "/api/earnings/drivers/drv-9/payouts", CreatePayoutRequest{Method: "cheque"}, http.StatusBadRequest},
		{"status of missing payout", http.MethodPost, "/api/earnings/payouts/pay-missing/status", PayoutStatusRequest{Status: "processing"}, http.StatusNotFound},
		{"top with bad limit", http.MethodGet, "/api/earnings/top?limit=many", nil, http.StatusBadRequest},
		{"compare with bad date", http.MethodGet, "/api/billing/kpis/compare?from=yesterday", nil, http.StatusBadRequest},
		{"receipt for missing payment", http.MethodPost, "/api/compliance/bir/receipts", IssueReceiptRequest{TransactionID: "txn-missing"}, http.StatusNotFound},
		{"receipt with unknown tax type", http.MethodPost, "/api/compliance/bir/receipts", IssueReceiptRequest{TransactionID: "txn-1", TaxType: "luxury"}, http.StatusBadRequest},
		{"void without reason", http.MethodPost, "/api/compliance/bir/receipts/rct-missing/void", VoidReceiptRequest{}, http.StatusBadRequest},
		{"void of missing receipt", http.MethodPost, "/api/compliance/bir/receipts/rct-missing/void", VoidReceiptRequest{Reason: "typo"}, http.StatusNotFound},
		{"summary for month 13", http.MethodGet, "/api/compliance/bir/summary?month=13", nil, http.StatusBadRequest},
		{"request for unknown subject type", http.MethodPost, "/api/compliance/dpa/requests", SubmitDSRRequest{SubjectID: "x", SubjectType: "operator", Type: "access"}, http.StatusBadRequest},
		{"request of unknown type", http.MethodPost, "/api/compliance/dpa/requests", SubmitDSRRequest{SubjectID: "x", SubjectType: "rider", Type: "audit"}, http.StatusBadRequest},
		{"transition to unknown status", http.MethodPost, "/api/compliance/dpa/requests/" + dsr.ID + "/transition", TransitionDSRRequest{Status: "bogus"}, http.StatusBadRequest},
		{"transition of missing request", http.MethodPost, "/api/compliance/dpa/requests/dsr-missing/transition", TransitionDSRRequest{Status: "in_progress"}, http.StatusNotFound},
		{"export of missing request", http.MethodGet, "/api/compliance/dpa/requests/dsr-missing/export", nil, http.StatusNotFound},
		{"vehicle too old to register", http.MethodPost, "/api/compliance/ltfrb/vehicles", RegisterVehicleRequest{PlateNumber: "ABC 123", CaseNumber: "c", YearModel: 1985, FranchiseExpiry: "2030-01-01"}, http.StatusBadRequest},
		{"vehicle with bad franchise date", http.MethodPost, "/api/compliance/ltfrb/vehicles", RegisterVehicleRequest{PlateNumber: "ABC 123", CaseNumber: "c", YearModel: 2022, FranchiseExpiry: "01/01/2030"}, http.StatusBadRequest},
		{"insurance for missing vehicle", http.MethodPost, "/api/compliance/ltfrb/vehicles/veh-missing/insurance", VerifyInsuranceRequest{Provider: "p", PolicyNumber: "n", CoverageEnd: "2030-01-01"}, http.StatusNotFound},
		{"insurance without policy", http.MethodPost, "/api/compliance/ltfrb/vehicles/veh-missing/insurance", VerifyInsuranceRequest{Provider: "p", CoverageEnd: "2030-01-01"}, http.StatusBadRequest},
		{"driver with student license", http.MethodPost, "/api/compliance/ltfrb/drivers", RegisterDriverRequest{Name: "n", LicenseNumber: "l", LicenseType: "student", LicenseExpiry: "2030-01-01"}, http.StatusBadRequest},
		{"trip without fare", http.MethodPost, "/api/compliance/ltfrb/trips/check", TripCheckRequest{VehicleID: "veh-1", DriverID: "drv-1"}, http.StatusBadRequest},
		{"trip on missing vehicle", http.MethodPost, "/api/compliance/ltfrb/trips/check", TripCheckRequest{VehicleID: "veh-missing", DriverID: "drv-1", Fare: 100}, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, env := s.do(tt.method, tt.path, tt.body)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
			assert.False(t, env.Success)
			assert.NotEmpty(t, env.Error)
		})
	}
}
