/*
ltfrb_test.go - TNVS rules and the vehicle/driver registry

Tests for:
- Vehicle and driver rules (codes, severities)
- Fare ceiling and surge cap
- Registration and insurance verification
- Trip checks and the fleet report
*/
package ltfrb_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/warp/ops-console/compliance/ltfrb"
	"github.com/warp/ops-console/core"
	"github.com/warp/ops-console/store/sqlite"
)

var asOf = time.Date(2026, 10, 15, 0, 0, 0, 0, time.UTC)

func days(n int) time.Time { return asOf.AddDate(0, 0, n) }

func ptr(t time.Time) *time.Time { return &t }

func codes(r ltfrb.Result) []string {
	var out []string
	for _, f := range r.Findings {
		out = append(out, f.Code)
	}
	return out
}

func compliantVehicle() ltfrb.Vehicle {
	return ltfrb.Vehicle{
		ID: "veh-1", PlateNumber: "NAB 1234", CaseNumber: "2023-11-00123", YearModel: 2024,
		FranchiseExpiry: days(400), InsuranceExpiry: ptr(days(300)), Status: ltfrb.VehicleActive,
	}
}

func compliantDriver() ltfrb.Driver {
	return ltfrb.Driver{
		ID: "drv-1", Name: "Juan Dela Cruz", LicenseNumber: "N01-19-123456", LicenseType: ltfrb.LicenseProfessional,
		LicenseExpiry: days(700), TrainingCompleted: true,
	}
}

// =============================================================================
// RULES
// =============================================================================

func TestEvaluateVehicle(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(v *ltfrb.Vehicle)
		codes     []string
		compliant bool
	}{
		{"compliant", func(v *ltfrb.Vehicle) {}, nil, true},
		{"franchise expiring", func(v *ltfrb.Vehicle) { v.FranchiseExpiry = days(30) }, []string{"franchise_expiring"}, true},
		{"franchise expires today", func(v *ltfrb.Vehicle) { v.FranchiseExpiry = days(0) }, []string{"franchise_expiring"}, true},
		{"franchise expired", func(v *ltfrb.Vehicle) { v.FranchiseExpiry = days(-1) }, []string{"franchise_expired"}, false},
		{"outside warning window", func(v *ltfrb.Vehicle) { v.FranchiseExpiry = days(31) }, nil, true},
		{"no insurance", func(v *ltfrb.Vehicle) { v.InsuranceExpiry = nil }, []string{"insurance_missing"}, false},
		{"insurance expired", func(v *ltfrb.Vehicle) { v.InsuranceExpiry = ptr(days(-10)) }, []string{"insurance_expired"}, false},
		{"at max age", func(v *ltfrb.Vehicle) { v.YearModel = 2019 }, nil, true},
		{"too old", func(v *ltfrb.Vehicle) { v.YearModel = 2018 }, []string{"vehicle_too_old"}, false},
		{"suspended", func(v *ltfrb.Vehicle) { v.Status = ltfrb.VehicleSuspended }, []string{"vehicle_suspended"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := compliantVehicle()
			tt.mutate(&v)

			r := ltfrb.EvaluateVehicle(v, asOf, ltfrb.DefaultMaxVehicleAge)

			assert.Equal(t, tt.codes, codes(r))
			assert.Equal(t, tt.compliant, r.Compliant())
			assert.Equal(t, "vehicle", r.Kind)
		})
	}
}

func TestEvaluateDriver(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(d *ltfrb.Driver)
		codes     []string
		compliant bool
	}{
		{"compliant", func(d *ltfrb.Driver) {}, nil, true},
		{"license expiring", func(d *ltfrb.Driver) { d.LicenseExpiry = days(10) }, []string{"license_expiring"}, true},
		{"license expired", func(d *ltfrb.Driver) { d.LicenseExpiry = days(-3) }, []string{"license_expired"}, false},
		{"non-professional", func(d *ltfrb.Driver) { d.LicenseType = ltfrb.LicenseNonProfessional }, []string{"license_not_professional"}, false},
		{"no training", func(d *ltfrb.Driver) { d.TrainingCompleted = false }, []string{"training_missing"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := compliantDriver()
			tt.mutate(&d)

			r := ltfrb.EvaluateDriver(d, asOf)

			assert.Equal(t, tt.codes, codes(r))
			assert.Equal(t, tt.compliant, r.Compliant())
		})
	}
}

func TestFareMatrix_Ceiling(t *testing.T) {
	m := ltfrb.DefaultFareMatrix
	km, min := decimal.NewFromInt(10), decimal.NewFromInt(20)

	// 40 + 15*10 + 2*20 = 230
	assert.Equal(t, "230.00", m.Ceiling(km, min, decimal.NewFromInt(1)).Amount.StringFixed(2))
	assert.Equal(t, "345.00", m.Ceiling(km, min, decimal.RequireFromString("1.5")).Amount.StringFixed(2))
	// surge is clamped to [1, cap]
	assert.Equal(t, "460.00", m.Ceiling(km, min, decimal.NewFromInt(3)).Amount.StringFixed(2))
	assert.Equal(t, "230.00", m.Ceiling(km, min, decimal.Zero).Amount.StringFixed(2))
}

// =============================================================================
// SERVICE
// =============================================================================

func newService(t *testing.T) (*ltfrb.Service, *sqlite.Store) {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	return ltfrb.NewService(store, ltfrb.Options{}, store, zap.NewNop()), store
}

func today(n int) time.Time { return core.Day(time.Now()).AddDate(0, 0, n) }

func register(t *testing.T, svc *ltfrb.Service, vehicleID, plate string, franchiseDays, insuranceDays int) {
	t.Helper()
	ctx := context.Background()
	_, err := svc.RegisterVehicle(ctx, ltfrb.Vehicle{
		ID: vehicleID, PlateNumber: plate, CaseNumber: "2024-01-" + vehicleID,
		YearModel: time.Now().Year() - 1, FranchiseExpiry: today(franchiseDays),
	})
	require.NoError(t, err)
	if insuranceDays != 0 {
		_, err = svc.VerifyInsurance(ctx, vehicleID, "Malayan Insurance", "PPAI-"+vehicleID, today(insuranceDays), "compliance")
		require.NoError(t, err)
	}
}

func TestRegisterVehicle(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	v, err := svc.RegisterVehicle(ctx, ltfrb.Vehicle{
		PlateNumber: " nab 1234 ", CaseNumber: "2023-11-00123", YearModel: 2024, FranchiseExpiry: today(100),
	})
	require.NoError(t, err)
	assert.Equal(t, "NAB 1234", v.PlateNumber)
	assert.Equal(t, ltfrb.VehicleActive, v.Status)
	assert.Contains(t, v.ID, "veh-")

	got, err := svc.GetVehicle(ctx, v.ID)
	require.NoError(t, err)
	assert.Equal(t, v.CaseNumber, got.CaseNumber)
	assert.Nil(t, got.InsuranceExpiry)

	_, err = svc.RegisterVehicle(ctx, ltfrb.Vehicle{})
	var fe *core.FieldError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, []string{"plate_number", "case_number", "year_model", "franchise_expiry"}, fe.Fields)

	_, err = svc.GetVehicle(ctx, "veh-missing")
	assert.True(t, core.IsNotFound(err))
}

func TestRegisterDriver(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	d, err := svc.RegisterDriver(ctx, ltfrb.Driver{Name: "Maria Santos", LicenseNumber: "N02-18-654321", LicenseExpiry: today(500)})
	require.NoError(t, err)
	assert.Equal(t, ltfrb.LicenseProfessional, d.LicenseType)

	_, err = svc.RegisterDriver(ctx, ltfrb.Driver{Name: "X", LicenseNumber: "N1", LicenseExpiry: today(1), LicenseType: "student"})
	assert.True(t, core.IsClientError(err))

	_, err = svc.GetDriver(ctx, "drv-missing")
	assert.True(t, core.IsNotFound(err))

	list, err := svc.ListDrivers(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestVerifyInsurance(t *testing.T) {
	svc, store := newService(t)
	ctx := context.Background()
	register(t, svc, "veh-1", "NAB 1234", 400, 0)

	// WHEN: a current policy is verified
	ins, err := svc.VerifyInsurance(ctx, "veh-1", "Malayan Insurance", "PPAI-1", today(200), "compliance-joy")
	require.NoError(t, err)
	assert.Equal(t, ltfrb.InsuranceVerified, ins.Status)

	// THEN: the vehicle carries its expiry
	v, err := svc.GetVehicle(ctx, "veh-1")
	require.NoError(t, err)
	require.NotNil(t, v.InsuranceExpiry)
	assert.True(t, today(200).Equal(*v.InsuranceExpiry))

	// WHEN: a lapsed policy is verified
	lapsed, err := svc.VerifyInsurance(ctx, "veh-1", "Pioneer", "PPAI-0", today(-5), "compliance-joy")
	require.NoError(t, err)
	assert.Equal(t, ltfrb.InsuranceExpired, lapsed.Status)

	// THEN: the vehicle keeps the current expiry
	v, err = svc.GetVehicle(ctx, "veh-1")
	require.NoError(t, err)
	assert.True(t, today(200).Equal(*v.InsuranceExpiry))

	history, err := svc.InsuranceHistory(ctx, "veh-1")
	require.NoError(t, err)
	assert.Len(t, history, 2)

	entries, err := store.QueryAudit(ctx, core.AuditFilter{Subject: "veh-1", Action: core.AuditInsuranceVerified})
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	_, err = svc.VerifyInsurance(ctx, "veh-missing", "Pioneer", "P", today(10), "compliance")
	assert.True(t, core.IsNotFound(err))

	_, err = svc.VerifyInsurance(ctx, "veh-1", "", "", time.Time{}, "compliance")
	assert.True(t, core.IsClientError(err))
}

func TestCheckTrip(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	register(t, svc, "veh-1", "NAB 1234", 400, 300)
	_, err := svc.RegisterDriver(ctx, ltfrb.Driver{ID: "drv-1", Name: "Juan", LicenseNumber: "N01", LicenseExpiry: today(500), TrainingCompleted: true})
	require.NoError(t, err)

	trip := ltfrb.Trip{
		TripID: "ride-1", VehicleID: "veh-1", DriverID: "drv-1",
		DistanceKm: decimal.NewFromInt(10), DurationMinutes: decimal.NewFromInt(20),
		SurgeMultiplier: decimal.NewFromInt(1), FareCharged: core.PHP(230),
	}

	r, err := svc.CheckTrip(ctx, trip)
	require.NoError(t, err)
	assert.Empty(t, r.Findings)
	assert.True(t, r.Compliant())

	trip.FareCharged = core.PHP(230.01)
	trip.SurgeMultiplier = decimal.NewFromInt(3)
	r, err = svc.CheckTrip(ctx, trip)
	require.NoError(t, err)
	assert.Equal(t, []string{"surge_above_cap"}, codes(*r), "fare is within the capped ceiling")

	trip.FareCharged = core.PHP(500)
	r, err = svc.CheckTrip(ctx, trip)
	require.NoError(t, err)
	assert.Equal(t, []string{"fare_above_ceiling", "surge_above_cap"}, codes(*r))
	assert.False(t, r.Compliant())
}

func TestCheckTrip_NonCompliantParties(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	register(t, svc, "veh-1", "NAB 1234", -1, 0)
	_, err := svc.RegisterDriver(ctx, ltfrb.Driver{ID: "drv-1", Name: "Juan", LicenseNumber: "N01",
		LicenseType: ltfrb.LicenseNonProfessional, LicenseExpiry: today(500), TrainingCompleted: true})
	require.NoError(t, err)

	r, err := svc.CheckTrip(ctx, ltfrb.Trip{TripID: "ride-1", VehicleID: "veh-1", DriverID: "drv-1",
		SurgeMultiplier: decimal.NewFromInt(1), FareCharged: core.PHP(40)})
	require.NoError(t, err)
	assert.Equal(t, []string{"vehicle_non_compliant", "driver_non_compliant"}, codes(*r))

	_, err = svc.CheckTrip(ctx, ltfrb.Trip{})
	assert.True(t, core.IsClientError(err))

	_, err = svc.CheckTrip(ctx, ltfrb.Trip{VehicleID: "veh-1", DriverID: "drv-1", DistanceKm: decimal.NewFromInt(-1)})
	assert.True(t, core.IsClientError(err))
}

func TestReport(t *testing.T) {
	// GIVEN: a clean vehicle, an expiring one and an uninsured one
	svc, _ := newService(t)
	ctx := context.Background()
	register(t, svc, "veh-1", "NAA 0001", 400, 300)
	register(t, svc, "veh-2", "NAA 0002", 12, 300)
	register(t, svc, "veh-3", "NAA 0003", 400, 0)
	_, err := svc.RegisterDriver(ctx, ltfrb.Driver{ID: "drv-1", Name: "Ramon", LicenseNumber: "N10", LicenseExpiry: today(-3), TrainingCompleted: true})
	require.NoError(t, err)

	// WHEN
	rep, err := svc.Report(ctx, time.Now())
	require.NoError(t, err)

	// THEN
	assert.Equal(t, 3, rep.Vehicles)
	assert.Equal(t, 2, rep.CompliantVehicles)
	require.Len(t, rep.NonCompliantVehicles, 1)
	assert.Equal(t, "veh-3", rep.NonCompliantVehicles[0].SubjectID)
	require.Len(t, rep.ExpiringSoon, 1)
	assert.Equal(t, "veh-2", rep.ExpiringSoon[0].SubjectID)

	assert.Equal(t, 1, rep.Drivers)
	assert.Zero(t, rep.CompliantDrivers)
	require.Len(t, rep.NonCompliantDrivers, 1)
	assert.Equal(t, []string{"license_expired"}, codes(rep.NonCompliantDrivers[0]))
}
