/*
compliance.go - Regulatory endpoints: BIR receipts, DPA requests, LTFRB fleet

ENDPOINTS:
  BIR (official receipts):
    GET    /api/compliance/bir/receipts            List (?from&to&status&transaction_id&limit)
    POST   /api/compliance/bir/receipts            Issue for a settled transaction
    GET    /api/compliance/bir/receipts/{id}       Get
    POST   /api/compliance/bir/receipts/{id}/void  Void with a reason
    GET    /api/compliance/bir/summary             Monthly summary (?year&month)

  DPA (data-subject requests):
    GET    /api/compliance/dpa/requests            List (?subject_id&status&open&overdue)
    POST   /api/compliance/dpa/requests            Submit
    GET    /api/compliance/dpa/requests/{id}       Get
    POST   /api/compliance/dpa/requests/{id}/transition  Move status
    GET    /api/compliance/dpa/requests/{id}/export      Data package

  LTFRB (franchise, insurance, licenses, fares):
    GET    /api/compliance/ltfrb/vehicles          List with checks
    POST   /api/compliance/ltfrb/vehicles          Register or update
    GET    /api/compliance/ltfrb/vehicles/{id}     Get with check and insurance history
    POST   /api/compliance/ltfrb/vehicles/{id}/insurance  Record a verification
    GET    /api/compliance/ltfrb/drivers           List with checks
    POST   /api/compliance/ltfrb/drivers           Register or update
    GET    /api/compliance/ltfrb/drivers/{id}      Get with check
    POST   /api/compliance/ltfrb/trips/check       Fare and eligibility check
    GET    /api/compliance/ltfrb/report            Fleet report (?as_of)

Checks default to today; ?as_of=YYYY-MM-DD evaluates another date.
*/
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/warp/ops-console/compliance/bir"
	"github.com/warp/ops-console/compliance/dpa"
	"github.com/warp/ops-console/compliance/ltfrb"
	"github.com/warp/ops-console/core"
)

// =============================================================================
// BIR
// =============================================================================

// ListReceipts handles GET /api/compliance/bir/receipts
func (h *Handler) ListReceipts(w http.ResponseWriter, r *http.Request) {
	period, err := h.optionalPeriod(r)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	q := r.URL.Query()
	receipts, err := h.Receipts.ListReceipts(r.Context(), bir.ReceiptFilter{
		Period:        period,
		Status:        bir.Status(q.Get("status")),
		TransactionID: q.Get("transaction_id"),
		Limit:         limit,
	})
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	dtos := make([]ReceiptDTO, len(receipts))
	for i, rc := range receipts {
		dtos[i] = toReceiptDTO(rc)
	}
	writeData(w, http.StatusOK, dtos, "")
}

// IssueReceipt handles POST /api/compliance/bir/receipts
func (h *Handler) IssueReceipt(w http.ResponseWriter, r *http.Request) {
	var req IssueReceiptRequest
	if err := h.decode(r, &req); err != nil {
		h.handleError(w, r, err)
		return
	}
	rc, err := h.Receipts.IssueReceipt(r.Context(), req.TransactionID, req.BuyerName, req.BuyerTIN,
		bir.TaxType(req.TaxType), actor(r))
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, toReceiptDTO(*rc), "receipt "+rc.Number+" issued")
}

// GetReceipt handles GET /api/compliance/bir/receipts/{id}
func (h *Handler) GetReceipt(w http.ResponseWriter, r *http.Request) {
	rc, err := h.Receipts.GetReceipt(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, toReceiptDTO(*rc), "")
}

// VoidReceipt handles POST /api/compliance/bir/receipts/{id}/void
// The number stays used; voided receipts are never renumbered.
func (h *Handler) VoidReceipt(w http.ResponseWriter, r *http.Request) {
	var req VoidReceiptRequest
	if err := h.decode(r, &req); err != nil {
		h.handleError(w, r, err)
		return
	}
	rc, err := h.Receipts.VoidReceipt(r.Context(), chi.URLParam(r, "id"), req.Reason, actor(r))
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, toReceiptDTO(*rc), "receipt "+rc.Number+" voided")
}

// GetReceiptSummary handles GET /api/compliance/bir/summary?year=2026&month=9
// Defaults to the current month.
func (h *Handler) GetReceiptSummary(w http.ResponseWriter, r *http.Request) {
	now := h.now()
	year, err := queryInt(r, "year", now.Year())
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	month, err := queryInt(r, "month", int(now.Month()))
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	if month < 1 || month > 12 {
		h.handleError(w, r, core.Invalid("month must be between 1 and 12"))
		return
	}

	sum, err := h.Receipts.MonthlySummary(r.Context(), year, time.Month(month))
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, toSummaryDTO(*sum), "")
}

// =============================================================================
// DPA
// =============================================================================

// ListSubjectRequests handles GET /api/compliance/dpa/requests
func (h *Handler) ListSubjectRequests(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	list, err := h.Privacy.List(r.Context(), dpa.Filter{
		SubjectID: q.Get("subject_id"),
		Status:    dpa.Status(q.Get("status")),
		OpenOnly:  queryBool(r, "open"),
	}, queryBool(r, "overdue"))
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, toDSRDTOs(list, h.now()), "")
}

// SubmitSubjectRequest handles POST /api/compliance/dpa/requests
func (h *Handler) SubmitSubjectRequest(w http.ResponseWriter, r *http.Request) {
	var req SubmitDSRRequest
	if err := h.decode(r, &req); err != nil {
		h.handleError(w, r, err)
		return
	}
	dsr, err := h.Privacy.Submit(r.Context(), dpa.Request{
		SubjectID:   req.SubjectID,
		SubjectType: dpa.SubjectType(req.SubjectType),
		Type:        dpa.RequestType(req.Type),
		Details:     req.Details,
	}, actor(r))
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, toDSRDTO(*dsr, h.now()), "request received, due "+core.FormatDate(dsr.DueAt))
}

// GetSubjectRequest handles GET /api/compliance/dpa/requests/{id}
func (h *Handler) GetSubjectRequest(w http.ResponseWriter, r *http.Request) {
	dsr, err := h.Privacy.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, toDSRDTO(*dsr, h.now()), "")
}

// TransitionSubjectRequest handles POST /api/compliance/dpa/requests/{id}/transition
func (h *Handler) TransitionSubjectRequest(w http.ResponseWriter, r *http.Request) {
	var req TransitionDSRRequest
	if err := h.decode(r, &req); err != nil {
		h.handleError(w, r, err)
		return
	}
	dsr, err := h.Privacy.Transition(r.Context(), chi.URLParam(r, "id"),
		dpa.Status(req.Status), req.Resolution, actor(r))
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, toDSRDTO(*dsr, h.now()), "")
}

// ExportSubjectData handles GET /api/compliance/dpa/requests/{id}/export
func (h *Handler) ExportSubjectData(w http.ResponseWriter, r *http.Request) {
	exp, err := h.Privacy.Export(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	now := h.now()
	writeData(w, http.StatusOK, ExportDTO{
		Request:       toDSRDTO(exp.Request, now),
		GeneratedAt:   formatInstant(exp.GeneratedAt),
		Transactions:  toTransactionDTOs(exp.Transactions),
		PriorRequests: toDSRDTOs(exp.PriorRequests, now),
	}, "")
}

// =============================================================================
// LTFRB
// =============================================================================

func (h *Handler) asOf(r *http.Request) (time.Time, error) {
	raw := r.URL.Query().Get("as_of")
	if raw == "" {
		return h.now(), nil
	}
	return parseDate("as_of", raw)
}

// ListVehicles handles GET /api/compliance/ltfrb/vehicles
func (h *Handler) ListVehicles(w http.ResponseWriter, r *http.Request) {
	asOf, err := h.asOf(r)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	vehicles, err := h.Fleet.ListVehicles(r.Context())
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	maxAge := h.Fleet.MaxVehicleAge()
	dtos := make([]VehicleDTO, len(vehicles))
	for i, v := range vehicles {
		dtos[i] = toVehicleDTO(v)
		check := toCheckDTO(ltfrb.EvaluateVehicle(v, asOf, maxAge))
		dtos[i].Check = &check
	}
	writeData(w, http.StatusOK, dtos, "")
}

// RegisterVehicle handles POST /api/compliance/ltfrb/vehicles
func (h *Handler) RegisterVehicle(w http.ResponseWriter, r *http.Request) {
	var req RegisterVehicleRequest
	if err := h.decode(r, &req); err != nil {
		h.handleError(w, r, err)
		return
	}
	franchise, err := parseDate("franchise_expiry", req.FranchiseExpiry)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	v := ltfrb.Vehicle{
		ID:              req.ID,
		PlateNumber:     req.PlateNumber,
		CaseNumber:      req.CaseNumber,
		Operator:        req.Operator,
		Make:            req.Make,
		Model:           req.Model,
		YearModel:       req.YearModel,
		FranchiseExpiry: franchise,
		Status:          ltfrb.VehicleStatus(req.Status),
	}
	if req.InsuranceExpiry != "" {
		ins, err := parseDate("insurance_expiry", req.InsuranceExpiry)
		if err != nil {
			h.handleError(w, r, err)
			return
		}
		v.InsuranceExpiry = &ins
	}

	saved, err := h.Fleet.RegisterVehicle(r.Context(), v)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	dto := toVehicleDTO(*saved)
	check := toCheckDTO(ltfrb.EvaluateVehicle(*saved, h.now(), h.Fleet.MaxVehicleAge()))
	dto.Check = &check
	writeData(w, http.StatusCreated, dto, "vehicle "+saved.PlateNumber+" registered")
}

// GetVehicle handles GET /api/compliance/ltfrb/vehicles/{id}
func (h *Handler) GetVehicle(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")
	asOf, err := h.asOf(r)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	v, err := h.Fleet.GetVehicle(ctx, id)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	history, err := h.Fleet.InsuranceHistory(ctx, id)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	dto := toVehicleDTO(*v)
	check := toCheckDTO(ltfrb.EvaluateVehicle(*v, asOf, h.Fleet.MaxVehicleAge()))
	dto.Check = &check
	for _, iv := range history {
		dto.Insurance = append(dto.Insurance, toInsuranceDTO(iv))
	}
	writeData(w, http.StatusOK, dto, "")
}

// VerifyInsurance handles POST /api/compliance/ltfrb/vehicles/{id}/insurance
func (h *Handler) VerifyInsurance(w http.ResponseWriter, r *http.Request) {
	var req VerifyInsuranceRequest
	if err := h.decode(r, &req); err != nil {
		h.handleError(w, r, err)
		return
	}
	coverageEnd, err := parseDate("coverage_end", req.CoverageEnd)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	v, err := h.Fleet.VerifyInsurance(r.Context(), chi.URLParam(r, "id"),
		req.Provider, req.PolicyNumber, coverageEnd, actor(r))
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, toInsuranceDTO(*v), "insurance "+string(v.Status))
}

// ListDrivers handles GET /api/compliance/ltfrb/drivers
func (h *Handler) ListDrivers(w http.ResponseWriter, r *http.Request) {
	asOf, err := h.asOf(r)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	drivers, err := h.Fleet.ListDrivers(r.Context())
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	dtos := make([]DriverDTO, len(drivers))
	for i, d := range drivers {
		dtos[i] = toDriverDTO(d)
		check := toCheckDTO(ltfrb.EvaluateDriver(d, asOf))
		dtos[i].Check = &check
	}
	writeData(w, http.StatusOK, dtos, "")
}

// RegisterDriver handles POST /api/compliance/ltfrb/drivers
func (h *Handler) RegisterDriver(w http.ResponseWriter, r *http.Request) {
	var req RegisterDriverRequest
	if err := h.decode(r, &req); err != nil {
		h.handleError(w, r, err)
		return
	}
	expiry, err := parseDate("license_expiry", req.LicenseExpiry)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	d, err := h.Fleet.RegisterDriver(r.Context(), ltfrb.Driver{
		ID:                req.ID,
		Name:              req.Name,
		LicenseNumber:     req.LicenseNumber,
		LicenseType:       ltfrb.LicenseType(req.LicenseType),
		LicenseExpiry:     expiry,
		TrainingCompleted: req.TrainingCompleted,
		VehicleID:         req.VehicleID,
	})
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	dto := toDriverDTO(*d)
	check := toCheckDTO(ltfrb.EvaluateDriver(*d, h.now()))
	dto.Check = &check
	writeData(w, http.StatusCreated, dto, "driver registered")
}

// GetDriver handles GET /api/compliance/ltfrb/drivers/{id}
func (h *Handler) GetDriver(w http.ResponseWriter, r *http.Request) {
	asOf, err := h.asOf(r)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	d, err := h.Fleet.GetDriver(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	dto := toDriverDTO(*d)
	check := toCheckDTO(ltfrb.EvaluateDriver(*d, asOf))
	dto.Check = &check
	writeData(w, http.StatusOK, dto, "")
}

// CheckTrip handles POST /api/compliance/ltfrb/trips/check
func (h *Handler) CheckTrip(w http.ResponseWriter, r *http.Request) {
	var req TripCheckRequest
	if err := h.decode(r, &req); err != nil {
		h.handleError(w, r, err)
		return
	}
	res, err := h.Fleet.CheckTrip(r.Context(), ltfrb.Trip{
		TripID:          req.TripID,
		VehicleID:       req.VehicleID,
		DriverID:        req.DriverID,
		DistanceKm:      decimal.NewFromFloat(req.DistanceKm),
		DurationMinutes: decimal.NewFromFloat(req.DurationMinutes),
		SurgeMultiplier: decimal.NewFromFloat(req.SurgeMultiplier),
		FareCharged:     core.PHP(req.Fare),
	})
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, toCheckDTO(*res), "")
}

// GetComplianceReport handles GET /api/compliance/ltfrb/report?as_of=
func (h *Handler) GetComplianceReport(w http.ResponseWriter, r *http.Request) {
	asOf, err := h.asOf(r)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	rep, err := h.Fleet.Report(r.Context(), asOf)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, ReportDTO{
		AsOf:                 core.FormatDate(rep.AsOf),
		Vehicles:             rep.Vehicles,
		CompliantVehicles:    rep.CompliantVehicles,
		NonCompliantVehicles: toCheckDTOs(rep.NonCompliantVehicles),
		Drivers:              rep.Drivers,
		CompliantDrivers:     rep.CompliantDrivers,
		NonCompliantDrivers:  toCheckDTOs(rep.NonCompliantDrivers),
		ExpiringSoon:         toCheckDTOs(rep.ExpiringSoon),
	}, "")
}
