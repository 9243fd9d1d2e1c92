/*
handlers.go - HTTP API handlers for the fee billing engine

PURPOSE:
  Exposes the billing engine via REST API. Handles HTTP request/response,
  JSON serialization, and delegates to domain logic.

ENDPOINTS:
  Students:
    GET    /api/students                   List students
    POST   /api/students                   Create/update student
    GET    /api/students/{id}              Get student details
    GET    /api/students/{id}/balance      Quick balance (raw)
    GET    /api/students/{id}/statement    Reconciled statement
    GET    /api/students/{id}/outstanding  Unsettled assessments
    POST   /api/students/{id}/payments     Record payment

  Fee catalog:
    GET/POST /api/fee-items, DELETE /api/fee-items/{id}  (guarded)
    GET/POST /api/fee-rates, DELETE /api/fee-rates/{id}  (guarded)
    POST     /api/fee-assignments

  Assessments:
    POST   /api/assessments/generate       Run generation
    POST   /api/assessments/preview        Dry run

  Payments:
    GET    /api/payments/{id}
    PUT    /api/payments/{id}              Audited correction
    DELETE /api/payments/{id}              (guarded)
    POST   /api/payments/{id}/allocations  Allocation batch

  Terms:
    GET/POST /api/terms, POST /api/terms/{id}/current

  Admin:
    POST   /api/admin/import               Import fee structure JSON
    POST   /api/admin/seed                 Load demo dataset
    POST   /api/admin/reset                Clear all data (dev only)

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 404: Resource not found
  - 409: Conflict (over-allocation, duplicates, blocked deletes)
  - 500: Internal errors

SECURITY NOTE:
  Currently NO authentication or authorization. All endpoints are public.

SEE ALSO:
  - dto.go: Request/response data structures
  - seed.go: Demo dataset loader
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/shule/fees-engine/factory"
	"github.com/shule/fees-engine/fees"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Resetter is implemented by stores that can wipe all data (dev/demo only).
type Resetter interface {
	Reset(ctx context.Context) error
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store     fees.TxStore
	Generator *fees.Generator
	Allocator *fees.Allocator
	Balance   *fees.BalanceEngine
	Guard     *fees.Guard
	Factory   *factory.StructureFactory

	validate *validator.Validate
}

// NewHandler creates a new handler with the given store.
func NewHandler(store fees.TxStore) *Handler {
	return &Handler{
		Store:     store,
		Generator: fees.NewGenerator(store),
		Allocator: fees.NewAllocator(store),
		Balance:   fees.NewBalanceEngine(store),
		Guard:     fees.NewGuard(store),
		Factory:   factory.NewStructureFactory(),
		validate:  validator.New(),
	}
}

// decodeAndValidate decodes the request body and runs struct validation.
func (h *Handler) decodeAndValidate(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Validation failed", err)
		return false
	}
	return true
}

// =============================================================================
// STUDENT HANDLERS
// =============================================================================

// ListStudents returns all students.
func (h *Handler) ListStudents(w http.ResponseWriter, r *http.Request) {
	students, err := h.Store.ListStudents(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list students", err)
		return
	}

	dtos := make([]StudentDTO, len(students))
	for i, s := range students {
		dtos[i] = toStudentDTO(s)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetStudent returns a single student.
func (h *Handler) GetStudent(w http.ResponseWriter, r *http.Request) {
	id := fees.StudentID(chi.URLParam(r, "id"))

	student, err := h.Store.Student(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get student", err)
		return
	}
	if student == nil {
		writeError(w, http.StatusNotFound, "Student not found", nil)
		return
	}
	writeJSON(w, http.StatusOK, toStudentDTO(*student))
}

// CreateStudent creates or updates a student.
func (h *Handler) CreateStudent(w http.ResponseWriter, r *http.Request) {
	var req CreateStudentRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	student := fees.Student{
		ID:          fees.StudentID(req.ID),
		AdmissionNo: req.AdmissionNo,
		FirstName:   req.FirstName,
		LastName:    req.LastName,
		ClassID:     fees.ClassID(req.ClassID),
		Type:        fees.StudentType(req.StudentType),
		Active:      true,
	}
	if student.ID == "" {
		student.ID = fees.StudentID(uuid.NewString())
	}
	if req.StreamID != nil {
		v := fees.StreamID(*req.StreamID)
		student.StreamID = &v
	}
	if req.VehicleID != nil {
		v := fees.VehicleID(*req.VehicleID)
		student.VehicleID = &v
	}
	if req.TransportKm != nil {
		d, err := decimal.NewFromString(*req.TransportKm)
		if err != nil || d.IsNegative() {
			writeError(w, http.StatusBadRequest, "Invalid transport_km", err)
			return
		}
		student.TransportKm = &d
	}

	if err := h.Store.SaveStudent(r.Context(), student); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save student", err)
		return
	}
	writeJSON(w, http.StatusCreated, toStudentDTO(student))
}

// =============================================================================
// BALANCE HANDLERS
// =============================================================================

// GetQuickBalance returns the raw assessed-minus-paid balance.
func (h *Handler) GetQuickBalance(w http.ResponseWriter, r *http.Request) {
	id := fees.StudentID(chi.URLParam(r, "id"))

	if ok := h.requireStudent(w, r, id); !ok {
		return
	}

	summary, err := h.Balance.QuickBalance(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to compute balance", err)
		return
	}
	writeJSON(w, http.StatusOK, toBalanceDTO(*summary))
}

// GetStatement returns the allocation-reconciled balance, optionally cut off
// at ?term=N&year=YYYY.
func (h *Handler) GetStatement(w http.ResponseWriter, r *http.Request) {
	id := fees.StudentID(chi.URLParam(r, "id"))

	if ok := h.requireStudent(w, r, id); !ok {
		return
	}

	upTo, err := parseTermYearQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid term/year", err)
		return
	}

	summary, err := h.Balance.Statement(r.Context(), id, upTo)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to compute statement", err)
		return
	}
	writeJSON(w, http.StatusOK, toBalanceDTO(*summary))
}

// GetOutstanding returns assessments with an unallocated remainder.
func (h *Handler) GetOutstanding(w http.ResponseWriter, r *http.Request) {
	id := fees.StudentID(chi.URLParam(r, "id"))

	if ok := h.requireStudent(w, r, id); !ok {
		return
	}

	lines, err := h.Balance.Outstanding(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to compute outstanding", err)
		return
	}

	dtos := make([]OutstandingLineDTO, len(lines))
	for i, l := range lines {
		dtos[i] = OutstandingLineDTO{
			Assessment:  toAssessmentDTO(l.Assessment),
			Outstanding: l.Outstanding.StringFixed(2),
		}
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) requireStudent(w http.ResponseWriter, r *http.Request, id fees.StudentID) bool {
	student, err := h.Store.Student(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get student", err)
		return false
	}
	if student == nil {
		writeError(w, http.StatusNotFound, "Student not found", nil)
		return false
	}
	return true
}

// =============================================================================
// FEE ITEM HANDLERS
// =============================================================================

// ListFeeItems returns all fee items.
func (h *Handler) ListFeeItems(w http.ResponseWriter, r *http.Request) {
	items, err := h.Store.ListFeeItems(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list fee items", err)
		return
	}

	dtos := make([]FeeItemDTO, len(items))
	for i, item := range items {
		dtos[i] = toFeeItemDTO(item)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateFeeItem creates a fee item.
func (h *Handler) CreateFeeItem(w http.ResponseWriter, r *http.Request) {
	var req CreateFeeItemRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	item := fees.FeeItem{
		ID:           fees.FeeItemID(req.ID),
		Code:         req.Code,
		Name:         req.Name,
		Description:  req.Description,
		Scope:        fees.FeeScope(req.Scope),
		PerKilometer: req.PerKilometer,
		Active:       true,
	}
	if item.ID == "" {
		item.ID = fees.FeeItemID(uuid.NewString())
	}

	if err := h.Store.SaveFeeItem(r.Context(), item); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save fee item", err)
		return
	}
	writeJSON(w, http.StatusCreated, toFeeItemDTO(item))
}

// DeleteFeeItem deletes a fee item unless dependent records exist.
func (h *Handler) DeleteFeeItem(w http.ResponseWriter, r *http.Request) {
	id := fees.FeeItemID(chi.URLParam(r, "id"))
	ctx := r.Context()

	if err := h.Guard.CheckDeleteFeeItem(ctx, id); err != nil {
		writeDomainError(w, err)
		return
	}
	if err := h.Store.DeleteFeeItem(ctx, id); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to delete fee item", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// FEE RATE HANDLERS
// =============================================================================

// ListFeeRates returns rates, filtered by ?term=N&year=YYYY when given.
func (h *Handler) ListFeeRates(w http.ResponseWriter, r *http.Request) {
	ty, err := parseTermYearQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid term/year", err)
		return
	}
	if ty == nil {
		writeError(w, http.StatusBadRequest, "term and year query parameters are required", nil)
		return
	}

	rates, err := h.Store.RatesFor(r.Context(), *ty)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list fee rates", err)
		return
	}

	dtos := make([]FeeRateDTO, len(rates))
	for i, rate := range rates {
		dtos[i] = toFeeRateDTO(rate)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateFeeRate creates a fee rate.
func (h *Handler) CreateFeeRate(w http.ResponseWriter, r *http.Request) {
	var req CreateFeeRateRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	if req.Amount == nil && req.RatePerKm == nil {
		writeError(w, http.StatusBadRequest, "Either amount or rate_per_km is required", nil)
		return
	}

	rate := fees.FeeRate{
		ID:        fees.FeeRateID(uuid.NewString()),
		FeeItemID: fees.FeeItemID(req.FeeItemID),
		TermYear:  fees.TermYear{Term: req.Term, Year: req.Year},
		Active:    true,
	}
	if req.ClassID != nil {
		v := fees.ClassID(*req.ClassID)
		rate.ClassID = &v
	}
	if req.StreamID != nil {
		v := fees.StreamID(*req.StreamID)
		rate.StreamID = &v
	}
	if req.StudentType != nil {
		v := fees.StudentType(*req.StudentType)
		rate.StudentType = &v
	}

	var err error
	if rate.Amount, err = parseOptionalAmount(req.Amount, "amount"); err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}
	if rate.RatePerKm, err = parseOptionalAmount(req.RatePerKm, "rate_per_km"); err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}

	if err := h.Store.SaveRate(r.Context(), rate); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save fee rate", err)
		return
	}
	writeJSON(w, http.StatusCreated, toFeeRateDTO(rate))
}

// DeleteFeeRate deletes a rate unless it has been used in assessments.
func (h *Handler) DeleteFeeRate(w http.ResponseWriter, r *http.Request) {
	id := fees.FeeRateID(chi.URLParam(r, "id"))
	ctx := r.Context()

	if err := h.Guard.CheckDeleteFeeRate(ctx, id); err != nil {
		writeDomainError(w, err)
		return
	}
	if err := h.Store.DeleteRate(ctx, id); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to delete fee rate", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// CreateAssignment creates an individual fee override.
func (h *Handler) CreateAssignment(w http.ResponseWriter, r *http.Request) {
	var req CreateAssignmentRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	a := fees.FeeAssignment{
		ID:        fees.AssignmentID(uuid.NewString()),
		StudentID: fees.StudentID(req.StudentID),
		FeeItemID: fees.FeeItemID(req.FeeItemID),
		TermYear:  fees.TermYear{Term: req.Term, Year: req.Year},
		Active:    true,
	}

	var err error
	if a.CustomAmount, err = parseOptionalAmount(req.CustomAmount, "custom_amount"); err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}
	if a.CustomRatePerKm, err = parseOptionalAmount(req.CustomRatePerKm, "custom_rate_per_km"); err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}
	if a.CustomDistanceKm, err = parseOptionalAmount(req.CustomDistanceKm, "custom_distance_km"); err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}

	if err := h.Store.SaveAssignment(r.Context(), a); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save assignment", err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

// =============================================================================
// ASSESSMENT HANDLERS
// =============================================================================

// GenerateAssessments runs assessment generation for a term scope.
func (h *Handler) GenerateAssessments(w http.ResponseWriter, r *http.Request) {
	var req GenerateRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	in := fees.GenerateInput{
		TermYear:        fees.TermYear{Term: req.Term, Year: req.Year},
		ForceRegenerate: req.ForceRegenerate,
	}
	in.ClassID, in.StreamID, in.StudentID = scopePointers(req.ClassID, req.StreamID, req.StudentID)

	created, err := h.Generator.Generate(r.Context(), in)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, GenerateResponse{Created: created})
}

// PreviewAssessments performs a dry-run generation.
func (h *Handler) PreviewAssessments(w http.ResponseWriter, r *http.Request) {
	var req PreviewRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	in := fees.PreviewInput{
		TermYear:         fees.TermYear{Term: req.Term, Year: req.Year},
		SkipExisting:     req.SkipExisting,
		IncludeTransport: req.IncludeTransport,
	}
	in.ClassID, in.StreamID, in.StudentID = scopePointers(req.ClassID, req.StreamID, req.StudentID)

	report, err := h.Generator.Preview(r.Context(), in)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	resp := PreviewResponse{
		StudentsConsidered: report.StudentsConsidered,
		AssessmentCount:    report.AssessmentCount,
		TotalAmount:        report.TotalAmount.StringFixed(2),
		SkippedStudents:    report.SkippedStudents,
		Warnings:           report.Warnings,
	}
	for _, line := range report.Breakdown {
		resp.Breakdown = append(resp.Breakdown, PreviewLineDTO{
			Code:         line.Code,
			Name:         line.Name,
			StudentCount: line.StudentCount,
			Amount:       line.Amount.StringFixed(2),
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// =============================================================================
// PAYMENT HANDLERS
// =============================================================================

// CreatePayment records a payment for a student.
func (h *Handler) CreatePayment(w http.ResponseWriter, r *http.Request) {
	studentID := fees.StudentID(chi.URLParam(r, "id"))
	ctx := r.Context()

	if ok := h.requireStudent(w, r, studentID); !ok {
		return
	}

	var req CreatePaymentRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil || !amount.IsPositive() {
		writeError(w, http.StatusBadRequest, "Amount must be a positive decimal", err)
		return
	}

	date := time.Now().UTC()
	if req.Date != "" {
		date, err = time.Parse("2006-01-02", req.Date)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid date format (use YYYY-MM-DD)", err)
			return
		}
	}

	payment := fees.Payment{
		ID:        fees.PaymentID(uuid.NewString()),
		StudentID: studentID,
		Amount:    amount,
		Date:      date,
		Mode:      fees.PaymentMode(req.Mode),
		ReceiptNo: req.ReceiptNo,
		Reference: req.Reference,
		Note:      req.Note,
		CreatedAt: time.Now().UTC(),
	}

	if payment.ReceiptNo == "" {
		payment.ReceiptNo, err = h.nextReceiptNo(ctx)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to generate receipt number", err)
			return
		}
	}

	if err := h.Store.SavePayment(ctx, payment); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toPaymentDTO(payment, fees.PaymentUnallocated))
}

// nextReceiptNo issues the next free RCT receipt number, scanning past
// numbers already taken by caller-supplied receipts.
func (h *Handler) nextReceiptNo(ctx context.Context) (string, error) {
	count, err := h.Store.PaymentCount(ctx)
	if err != nil {
		return "", err
	}
	for seq := count + 1; ; seq++ {
		candidate := fmt.Sprintf("RCT%06d", seq)
		taken, err := h.Store.ReceiptExists(ctx, candidate)
		if err != nil {
			return "", err
		}
		if !taken {
			return candidate, nil
		}
	}
}

// GetPayment returns a payment with its derived allocation status.
func (h *Handler) GetPayment(w http.ResponseWriter, r *http.Request) {
	id := fees.PaymentID(chi.URLParam(r, "id"))
	ctx := r.Context()

	payment, err := h.Store.Payment(ctx, id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get payment", err)
		return
	}
	if payment == nil {
		writeError(w, http.StatusNotFound, "Payment not found", nil)
		return
	}

	status, err := h.Allocator.PaymentState(ctx, id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to derive payment status", err)
		return
	}
	writeJSON(w, http.StatusOK, toPaymentDTO(*payment, status))
}

// UpdatePayment applies an administrative correction, appending the edit
// note to the payment's note as an audit trail.
func (h *Handler) UpdatePayment(w http.ResponseWriter, r *http.Request) {
	id := fees.PaymentID(chi.URLParam(r, "id"))
	ctx := r.Context()

	var req UpdatePaymentRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	payment, err := h.Store.Payment(ctx, id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get payment", err)
		return
	}
	if payment == nil {
		writeError(w, http.StatusNotFound, "Payment not found", nil)
		return
	}

	if req.Amount != nil {
		amount, err := decimal.NewFromString(*req.Amount)
		if err != nil || !amount.IsPositive() {
			writeError(w, http.StatusBadRequest, "Amount must be a positive decimal", err)
			return
		}
		// The new amount must still cover what is already allocated.
		allocations, err := h.Store.AllocationsByPayment(ctx, id)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to check allocations", err)
			return
		}
		allocated := decimal.Zero
		for _, a := range allocations {
			allocated = allocated.Add(a.Amount)
		}
		if amount.LessThan(allocated) {
			writeError(w, http.StatusConflict,
				fmt.Sprintf("Amount %s is below the %s already allocated", amount.StringFixed(2), allocated.StringFixed(2)), nil)
			return
		}
		payment.Amount = amount
	}
	if req.Date != nil {
		date, err := time.Parse("2006-01-02", *req.Date)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid date format (use YYYY-MM-DD)", err)
			return
		}
		payment.Date = date
	}
	if req.Mode != nil {
		payment.Mode = fees.PaymentMode(*req.Mode)
	}

	audit := fmt.Sprintf("[edited %s] %s", time.Now().UTC().Format("2006-01-02"), req.EditNote)
	if payment.Note != "" {
		payment.Note += "\n"
	}
	payment.Note += audit

	if err := h.Store.SavePayment(ctx, *payment); err != nil {
		writeDomainError(w, err)
		return
	}

	status, err := h.Allocator.PaymentState(ctx, id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to derive payment status", err)
		return
	}
	writeJSON(w, http.StatusOK, toPaymentDTO(*payment, status))
}

// DeletePayment deletes a payment unless allocations exist.
func (h *Handler) DeletePayment(w http.ResponseWriter, r *http.Request) {
	id := fees.PaymentID(chi.URLParam(r, "id"))
	ctx := r.Context()

	payment, err := h.Store.Payment(ctx, id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get payment", err)
		return
	}
	if payment == nil {
		writeError(w, http.StatusNotFound, "Payment not found", nil)
		return
	}

	if err := h.Guard.CheckDeletePayment(ctx, id); err != nil {
		writeDomainError(w, err)
		return
	}
	if err := h.Store.DeletePayment(ctx, id); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to delete payment", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// AllocatePayment commits an allocation batch against a payment.
func (h *Handler) AllocatePayment(w http.ResponseWriter, r *http.Request) {
	id := fees.PaymentID(chi.URLParam(r, "id"))

	var req AllocateRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	lines := make([]fees.AllocationLine, 0, len(req.Allocations))
	for _, l := range req.Allocations {
		amount, err := decimal.NewFromString(l.Amount)
		if err != nil {
			writeError(w, http.StatusBadRequest,
				fmt.Sprintf("Invalid amount %q for assessment %s", l.Amount, l.AssessmentID), err)
			return
		}
		lines = append(lines, fees.AllocationLine{
			AssessmentID: fees.AssessmentID(l.AssessmentID),
			Amount:       amount,
		})
	}

	result, err := h.Allocator.Allocate(r.Context(), id, lines)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	resp := AllocateResponse{
		PaymentID:      string(result.PaymentID),
		TotalAllocated: result.TotalAllocated.StringFixed(2),
		Warnings:       result.Warnings,
		Status:         string(result.Status),
	}
	for _, a := range result.Allocations {
		resp.Allocations = append(resp.Allocations, AllocationDTO{
			ID:           string(a.ID),
			PaymentID:    string(a.PaymentID),
			AssessmentID: string(a.AssessmentID),
			Amount:       a.Amount.StringFixed(2),
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// =============================================================================
// TERM HANDLERS
// =============================================================================

// ListTerms returns all academic terms.
func (h *Handler) ListTerms(w http.ResponseWriter, r *http.Request) {
	terms, err := h.Store.Terms(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list terms", err)
		return
	}

	dtos := make([]TermDTO, len(terms))
	for i, t := range terms {
		dtos[i] = toTermDTO(t)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateTerm creates an academic term.
func (h *Handler) CreateTerm(w http.ResponseWriter, r *http.Request) {
	var req CreateTermRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	start, err := time.Parse("2006-01-02", req.StartDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid start_date format (use YYYY-MM-DD)", err)
		return
	}
	end, err := time.Parse("2006-01-02", req.EndDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid end_date format (use YYYY-MM-DD)", err)
		return
	}
	if end.Before(start) {
		writeError(w, http.StatusBadRequest, "end_date is before start_date", nil)
		return
	}

	term := fees.AcademicTerm{
		ID:        fees.TermID(req.ID),
		Term:      req.Term,
		Year:      req.Year,
		StartDate: start,
		EndDate:   end,
	}
	if term.ID == "" {
		term.ID = fees.TermID(uuid.NewString())
	}

	if err := h.Store.SaveTerm(r.Context(), term); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save term", err)
		return
	}
	writeJSON(w, http.StatusCreated, toTermDTO(term))
}

// SetCurrentTerm marks one term current, unsetting any other.
func (h *Handler) SetCurrentTerm(w http.ResponseWriter, r *http.Request) {
	id := fees.TermID(chi.URLParam(r, "id"))

	err := h.Store.WithTx(r.Context(), func(s fees.Store) error {
		return s.SetCurrentTerm(r.Context(), id)
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// ADMIN HANDLERS
// =============================================================================

// ImportStructure imports a fee structure JSON document.
func (h *Handler) ImportStructure(w http.ResponseWriter, r *http.Request) {
	var sj factory.StructureJSON
	if err := json.NewDecoder(r.Body).Decode(&sj); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	structure, err := h.Factory.FromJSON(sj)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid fee structure", err)
		return
	}
	if err := h.Factory.Import(r.Context(), h.Store, structure); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to import fee structure", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]int{
		"terms":     len(structure.Terms),
		"fee_items": len(structure.FeeItems),
		"fee_rates": len(structure.FeeRates),
	})
}

// SeedDemo loads the demo dataset.
func (h *Handler) SeedDemo(w http.ResponseWriter, r *http.Request) {
	if err := Seed(r.Context(), h.Store); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to seed demo data", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "seeded"})
}

// ResetDatabase clears all data. Dev only.
func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	resetter, ok := h.Store.(Resetter)
	if !ok {
		writeError(w, http.StatusNotImplemented, "Store does not support reset", nil)
		return
	}
	if err := resetter.Reset(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeDomainError maps engine errors onto HTTP statuses.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case fees.IsNotFound(err):
		writeError(w, http.StatusNotFound, err.Error(), nil)
	case errors.Is(err, fees.ErrNoValidAllocations):
		writeError(w, http.StatusBadRequest, err.Error(), nil)
	case fees.IsClientError(err):
		writeError(w, http.StatusConflict, err.Error(), nil)
	default:
		writeError(w, http.StatusInternalServerError, "Internal error", err)
	}
}

func parseOptionalAmount(s *string, field string) (*decimal.Decimal, error) {
	if s == nil {
		return nil, nil
	}
	d, err := decimal.NewFromString(*s)
	if err != nil {
		return nil, fmt.Errorf("invalid %s %q", field, *s)
	}
	if d.IsNegative() {
		return nil, fmt.Errorf("%s must not be negative", field)
	}
	return &d, nil
}

func parseTermYearQuery(r *http.Request) (*fees.TermYear, error) {
	termStr := r.URL.Query().Get("term")
	yearStr := r.URL.Query().Get("year")
	if termStr == "" && yearStr == "" {
		return nil, nil
	}
	if termStr == "" || yearStr == "" {
		return nil, fmt.Errorf("term and year must be given together")
	}

	term, err := strconv.Atoi(termStr)
	if err != nil || term < 1 || term > 3 {
		return nil, fmt.Errorf("term must be 1-3")
	}
	year, err := strconv.Atoi(yearStr)
	if err != nil {
		return nil, fmt.Errorf("year must be a number")
	}
	return &fees.TermYear{Term: term, Year: year}, nil
}

func scopePointers(classID, streamID, studentID *string) (*fees.ClassID, *fees.StreamID, *fees.StudentID) {
	var c *fees.ClassID
	var st *fees.StreamID
	var s *fees.StudentID
	if classID != nil {
		v := fees.ClassID(*classID)
		c = &v
	}
	if streamID != nil {
		v := fees.StreamID(*streamID)
		st = &v
	}
	if studentID != nil {
		v := fees.StudentID(*studentID)
		s = &v
	}
	return c, st, s
}
