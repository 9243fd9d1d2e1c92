/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract, allowing:
  - Field renaming without breaking clients
  - API-specific validation
  - Version evolution

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

MONEY AT THE EDGE:
  Monetary values cross the wire as decimal STRINGS ("560.00"), never
  floats. Request amounts are parsed with shopspring/decimal in handlers;
  responses use StringFixed(2).

VALIDATION:
  Struct tags for go-playground/validator; handlers run the shared
  validator instance before touching the store.

SEE ALSO:
  - handlers.go: Uses these types
  - fees/types.go: Domain model these map to
*/
package api

import (
	"time"

	"github.com/shule/fees-engine/fees"
)

// =============================================================================
// STUDENT TYPES
// =============================================================================

// StudentDTO represents a student in API responses.
type StudentDTO struct {
	ID          string  `json:"id"`
	AdmissionNo string  `json:"admission_no"`
	FirstName   string  `json:"first_name"`
	LastName    string  `json:"last_name"`
	FullName    string  `json:"full_name"`
	ClassID     string  `json:"class_id"`
	StreamID    *string `json:"stream_id,omitempty"`
	StudentType string  `json:"student_type"`
	TransportKm *string `json:"transport_km,omitempty"`
	VehicleID   *string `json:"vehicle_id,omitempty"`
	Active      bool    `json:"active"`
}

// CreateStudentRequest is the request to create or update a student.
type CreateStudentRequest struct {
	ID          string  `json:"id"`
	AdmissionNo string  `json:"admission_no" validate:"required"`
	FirstName   string  `json:"first_name" validate:"required"`
	LastName    string  `json:"last_name" validate:"required"`
	ClassID     string  `json:"class_id" validate:"required"`
	StreamID    *string `json:"stream_id,omitempty"`
	StudentType string  `json:"student_type" validate:"required,oneof=DAY BOARDER"`
	TransportKm *string `json:"transport_km,omitempty"`
	VehicleID   *string `json:"vehicle_id,omitempty"`
}

// =============================================================================
// FEE CATALOG TYPES
// =============================================================================

// FeeItemDTO represents a fee item in API responses.
type FeeItemDTO struct {
	ID           string `json:"id"`
	Code         string `json:"code"`
	Name         string `json:"name"`
	Description  string `json:"description,omitempty"`
	Scope        string `json:"scope"`
	PerKilometer bool   `json:"per_kilometer"`
	Active       bool   `json:"active"`
}

// CreateFeeItemRequest is the request to create a fee item.
type CreateFeeItemRequest struct {
	ID           string `json:"id"`
	Code         string `json:"code" validate:"required"`
	Name         string `json:"name" validate:"required"`
	Description  string `json:"description,omitempty"`
	Scope        string `json:"scope" validate:"required,oneof=UNIVERSAL CLASS_LEVEL STREAM_LEVEL INDIVIDUAL"`
	PerKilometer bool   `json:"per_kilometer,omitempty"`
}

// FeeRateDTO represents a fee rate in API responses.
type FeeRateDTO struct {
	ID          string  `json:"id"`
	FeeItemID   string  `json:"fee_item_id"`
	Term        int     `json:"term"`
	Year        int     `json:"year"`
	ClassID     *string `json:"class_id,omitempty"`
	StreamID    *string `json:"stream_id,omitempty"`
	StudentType *string `json:"student_type,omitempty"`
	Amount      *string `json:"amount,omitempty"`
	RatePerKm   *string `json:"rate_per_km,omitempty"`
	Active      bool    `json:"active"`
}

// CreateFeeRateRequest is the request to create a fee rate.
type CreateFeeRateRequest struct {
	FeeItemID   string  `json:"fee_item_id" validate:"required"`
	Term        int     `json:"term" validate:"required,min=1,max=3"`
	Year        int     `json:"year" validate:"required,min=2000"`
	ClassID     *string `json:"class_id,omitempty"`
	StreamID    *string `json:"stream_id,omitempty"`
	StudentType *string `json:"student_type,omitempty" validate:"omitempty,oneof=DAY BOARDER"`
	Amount      *string `json:"amount,omitempty"`
	RatePerKm   *string `json:"rate_per_km,omitempty"`
}

// CreateAssignmentRequest is the request to create an individual fee override.
type CreateAssignmentRequest struct {
	StudentID        string  `json:"student_id" validate:"required"`
	FeeItemID        string  `json:"fee_item_id" validate:"required"`
	Term             int     `json:"term" validate:"required,min=1,max=3"`
	Year             int     `json:"year" validate:"required,min=2000"`
	CustomAmount     *string `json:"custom_amount,omitempty"`
	CustomRatePerKm  *string `json:"custom_rate_per_km,omitempty"`
	CustomDistanceKm *string `json:"custom_distance_km,omitempty"`
}

// =============================================================================
// ASSESSMENT TYPES
// =============================================================================

// AssessmentDTO represents an assessment in API responses.
type AssessmentDTO struct {
	ID          string `json:"id"`
	StudentID   string `json:"student_id"`
	FeeItemID   string `json:"fee_item_id"`
	Term        int    `json:"term"`
	Year        int    `json:"year"`
	Description string `json:"description"`
	Amount      string `json:"amount"`
	BaseRate    string `json:"base_rate"`
	Quantity    string `json:"quantity"`
	AssessedAt  string `json:"assessed_at"`
}

// GenerateRequest is the request to run assessment generation.
type GenerateRequest struct {
	Term            int     `json:"term" validate:"required,min=1,max=3"`
	Year            int     `json:"year" validate:"required,min=2000"`
	ClassID         *string `json:"class_id,omitempty"`
	StreamID        *string `json:"stream_id,omitempty"`
	StudentID       *string `json:"student_id,omitempty"`
	ForceRegenerate bool    `json:"force_regenerate,omitempty"`
}

// GenerateResponse reports a completed generation run.
type GenerateResponse struct {
	Created int `json:"created"`
}

// PreviewRequest is the request for a dry-run generation preview.
type PreviewRequest struct {
	Term             int     `json:"term" validate:"required,min=1,max=3"`
	Year             int     `json:"year" validate:"required,min=2000"`
	ClassID          *string `json:"class_id,omitempty"`
	StreamID         *string `json:"stream_id,omitempty"`
	StudentID        *string `json:"student_id,omitempty"`
	SkipExisting     bool    `json:"skip_existing,omitempty"`
	IncludeTransport bool    `json:"include_transport,omitempty"`
}

// PreviewLineDTO is one per-fee-item subtotal in a preview response.
type PreviewLineDTO struct {
	Code         string `json:"code"`
	Name         string `json:"name"`
	StudentCount int    `json:"student_count"`
	Amount       string `json:"amount"`
}

// PreviewResponse summarizes what a generation run would create.
type PreviewResponse struct {
	StudentsConsidered int              `json:"students_considered"`
	AssessmentCount    int              `json:"assessment_count"`
	TotalAmount        string           `json:"total_amount"`
	SkippedStudents    int              `json:"skipped_students"`
	Breakdown          []PreviewLineDTO `json:"breakdown"`
	Warnings           []string         `json:"warnings,omitempty"`
}

// =============================================================================
// PAYMENT TYPES
// =============================================================================

// PaymentDTO represents a payment in API responses. Status is derived from
// the payment's allocations at read time.
type PaymentDTO struct {
	ID        string `json:"id"`
	StudentID string `json:"student_id"`
	Amount    string `json:"amount"`
	Date      string `json:"date"`
	Mode      string `json:"mode"`
	ReceiptNo string `json:"receipt_no"`
	Reference string `json:"reference,omitempty"`
	Note      string `json:"note,omitempty"`
	Status    string `json:"status,omitempty"`
}

// CreatePaymentRequest is the request to record a payment.
type CreatePaymentRequest struct {
	Amount    string `json:"amount" validate:"required"`
	Date      string `json:"date,omitempty"` // YYYY-MM-DD, defaults to today
	Mode      string `json:"mode" validate:"required,oneof=CASH MPESA BANK CHEQUE"`
	ReceiptNo string `json:"receipt_no,omitempty"` // generated when empty
	Reference string `json:"reference,omitempty"`
	Note      string `json:"note,omitempty"`
}

// UpdatePaymentRequest is the administrative correction of a payment.
// EditNote is appended to the payment's note as an audit trail.
type UpdatePaymentRequest struct {
	Amount   *string `json:"amount,omitempty"`
	Date     *string `json:"date,omitempty"`
	Mode     *string `json:"mode,omitempty" validate:"omitempty,oneof=CASH MPESA BANK CHEQUE"`
	EditNote string  `json:"edit_note" validate:"required"`
}

// AllocationLineRequest is one requested allocation in a batch.
type AllocationLineRequest struct {
	AssessmentID string `json:"assessment_id" validate:"required"`
	Amount       string `json:"amount" validate:"required"`
}

// AllocateRequest is the request to allocate a payment.
type AllocateRequest struct {
	Allocations []AllocationLineRequest `json:"allocations" validate:"required,min=1,dive"`
}

// AllocationDTO represents a committed allocation.
type AllocationDTO struct {
	ID           string `json:"id"`
	PaymentID    string `json:"payment_id"`
	AssessmentID string `json:"assessment_id"`
	Amount       string `json:"amount"`
}

// AllocateResponse reports a committed allocation batch.
type AllocateResponse struct {
	PaymentID      string          `json:"payment_id"`
	TotalAllocated string          `json:"total_allocated"`
	Allocations    []AllocationDTO `json:"allocations"`
	Warnings       []string        `json:"warnings,omitempty"`
	Status         string          `json:"status"`
}

// =============================================================================
// BALANCE TYPES
// =============================================================================

// BalanceDTO represents a balance summary (either view).
type BalanceDTO struct {
	StudentID     string `json:"student_id"`
	TotalAssessed string `json:"total_assessed"`
	TotalPaid     string `json:"total_paid"`
	Balance       string `json:"balance"`
	Term          *int   `json:"term,omitempty"`
	Year          *int   `json:"year,omitempty"`
}

// OutstandingLineDTO pairs an assessment with its unallocated remainder.
type OutstandingLineDTO struct {
	Assessment  AssessmentDTO `json:"assessment"`
	Outstanding string        `json:"outstanding"`
}

// =============================================================================
// TERM TYPES
// =============================================================================

// TermDTO represents an academic term.
type TermDTO struct {
	ID        string `json:"id"`
	Term      int    `json:"term"`
	Year      int    `json:"year"`
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
	IsCurrent bool   `json:"is_current"`
}

// CreateTermRequest is the request to create an academic term.
type CreateTermRequest struct {
	ID        string `json:"id"`
	Term      int    `json:"term" validate:"required,min=1,max=3"`
	Year      int    `json:"year" validate:"required,min=2000"`
	StartDate string `json:"start_date" validate:"required"`
	EndDate   string `json:"end_date" validate:"required"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

// =============================================================================
// CONVERSION HELPERS
// =============================================================================

func toStudentDTO(s fees.Student) StudentDTO {
	dto := StudentDTO{
		ID:          string(s.ID),
		AdmissionNo: s.AdmissionNo,
		FirstName:   s.FirstName,
		LastName:    s.LastName,
		FullName:    s.FullName(),
		ClassID:     string(s.ClassID),
		StudentType: string(s.Type),
		Active:      s.Active,
	}
	if s.StreamID != nil {
		v := string(*s.StreamID)
		dto.StreamID = &v
	}
	if s.TransportKm != nil {
		v := s.TransportKm.String()
		dto.TransportKm = &v
	}
	if s.VehicleID != nil {
		v := string(*s.VehicleID)
		dto.VehicleID = &v
	}
	return dto
}

func toFeeItemDTO(item fees.FeeItem) FeeItemDTO {
	return FeeItemDTO{
		ID:           string(item.ID),
		Code:         item.Code,
		Name:         item.Name,
		Description:  item.Description,
		Scope:        string(item.Scope),
		PerKilometer: item.PerKilometer,
		Active:       item.Active,
	}
}

func toFeeRateDTO(r fees.FeeRate) FeeRateDTO {
	dto := FeeRateDTO{
		ID:        string(r.ID),
		FeeItemID: string(r.FeeItemID),
		Term:      r.TermYear.Term,
		Year:      r.TermYear.Year,
		Active:    r.Active,
	}
	if r.ClassID != nil {
		v := string(*r.ClassID)
		dto.ClassID = &v
	}
	if r.StreamID != nil {
		v := string(*r.StreamID)
		dto.StreamID = &v
	}
	if r.StudentType != nil {
		v := string(*r.StudentType)
		dto.StudentType = &v
	}
	if r.Amount != nil {
		v := r.Amount.StringFixed(2)
		dto.Amount = &v
	}
	if r.RatePerKm != nil {
		v := r.RatePerKm.StringFixed(2)
		dto.RatePerKm = &v
	}
	return dto
}

func toAssessmentDTO(a fees.Assessment) AssessmentDTO {
	return AssessmentDTO{
		ID:          string(a.ID),
		StudentID:   string(a.StudentID),
		FeeItemID:   string(a.FeeItemID),
		Term:        a.TermYear.Term,
		Year:        a.TermYear.Year,
		Description: a.Description,
		Amount:      a.Amount.StringFixed(2),
		BaseRate:    a.BaseRate.StringFixed(2),
		Quantity:    a.Quantity.String(),
		AssessedAt:  a.AssessedAt.Format(time.RFC3339),
	}
}

func toPaymentDTO(p fees.Payment, status fees.PaymentStatus) PaymentDTO {
	return PaymentDTO{
		ID:        string(p.ID),
		StudentID: string(p.StudentID),
		Amount:    p.Amount.StringFixed(2),
		Date:      p.Date.Format("2006-01-02"),
		Mode:      string(p.Mode),
		ReceiptNo: p.ReceiptNo,
		Reference: p.Reference,
		Note:      p.Note,
		Status:    string(status),
	}
}

func toBalanceDTO(b fees.BalanceSummary) BalanceDTO {
	dto := BalanceDTO{
		StudentID:     string(b.StudentID),
		TotalAssessed: b.TotalAssessed.StringFixed(2),
		TotalPaid:     b.TotalPaid.StringFixed(2),
		Balance:       b.Balance.StringFixed(2),
	}
	if b.UpTo != nil {
		term, year := b.UpTo.Term, b.UpTo.Year
		dto.Term = &term
		dto.Year = &year
	}
	return dto
}

func toTermDTO(t fees.AcademicTerm) TermDTO {
	return TermDTO{
		ID:        string(t.ID),
		Term:      t.Term,
		Year:      t.Year,
		StartDate: t.StartDate.Format("2006-01-02"),
		EndDate:   t.EndDate.Format("2006-01-02"),
		IsCurrent: t.IsCurrent,
	}
}
