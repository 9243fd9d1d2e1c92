/*
Package fees provides the core school fee billing engine.

PURPOSE:
  This package contains the domain types and algorithms for fee billing:
  resolving the applicable rate for a student, computing assessment amounts,
  generating per-student assessments for a term, allocating payments against
  outstanding assessments, and computing balances.

KEY CONCEPTS IN THIS FILE (types.go):
  - FeeItem: A billable category (tuition, boarding, transport, ...)
  - FeeRate: A scoped amount or per-km price for a fee item in a term/year
  - FeeAssignment: A per-student override of a fee item for one term/year
  - Assessment: A generated charge owed by one student for one item/term/year
  - Payment/Allocation: Money received and its application to assessments
  - TermYear: The (term, year) pair used as the billing period key

DESIGN PRINCIPLES:
  1. Precision: decimal.Decimal for all currency and distances, never floats
  2. Type Safety: distinct string ID types prevent mixing identifiers
  3. Auditability: assessments carry the base rate and quantity used
  4. Derived State: payment allocation status is computed, never stored

SEE ALSO:
  - resolver.go: Scope-precedence rate resolution
  - generator.go: Idempotent assessment generation
  - allocator.go: Payment allocation with clamping rules
  - balance.go: Reconciled and raw balance views
*/
package fees

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type (
	StudentID    string
	FeeItemID    string
	FeeRateID    string
	AssignmentID string
	AssessmentID string
	PaymentID    string
	AllocationID string
	ClassID      string
	StreamID     string
	VehicleID    string
	TermID       string
)

// =============================================================================
// ENUMS
// =============================================================================

// FeeScope is the breadth at which a fee item's rates apply.
type FeeScope string

const (
	ScopeUniversal   FeeScope = "UNIVERSAL"    // one rate for the whole school
	ScopeClassLevel  FeeScope = "CLASS_LEVEL"  // rates keyed by class
	ScopeStreamLevel FeeScope = "STREAM_LEVEL" // rates keyed by stream
	ScopeIndividual  FeeScope = "INDIVIDUAL"   // per-student, global fallback rate
)

// ValidScope reports whether s is a known fee scope.
func ValidScope(s FeeScope) bool {
	switch s {
	case ScopeUniversal, ScopeClassLevel, ScopeStreamLevel, ScopeIndividual:
		return true
	}
	return false
}

// StudentType distinguishes day scholars from boarders for rate lookups.
type StudentType string

const (
	StudentDay     StudentType = "DAY"
	StudentBoarder StudentType = "BOARDER"
)

// PaymentMode is how a payment was received.
type PaymentMode string

const (
	ModeCash   PaymentMode = "CASH"
	ModeMpesa  PaymentMode = "MPESA"
	ModeBank   PaymentMode = "BANK"
	ModeCheque PaymentMode = "CHEQUE"
)

// CodeTransport is the fee item code whose universal rate only applies to
// students with a vehicle assignment.
const CodeTransport = "TRANSPORT"

// =============================================================================
// TERM/YEAR - billing period key
// =============================================================================

// TermYear identifies a billing period: term 1-3 within an academic year.
type TermYear struct {
	Term int
	Year int
}

// Covers reports whether other falls at or before t in chronological order.
// Used for "up to and including term/year" balance cutoffs.
func (t TermYear) Covers(other TermYear) bool {
	if other.Year != t.Year {
		return other.Year < t.Year
	}
	return other.Term <= t.Term
}

func (t TermYear) String() string {
	return fmt.Sprintf("Term %d/%d", t.Term, t.Year)
}

// AcademicTerm is a configured term with calendar dates. At most one term may
// be current at a time; the store enforces that as a single transactional
// unset-all-then-set-one operation.
type AcademicTerm struct {
	ID        TermID
	Term      int
	Year      int
	StartDate time.Time
	EndDate   time.Time
	IsCurrent bool
}

func (t AcademicTerm) TermYear() TermYear {
	return TermYear{Term: t.Term, Year: t.Year}
}

// ActiveOn reports whether d falls within the term's calendar dates.
func (t AcademicTerm) ActiveOn(d time.Time) bool {
	return !d.Before(t.StartDate) && !d.After(t.EndDate)
}

// =============================================================================
// CONFIGURATION - fee items, rates, individual assignments
// =============================================================================

// FeeItem is a billable category. Long-lived configuration; never deleted
// once rates or assessments reference it (see guards.go).
type FeeItem struct {
	ID           FeeItemID
	Code         string // e.g. "TUITION", "TRANSPORT"
	Name         string
	Description  string
	Scope        FeeScope
	PerKilometer bool // charged per km of transport distance
	Active       bool
}

// FeeRate maps (fee item, term, year, class?, stream?, student type?) to a
// flat amount or a per-km rate. A rate with no class and no stream is the
// global fallback for its fee item.
type FeeRate struct {
	ID        FeeRateID
	FeeItemID FeeItemID
	TermYear  TermYear

	ClassID     *ClassID
	StreamID    *StreamID
	StudentType *StudentType

	Amount    *decimal.Decimal // flat fee
	RatePerKm *decimal.Decimal // per-km price (transport)
	Active    bool
}

// FeeAssignment is an individual override of a fee item for one student in
// one term/year. It takes precedence over all FeeRate lookups.
type FeeAssignment struct {
	ID        AssignmentID
	StudentID StudentID
	FeeItemID FeeItemID
	TermYear  TermYear

	CustomAmount     *decimal.Decimal // fixed amount override
	CustomRatePerKm  *decimal.Decimal // per-km rate override
	CustomDistanceKm *decimal.Decimal // distance override
	Active           bool
}

// =============================================================================
// DIRECTORY - student placement consumed (not owned) by this engine
// =============================================================================

type Student struct {
	ID          StudentID
	AdmissionNo string
	FirstName   string
	LastName    string

	ClassID  ClassID
	StreamID *StreamID
	Type     StudentType

	TransportKm *decimal.Decimal // nil if no transport
	VehicleID   *VehicleID       // nil if no vehicle assigned
	Active      bool
}

func (s Student) FullName() string {
	return s.FirstName + " " + s.LastName
}

// Class is an academic class (e.g. "Grade 3").
type Class struct {
	ID    ClassID
	Name  string
	Level string
}

// Stream is a stream within a class (e.g. "A").
type Stream struct {
	ID      StreamID
	ClassID ClassID
	Name    string
}

// =============================================================================
// RATE INFO - resolver output, calculator input
// =============================================================================

// RateSource records where a resolved rate came from, for auditability.
type RateSource string

const (
	SourceIndividual      RateSource = "individual"
	SourceIndividualPerKm RateSource = "individual_per_km"
	SourceStandardFixed   RateSource = "standard_fixed"
	SourceStandardPerKm   RateSource = "standard_per_km"
)

// RateInfo is a resolved rate ready for calculation:
// amount owed = BaseRate * Quantity.
type RateInfo struct {
	Source   RateSource
	BaseRate decimal.Decimal
	Quantity decimal.Decimal
}

// =============================================================================
// LEDGER - assessments, payments, allocations
// =============================================================================

// Assessment is one charge owed: one row per (student, fee item, term, year).
// BaseRate and Quantity record how Amount was computed.
type Assessment struct {
	ID        AssessmentID
	StudentID StudentID
	FeeItemID FeeItemID
	TermYear  TermYear

	Description string
	Amount      decimal.Decimal
	BaseRate    decimal.Decimal
	Quantity    decimal.Decimal
	AssessedAt  time.Time
}

// Payment is money received from a student's payer. Immutable except for
// administrative correction; deletion is blocked once allocations exist.
type Payment struct {
	ID        PaymentID
	StudentID StudentID

	Amount    decimal.Decimal
	Date      time.Time
	Mode      PaymentMode
	ReceiptNo string
	Reference string // mpesa code / bank slip / cheque number
	Note      string
	CreatedAt time.Time
}

// Allocation applies part of a payment to one assessment.
type Allocation struct {
	ID           AllocationID
	PaymentID    PaymentID
	AssessmentID AssessmentID
	Amount       decimal.Decimal
	CreatedAt    time.Time
}

// =============================================================================
// PAYMENT STATUS - always derived, never stored
// =============================================================================

// PaymentStatus is the allocation state of a payment, derived from the
// running sum of its allocations versus its amount.
type PaymentStatus string

const (
	PaymentUnallocated        PaymentStatus = "unallocated"
	PaymentPartiallyAllocated PaymentStatus = "partially_allocated"
	PaymentFullyAllocated     PaymentStatus = "fully_allocated"
)

// StatusOf derives the allocation status from a payment amount and the sum
// of its allocations.
func StatusOf(paymentAmount, allocated decimal.Decimal) PaymentStatus {
	switch {
	case allocated.IsZero():
		return PaymentUnallocated
	case allocated.GreaterThanOrEqual(paymentAmount):
		return PaymentFullyAllocated
	default:
		return PaymentPartiallyAllocated
	}
}
