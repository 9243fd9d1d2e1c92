/*
store.go - Persistence interfaces for the fee engine

PURPOSE:
  Defines the interface between the billing logic and the database. The
  engine consumes three collaborators: a student directory, a fee
  configuration catalog, and a ledger of assessments/payments/allocations.
  All three are assumed to live in one transactional relational store.

KEY INTERFACES:
  Directory: Students, classes, streams (placement data, consumed not owned)
  Catalog:   Fee items, rates, individual assignments, academic terms
  Ledger:    Assessments, payments, allocations
  Store:     The union of the three
  TxStore:   Store plus WithTx for atomic multi-write operations

ATOMICITY:
  Every mutating batch operation (assessment generation, payment allocation)
  runs inside WithTx: either all rows are written or none are. The SQLite
  implementation additionally enforces a uniqueness constraint on
  (student, fee_item, term, year) so concurrent generation of the same scope
  cannot produce duplicate assessments.

LOOKUP CONVENTION:
  Single-record getters return (nil, nil) when no record matches. A missing
  rate or assignment is configuration, not a fault.

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: Production SQLite
  - fees/store/memory.go:   In-memory for testing

SEE ALSO:
  - resolver.go: Uses Catalog lookups via RateQuery
  - generator.go, allocator.go: Use TxStore.WithTx
*/
package fees

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SCOPE FILTER - student selection for generation/preview
// =============================================================================

// ScopeFilter narrows the student set for a generation run. The narrowing
// modes are mutually exclusive; the most specific non-nil field wins
// (student, then stream, then class). All nil selects every active student.
type ScopeFilter struct {
	ClassID   *ClassID
	StreamID  *StreamID
	StudentID *StudentID
}

// =============================================================================
// RATE QUERY - exact-tuple rate lookup
// =============================================================================

// RateQuery selects at most one active rate. For each of the class, stream
// and student-type dimensions: if the Any flag is set the dimension is
// unconstrained; otherwise a nil value matches only rates with the column
// unset, and a non-nil value matches only rates stored with that value.
type RateQuery struct {
	FeeItemID FeeItemID
	TermYear  TermYear

	ClassID  *ClassID
	AnyClass bool

	StreamID  *StreamID
	AnyStream bool

	StudentType *StudentType
	AnyType     bool
}

// =============================================================================
// DIRECTORY - student body
// =============================================================================

type Directory interface {
	// Student returns a student by ID, or (nil, nil) if absent.
	Student(ctx context.Context, id StudentID) (*Student, error)

	// ActiveStudents returns active students matching the filter, ordered
	// by admission number.
	ActiveStudents(ctx context.Context, filter ScopeFilter) ([]Student, error)

	ListStudents(ctx context.Context) ([]Student, error)
	SaveStudent(ctx context.Context, s Student) error
	DeleteStudent(ctx context.Context, id StudentID) error

	SaveClass(ctx context.Context, c Class) error
	SaveStream(ctx context.Context, s Stream) error
	ListClasses(ctx context.Context) ([]Class, error)
	StreamsByClass(ctx context.Context, classID ClassID) ([]Stream, error)
}

// =============================================================================
// CATALOG - fee configuration
// =============================================================================

type Catalog interface {
	FeeItem(ctx context.Context, id FeeItemID) (*FeeItem, error)
	ActiveFeeItems(ctx context.Context) ([]FeeItem, error)
	ListFeeItems(ctx context.Context) ([]FeeItem, error)
	SaveFeeItem(ctx context.Context, item FeeItem) error
	DeleteFeeItem(ctx context.Context, id FeeItemID) error

	// FindRate returns the single active rate matching the query, or
	// (nil, nil) when none is configured.
	FindRate(ctx context.Context, q RateQuery) (*FeeRate, error)
	FeeRate(ctx context.Context, id FeeRateID) (*FeeRate, error)
	RatesFor(ctx context.Context, ty TermYear) ([]FeeRate, error)
	SaveRate(ctx context.Context, rate FeeRate) error
	DeleteRate(ctx context.Context, id FeeRateID) error
	RateCountForItem(ctx context.Context, id FeeItemID) (int, error)

	// FindAssignment returns the active individual assignment for the
	// student/fee item/term-year, or (nil, nil).
	FindAssignment(ctx context.Context, studentID StudentID, feeItemID FeeItemID, ty TermYear) (*FeeAssignment, error)
	SaveAssignment(ctx context.Context, a FeeAssignment) error
	AssignmentCountForItem(ctx context.Context, id FeeItemID) (int, error)

	SaveTerm(ctx context.Context, t AcademicTerm) error
	Terms(ctx context.Context) ([]AcademicTerm, error)
	CurrentTerm(ctx context.Context) (*AcademicTerm, error)
	TermByDate(ctx context.Context, d time.Time) (*AcademicTerm, error)

	// SetCurrentTerm atomically unsets every current flag and sets the one
	// for the given term, preserving the single-current-term invariant.
	SetCurrentTerm(ctx context.Context, id TermID) error
}

// =============================================================================
// LEDGER - assessments, payments, allocations
// =============================================================================

type Ledger interface {
	Assessment(ctx context.Context, id AssessmentID) (*Assessment, error)

	// FindAssessment returns the assessment for the logical key
	// (student, fee item, term, year), or (nil, nil).
	FindAssessment(ctx context.Context, studentID StudentID, feeItemID FeeItemID, ty TermYear) (*Assessment, error)

	// AssessmentsForTerm returns all of a student's assessments in one
	// term/year (used by preview's skip-existing check).
	AssessmentsForTerm(ctx context.Context, studentID StudentID, ty TermYear) ([]Assessment, error)

	// AssessmentsByStudent returns a student's assessments up to and
	// including upTo, or all of them when upTo is nil. Ordered by year, term.
	AssessmentsByStudent(ctx context.Context, studentID StudentID, upTo *TermYear) ([]Assessment, error)

	InsertAssessment(ctx context.Context, a Assessment) error
	DeleteAssessment(ctx context.Context, id AssessmentID) error
	AssessmentCountForItem(ctx context.Context, id FeeItemID) (int, error)
	AssessmentCountForItemTerm(ctx context.Context, id FeeItemID, ty TermYear) (int, error)

	Payment(ctx context.Context, id PaymentID) (*Payment, error)
	PaymentsByStudent(ctx context.Context, studentID StudentID) ([]Payment, error)
	PaymentCount(ctx context.Context) (int, error)

	// ReceiptExists reports whether any payment already carries receiptNo.
	ReceiptExists(ctx context.Context, receiptNo string) (bool, error)

	SavePayment(ctx context.Context, p Payment) error
	DeletePayment(ctx context.Context, id PaymentID) error

	InsertAllocation(ctx context.Context, a Allocation) error
	AllocationsByPayment(ctx context.Context, paymentID PaymentID) ([]Allocation, error)

	// AllocatedToAssessment returns the sum of allocation amounts applied to
	// one assessment.
	AllocatedToAssessment(ctx context.Context, id AssessmentID) (decimal.Decimal, error)

	// AllocatedToStudent returns the sum of allocation amounts whose target
	// assessment belongs to the student and falls within the cutoff (all
	// allocations when upTo is nil). An allocation belongs to the term/year
	// of its assessment, not the payment date.
	AllocatedToStudent(ctx context.Context, studentID StudentID, upTo *TermYear) (decimal.Decimal, error)
}

// =============================================================================
// COMBINED STORE
// =============================================================================

type Store interface {
	Directory
	Catalog
	Ledger
}

// TxStore wraps Store with transaction support. If fn returns an error the
// transaction is rolled back and the store is left unchanged.
type TxStore interface {
	Store
	WithTx(ctx context.Context, fn func(Store) error) error
}
