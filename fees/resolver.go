/*
resolver.go - Scope-precedence rate resolution

PURPOSE:
  Answers "what does this student pay for this fee item this term?". This is
  the single place that knows the precedence rules:

  1. An active individual assignment for (student, fee item, term, year)
     wins. A custom fixed amount wins outright (quantity 1). For per-km
     items, a custom per-km rate applies over the assignment's custom
     distance, falling back to the student's stored transport distance.
  2. Otherwise a scope-based FeeRate lookup:
       UNIVERSAL / INDIVIDUAL: the global rate (no class, no stream). The
         TRANSPORT item additionally requires a vehicle assignment.
       STREAM_LEVEL: the student's stream + student type, falling back to
         the same stream with no student type.
       CLASS_LEVEL:  the student's class + student type, falling back to
         the same class with no student type.
  3. A found rate yields RateInfo: per-km rate x transport distance when the
     item is per-km and both are present, else the flat amount x 1.

  A nil result means the fee item is simply inapplicable to this student
  this term. That is configuration, not an error: schools run partial fee
  structures on purpose.

DISPATCH TABLE:
  The per-scope branching is a single table mapping scope to an ordered list
  of rate-query builders, so the fallback order lives in exactly one place.

SEE ALSO:
  - calculator.go: Turns the returned RateInfo into money
  - generator.go: Drives Resolve across students and fee items
*/
package fees

import (
	"context"

	"github.com/shopspring/decimal"
)

// Resolver finds the applicable rate for a student/fee item/term.
type Resolver struct {
	store Store
}

func NewResolver(store Store) *Resolver {
	return &Resolver{store: store}
}

// rateQueryBuilder builds one scope lookup for a student. ok=false means the
// lookup does not apply (e.g. stream-level item for a student with no stream).
type rateQueryBuilder func(s *Student) (q RateQuery, ok bool)

// scopeLookups maps each fee scope to its ordered lookup sequence. The first
// builder that yields a stored rate wins.
var scopeLookups = map[FeeScope][]rateQueryBuilder{
	ScopeUniversal:  {globalRate},
	ScopeIndividual: {globalRate},
	ScopeStreamLevel: {
		streamRate(withStudentType),
		streamRate(noStudentType),
	},
	ScopeClassLevel: {
		classRate(withStudentType),
		classRate(noStudentType),
	},
}

func globalRate(s *Student) (RateQuery, bool) {
	// Global fallback rate: no class, no stream, any student type.
	return RateQuery{ClassID: nil, StreamID: nil, AnyType: true}, true
}

func streamRate(typed bool) rateQueryBuilder {
	return func(s *Student) (RateQuery, bool) {
		if s.StreamID == nil {
			return RateQuery{}, false
		}
		q := RateQuery{StreamID: s.StreamID, AnyClass: true}
		if typed {
			t := s.Type
			q.StudentType = &t
		}
		return q, true
	}
}

func classRate(typed bool) rateQueryBuilder {
	return func(s *Student) (RateQuery, bool) {
		q := RateQuery{ClassID: &s.ClassID, AnyStream: true}
		if typed {
			t := s.Type
			q.StudentType = &t
		}
		return q, true
	}
}

const (
	withStudentType = true
	noStudentType   = false
)

// Resolve finds the single applicable rate for (student, fee item, term,
// year). Returns (nil, nil) when the item is inapplicable to this student.
func (r *Resolver) Resolve(ctx context.Context, student *Student, item FeeItem, ty TermYear) (*RateInfo, error) {
	// 1. Individual assignment takes precedence over every rate lookup.
	assignment, err := r.store.FindAssignment(ctx, student.ID, item.ID, ty)
	if err != nil {
		return nil, err
	}
	if assignment != nil {
		if info := assignmentRate(assignment, student, item); info != nil {
			return info, nil
		}
		// An assignment that resolves nothing falls through to the
		// standard rates.
	}

	// 2. Scope-based lookup.
	if item.Scope == ScopeUniversal || item.Scope == ScopeIndividual {
		// The transport item only applies to students with a vehicle.
		if item.Code == CodeTransport && student.VehicleID == nil {
			return nil, nil
		}
	}

	rate, err := r.lookupRate(ctx, student, item, ty)
	if err != nil {
		return nil, err
	}
	if rate == nil {
		return nil, nil
	}

	// 3. Extract RateInfo from the stored rate.
	return standardRate(rate, student, item), nil
}

func (r *Resolver) lookupRate(ctx context.Context, student *Student, item FeeItem, ty TermYear) (*FeeRate, error) {
	for _, build := range scopeLookups[item.Scope] {
		q, ok := build(student)
		if !ok {
			continue
		}
		q.FeeItemID = item.ID
		q.TermYear = ty

		rate, err := r.store.FindRate(ctx, q)
		if err != nil {
			return nil, err
		}
		if rate != nil {
			return rate, nil
		}
	}
	return nil, nil
}

// assignmentRate extracts RateInfo from an individual assignment, or nil if
// the assignment specifies nothing usable.
func assignmentRate(a *FeeAssignment, student *Student, item FeeItem) *RateInfo {
	if positive(a.CustomAmount) {
		return &RateInfo{
			Source:   SourceIndividual,
			BaseRate: *a.CustomAmount,
			Quantity: decimal.NewFromInt(1),
		}
	}
	if item.PerKilometer && positive(a.CustomRatePerKm) {
		distance := a.CustomDistanceKm
		if !positive(distance) {
			distance = student.TransportKm
		}
		if positive(distance) {
			return &RateInfo{
				Source:   SourceIndividualPerKm,
				BaseRate: *a.CustomRatePerKm,
				Quantity: *distance,
			}
		}
	}
	return nil
}

// standardRate extracts RateInfo from a stored rate, or nil when the rate
// carries nothing usable for this student.
func standardRate(rate *FeeRate, student *Student, item FeeItem) *RateInfo {
	if item.PerKilometer && positive(student.TransportKm) && positive(rate.RatePerKm) {
		return &RateInfo{
			Source:   SourceStandardPerKm,
			BaseRate: *rate.RatePerKm,
			Quantity: *student.TransportKm,
		}
	}
	if positive(rate.Amount) {
		return &RateInfo{
			Source:   SourceStandardFixed,
			BaseRate: *rate.Amount,
			Quantity: decimal.NewFromInt(1),
		}
	}
	return nil
}

func positive(d *decimal.Decimal) bool {
	return d != nil && d.IsPositive()
}
