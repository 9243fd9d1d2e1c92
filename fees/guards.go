/*
guards.go - Integrity guards for deletes

PURPOSE:
  Business-rule checks performed BEFORE any delete is attempted. These are
  not database foreign-key failures: the point is a descriptive, displayable
  reason, not a constraint violation.

GUARDED DELETES:
  FeeItem:  blocked while rates, assessments or assignments reference it
  FeeRate:  blocked while assessments exist for its item+term+year
  Payment:  blocked while it has allocations
  Student:  blocked while assessments or payments reference them
*/
package fees

import (
	"context"
	"fmt"
)

// Guard runs pre-delete dependency checks.
type Guard struct {
	store Store
}

func NewGuard(store Store) *Guard {
	return &Guard{store: store}
}

// CheckDeleteFeeItem returns a DeleteBlockedError when the fee item has
// dependent rows, nil when deleting is safe.
func (g *Guard) CheckDeleteFeeItem(ctx context.Context, id FeeItemID) error {
	assessments, err := g.store.AssessmentCountForItem(ctx, id)
	if err != nil {
		return err
	}
	if assessments > 0 {
		return &DeleteBlockedError{
			Kind: "fee item", ID: string(id),
			Reason: fmt.Sprintf("it has %d assessments", assessments),
		}
	}

	rates, err := g.store.RateCountForItem(ctx, id)
	if err != nil {
		return err
	}
	if rates > 0 {
		return &DeleteBlockedError{
			Kind: "fee item", ID: string(id),
			Reason: fmt.Sprintf("it has %d fee rates", rates),
		}
	}

	assignments, err := g.store.AssignmentCountForItem(ctx, id)
	if err != nil {
		return err
	}
	if assignments > 0 {
		return &DeleteBlockedError{
			Kind: "fee item", ID: string(id),
			Reason: fmt.Sprintf("it has %d student assignments", assignments),
		}
	}
	return nil
}

// CheckDeleteFeeRate blocks deleting a rate that has been used in
// assessments for its fee item and term/year.
func (g *Guard) CheckDeleteFeeRate(ctx context.Context, id FeeRateID) error {
	rate, err := g.store.FeeRate(ctx, id)
	if err != nil {
		return err
	}
	if rate == nil {
		return nil
	}

	count, err := g.store.AssessmentCountForItemTerm(ctx, rate.FeeItemID, rate.TermYear)
	if err != nil {
		return err
	}
	if count > 0 {
		return &DeleteBlockedError{
			Kind: "fee rate", ID: string(id),
			Reason: fmt.Sprintf("it has been used in %d assessments", count),
		}
	}
	return nil
}

// CheckDeletePayment blocks deleting a payment that has allocations.
func (g *Guard) CheckDeletePayment(ctx context.Context, id PaymentID) error {
	allocations, err := g.store.AllocationsByPayment(ctx, id)
	if err != nil {
		return err
	}
	if len(allocations) > 0 {
		return &DeleteBlockedError{
			Kind: "payment", ID: string(id),
			Reason: fmt.Sprintf("it has %d allocations; remove allocations first", len(allocations)),
		}
	}
	return nil
}

// CheckDeleteStudent blocks deleting a student with billing history.
func (g *Guard) CheckDeleteStudent(ctx context.Context, id StudentID) error {
	assessments, err := g.store.AssessmentsByStudent(ctx, id, nil)
	if err != nil {
		return err
	}
	if len(assessments) > 0 {
		return &DeleteBlockedError{
			Kind: "student", ID: string(id),
			Reason: fmt.Sprintf("they have %d fee assessments", len(assessments)),
		}
	}

	payments, err := g.store.PaymentsByStudent(ctx, id)
	if err != nil {
		return err
	}
	if len(payments) > 0 {
		return &DeleteBlockedError{
			Kind: "student", ID: string(id),
			Reason: fmt.Sprintf("they have %d payments on record", len(payments)),
		}
	}
	return nil
}
