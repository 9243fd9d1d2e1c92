/*
balance.go - Balance computation

PURPOSE:
  Computes what a student owes. Two views exist on purpose and are kept as
  separate, named operations:

  Statement (allocation-reconciled):
    total_assessed = sum of assessment amounts up to the term/year cutoff
    total_paid     = sum of allocations whose TARGET ASSESSMENT falls within
                     the cutoff (an allocation belongs to the term of its
                     assessment, not the payment date)
    Used for statements and dashboards where money must line up with the
    charges it settled.

  QuickBalance (raw assessed-minus-paid):
    total_assessed = sum of all assessment amounts
    total_paid     = sum of raw payment amounts, ignoring allocation linkage
    Used for quick "does this student owe us?" checks; unallocated payments
    still count.

  Both satisfy balance = total_assessed - total_paid exactly; the balance may
  be negative (credit) or positive (owed). Do not unify the two views: their
  callers expect different semantics.
*/
package fees

import (
	"context"

	"github.com/shopspring/decimal"
)

// BalanceSummary is the result of a balance query.
type BalanceSummary struct {
	StudentID     StudentID
	TotalAssessed decimal.Decimal
	TotalPaid     decimal.Decimal
	Balance       decimal.Decimal

	// UpTo is the cutoff used, nil for all-time.
	UpTo *TermYear
}

// OutstandingLine pairs an assessment with its unallocated remainder.
type OutstandingLine struct {
	Assessment  Assessment
	Outstanding decimal.Decimal
}

// BalanceEngine aggregates assessments and allocations into balances.
type BalanceEngine struct {
	store Store
}

func NewBalanceEngine(store Store) *BalanceEngine {
	return &BalanceEngine{store: store}
}

// Statement computes the allocation-reconciled balance up to and including
// the given term/year, or all-time when upTo is nil.
func (b *BalanceEngine) Statement(ctx context.Context, studentID StudentID, upTo *TermYear) (*BalanceSummary, error) {
	assessments, err := b.store.AssessmentsByStudent(ctx, studentID, upTo)
	if err != nil {
		return nil, err
	}

	assessed := decimal.Zero
	for _, a := range assessments {
		assessed = assessed.Add(a.Amount)
	}

	paid, err := b.store.AllocatedToStudent(ctx, studentID, upTo)
	if err != nil {
		return nil, err
	}

	return &BalanceSummary{
		StudentID:     studentID,
		TotalAssessed: assessed,
		TotalPaid:     paid,
		Balance:       assessed.Sub(paid),
		UpTo:          upTo,
	}, nil
}

// QuickBalance computes the raw assessed-minus-paid balance across all
// terms, comparing assessment totals against raw payment totals regardless
// of allocation linkage.
func (b *BalanceEngine) QuickBalance(ctx context.Context, studentID StudentID) (*BalanceSummary, error) {
	assessments, err := b.store.AssessmentsByStudent(ctx, studentID, nil)
	if err != nil {
		return nil, err
	}
	assessed := decimal.Zero
	for _, a := range assessments {
		assessed = assessed.Add(a.Amount)
	}

	payments, err := b.store.PaymentsByStudent(ctx, studentID)
	if err != nil {
		return nil, err
	}
	paid := decimal.Zero
	for _, p := range payments {
		paid = paid.Add(p.Amount)
	}

	return &BalanceSummary{
		StudentID:     studentID,
		TotalAssessed: assessed,
		TotalPaid:     paid,
		Balance:       assessed.Sub(paid),
	}, nil
}

// Outstanding returns the student's assessments that still carry an
// unallocated remainder, oldest term first.
func (b *BalanceEngine) Outstanding(ctx context.Context, studentID StudentID) ([]OutstandingLine, error) {
	assessments, err := b.store.AssessmentsByStudent(ctx, studentID, nil)
	if err != nil {
		return nil, err
	}

	var lines []OutstandingLine
	for _, a := range assessments {
		allocated, err := b.store.AllocatedToAssessment(ctx, a.ID)
		if err != nil {
			return nil, err
		}
		outstanding := a.Amount.Sub(allocated)
		if outstanding.IsPositive() {
			lines = append(lines, OutstandingLine{Assessment: a, Outstanding: outstanding})
		}
	}
	return lines, nil
}
