/*
allocator.go - Payment allocation against outstanding assessments

PURPOSE:
  Distributes a recorded payment across one or more assessments, enforcing
  the two non-overallocation invariants:
    - the sum of allocations to one assessment never exceeds its amount
      (requested amounts are CLAMPED to the outstanding balance, with a
      warning, not rejected)
    - the sum of allocations from one payment never exceeds its amount
      (the whole batch is rejected, nothing is written)

LINE VALIDATION ORDER:
  1. Lines with a non-positive amount are dropped.
  2. Lines targeting an assessment of a different student (or a missing
     assessment) are dropped with a warning; the rest of the batch proceeds.
  3. Amounts above the assessment's outstanding balance are clamped, with a
     warning. Earlier lines in the batch count against the outstanding
     balance. A line clamped to zero is dropped.
  4. If the clamped total exceeds the payment amount: reject everything.
  5. If the clamped total is zero: "no valid allocations".
  6. Otherwise all allocation rows are committed atomically.

PAYMENT STATE:
  A payment moves Unallocated -> PartiallyAllocated -> FullyAllocated purely
  as a function of the running sum of its allocations versus its amount. The
  state is derived on read; there is no stored status column.

SEE ALSO:
  - balance.go: Reads the allocations written here
  - guards.go: Blocks deleting payments that have allocations
*/
package fees

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AllocationLine is one requested (assessment, amount) pairing.
type AllocationLine struct {
	AssessmentID AssessmentID
	Amount       decimal.Decimal
}

// AllocationResult reports what an allocation batch committed.
type AllocationResult struct {
	PaymentID      PaymentID
	TotalAllocated decimal.Decimal
	Allocations    []Allocation
	Warnings       []string

	// Status is the payment's derived allocation state after the batch.
	Status PaymentStatus
}

// Allocator applies payments to assessments.
type Allocator struct {
	store TxStore
	now   func() time.Time
}

func NewAllocator(store TxStore) *Allocator {
	return &Allocator{store: store, now: time.Now}
}

// Allocate validates and commits one allocation batch for a payment. Invalid
// lines are dropped with warnings; only a total exceeding the payment's
// amount rejects the whole batch. On any returned error the store is left
// unchanged.
func (al *Allocator) Allocate(ctx context.Context, paymentID PaymentID, lines []AllocationLine) (*AllocationResult, error) {
	result := &AllocationResult{
		PaymentID:      paymentID,
		TotalAllocated: decimal.Zero,
	}

	err := al.store.WithTx(ctx, func(s Store) error {
		payment, err := s.Payment(ctx, paymentID)
		if err != nil {
			return err
		}
		if payment == nil {
			return ErrPaymentNotFound
		}

		type pending struct {
			assessmentID AssessmentID
			amount       decimal.Decimal
		}
		var toCreate []pending
		total := decimal.Zero
		// Earlier lines in this batch count against an assessment's
		// outstanding balance; two lines for the same assessment must
		// not each see the full amount.
		inBatch := make(map[AssessmentID]decimal.Decimal)

		for _, line := range lines {
			if !line.Amount.IsPositive() {
				continue
			}

			assessment, err := s.Assessment(ctx, line.AssessmentID)
			if err != nil {
				return err
			}
			if assessment == nil || assessment.StudentID != payment.StudentID {
				result.Warnings = append(result.Warnings,
					fmt.Sprintf("invalid assessment ID: %s", line.AssessmentID))
				continue
			}

			allocated, err := s.AllocatedToAssessment(ctx, assessment.ID)
			if err != nil {
				return err
			}
			outstanding := assessment.Amount.Sub(allocated).Sub(inBatch[assessment.ID])

			amount := line.Amount
			if amount.GreaterThan(outstanding) {
				result.Warnings = append(result.Warnings,
					fmt.Sprintf("amount for %s clamped to outstanding balance %s",
						assessment.Description, outstanding.StringFixed(2)))
				amount = outstanding
			}
			if !amount.IsPositive() {
				continue
			}

			toCreate = append(toCreate, pending{assessmentID: assessment.ID, amount: amount})
			total = total.Add(amount)
			inBatch[assessment.ID] = inBatch[assessment.ID].Add(amount)
		}

		if total.GreaterThan(payment.Amount) {
			return &OverAllocationError{
				PaymentID:     payment.ID,
				PaymentAmount: payment.Amount.StringFixed(2),
				Requested:     total.StringFixed(2),
			}
		}
		if total.IsZero() {
			return ErrNoValidAllocations
		}

		previouslyAllocated := decimal.Zero
		existing, err := s.AllocationsByPayment(ctx, payment.ID)
		if err != nil {
			return err
		}
		for _, a := range existing {
			previouslyAllocated = previouslyAllocated.Add(a.Amount)
		}
		if previouslyAllocated.Add(total).GreaterThan(payment.Amount) {
			return &OverAllocationError{
				PaymentID:     payment.ID,
				PaymentAmount: payment.Amount.StringFixed(2),
				Requested:     previouslyAllocated.Add(total).StringFixed(2),
			}
		}

		now := al.now().UTC()
		for _, p := range toCreate {
			alloc := Allocation{
				ID:           AllocationID(uuid.NewString()),
				PaymentID:    payment.ID,
				AssessmentID: p.assessmentID,
				Amount:       p.amount,
				CreatedAt:    now,
			}
			if err := s.InsertAllocation(ctx, alloc); err != nil {
				return err
			}
			result.Allocations = append(result.Allocations, alloc)
		}

		result.TotalAllocated = total
		result.Status = StatusOf(payment.Amount, previouslyAllocated.Add(total))
		return nil
	})

	if err != nil {
		return nil, err
	}
	return result, nil
}

// PaymentState derives the allocation status of a payment.
func (al *Allocator) PaymentState(ctx context.Context, paymentID PaymentID) (PaymentStatus, error) {
	payment, err := al.store.Payment(ctx, paymentID)
	if err != nil {
		return "", err
	}
	if payment == nil {
		return "", ErrPaymentNotFound
	}

	allocations, err := al.store.AllocationsByPayment(ctx, paymentID)
	if err != nil {
		return "", err
	}

	allocated := decimal.Zero
	for _, a := range allocations {
		allocated = allocated.Add(a.Amount)
	}
	return StatusOf(payment.Amount, allocated), nil
}
