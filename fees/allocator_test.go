package fees_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/shule/fees-engine/fees"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// assess seeds one term-1 assessment directly, bypassing generation.
func (f *fixture) assess(id string, student *fees.Student, itemID string, amount string) fees.Assessment {
	return f.assessIn(id, student, itemID, amount, term1)
}

func (f *fixture) assessIn(id string, student *fees.Student, itemID string, amount string, ty fees.TermYear) fees.Assessment {
	a := fees.Assessment{
		ID:         fees.AssessmentID(id),
		StudentID:  student.ID,
		FeeItemID:  fees.FeeItemID(itemID),
		TermYear:   ty,
		Amount:     dec(amount),
		BaseRate:   dec(amount),
		Quantity:   decimal.NewFromInt(1),
		AssessedAt: time.Now().UTC(),
	}
	require.NoError(f.t, f.store.InsertAssessment(f.ctx, a))
	return a
}

func (f *fixture) pay(id string, student *fees.Student, amount string) fees.Payment {
	p := fees.Payment{
		ID:        fees.PaymentID(id),
		StudentID: student.ID,
		Amount:    dec(amount),
		Date:      time.Now(),
		Mode:      fees.ModeCash,
		ReceiptNo: "RCT-" + id,
	}
	require.NoError(f.t, f.store.SavePayment(f.ctx, p))
	return p
}

// =============================================================================
// BATCH REJECTION
// =============================================================================

func TestAllocate_TotalExceedingPayment_RejectsWholeBatch(t *testing.T) {
	// GIVEN: A 1000 payment and lines totalling 1300
	// THEN: ErrOverAllocation, and no allocation rows are written

	f := newFixture(t)
	student := f.dayScholar("stu-1", "ADM001")
	a1 := f.assess("as-1", student, "tuition", "800.00")
	a2 := f.assess("as-2", student, "exam", "500.00")
	payment := f.pay("pay-1", student, "1000.00")

	al := fees.NewAllocator(f.store)
	result, err := al.Allocate(f.ctx, payment.ID, []fees.AllocationLine{
		{AssessmentID: a1.ID, Amount: dec("800.00")},
		{AssessmentID: a2.ID, Amount: dec("500.00")},
	})
	require.ErrorIs(t, err, fees.ErrOverAllocation)
	assert.Nil(t, result)

	var overErr *fees.OverAllocationError
	require.ErrorAs(t, err, &overErr)
	assert.Equal(t, "1300.00", overErr.Requested)
	assert.Equal(t, "1000.00", overErr.PaymentAmount)

	allocations, err := f.store.AllocationsByPayment(f.ctx, payment.ID)
	require.NoError(t, err)
	assert.Empty(t, allocations, "rejected batch must leave the store unchanged")
}

func TestAllocate_SecondBatchExceedingRemainder_Rejected(t *testing.T) {
	// GIVEN: A 1000 payment with 800 already allocated
	// WHEN: A further 300 is requested
	// THEN: Rejected, even though 300 alone fits the payment

	f := newFixture(t)
	student := f.dayScholar("stu-1", "ADM001")
	a1 := f.assess("as-1", student, "tuition", "800.00")
	a2 := f.assess("as-2", student, "exam", "500.00")
	payment := f.pay("pay-1", student, "1000.00")

	al := fees.NewAllocator(f.store)
	_, err := al.Allocate(f.ctx, payment.ID, []fees.AllocationLine{
		{AssessmentID: a1.ID, Amount: dec("800.00")},
	})
	require.NoError(t, err)

	_, err = al.Allocate(f.ctx, payment.ID, []fees.AllocationLine{
		{AssessmentID: a2.ID, Amount: dec("300.00")},
	})
	require.ErrorIs(t, err, fees.ErrOverAllocation)
}

// =============================================================================
// CLAMPING AND LINE VALIDATION
// =============================================================================

func TestAllocate_ClampsToOutstandingWithWarning(t *testing.T) {
	// GIVEN: An assessment with only 400 outstanding
	// WHEN: 700 is requested against it
	// THEN: The line is clamped to 400 and the batch proceeds

	f := newFixture(t)
	student := f.dayScholar("stu-1", "ADM001")
	a1 := f.assess("as-1", student, "tuition", "1000.00")
	a2 := f.assess("as-2", student, "exam", "600.00")
	first := f.pay("pay-1", student, "600.00")
	second := f.pay("pay-2", student, "1000.00")

	al := fees.NewAllocator(f.store)
	_, err := al.Allocate(f.ctx, first.ID, []fees.AllocationLine{
		{AssessmentID: a1.ID, Amount: dec("600.00")},
	})
	require.NoError(t, err)

	result, err := al.Allocate(f.ctx, second.ID, []fees.AllocationLine{
		{AssessmentID: a1.ID, Amount: dec("700.00")},
		{AssessmentID: a2.ID, Amount: dec("600.00")},
	})
	require.NoError(t, err)

	assert.Equal(t, "1000.00", result.TotalAllocated.StringFixed(2))
	assert.Len(t, result.Allocations, 2)
	require.Len(t, result.Warnings, 1)
	assert.Contains(t, result.Warnings[0], "clamped to outstanding balance 400.00")
	assert.Equal(t, fees.PaymentFullyAllocated, result.Status)
}

func TestAllocate_DuplicateLinesForOneAssessment_ShareItsOutstanding(t *testing.T) {
	// GIVEN: A 400 assessment and a 1000 payment
	// WHEN: Two lines of 300 each target the same assessment
	// THEN: The second sees only the 100 left after the first; the
	//       assessment never collects more than its amount

	f := newFixture(t)
	student := f.dayScholar("stu-1", "ADM001")
	a1 := f.assess("as-1", student, "tuition", "400.00")
	payment := f.pay("pay-1", student, "1000.00")

	al := fees.NewAllocator(f.store)
	result, err := al.Allocate(f.ctx, payment.ID, []fees.AllocationLine{
		{AssessmentID: a1.ID, Amount: dec("300.00")},
		{AssessmentID: a1.ID, Amount: dec("300.00")},
	})
	require.NoError(t, err)

	assert.Equal(t, "400.00", result.TotalAllocated.StringFixed(2))
	require.Len(t, result.Allocations, 2)
	assert.Equal(t, "300.00", result.Allocations[0].Amount.StringFixed(2))
	assert.Equal(t, "100.00", result.Allocations[1].Amount.StringFixed(2))
	require.Len(t, result.Warnings, 1)
	assert.Contains(t, result.Warnings[0], "clamped to outstanding balance 100.00")

	allocated, err := f.store.AllocatedToAssessment(f.ctx, a1.ID)
	require.NoError(t, err)
	assert.Equal(t, "400.00", allocated.StringFixed(2))
}

func TestAllocate_DuplicateLinesBeyondOutstanding_SecondDropped(t *testing.T) {
	// GIVEN: A 400 assessment fully covered by the first line
	// THEN: The duplicate is clamped to zero and dropped

	f := newFixture(t)
	student := f.dayScholar("stu-1", "ADM001")
	a1 := f.assess("as-1", student, "tuition", "400.00")
	payment := f.pay("pay-1", student, "1000.00")

	al := fees.NewAllocator(f.store)
	result, err := al.Allocate(f.ctx, payment.ID, []fees.AllocationLine{
		{AssessmentID: a1.ID, Amount: dec("400.00")},
		{AssessmentID: a1.ID, Amount: dec("400.00")},
	})
	require.NoError(t, err)

	assert.Equal(t, "400.00", result.TotalAllocated.StringFixed(2))
	assert.Len(t, result.Allocations, 1)
	require.Len(t, result.Warnings, 1)
	assert.Contains(t, result.Warnings[0], "clamped to outstanding balance 0.00")

	allocated, err := f.store.AllocatedToAssessment(f.ctx, a1.ID)
	require.NoError(t, err)
	assert.Equal(t, "400.00", allocated.StringFixed(2))
}

func TestAllocate_InvalidAssessment_DroppedWithWarning(t *testing.T) {
	// GIVEN: One valid line and one targeting another student's assessment
	f := newFixture(t)
	student := f.dayScholar("stu-1", "ADM001")
	other := f.dayScholar("stu-2", "ADM002")
	mine := f.assess("as-mine", student, "tuition", "500.00")
	theirs := f.assess("as-theirs", other, "tuition", "500.00")
	payment := f.pay("pay-1", student, "500.00")

	al := fees.NewAllocator(f.store)
	result, err := al.Allocate(f.ctx, payment.ID, []fees.AllocationLine{
		{AssessmentID: mine.ID, Amount: dec("300.00")},
		{AssessmentID: theirs.ID, Amount: dec("200.00")},
		{AssessmentID: "as-ghost", Amount: dec("100.00")},
	})
	require.NoError(t, err)

	assert.Equal(t, "300.00", result.TotalAllocated.StringFixed(2))
	assert.Len(t, result.Allocations, 1)
	assert.Len(t, result.Warnings, 2)
}

func TestAllocate_AllLinesInvalid_ReturnsNoValidAllocations(t *testing.T) {
	f := newFixture(t)
	student := f.dayScholar("stu-1", "ADM001")
	payment := f.pay("pay-1", student, "500.00")

	al := fees.NewAllocator(f.store)
	_, err := al.Allocate(f.ctx, payment.ID, []fees.AllocationLine{
		{AssessmentID: "as-ghost", Amount: dec("100.00")},
		{AssessmentID: "as-zero", Amount: dec("0")},
	})
	require.ErrorIs(t, err, fees.ErrNoValidAllocations)
}

func TestAllocate_UnknownPayment(t *testing.T) {
	f := newFixture(t)
	al := fees.NewAllocator(f.store)
	_, err := al.Allocate(f.ctx, "pay-ghost", nil)
	require.ErrorIs(t, err, fees.ErrPaymentNotFound)
}

// =============================================================================
// DERIVED PAYMENT STATUS
// =============================================================================

func TestPaymentState_TracksAllocationProgress(t *testing.T) {
	// GIVEN: A 1000 payment
	// THEN: unallocated -> partially_allocated -> fully_allocated as
	//       allocations accumulate

	f := newFixture(t)
	student := f.dayScholar("stu-1", "ADM001")
	a1 := f.assess("as-1", student, "tuition", "600.00")
	a2 := f.assess("as-2", student, "exam", "400.00")
	payment := f.pay("pay-1", student, "1000.00")

	al := fees.NewAllocator(f.store)

	status, err := al.PaymentState(f.ctx, payment.ID)
	require.NoError(t, err)
	assert.Equal(t, fees.PaymentUnallocated, status)

	_, err = al.Allocate(f.ctx, payment.ID, []fees.AllocationLine{
		{AssessmentID: a1.ID, Amount: dec("600.00")},
	})
	require.NoError(t, err)

	status, err = al.PaymentState(f.ctx, payment.ID)
	require.NoError(t, err)
	assert.Equal(t, fees.PaymentPartiallyAllocated, status)

	_, err = al.Allocate(f.ctx, payment.ID, []fees.AllocationLine{
		{AssessmentID: a2.ID, Amount: dec("400.00")},
	})
	require.NoError(t, err)

	status, err = al.PaymentState(f.ctx, payment.ID)
	require.NoError(t, err)
	assert.Equal(t, fees.PaymentFullyAllocated, status)
}
