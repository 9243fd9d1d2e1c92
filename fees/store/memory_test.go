package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/shule/fees-engine/fees"
	"github.com/shule/fees-engine/fees/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t1 = fees.TermYear{Term: 1, Year: 2025}

func newStudent(id, admission string) fees.Student {
	return fees.Student{
		ID: fees.StudentID(id), AdmissionNo: admission,
		FirstName: "Test", LastName: "Student",
		ClassID: "grade-1", Type: fees.StudentDay, Active: true,
	}
}

// =============================================================================
// TRANSACTION SEMANTICS
// =============================================================================

func TestWithTx_RollsBackOnError(t *testing.T) {
	// GIVEN: A transaction that writes a student and then fails
	// THEN: The student is not visible afterwards

	ctx := context.Background()
	m := store.NewMemory()
	boom := errors.New("boom")

	err := m.WithTx(ctx, func(s fees.Store) error {
		if err := s.SaveStudent(ctx, newStudent("stu-1", "ADM001")); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	student, err := m.Student(ctx, "stu-1")
	require.NoError(t, err)
	assert.Nil(t, student)
}

func TestWithTx_CommitsOnSuccess(t *testing.T) {
	ctx := context.Background()
	m := store.NewMemory()

	err := m.WithTx(ctx, func(s fees.Store) error {
		return s.SaveStudent(ctx, newStudent("stu-1", "ADM001"))
	})
	require.NoError(t, err)

	student, err := m.Student(ctx, "stu-1")
	require.NoError(t, err)
	require.NotNil(t, student)
	assert.Equal(t, "ADM001", student.AdmissionNo)
}

// =============================================================================
// UNIQUENESS CONSTRAINTS
// =============================================================================

func TestInsertAssessment_DuplicateLogicalKey(t *testing.T) {
	ctx := context.Background()
	m := store.NewMemory()
	require.NoError(t, m.SaveStudent(ctx, newStudent("stu-1", "ADM001")))

	a := fees.Assessment{
		ID: "as-1", StudentID: "stu-1", FeeItemID: "tuition", TermYear: t1,
		Amount: decimal.NewFromInt(100), BaseRate: decimal.NewFromInt(100),
		Quantity: decimal.NewFromInt(1), AssessedAt: time.Now(),
	}
	require.NoError(t, m.InsertAssessment(ctx, a))

	a.ID = "as-2"
	err := m.InsertAssessment(ctx, a)
	require.ErrorIs(t, err, fees.ErrDuplicateAssessment)
}

func TestSavePayment_DuplicateReceiptNumber(t *testing.T) {
	ctx := context.Background()
	m := store.NewMemory()

	p := fees.Payment{
		ID: "pay-1", StudentID: "stu-1", Amount: decimal.NewFromInt(100),
		Date: time.Now(), Mode: fees.ModeCash, ReceiptNo: "RCT000001",
	}
	require.NoError(t, m.SavePayment(ctx, p))

	// Re-saving the same payment keeps its receipt number.
	require.NoError(t, m.SavePayment(ctx, p))

	p.ID = "pay-2"
	err := m.SavePayment(ctx, p)
	require.ErrorIs(t, err, fees.ErrDuplicateReceipt)
}

// =============================================================================
// CURRENT TERM
// =============================================================================

func TestSetCurrentTerm_MovesTheFlag(t *testing.T) {
	ctx := context.Background()
	m := store.NewMemory()

	terms := []fees.AcademicTerm{
		{ID: "t1", Term: 1, Year: 2025, IsCurrent: true},
		{ID: "t2", Term: 2, Year: 2025},
	}
	for _, term := range terms {
		require.NoError(t, m.SaveTerm(ctx, term))
	}

	require.NoError(t, m.SetCurrentTerm(ctx, "t2"))

	current, err := m.CurrentTerm(ctx)
	require.NoError(t, err)
	require.NotNil(t, current)
	assert.Equal(t, fees.TermID("t2"), current.ID)

	all, err := m.Terms(ctx)
	require.NoError(t, err)
	currentCount := 0
	for _, term := range all {
		if term.IsCurrent {
			currentCount++
		}
	}
	assert.Equal(t, 1, currentCount)
}

func TestSetCurrentTerm_UnknownTerm(t *testing.T) {
	ctx := context.Background()
	m := store.NewMemory()
	require.NoError(t, m.SaveTerm(ctx, fees.AcademicTerm{ID: "t1", Term: 1, Year: 2025, IsCurrent: true}))

	err := m.SetCurrentTerm(ctx, "t-ghost")
	require.ErrorIs(t, err, fees.ErrTermNotFound)

	// The existing current flag must survive the failed call.
	current, err := m.CurrentTerm(ctx)
	require.NoError(t, err)
	require.NotNil(t, current)
	assert.Equal(t, fees.TermID("t1"), current.ID)
}

// =============================================================================
// STUDENT FILTERING
// =============================================================================

func TestActiveStudents_FilterPrecedenceAndOrdering(t *testing.T) {
	ctx := context.Background()
	m := store.NewMemory()

	streamA := fees.StreamID("grade-1a")
	students := []fees.Student{
		newStudent("stu-b", "ADM002"),
		newStudent("stu-a", "ADM001"),
		{ID: "stu-c", AdmissionNo: "ADM003", FirstName: "C", LastName: "C",
			ClassID: "grade-2", StreamID: &streamA, Type: fees.StudentDay, Active: true},
		{ID: "stu-gone", AdmissionNo: "ADM004", FirstName: "G", LastName: "G",
			ClassID: "grade-1", Type: fees.StudentDay, Active: false},
	}
	for _, s := range students {
		require.NoError(t, m.SaveStudent(ctx, s))
	}

	// No filter: every active student, ordered by admission number.
	all, err := m.ActiveStudents(ctx, fees.ScopeFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "ADM001", all[0].AdmissionNo)
	assert.Equal(t, "ADM003", all[2].AdmissionNo)

	classID := fees.ClassID("grade-1")
	byClass, err := m.ActiveStudents(ctx, fees.ScopeFilter{ClassID: &classID})
	require.NoError(t, err)
	assert.Len(t, byClass, 2)

	// Student filter wins over a class filter that would not match.
	studentID := fees.StudentID("stu-c")
	byStudent, err := m.ActiveStudents(ctx, fees.ScopeFilter{
		ClassID: &classID, StudentID: &studentID,
	})
	require.NoError(t, err)
	require.Len(t, byStudent, 1)
	assert.Equal(t, fees.StudentID("stu-c"), byStudent[0].ID)
}
