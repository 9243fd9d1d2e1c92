package fees_test

import (
	"testing"
	"time"

	"github.com/shule/fees-engine/fees"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// GENERATION TESTS
// =============================================================================

func TestGenerate_CreatesOneAssessmentPerApplicableItem(t *testing.T) {
	// GIVEN: A grade-1 day scholar; tuition, exam and lunch apply, transport
	//        and the stream-scoped club do not
	f := newFixture(t)
	student := f.dayScholar("stu-1", "ADM001")
	gen := fees.NewGenerator(f.store)

	created, err := gen.Generate(f.ctx, fees.GenerateInput{TermYear: term1})
	require.NoError(t, err)
	assert.Equal(t, 3, created)

	assessments, err := f.store.AssessmentsByStudent(f.ctx, student.ID, nil)
	require.NoError(t, err)
	require.Len(t, assessments, 3)

	total := dec("0")
	for _, a := range assessments {
		total = total.Add(a.Amount)
	}
	// 15000 tuition + 1500 exam + 3500 lunch
	assert.Equal(t, "20000.00", total.StringFixed(2))
}

func TestGenerate_Idempotent(t *testing.T) {
	// WHEN: The same generation runs twice
	// THEN: The second run creates nothing

	f := newFixture(t)
	f.dayScholar("stu-1", "ADM001")
	gen := fees.NewGenerator(f.store)

	created, err := gen.Generate(f.ctx, fees.GenerateInput{TermYear: term1})
	require.NoError(t, err)
	assert.Equal(t, 3, created)

	created, err = gen.Generate(f.ctx, fees.GenerateInput{TermYear: term1})
	require.NoError(t, err)
	assert.Equal(t, 0, created)
}

func TestGenerate_SkipsInactiveStudents(t *testing.T) {
	f := newFixture(t)
	f.addStudent(fees.Student{
		ID: "stu-left", AdmissionNo: "ADM001", FirstName: "L", LastName: "L",
		ClassID: "grade-1", Type: fees.StudentDay, Active: false,
	})
	gen := fees.NewGenerator(f.store)

	created, err := gen.Generate(f.ctx, fees.GenerateInput{TermYear: term1})
	require.NoError(t, err)
	assert.Equal(t, 0, created)
}

func TestGenerate_ScopeNarrowing(t *testing.T) {
	// GIVEN: Students in grade-1 and grade-2
	// WHEN: Generation is narrowed to grade-1
	// THEN: Only grade-1 students are assessed

	f := newFixture(t)
	f.dayScholar("stu-g1", "ADM001")
	g2 := f.addStudent(fees.Student{
		ID: "stu-g2", AdmissionNo: "ADM002", FirstName: "G", LastName: "Two",
		ClassID: "grade-2", Type: fees.StudentDay, Active: true,
	})
	gen := fees.NewGenerator(f.store)

	created, err := gen.Generate(f.ctx, fees.GenerateInput{
		TermYear: term1, ClassID: classPtr("grade-1"),
	})
	require.NoError(t, err)
	assert.Equal(t, 3, created)

	assessments, err := f.store.AssessmentsByStudent(f.ctx, g2.ID, nil)
	require.NoError(t, err)
	assert.Empty(t, assessments)
}

func TestGenerate_ForceRegenerate_ReplacesUnpaidAssessments(t *testing.T) {
	// GIVEN: Assessments generated at the old tuition rate
	// WHEN: The rate changes and generation reruns with ForceRegenerate
	// THEN: Unpaid assessments are recreated at the new rate, and the count
	//       stays one per (student, item, term, year)

	f := newFixture(t)
	student := f.dayScholar("stu-1", "ADM001")
	gen := fees.NewGenerator(f.store)

	_, err := gen.Generate(f.ctx, fees.GenerateInput{TermYear: term1})
	require.NoError(t, err)

	// Tuition goes up.
	require.NoError(t, f.store.SaveRate(f.ctx, fees.FeeRate{
		ID: "r-tuition-g1-day", FeeItemID: "tuition", TermYear: term1,
		ClassID: classPtr("grade-1"), StudentType: typePtr(fees.StudentDay),
		Amount: decPtr("18000.00"), Active: true,
	}))

	created, err := gen.Generate(f.ctx, fees.GenerateInput{
		TermYear: term1, ForceRegenerate: true,
	})
	require.NoError(t, err)
	assert.Equal(t, 3, created)

	tuition, err := f.store.FindAssessment(f.ctx, student.ID, "tuition", term1)
	require.NoError(t, err)
	require.NotNil(t, tuition)
	assert.Equal(t, "18000.00", tuition.Amount.StringFixed(2))
}

func TestGenerate_ForceRegenerate_NeverTouchesPaidAssessments(t *testing.T) {
	// GIVEN: An assessment that already has an allocation
	f := newFixture(t)
	student := f.dayScholar("stu-1", "ADM001")
	gen := fees.NewGenerator(f.store)

	_, err := gen.Generate(f.ctx, fees.GenerateInput{TermYear: term1})
	require.NoError(t, err)

	tuition, err := f.store.FindAssessment(f.ctx, student.ID, "tuition", term1)
	require.NoError(t, err)
	require.NotNil(t, tuition)

	require.NoError(t, f.store.SavePayment(f.ctx, fees.Payment{
		ID: "pay-1", StudentID: student.ID, Amount: dec("5000.00"),
		Date: time.Now(), Mode: fees.ModeCash, ReceiptNo: "RCT000001",
	}))
	require.NoError(t, f.store.InsertAllocation(f.ctx, fees.Allocation{
		ID: "alloc-1", PaymentID: "pay-1", AssessmentID: tuition.ID,
		Amount: dec("5000.00"),
	}))

	require.NoError(t, f.store.SaveRate(f.ctx, fees.FeeRate{
		ID: "r-tuition-g1-day", FeeItemID: "tuition", TermYear: term1,
		ClassID: classPtr("grade-1"), StudentType: typePtr(fees.StudentDay),
		Amount: decPtr("18000.00"), Active: true,
	}))

	_, err = gen.Generate(f.ctx, fees.GenerateInput{
		TermYear: term1, ForceRegenerate: true,
	})
	require.NoError(t, err)

	after, err := f.store.Assessment(f.ctx, tuition.ID)
	require.NoError(t, err)
	require.NotNil(t, after, "paid assessment must survive force regeneration")
	assert.Equal(t, "15000.00", after.Amount.StringFixed(2))
}

// =============================================================================
// PREVIEW TESTS
// =============================================================================

func TestPreview_AggregatesWithoutWriting(t *testing.T) {
	f := newFixture(t)
	student := f.dayScholar("stu-1", "ADM001")
	f.dayScholar("stu-2", "ADM002")
	gen := fees.NewGenerator(f.store)

	report, err := gen.Preview(f.ctx, fees.PreviewInput{
		TermYear: term1, IncludeTransport: true,
	})
	require.NoError(t, err)

	assert.Equal(t, 2, report.StudentsConsidered)
	assert.Equal(t, 6, report.AssessmentCount)
	assert.Equal(t, "40000.00", report.TotalAmount.StringFixed(2))
	assert.Len(t, report.Breakdown, 3)

	// Nothing was written.
	assessments, err := f.store.AssessmentsByStudent(f.ctx, student.ID, nil)
	require.NoError(t, err)
	assert.Empty(t, assessments)
}

func TestPreview_SkipExisting(t *testing.T) {
	// GIVEN: One of two students is already assessed for the term
	f := newFixture(t)
	f.dayScholar("stu-1", "ADM001")
	f.dayScholar("stu-2", "ADM002")
	gen := fees.NewGenerator(f.store)

	_, err := gen.Generate(f.ctx, fees.GenerateInput{
		TermYear: term1, StudentID: studentPtr("stu-1"),
	})
	require.NoError(t, err)

	report, err := gen.Preview(f.ctx, fees.PreviewInput{
		TermYear: term1, SkipExisting: true, IncludeTransport: true,
	})
	require.NoError(t, err)

	assert.Equal(t, 1, report.SkippedStudents)
	assert.Equal(t, 3, report.AssessmentCount)
	assert.Contains(t, report.Warnings,
		"1 students skipped because an assessment already exists")
}

func TestPreview_TransportExclusionWarning(t *testing.T) {
	// GIVEN: A transport rider, with transport excluded from the preview
	f := newFixture(t)
	bus := fees.VehicleID("bus-01")
	f.addStudent(fees.Student{
		ID: "stu-ride", AdmissionNo: "ADM001", FirstName: "R", LastName: "R",
		ClassID: "grade-1", Type: fees.StudentDay,
		TransportKm: decPtr("8"), VehicleID: &bus, Active: true,
	})
	gen := fees.NewGenerator(f.store)

	report, err := gen.Preview(f.ctx, fees.PreviewInput{TermYear: term1})
	require.NoError(t, err)

	assert.Equal(t, 3, report.AssessmentCount, "transport line excluded")
	assert.Contains(t, report.Warnings,
		"1 students have transport but fees are excluded")
}

func studentPtr(id string) *fees.StudentID {
	s := fees.StudentID(id)
	return &s
}
