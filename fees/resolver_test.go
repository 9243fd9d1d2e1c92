package fees_test

import (
	"testing"

	"github.com/shule/fees-engine/fees"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// SCOPE PRECEDENCE TESTS
// =============================================================================

func TestResolve_ClassLevel_TypeSpecificRateWins(t *testing.T) {
	// GIVEN: grade-1 tuition has both a DAY and a BOARDER rate
	// WHEN: A day scholar and a boarder resolve tuition
	// THEN: Each gets the rate for their student type

	f := newFixture(t)
	day := f.dayScholar("stu-day", "ADM001")
	boarder := f.addStudent(fees.Student{
		ID: "stu-boarder", AdmissionNo: "ADM002",
		FirstName: "Test", LastName: "Boarder",
		ClassID: "grade-1", Type: fees.StudentBoarder, Active: true,
	})

	info, err := f.resolver().Resolve(f.ctx, day, f.feeItem("tuition"), term1)
	require.NoError(t, err)
	require.NotNil(t, info)
	assert.Equal(t, fees.SourceStandardFixed, info.Source)
	assert.True(t, info.BaseRate.Equal(dec("15000.00")))

	info, err = f.resolver().Resolve(f.ctx, boarder, f.feeItem("tuition"), term1)
	require.NoError(t, err)
	require.NotNil(t, info)
	assert.True(t, info.BaseRate.Equal(dec("25000.00")))
}

func TestResolve_ClassLevel_FallsBackToTypeAgnosticRate(t *testing.T) {
	// GIVEN: grade-2 tuition has only a type-agnostic rate
	// WHEN: A grade-2 boarder resolves tuition
	// THEN: The agnostic rate applies

	f := newFixture(t)
	student := f.addStudent(fees.Student{
		ID: "stu-g2", AdmissionNo: "ADM003",
		FirstName: "Test", LastName: "Student",
		ClassID: "grade-2", Type: fees.StudentBoarder, Active: true,
	})

	info, err := f.resolver().Resolve(f.ctx, student, f.feeItem("tuition"), term1)
	require.NoError(t, err)
	require.NotNil(t, info)
	assert.True(t, info.BaseRate.Equal(dec("16000.00")))
}

func TestResolve_StreamLevel(t *testing.T) {
	// GIVEN: A stream-scoped item with a rate only for stream grade-1a
	// WHEN: Students in grade-1a, in another stream, and with no stream resolve
	// THEN: Only the grade-1a student gets a rate

	f := newFixture(t)
	inStream := f.addStudent(fees.Student{
		ID: "stu-a", AdmissionNo: "ADM004", FirstName: "A", LastName: "A",
		ClassID: "grade-1", StreamID: streamPtr("grade-1a"),
		Type: fees.StudentDay, Active: true,
	})
	otherStream := f.addStudent(fees.Student{
		ID: "stu-b", AdmissionNo: "ADM005", FirstName: "B", LastName: "B",
		ClassID: "grade-1", StreamID: streamPtr("grade-1b"),
		Type: fees.StudentDay, Active: true,
	})
	noStream := f.dayScholar("stu-c", "ADM006")

	info, err := f.resolver().Resolve(f.ctx, inStream, f.feeItem("club"), term1)
	require.NoError(t, err)
	require.NotNil(t, info)
	assert.True(t, info.BaseRate.Equal(dec("500.00")))

	info, err = f.resolver().Resolve(f.ctx, otherStream, f.feeItem("club"), term1)
	require.NoError(t, err)
	assert.Nil(t, info, "no rate for this stream: item is inapplicable")

	info, err = f.resolver().Resolve(f.ctx, noStream, f.feeItem("club"), term1)
	require.NoError(t, err)
	assert.Nil(t, info, "stream-scoped item cannot apply without a stream")
}

func TestResolve_UniversalRate(t *testing.T) {
	f := newFixture(t)
	student := f.dayScholar("stu-u", "ADM007")

	info, err := f.resolver().Resolve(f.ctx, student, f.feeItem("exam"), term1)
	require.NoError(t, err)
	require.NotNil(t, info)
	assert.Equal(t, fees.SourceStandardFixed, info.Source)
	assert.True(t, info.BaseRate.Equal(dec("1500.00")))
	assert.True(t, info.Quantity.Equal(dec("1")))
}

func TestResolve_MissingRate_IsInapplicableNotError(t *testing.T) {
	// GIVEN: No rates exist for term 2
	f := newFixture(t)
	student := f.dayScholar("stu-m", "ADM008")

	info, err := f.resolver().Resolve(f.ctx, student, f.feeItem("tuition"), term2)
	require.NoError(t, err)
	assert.Nil(t, info)
}

// =============================================================================
// TRANSPORT VEHICLE GATE
// =============================================================================

func TestResolve_Transport_RequiresVehicle(t *testing.T) {
	// GIVEN: A per-km transport rate of 70.00
	// WHEN: A student with 8 km but no vehicle resolves transport
	// THEN: Inapplicable. With a vehicle: 70.00 x 8.

	f := newFixture(t)
	noVehicle := f.addStudent(fees.Student{
		ID: "stu-walk", AdmissionNo: "ADM009", FirstName: "W", LastName: "W",
		ClassID: "grade-1", Type: fees.StudentDay,
		TransportKm: decPtr("8"), Active: true,
	})
	bus := fees.VehicleID("bus-01")
	rider := f.addStudent(fees.Student{
		ID: "stu-ride", AdmissionNo: "ADM010", FirstName: "R", LastName: "R",
		ClassID: "grade-1", Type: fees.StudentDay,
		TransportKm: decPtr("8"), VehicleID: &bus, Active: true,
	})

	info, err := f.resolver().Resolve(f.ctx, noVehicle, f.feeItem("transport"), term1)
	require.NoError(t, err)
	assert.Nil(t, info, "transport without a vehicle is inapplicable")

	info, err = f.resolver().Resolve(f.ctx, rider, f.feeItem("transport"), term1)
	require.NoError(t, err)
	require.NotNil(t, info)
	assert.Equal(t, fees.SourceStandardPerKm, info.Source)
	assert.True(t, info.BaseRate.Equal(dec("70.00")))
	assert.True(t, info.Quantity.Equal(dec("8")))

	amount := fees.CalculateAmount(*info)
	assert.Equal(t, "560.00", amount.StringFixed(2))
}

// =============================================================================
// INDIVIDUAL OVERRIDES
// =============================================================================

func TestResolve_Override_FixedAmountWinsOverEverything(t *testing.T) {
	// GIVEN: A grade-1 day scholar with a 10000 tuition bursary
	f := newFixture(t)
	student := f.dayScholar("stu-bursary", "ADM011")
	require.NoError(t, f.store.SaveAssignment(f.ctx, fees.FeeAssignment{
		ID: "asg-1", StudentID: student.ID, FeeItemID: "tuition",
		TermYear: term1, CustomAmount: decPtr("10000.00"), Active: true,
	}))

	info, err := f.resolver().Resolve(f.ctx, student, f.feeItem("tuition"), term1)
	require.NoError(t, err)
	require.NotNil(t, info)
	assert.Equal(t, fees.SourceIndividual, info.Source)
	assert.True(t, info.BaseRate.Equal(dec("10000.00")))
	assert.True(t, info.Quantity.Equal(dec("1")))
}

func TestResolve_Override_PerKmRateUsesCustomThenStudentDistance(t *testing.T) {
	// GIVEN: A transport rider with a discounted 50.00/km override
	f := newFixture(t)
	bus := fees.VehicleID("bus-01")
	student := f.addStudent(fees.Student{
		ID: "stu-disc", AdmissionNo: "ADM012", FirstName: "D", LastName: "D",
		ClassID: "grade-1", Type: fees.StudentDay,
		TransportKm: decPtr("8"), VehicleID: &bus, Active: true,
	})

	// Custom distance set: it wins over the student's stored 8 km.
	require.NoError(t, f.store.SaveAssignment(f.ctx, fees.FeeAssignment{
		ID: "asg-2", StudentID: student.ID, FeeItemID: "transport",
		TermYear:        term1,
		CustomRatePerKm: decPtr("50.00"), CustomDistanceKm: decPtr("10"),
		Active: true,
	}))

	info, err := f.resolver().Resolve(f.ctx, student, f.feeItem("transport"), term1)
	require.NoError(t, err)
	require.NotNil(t, info)
	assert.Equal(t, fees.SourceIndividualPerKm, info.Source)
	assert.True(t, info.BaseRate.Equal(dec("50.00")))
	assert.True(t, info.Quantity.Equal(dec("10")))
}

func TestResolve_Override_WithNothingUsable_FallsThroughToStandard(t *testing.T) {
	// GIVEN: An active assignment with no custom values at all
	f := newFixture(t)
	student := f.dayScholar("stu-empty", "ADM013")
	require.NoError(t, f.store.SaveAssignment(f.ctx, fees.FeeAssignment{
		ID: "asg-3", StudentID: student.ID, FeeItemID: "tuition",
		TermYear: term1, Active: true,
	}))

	info, err := f.resolver().Resolve(f.ctx, student, f.feeItem("tuition"), term1)
	require.NoError(t, err)
	require.NotNil(t, info)
	assert.Equal(t, fees.SourceStandardFixed, info.Source)
	assert.True(t, info.BaseRate.Equal(dec("15000.00")))
}

// =============================================================================
// CALCULATOR
// =============================================================================

func TestCalculateAmount_RoundsToTwoDecimalPlaces(t *testing.T) {
	info := fees.RateInfo{BaseRate: dec("33.333"), Quantity: dec("3")}
	assert.Equal(t, "100.00", fees.CalculateAmount(info).StringFixed(2))

	info = fees.RateInfo{BaseRate: dec("70.555"), Quantity: dec("1")}
	assert.Equal(t, "70.56", fees.CalculateAmount(info).StringFixed(2))
}
