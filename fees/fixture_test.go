package fees_test

// Shared test fixture: a small school with every rate-resolution path
// represented, loaded into the in-memory store.

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/shule/fees-engine/fees"
	"github.com/shule/fees-engine/fees/store"
	"github.com/stretchr/testify/require"
)

var term1 = fees.TermYear{Term: 1, Year: 2025}
var term2 = fees.TermYear{Term: 2, Year: 2025}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func decPtr(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

func classPtr(id string) *fees.ClassID {
	c := fees.ClassID(id)
	return &c
}

func streamPtr(id string) *fees.StreamID {
	s := fees.StreamID(id)
	return &s
}

func typePtr(t fees.StudentType) *fees.StudentType {
	return &t
}

// fixture wires a memory store with classes grade-1/grade-2, fee items for
// each scope, and term-1 rates. Students are added per test.
type fixture struct {
	t     *testing.T
	ctx   context.Context
	store *store.Memory
}

func newFixture(t *testing.T) *fixture {
	f := &fixture{t: t, ctx: context.Background(), store: store.NewMemory()}

	items := []fees.FeeItem{
		{ID: "tuition", Code: "TUITION", Name: "Tuition Fees", Scope: fees.ScopeClassLevel, Active: true},
		{ID: "exam", Code: "EXAM", Name: "Examination Fees", Scope: fees.ScopeUniversal, Active: true},
		{ID: "lunch", Code: "LUNCH", Name: "Lunch Programme", Scope: fees.ScopeIndividual, Active: true},
		{ID: "club", Code: "CLUB", Name: "Clubs", Scope: fees.ScopeStreamLevel, Active: true},
		{ID: "transport", Code: "TRANSPORT", Name: "School Transport", Scope: fees.ScopeUniversal, PerKilometer: true, Active: true},
	}
	for _, item := range items {
		require.NoError(t, f.store.SaveFeeItem(f.ctx, item))
	}

	rates := []fees.FeeRate{
		{ID: "r-tuition-g1-day", FeeItemID: "tuition", TermYear: term1,
			ClassID: classPtr("grade-1"), StudentType: typePtr(fees.StudentDay),
			Amount: decPtr("15000.00"), Active: true},
		{ID: "r-tuition-g1-boarder", FeeItemID: "tuition", TermYear: term1,
			ClassID: classPtr("grade-1"), StudentType: typePtr(fees.StudentBoarder),
			Amount: decPtr("25000.00"), Active: true},
		{ID: "r-tuition-g2", FeeItemID: "tuition", TermYear: term1,
			ClassID: classPtr("grade-2"), Amount: decPtr("16000.00"), Active: true},
		{ID: "r-exam", FeeItemID: "exam", TermYear: term1,
			Amount: decPtr("1500.00"), Active: true},
		{ID: "r-lunch", FeeItemID: "lunch", TermYear: term1,
			Amount: decPtr("3500.00"), Active: true},
		{ID: "r-club-g1a", FeeItemID: "club", TermYear: term1,
			StreamID: streamPtr("grade-1a"), Amount: decPtr("500.00"), Active: true},
		{ID: "r-transport", FeeItemID: "transport", TermYear: term1,
			RatePerKm: decPtr("70.00"), Active: true},
	}
	for _, rate := range rates {
		require.NoError(t, f.store.SaveRate(f.ctx, rate))
	}

	return f
}

func (f *fixture) addStudent(s fees.Student) *fees.Student {
	require.NoError(f.t, f.store.SaveStudent(f.ctx, s))
	return &s
}

func (f *fixture) dayScholar(id, admission string) *fees.Student {
	return f.addStudent(fees.Student{
		ID: fees.StudentID(id), AdmissionNo: admission,
		FirstName: "Test", LastName: "Student",
		ClassID: "grade-1", Type: fees.StudentDay, Active: true,
	})
}

func (f *fixture) resolver() *fees.Resolver {
	return fees.NewResolver(f.store)
}

func (f *fixture) feeItem(id string) fees.FeeItem {
	item, err := f.store.FeeItem(f.ctx, fees.FeeItemID(id))
	require.NoError(f.t, err)
	require.NotNil(f.t, item)
	return *item
}
