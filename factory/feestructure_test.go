package factory_test

import (
	"context"
	"testing"

	"github.com/shule/fees-engine/factory"
	"github.com/shule/fees-engine/fees"
	"github.com/shule/fees-engine/fees/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validStructure = `{
  "terms": [
    {"id": "t1-2025", "term": 1, "year": 2025,
     "start_date": "2025-01-06", "end_date": "2025-04-04", "current": true},
    {"id": "t2-2025", "term": 2, "year": 2025,
     "start_date": "2025-05-05", "end_date": "2025-08-01"}
  ],
  "fee_items": [
    {"id": "tuition", "code": "TUITION", "name": "Tuition Fees",
     "scope": "CLASS_LEVEL"},
    {"id": "transport", "code": "TRANSPORT", "name": "School Transport",
     "scope": "UNIVERSAL", "per_kilometer": true}
  ],
  "fee_rates": [
    {"id": "r-1", "fee_item": "tuition", "term": 1, "year": 2025,
     "class": "grade-1", "student_type": "DAY", "amount": "15000.00"},
    {"fee_item": "transport", "term": 1, "year": 2025, "rate_per_km": "70.00"}
  ]
}`

func TestParseStructure_Valid(t *testing.T) {
	f := factory.NewStructureFactory()

	s, err := f.ParseStructure(validStructure)
	require.NoError(t, err)

	require.Len(t, s.Terms, 2)
	assert.True(t, s.Terms[0].IsCurrent)
	require.Len(t, s.FeeItems, 2)
	assert.Equal(t, fees.ScopeClassLevel, s.FeeItems[0].Scope)
	require.Len(t, s.FeeRates, 2)

	// Omitted rate IDs are generated.
	assert.Equal(t, fees.FeeRateID("r-1"), s.FeeRates[0].ID)
	assert.NotEmpty(t, s.FeeRates[1].ID)
	require.NotNil(t, s.FeeRates[1].RatePerKm)
	assert.Equal(t, "70.00", s.FeeRates[1].RatePerKm.StringFixed(2))
}

func TestParseStructure_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		json    string
		wantErr string
	}{
		{
			name:    "unknown scope",
			json:    `{"fee_items": [{"id": "x", "code": "X", "name": "X", "scope": "DISTRICT"}]}`,
			wantErr: "unknown scope",
		},
		{
			name: "rate references unknown item",
			json: `{"fee_items": [{"id": "x", "code": "X", "name": "X", "scope": "UNIVERSAL"}],
			        "fee_rates": [{"fee_item": "ghost", "term": 1, "year": 2025, "amount": "10"}]}`,
			wantErr: "unknown fee item",
		},
		{
			name: "rate without amount or per-km",
			json: `{"fee_items": [{"id": "x", "code": "X", "name": "X", "scope": "UNIVERSAL"}],
			        "fee_rates": [{"fee_item": "x", "term": 1, "year": 2025}]}`,
			wantErr: "requires amount or rate_per_km",
		},
		{
			name: "negative amount",
			json: `{"fee_items": [{"id": "x", "code": "X", "name": "X", "scope": "UNIVERSAL"}],
			        "fee_rates": [{"fee_item": "x", "term": 1, "year": 2025, "amount": "-5"}]}`,
			wantErr: "must not be negative",
		},
		{
			name:    "term number out of range",
			json:    `{"terms": [{"id": "t4", "term": 4, "year": 2025, "start_date": "2025-01-01", "end_date": "2025-03-01"}], "fee_items": []}`,
			wantErr: "term number must be 1-3",
		},
		{
			name: "two current terms",
			json: `{"terms": [
			         {"id": "t1", "term": 1, "year": 2025, "start_date": "2025-01-01", "end_date": "2025-03-01", "current": true},
			         {"id": "t2", "term": 2, "year": 2025, "start_date": "2025-05-01", "end_date": "2025-08-01", "current": true}
			       ], "fee_items": []}`,
			wantErr: "more than one term marked current",
		},
		{
			name:    "dates reversed",
			json:    `{"terms": [{"id": "t1", "term": 1, "year": 2025, "start_date": "2025-04-01", "end_date": "2025-01-01"}], "fee_items": []}`,
			wantErr: "end_date before start_date",
		},
	}

	f := factory.NewStructureFactory()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.ParseStructure(tt.json)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestImport_WritesEverythingAndSetsCurrentTerm(t *testing.T) {
	ctx := context.Background()
	m := store.NewMemory()
	f := factory.NewStructureFactory()

	s, err := f.ParseStructure(validStructure)
	require.NoError(t, err)
	require.NoError(t, f.Import(ctx, m, s))

	current, err := m.CurrentTerm(ctx)
	require.NoError(t, err)
	require.NotNil(t, current)
	assert.Equal(t, fees.TermID("t1-2025"), current.ID)

	items, err := m.ListFeeItems(ctx)
	require.NoError(t, err)
	assert.Len(t, items, 2)

	rates, err := m.RatesFor(ctx, fees.TermYear{Term: 1, Year: 2025})
	require.NoError(t, err)
	assert.Len(t, rates, 2)

	// Re-importing the same file is a no-op update, not a duplication.
	require.NoError(t, f.Import(ctx, m, s))
	items, err = m.ListFeeItems(ctx)
	require.NoError(t, err)
	assert.Len(t, items, 2)
}

func TestToJSON_RoundTripsTheStructure(t *testing.T) {
	f := factory.NewStructureFactory()

	s, err := f.ParseStructure(validStructure)
	require.NoError(t, err)

	sj := f.ToJSON(s)
	back, err := f.FromJSON(sj)
	require.NoError(t, err)

	assert.Equal(t, len(s.Terms), len(back.Terms))
	assert.Equal(t, len(s.FeeItems), len(back.FeeItems))
	assert.Equal(t, len(s.FeeRates), len(back.FeeRates))
	assert.Equal(t, s.FeeRates[0].Amount.StringFixed(2), back.FeeRates[0].Amount.StringFixed(2))
}
