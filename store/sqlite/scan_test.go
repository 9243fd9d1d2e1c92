package sqlite

import (
	"database/sql"
	"fmt"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubRow plays a sql.Row whose columns hold the given values.
type stubRow struct {
	values []any
}

func (r stubRow) Scan(dest ...any) error {
	if len(dest) != len(r.values) {
		return fmt.Errorf("stub row has %d columns, scan wants %d", len(r.values), len(dest))
	}
	for i, d := range dest {
		v := reflect.ValueOf(d).Elem()
		v.Set(reflect.ValueOf(r.values[i]).Convert(v.Type()))
	}
	return nil
}

// =============================================================================
// DATE PARSING - corrupted rows must surface errors, not zero times
// =============================================================================

func TestScanTerm_MalformedDate(t *testing.T) {
	// GIVEN: A term row whose end date column is not RFC3339
	row := stubRow{values: []any{
		"t1", 1, 2025, "2025-01-06T00:00:00Z", "not-a-date", true,
	}}

	_, err := scanTerm(row)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "term end date")
}

func TestScanTerm_ValidRow(t *testing.T) {
	row := stubRow{values: []any{
		"t1", 1, 2025, "2025-01-06T00:00:00Z", "2025-04-04T00:00:00Z", true,
	}}

	term, err := scanTerm(row)
	require.NoError(t, err)
	assert.Equal(t, 2025, term.StartDate.Year())
	assert.True(t, term.IsCurrent)
}

func TestScanAssessment_MalformedDate(t *testing.T) {
	row := stubRow{values: []any{
		"as-1", "stu-1", "tuition", 1, 2025,
		"Tuition Fees", "15000", "15000", "1", "yesterday-ish",
	}}

	_, err := scanAssessment(row)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "assessment date")
}

func TestScanPayment_MalformedDate(t *testing.T) {
	row := stubRow{values: []any{
		"pay-1", "stu-1", "1000", "not-a-date", "CASH",
		"RCT000001", sql.NullString{}, sql.NullString{}, "2025-02-01T10:00:00Z",
	}}

	_, err := scanPayment(row)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "payment date")
}
