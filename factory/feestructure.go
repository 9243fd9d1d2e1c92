/*
Package factory provides JSON to Go fee structure conversion.

PURPOSE:
  Converts JSON fee structure definitions into fees catalog objects. This
  enables fee configuration without code changes - the bursar's office can
  define a year's fee structure in JSON, and the factory creates the proper
  Go structs and imports them into the store.

WHY JSON?
  - Non-developers can modify fee structures
  - Easy integration with admin UI
  - Version control for fee definitions
  - One file per academic year keeps history reviewable

JSON SCHEMA:
  {
    "terms": [
      {"id": "t1-2025", "term": 1, "year": 2025,
       "start_date": "2025-01-06", "end_date": "2025-04-04", "current": true}
    ],
    "fee_items": [
      {"id": "tuition", "code": "TUITION", "name": "Tuition Fees",
       "scope": "CLASS_LEVEL"},
      {"id": "transport", "code": "TRANSPORT", "name": "Transport",
       "scope": "UNIVERSAL", "per_kilometer": true}
    ],
    "fee_rates": [
      {"fee_item": "tuition", "term": 1, "year": 2025,
       "class": "grade-1", "student_type": "DAY", "amount": "15000.00"},
      {"fee_item": "transport", "term": 1, "year": 2025,
       "rate_per_km": "70.00"}
    ]
  }

KEY FEATURES:
  - Validates scopes, term numbers and decimal strings
  - Items and terms default to active/enabled
  - Omitted rate IDs are generated
  - Import applies a whole structure in one store transaction

USAGE:
  f := factory.NewStructureFactory()
  structure, err := f.ParseStructure(jsonStr)
  if err != nil { ... }
  err = f.Import(ctx, store, structure)

SEE ALSO:
  - fees/types.go: FeeItem, FeeRate, AcademicTerm definitions
  - api/seed.go: Demo dataset built on this factory
*/
package factory

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/shule/fees-engine/fees"
)

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

// StructureJSON is the JSON representation of a fee structure.
type StructureJSON struct {
	Terms    []TermJSON    `json:"terms,omitempty"`
	FeeItems []FeeItemJSON `json:"fee_items"`
	FeeRates []FeeRateJSON `json:"fee_rates,omitempty"`
}

// TermJSON represents an academic term.
type TermJSON struct {
	ID        string `json:"id"`
	Term      int    `json:"term"`
	Year      int    `json:"year"`
	StartDate string `json:"start_date"` // YYYY-MM-DD
	EndDate   string `json:"end_date"`
	Current   bool   `json:"current,omitempty"`
}

// FeeItemJSON represents a billable category.
type FeeItemJSON struct {
	ID           string `json:"id"`
	Code         string `json:"code"`
	Name         string `json:"name"`
	Description  string `json:"description,omitempty"`
	Scope        string `json:"scope"`
	PerKilometer bool   `json:"per_kilometer,omitempty"`
	Inactive     bool   `json:"inactive,omitempty"`
}

// FeeRateJSON represents one scoped rate. Amounts are decimal strings; a
// missing class/stream/student_type leaves that dimension unset.
type FeeRateJSON struct {
	ID          string `json:"id,omitempty"`
	FeeItem     string `json:"fee_item"`
	Term        int    `json:"term"`
	Year        int    `json:"year"`
	Class       string `json:"class,omitempty"`
	Stream      string `json:"stream,omitempty"`
	StudentType string `json:"student_type,omitempty"`
	Amount      string `json:"amount,omitempty"`
	RatePerKm   string `json:"rate_per_km,omitempty"`
	Inactive    bool   `json:"inactive,omitempty"`
}

// Structure is a parsed, validated fee structure ready for import.
type Structure struct {
	Terms    []fees.AcademicTerm
	FeeItems []fees.FeeItem
	FeeRates []fees.FeeRate
}

// =============================================================================
// STRUCTURE FACTORY
// =============================================================================

// StructureFactory converts JSON fee structures to Go structs.
type StructureFactory struct{}

// NewStructureFactory creates a new structure factory.
func NewStructureFactory() *StructureFactory {
	return &StructureFactory{}
}

// ParseStructure parses a JSON string into a Structure.
func (f *StructureFactory) ParseStructure(jsonStr string) (*Structure, error) {
	var sj StructureJSON
	if err := json.Unmarshal([]byte(jsonStr), &sj); err != nil {
		return nil, fmt.Errorf("failed to parse fee structure JSON: %w", err)
	}
	return f.FromJSON(sj)
}

// FromJSON converts StructureJSON to a Structure.
func (f *StructureFactory) FromJSON(sj StructureJSON) (*Structure, error) {
	s := &Structure{}

	currentSeen := false
	for _, tj := range sj.Terms {
		term, err := parseTerm(tj)
		if err != nil {
			return nil, err
		}
		if term.IsCurrent {
			if currentSeen {
				return nil, fmt.Errorf("more than one term marked current")
			}
			currentSeen = true
		}
		s.Terms = append(s.Terms, *term)
	}

	itemIDs := make(map[string]bool)
	for _, ij := range sj.FeeItems {
		item, err := parseFeeItem(ij)
		if err != nil {
			return nil, err
		}
		itemIDs[string(item.ID)] = true
		s.FeeItems = append(s.FeeItems, *item)
	}

	for _, rj := range sj.FeeRates {
		if !itemIDs[rj.FeeItem] {
			return nil, fmt.Errorf("fee rate references unknown fee item %q", rj.FeeItem)
		}
		rate, err := parseFeeRate(rj)
		if err != nil {
			return nil, err
		}
		s.FeeRates = append(s.FeeRates, *rate)
	}

	return s, nil
}

// Import writes the whole structure in one transaction. Existing records
// with the same IDs are updated, so re-importing an amended file is safe.
func (f *StructureFactory) Import(ctx context.Context, store fees.TxStore, s *Structure) error {
	return store.WithTx(ctx, func(tx fees.Store) error {
		for _, term := range s.Terms {
			current := term.IsCurrent
			term.IsCurrent = false
			if err := tx.SaveTerm(ctx, term); err != nil {
				return err
			}
			if current {
				if err := tx.SetCurrentTerm(ctx, term.ID); err != nil {
					return err
				}
			}
		}
		for _, item := range s.FeeItems {
			if err := tx.SaveFeeItem(ctx, item); err != nil {
				return err
			}
		}
		for _, rate := range s.FeeRates {
			if err := tx.SaveRate(ctx, rate); err != nil {
				return err
			}
		}
		return nil
	})
}

// ToJSON converts a Structure back to its JSON representation (for export).
func (f *StructureFactory) ToJSON(s *Structure) StructureJSON {
	var sj StructureJSON

	for _, t := range s.Terms {
		sj.Terms = append(sj.Terms, TermJSON{
			ID:        string(t.ID),
			Term:      t.Term,
			Year:      t.Year,
			StartDate: t.StartDate.Format("2006-01-02"),
			EndDate:   t.EndDate.Format("2006-01-02"),
			Current:   t.IsCurrent,
		})
	}

	for _, item := range s.FeeItems {
		sj.FeeItems = append(sj.FeeItems, FeeItemJSON{
			ID:           string(item.ID),
			Code:         item.Code,
			Name:         item.Name,
			Description:  item.Description,
			Scope:        string(item.Scope),
			PerKilometer: item.PerKilometer,
			Inactive:     !item.Active,
		})
	}

	for _, rate := range s.FeeRates {
		rj := FeeRateJSON{
			ID:       string(rate.ID),
			FeeItem:  string(rate.FeeItemID),
			Term:     rate.TermYear.Term,
			Year:     rate.TermYear.Year,
			Inactive: !rate.Active,
		}
		if rate.ClassID != nil {
			rj.Class = string(*rate.ClassID)
		}
		if rate.StreamID != nil {
			rj.Stream = string(*rate.StreamID)
		}
		if rate.StudentType != nil {
			rj.StudentType = string(*rate.StudentType)
		}
		if rate.Amount != nil {
			rj.Amount = rate.Amount.StringFixed(2)
		}
		if rate.RatePerKm != nil {
			rj.RatePerKm = rate.RatePerKm.StringFixed(2)
		}
		sj.FeeRates = append(sj.FeeRates, rj)
	}

	return sj
}

// =============================================================================
// PARSING HELPERS
// =============================================================================

func parseTerm(tj TermJSON) (*fees.AcademicTerm, error) {
	if tj.ID == "" {
		return nil, fmt.Errorf("term requires an id")
	}
	if tj.Term < 1 || tj.Term > 3 {
		return nil, fmt.Errorf("term %q: term number must be 1-3, got %d", tj.ID, tj.Term)
	}
	start, err := time.Parse("2006-01-02", tj.StartDate)
	if err != nil {
		return nil, fmt.Errorf("term %q: invalid start_date: %w", tj.ID, err)
	}
	end, err := time.Parse("2006-01-02", tj.EndDate)
	if err != nil {
		return nil, fmt.Errorf("term %q: invalid end_date: %w", tj.ID, err)
	}
	if end.Before(start) {
		return nil, fmt.Errorf("term %q: end_date before start_date", tj.ID)
	}

	return &fees.AcademicTerm{
		ID:        fees.TermID(tj.ID),
		Term:      tj.Term,
		Year:      tj.Year,
		StartDate: start,
		EndDate:   end,
		IsCurrent: tj.Current,
	}, nil
}

func parseFeeItem(ij FeeItemJSON) (*fees.FeeItem, error) {
	if ij.ID == "" || ij.Code == "" {
		return nil, fmt.Errorf("fee item requires id and code")
	}
	scope := fees.FeeScope(ij.Scope)
	if !fees.ValidScope(scope) {
		return nil, fmt.Errorf("fee item %q: unknown scope %q", ij.ID, ij.Scope)
	}

	return &fees.FeeItem{
		ID:           fees.FeeItemID(ij.ID),
		Code:         ij.Code,
		Name:         ij.Name,
		Description:  ij.Description,
		Scope:        scope,
		PerKilometer: ij.PerKilometer,
		Active:       !ij.Inactive,
	}, nil
}

func parseFeeRate(rj FeeRateJSON) (*fees.FeeRate, error) {
	if rj.Term < 1 || rj.Term > 3 {
		return nil, fmt.Errorf("fee rate for %q: term number must be 1-3, got %d", rj.FeeItem, rj.Term)
	}
	if rj.Amount == "" && rj.RatePerKm == "" {
		return nil, fmt.Errorf("fee rate for %q: requires amount or rate_per_km", rj.FeeItem)
	}

	rate := &fees.FeeRate{
		ID:        fees.FeeRateID(rj.ID),
		FeeItemID: fees.FeeItemID(rj.FeeItem),
		TermYear:  fees.TermYear{Term: rj.Term, Year: rj.Year},
		Active:    !rj.Inactive,
	}
	if rate.ID == "" {
		rate.ID = fees.FeeRateID(uuid.NewString())
	}

	if rj.Class != "" {
		c := fees.ClassID(rj.Class)
		rate.ClassID = &c
	}
	if rj.Stream != "" {
		st := fees.StreamID(rj.Stream)
		rate.StreamID = &st
	}
	if rj.StudentType != "" {
		t := fees.StudentType(rj.StudentType)
		if t != fees.StudentDay && t != fees.StudentBoarder {
			return nil, fmt.Errorf("fee rate for %q: unknown student_type %q", rj.FeeItem, rj.StudentType)
		}
		rate.StudentType = &t
	}

	var err error
	if rate.Amount, err = parseDecimalField(rj.Amount, "amount", rj.FeeItem); err != nil {
		return nil, err
	}
	if rate.RatePerKm, err = parseDecimalField(rj.RatePerKm, "rate_per_km", rj.FeeItem); err != nil {
		return nil, err
	}
	return rate, nil
}

func parseDecimalField(s, field, item string) (*decimal.Decimal, error) {
	if s == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, fmt.Errorf("fee rate for %q: invalid %s %q", item, field, s)
	}
	if d.IsNegative() {
		return nil, fmt.Errorf("fee rate for %q: %s must not be negative", item, field)
	}
	return &d, nil
}
