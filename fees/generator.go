/*
generator.go - Assessment generation and preview

PURPOSE:
  Walks a set of students and the active fee items, resolves each rate, and
  persists assessment rows. The walk is idempotent: re-running with the same
  arguments creates nothing new. With ForceRegenerate, existing assessments
  are deleted and recreated with freshly computed values - except assessments
  that already have allocations, which are never touched.

ATOMICITY:
  Each Generate call runs inside one store transaction: either the whole
  batch lands or none of it does. The store's uniqueness constraint on
  (student, fee_item, term, year) backs up the existence check against
  concurrent runs on the same scope.

PREVIEW:
  Preview performs the identical resolution+calculation walk without writing
  anything, aggregating counts, totals, a per-fee-item breakdown, and
  advisory warnings for the caller to display.

SEE ALSO:
  - resolver.go: Rate resolution driven per student/item
  - allocator.go: Consumes the generated assessments
*/
package fees

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// =============================================================================
// GENERATION
// =============================================================================

// GenerateInput selects the scope of one generation run.
type GenerateInput struct {
	TermYear TermYear

	// Narrowing modes, mutually exclusive; most specific wins.
	ClassID   *ClassID
	StreamID  *StreamID
	StudentID *StudentID

	ForceRegenerate bool
}

func (in GenerateInput) filter() ScopeFilter {
	return ScopeFilter{ClassID: in.ClassID, StreamID: in.StreamID, StudentID: in.StudentID}
}

// Generator creates and refreshes assessment rows.
type Generator struct {
	store TxStore
	now   func() time.Time
}

func NewGenerator(store TxStore) *Generator {
	return &Generator{store: store, now: time.Now}
}

// Generate runs one assessment batch and returns the number of assessment
// rows created in this invocation.
func (g *Generator) Generate(ctx context.Context, in GenerateInput) (int, error) {
	created := 0

	err := g.store.WithTx(ctx, func(s Store) error {
		resolver := NewResolver(s)

		students, err := s.ActiveStudents(ctx, in.filter())
		if err != nil {
			return err
		}
		items, err := s.ActiveFeeItems(ctx)
		if err != nil {
			return err
		}

		for i := range students {
			student := &students[i]

			for _, item := range items {
				existing, err := s.FindAssessment(ctx, student.ID, item.ID, in.TermYear)
				if err != nil {
					return err
				}
				if existing != nil {
					if !in.ForceRegenerate {
						continue
					}
					allocated, err := s.AllocatedToAssessment(ctx, existing.ID)
					if err != nil {
						return err
					}
					if allocated.IsPositive() {
						// Never delete an assessment that has been paid
						// against; leave it in place.
						continue
					}
					if err := s.DeleteAssessment(ctx, existing.ID); err != nil {
						return err
					}
				}

				info, err := resolver.Resolve(ctx, student, item, in.TermYear)
				if err != nil {
					return err
				}
				if info == nil {
					continue
				}

				amount := CalculateAmount(*info)
				if !amount.IsPositive() {
					continue
				}

				a := Assessment{
					ID:          AssessmentID(uuid.NewString()),
					StudentID:   student.ID,
					FeeItemID:   item.ID,
					TermYear:    in.TermYear,
					Description: fmt.Sprintf("%s - %s", item.Name, in.TermYear),
					Amount:      amount,
					BaseRate:    info.BaseRate,
					Quantity:    info.Quantity,
					AssessedAt:  g.now().UTC(),
				}
				if err := s.InsertAssessment(ctx, a); err != nil {
					return err
				}
				created++
			}
		}
		return nil
	})

	if err != nil {
		return 0, err
	}
	return created, nil
}

// =============================================================================
// PREVIEW / DRY RUN
// =============================================================================

// PreviewInput selects the scope of a preview walk.
type PreviewInput struct {
	TermYear TermYear

	ClassID   *ClassID
	StreamID  *StreamID
	StudentID *StudentID

	// SkipExisting excludes students who already have any assessment for
	// the term/year, counting them as skipped.
	SkipExisting bool

	// IncludeTransport controls whether TRANSPORT-coded items take part in
	// the walk.
	IncludeTransport bool
}

// PreviewLine is the per-fee-item subtotal in a preview report.
type PreviewLine struct {
	Code         string
	Name         string
	StudentCount int
	Amount       decimal.Decimal
}

// PreviewReport summarizes what a generation run would do, without writing
// any rows.
type PreviewReport struct {
	StudentsConsidered int
	AssessmentCount    int
	TotalAmount        decimal.Decimal
	SkippedStudents    int
	Breakdown          []PreviewLine
	Warnings           []string
}

// Preview performs the same resolution+calculation walk as Generate but
// only aggregates.
func (g *Generator) Preview(ctx context.Context, in PreviewInput) (*PreviewReport, error) {
	students, err := g.store.ActiveStudents(ctx, ScopeFilter{
		ClassID: in.ClassID, StreamID: in.StreamID, StudentID: in.StudentID,
	})
	if err != nil {
		return nil, err
	}
	items, err := g.store.ActiveFeeItems(ctx)
	if err != nil {
		return nil, err
	}

	resolver := NewResolver(g.store)
	report := &PreviewReport{
		StudentsConsidered: len(students),
		TotalAmount:        decimal.Zero,
	}

	subtotals := make(map[string]*PreviewLine)
	var order []string

	for i := range students {
		student := &students[i]

		if in.SkipExisting {
			existing, err := g.store.AssessmentsForTerm(ctx, student.ID, in.TermYear)
			if err != nil {
				return nil, err
			}
			if len(existing) > 0 {
				report.SkippedStudents++
				continue
			}
		}

		for _, item := range items {
			if !in.IncludeTransport && item.Code == CodeTransport {
				continue
			}

			info, err := resolver.Resolve(ctx, student, item, in.TermYear)
			if err != nil {
				return nil, err
			}
			if info == nil {
				continue
			}

			amount := CalculateAmount(*info)
			if !amount.IsPositive() {
				continue
			}

			report.AssessmentCount++
			report.TotalAmount = report.TotalAmount.Add(amount)

			line, ok := subtotals[item.Code]
			if !ok {
				line = &PreviewLine{Code: item.Code, Name: item.Name}
				subtotals[item.Code] = line
				order = append(order, item.Code)
			}
			line.StudentCount++
			line.Amount = line.Amount.Add(amount)
		}
	}

	for _, code := range order {
		report.Breakdown = append(report.Breakdown, *subtotals[code])
	}

	if report.AssessmentCount == 0 {
		report.Warnings = append(report.Warnings, "No new assessments will be created")
	}
	if report.SkippedStudents > 0 {
		report.Warnings = append(report.Warnings,
			fmt.Sprintf("%d students skipped because an assessment already exists", report.SkippedStudents))
	}
	if !in.IncludeTransport {
		withVehicle := 0
		for i := range students {
			if students[i].VehicleID != nil {
				withVehicle++
			}
		}
		if withVehicle > 0 {
			report.Warnings = append(report.Warnings,
				fmt.Sprintf("%d students have transport but fees are excluded", withVehicle))
		}
	}

	return report, nil
}
