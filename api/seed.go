/*
seed.go - Demo dataset loader

PURPOSE:
  Loads a small but realistic school into an empty store so the API can be
  explored without manual setup: a term calendar, a fee structure covering
  every scope, and a handful of students exercising each resolution path.

DATASET SHAPE:
  - Three 2025 terms, term 1 current
  - Classes Grade 1-3, streams A/B under Grade 1
  - TUITION (class level, day/boarder split), EXAM (universal),
    LUNCH (individual fallback), TRANSPORT (universal, per km at 70.00)
  - Students: day scholar, boarder, transport rider at 8 km (8 x 70 =
    560.00 per term), a student with an individual override, and one
    inactive student who must never be billed

SEE ALSO:
  - factory/feestructure.go: The structure import used here
  - handlers.go: POST /api/admin/seed
*/
package api

import (
	"context"

	"github.com/shopspring/decimal"
	"github.com/shule/fees-engine/factory"
	"github.com/shule/fees-engine/fees"
)

const seedStructureJSON = `{
  "terms": [
    {"id": "t1-2025", "term": 1, "year": 2025,
     "start_date": "2025-01-06", "end_date": "2025-04-04", "current": true},
    {"id": "t2-2025", "term": 2, "year": 2025,
     "start_date": "2025-05-05", "end_date": "2025-08-01"},
    {"id": "t3-2025", "term": 3, "year": 2025,
     "start_date": "2025-09-01", "end_date": "2025-11-21"}
  ],
  "fee_items": [
    {"id": "tuition", "code": "TUITION", "name": "Tuition Fees",
     "scope": "CLASS_LEVEL"},
    {"id": "exam", "code": "EXAM", "name": "Examination Fees",
     "scope": "UNIVERSAL"},
    {"id": "lunch", "code": "LUNCH", "name": "Lunch Programme",
     "scope": "INDIVIDUAL"},
    {"id": "transport", "code": "TRANSPORT", "name": "School Transport",
     "scope": "UNIVERSAL", "per_kilometer": true}
  ],
  "fee_rates": [
    {"fee_item": "tuition", "term": 1, "year": 2025,
     "class": "grade-1", "student_type": "DAY", "amount": "15000.00"},
    {"fee_item": "tuition", "term": 1, "year": 2025,
     "class": "grade-1", "student_type": "BOARDER", "amount": "25000.00"},
    {"fee_item": "tuition", "term": 1, "year": 2025,
     "class": "grade-2", "amount": "16000.00"},
    {"fee_item": "tuition", "term": 1, "year": 2025,
     "class": "grade-3", "amount": "17000.00"},
    {"fee_item": "exam", "term": 1, "year": 2025, "amount": "1500.00"},
    {"fee_item": "lunch", "term": 1, "year": 2025, "amount": "3500.00"},
    {"fee_item": "transport", "term": 1, "year": 2025, "rate_per_km": "70.00"}
  ]
}`

// Seed loads the demo dataset. Safe to call repeatedly: records are keyed
// by fixed IDs and upserted.
func Seed(ctx context.Context, store fees.TxStore) error {
	f := factory.NewStructureFactory()
	structure, err := f.ParseStructure(seedStructureJSON)
	if err != nil {
		return err
	}
	if err := f.Import(ctx, store, structure); err != nil {
		return err
	}

	return store.WithTx(ctx, func(s fees.Store) error {
		classes := []fees.Class{
			{ID: "grade-1", Name: "Grade 1", Level: "1"},
			{ID: "grade-2", Name: "Grade 2", Level: "2"},
			{ID: "grade-3", Name: "Grade 3", Level: "3"},
		}
		for _, c := range classes {
			if err := s.SaveClass(ctx, c); err != nil {
				return err
			}
		}

		streams := []fees.Stream{
			{ID: "grade-1a", ClassID: "grade-1", Name: "A"},
			{ID: "grade-1b", ClassID: "grade-1", Name: "B"},
		}
		for _, st := range streams {
			if err := s.SaveStream(ctx, st); err != nil {
				return err
			}
		}

		streamA := fees.StreamID("grade-1a")
		bus := fees.VehicleID("bus-01")
		eightKm := decimal.NewFromInt(8)

		students := []fees.Student{
			{
				ID: "stu-wanjiku", AdmissionNo: "ADM001",
				FirstName: "Grace", LastName: "Wanjiku",
				ClassID: "grade-1", StreamID: &streamA,
				Type: fees.StudentDay, Active: true,
			},
			{
				ID: "stu-otieno", AdmissionNo: "ADM002",
				FirstName: "Brian", LastName: "Otieno",
				ClassID: "grade-1",
				Type: fees.StudentBoarder, Active: true,
			},
			{
				ID: "stu-achieng", AdmissionNo: "ADM003",
				FirstName: "Faith", LastName: "Achieng",
				ClassID: "grade-2",
				Type: fees.StudentDay,
				TransportKm: &eightKm, VehicleID: &bus,
				Active: true,
			},
			{
				ID: "stu-kamau", AdmissionNo: "ADM004",
				FirstName: "Peter", LastName: "Kamau",
				ClassID: "grade-3",
				Type: fees.StudentDay, Active: true,
			},
			{
				ID: "stu-left", AdmissionNo: "ADM005",
				FirstName: "Mary", LastName: "Njeri",
				ClassID: "grade-2",
				Type: fees.StudentDay, Active: false,
			},
		}
		for _, student := range students {
			if err := s.SaveStudent(ctx, student); err != nil {
				return err
			}
		}

		// Kamau is on a tuition bursary: fixed 10000 instead of the
		// grade-3 standard 17000.
		bursary := decimal.NewFromInt(10000)
		return s.SaveAssignment(ctx, fees.FeeAssignment{
			ID:           "asg-kamau-bursary",
			StudentID:    "stu-kamau",
			FeeItemID:    "tuition",
			TermYear:     fees.TermYear{Term: 1, Year: 2025},
			CustomAmount: &bursary,
			Active:       true,
		})
	})
}
