// Package store provides fees.Store implementations.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/shule/fees-engine/fees"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

var _ fees.TxStore = (*Memory)(nil)

type Memory struct {
	mu sync.RWMutex

	students map[fees.StudentID]fees.Student
	classes  map[fees.ClassID]fees.Class
	streams  map[fees.StreamID]fees.Stream

	feeItems    map[fees.FeeItemID]fees.FeeItem
	rates       map[fees.FeeRateID]fees.FeeRate
	assignments map[fees.AssignmentID]fees.FeeAssignment
	terms       map[fees.TermID]fees.AcademicTerm

	assessments map[fees.AssessmentID]fees.Assessment
	payments    map[fees.PaymentID]fees.Payment
	allocations map[fees.AllocationID]fees.Allocation
}

func NewMemory() *Memory {
	return &Memory{
		students:    make(map[fees.StudentID]fees.Student),
		classes:     make(map[fees.ClassID]fees.Class),
		streams:     make(map[fees.StreamID]fees.Stream),
		feeItems:    make(map[fees.FeeItemID]fees.FeeItem),
		rates:       make(map[fees.FeeRateID]fees.FeeRate),
		assignments: make(map[fees.AssignmentID]fees.FeeAssignment),
		terms:       make(map[fees.TermID]fees.AcademicTerm),
		assessments: make(map[fees.AssessmentID]fees.Assessment),
		payments:    make(map[fees.PaymentID]fees.Payment),
		allocations: make(map[fees.AllocationID]fees.Allocation),
	}
}

// Reset drops all data, leaving an empty store.
func (m *Memory) Reset(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.adoptLocked(NewMemory())
	return nil
}

// =============================================================================
// DIRECTORY
// =============================================================================

func (m *Memory) Student(_ context.Context, id fees.StudentID) (*fees.Student, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if s, ok := m.students[id]; ok {
		return &s, nil
	}
	return nil, nil
}

func (m *Memory) ActiveStudents(_ context.Context, filter fees.ScopeFilter) ([]fees.Student, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []fees.Student
	for _, s := range m.students {
		if !s.Active {
			continue
		}
		switch {
		case filter.StudentID != nil:
			if s.ID != *filter.StudentID {
				continue
			}
		case filter.StreamID != nil:
			if s.StreamID == nil || *s.StreamID != *filter.StreamID {
				continue
			}
		case filter.ClassID != nil:
			if s.ClassID != *filter.ClassID {
				continue
			}
		}
		result = append(result, s)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].AdmissionNo < result[j].AdmissionNo })
	return result, nil
}

func (m *Memory) ListStudents(_ context.Context) ([]fees.Student, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]fees.Student, 0, len(m.students))
	for _, s := range m.students {
		result = append(result, s)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].AdmissionNo < result[j].AdmissionNo })
	return result, nil
}

func (m *Memory) SaveStudent(_ context.Context, s fees.Student) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.students[s.ID] = s
	return nil
}

func (m *Memory) DeleteStudent(_ context.Context, id fees.StudentID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.students, id)
	return nil
}

func (m *Memory) SaveClass(_ context.Context, c fees.Class) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.classes[c.ID] = c
	return nil
}

func (m *Memory) SaveStream(_ context.Context, s fees.Stream) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.streams[s.ID] = s
	return nil
}

func (m *Memory) ListClasses(_ context.Context) ([]fees.Class, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]fees.Class, 0, len(m.classes))
	for _, c := range m.classes {
		result = append(result, c)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

func (m *Memory) StreamsByClass(_ context.Context, classID fees.ClassID) ([]fees.Stream, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []fees.Stream
	for _, s := range m.streams {
		if s.ClassID == classID {
			result = append(result, s)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

// =============================================================================
// CATALOG - fee items
// =============================================================================

func (m *Memory) FeeItem(_ context.Context, id fees.FeeItemID) (*fees.FeeItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if item, ok := m.feeItems[id]; ok {
		return &item, nil
	}
	return nil, nil
}

func (m *Memory) ActiveFeeItems(_ context.Context) ([]fees.FeeItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []fees.FeeItem
	for _, item := range m.feeItems {
		if item.Active {
			result = append(result, item)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Code < result[j].Code })
	return result, nil
}

func (m *Memory) ListFeeItems(_ context.Context) ([]fees.FeeItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]fees.FeeItem, 0, len(m.feeItems))
	for _, item := range m.feeItems {
		result = append(result, item)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Code < result[j].Code })
	return result, nil
}

func (m *Memory) SaveFeeItem(_ context.Context, item fees.FeeItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.feeItems[item.ID] = item
	return nil
}

func (m *Memory) DeleteFeeItem(_ context.Context, id fees.FeeItemID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.feeItems, id)
	return nil
}

// =============================================================================
// CATALOG - rates
// =============================================================================

func (m *Memory) FindRate(_ context.Context, q fees.RateQuery) (*fees.FeeRate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, r := range m.rates {
		if rateMatches(q, r) {
			rate := r
			return &rate, nil
		}
	}
	return nil, nil
}

func rateMatches(q fees.RateQuery, r fees.FeeRate) bool {
	if !r.Active || r.FeeItemID != q.FeeItemID || r.TermYear != q.TermYear {
		return false
	}
	if !q.AnyClass {
		if q.ClassID == nil {
			if r.ClassID != nil {
				return false
			}
		} else if r.ClassID == nil || *r.ClassID != *q.ClassID {
			return false
		}
	}
	if !q.AnyStream {
		if q.StreamID == nil {
			if r.StreamID != nil {
				return false
			}
		} else if r.StreamID == nil || *r.StreamID != *q.StreamID {
			return false
		}
	}
	if !q.AnyType {
		if q.StudentType == nil {
			if r.StudentType != nil {
				return false
			}
		} else if r.StudentType == nil || *r.StudentType != *q.StudentType {
			return false
		}
	}
	return true
}

func (m *Memory) FeeRate(_ context.Context, id fees.FeeRateID) (*fees.FeeRate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if r, ok := m.rates[id]; ok {
		return &r, nil
	}
	return nil, nil
}

func (m *Memory) RatesFor(_ context.Context, ty fees.TermYear) ([]fees.FeeRate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []fees.FeeRate
	for _, r := range m.rates {
		if r.Active && r.TermYear == ty {
			result = append(result, r)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (m *Memory) SaveRate(_ context.Context, rate fees.FeeRate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rates[rate.ID] = rate
	return nil
}

func (m *Memory) DeleteRate(_ context.Context, id fees.FeeRateID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rates, id)
	return nil
}

func (m *Memory) RateCountForItem(_ context.Context, id fees.FeeItemID) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	count := 0
	for _, r := range m.rates {
		if r.FeeItemID == id {
			count++
		}
	}
	return count, nil
}

// =============================================================================
// CATALOG - assignments and terms
// =============================================================================

func (m *Memory) FindAssignment(_ context.Context, studentID fees.StudentID, feeItemID fees.FeeItemID, ty fees.TermYear) (*fees.FeeAssignment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, a := range m.assignments {
		if a.Active && a.StudentID == studentID && a.FeeItemID == feeItemID && a.TermYear == ty {
			found := a
			return &found, nil
		}
	}
	return nil, nil
}

func (m *Memory) SaveAssignment(_ context.Context, a fees.FeeAssignment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.assignments[a.ID] = a
	return nil
}

func (m *Memory) AssignmentCountForItem(_ context.Context, id fees.FeeItemID) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	count := 0
	for _, a := range m.assignments {
		if a.FeeItemID == id {
			count++
		}
	}
	return count, nil
}

func (m *Memory) SaveTerm(_ context.Context, t fees.AcademicTerm) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.terms[t.ID] = t
	return nil
}

func (m *Memory) Terms(_ context.Context) ([]fees.AcademicTerm, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]fees.AcademicTerm, 0, len(m.terms))
	for _, t := range m.terms {
		result = append(result, t)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Year != result[j].Year {
			return result[i].Year < result[j].Year
		}
		return result[i].Term < result[j].Term
	})
	return result, nil
}

func (m *Memory) CurrentTerm(_ context.Context) (*fees.AcademicTerm, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, t := range m.terms {
		if t.IsCurrent {
			term := t
			return &term, nil
		}
	}
	return nil, nil
}

func (m *Memory) TermByDate(_ context.Context, d time.Time) (*fees.AcademicTerm, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, t := range m.terms {
		if t.ActiveOn(d) {
			term := t
			return &term, nil
		}
	}
	return nil, nil
}

func (m *Memory) SetCurrentTerm(_ context.Context, id fees.TermID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	target, ok := m.terms[id]
	if !ok {
		return fees.ErrTermNotFound
	}
	for tid, t := range m.terms {
		if t.IsCurrent {
			t.IsCurrent = false
			m.terms[tid] = t
		}
	}
	target.IsCurrent = true
	m.terms[id] = target
	return nil
}

// =============================================================================
// LEDGER - assessments
// =============================================================================

func (m *Memory) Assessment(_ context.Context, id fees.AssessmentID) (*fees.Assessment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if a, ok := m.assessments[id]; ok {
		return &a, nil
	}
	return nil, nil
}

func (m *Memory) FindAssessment(_ context.Context, studentID fees.StudentID, feeItemID fees.FeeItemID, ty fees.TermYear) (*fees.Assessment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, a := range m.assessments {
		if a.StudentID == studentID && a.FeeItemID == feeItemID && a.TermYear == ty {
			found := a
			return &found, nil
		}
	}
	return nil, nil
}

func (m *Memory) AssessmentsForTerm(_ context.Context, studentID fees.StudentID, ty fees.TermYear) ([]fees.Assessment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []fees.Assessment
	for _, a := range m.assessments {
		if a.StudentID == studentID && a.TermYear == ty {
			result = append(result, a)
		}
	}
	sortAssessments(result)
	return result, nil
}

func (m *Memory) AssessmentsByStudent(_ context.Context, studentID fees.StudentID, upTo *fees.TermYear) ([]fees.Assessment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []fees.Assessment
	for _, a := range m.assessments {
		if a.StudentID != studentID {
			continue
		}
		if upTo != nil && !upTo.Covers(a.TermYear) {
			continue
		}
		result = append(result, a)
	}
	sortAssessments(result)
	return result, nil
}

func sortAssessments(as []fees.Assessment) {
	sort.Slice(as, func(i, j int) bool {
		if as[i].TermYear.Year != as[j].TermYear.Year {
			return as[i].TermYear.Year < as[j].TermYear.Year
		}
		if as[i].TermYear.Term != as[j].TermYear.Term {
			return as[i].TermYear.Term < as[j].TermYear.Term
		}
		return as[i].ID < as[j].ID
	})
}

func (m *Memory) InsertAssessment(_ context.Context, a fees.Assessment) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.assessments {
		if existing.StudentID == a.StudentID && existing.FeeItemID == a.FeeItemID && existing.TermYear == a.TermYear {
			return fees.ErrDuplicateAssessment
		}
	}
	m.assessments[a.ID] = a
	return nil
}

func (m *Memory) DeleteAssessment(_ context.Context, id fees.AssessmentID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.assessments, id)
	return nil
}

func (m *Memory) AssessmentCountForItem(_ context.Context, id fees.FeeItemID) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	count := 0
	for _, a := range m.assessments {
		if a.FeeItemID == id {
			count++
		}
	}
	return count, nil
}

func (m *Memory) AssessmentCountForItemTerm(_ context.Context, id fees.FeeItemID, ty fees.TermYear) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	count := 0
	for _, a := range m.assessments {
		if a.FeeItemID == id && a.TermYear == ty {
			count++
		}
	}
	return count, nil
}

// =============================================================================
// LEDGER - payments and allocations
// =============================================================================

func (m *Memory) Payment(_ context.Context, id fees.PaymentID) (*fees.Payment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if p, ok := m.payments[id]; ok {
		return &p, nil
	}
	return nil, nil
}

func (m *Memory) PaymentsByStudent(_ context.Context, studentID fees.StudentID) ([]fees.Payment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []fees.Payment
	for _, p := range m.payments {
		if p.StudentID == studentID {
			result = append(result, p)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].Date.Equal(result[j].Date) {
			return result[i].Date.Before(result[j].Date)
		}
		return result[i].ReceiptNo < result[j].ReceiptNo
	})
	return result, nil
}

func (m *Memory) PaymentCount(_ context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.payments), nil
}

func (m *Memory) ReceiptExists(_ context.Context, receiptNo string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, p := range m.payments {
		if p.ReceiptNo == receiptNo {
			return true, nil
		}
	}
	return false, nil
}

func (m *Memory) SavePayment(_ context.Context, p fees.Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.payments {
		if existing.ID != p.ID && existing.ReceiptNo == p.ReceiptNo {
			return fees.ErrDuplicateReceipt
		}
	}
	m.payments[p.ID] = p
	return nil
}

func (m *Memory) DeletePayment(_ context.Context, id fees.PaymentID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.payments, id)
	return nil
}

func (m *Memory) InsertAllocation(_ context.Context, a fees.Allocation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.allocations[a.ID] = a
	return nil
}

func (m *Memory) AllocationsByPayment(_ context.Context, paymentID fees.PaymentID) ([]fees.Allocation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []fees.Allocation
	for _, a := range m.allocations {
		if a.PaymentID == paymentID {
			result = append(result, a)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (m *Memory) AllocatedToAssessment(_ context.Context, id fees.AssessmentID) (decimal.Decimal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	total := decimal.Zero
	for _, a := range m.allocations {
		if a.AssessmentID == id {
			total = total.Add(a.Amount)
		}
	}
	return total, nil
}

func (m *Memory) AllocatedToStudent(_ context.Context, studentID fees.StudentID, upTo *fees.TermYear) (decimal.Decimal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	total := decimal.Zero
	for _, alloc := range m.allocations {
		target, ok := m.assessments[alloc.AssessmentID]
		if !ok || target.StudentID != studentID {
			continue
		}
		if upTo != nil && !upTo.Covers(target.TermYear) {
			continue
		}
		total = total.Add(alloc.Amount)
	}
	return total, nil
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// WithTx executes fn against a private copy of the store; the copy is
// adopted only if fn succeeds, giving all-or-nothing semantics.
func (m *Memory) WithTx(_ context.Context, fn func(fees.Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	work := m.cloneLocked()
	if err := fn(work); err != nil {
		return err
	}
	m.adoptLocked(work)
	return nil
}

func (m *Memory) cloneLocked() *Memory {
	work := NewMemory()
	for k, v := range m.students {
		work.students[k] = v
	}
	for k, v := range m.classes {
		work.classes[k] = v
	}
	for k, v := range m.streams {
		work.streams[k] = v
	}
	for k, v := range m.feeItems {
		work.feeItems[k] = v
	}
	for k, v := range m.rates {
		work.rates[k] = v
	}
	for k, v := range m.assignments {
		work.assignments[k] = v
	}
	for k, v := range m.terms {
		work.terms[k] = v
	}
	for k, v := range m.assessments {
		work.assessments[k] = v
	}
	for k, v := range m.payments {
		work.payments[k] = v
	}
	for k, v := range m.allocations {
		work.allocations[k] = v
	}
	return work
}

func (m *Memory) adoptLocked(work *Memory) {
	m.students = work.students
	m.classes = work.classes
	m.streams = work.streams
	m.feeItems = work.feeItems
	m.rates = work.rates
	m.assignments = work.assignments
	m.terms = work.terms
	m.assessments = work.assessments
	m.payments = work.payments
	m.allocations = work.allocations
}
