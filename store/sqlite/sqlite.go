/*
Package sqlite provides a SQLite-backed implementation of the fees storage
interfaces.

PURPOSE:
  Implements fees.Store and fees.TxStore using SQLite. In production, the
  same patterns apply to PostgreSQL - only minor SQL dialect differences.

KEY TABLES:
  students, classes, streams:  School directory
  academic_terms:              Term calendar; at most one row is_current
  fee_items, fee_rates:        Fee catalog and scoped pricing
  student_fee_assignments:     Per-student overrides
  fee_assessments:             Billed charges, one per student+item+term+year
  payments:                    Money received, unique receipt numbers
  payment_allocations:         Links payments to the assessments they settle

CONSTRAINTS:
  Two UNIQUE indexes back up the engine's own checks against concurrent
  writers:
  - idx_assessments_unique on (student_id, fee_item_id, term, year)
  - receipt_no on payments
  Violations surface as fees.ErrDuplicateAssessment / ErrDuplicateReceipt.

MONEY:
  All monetary columns are TEXT holding decimal strings; they are parsed
  with shopspring/decimal on read. Sums are computed in Go, never in SQL,
  to keep exact arithmetic.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) for better concurrency:
  - Multiple readers don't block
  - Single writer at a time
  - Better crash recovery

USAGE:
  store, err := sqlite.New("./data/fees.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - fees/store.go: Interface definitions
  - fees/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"github.com/shule/fees-engine/fees"
)

// dbtx is satisfied by both *sql.DB and *sql.Tx.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// querier holds every query against a dbtx, so the same code serves both
// the root connection and an open transaction.
type querier struct {
	db dbtx
}

// Store implements fees.TxStore using SQLite.
type Store struct {
	querier
	db *sql.DB

	// Serializes WithTx callers; SQLite allows one writer at a time.
	mu sync.Mutex
}

var _ fees.TxStore = (*Store)(nil)

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{querier: querier{db: db}, db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS classes (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		level TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS streams (
		id TEXT PRIMARY KEY,
		class_id TEXT NOT NULL,
		name TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_streams_class ON streams(class_id);

	CREATE TABLE IF NOT EXISTS students (
		id TEXT PRIMARY KEY,
		admission_no TEXT NOT NULL UNIQUE,
		first_name TEXT NOT NULL,
		last_name TEXT NOT NULL,
		class_id TEXT NOT NULL,
		stream_id TEXT,
		student_type TEXT NOT NULL,
		transport_km TEXT,
		vehicle_id TEXT,
		active BOOLEAN NOT NULL DEFAULT TRUE
	);

	CREATE INDEX IF NOT EXISTS idx_students_class ON students(class_id);
	CREATE INDEX IF NOT EXISTS idx_students_stream ON students(stream_id);

	CREATE TABLE IF NOT EXISTS academic_terms (
		id TEXT PRIMARY KEY,
		term INTEGER NOT NULL,
		year INTEGER NOT NULL,
		start_date TEXT NOT NULL,
		end_date TEXT NOT NULL,
		is_current BOOLEAN NOT NULL DEFAULT FALSE,
		UNIQUE(term, year)
	);

	CREATE TABLE IF NOT EXISTS fee_items (
		id TEXT PRIMARY KEY,
		code TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL,
		description TEXT,
		scope TEXT NOT NULL,
		per_kilometer BOOLEAN NOT NULL DEFAULT FALSE,
		active BOOLEAN NOT NULL DEFAULT TRUE
	);

	CREATE TABLE IF NOT EXISTS fee_rates (
		id TEXT PRIMARY KEY,
		fee_item_id TEXT NOT NULL,
		term INTEGER NOT NULL,
		year INTEGER NOT NULL,
		class_id TEXT,
		stream_id TEXT,
		student_type TEXT,
		amount TEXT,
		rate_per_km TEXT,
		active BOOLEAN NOT NULL DEFAULT TRUE
	);

	-- Rate resolution hot path: item + term/year, then scope columns.
	CREATE INDEX IF NOT EXISTS idx_rates_item_term
		ON fee_rates(fee_item_id, term, year);

	CREATE TABLE IF NOT EXISTS student_fee_assignments (
		id TEXT PRIMARY KEY,
		student_id TEXT NOT NULL,
		fee_item_id TEXT NOT NULL,
		term INTEGER NOT NULL,
		year INTEGER NOT NULL,
		custom_amount TEXT,
		custom_rate_per_km TEXT,
		custom_distance_km TEXT,
		active BOOLEAN NOT NULL DEFAULT TRUE
	);

	CREATE INDEX IF NOT EXISTS idx_assignments_student_item
		ON student_fee_assignments(student_id, fee_item_id, term, year);

	CREATE TABLE IF NOT EXISTS fee_assessments (
		id TEXT PRIMARY KEY,
		student_id TEXT NOT NULL,
		fee_item_id TEXT NOT NULL,
		term INTEGER NOT NULL,
		year INTEGER NOT NULL,
		description TEXT NOT NULL,
		amount TEXT NOT NULL,
		base_rate TEXT NOT NULL,
		quantity TEXT NOT NULL,
		assessed_at TEXT NOT NULL
	);

	-- One assessment per student+item+term+year; the generator's existence
	-- check relies on this against concurrent runs.
	CREATE UNIQUE INDEX IF NOT EXISTS idx_assessments_unique
		ON fee_assessments(student_id, fee_item_id, term, year);

	CREATE INDEX IF NOT EXISTS idx_assessments_student
		ON fee_assessments(student_id, year, term);
	CREATE INDEX IF NOT EXISTS idx_assessments_item
		ON fee_assessments(fee_item_id);

	CREATE TABLE IF NOT EXISTS payments (
		id TEXT PRIMARY KEY,
		student_id TEXT NOT NULL,
		amount TEXT NOT NULL,
		payment_date TEXT NOT NULL,
		payment_mode TEXT NOT NULL,
		receipt_no TEXT NOT NULL UNIQUE,
		reference TEXT,
		note TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_payments_student
		ON payments(student_id, payment_date);

	CREATE TABLE IF NOT EXISTS payment_allocations (
		id TEXT PRIMARY KEY,
		payment_id TEXT NOT NULL,
		assessment_id TEXT NOT NULL,
		amount TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_allocations_payment
		ON payment_allocations(payment_id);
	CREATE INDEX IF NOT EXISTS idx_allocations_assessment
		ON payment_allocations(assessment_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// TRANSACTIONS (fees.TxStore)
// =============================================================================

// WithTx executes a function within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(store fees.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&querier{db: sqlTx}); err != nil {
		return err
	}

	return sqlTx.Commit()
}

// Reset clears all data (for testing/demo).
func (s *Store) Reset(ctx context.Context) error {
	tables := []string{
		"payment_allocations", "payments", "fee_assessments",
		"student_fee_assignments", "fee_rates", "fee_items",
		"academic_terms", "students", "streams", "classes",
	}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	return nil
}

// =============================================================================
// DIRECTORY
// =============================================================================

const studentColumns = `id, admission_no, first_name, last_name, class_id, stream_id, student_type, transport_km, vehicle_id, active`

func (q *querier) Student(ctx context.Context, id fees.StudentID) (*fees.Student, error) {
	row := q.db.QueryRowContext(ctx,
		"SELECT "+studentColumns+" FROM students WHERE id = ?", id)
	s, err := scanStudent(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (q *querier) ActiveStudents(ctx context.Context, filter fees.ScopeFilter) ([]fees.Student, error) {
	query := "SELECT " + studentColumns + " FROM students WHERE active = TRUE"
	var args []any

	switch {
	case filter.StudentID != nil:
		query += " AND id = ?"
		args = append(args, *filter.StudentID)
	case filter.StreamID != nil:
		query += " AND stream_id = ?"
		args = append(args, *filter.StreamID)
	case filter.ClassID != nil:
		query += " AND class_id = ?"
		args = append(args, *filter.ClassID)
	}
	query += " ORDER BY admission_no"

	return q.queryStudents(ctx, query, args...)
}

func (q *querier) ListStudents(ctx context.Context) ([]fees.Student, error) {
	return q.queryStudents(ctx,
		"SELECT "+studentColumns+" FROM students ORDER BY admission_no")
}

func (q *querier) queryStudents(ctx context.Context, query string, args ...any) ([]fees.Student, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query students: %w", err)
	}
	defer rows.Close()

	var students []fees.Student
	for rows.Next() {
		s, err := scanStudent(rows)
		if err != nil {
			return nil, err
		}
		students = append(students, *s)
	}
	return students, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanStudent(row scanner) (*fees.Student, error) {
	var (
		s           fees.Student
		streamID    sql.NullString
		transportKm sql.NullString
		vehicleID   sql.NullString
	)
	err := row.Scan(&s.ID, &s.AdmissionNo, &s.FirstName, &s.LastName,
		&s.ClassID, &streamID, &s.Type, &transportKm, &vehicleID, &s.Active)
	if err != nil {
		return nil, err
	}
	s.StreamID = idPtr[fees.StreamID](streamID)
	s.TransportKm = decimalPtr(transportKm)
	s.VehicleID = idPtr[fees.VehicleID](vehicleID)
	return &s, nil
}

func (q *querier) SaveStudent(ctx context.Context, s fees.Student) error {
	query := `
		INSERT INTO students
		(id, admission_no, first_name, last_name, class_id, stream_id, student_type, transport_km, vehicle_id, active)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			admission_no = excluded.admission_no,
			first_name = excluded.first_name,
			last_name = excluded.last_name,
			class_id = excluded.class_id,
			stream_id = excluded.stream_id,
			student_type = excluded.student_type,
			transport_km = excluded.transport_km,
			vehicle_id = excluded.vehicle_id,
			active = excluded.active
	`
	_, err := q.db.ExecContext(ctx, query,
		s.ID, s.AdmissionNo, s.FirstName, s.LastName, s.ClassID,
		nullID(s.StreamID), s.Type, nullDecimal(s.TransportKm),
		nullID(s.VehicleID), s.Active)
	return err
}

func (q *querier) DeleteStudent(ctx context.Context, id fees.StudentID) error {
	_, err := q.db.ExecContext(ctx, "DELETE FROM students WHERE id = ?", id)
	return err
}

func (q *querier) SaveClass(ctx context.Context, c fees.Class) error {
	query := `
		INSERT INTO classes (id, name, level) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name, level = excluded.level
	`
	_, err := q.db.ExecContext(ctx, query, c.ID, c.Name, c.Level)
	return err
}

func (q *querier) SaveStream(ctx context.Context, st fees.Stream) error {
	query := `
		INSERT INTO streams (id, class_id, name) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET class_id = excluded.class_id, name = excluded.name
	`
	_, err := q.db.ExecContext(ctx, query, st.ID, st.ClassID, st.Name)
	return err
}

func (q *querier) ListClasses(ctx context.Context) ([]fees.Class, error) {
	rows, err := q.db.QueryContext(ctx, "SELECT id, name, level FROM classes ORDER BY level, name")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var classes []fees.Class
	for rows.Next() {
		var c fees.Class
		if err := rows.Scan(&c.ID, &c.Name, &c.Level); err != nil {
			return nil, err
		}
		classes = append(classes, c)
	}
	return classes, rows.Err()
}

func (q *querier) StreamsByClass(ctx context.Context, classID fees.ClassID) ([]fees.Stream, error) {
	rows, err := q.db.QueryContext(ctx,
		"SELECT id, class_id, name FROM streams WHERE class_id = ? ORDER BY name", classID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var streams []fees.Stream
	for rows.Next() {
		var st fees.Stream
		if err := rows.Scan(&st.ID, &st.ClassID, &st.Name); err != nil {
			return nil, err
		}
		streams = append(streams, st)
	}
	return streams, rows.Err()
}

// =============================================================================
// CATALOG - fee items
// =============================================================================

const feeItemColumns = `id, code, name, description, scope, per_kilometer, active`

func (q *querier) FeeItem(ctx context.Context, id fees.FeeItemID) (*fees.FeeItem, error) {
	row := q.db.QueryRowContext(ctx,
		"SELECT "+feeItemColumns+" FROM fee_items WHERE id = ?", id)
	item, err := scanFeeItem(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return item, nil
}

func (q *querier) ActiveFeeItems(ctx context.Context) ([]fees.FeeItem, error) {
	return q.queryFeeItems(ctx,
		"SELECT "+feeItemColumns+" FROM fee_items WHERE active = TRUE ORDER BY code")
}

func (q *querier) ListFeeItems(ctx context.Context) ([]fees.FeeItem, error) {
	return q.queryFeeItems(ctx,
		"SELECT "+feeItemColumns+" FROM fee_items ORDER BY code")
}

func (q *querier) queryFeeItems(ctx context.Context, query string, args ...any) ([]fees.FeeItem, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []fees.FeeItem
	for rows.Next() {
		item, err := scanFeeItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *item)
	}
	return items, rows.Err()
}

func scanFeeItem(row scanner) (*fees.FeeItem, error) {
	var (
		item fees.FeeItem
		desc sql.NullString
	)
	err := row.Scan(&item.ID, &item.Code, &item.Name, &desc,
		&item.Scope, &item.PerKilometer, &item.Active)
	if err != nil {
		return nil, err
	}
	item.Description = desc.String
	return &item, nil
}

func (q *querier) SaveFeeItem(ctx context.Context, item fees.FeeItem) error {
	query := `
		INSERT INTO fee_items (id, code, name, description, scope, per_kilometer, active)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			code = excluded.code,
			name = excluded.name,
			description = excluded.description,
			scope = excluded.scope,
			per_kilometer = excluded.per_kilometer,
			active = excluded.active
	`
	_, err := q.db.ExecContext(ctx, query,
		item.ID, item.Code, item.Name, nullString(item.Description),
		item.Scope, item.PerKilometer, item.Active)
	return err
}

func (q *querier) DeleteFeeItem(ctx context.Context, id fees.FeeItemID) error {
	_, err := q.db.ExecContext(ctx, "DELETE FROM fee_items WHERE id = ?", id)
	return err
}

// =============================================================================
// CATALOG - rates
// =============================================================================

const feeRateColumns = `id, fee_item_id, term, year, class_id, stream_id, student_type, amount, rate_per_km, active`

// FindRate translates the query's tri-state scope columns into SQL: a nil
// pointer means the column must be NULL, a set pointer means equality, and
// the Any flag leaves the column unconstrained.
func (q *querier) FindRate(ctx context.Context, rq fees.RateQuery) (*fees.FeeRate, error) {
	query := "SELECT " + feeRateColumns + " FROM fee_rates WHERE fee_item_id = ? AND term = ? AND year = ? AND active = TRUE"
	args := []any{rq.FeeItemID, rq.TermYear.Term, rq.TermYear.Year}

	if !rq.AnyClass {
		if rq.ClassID == nil {
			query += " AND class_id IS NULL"
		} else {
			query += " AND class_id = ?"
			args = append(args, *rq.ClassID)
		}
	}
	if !rq.AnyStream {
		if rq.StreamID == nil {
			query += " AND stream_id IS NULL"
		} else {
			query += " AND stream_id = ?"
			args = append(args, *rq.StreamID)
		}
	}
	if !rq.AnyType {
		if rq.StudentType == nil {
			query += " AND student_type IS NULL"
		} else {
			query += " AND student_type = ?"
			args = append(args, *rq.StudentType)
		}
	}
	query += " LIMIT 1"

	row := q.db.QueryRowContext(ctx, query, args...)
	rate, err := scanFeeRate(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return rate, nil
}

func (q *querier) FeeRate(ctx context.Context, id fees.FeeRateID) (*fees.FeeRate, error) {
	row := q.db.QueryRowContext(ctx,
		"SELECT "+feeRateColumns+" FROM fee_rates WHERE id = ?", id)
	rate, err := scanFeeRate(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return rate, nil
}

func (q *querier) RatesFor(ctx context.Context, ty fees.TermYear) ([]fees.FeeRate, error) {
	rows, err := q.db.QueryContext(ctx,
		"SELECT "+feeRateColumns+" FROM fee_rates WHERE term = ? AND year = ? AND active = TRUE ORDER BY id",
		ty.Term, ty.Year)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rates []fees.FeeRate
	for rows.Next() {
		rate, err := scanFeeRate(rows)
		if err != nil {
			return nil, err
		}
		rates = append(rates, *rate)
	}
	return rates, rows.Err()
}

func scanFeeRate(row scanner) (*fees.FeeRate, error) {
	var (
		r           fees.FeeRate
		classID     sql.NullString
		streamID    sql.NullString
		studentType sql.NullString
		amount      sql.NullString
		ratePerKm   sql.NullString
	)
	err := row.Scan(&r.ID, &r.FeeItemID, &r.TermYear.Term, &r.TermYear.Year,
		&classID, &streamID, &studentType, &amount, &ratePerKm, &r.Active)
	if err != nil {
		return nil, err
	}
	r.ClassID = idPtr[fees.ClassID](classID)
	r.StreamID = idPtr[fees.StreamID](streamID)
	if studentType.Valid {
		t := fees.StudentType(studentType.String)
		r.StudentType = &t
	}
	r.Amount = decimalPtr(amount)
	r.RatePerKm = decimalPtr(ratePerKm)
	return &r, nil
}

func (q *querier) SaveRate(ctx context.Context, rate fees.FeeRate) error {
	query := `
		INSERT INTO fee_rates
		(id, fee_item_id, term, year, class_id, stream_id, student_type, amount, rate_per_km, active)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			fee_item_id = excluded.fee_item_id,
			term = excluded.term,
			year = excluded.year,
			class_id = excluded.class_id,
			stream_id = excluded.stream_id,
			student_type = excluded.student_type,
			amount = excluded.amount,
			rate_per_km = excluded.rate_per_km,
			active = excluded.active
	`
	var studentType sql.NullString
	if rate.StudentType != nil {
		studentType = sql.NullString{String: string(*rate.StudentType), Valid: true}
	}
	_, err := q.db.ExecContext(ctx, query,
		rate.ID, rate.FeeItemID, rate.TermYear.Term, rate.TermYear.Year,
		nullID(rate.ClassID), nullID(rate.StreamID), studentType,
		nullDecimal(rate.Amount), nullDecimal(rate.RatePerKm), rate.Active)
	return err
}

func (q *querier) DeleteRate(ctx context.Context, id fees.FeeRateID) error {
	_, err := q.db.ExecContext(ctx, "DELETE FROM fee_rates WHERE id = ?", id)
	return err
}

func (q *querier) RateCountForItem(ctx context.Context, id fees.FeeItemID) (int, error) {
	var count int
	err := q.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM fee_rates WHERE fee_item_id = ?", id).Scan(&count)
	return count, err
}

// =============================================================================
// CATALOG - assignments and terms
// =============================================================================

func (q *querier) FindAssignment(ctx context.Context, studentID fees.StudentID, feeItemID fees.FeeItemID, ty fees.TermYear) (*fees.FeeAssignment, error) {
	row := q.db.QueryRowContext(ctx, `
		SELECT id, student_id, fee_item_id, term, year, custom_amount, custom_rate_per_km, custom_distance_km, active
		FROM student_fee_assignments
		WHERE student_id = ? AND fee_item_id = ? AND term = ? AND year = ? AND active = TRUE
		LIMIT 1`,
		studentID, feeItemID, ty.Term, ty.Year)

	var (
		a          fees.FeeAssignment
		amount     sql.NullString
		ratePerKm  sql.NullString
		distanceKm sql.NullString
	)
	err := row.Scan(&a.ID, &a.StudentID, &a.FeeItemID, &a.TermYear.Term, &a.TermYear.Year,
		&amount, &ratePerKm, &distanceKm, &a.Active)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	a.CustomAmount = decimalPtr(amount)
	a.CustomRatePerKm = decimalPtr(ratePerKm)
	a.CustomDistanceKm = decimalPtr(distanceKm)
	return &a, nil
}

func (q *querier) SaveAssignment(ctx context.Context, a fees.FeeAssignment) error {
	query := `
		INSERT INTO student_fee_assignments
		(id, student_id, fee_item_id, term, year, custom_amount, custom_rate_per_km, custom_distance_km, active)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			custom_amount = excluded.custom_amount,
			custom_rate_per_km = excluded.custom_rate_per_km,
			custom_distance_km = excluded.custom_distance_km,
			active = excluded.active
	`
	_, err := q.db.ExecContext(ctx, query,
		a.ID, a.StudentID, a.FeeItemID, a.TermYear.Term, a.TermYear.Year,
		nullDecimal(a.CustomAmount), nullDecimal(a.CustomRatePerKm),
		nullDecimal(a.CustomDistanceKm), a.Active)
	return err
}

func (q *querier) AssignmentCountForItem(ctx context.Context, id fees.FeeItemID) (int, error) {
	var count int
	err := q.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM student_fee_assignments WHERE fee_item_id = ?", id).Scan(&count)
	return count, err
}

const termColumns = `id, term, year, start_date, end_date, is_current`

func (q *querier) SaveTerm(ctx context.Context, t fees.AcademicTerm) error {
	query := `
		INSERT INTO academic_terms (id, term, year, start_date, end_date, is_current)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			term = excluded.term,
			year = excluded.year,
			start_date = excluded.start_date,
			end_date = excluded.end_date,
			is_current = excluded.is_current
	`
	_, err := q.db.ExecContext(ctx, query,
		t.ID, t.Term, t.Year,
		t.StartDate.Format(time.RFC3339), t.EndDate.Format(time.RFC3339),
		t.IsCurrent)
	return err
}

func (q *querier) Terms(ctx context.Context) ([]fees.AcademicTerm, error) {
	rows, err := q.db.QueryContext(ctx,
		"SELECT "+termColumns+" FROM academic_terms ORDER BY year, term")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var terms []fees.AcademicTerm
	for rows.Next() {
		t, err := scanTerm(rows)
		if err != nil {
			return nil, err
		}
		terms = append(terms, *t)
	}
	return terms, rows.Err()
}

func (q *querier) CurrentTerm(ctx context.Context) (*fees.AcademicTerm, error) {
	row := q.db.QueryRowContext(ctx,
		"SELECT "+termColumns+" FROM academic_terms WHERE is_current = TRUE LIMIT 1")
	t, err := scanTerm(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return t, nil
}

func (q *querier) TermByDate(ctx context.Context, d time.Time) (*fees.AcademicTerm, error) {
	row := q.db.QueryRowContext(ctx,
		"SELECT "+termColumns+" FROM academic_terms WHERE start_date <= ? AND end_date >= ? LIMIT 1",
		d.Format(time.RFC3339), d.Format(time.RFC3339))
	t, err := scanTerm(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return t, nil
}

// SetCurrentTerm unsets every current flag and sets the target's in one
// statement pair, preserving the single-current-term invariant.
func (q *querier) SetCurrentTerm(ctx context.Context, id fees.TermID) error {
	if _, err := q.db.ExecContext(ctx,
		"UPDATE academic_terms SET is_current = FALSE WHERE is_current = TRUE"); err != nil {
		return err
	}
	res, err := q.db.ExecContext(ctx,
		"UPDATE academic_terms SET is_current = TRUE WHERE id = ?", id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fees.ErrTermNotFound
	}
	return nil
}

func scanTerm(row scanner) (*fees.AcademicTerm, error) {
	var (
		t          fees.AcademicTerm
		start, end string
	)
	err := row.Scan(&t.ID, &t.Term, &t.Year, &start, &end, &t.IsCurrent)
	if err != nil {
		return nil, err
	}
	if t.StartDate, err = time.Parse(time.RFC3339, start); err != nil {
		return nil, fmt.Errorf("failed to parse term start date: %w", err)
	}
	if t.EndDate, err = time.Parse(time.RFC3339, end); err != nil {
		return nil, fmt.Errorf("failed to parse term end date: %w", err)
	}
	return &t, nil
}

// =============================================================================
// LEDGER - assessments
// =============================================================================

const assessmentColumns = `id, student_id, fee_item_id, term, year, description, amount, base_rate, quantity, assessed_at`

func (q *querier) Assessment(ctx context.Context, id fees.AssessmentID) (*fees.Assessment, error) {
	row := q.db.QueryRowContext(ctx,
		"SELECT "+assessmentColumns+" FROM fee_assessments WHERE id = ?", id)
	a, err := scanAssessment(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (q *querier) FindAssessment(ctx context.Context, studentID fees.StudentID, feeItemID fees.FeeItemID, ty fees.TermYear) (*fees.Assessment, error) {
	row := q.db.QueryRowContext(ctx,
		"SELECT "+assessmentColumns+" FROM fee_assessments WHERE student_id = ? AND fee_item_id = ? AND term = ? AND year = ?",
		studentID, feeItemID, ty.Term, ty.Year)
	a, err := scanAssessment(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (q *querier) AssessmentsForTerm(ctx context.Context, studentID fees.StudentID, ty fees.TermYear) ([]fees.Assessment, error) {
	return q.queryAssessments(ctx,
		"SELECT "+assessmentColumns+" FROM fee_assessments WHERE student_id = ? AND term = ? AND year = ? ORDER BY id",
		studentID, ty.Term, ty.Year)
}

func (q *querier) AssessmentsByStudent(ctx context.Context, studentID fees.StudentID, upTo *fees.TermYear) ([]fees.Assessment, error) {
	query := "SELECT " + assessmentColumns + " FROM fee_assessments WHERE student_id = ?"
	args := []any{studentID}
	if upTo != nil {
		query += " AND (year < ? OR (year = ? AND term <= ?))"
		args = append(args, upTo.Year, upTo.Year, upTo.Term)
	}
	query += " ORDER BY year, term, id"
	return q.queryAssessments(ctx, query, args...)
}

func (q *querier) queryAssessments(ctx context.Context, query string, args ...any) ([]fees.Assessment, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query assessments: %w", err)
	}
	defer rows.Close()

	var assessments []fees.Assessment
	for rows.Next() {
		a, err := scanAssessment(rows)
		if err != nil {
			return nil, err
		}
		assessments = append(assessments, *a)
	}
	return assessments, rows.Err()
}

func scanAssessment(row scanner) (*fees.Assessment, error) {
	var (
		a                          fees.Assessment
		amount, baseRate, quantity string
		assessedAt                 string
	)
	err := row.Scan(&a.ID, &a.StudentID, &a.FeeItemID, &a.TermYear.Term, &a.TermYear.Year,
		&a.Description, &amount, &baseRate, &quantity, &assessedAt)
	if err != nil {
		return nil, err
	}
	a.Amount = parseDecimal(amount)
	a.BaseRate = parseDecimal(baseRate)
	a.Quantity = parseDecimal(quantity)
	if a.AssessedAt, err = time.Parse(time.RFC3339, assessedAt); err != nil {
		return nil, fmt.Errorf("failed to parse assessment date: %w", err)
	}
	return &a, nil
}

func (q *querier) InsertAssessment(ctx context.Context, a fees.Assessment) error {
	query := `
		INSERT INTO fee_assessments
		(id, student_id, fee_item_id, term, year, description, amount, base_rate, quantity, assessed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := q.db.ExecContext(ctx, query,
		a.ID, a.StudentID, a.FeeItemID, a.TermYear.Term, a.TermYear.Year,
		a.Description, a.Amount.String(), a.BaseRate.String(), a.Quantity.String(),
		a.AssessedAt.Format(time.RFC3339))
	if err != nil {
		if isUniqueConstraintError(err) {
			return fees.ErrDuplicateAssessment
		}
		return fmt.Errorf("failed to insert assessment: %w", err)
	}
	return nil
}

func (q *querier) DeleteAssessment(ctx context.Context, id fees.AssessmentID) error {
	_, err := q.db.ExecContext(ctx, "DELETE FROM fee_assessments WHERE id = ?", id)
	return err
}

func (q *querier) AssessmentCountForItem(ctx context.Context, id fees.FeeItemID) (int, error) {
	var count int
	err := q.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM fee_assessments WHERE fee_item_id = ?", id).Scan(&count)
	return count, err
}

func (q *querier) AssessmentCountForItemTerm(ctx context.Context, id fees.FeeItemID, ty fees.TermYear) (int, error) {
	var count int
	err := q.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM fee_assessments WHERE fee_item_id = ? AND term = ? AND year = ?",
		id, ty.Term, ty.Year).Scan(&count)
	return count, err
}

// =============================================================================
// LEDGER - payments and allocations
// =============================================================================

const paymentColumns = `id, student_id, amount, payment_date, payment_mode, receipt_no, reference, note, created_at`

func (q *querier) Payment(ctx context.Context, id fees.PaymentID) (*fees.Payment, error) {
	row := q.db.QueryRowContext(ctx,
		"SELECT "+paymentColumns+" FROM payments WHERE id = ?", id)
	p, err := scanPayment(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (q *querier) PaymentsByStudent(ctx context.Context, studentID fees.StudentID) ([]fees.Payment, error) {
	rows, err := q.db.QueryContext(ctx,
		"SELECT "+paymentColumns+" FROM payments WHERE student_id = ? ORDER BY payment_date, receipt_no",
		studentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var payments []fees.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		payments = append(payments, *p)
	}
	return payments, rows.Err()
}

func (q *querier) PaymentCount(ctx context.Context) (int, error) {
	var count int
	err := q.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM payments").Scan(&count)
	return count, err
}

func (q *querier) ReceiptExists(ctx context.Context, receiptNo string) (bool, error) {
	var count int
	err := q.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM payments WHERE receipt_no = ?", receiptNo).Scan(&count)
	return count > 0, err
}

func scanPayment(row scanner) (*fees.Payment, error) {
	var (
		p               fees.Payment
		amount          string
		date, createdAt string
		reference, note sql.NullString
	)
	err := row.Scan(&p.ID, &p.StudentID, &amount, &date, &p.Mode,
		&p.ReceiptNo, &reference, &note, &createdAt)
	if err != nil {
		return nil, err
	}
	p.Amount = parseDecimal(amount)
	if p.Date, err = time.Parse(time.RFC3339, date); err != nil {
		return nil, fmt.Errorf("failed to parse payment date: %w", err)
	}
	p.Reference = reference.String
	p.Note = note.String
	if p.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return nil, fmt.Errorf("failed to parse payment created_at: %w", err)
	}
	return &p, nil
}

func (q *querier) SavePayment(ctx context.Context, p fees.Payment) error {
	query := `
		INSERT INTO payments
		(id, student_id, amount, payment_date, payment_mode, receipt_no, reference, note, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			amount = excluded.amount,
			payment_date = excluded.payment_date,
			payment_mode = excluded.payment_mode,
			reference = excluded.reference,
			note = excluded.note
	`
	_, err := q.db.ExecContext(ctx, query,
		p.ID, p.StudentID, p.Amount.String(),
		p.Date.Format(time.RFC3339), p.Mode, p.ReceiptNo,
		nullString(p.Reference), nullString(p.Note),
		p.CreatedAt.Format(time.RFC3339))
	if err != nil {
		if isUniqueConstraintError(err) {
			return fees.ErrDuplicateReceipt
		}
		return fmt.Errorf("failed to save payment: %w", err)
	}
	return nil
}

func (q *querier) DeletePayment(ctx context.Context, id fees.PaymentID) error {
	_, err := q.db.ExecContext(ctx, "DELETE FROM payments WHERE id = ?", id)
	return err
}

func (q *querier) InsertAllocation(ctx context.Context, a fees.Allocation) error {
	query := `
		INSERT INTO payment_allocations (id, payment_id, assessment_id, amount, created_at)
		VALUES (?, ?, ?, ?, ?)
	`
	_, err := q.db.ExecContext(ctx, query,
		a.ID, a.PaymentID, a.AssessmentID, a.Amount.String(),
		a.CreatedAt.Format(time.RFC3339))
	return err
}

func (q *querier) AllocationsByPayment(ctx context.Context, paymentID fees.PaymentID) ([]fees.Allocation, error) {
	rows, err := q.db.QueryContext(ctx,
		"SELECT id, payment_id, assessment_id, amount, created_at FROM payment_allocations WHERE payment_id = ? ORDER BY id",
		paymentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var allocations []fees.Allocation
	for rows.Next() {
		var (
			a         fees.Allocation
			amount    string
			createdAt string
		)
		if err := rows.Scan(&a.ID, &a.PaymentID, &a.AssessmentID, &amount, &createdAt); err != nil {
			return nil, err
		}
		a.Amount = parseDecimal(amount)
		a.CreatedAt, err = time.Parse(time.RFC3339, createdAt)
		if err != nil {
			return nil, fmt.Errorf("failed to parse allocation created_at: %w", err)
		}
		allocations = append(allocations, a)
	}
	return allocations, rows.Err()
}

// AllocatedToAssessment sums in Go rather than SQL; amounts are stored as
// decimal strings and must not round-trip through REAL.
func (q *querier) AllocatedToAssessment(ctx context.Context, id fees.AssessmentID) (decimal.Decimal, error) {
	rows, err := q.db.QueryContext(ctx,
		"SELECT amount FROM payment_allocations WHERE assessment_id = ?", id)
	if err != nil {
		return decimal.Zero, err
	}
	defer rows.Close()

	return sumAmounts(rows)
}

func (q *querier) AllocatedToStudent(ctx context.Context, studentID fees.StudentID, upTo *fees.TermYear) (decimal.Decimal, error) {
	query := `
		SELECT pa.amount
		FROM payment_allocations pa
		JOIN fee_assessments fa ON fa.id = pa.assessment_id
		WHERE fa.student_id = ?
	`
	args := []any{studentID}
	if upTo != nil {
		query += " AND (fa.year < ? OR (fa.year = ? AND fa.term <= ?))"
		args = append(args, upTo.Year, upTo.Year, upTo.Term)
	}

	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return decimal.Zero, err
	}
	defer rows.Close()

	return sumAmounts(rows)
}

func sumAmounts(rows *sql.Rows) (decimal.Decimal, error) {
	total := decimal.Zero
	for rows.Next() {
		var amount string
		if err := rows.Scan(&amount); err != nil {
			return decimal.Zero, err
		}
		total = total.Add(parseDecimal(amount))
	}
	return total, rows.Err()
}

// =============================================================================
// UTILITIES
// =============================================================================

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullID[T ~string](p *T) sql.NullString {
	if p == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: string(*p), Valid: true}
}

func idPtr[T ~string](ns sql.NullString) *T {
	if !ns.Valid {
		return nil
	}
	v := T(ns.String)
	return &v
}

func nullDecimal(d *decimal.Decimal) sql.NullString {
	if d == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: d.String(), Valid: true}
}

func decimalPtr(ns sql.NullString) *decimal.Decimal {
	if !ns.Valid {
		return nil
	}
	d := parseDecimal(ns.String)
	return &d
}

func parseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
