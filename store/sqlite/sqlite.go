/*
Package sqlite provides a SQLite-backed implementation of payroll.Store.

PURPOSE:
  Persists teachers, the subject catalog, statements, line items and the
  rate configuration. The payroll package never sees SQL.

KEY TABLES:
  teachers:       People who get paid (name, contact, scale)
  subjects:       Flat catalog of class names (name UNIQUE)
  statements:     One teacher, one month/year
  line_items:     Priced classes, owned by a statement (ON DELETE CASCADE)
  base_rates:     One hourly rate per scale (scale UNIQUE)
  student_bands:  Supplemental hourly rate per (scale, student range)
  formula_config: Single row (id = 1) with the pricing expression

OWNERSHIP:
  statements.teacher_id has NO foreign key. Deleting a teacher leaves its
  statements in place; readers see them with an empty teacher name.
  line_items.statement_id cascades, so deleting statements (one, many, all)
  removes their items inside the same transaction.

SEEDING:
  Seed() inserts the default base rates, bands and formula when missing.
  It is explicit, idempotent, and called by New(). Existing rows are never
  overwritten.

MONEY:
  Decimals are stored as TEXT and scanned back through decimal.Decimal's
  sql.Scanner implementation. Floating point never touches a stored amount.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety, and a single connection so that
  ":memory:" databases are shared by every query. Rate configuration
  writes are last-write-wins.

USAGE:
  store, err := sqlite.New("./data/liquidaciones.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  svc := payroll.NewService(store)

SEE ALSO:
  - payroll/store.go: Interface definitions
  - payroll/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/escuelademusica/liquidaciones/formula"
	"github.com/escuelademusica/liquidaciones/payroll"
)

// timeLayout is fixed-width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000Z07:00"

// Store implements payroll.Store using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

var _ payroll.Store = (*Store)(nil)

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	if err := store.Seed(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to seed database: %w", err)
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
	CREATE TABLE IF NOT EXISTS teachers (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		email TEXT NOT NULL DEFAULT '',
		phone TEXT NOT NULL DEFAULT '',
		scale INTEGER NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_teachers_name
		ON teachers(name COLLATE NOCASE);

	CREATE TABLE IF NOT EXISTS subjects (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL UNIQUE
	);

	-- No FK on teacher_id: statements outlive their teacher
	CREATE TABLE IF NOT EXISTS statements (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		teacher_id INTEGER NOT NULL,
		month TEXT NOT NULL,
		year INTEGER NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_statements_teacher_created
		ON statements(teacher_id, created_at DESC);
	CREATE INDEX IF NOT EXISTS idx_statements_period
		ON statements(year, month);

	CREATE TABLE IF NOT EXISTS line_items (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		statement_id INTEGER NOT NULL REFERENCES statements(id) ON DELETE CASCADE,
		subject TEXT NOT NULL DEFAULT '',
		schedule TEXT NOT NULL DEFAULT '',
		comment TEXT NOT NULL DEFAULT '',
		student_count INTEGER NOT NULL DEFAULT 0,
		hours TEXT NOT NULL DEFAULT '0',
		hourly_rate TEXT NOT NULL DEFAULT '0',
		subtotal TEXT NOT NULL DEFAULT '0'
	);

	CREATE INDEX IF NOT EXISTS idx_line_items_statement
		ON line_items(statement_id);

	CREATE TABLE IF NOT EXISTS base_rates (
		scale INTEGER PRIMARY KEY,
		hourly_rate TEXT NOT NULL DEFAULT '0'
	);

	CREATE TABLE IF NOT EXISTS student_bands (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		scale INTEGER NOT NULL,
		min_students INTEGER NOT NULL,
		max_students INTEGER NOT NULL,
		hourly_rate TEXT NOT NULL DEFAULT '0'
	);

	CREATE INDEX IF NOT EXISTS idx_student_bands_scale
		ON student_bands(scale, min_students);

	CREATE TABLE IF NOT EXISTS formula_config (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		expression TEXT NOT NULL
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Seed inserts default rate configuration rows that are missing.
func (s *Store) Seed(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.inTx(ctx, func(tx *sql.Tx) error {
		defaults := payroll.DefaultRateConfig(formula.Default)
		for _, r := range defaults.BaseRates {
			if _, err := tx.ExecContext(ctx,
				"INSERT OR IGNORE INTO base_rates (scale, hourly_rate) VALUES (?, ?)",
				r.Scale, r.HourlyRate.String(),
			); err != nil {
				return err
			}
		}

		for _, scale := range payroll.Scales {
			var count int
			if err := tx.QueryRowContext(ctx,
				"SELECT COUNT(*) FROM student_bands WHERE scale = ?", scale,
			).Scan(&count); err != nil {
				return err
			}
			if count > 0 {
				continue
			}
			for _, b := range defaults.BandsFor(scale) {
				if err := insertBand(ctx, tx, b); err != nil {
					return err
				}
			}
		}

		_, err := tx.ExecContext(ctx,
			"INSERT OR IGNORE INTO formula_config (id, expression) VALUES (1, ?)",
			defaults.Formula,
		)
		return err
	})
}

// inTx runs fn in a database transaction. Callers hold s.mu.
func (s *Store) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(sqlTx); err != nil {
		return err
	}
	return sqlTx.Commit()
}

// =============================================================================
// TEACHERS
// =============================================================================

// SaveTeacher inserts or updates a teacher.
func (s *Store) SaveTeacher(ctx context.Context, t payroll.Teacher) (payroll.Teacher, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t.ID == 0 {
		res, err := s.db.ExecContext(ctx,
			"INSERT INTO teachers (name, email, phone, scale, created_at) VALUES (?, ?, ?, ?, ?)",
			t.Name, t.Email, t.Phone, t.Scale, formatTime(t.CreatedAt),
		)
		if err != nil {
			return payroll.Teacher{}, fmt.Errorf("failed to insert teacher: %w", err)
		}
		t.ID, err = res.LastInsertId()
		return t, err
	}

	_, err := s.db.ExecContext(ctx,
		"UPDATE teachers SET name = ?, email = ?, phone = ?, scale = ? WHERE id = ?",
		t.Name, t.Email, t.Phone, t.Scale, t.ID,
	)
	if err != nil {
		return payroll.Teacher{}, fmt.Errorf("failed to update teacher: %w", err)
	}
	return t, nil
}

// GetTeacher retrieves a teacher by ID.
func (s *Store) GetTeacher(ctx context.Context, id int64) (*payroll.Teacher, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var t payroll.Teacher
	var createdAt string
	err := s.db.QueryRowContext(ctx,
		"SELECT id, name, email, phone, scale, created_at FROM teachers WHERE id = ?", id,
	).Scan(&t.ID, &t.Name, &t.Email, &t.Phone, &t.Scale, &createdAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	t.CreatedAt = parseTime(createdAt)
	return &t, nil
}

// ListTeachers returns teachers ordered by name, optionally filtered by prefix.
func (s *Store) ListTeachers(ctx context.Context, prefix string) ([]payroll.Teacher, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := "SELECT id, name, email, phone, scale, created_at FROM teachers"
	var args []any
	if prefix != "" {
		query += ` WHERE name LIKE ? ESCAPE '\'`
		args = append(args, escapeLike(prefix)+"%")
	}
	query += " ORDER BY name COLLATE NOCASE, id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var teachers []payroll.Teacher
	for rows.Next() {
		var t payroll.Teacher
		var createdAt string
		if err := rows.Scan(&t.ID, &t.Name, &t.Email, &t.Phone, &t.Scale, &createdAt); err != nil {
			return nil, err
		}
		t.CreatedAt = parseTime(createdAt)
		teachers = append(teachers, t)
	}
	return teachers, rows.Err()
}

// DeleteTeacher removes a teacher. Statements are left in place.
func (s *Store) DeleteTeacher(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, "DELETE FROM teachers WHERE id = ?", id)
	return err
}

// =============================================================================
// SUBJECTS
// =============================================================================

// SaveSubject inserts or renames a subject.
func (s *Store) SaveSubject(ctx context.Context, sub payroll.Subject) (payroll.Subject, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var err error
	if sub.ID == 0 {
		var res sql.Result
		res, err = s.db.ExecContext(ctx, "INSERT INTO subjects (name) VALUES (?)", sub.Name)
		if err == nil {
			sub.ID, err = res.LastInsertId()
		}
	} else {
		_, err = s.db.ExecContext(ctx, "UPDATE subjects SET name = ? WHERE id = ?", sub.Name, sub.ID)
	}
	if isUniqueConstraintError(err) {
		return payroll.Subject{}, payroll.ErrDuplicateSubject
	}
	if err != nil {
		return payroll.Subject{}, fmt.Errorf("failed to save subject: %w", err)
	}
	return sub, nil
}

// GetSubject retrieves a subject by ID.
func (s *Store) GetSubject(ctx context.Context, id int64) (*payroll.Subject, error) {
	return s.getSubject(ctx, "SELECT id, name FROM subjects WHERE id = ?", id)
}

// FindSubject retrieves a subject by exact name.
func (s *Store) FindSubject(ctx context.Context, name string) (*payroll.Subject, error) {
	return s.getSubject(ctx, "SELECT id, name FROM subjects WHERE name = ?", name)
}

func (s *Store) getSubject(ctx context.Context, query string, arg any) (*payroll.Subject, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var sub payroll.Subject
	err := s.db.QueryRowContext(ctx, query, arg).Scan(&sub.ID, &sub.Name)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

// ListSubjects returns the catalog ordered by name.
func (s *Store) ListSubjects(ctx context.Context) ([]payroll.Subject, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, "SELECT id, name FROM subjects ORDER BY name")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var subjects []payroll.Subject
	for rows.Next() {
		var sub payroll.Subject
		if err := rows.Scan(&sub.ID, &sub.Name); err != nil {
			return nil, err
		}
		subjects = append(subjects, sub)
	}
	return subjects, rows.Err()
}

// DeleteSubject removes a subject. Line items keep their copied label.
func (s *Store) DeleteSubject(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, "DELETE FROM subjects WHERE id = ?", id)
	return err
}

// =============================================================================
// STATEMENTS
// =============================================================================

const statementColumns = "id, teacher_id, month, year, created_at"

// CreateStatement inserts a statement and its initial items atomically.
func (s *Store) CreateStatement(ctx context.Context, st payroll.Statement, items []payroll.LineItem) (payroll.Statement, []payroll.LineItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	saved := make([]payroll.LineItem, 0, len(items))
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			"INSERT INTO statements (teacher_id, month, year, created_at) VALUES (?, ?, ?, ?)",
			st.TeacherID, st.Month, st.Year, formatTime(st.CreatedAt),
		)
		if err != nil {
			return fmt.Errorf("failed to insert statement: %w", err)
		}
		if st.ID, err = res.LastInsertId(); err != nil {
			return err
		}

		for _, it := range items {
			it.StatementID = st.ID
			if it.ID, err = insertLineItem(ctx, tx, it); err != nil {
				return err
			}
			saved = append(saved, it)
		}
		return nil
	})
	if err != nil {
		return payroll.Statement{}, nil, err
	}
	return st, saved, nil
}

// GetStatement retrieves a statement by ID.
func (s *Store) GetStatement(ctx context.Context, id int64) (*payroll.Statement, error) {
	return s.getStatement(ctx,
		"SELECT "+statementColumns+" FROM statements WHERE id = ?", id)
}

// LatestStatement returns the teacher's most recently created statement.
func (s *Store) LatestStatement(ctx context.Context, teacherID int64) (*payroll.Statement, error) {
	return s.getStatement(ctx,
		"SELECT "+statementColumns+" FROM statements WHERE teacher_id = ? ORDER BY created_at DESC, id DESC LIMIT 1",
		teacherID)
}

func (s *Store) getStatement(ctx context.Context, query string, arg any) (*payroll.Statement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, err := scanStatement(s.db.QueryRowContext(ctx, query, arg))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &st, nil
}

// ListStatements returns matching statements, newest first.
func (s *Store) ListStatements(ctx context.Context, f payroll.StatementFilter) ([]payroll.Statement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		where []string
		args  []any
	)
	if f.TeacherID != 0 {
		where = append(where, "teacher_id = ?")
		args = append(args, f.TeacherID)
	}
	if f.Month != "" {
		where = append(where, "month = ?")
		args = append(args, f.Month)
	}
	if f.Year != 0 {
		where = append(where, "year = ?")
		args = append(args, f.Year)
	}

	query := "SELECT " + statementColumns + " FROM statements"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query statements: %w", err)
	}
	defer rows.Close()

	var statements []payroll.Statement
	for rows.Next() {
		st, err := scanStatement(rows)
		if err != nil {
			return nil, err
		}
		statements = append(statements, st)
	}
	return statements, rows.Err()
}

// DeleteStatements removes statements and, through the cascade, their items.
func (s *Store) DeleteStatements(ctx context.Context, ids []int64) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	var deleted int64
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, "DELETE FROM statements WHERE id IN ("+placeholders+")", args...)
		if err != nil {
			return fmt.Errorf("failed to delete statements: %w", err)
		}
		deleted, err = res.RowsAffected()
		return err
	})
	return int(deleted), err
}

// DeleteAllStatements removes every statement and line item.
func (s *Store) DeleteAllStatements(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var deleted int64
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, "DELETE FROM statements")
		if err != nil {
			return fmt.Errorf("failed to delete statements: %w", err)
		}
		deleted, err = res.RowsAffected()
		return err
	})
	return int(deleted), err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanStatement(row rowScanner) (payroll.Statement, error) {
	var st payroll.Statement
	var createdAt string
	if err := row.Scan(&st.ID, &st.TeacherID, &st.Month, &st.Year, &createdAt); err != nil {
		return st, err
	}
	st.CreatedAt = parseTime(createdAt)
	return st, nil
}

// =============================================================================
// LINE ITEMS
// =============================================================================

const lineItemColumns = "id, statement_id, subject, schedule, comment, student_count, hours, hourly_rate, subtotal"

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertLineItem(ctx context.Context, db execer, it payroll.LineItem) (int64, error) {
	res, err := db.ExecContext(ctx, `
		INSERT INTO line_items
		(statement_id, subject, schedule, comment, student_count, hours, hourly_rate, subtotal)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		it.StatementID, it.Subject, it.Schedule, it.Comment, it.StudentCount,
		it.Hours.String(), it.HourlyRate.String(), it.Subtotal.String(),
	)
	if err != nil {
		if isForeignKeyError(err) {
			return 0, payroll.ErrStatementNotFound
		}
		return 0, fmt.Errorf("failed to insert line item: %w", err)
	}
	return res.LastInsertId()
}

// SaveLineItem inserts or updates a line item.
func (s *Store) SaveLineItem(ctx context.Context, it payroll.LineItem) (payroll.LineItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if it.ID == 0 {
		id, err := insertLineItem(ctx, s.db, it)
		if err != nil {
			return payroll.LineItem{}, err
		}
		it.ID = id
		return it, nil
	}

	_, err := s.db.ExecContext(ctx, `
		UPDATE line_items SET
			subject = ?, schedule = ?, comment = ?, student_count = ?,
			hours = ?, hourly_rate = ?, subtotal = ?
		WHERE id = ?`,
		it.Subject, it.Schedule, it.Comment, it.StudentCount,
		it.Hours.String(), it.HourlyRate.String(), it.Subtotal.String(),
		it.ID,
	)
	if err != nil {
		return payroll.LineItem{}, fmt.Errorf("failed to update line item: %w", err)
	}
	return it, nil
}

// GetLineItem retrieves a line item by ID.
func (s *Store) GetLineItem(ctx context.Context, id int64) (*payroll.LineItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	it, err := scanLineItem(s.db.QueryRowContext(ctx,
		"SELECT "+lineItemColumns+" FROM line_items WHERE id = ?", id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &it, nil
}

// ListLineItems returns a statement's items in insertion order.
func (s *Store) ListLineItems(ctx context.Context, statementID int64) ([]payroll.LineItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT "+lineItemColumns+" FROM line_items WHERE statement_id = ? ORDER BY id", statementID)
	if err != nil {
		return nil, fmt.Errorf("failed to query line items: %w", err)
	}
	defer rows.Close()

	var items []payroll.LineItem
	for rows.Next() {
		it, err := scanLineItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// DeleteLineItem removes a line item.
func (s *Store) DeleteLineItem(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, "DELETE FROM line_items WHERE id = ?", id)
	return err
}

func scanLineItem(row rowScanner) (payroll.LineItem, error) {
	var it payroll.LineItem
	err := row.Scan(
		&it.ID, &it.StatementID, &it.Subject, &it.Schedule, &it.Comment,
		&it.StudentCount, &it.Hours, &it.HourlyRate, &it.Subtotal,
	)
	return it, err
}

// =============================================================================
// RATE CONFIGURATION
// =============================================================================

// LoadRateConfig reads a consistent snapshot of the rate configuration.
func (s *Store) LoadRateConfig(ctx context.Context) (payroll.RateConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var cfg payroll.RateConfig

	rows, err := s.db.QueryContext(ctx, "SELECT scale, hourly_rate FROM base_rates ORDER BY scale")
	if err != nil {
		return cfg, fmt.Errorf("failed to query base rates: %w", err)
	}
	for rows.Next() {
		var r payroll.BaseRate
		if err := rows.Scan(&r.Scale, &r.HourlyRate); err != nil {
			rows.Close()
			return cfg, err
		}
		cfg.BaseRates = append(cfg.BaseRates, r)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return cfg, err
	}

	rows, err = s.db.QueryContext(ctx, `
		SELECT id, scale, min_students, max_students, hourly_rate
		FROM student_bands
		ORDER BY scale, min_students, id`)
	if err != nil {
		return cfg, fmt.Errorf("failed to query student bands: %w", err)
	}
	for rows.Next() {
		var b payroll.StudentBand
		if err := rows.Scan(&b.ID, &b.Scale, &b.Min, &b.Max, &b.HourlyRate); err != nil {
			rows.Close()
			return cfg, err
		}
		cfg.Bands = append(cfg.Bands, b)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return cfg, err
	}

	err = s.db.QueryRowContext(ctx, "SELECT expression FROM formula_config WHERE id = 1").Scan(&cfg.Formula)
	if err == sql.ErrNoRows {
		cfg.Formula = formula.Default
		err = nil
	}
	return cfg, err
}

// SaveBaseRates upserts base rates by scale.
func (s *Store) SaveBaseRates(ctx context.Context, rates []payroll.BaseRate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.inTx(ctx, func(tx *sql.Tx) error {
		for _, r := range rates {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO base_rates (scale, hourly_rate) VALUES (?, ?)
				ON CONFLICT(scale) DO UPDATE SET hourly_rate = excluded.hourly_rate`,
				r.Scale, r.HourlyRate.String(),
			)
			if err != nil {
				return fmt.Errorf("failed to save base rate: %w", err)
			}
		}
		return nil
	})
}

// SaveBandRates updates the hourly rate of existing bands by ID.
func (s *Store) SaveBandRates(ctx context.Context, bands []payroll.StudentBand) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.inTx(ctx, func(tx *sql.Tx) error {
		for _, b := range bands {
			if _, err := tx.ExecContext(ctx,
				"UPDATE student_bands SET hourly_rate = ? WHERE id = ?",
				b.HourlyRate.String(), b.ID,
			); err != nil {
				return fmt.Errorf("failed to save band rate: %w", err)
			}
		}
		return nil
	})
}

// ReplaceRateConfig swaps base rates, bands and formula in one transaction.
func (s *Store) ReplaceRateConfig(ctx context.Context, cfg payroll.RateConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.inTx(ctx, func(tx *sql.Tx) error {
		for _, table := range []string{"base_rates", "student_bands"} {
			if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
				return err
			}
		}
		for _, r := range cfg.BaseRates {
			if _, err := tx.ExecContext(ctx,
				"INSERT INTO base_rates (scale, hourly_rate) VALUES (?, ?)",
				r.Scale, r.HourlyRate.String(),
			); err != nil {
				return fmt.Errorf("failed to insert base rate: %w", err)
			}
		}
		for _, b := range cfg.Bands {
			if err := insertBand(ctx, tx, b); err != nil {
				return err
			}
		}
		return upsertFormula(ctx, tx, cfg.Formula)
	})
}

// SaveFormula stores the pricing expression.
func (s *Store) SaveFormula(ctx context.Context, expr string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return upsertFormula(ctx, s.db, expr)
}

func insertBand(ctx context.Context, db execer, b payroll.StudentBand) error {
	_, err := db.ExecContext(ctx,
		"INSERT INTO student_bands (scale, min_students, max_students, hourly_rate) VALUES (?, ?, ?, ?)",
		b.Scale, b.Min, b.Max, b.HourlyRate.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert student band: %w", err)
	}
	return nil
}

func upsertFormula(ctx context.Context, db execer, expr string) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO formula_config (id, expression) VALUES (1, ?)
		ON CONFLICT(id) DO UPDATE SET expression = excluded.expression`,
		expr,
	)
	return err
}

// =============================================================================
// UTILITIES
// =============================================================================

// Reset clears teachers, subjects and statements (for demo scenarios).
// The rate configuration is reseeded, not cleared.
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		tables := []string{"line_items", "statements", "subjects", "teachers", "base_rates", "student_bands", "formula_config"}
		for _, table := range tables {
			if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
				return err
			}
		}
		return nil
	})
	s.mu.Unlock()
	if err != nil {
		return err
	}
	return s.Seed(ctx)
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(timeLayout, s)
	return t
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

func isUniqueConstraintError(err error) bool {
	var sqliteErr sqlite3.Error
	return errors.As(err, &sqliteErr) &&
		(sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey)
}

func isForeignKeyError(err error) bool {
	var sqliteErr sqlite3.Error
	return errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintForeignKey
}
