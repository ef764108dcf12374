/*
store.go - Persistence interface for the payroll domain

PURPOSE:
  Defines the boundary between the settlement logic and the database.
  Implementations:
  - store/sqlite/sqlite.go: production SQLite
  - payroll/store/memory.go: in-memory, for tests and demos

NOT-FOUND CONVENTION:
  Getters return (nil, nil) when the row does not exist. The Service turns
  that into the matching sentinel error (ErrTeacherNotFound, ...).

OWNERSHIP:
  Deleting a statement deletes its line items. Deleting a teacher does NOT
  delete its statements; those become orphans with an empty teacher name.

ATOMICITY:
  CreateStatement writes the statement and its initial (cloned) items in
  one transaction. Rate configuration writes replace whole tables at once.
*/
package payroll

import "context"

// =============================================================================
// STORE - Interface for payroll persistence
// =============================================================================

// Store persists teachers, subjects, statements, line items and rates.
type Store interface {
	TeacherStore
	SubjectStore
	StatementStore
	RateStore
}

// TeacherStore manages teachers.
type TeacherStore interface {
	// SaveTeacher inserts (ID == 0) or updates a teacher and returns it with its ID.
	SaveTeacher(ctx context.Context, t Teacher) (Teacher, error)
	GetTeacher(ctx context.Context, id int64) (*Teacher, error)
	// ListTeachers returns teachers ordered by name, case-insensitively.
	// A non-empty prefix keeps names starting with it, case-insensitively.
	ListTeachers(ctx context.Context, prefix string) ([]Teacher, error)
	DeleteTeacher(ctx context.Context, id int64) error
}

// SubjectStore manages the subject catalog.
type SubjectStore interface {
	// SaveSubject inserts (ID == 0) or renames a subject.
	// Returns ErrDuplicateSubject when the name is taken by another subject.
	SaveSubject(ctx context.Context, s Subject) (Subject, error)
	GetSubject(ctx context.Context, id int64) (*Subject, error)
	FindSubject(ctx context.Context, name string) (*Subject, error)
	ListSubjects(ctx context.Context) ([]Subject, error)
	DeleteSubject(ctx context.Context, id int64) error
}

// StatementStore manages statements and their line items.
type StatementStore interface {
	// CreateStatement inserts a statement and its initial items atomically.
	CreateStatement(ctx context.Context, st Statement, items []LineItem) (Statement, []LineItem, error)
	GetStatement(ctx context.Context, id int64) (*Statement, error)
	// LatestStatement returns the teacher's most recently created statement.
	LatestStatement(ctx context.Context, teacherID int64) (*Statement, error)
	// ListStatements returns matching statements, newest first.
	ListStatements(ctx context.Context, filter StatementFilter) ([]Statement, error)
	// DeleteStatements deletes statements and their line items. Unknown IDs are ignored.
	DeleteStatements(ctx context.Context, ids []int64) (int, error)
	DeleteAllStatements(ctx context.Context) (int, error)

	// SaveLineItem inserts (ID == 0) or updates a line item.
	SaveLineItem(ctx context.Context, item LineItem) (LineItem, error)
	GetLineItem(ctx context.Context, id int64) (*LineItem, error)
	// ListLineItems returns a statement's items in insertion order.
	ListLineItems(ctx context.Context, statementID int64) ([]LineItem, error)
	DeleteLineItem(ctx context.Context, id int64) error
}

// RateStore manages the pricing configuration.
type RateStore interface {
	LoadRateConfig(ctx context.Context) (RateConfig, error)
	// SaveBaseRates upserts base rates by scale.
	SaveBaseRates(ctx context.Context, rates []BaseRate) error
	// SaveBandRates updates the hourly rate of existing bands by ID.
	SaveBandRates(ctx context.Context, bands []StudentBand) error
	// ReplaceRateConfig swaps the whole configuration in one transaction.
	ReplaceRateConfig(ctx context.Context, cfg RateConfig) error
	SaveFormula(ctx context.Context, expr string) error
}
