/*
Package payroll provides the settlement engine for teacher statements.

PURPOSE:
  A music school pays its teachers monthly. Each teacher gets a statement
  (liquidación) listing the classes taught that month. Every line item is
  priced from the teacher's scale, the number of students in the class and
  the hours taught, combined by an admin-editable formula.

KEY CONCEPTS IN THIS FILE (types.go):
  - Teacher: who gets paid, and at which scale
  - Subject: flat catalog of class names
  - Statement: one teacher, one month/year
  - LineItem: one billable class inside a statement
  - StatementView: a statement with its teacher, sorted items and total

DESIGN PRINCIPLES:
  1. Precision: money and hours use decimal.Decimal, totals are exact sums
  2. Snapshot pricing: a line item stores its computed rate and subtotal;
     later rate changes never touch existing items
  3. Ownership: a statement owns its line items (deleted together)

SEE ALSO:
  - rates.go: Rate resolution (scale x student band)
  - settlement.go: Subtotal computation and manual override
  - schedule.go: Weekday/time ordering of line items
  - service.go: Persistence-aware orchestration
*/
package payroll

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SCALES
// =============================================================================

// Scales are the known teacher pay tiers.
var Scales = []int{1, 2, 3}

// ValidScale reports whether scale is a known tier.
func ValidScale(scale int) bool {
	for _, s := range Scales {
		if s == scale {
			return true
		}
	}
	return false
}

// DefaultBandRanges are the student-count bands seeded for every scale.
var DefaultBandRanges = [][2]int{
	{1, 4},
	{5, 8},
	{9, 12},
	{13, 16},
	{17, 99},
}

// =============================================================================
// ENTITIES
// =============================================================================

// Teacher is a person who gets paid through statements.
type Teacher struct {
	ID        int64
	Name      string
	Email     string
	Phone     string
	Scale     int
	CreatedAt time.Time
}

// Subject is an entry of the subject catalog. Line items only copy its name.
type Subject struct {
	ID   int64
	Name string
}

// Statement is a teacher's settlement for one month.
type Statement struct {
	ID        int64
	TeacherID int64
	Month     string
	Year      int
	CreatedAt time.Time
}

// Period returns the "<month> <year>" label.
func (s Statement) Period() string {
	return fmt.Sprintf("%s %d", s.Month, s.Year)
}

// LineItem is one billable class within a statement.
//
// HourlyRate and Subtotal are stored values. They are computed on create or
// edit (or entered manually) and copied verbatim when a statement is cloned.
type LineItem struct {
	ID           int64
	StatementID  int64
	Subject      string
	Schedule     string // "<Weekday> <HH:MM>..."
	Comment      string
	StudentCount int
	Hours        decimal.Decimal
	HourlyRate   decimal.Decimal
	Subtotal     decimal.Decimal
}

// StatementView is a statement ready for display or rendering.
// Items are in chronological order. Teacher is nil when the referenced
// teacher no longer exists.
type StatementView struct {
	Statement
	Teacher *Teacher
	Items   []LineItem
	Total   decimal.Decimal
}

// TeacherName returns the teacher's name, or "" for orphaned statements.
func (v StatementView) TeacherName() string {
	if v.Teacher == nil {
		return ""
	}
	return v.Teacher.Name
}

// NewStatementView sorts items and computes the total.
func NewStatementView(st Statement, teacher *Teacher, items []LineItem) StatementView {
	sorted := SortChronologically(items)
	return StatementView{
		Statement: st,
		Teacher:   teacher,
		Items:     sorted,
		Total:     StatementTotal(sorted),
	}
}

// StatementSummary is a row of the statement listing.
type StatementSummary struct {
	Statement
	TeacherName string
	Total       decimal.Decimal
}

// StatementFilter narrows statement listings. Zero values match everything.
type StatementFilter struct {
	TeacherID int64
	Month     string
	Year      int
}

// IsEmpty reports whether the filter matches every statement.
func (f StatementFilter) IsEmpty() bool {
	return f.TeacherID == 0 && f.Month == "" && f.Year == 0
}
