/*
service.go - Persistence-aware settlement orchestration

PURPOSE:
  Service is the only writer of line item prices. It loads a fresh
  RateConfig snapshot for every computation, prices the item and stores the
  result. Handlers and the admin CLI go through it instead of the Store.

FLOWS:
  AddLineItem / UpdateLineItem:
    1. Load statement and its teacher
    2. Settle (computed or manual)
    3. Persist the priced item

  CreateStatement (clone):
    1. Find the teacher's latest statement BEFORE inserting the new one
    2. Copy the selected items verbatim (rate and subtotal included)
    3. Insert statement + items atomically

SEE ALSO:
  - settlement.go: pricing rules
  - store.go: persistence contract
*/
package payroll

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Service orchestrates payroll operations over a Store.
type Service struct {
	Store Store
	Now   func() time.Time
}

// NewService creates a Service using the wall clock.
func NewService(store Store) *Service {
	return &Service{Store: store, Now: time.Now}
}

// LineItemInput carries the editable fields of a line item.
type LineItemInput struct {
	Subject        string
	Schedule       string
	Comment        string
	StudentCount   int
	Hours          decimal.Decimal
	ManualSubtotal *decimal.Decimal
}

func (in LineItemInput) validate() error {
	if in.StudentCount < 0 {
		return invalid("student_count", "must not be negative, got %d", in.StudentCount)
	}
	if in.Hours.IsNegative() {
		return invalid("hours", "must not be negative, got %s", in.Hours)
	}
	return nil
}

// =============================================================================
// TEACHERS & SUBJECTS
// =============================================================================

// Teacher returns a teacher or ErrTeacherNotFound.
func (s *Service) Teacher(ctx context.Context, id int64) (Teacher, error) {
	t, err := s.Store.GetTeacher(ctx, id)
	if err != nil {
		return Teacher{}, err
	}
	if t == nil {
		return Teacher{}, fmt.Errorf("%w: %d", ErrTeacherNotFound, id)
	}
	return *t, nil
}

// SaveTeacher validates and persists a teacher.
func (s *Service) SaveTeacher(ctx context.Context, t Teacher) (Teacher, error) {
	t.Name = strings.TrimSpace(t.Name)
	if t.Name == "" {
		return Teacher{}, invalid("name", "must not be empty")
	}
	if !ValidScale(t.Scale) {
		return Teacher{}, invalid("scale", "unknown scale %d", t.Scale)
	}
	if t.ID != 0 {
		existing, err := s.Teacher(ctx, t.ID)
		if err != nil {
			return Teacher{}, err
		}
		t.CreatedAt = existing.CreatedAt
	} else if t.CreatedAt.IsZero() {
		t.CreatedAt = s.Now()
	}
	return s.Store.SaveTeacher(ctx, t)
}

// DeleteTeacher removes a teacher. Its statements are kept.
func (s *Service) DeleteTeacher(ctx context.Context, id int64) error {
	if _, err := s.Teacher(ctx, id); err != nil {
		return err
	}
	return s.Store.DeleteTeacher(ctx, id)
}

// AddSubject adds a subject to the catalog. The name is trimmed; an empty
// name is rejected. Adding an existing name returns the existing subject and
// created=false.
func (s *Service) AddSubject(ctx context.Context, name string) (Subject, bool, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Subject{}, false, invalid("name", "must not be empty")
	}
	existing, err := s.Store.FindSubject(ctx, name)
	if err != nil {
		return Subject{}, false, err
	}
	if existing != nil {
		return *existing, false, nil
	}
	created, err := s.Store.SaveSubject(ctx, Subject{Name: name})
	if err != nil {
		return Subject{}, false, err
	}
	return created, true, nil
}

// RenameSubject changes a subject's name. Line items keep the old label.
func (s *Service) RenameSubject(ctx context.Context, id int64, name string) (Subject, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Subject{}, invalid("name", "must not be empty")
	}
	existing, err := s.Store.GetSubject(ctx, id)
	if err != nil {
		return Subject{}, err
	}
	if existing == nil {
		return Subject{}, fmt.Errorf("%w: %d", ErrSubjectNotFound, id)
	}
	return s.Store.SaveSubject(ctx, Subject{ID: id, Name: name})
}

// DeleteSubject removes a subject from the catalog.
func (s *Service) DeleteSubject(ctx context.Context, id int64) error {
	existing, err := s.Store.GetSubject(ctx, id)
	if err != nil {
		return err
	}
	if existing == nil {
		return fmt.Errorf("%w: %d", ErrSubjectNotFound, id)
	}
	return s.Store.DeleteSubject(ctx, id)
}

// =============================================================================
// PRICING
// =============================================================================

// HourlyRate is the display rate for a teacher and class size.
func (s *Service) HourlyRate(ctx context.Context, teacherID int64, studentCount int) (decimal.Decimal, error) {
	t, err := s.Teacher(ctx, teacherID)
	if err != nil {
		return decimal.Zero, err
	}
	cfg, err := s.Store.LoadRateConfig(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	return cfg.EffectiveHourlyRate(t.Scale, studentCount), nil
}

// price settles a line item for a statement. Manual items do not need a
// teacher; computed items do.
func (s *Service) price(ctx context.Context, st Statement, in LineItemInput) (Settlement, error) {
	if in.ManualSubtotal != nil {
		return ManualSettlement(*in.ManualSubtotal, in.Hours), nil
	}
	t, err := s.Teacher(ctx, st.TeacherID)
	if err != nil {
		return Settlement{}, err
	}
	cfg, err := s.Store.LoadRateConfig(ctx)
	if err != nil {
		return Settlement{}, err
	}
	return cfg.Settle(t.Scale, LineInput{StudentCount: in.StudentCount, Hours: in.Hours}), nil
}

func (s *Service) statement(ctx context.Context, id int64) (Statement, error) {
	st, err := s.Store.GetStatement(ctx, id)
	if err != nil {
		return Statement{}, err
	}
	if st == nil {
		return Statement{}, fmt.Errorf("%w: %d", ErrStatementNotFound, id)
	}
	return *st, nil
}

// AddLineItem prices and appends a line item to a statement.
func (s *Service) AddLineItem(ctx context.Context, statementID int64, in LineItemInput) (LineItem, error) {
	if err := in.validate(); err != nil {
		return LineItem{}, err
	}
	st, err := s.statement(ctx, statementID)
	if err != nil {
		return LineItem{}, err
	}
	priced, err := s.price(ctx, st, in)
	if err != nil {
		return LineItem{}, err
	}
	return s.Store.SaveLineItem(ctx, LineItem{
		StatementID:  st.ID,
		Subject:      in.Subject,
		Schedule:     in.Schedule,
		Comment:      in.Comment,
		StudentCount: in.StudentCount,
		Hours:        in.Hours,
		HourlyRate:   priced.HourlyRate,
		Subtotal:     priced.Subtotal,
	})
}

// UpdateLineItem replaces a line item's fields and re-prices it against the
// current rate configuration.
func (s *Service) UpdateLineItem(ctx context.Context, id int64, in LineItemInput) (LineItem, error) {
	if err := in.validate(); err != nil {
		return LineItem{}, err
	}
	item, err := s.Store.GetLineItem(ctx, id)
	if err != nil {
		return LineItem{}, err
	}
	if item == nil {
		return LineItem{}, fmt.Errorf("%w: %d", ErrLineItemNotFound, id)
	}
	st, err := s.statement(ctx, item.StatementID)
	if err != nil {
		return LineItem{}, err
	}
	priced, err := s.price(ctx, st, in)
	if err != nil {
		return LineItem{}, err
	}

	updated := *item
	updated.Subject = in.Subject
	updated.Schedule = in.Schedule
	updated.Comment = in.Comment
	updated.StudentCount = in.StudentCount
	updated.Hours = in.Hours
	updated.HourlyRate = priced.HourlyRate
	updated.Subtotal = priced.Subtotal
	return s.Store.SaveLineItem(ctx, updated)
}

// DeleteLineItem removes a line item.
func (s *Service) DeleteLineItem(ctx context.Context, id int64) error {
	item, err := s.Store.GetLineItem(ctx, id)
	if err != nil {
		return err
	}
	if item == nil {
		return fmt.Errorf("%w: %d", ErrLineItemNotFound, id)
	}
	return s.Store.DeleteLineItem(ctx, id)
}

// =============================================================================
// STATEMENTS
// =============================================================================

// CreateStatement creates a statement for a teacher. Items of the teacher's
// latest statement whose IDs appear in copyIDs are copied into it verbatim;
// IDs that do not belong to that statement are ignored.
func (s *Service) CreateStatement(ctx context.Context, teacherID int64, month string, year int, copyIDs []int64) (StatementView, error) {
	month = strings.TrimSpace(month)
	if month == "" {
		return StatementView{}, invalid("month", "must not be empty")
	}
	if year < 1900 || year > 9999 {
		return StatementView{}, invalid("year", "out of range: %d", year)
	}
	t, err := s.Teacher(ctx, teacherID)
	if err != nil {
		return StatementView{}, err
	}

	var cloned []LineItem
	if len(copyIDs) > 0 {
		prev, err := s.Store.LatestStatement(ctx, teacherID)
		if err != nil {
			return StatementView{}, err
		}
		if prev != nil {
			items, err := s.Store.ListLineItems(ctx, prev.ID)
			if err != nil {
				return StatementView{}, err
			}
			cloned = CloneLineItems(items, copyIDs)
		}
	}

	st, items, err := s.Store.CreateStatement(ctx, Statement{
		TeacherID: teacherID,
		Month:     month,
		Year:      year,
		CreatedAt: s.Now(),
	}, cloned)
	if err != nil {
		return StatementView{}, err
	}
	return NewStatementView(st, &t, items), nil
}

// PreviousStatement returns the teacher's latest statement with its items,
// or nil when the teacher has none.
func (s *Service) PreviousStatement(ctx context.Context, teacherID int64) (*StatementView, error) {
	t, err := s.Teacher(ctx, teacherID)
	if err != nil {
		return nil, err
	}
	prev, err := s.Store.LatestStatement(ctx, teacherID)
	if err != nil || prev == nil {
		return nil, err
	}
	items, err := s.Store.ListLineItems(ctx, prev.ID)
	if err != nil {
		return nil, err
	}
	view := NewStatementView(*prev, &t, items)
	return &view, nil
}

// StatementView loads a statement with its teacher, sorted items and total.
func (s *Service) StatementView(ctx context.Context, id int64) (StatementView, error) {
	st, err := s.statement(ctx, id)
	if err != nil {
		return StatementView{}, err
	}
	return s.view(ctx, st)
}

func (s *Service) view(ctx context.Context, st Statement) (StatementView, error) {
	teacher, err := s.Store.GetTeacher(ctx, st.TeacherID)
	if err != nil {
		return StatementView{}, err
	}
	items, err := s.Store.ListLineItems(ctx, st.ID)
	if err != nil {
		return StatementView{}, err
	}
	return NewStatementView(st, teacher, items), nil
}

// StatementViews loads several statements in the given order. IDs that
// match no statement are returned in missing, in request order.
func (s *Service) StatementViews(ctx context.Context, ids []int64) (views []StatementView, missing []int64, err error) {
	views = make([]StatementView, 0, len(ids))
	for _, id := range ids {
		st, err := s.Store.GetStatement(ctx, id)
		if err != nil {
			return nil, nil, err
		}
		if st == nil {
			missing = append(missing, id)
			continue
		}
		v, err := s.view(ctx, *st)
		if err != nil {
			return nil, nil, err
		}
		views = append(views, v)
	}
	return views, missing, nil
}

// FilteredViews loads every statement matching filter.
func (s *Service) FilteredViews(ctx context.Context, filter StatementFilter) ([]StatementView, error) {
	sts, err := s.Store.ListStatements(ctx, filter)
	if err != nil {
		return nil, err
	}
	views := make([]StatementView, 0, len(sts))
	for _, st := range sts {
		v, err := s.view(ctx, st)
		if err != nil {
			return nil, err
		}
		views = append(views, v)
	}
	return views, nil
}

// ListStatements returns listing rows with per-statement totals and the
// grand total of all rows.
func (s *Service) ListStatements(ctx context.Context, filter StatementFilter) ([]StatementSummary, decimal.Decimal, error) {
	views, err := s.FilteredViews(ctx, filter)
	if err != nil {
		return nil, decimal.Zero, err
	}
	rows := make([]StatementSummary, len(views))
	grand := decimal.Zero
	for i, v := range views {
		rows[i] = StatementSummary{Statement: v.Statement, TeacherName: v.TeacherName(), Total: v.Total}
		grand = grand.Add(v.Total)
	}
	return rows, grand, nil
}

// DeleteStatement removes one statement and its line items.
func (s *Service) DeleteStatement(ctx context.Context, id int64) error {
	if _, err := s.statement(ctx, id); err != nil {
		return err
	}
	_, err := s.Store.DeleteStatements(ctx, []int64{id})
	return err
}

// DeleteStatements removes the given statements. With all set, every
// statement is removed and ids is ignored.
func (s *Service) DeleteStatements(ctx context.Context, ids []int64, all bool) (int, error) {
	if all {
		return s.Store.DeleteAllStatements(ctx)
	}
	if len(ids) == 0 {
		return 0, nil
	}
	return s.Store.DeleteStatements(ctx, ids)
}

// =============================================================================
// RATE CONFIGURATION
// =============================================================================

// RateConfig returns the current rate configuration snapshot.
func (s *Service) RateConfig(ctx context.Context) (RateConfig, error) {
	return s.Store.LoadRateConfig(ctx)
}

// SaveBaseRates updates base rates. Unknown scales are rejected.
func (s *Service) SaveBaseRates(ctx context.Context, rates []BaseRate) error {
	for _, r := range rates {
		if !ValidScale(r.Scale) {
			return invalid("scale", "unknown scale %d", r.Scale)
		}
		if r.HourlyRate.IsNegative() {
			return invalid("hourly_rate", "must not be negative for scale %d", r.Scale)
		}
	}
	return s.Store.SaveBaseRates(ctx, rates)
}

// SaveBandRates updates the hourly rate of existing bands.
func (s *Service) SaveBandRates(ctx context.Context, bands []StudentBand) error {
	for _, b := range bands {
		if b.HourlyRate.IsNegative() {
			return invalid("hourly_rate", "must not be negative for band %d", b.ID)
		}
	}
	return s.Store.SaveBandRates(ctx, bands)
}

// ReplaceRateConfig validates and swaps the whole rate configuration.
func (s *Service) ReplaceRateConfig(ctx context.Context, cfg RateConfig) error {
	if err := ValidateRateConfig(cfg); err != nil {
		return err
	}
	return s.Store.ReplaceRateConfig(ctx, cfg)
}

// SaveFormula stores a formula expression. Syntax is not checked here; a
// broken formula prices items at zero.
func (s *Service) SaveFormula(ctx context.Context, expr string) error {
	return s.Store.SaveFormula(ctx, strings.TrimSpace(expr))
}

// ValidateRateConfig checks structural rules: known scales, ordered band
// bounds, no negative rates. Coverage gaps are allowed (see Gaps).
func ValidateRateConfig(cfg RateConfig) error {
	for _, r := range cfg.BaseRates {
		if !ValidScale(r.Scale) {
			return invalid("base_rates", "unknown scale %d", r.Scale)
		}
		if r.HourlyRate.IsNegative() {
			return invalid("base_rates", "negative rate for scale %d", r.Scale)
		}
	}
	for _, b := range cfg.Bands {
		if !ValidScale(b.Scale) {
			return invalid("bands", "unknown scale %d", b.Scale)
		}
		if b.Min < 0 || b.Max < b.Min {
			return invalid("bands", "bad range %d-%d for scale %d", b.Min, b.Max, b.Scale)
		}
		if b.HourlyRate.IsNegative() {
			return invalid("bands", "negative rate for %d-%d", b.Min, b.Max)
		}
	}
	return nil
}
