// Package store provides payroll.Store implementations.
package store

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/escuelademusica/liquidaciones/formula"
	"github.com/escuelademusica/liquidaciones/payroll"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu         sync.RWMutex
	teachers   map[int64]payroll.Teacher
	subjects   map[int64]payroll.Subject
	statements map[int64]payroll.Statement
	items      map[int64]payroll.LineItem
	rates      payroll.RateConfig
	nextID     int64
}

// NewMemory returns a store seeded with the default rate configuration.
func NewMemory() *Memory {
	m := &Memory{
		teachers:   make(map[int64]payroll.Teacher),
		subjects:   make(map[int64]payroll.Subject),
		statements: make(map[int64]payroll.Statement),
		items:      make(map[int64]payroll.LineItem),
		rates:      payroll.DefaultRateConfig(formula.Default),
	}
	for i := range m.rates.Bands {
		m.rates.Bands[i].ID = m.newID()
	}
	return m
}

func (m *Memory) newID() int64 {
	m.nextID++
	return m.nextID
}

// =============================================================================
// TEACHERS
// =============================================================================

func (m *Memory) SaveTeacher(_ context.Context, t payroll.Teacher) (payroll.Teacher, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t.ID == 0 {
		t.ID = m.newID()
	}
	m.teachers[t.ID] = t
	return t, nil
}

func (m *Memory) GetTeacher(_ context.Context, id int64) (*payroll.Teacher, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.teachers[id]
	if !ok {
		return nil, nil
	}
	return &t, nil
}

func (m *Memory) ListTeachers(_ context.Context, prefix string) ([]payroll.Teacher, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	prefix = strings.ToLower(prefix)
	var out []payroll.Teacher
	for _, t := range m.teachers {
		if prefix == "" || strings.HasPrefix(strings.ToLower(t.Name), prefix) {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := strings.ToLower(out[i].Name), strings.ToLower(out[j].Name)
		if a != b {
			return a < b
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *Memory) DeleteTeacher(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.teachers, id)
	return nil
}

// =============================================================================
// SUBJECTS
// =============================================================================

func (m *Memory) SaveSubject(_ context.Context, s payroll.Subject) (payroll.Subject, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.subjects {
		if existing.Name == s.Name && existing.ID != s.ID {
			return payroll.Subject{}, payroll.ErrDuplicateSubject
		}
	}
	if s.ID == 0 {
		s.ID = m.newID()
	}
	m.subjects[s.ID] = s
	return s, nil
}

func (m *Memory) GetSubject(_ context.Context, id int64) (*payroll.Subject, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.subjects[id]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (m *Memory) FindSubject(_ context.Context, name string) (*payroll.Subject, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, s := range m.subjects {
		if s.Name == name {
			return &s, nil
		}
	}
	return nil, nil
}

func (m *Memory) ListSubjects(_ context.Context) ([]payroll.Subject, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]payroll.Subject, 0, len(m.subjects))
	for _, s := range m.subjects {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *Memory) DeleteSubject(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.subjects, id)
	return nil
}

// =============================================================================
// STATEMENTS & LINE ITEMS
// =============================================================================

func (m *Memory) CreateStatement(_ context.Context, st payroll.Statement, items []payroll.LineItem) (payroll.Statement, []payroll.LineItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st.ID = m.newID()
	m.statements[st.ID] = st
	saved := make([]payroll.LineItem, len(items))
	for i, it := range items {
		it.ID = m.newID()
		it.StatementID = st.ID
		m.items[it.ID] = it
		saved[i] = it
	}
	return st, saved, nil
}

func (m *Memory) GetStatement(_ context.Context, id int64) (*payroll.Statement, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	st, ok := m.statements[id]
	if !ok {
		return nil, nil
	}
	return &st, nil
}

func (m *Memory) LatestStatement(_ context.Context, teacherID int64) (*payroll.Statement, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var latest *payroll.Statement
	for _, st := range m.statements {
		if st.TeacherID != teacherID {
			continue
		}
		if latest == nil || newer(st, *latest) {
			st := st
			latest = &st
		}
	}
	return latest, nil
}

// newer orders by creation time, then ID for statements created in the same instant.
func newer(a, b payroll.Statement) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.ID > b.ID
}

func (m *Memory) ListStatements(_ context.Context, f payroll.StatementFilter) ([]payroll.Statement, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []payroll.Statement
	for _, st := range m.statements {
		if f.TeacherID != 0 && st.TeacherID != f.TeacherID {
			continue
		}
		if f.Month != "" && st.Month != f.Month {
			continue
		}
		if f.Year != 0 && st.Year != f.Year {
			continue
		}
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return newer(out[i], out[j]) })
	return out, nil
}

func (m *Memory) DeleteStatements(_ context.Context, ids []int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, id := range ids {
		if _, ok := m.statements[id]; !ok {
			continue
		}
		m.deleteStatementLocked(id)
		n++
	}
	return n, nil
}

func (m *Memory) DeleteAllStatements(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := len(m.statements)
	for id := range m.statements {
		m.deleteStatementLocked(id)
	}
	return n, nil
}

func (m *Memory) deleteStatementLocked(id int64) {
	delete(m.statements, id)
	for itemID, it := range m.items {
		if it.StatementID == id {
			delete(m.items, itemID)
		}
	}
}

func (m *Memory) SaveLineItem(_ context.Context, item payroll.LineItem) (payroll.LineItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.statements[item.StatementID]; !ok {
		return payroll.LineItem{}, payroll.ErrStatementNotFound
	}
	if item.ID == 0 {
		item.ID = m.newID()
	}
	m.items[item.ID] = item
	return item, nil
}

func (m *Memory) GetLineItem(_ context.Context, id int64) (*payroll.LineItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	it, ok := m.items[id]
	if !ok {
		return nil, nil
	}
	return &it, nil
}

func (m *Memory) ListLineItems(_ context.Context, statementID int64) ([]payroll.LineItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []payroll.LineItem
	for _, it := range m.items {
		if it.StatementID == statementID {
			out = append(out, it)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) DeleteLineItem(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, id)
	return nil
}

// =============================================================================
// RATE CONFIGURATION
// =============================================================================

func (m *Memory) LoadRateConfig(_ context.Context) (payroll.RateConfig, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return payroll.RateConfig{
		BaseRates: append([]payroll.BaseRate(nil), m.rates.BaseRates...),
		Bands:     append([]payroll.StudentBand(nil), m.rates.Bands...),
		Formula:   m.rates.Formula,
	}, nil
}

func (m *Memory) SaveBaseRates(_ context.Context, rates []payroll.BaseRate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range rates {
		found := false
		for i := range m.rates.BaseRates {
			if m.rates.BaseRates[i].Scale == r.Scale {
				m.rates.BaseRates[i].HourlyRate = r.HourlyRate
				found = true
			}
		}
		if !found {
			m.rates.BaseRates = append(m.rates.BaseRates, r)
		}
	}
	return nil
}

func (m *Memory) SaveBandRates(_ context.Context, bands []payroll.StudentBand) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, b := range bands {
		for i := range m.rates.Bands {
			if m.rates.Bands[i].ID == b.ID {
				m.rates.Bands[i].HourlyRate = b.HourlyRate
			}
		}
	}
	return nil
}

func (m *Memory) ReplaceRateConfig(_ context.Context, cfg payroll.RateConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	bands := make([]payroll.StudentBand, len(cfg.Bands))
	copy(bands, cfg.Bands)
	for i := range bands {
		bands[i].ID = m.newID()
	}
	sort.SliceStable(bands, func(i, j int) bool {
		if bands[i].Scale != bands[j].Scale {
			return bands[i].Scale < bands[j].Scale
		}
		return bands[i].Min < bands[j].Min
	})
	m.rates = payroll.RateConfig{
		BaseRates: append([]payroll.BaseRate(nil), cfg.BaseRates...),
		Bands:     bands,
		Formula:   cfg.Formula,
	}
	return nil
}

func (m *Memory) SaveFormula(_ context.Context, expr string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rates.Formula = expr
	return nil
}
