/*
handlers_test.go - HTTP tests for the API

Tests run the full router over an in-memory SQLite store:
- Teacher, subject, statement and line item endpoints
- Error mapping (400 validation, 404 missing entity)
- Rate configuration endpoints
*/
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/escuelademusica/liquidaciones/config"
	"github.com/escuelademusica/liquidaciones/notify"
	"github.com/escuelademusica/liquidaciones/payroll"
	"github.com/escuelademusica/liquidaciones/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

type sentMessage struct {
	to      notify.Recipient
	message string
}

type captureDispatcher struct {
	mu   sync.Mutex
	sent []sentMessage
}

func (d *captureDispatcher) Send(ctx context.Context, to notify.Recipient, message string, s *notify.Session) (*notify.Session, bool) {
	if notify.PhoneDigits(to.Phone) == "" {
		return s, false
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sent = append(d.sent, sentMessage{to: to, message: message})
	return s, true
}

type testEnv struct {
	t          *testing.T
	handler    *Handler
	router     http.Handler
	dispatcher *captureDispatcher
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	cfg := &config.Config{
		PDFDir:       t.TempDir(),
		BaseURL:      "http://liquidaciones.test",
		InvoiceEmail: "facturas@example.org",
		CORSOrigins:  []string{"*"},
	}
	d := &captureDispatcher{}
	h := NewHandler(store, cfg, d)
	return &testEnv{t: t, handler: h, router: NewRouter(h), dispatcher: d}
}

func (e *testEnv) do(method, path string, body any) *httptest.ResponseRecorder {
	e.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		switch b := body.(type) {
		case string:
			buf.WriteString(b)
		default:
			require.NoError(e.t, json.NewEncoder(&buf).Encode(body))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func (e *testEnv) createTeacher(name string, scale int) TeacherDTO {
	e.t.Helper()
	rec := e.do(http.MethodPost, "/api/teachers", TeacherRequest{
		Name:  name,
		Email: "docente@example.org",
		Phone: "+54 9 11 5555-0000",
		Scale: scale,
	})
	require.Equal(e.t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[TeacherDTO](e.t, rec)
}

func (e *testEnv) createStatement(teacherID int64, month string, year int, copyIDs ...int64) StatementDTO {
	e.t.Helper()
	rec := e.do(http.MethodPost, fmt.Sprintf("/api/teachers/%d/statements", teacherID), CreateStatementRequest{
		Month: month, Year: year, CopyLineItemIDs: copyIDs,
	})
	require.Equal(e.t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[StatementDTO](e.t, rec)
}

func (e *testEnv) addItem(statementID int64, body any) LineItemDTO {
	e.t.Helper()
	rec := e.do(http.MethodPost, fmt.Sprintf("/api/statements/%d/line-items", statementID), body)
	require.Equal(e.t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[LineItemDTO](e.t, rec)
}

func (e *testEnv) loadDemoRates() {
	e.t.Helper()
	rec := e.do(http.MethodPut, "/api/config/rates", demoRates(""))
	require.Equal(e.t, http.StatusOK, rec.Code, rec.Body.String())
}

// =============================================================================
// TEACHERS
// =============================================================================

func TestTeachers_CRUD(t *testing.T) {
	env := newTestEnv(t)

	// GIVEN: Two teachers
	ana := env.createTeacher("  Ana Pérez ", 1)
	env.createTeacher("bruno Díaz", 2)
	assert.Equal(t, "Ana Pérez", ana.Name)

	// WHEN: Listing by letter
	rec := env.do(http.MethodGet, "/api/teachers?letter=b", nil)

	// THEN: Only matching names, case-insensitive
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[[]TeacherDTO](t, rec)
	require.Len(t, list, 1)
	assert.Equal(t, "bruno Díaz", list[0].Name)

	// Update keeps the creation date
	rec = env.do(http.MethodPut, fmt.Sprintf("/api/teachers/%d", ana.ID), TeacherRequest{Name: "Ana María Pérez", Scale: 3})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	updated := decode[TeacherDTO](t, rec)
	assert.Equal(t, 3, updated.Scale)
	assert.Equal(t, ana.CreatedAt, updated.CreatedAt)

	rec = env.do(http.MethodDelete, fmt.Sprintf("/api/teachers/%d", ana.ID), nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(http.MethodGet, fmt.Sprintf("/api/teachers/%d", ana.ID), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTeachers_Validation(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodPost, "/api/teachers", TeacherRequest{Name: "Ana", Email: "not-an-email", Scale: 7})

	require.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decode[ErrorResponse](t, rec)
	assert.Equal(t, "email", resp.Fields["email"])
	assert.Equal(t, "scale", resp.Fields["scale"])

	rec = env.do(http.MethodPost, "/api/teachers", "{not json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(http.MethodGet, "/api/teachers/abc", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(http.MethodPut, "/api/teachers/999", TeacherRequest{Name: "X", Scale: 1})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestValidator_ScaleFollowsPayrollScales(t *testing.T) {
	v := newValidator()

	for _, scale := range payroll.Scales {
		assert.NoError(t, v.Struct(TeacherRequest{Name: "Ana", Scale: scale}), scale)
		assert.NoError(t, v.Struct(BaseRateDTO{Scale: scale}), scale)
	}
	for _, scale := range []int{0, -1, len(payroll.Scales) + 1} {
		assert.Error(t, v.Struct(TeacherRequest{Name: "Ana", Scale: scale}), scale)
		assert.Error(t, v.Struct(BaseRateDTO{Scale: scale}), scale)
	}
}

func TestHourlyRate(t *testing.T) {
	env := newTestEnv(t)
	env.loadDemoRates()
	teacher := env.createTeacher("Ana", 2)

	// Scale 2: base 6000, band 5-8 adds 300 + 100.
	rec := env.do(http.MethodGet, fmt.Sprintf("/api/teachers/%d/hourly-rate?students=6", teacher.ID), nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "6400", decode[HourlyRateDTO](t, rec).HourlyRate.String())

	rec = env.do(http.MethodGet, fmt.Sprintf("/api/teachers/%d/hourly-rate?students=x", teacher.ID), nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// =============================================================================
// SUBJECTS
// =============================================================================

func TestSubjects(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodPost, "/api/subjects", SubjectRequest{Name: " Piano "})
	require.Equal(t, http.StatusCreated, rec.Code)
	piano := decode[SubjectDTO](t, rec)
	assert.Equal(t, "Piano", piano.Name)

	// Adding the same name again is a no-op.
	rec = env.do(http.MethodPost, "/api/subjects", SubjectRequest{Name: "Piano"})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, piano.ID, decode[SubjectDTO](t, rec).ID)

	rec = env.do(http.MethodPost, "/api/subjects", SubjectRequest{Name: "Guitarra"})
	require.Equal(t, http.StatusCreated, rec.Code)
	guitar := decode[SubjectDTO](t, rec)

	// Renaming onto an existing name is rejected.
	rec = env.do(http.MethodPut, fmt.Sprintf("/api/subjects/%d", guitar.ID), SubjectRequest{Name: "Piano"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(http.MethodDelete, fmt.Sprintf("/api/subjects/%d", piano.ID), nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = env.do(http.MethodDelete, fmt.Sprintf("/api/subjects/%d", piano.ID), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(http.MethodGet, "/api/subjects", nil)
	list := decode[[]SubjectDTO](t, rec)
	require.Len(t, list, 1)
	assert.Equal(t, "Guitarra", list[0].Name)
}

// =============================================================================
// STATEMENTS & LINE ITEMS
// =============================================================================

func TestLineItems_ComputedAndManual(t *testing.T) {
	env := newTestEnv(t)
	env.loadDemoRates()
	teacher := env.createTeacher("Ana", 1)
	st := env.createStatement(teacher.ID, "Marzo", 2025)

	// GIVEN: Scale 1, 6 students -> 5000 + 300 per hour
	computed := env.addItem(st.ID, map[string]any{
		"subject": "Lenguaje", "schedule": "Viernes 17:00", "student_count": 6, "hours": "8",
	})
	assert.Equal(t, "5300", computed.HourlyRate.String())
	assert.Equal(t, "42400", computed.Subtotal.String())

	// Manual subtotal derives the rate
	manual := env.addItem(st.ID, map[string]any{
		"subject": "Taller", "schedule": "Lunes 9:00", "student_count": 3, "hours": "4", "manual_subtotal": "1000",
	})
	assert.Equal(t, "250", manual.HourlyRate.String())
	assert.Equal(t, "1000", manual.Subtotal.String())

	// WHEN: Reading the statement
	rec := env.do(http.MethodGet, fmt.Sprintf("/api/statements/%d", st.ID), nil)

	// THEN: Items are chronological and the total is exact
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[StatementDTO](t, rec)
	require.Len(t, got.Items, 2)
	assert.Equal(t, "Taller", got.Items[0].Subject)
	assert.Equal(t, "43400", got.Total.String())

	// Editing reprices
	rec = env.do(http.MethodPut, fmt.Sprintf("/api/line-items/%d", computed.ID), map[string]any{
		"subject": "Lenguaje", "schedule": "Viernes 17:00", "student_count": 6, "hours": "2",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "10600", decode[LineItemDTO](t, rec).Subtotal.String())

	rec = env.do(http.MethodDelete, fmt.Sprintf("/api/line-items/%d", manual.ID), nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = env.do(http.MethodDelete, fmt.Sprintf("/api/line-items/%d", manual.ID), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestLineItems_Validation(t *testing.T) {
	env := newTestEnv(t)
	teacher := env.createTeacher("Ana", 1)
	st := env.createStatement(teacher.ID, "Marzo", 2025)

	rec := env.do(http.MethodPost, fmt.Sprintf("/api/statements/%d/line-items", st.ID), map[string]any{
		"subject": "Piano", "student_count": -1, "hours": "1",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(http.MethodPost, fmt.Sprintf("/api/statements/%d/line-items", st.ID), map[string]any{
		"subject": "Piano", "student_count": 1, "hours": "-1",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(http.MethodPost, "/api/statements/999/line-items", map[string]any{
		"subject": "Piano", "student_count": 1, "hours": "1",
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStatements_CloneFromPrevious(t *testing.T) {
	env := newTestEnv(t)
	env.loadDemoRates()
	teacher := env.createTeacher("Diego", 2)

	// No previous statement yet
	rec := env.do(http.MethodGet, fmt.Sprintf("/api/teachers/%d/statements/previous", teacher.ID), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Nil(t, decode[PreviousStatementResponse](t, rec).Statement)

	// GIVEN: A February statement with two items
	feb := env.createStatement(teacher.ID, "Febrero", 2025)
	keep := env.addItem(feb.ID, map[string]any{"subject": "Violín", "schedule": "Lunes 16:00", "student_count": 1, "hours": "4"})
	env.addItem(feb.ID, map[string]any{"subject": "Orquesta", "schedule": "Sábado 9:00", "student_count": 14, "hours": "8"})

	rec = env.do(http.MethodGet, fmt.Sprintf("/api/teachers/%d/statements/previous", teacher.ID), nil)
	prev := decode[PreviousStatementResponse](t, rec)
	require.NotNil(t, prev.Statement)
	assert.Equal(t, feb.ID, prev.Statement.ID)
	assert.Len(t, prev.Statement.Items, 2)

	// Rates change after February
	rec = env.do(http.MethodPut, "/api/config/base-rates", BaseRatesRequest{Rates: []BaseRateDTO{{Scale: 2, HourlyRate: keep.HourlyRate.Mul(keep.HourlyRate)}}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// WHEN: March copies one item
	mar := env.createStatement(teacher.ID, "Marzo", 2025, keep.ID)

	// THEN: Copied verbatim, not repriced
	require.Len(t, mar.Items, 1)
	assert.NotEqual(t, keep.ID, mar.Items[0].ID)
	assert.Equal(t, mar.ID, mar.Items[0].StatementID)
	assert.Equal(t, keep.Subtotal.String(), mar.Items[0].Subtotal.String())
	assert.Equal(t, keep.HourlyRate.String(), mar.Items[0].HourlyRate.String())
}

func TestStatements_ListFilterAndDelete(t *testing.T) {
	env := newTestEnv(t)
	ana := env.createTeacher("Ana", 1)
	bruno := env.createTeacher("Bruno", 1)

	s1 := env.createStatement(ana.ID, "Marzo", 2025)
	env.addItem(s1.ID, map[string]any{"subject": "Piano", "student_count": 1, "hours": "1", "manual_subtotal": "100.10"})
	s2 := env.createStatement(bruno.ID, "Marzo", 2025)
	env.addItem(s2.ID, map[string]any{"subject": "Coro", "student_count": 1, "hours": "1", "manual_subtotal": "200.20"})
	env.createStatement(ana.ID, "Abril", 2025)

	// Filter by month
	rec := env.do(http.MethodGet, "/api/statements?month=Marzo&year=2025", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[StatementListResponse](t, rec)
	assert.Len(t, list.Statements, 2)
	assert.Equal(t, "300.3", list.GrandTotal.String())

	// Filter by teacher
	rec = env.do(http.MethodGet, fmt.Sprintf("/api/statements?teacher_id=%d", ana.ID), nil)
	assert.Len(t, decode[StatementListResponse](t, rec).Statements, 2)

	rec = env.do(http.MethodGet, "/api/statements?year=abc", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Bulk delete selected
	rec = env.do(http.MethodDelete, "/api/statements", DeleteStatementsRequest{IDs: []int64{s1.ID}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.EqualValues(t, 1, decode[map[string]any](t, rec)["deleted"])

	// Delete all
	rec = env.do(http.MethodDelete, "/api/statements", DeleteStatementsRequest{All: true})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 2, decode[map[string]any](t, rec)["deleted"])

	rec = env.do(http.MethodGet, "/api/statements", nil)
	assert.Empty(t, decode[StatementListResponse](t, rec).Statements)

	rec = env.do(http.MethodDelete, fmt.Sprintf("/api/statements/%d", s2.ID), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStatements_OrphanKeepsListing(t *testing.T) {
	env := newTestEnv(t)
	teacher := env.createTeacher("Federico", 1)
	st := env.createStatement(teacher.ID, "Marzo", 2025)

	env.do(http.MethodDelete, fmt.Sprintf("/api/teachers/%d", teacher.ID), nil)

	rec := env.do(http.MethodGet, fmt.Sprintf("/api/statements/%d", st.ID), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "", decode[StatementDTO](t, rec).TeacherName)
}

// =============================================================================
// CONFIGURATION
// =============================================================================

func TestFormula_InvalidIsStoredWithWarning(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodGet, "/api/config/formula", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "(valor_profesor + valor_alumnos) * horas", decode[FormulaDTO](t, rec).Formula)

	// WHEN: Saving a formula that does not parse
	rec = env.do(http.MethodPut, "/api/config/formula", FormulaDTO{Formula: "valor_profesor ** 2"})

	// THEN: Stored, with a warning
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, decode[FormulaDTO](t, rec).Warning)

	rec = env.do(http.MethodGet, "/api/config/formula", nil)
	assert.Equal(t, "valor_profesor ** 2", decode[FormulaDTO](t, rec).Formula)

	// Items now price at zero
	teacher := env.createTeacher("Ana", 1)
	st := env.createStatement(teacher.ID, "Marzo", 2025)
	item := env.addItem(st.ID, map[string]any{"subject": "Piano", "student_count": 1, "hours": "4"})
	assert.True(t, item.Subtotal.IsZero())
}

func TestRates_ImportExportAndBandUpdate(t *testing.T) {
	env := newTestEnv(t)

	// Seeded configuration has full coverage
	rec := env.do(http.MethodGet, "/api/config/rates", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	seeded := decode[RatesResponse](t, rec)
	assert.Len(t, seeded.Config.BaseRates, 3)
	assert.Len(t, seeded.Config.Bands, 15)
	assert.Empty(t, seeded.Warnings)

	// Import a sheet with a gap
	rec = env.do(http.MethodPut, "/api/config/rates", `{
		"formula": "valor_profesor * horas",
		"base_rates": [{"scale": 1, "hourly_rate": "100"}],
		"bands": [{"scale": 1, "min": 1, "max": 10, "hourly_rate": 5}]
	}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	imported := decode[RatesResponse](t, rec)
	assert.Equal(t, "valor_profesor * horas", imported.Config.Formula)
	require.Len(t, imported.Config.Bands, 1)
	assert.NotEmpty(t, imported.Warnings)

	// Update the band rate by ID
	rec = env.do(http.MethodPut, "/api/config/student-bands", BandRatesRequest{Bands: []BandRateDTO{
		{ID: imported.Config.Bands[0].ID, HourlyRate: imported.Config.Bands[0].HourlyRate.Add(imported.Config.Bands[0].HourlyRate)},
	}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "10", decode[RatesResponse](t, rec).Config.Bands[0].HourlyRate.String())

	// Broken documents are rejected
	rec = env.do(http.MethodPut, "/api/config/rates", `{"bands": [{"scale": 9, "min": 1, "max": 2}]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = env.do(http.MethodPut, "/api/config/base-rates", BaseRatesRequest{Rates: []BaseRateDTO{{Scale: 5}}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUnknownRoute(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(http.MethodGet, "/api/nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
