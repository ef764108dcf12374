/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the database with realistic
	data for demos. Each scenario sets a rate sheet, creates teachers and
	subjects, and prices line items through payroll.Service exactly as the
	UI would.

AVAILABLE SCENARIOS:

	escuela:            Three teachers (one per scale), a March statement each
	clonar-mes:         A February statement ready to be cloned into March
	tarifa-manual:      Manual subtotals next to computed ones
	profesor-eliminado: A statement whose teacher was deleted

HOW SCENARIOS WORK:
 1. Reset database (clear all data, reseed defaults)
 2. Replace the rate configuration via the rate factory
 3. Create subjects and teachers
 4. Create statements and add line items

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "escuela"}

NOTE:

	Scenarios reset the database. Only use in development/demo environments.

SEE ALSO:
  - handlers.go: Service wiring
  - factory/rates.go: Rate document conversion
*/
package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/escuelademusica/liquidaciones/factory"
	"github.com/escuelademusica/liquidaciones/formula"
	"github.com/escuelademusica/liquidaciones/payroll"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "escuela",
		Name:        "Escuela",
		Description: "Three teachers, one per scale, with a March statement each",
	},
	{
		ID:          "clonar-mes",
		Name:        "Clonar mes",
		Description: "A February statement ready to be copied into March",
	},
	{
		ID:          "tarifa-manual",
		Name:        "Tarifa manual",
		Description: "Manually entered subtotals next to computed ones",
	},
	{
		ID:          "profesor-eliminado",
		Name:        "Profesor eliminado",
		Description: "A statement whose teacher no longer exists; exports skip it",
	},
}

// ListScenarios returns available scenarios.
// GET /api/scenarios
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
// GET /api/scenarios/current
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	current := h.currentScenario
	h.mu.Unlock()

	for _, s := range scenarios {
		if s.ID == current {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, nil)
}

// LoadScenario resets the database and loads a predefined scenario.
// POST /api/scenarios/load
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	loader, ok := h.scenarioLoaders()[req.ScenarioID]
	if !ok {
		writeError(w, http.StatusBadRequest, "Unknown scenario", nil)
		return
	}

	ctx := r.Context()

	h.mu.Lock()
	defer h.mu.Unlock()
	h.currentScenario = ""

	if err := h.Store.Reset(ctx); err != nil {
		h.fail(w, "Failed to reset database", err)
		return
	}
	if err := loader(ctx); err != nil {
		h.fail(w, fmt.Sprintf("Failed to load scenario %s", req.ScenarioID), err)
		return
	}

	h.currentScenario = req.ScenarioID
	writeJSON(w, http.StatusOK, map[string]string{"status": "loaded", "scenario": req.ScenarioID})
}

// ResetDatabase clears all data and restores the default configuration.
// POST /api/scenarios/reset
func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.Store.Reset(r.Context()); err != nil {
		h.fail(w, "Failed to reset database", err)
		return
	}
	h.currentScenario = ""
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

func (h *Handler) scenarioLoaders() map[string]func(context.Context) error {
	return map[string]func(context.Context) error{
		"escuela":            h.loadSchoolScenario,
		"clonar-mes":         h.loadCloneScenario,
		"tarifa-manual":      h.loadManualRateScenario,
		"profesor-eliminado": h.loadDeletedTeacherScenario,
	}
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

type demoItem struct {
	subject  string
	schedule string
	comment  string
	students int
	hours    string
	manual   string
}

func (h *Handler) loadSchoolScenario(ctx context.Context) error {
	if err := h.applyDemoRates(ctx, formula.Default); err != nil {
		return err
	}
	if err := h.addSubjects(ctx, "Piano", "Guitarra", "Lenguaje Musical", "Coro", "Ensamble"); err != nil {
		return err
	}

	teachers := []struct {
		name, email, phone string
		scale              int
		items              []demoItem
	}{
		{"Ana Pérez", "ana@example.org", "+54 9 11 5555-0101", 1, []demoItem{
			{subject: "Piano", schedule: "Miércoles 18:00", students: 1, hours: "4"},
			{subject: "Piano", schedule: "Lunes 9:30", students: 2, hours: "4"},
			{subject: "Lenguaje Musical", schedule: "Viernes 17:00", comment: "Nivel 1", students: 6, hours: "8"},
		}},
		{"Bruno Díaz", "bruno@example.org", "+54 9 11 5555-0102", 2, []demoItem{
			{subject: "Guitarra", schedule: "Martes 19:00", students: 3, hours: "4"},
			{subject: "Ensamble", schedule: "Sábado 10:00", comment: "Rock", students: 9, hours: "6"},
		}},
		{"Carla Gómez", "carla@example.org", "+54 9 11 5555-0103", 3, []demoItem{
			{subject: "Coro", schedule: "Jueves 20:00", students: 18, hours: "8"},
			{subject: "Coro", schedule: "Domingo 11:00", comment: "Ensayo general", students: 22, hours: "2"},
		}},
	}

	for _, t := range teachers {
		teacher, err := h.Service.SaveTeacher(ctx, payroll.Teacher{Name: t.name, Email: t.email, Phone: t.phone, Scale: t.scale})
		if err != nil {
			return err
		}
		if _, err := h.createDemoStatement(ctx, teacher.ID, "Marzo", 2025, t.items); err != nil {
			return err
		}
	}
	return nil
}

func (h *Handler) loadCloneScenario(ctx context.Context) error {
	if err := h.applyDemoRates(ctx, formula.Default); err != nil {
		return err
	}
	if err := h.addSubjects(ctx, "Violín", "Orquesta"); err != nil {
		return err
	}
	teacher, err := h.Service.SaveTeacher(ctx, payroll.Teacher{
		Name: "Diego Fernández", Email: "diego@example.org", Phone: "+54 9 11 5555-0104", Scale: 2,
	})
	if err != nil {
		return err
	}
	_, err = h.createDemoStatement(ctx, teacher.ID, "Febrero", 2025, []demoItem{
		{subject: "Violín", schedule: "Lunes 16:00", students: 1, hours: "4"},
		{subject: "Violín", schedule: "Lunes 17:00", students: 2, hours: "4"},
		{subject: "Orquesta", schedule: "Sábado 9:00", comment: "Infantil", students: 14, hours: "8"},
		{subject: "Orquesta", schedule: "Consultar", comment: "Ensayos extra", students: 14, hours: "2"},
	})
	return err
}

func (h *Handler) loadManualRateScenario(ctx context.Context) error {
	// Ten percent on top of the default formula.
	if err := h.applyDemoRates(ctx, "(valor_profesor + valor_alumnos) * horas * 1.1"); err != nil {
		return err
	}
	if err := h.addSubjects(ctx, "Batería", "Taller de Grabación"); err != nil {
		return err
	}
	teacher, err := h.Service.SaveTeacher(ctx, payroll.Teacher{
		Name: "Elena Ruiz", Email: "elena@example.org", Phone: "+54 9 11 5555-0105", Scale: 1,
	})
	if err != nil {
		return err
	}
	_, err = h.createDemoStatement(ctx, teacher.ID, "Abril", 2025, []demoItem{
		{subject: "Batería", schedule: "Martes 15:00", students: 1, hours: "4"},
		{subject: "Taller de Grabación", schedule: "Jueves 18:30", comment: "Monto acordado", students: 5, hours: "6", manual: "45000"},
		{subject: "Taller de Grabación", schedule: "Viernes 18:30", comment: "Sin horas", students: 5, hours: "0", manual: "12000"},
	})
	return err
}

func (h *Handler) loadDeletedTeacherScenario(ctx context.Context) error {
	if err := h.loadSchoolScenario(ctx); err != nil {
		return err
	}
	teacher, err := h.Service.SaveTeacher(ctx, payroll.Teacher{Name: "Federico Sosa", Phone: "+54 9 11 5555-0106", Scale: 1})
	if err != nil {
		return err
	}
	if _, err := h.createDemoStatement(ctx, teacher.ID, "Marzo", 2025, []demoItem{
		{subject: "Guitarra", schedule: "Miércoles 10:00", students: 2, hours: "4"},
	}); err != nil {
		return err
	}
	return h.Service.DeleteTeacher(ctx, teacher.ID)
}

// =============================================================================
// HELPERS
// =============================================================================

// demoRates builds a rate document: base rates grow with the scale, band
// rates with class size.
func demoRates(formulaExpr string) factory.RateConfigJSON {
	doc := factory.RateConfigJSON{Formula: formulaExpr}
	for _, scale := range payroll.Scales {
		doc.BaseRates = append(doc.BaseRates, factory.BaseRateJSON{
			Scale:      scale,
			HourlyRate: decimal.NewFromInt(int64(4000 + 1000*scale)),
		})
		for i, band := range payroll.DefaultBandRanges {
			doc.Bands = append(doc.Bands, factory.BandJSON{
				Scale:      scale,
				Min:        band[0],
				Max:        band[1],
				HourlyRate: decimal.NewFromInt(int64(300*i + 100*(scale-1))),
			})
		}
	}
	return doc
}

func (h *Handler) applyDemoRates(ctx context.Context, formulaExpr string) error {
	cfg, _, err := h.RateFactory.FromJSON(demoRates(formulaExpr))
	if err != nil {
		return err
	}
	return h.Service.ReplaceRateConfig(ctx, cfg)
}

func (h *Handler) addSubjects(ctx context.Context, names ...string) error {
	for _, name := range names {
		if _, _, err := h.Service.AddSubject(ctx, name); err != nil {
			return err
		}
	}
	return nil
}

func (h *Handler) createDemoStatement(ctx context.Context, teacherID int64, month string, year int, items []demoItem) (int64, error) {
	st, err := h.Service.CreateStatement(ctx, teacherID, month, year, nil)
	if err != nil {
		return 0, err
	}
	for _, it := range items {
		in := payroll.LineItemInput{
			Subject:      it.subject,
			Schedule:     it.schedule,
			Comment:      it.comment,
			StudentCount: it.students,
			Hours:        decimal.RequireFromString(it.hours),
		}
		if it.manual != "" {
			m := decimal.RequireFromString(it.manual)
			in.ManualSubtotal = &m
		}
		if _, err := h.Service.AddLineItem(ctx, st.ID, in); err != nil {
			return 0, err
		}
	}
	return st.ID, nil
}
