/*
handlers.go - HTTP API handlers for teacher settlement statements

PURPOSE:
  Exposes the payroll service via REST API. Handles HTTP request/response,
  JSON serialization, and delegates to payroll.Service.

ENDPOINTS:
  Teachers:
    GET    /api/teachers                         List (?letter= prefix filter)
    POST   /api/teachers                         Create
    GET    /api/teachers/{id}                    Details
    PUT    /api/teachers/{id}                    Update
    DELETE /api/teachers/{id}                    Delete (statements are kept)
    GET    /api/teachers/{id}/hourly-rate        Display rate (?students=N)
    GET    /api/teachers/{id}/statements/previous  Latest statement, for cloning
    POST   /api/teachers/{id}/statements         Create statement

  Subjects:
    GET/POST /api/subjects, PUT/DELETE /api/subjects/{id}

  Statements:
    GET    /api/statements                       Listing (?teacher_id&month&year)
    DELETE /api/statements                       Bulk delete ({ids} or {all})
    GET    /api/statements/{id}                  Details with sorted items
    DELETE /api/statements/{id}
    POST   /api/statements/{id}/line-items
    PUT    /api/line-items/{id}
    DELETE /api/line-items/{id}

  Configuration:
    GET/PUT /api/config/formula, GET/PUT /api/config/rates,
    PUT /api/config/base-rates, PUT /api/config/student-bands

  Documents (documents.go), scenarios (scenarios.go).

ARCHITECTURE:
  Handler struct holds all dependencies:
  - Service: every write goes through payroll.Service
  - Store: listings and scenario resets
  - Renderer, Dispatcher: documents and notifications
  - Config: PDF directory, public URL, invoice address

ERROR HANDLING:
  Errors are returned as JSON ErrorResponse with HTTP status:
  - 400: malformed body, validator failures, payroll.IsClientError
  - 404: payroll.IsNotFound
  - 500: everything else (logged)

SECURITY NOTE:
  No authentication or authorization. All endpoints are public.

SEE ALSO:
  - dto.go: Request/response data structures
  - documents.go: PDF, ZIP, XLSX and notification handlers
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/escuelademusica/liquidaciones/config"
	"github.com/escuelademusica/liquidaciones/factory"
	"github.com/escuelademusica/liquidaciones/formula"
	"github.com/escuelademusica/liquidaciones/internal/logger"
	"github.com/escuelademusica/liquidaciones/notify"
	"github.com/escuelademusica/liquidaciones/payroll"
	"github.com/escuelademusica/liquidaciones/render"
	"github.com/escuelademusica/liquidaciones/store/sqlite"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store       *sqlite.Store
	Service     *payroll.Service
	Renderer    *render.Renderer
	Dispatcher  notify.Dispatcher
	RateFactory *factory.RateFactory
	Config      *config.Config

	validate *validator.Validate

	// Track currently loaded scenario
	mu              sync.Mutex
	currentScenario string
}

// NewHandler creates a handler over store. A nil dispatcher means the log
// dispatcher.
func NewHandler(store *sqlite.Store, cfg *config.Config, dispatcher notify.Dispatcher) *Handler {
	if dispatcher == nil {
		dispatcher = notify.NewLogDispatcher()
	}
	return &Handler{
		Store:       store,
		Service:     payroll.NewService(store),
		Renderer:    render.New(cfg.LogoPath),
		Dispatcher:  dispatcher,
		RateFactory: factory.NewRateFactory(),
		Config:      cfg,
		validate:    newValidator(),
	}
}

// newValidator reports JSON field names in validation errors and adds the
// "scale" tag, backed by payroll.ValidScale.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterValidation("scale", func(fl validator.FieldLevel) bool {
		return payroll.ValidScale(int(fl.Field().Int()))
	})
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// =============================================================================
// TEACHER HANDLERS
// =============================================================================

// ListTeachers returns teachers ordered by name.
// GET /api/teachers?letter=A
func (h *Handler) ListTeachers(w http.ResponseWriter, r *http.Request) {
	teachers, err := h.Store.ListTeachers(r.Context(), r.URL.Query().Get("letter"))
	if err != nil {
		h.fail(w, "Failed to list teachers", err)
		return
	}

	dtos := make([]TeacherDTO, len(teachers))
	for i, t := range teachers {
		dtos[i] = toTeacherDTO(t)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetTeacher returns a single teacher.
// GET /api/teachers/{id}
func (h *Handler) GetTeacher(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	t, err := h.Service.Teacher(r.Context(), id)
	if err != nil {
		h.fail(w, "Failed to get teacher", err)
		return
	}
	writeJSON(w, http.StatusOK, toTeacherDTO(t))
}

// CreateTeacher creates a teacher.
// POST /api/teachers
func (h *Handler) CreateTeacher(w http.ResponseWriter, r *http.Request) {
	var req TeacherRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	t, err := h.Service.SaveTeacher(r.Context(), payroll.Teacher{
		Name:  req.Name,
		Email: req.Email,
		Phone: req.Phone,
		Scale: req.Scale,
	})
	if err != nil {
		h.fail(w, "Failed to create teacher", err)
		return
	}
	writeJSON(w, http.StatusCreated, toTeacherDTO(t))
}

// UpdateTeacher replaces a teacher's fields.
// PUT /api/teachers/{id}
func (h *Handler) UpdateTeacher(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	var req TeacherRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	t, err := h.Service.SaveTeacher(r.Context(), payroll.Teacher{
		ID:    id,
		Name:  req.Name,
		Email: req.Email,
		Phone: req.Phone,
		Scale: req.Scale,
	})
	if err != nil {
		h.fail(w, "Failed to update teacher", err)
		return
	}
	writeJSON(w, http.StatusOK, toTeacherDTO(t))
}

// DeleteTeacher deletes a teacher. Their statements stay and show an empty
// teacher name.
// DELETE /api/teachers/{id}
func (h *Handler) DeleteTeacher(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	if err := h.Service.DeleteTeacher(r.Context(), id); err != nil {
		h.fail(w, "Failed to delete teacher", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "deleted"})
}

// GetHourlyRate returns base + band rate for a class size.
// GET /api/teachers/{id}/hourly-rate?students=N
func (h *Handler) GetHourlyRate(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	students, err := strconv.Atoi(r.URL.Query().Get("students"))
	if err != nil || students < 0 {
		writeError(w, http.StatusBadRequest, "Invalid students parameter", err)
		return
	}
	rate, err := h.Service.HourlyRate(r.Context(), id, students)
	if err != nil {
		h.fail(w, "Failed to compute hourly rate", err)
		return
	}
	writeJSON(w, http.StatusOK, HourlyRateDTO{TeacherID: id, StudentCount: students, HourlyRate: rate})
}

// =============================================================================
// SUBJECT HANDLERS
// =============================================================================

// ListSubjects returns the subject catalog.
// GET /api/subjects
func (h *Handler) ListSubjects(w http.ResponseWriter, r *http.Request) {
	subjects, err := h.Store.ListSubjects(r.Context())
	if err != nil {
		h.fail(w, "Failed to list subjects", err)
		return
	}
	dtos := make([]SubjectDTO, len(subjects))
	for i, s := range subjects {
		dtos[i] = SubjectDTO{ID: s.ID, Name: s.Name}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateSubject adds a subject. Adding an existing name returns it with 200.
// POST /api/subjects
func (h *Handler) CreateSubject(w http.ResponseWriter, r *http.Request) {
	var req SubjectRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	s, created, err := h.Service.AddSubject(r.Context(), req.Name)
	if err != nil {
		h.fail(w, "Failed to create subject", err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, SubjectDTO{ID: s.ID, Name: s.Name})
}

// UpdateSubject renames a subject.
// PUT /api/subjects/{id}
func (h *Handler) UpdateSubject(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	var req SubjectRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	s, err := h.Service.RenameSubject(r.Context(), id, req.Name)
	if err != nil {
		h.fail(w, "Failed to rename subject", err)
		return
	}
	writeJSON(w, http.StatusOK, SubjectDTO{ID: s.ID, Name: s.Name})
}

// DeleteSubject removes a subject.
// DELETE /api/subjects/{id}
func (h *Handler) DeleteSubject(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	if err := h.Service.DeleteSubject(r.Context(), id); err != nil {
		h.fail(w, "Failed to delete subject", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "deleted"})
}

// =============================================================================
// STATEMENT HANDLERS
// =============================================================================

// ListStatements returns the filtered listing with totals.
// GET /api/statements?teacher_id=1&month=Marzo&year=2025
func (h *Handler) ListStatements(w http.ResponseWriter, r *http.Request) {
	filter, ok := filterParams(w, r)
	if !ok {
		return
	}
	rows, grand, err := h.Service.ListStatements(r.Context(), filter)
	if err != nil {
		h.fail(w, "Failed to list statements", err)
		return
	}
	resp := StatementListResponse{Statements: make([]StatementDTO, len(rows)), GrandTotal: grand}
	for i, row := range rows {
		resp.Statements[i] = toSummaryDTO(row)
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetStatement returns a statement with its items in chronological order.
// GET /api/statements/{id}
func (h *Handler) GetStatement(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	v, err := h.Service.StatementView(r.Context(), id)
	if err != nil {
		h.fail(w, "Failed to get statement", err)
		return
	}
	writeJSON(w, http.StatusOK, toStatementDTO(v))
}

// GetPreviousStatement returns the teacher's latest statement, or null.
// GET /api/teachers/{id}/statements/previous
func (h *Handler) GetPreviousStatement(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	prev, err := h.Service.PreviousStatement(r.Context(), id)
	if err != nil {
		h.fail(w, "Failed to get previous statement", err)
		return
	}
	var resp PreviousStatementResponse
	if prev != nil {
		dto := toStatementDTO(*prev)
		resp.Statement = &dto
	}
	writeJSON(w, http.StatusOK, resp)
}

// CreateStatement creates a statement for a teacher.
// POST /api/teachers/{id}/statements
func (h *Handler) CreateStatement(w http.ResponseWriter, r *http.Request) {
	teacherID, ok := idParam(w, r)
	if !ok {
		return
	}
	var req CreateStatementRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	v, err := h.Service.CreateStatement(r.Context(), teacherID, req.Month, req.Year, req.CopyLineItemIDs)
	if err != nil {
		h.fail(w, "Failed to create statement", err)
		return
	}
	writeJSON(w, http.StatusCreated, toStatementDTO(v))
}

// DeleteStatement deletes a statement and its line items.
// DELETE /api/statements/{id}
func (h *Handler) DeleteStatement(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	if err := h.Service.DeleteStatement(r.Context(), id); err != nil {
		h.fail(w, "Failed to delete statement", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "deleted"})
}

// DeleteStatements deletes selected statements, or all with {"all": true}.
// DELETE /api/statements
func (h *Handler) DeleteStatements(w http.ResponseWriter, r *http.Request) {
	var req DeleteStatementsRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	n, err := h.Service.DeleteStatements(r.Context(), req.IDs, req.All)
	if err != nil {
		h.fail(w, "Failed to delete statements", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "deleted", "deleted": n})
}

// =============================================================================
// LINE ITEM HANDLERS
// =============================================================================

// CreateLineItem prices and adds a line item.
// POST /api/statements/{id}/line-items
func (h *Handler) CreateLineItem(w http.ResponseWriter, r *http.Request) {
	statementID, ok := idParam(w, r)
	if !ok {
		return
	}
	var req LineItemRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	it, err := h.Service.AddLineItem(r.Context(), statementID, req.input())
	if err != nil {
		h.fail(w, "Failed to add line item", err)
		return
	}
	writeJSON(w, http.StatusCreated, toLineItemDTO(it))
}

// UpdateLineItem edits and reprices a line item.
// PUT /api/line-items/{id}
func (h *Handler) UpdateLineItem(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	var req LineItemRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	it, err := h.Service.UpdateLineItem(r.Context(), id, req.input())
	if err != nil {
		h.fail(w, "Failed to update line item", err)
		return
	}
	writeJSON(w, http.StatusOK, toLineItemDTO(it))
}

// DeleteLineItem removes a line item.
// DELETE /api/line-items/{id}
func (h *Handler) DeleteLineItem(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	if err := h.Service.DeleteLineItem(r.Context(), id); err != nil {
		h.fail(w, "Failed to delete line item", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "deleted"})
}

// =============================================================================
// CONFIGURATION HANDLERS
// =============================================================================

// GetFormula returns the pricing formula.
// GET /api/config/formula
func (h *Handler) GetFormula(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.Service.RateConfig(r.Context())
	if err != nil {
		h.fail(w, "Failed to load formula", err)
		return
	}
	writeJSON(w, http.StatusOK, formulaDTO(cfg.Formula))
}

// UpdateFormula stores a new formula. Invalid formulas are stored with a
// warning.
// PUT /api/config/formula
func (h *Handler) UpdateFormula(w http.ResponseWriter, r *http.Request) {
	var req FormulaDTO
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	if err := h.Service.SaveFormula(r.Context(), req.Formula); err != nil {
		h.fail(w, "Failed to save formula", err)
		return
	}
	resp := formulaDTO(strings.TrimSpace(req.Formula))
	if resp.Warning != "" {
		logger.LogWarn("formula stored with errors", "formula", resp.Formula, "warning", resp.Warning)
	}
	writeJSON(w, http.StatusOK, resp)
}

func formulaDTO(expr string) FormulaDTO {
	dto := FormulaDTO{Formula: expr}
	if err := formula.Validate(expr); err != nil {
		dto.Warning = err.Error()
	}
	return dto
}

// GetRates exports the rate configuration as a JSON document.
// GET /api/config/rates
func (h *Handler) GetRates(w http.ResponseWriter, r *http.Request) {
	h.writeRates(w, r)
}

// ReplaceRates imports a rate document, replacing base rates, bands and
// formula.
// PUT /api/config/rates
func (h *Handler) ReplaceRates(w http.ResponseWriter, r *http.Request) {
	cfg, _, err := h.RateFactory.ReadRates(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid rate document", err)
		return
	}
	if err := h.Service.ReplaceRateConfig(r.Context(), cfg); err != nil {
		h.fail(w, "Failed to replace rates", err)
		return
	}
	h.writeRates(w, r)
}

// UpdateBaseRates updates base rates per scale.
// PUT /api/config/base-rates
func (h *Handler) UpdateBaseRates(w http.ResponseWriter, r *http.Request) {
	var req BaseRatesRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	rates := make([]payroll.BaseRate, len(req.Rates))
	for i, br := range req.Rates {
		rates[i] = payroll.BaseRate{Scale: br.Scale, HourlyRate: br.HourlyRate}
	}
	if err := h.Service.SaveBaseRates(r.Context(), rates); err != nil {
		h.fail(w, "Failed to save base rates", err)
		return
	}
	h.writeRates(w, r)
}

// UpdateBandRates updates student band rates by band ID.
// PUT /api/config/student-bands
func (h *Handler) UpdateBandRates(w http.ResponseWriter, r *http.Request) {
	var req BandRatesRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	bands := make([]payroll.StudentBand, len(req.Bands))
	for i, b := range req.Bands {
		bands[i] = payroll.StudentBand{ID: b.ID, HourlyRate: b.HourlyRate}
	}
	if err := h.Service.SaveBandRates(r.Context(), bands); err != nil {
		h.fail(w, "Failed to save band rates", err)
		return
	}
	h.writeRates(w, r)
}

func (h *Handler) writeRates(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.Service.RateConfig(r.Context())
	if err != nil {
		h.fail(w, "Failed to load rates", err)
		return
	}
	warnings := factory.Warnings(cfg)
	for _, warn := range warnings {
		logger.LogWarn("rate configuration", "warning", warn)
	}
	if warnings == nil {
		warnings = []string{}
	}
	writeJSON(w, http.StatusOK, RatesResponse{Config: h.RateFactory.ToJSON(cfg), Warnings: warnings})
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// fail maps payroll errors to a status code.
func (h *Handler) fail(w http.ResponseWriter, message string, err error) {
	switch {
	case payroll.IsNotFound(err):
		writeError(w, http.StatusNotFound, message, err)
	case payroll.IsClientError(err):
		writeError(w, http.StatusBadRequest, message, err)
	default:
		logger.LogError(message, err)
		writeError(w, http.StatusInternalServerError, message, err)
	}
}

// decodeAndValidate reads a JSON body into dst and runs its validator tags.
// On failure the response is written and false returned.
func (h *Handler) decodeAndValidate(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make(map[string]string, len(verrs))
			for _, fe := range verrs {
				fields[fe.Field()] = fe.Tag()
			}
			writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "Validation failed", Fields: fields})
			return false
		}
		writeError(w, http.StatusBadRequest, "Validation failed", err)
		return false
	}
	return true
}

func idParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "Invalid id", err)
		return 0, false
	}
	return id, true
}

func filterParams(w http.ResponseWriter, r *http.Request) (payroll.StatementFilter, bool) {
	q := r.URL.Query()
	f := payroll.StatementFilter{Month: strings.TrimSpace(q.Get("month"))}
	if s := q.Get("teacher_id"); s != "" {
		id, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid teacher_id", err)
			return f, false
		}
		f.TeacherID = id
	}
	if s := q.Get("year"); s != "" {
		year, err := strconv.Atoi(s)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid year", err)
			return f, false
		}
		f.Year = year
	}
	return f, true
}
