/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the payroll model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

VALIDATION:
  Request types carry go-playground/validator tags. decodeAndValidate in
  handlers.go runs them before anything reaches the payroll service; the
  service still applies its own rules (trimmed names, known scales).

MONEY:
  decimal.Decimal fields marshal as JSON strings ("1250.5") so clients never
  see binary floating point.

SEE ALSO:
  - handlers.go: Uses these types
  - factory/rates.go: RateConfigJSON, used as-is for /api/config/rates
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/escuelademusica/liquidaciones/factory"
	"github.com/escuelademusica/liquidaciones/notify"
	"github.com/escuelademusica/liquidaciones/payroll"
)

// =============================================================================
// TEACHERS & SUBJECTS
// =============================================================================

// TeacherDTO represents a teacher in API responses.
type TeacherDTO struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
	Scale     int    `json:"scale"`
	CreatedAt string `json:"created_at,omitempty"`
}

// TeacherRequest creates or updates a teacher.
type TeacherRequest struct {
	Name  string `json:"name" validate:"required"`
	Email string `json:"email" validate:"omitempty,email"`
	Phone string `json:"phone"`
	Scale int    `json:"scale" validate:"scale"`
}

// SubjectDTO represents a subject.
type SubjectDTO struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// SubjectRequest creates or renames a subject.
type SubjectRequest struct {
	Name string `json:"name" validate:"required"`
}

// HourlyRateDTO is the display rate for a teacher and class size.
type HourlyRateDTO struct {
	TeacherID    int64           `json:"teacher_id"`
	StudentCount int             `json:"student_count"`
	HourlyRate   decimal.Decimal `json:"hourly_rate"`
}

// =============================================================================
// STATEMENTS & LINE ITEMS
// =============================================================================

// LineItemDTO represents a line item.
type LineItemDTO struct {
	ID           int64           `json:"id"`
	StatementID  int64           `json:"statement_id"`
	Subject      string          `json:"subject"`
	Schedule     string          `json:"schedule"`
	Comment      string          `json:"comment"`
	StudentCount int             `json:"student_count"`
	Hours        decimal.Decimal `json:"hours"`
	HourlyRate   decimal.Decimal `json:"hourly_rate"`
	Subtotal     decimal.Decimal `json:"subtotal"`
}

// LineItemRequest creates or edits a line item. When ManualSubtotal is set
// the hourly rate is derived from it instead of the rate tables.
type LineItemRequest struct {
	Subject        string           `json:"subject" validate:"required"`
	Schedule       string           `json:"schedule"`
	Comment        string           `json:"comment"`
	StudentCount   int              `json:"student_count" validate:"gte=0"`
	Hours          decimal.Decimal  `json:"hours"`
	ManualSubtotal *decimal.Decimal `json:"manual_subtotal,omitempty"`
}

func (r LineItemRequest) input() payroll.LineItemInput {
	return payroll.LineItemInput{
		Subject:        r.Subject,
		Schedule:       r.Schedule,
		Comment:        r.Comment,
		StudentCount:   r.StudentCount,
		Hours:          r.Hours,
		ManualSubtotal: r.ManualSubtotal,
	}
}

// StatementDTO represents a statement. Items are only filled on detail
// endpoints, in chronological order.
type StatementDTO struct {
	ID          int64           `json:"id"`
	TeacherID   int64           `json:"teacher_id"`
	TeacherName string          `json:"teacher_name"`
	Month       string          `json:"month"`
	Year        int             `json:"year"`
	CreatedAt   string          `json:"created_at"`
	Total       decimal.Decimal `json:"total"`
	Items       []LineItemDTO   `json:"items,omitempty"`
}

// StatementListResponse is the filtered listing.
type StatementListResponse struct {
	Statements []StatementDTO  `json:"statements"`
	GrandTotal decimal.Decimal `json:"grand_total"`
}

// PreviousStatementResponse wraps the statement offered for cloning.
type PreviousStatementResponse struct {
	Statement *StatementDTO `json:"statement"`
}

// CreateStatementRequest creates a statement, optionally copying line items
// of the teacher's previous statement.
type CreateStatementRequest struct {
	Month           string  `json:"month" validate:"required"`
	Year            int     `json:"year" validate:"gte=1900,lte=9999"`
	CopyLineItemIDs []int64 `json:"copy_line_item_ids"`
}

// DeleteStatementsRequest deletes the listed statements, or all of them.
type DeleteStatementsRequest struct {
	IDs []int64 `json:"ids" validate:"required_without=All"`
	All bool    `json:"all"`
}

// IDsRequest selects statements for exports and notifications.
type IDsRequest struct {
	IDs []int64 `json:"ids"`
}

// NotificationResponse reports a notification batch.
type NotificationResponse struct {
	OK     bool             `json:"ok"`
	RunID  string           `json:"run_id,omitempty"`
	Sent   int              `json:"sent"`
	Failed []notify.Failure `json:"failed"`
}

// =============================================================================
// RATE CONFIGURATION
// =============================================================================

// FormulaDTO carries the pricing formula. Warning is set when the formula
// does not parse; it is stored anyway and prices items at zero.
type FormulaDTO struct {
	Formula string `json:"formula" validate:"required"`
	Warning string `json:"warning,omitempty"`
}

// RatesResponse is the rate document plus coverage warnings.
type RatesResponse struct {
	Config   factory.RateConfigJSON `json:"config"`
	Warnings []string               `json:"warnings"`
}

// BaseRateDTO is one base rate update.
type BaseRateDTO struct {
	Scale      int             `json:"scale" validate:"scale"`
	HourlyRate decimal.Decimal `json:"hourly_rate"`
}

// BaseRatesRequest updates base rates.
type BaseRatesRequest struct {
	Rates []BaseRateDTO `json:"rates" validate:"required,dive"`
}

// BandRateDTO is one band rate update, by band ID.
type BandRateDTO struct {
	ID         int64           `json:"id" validate:"required"`
	HourlyRate decimal.Decimal `json:"hourly_rate"`
}

// BandRatesRequest updates band rates.
type BandRatesRequest struct {
	Bands []BandRateDTO `json:"bands" validate:"required,dive"`
}

// =============================================================================
// SCENARIOS & ERRORS
// =============================================================================

// ScenarioDTO describes a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// LoadScenarioRequest loads a demo scenario.
type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id" validate:"required"`
}

// ErrorResponse is returned for every failed request.
type ErrorResponse struct {
	Error   string            `json:"error"`
	Details string            `json:"details,omitempty"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func toTeacherDTO(t payroll.Teacher) TeacherDTO {
	dto := TeacherDTO{
		ID:    t.ID,
		Name:  t.Name,
		Email: t.Email,
		Phone: t.Phone,
		Scale: t.Scale,
	}
	if !t.CreatedAt.IsZero() {
		dto.CreatedAt = t.CreatedAt.UTC().Format(time.RFC3339)
	}
	return dto
}

func toLineItemDTO(it payroll.LineItem) LineItemDTO {
	return LineItemDTO{
		ID:           it.ID,
		StatementID:  it.StatementID,
		Subject:      it.Subject,
		Schedule:     it.Schedule,
		Comment:      it.Comment,
		StudentCount: it.StudentCount,
		Hours:        it.Hours,
		HourlyRate:   it.HourlyRate,
		Subtotal:     it.Subtotal,
	}
}

func toStatementDTO(v payroll.StatementView) StatementDTO {
	dto := StatementDTO{
		ID:          v.ID,
		TeacherID:   v.TeacherID,
		TeacherName: v.TeacherName(),
		Month:       v.Month,
		Year:        v.Year,
		CreatedAt:   v.CreatedAt.UTC().Format(time.RFC3339),
		Total:       v.Total,
		Items:       make([]LineItemDTO, len(v.Items)),
	}
	for i, it := range v.Items {
		dto.Items[i] = toLineItemDTO(it)
	}
	return dto
}

func toSummaryDTO(s payroll.StatementSummary) StatementDTO {
	return StatementDTO{
		ID:          s.ID,
		TeacherID:   s.TeacherID,
		TeacherName: s.TeacherName,
		Month:       s.Month,
		Year:        s.Year,
		CreatedAt:   s.CreatedAt.UTC().Format(time.RFC3339),
		Total:       s.Total,
	}
}
