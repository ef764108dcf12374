/*
documents.go - Rendered documents: downloads, exports and notifications

ENDPOINTS:
  GET  /api/statements/{id}/pdf   One statement as a PDF attachment
  POST /api/exports/zip           {ids} -> ZIP of PDFs
  GET  /api/exports/zip           ?teacher_id&month&year -> ZIP of PDFs
  GET  /api/exports/xlsx          ?teacher_id&month&year -> listing workbook
  POST /api/notifications         {ids} -> publish PDFs and notify teachers
  GET  /pdfs/{name}               Download of a published PDF

EMPTY SELECTIONS:
  A ZIP export with nothing selected redirects (303) back to the listing.
  A notification batch with nothing selected answers {"ok": false}.
  Requested IDs that match no statement are reported, never dropped:
  in X-Skipped-Statements for exports, in "failed" for notifications.

PUBLISHING:
  Notifications carry a link, not the file. Before a teacher is notified
  the statement PDF is written to Config.PDFDir and linked as
  <Config.BaseURL>/pdfs/<file name>. PDFJanitor removes old files.
*/
package api

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/escuelademusica/liquidaciones/export"
	"github.com/escuelademusica/liquidaciones/internal/logger"
	"github.com/escuelademusica/liquidaciones/notify"
	"github.com/escuelademusica/liquidaciones/payroll"
	"github.com/escuelademusica/liquidaciones/render"
)

const (
	contentTypePDF  = "application/pdf"
	contentTypeZIP  = "application/zip"
	contentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

	zipName     = "liquidaciones.zip"
	listingName = "liquidaciones.xlsx"
	listingPath = "/api/statements"
)

// =============================================================================
// DOWNLOADS
// =============================================================================

// DownloadStatementPDF renders one statement.
// GET /api/statements/{id}/pdf
func (h *Handler) DownloadStatementPDF(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	v, err := h.Service.StatementView(r.Context(), id)
	if err != nil {
		h.fail(w, "Failed to get statement", err)
		return
	}
	doc, err := h.Renderer.Render(v)
	if err != nil {
		h.fail(w, "Failed to render statement", err)
		return
	}
	writeAttachment(w, contentTypePDF, doc.Name, doc.Data)
}

// DownloadPublishedPDF serves a PDF previously published for a notification.
// GET /pdfs/{name}
func (h *Handler) DownloadPublishedPDF(w http.ResponseWriter, r *http.Request) {
	name, err := url.PathUnescape(chi.URLParam(r, "name"))
	if err != nil || !publishedName(name) {
		writeError(w, http.StatusNotFound, "PDF not found", nil)
		return
	}
	path := filepath.Join(h.Config.PDFDir, name)
	if _, err := os.Stat(path); err != nil {
		writeError(w, http.StatusNotFound, "PDF not found", nil)
		return
	}
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": name}))
	w.Header().Set("Content-Type", contentTypePDF)
	http.ServeFile(w, r, path)
}

// publishedName rejects anything that could leave the PDF directory.
func publishedName(name string) bool {
	return name != "" &&
		name == filepath.Base(name) &&
		!strings.HasPrefix(name, ".") &&
		!strings.ContainsAny(name, `/\`) &&
		strings.HasSuffix(name, ".pdf")
}

func writeAttachment(w http.ResponseWriter, contentType, name string, data []byte) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": name}))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// =============================================================================
// EXPORTS
// =============================================================================

// ExportSelectedZip bundles the selected statements.
// POST /api/exports/zip
func (h *Handler) ExportSelectedZip(w http.ResponseWriter, r *http.Request) {
	var req IDsRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	views, missing, err := h.Service.StatementViews(r.Context(), req.IDs)
	if err != nil {
		h.fail(w, "Failed to load statements", err)
		return
	}
	h.writeZip(w, r, views, missing)
}

// ExportFilteredZip bundles every statement matching the listing filter.
// GET /api/exports/zip
func (h *Handler) ExportFilteredZip(w http.ResponseWriter, r *http.Request) {
	filter, ok := filterParams(w, r)
	if !ok {
		return
	}
	views, err := h.Service.FilteredViews(r.Context(), filter)
	if err != nil {
		h.fail(w, "Failed to load statements", err)
		return
	}
	h.writeZip(w, r, views, nil)
}

// writeZip archives views. missing are requested IDs that matched no
// statement; they are reported with the skipped ones.
func (h *Handler) writeZip(w http.ResponseWriter, r *http.Request, views []payroll.StatementView, missing []int64) {
	var buf bytes.Buffer
	res, err := export.Archive(r.Context(), &buf, h.Renderer, views)
	if err != nil && !errors.Is(err, export.ErrNothingToExport) {
		h.fail(w, "Failed to export statements", err)
		return
	}

	for _, id := range missing {
		logger.LogWarn("skipping unknown statement", "statement_id", id)
		res.Skipped = append(res.Skipped, export.Skipped{StatementID: id, Reason: "statement not found"})
	}
	if len(res.Skipped) > 0 {
		ids := make([]string, len(res.Skipped))
		for i, s := range res.Skipped {
			ids[i] = strconv.FormatInt(s.StatementID, 10)
		}
		w.Header().Set("X-Skipped-Statements", strings.Join(ids, ","))
	}

	if len(res.Entries) == 0 {
		http.Redirect(w, r, listingPath, http.StatusSeeOther)
		return
	}
	writeAttachment(w, contentTypeZIP, zipName, buf.Bytes())
}

// ExportListingXLSX writes the filtered listing as a spreadsheet.
// GET /api/exports/xlsx
func (h *Handler) ExportListingXLSX(w http.ResponseWriter, r *http.Request) {
	filter, ok := filterParams(w, r)
	if !ok {
		return
	}
	rows, grand, err := h.Service.ListStatements(r.Context(), filter)
	if err != nil {
		h.fail(w, "Failed to list statements", err)
		return
	}
	var buf bytes.Buffer
	if err := export.WriteListing(&buf, rows, grand); err != nil {
		h.fail(w, "Failed to write spreadsheet", err)
		return
	}
	writeAttachment(w, contentTypeXLSX, listingName, buf.Bytes())
}

// =============================================================================
// NOTIFICATIONS
// =============================================================================

// SendNotifications publishes each selected statement and notifies its
// teacher. Failures are reported per statement; the batch always completes.
// POST /api/notifications
func (h *Handler) SendNotifications(w http.ResponseWriter, r *http.Request) {
	var req IDsRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	if len(req.IDs) == 0 {
		writeJSON(w, http.StatusOK, NotificationResponse{OK: false, Failed: []notify.Failure{}})
		return
	}
	views, missing, err := h.Service.StatementViews(r.Context(), req.IDs)
	if err != nil {
		h.fail(w, "Failed to load statements", err)
		return
	}

	jobs := make([]notify.Job, len(views))
	for i, v := range views {
		jobs[i] = h.notificationJob(v)
	}
	report := notify.Run(r.Context(), h.Dispatcher, jobs)

	failed := report.Failed
	if failed == nil {
		failed = []notify.Failure{}
	}
	for _, id := range missing {
		failed = append(failed, notify.Failure{StatementID: id, Reason: "statement not found"})
	}
	writeJSON(w, http.StatusOK, NotificationResponse{
		OK:     true,
		RunID:  report.RunID.String(),
		Sent:   report.Sent,
		Failed: failed,
	})
}

func (h *Handler) notificationJob(v payroll.StatementView) notify.Job {
	job := notify.Job{StatementID: v.ID}
	if v.Teacher != nil {
		job.Recipient = notify.Recipient{Name: v.Teacher.Name, Phone: v.Teacher.Phone, Email: v.Teacher.Email}
	}
	job.Prepare = func(ctx context.Context) (string, error) {
		if v.Teacher == nil {
			return "", fmt.Errorf("%w: statement %d", payroll.ErrTeacherNotFound, v.ID)
		}
		link, err := h.publish(v)
		if err != nil {
			return "", err
		}
		return notify.Message(v.Teacher.Name, v.Month, v.Year, link, h.Config.InvoiceEmail), nil
	}
	return job
}

// publish renders v into the PDF directory and returns its public link.
func (h *Handler) publish(v payroll.StatementView) (string, error) {
	doc, err := h.Renderer.Render(v)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(h.Config.PDFDir, 0o755); err != nil {
		return "", fmt.Errorf("creating pdf dir: %w", err)
	}
	path := filepath.Join(h.Config.PDFDir, doc.Name)
	if err := os.WriteFile(path, doc.Data, 0o644); err != nil {
		return "", fmt.Errorf("writing %s: %w", doc.Name, err)
	}
	logger.LogDebug("published statement", "statement_id", v.ID, "path", path)
	return PublishedLink(h.Config.BaseURL, doc), nil
}

// PublishedLink is the public URL of a published document.
func PublishedLink(baseURL string, doc render.Document) string {
	return baseURL + "/pdfs/" + url.PathEscape(doc.Name)
}
