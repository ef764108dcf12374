package api

import (
	"archive/zip"
	"bytes"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// statementWithItem creates a priced statement for a new teacher.
func (e *testEnv) statementWithItem(name string) StatementDTO {
	e.t.Helper()
	teacher := e.createTeacher(name, 1)
	st := e.createStatement(teacher.ID, "Marzo", 2025)
	e.addItem(st.ID, map[string]any{"subject": "Piano", "student_count": 1, "hours": "1", "manual_subtotal": "1500"})
	return st
}

func zipNames(t *testing.T, data []byte) []string {
	t.Helper()
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	names := make([]string, len(zr.File))
	for i, f := range zr.File {
		names[i] = f.Name
	}
	return names
}

// =============================================================================
// PDF DOWNLOAD
// =============================================================================

func TestDownloadStatementPDF(t *testing.T) {
	env := newTestEnv(t)
	st := env.statementWithItem("Ana Pérez")

	rec := env.do(http.MethodGet, fmt.Sprintf("/api/statements/%d/pdf", st.ID), nil)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, contentTypePDF, rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "attachment")
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("%PDF")))

	rec = env.do(http.MethodGet, "/api/statements/999/pdf", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// =============================================================================
// EXPORTS
// =============================================================================

func TestExportSelectedZip(t *testing.T) {
	env := newTestEnv(t)
	ana := env.statementWithItem("Ana")
	bruno := env.statementWithItem("Bruno")

	// WHEN: Exporting both, one of them twice
	rec := env.do(http.MethodPost, "/api/exports/zip", IDsRequest{IDs: []int64{ana.ID, bruno.ID, ana.ID}})

	// THEN: One entry per statement
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, contentTypeZIP, rec.Header().Get("Content-Type"))
	names := zipNames(t, rec.Body.Bytes())
	require.Len(t, names, 2)
	assert.True(t, strings.HasPrefix(names[0], "Liquidacion_Ana_"))
	assert.True(t, strings.HasPrefix(names[1], "Liquidacion_Bruno_"))
}

func TestExportZip_EmptySelectionRedirects(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodPost, "/api/exports/zip", IDsRequest{})
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/api/statements", rec.Header().Get("Location"))

	// Unknown IDs select nothing either
	rec = env.do(http.MethodPost, "/api/exports/zip", IDsRequest{IDs: []int64{42}})
	assert.Equal(t, http.StatusSeeOther, rec.Code)
}

func TestExportFilteredZip_SkipsOrphans(t *testing.T) {
	env := newTestEnv(t)
	kept := env.statementWithItem("Ana")
	orphan := env.statementWithItem("Federico")
	rec := env.do(http.MethodDelete, fmt.Sprintf("/api/teachers/%d", orphan.TeacherID), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(http.MethodGet, "/api/exports/zip?month=Marzo&year=2025", nil)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, fmt.Sprint(orphan.ID), rec.Header().Get("X-Skipped-Statements"))
	names := zipNames(t, rec.Body.Bytes())
	require.Len(t, names, 1)
	assert.Contains(t, names[0], fmt.Sprintf("_%d.pdf", kept.ID))

	// Only the orphan left: nothing to export
	rec = env.do(http.MethodPost, "/api/exports/zip", IDsRequest{IDs: []int64{orphan.ID}})
	assert.Equal(t, http.StatusSeeOther, rec.Code)
}

func TestExportListingXLSX(t *testing.T) {
	env := newTestEnv(t)
	env.statementWithItem("Ana")

	rec := env.do(http.MethodGet, "/api/exports/xlsx", nil)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, contentTypeXLSX, rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), listingName)
	// XLSX files are ZIP containers
	assert.NotEmpty(t, zipNames(t, rec.Body.Bytes()))

	rec = env.do(http.MethodGet, "/api/exports/xlsx?teacher_id=x", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// =============================================================================
// NOTIFICATIONS
// =============================================================================

func TestSendNotifications(t *testing.T) {
	env := newTestEnv(t)
	ana := env.statementWithItem("Ana")
	orphan := env.statementWithItem("Federico")
	env.do(http.MethodDelete, fmt.Sprintf("/api/teachers/%d", orphan.TeacherID), nil)

	// WHEN: Notifying both
	rec := env.do(http.MethodPost, "/api/notifications", IDsRequest{IDs: []int64{ana.ID, orphan.ID}})

	// THEN: Ana is notified with a link, the orphan is reported
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decode[NotificationResponse](t, rec)
	assert.True(t, resp.OK)
	assert.NotEmpty(t, resp.RunID)
	assert.Equal(t, 1, resp.Sent)
	require.Len(t, resp.Failed, 1)
	assert.Equal(t, orphan.ID, resp.Failed[0].StatementID)

	require.Len(t, env.dispatcher.sent, 1)
	msg := env.dispatcher.sent[0].message
	assert.Contains(t, msg, "Ana")
	assert.Contains(t, msg, "facturas@example.org")
	assert.Contains(t, msg, "http://liquidaciones.test/pdfs/")

	// The linked file is published and downloadable
	files, err := filepath.Glob(filepath.Join(env.handler.Config.PDFDir, "*.pdf"))
	require.NoError(t, err)
	require.Len(t, files, 1)
	name := filepath.Base(files[0])
	assert.Contains(t, msg, "/pdfs/"+url.PathEscape(name))

	rec = env.do(http.MethodGet, "/pdfs/"+url.PathEscape(name), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, contentTypePDF, rec.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("%PDF")))
}

func TestUnknownStatementIDsAreReported(t *testing.T) {
	env := newTestEnv(t)
	ana := env.statementWithItem("Ana")

	// WHEN: Exporting a known statement and one that does not exist
	rec := env.do(http.MethodPost, "/api/exports/zip", IDsRequest{IDs: []int64{ana.ID, 999}})

	// THEN: The archive holds the known one and the unknown ID is listed as skipped
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "999", rec.Header().Get("X-Skipped-Statements"))
	assert.Len(t, zipNames(t, rec.Body.Bytes()), 1)

	// WHEN: Notifying the same selection
	rec = env.do(http.MethodPost, "/api/notifications", IDsRequest{IDs: []int64{ana.ID, 999}})

	// THEN: The unknown ID is a failure, the batch still sends the rest
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decode[NotificationResponse](t, rec)
	assert.Equal(t, 1, resp.Sent)
	require.Len(t, resp.Failed, 1)
	assert.Equal(t, int64(999), resp.Failed[0].StatementID)
	assert.Equal(t, "statement not found", resp.Failed[0].Reason)

	// Only unknown IDs: nothing to export, still reported
	rec = env.do(http.MethodPost, "/api/exports/zip", IDsRequest{IDs: []int64{999}})
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "999", rec.Header().Get("X-Skipped-Statements"))
}

func TestSendNotifications_EmptySelection(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodPost, "/api/notifications", IDsRequest{})

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[NotificationResponse](t, rec)
	assert.False(t, resp.OK)
	assert.Empty(t, resp.Failed)
	assert.Empty(t, env.dispatcher.sent)
}

func TestSendNotifications_InvalidPhoneIsReported(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(http.MethodPost, "/api/teachers", TeacherRequest{Name: "Sin Teléfono", Scale: 1})
	require.Equal(t, http.StatusCreated, rec.Code)
	st := env.createStatement(decode[TeacherDTO](t, rec).ID, "Marzo", 2025)

	rec = env.do(http.MethodPost, "/api/notifications", IDsRequest{IDs: []int64{st.ID}})

	resp := decode[NotificationResponse](t, rec)
	assert.Equal(t, 0, resp.Sent)
	require.Len(t, resp.Failed, 1)
	assert.Equal(t, "Sin Teléfono", resp.Failed[0].Name)
}

func TestDownloadPublishedPDF_RejectsBadNames(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, os.WriteFile(filepath.Join(env.handler.Config.PDFDir, "notes.txt"), []byte("x"), 0o644))

	for _, name := range []string{"missing.pdf", "notes.txt", "..%2Fsecret.pdf", ".hidden.pdf"} {
		rec := env.do(http.MethodGet, "/pdfs/"+name, nil)
		assert.Equal(t, http.StatusNotFound, rec.Code, name)
	}
}

// =============================================================================
// JANITOR
// =============================================================================

func TestPDFJanitor_Sweep(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2025, 4, 10, 12, 0, 0, 0, time.UTC)

	write := func(name string, age time.Duration) string {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte("%PDF"), 0o644))
		mtime := now.Add(-age)
		require.NoError(t, os.Chtimes(path, mtime, mtime))
		return path
	}
	old := write("old.pdf", 48*time.Hour)
	fresh := write("fresh.pdf", time.Hour)
	other := write("old.txt", 48*time.Hour)

	j := NewPDFJanitor(dir, 24*time.Hour, time.Minute)
	j.Now = func() time.Time { return now }

	removed, err := j.Sweep()

	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	assert.NoFileExists(t, old)
	assert.FileExists(t, fresh)
	assert.FileExists(t, other)
}

func TestPDFJanitor_MissingDirAndDisabled(t *testing.T) {
	j := NewPDFJanitor(filepath.Join(t.TempDir(), "nope"), time.Hour, time.Minute)
	removed, err := j.Sweep()
	require.NoError(t, err)
	assert.Zero(t, removed)

	disabled := NewPDFJanitor(t.TempDir(), 0, time.Minute)
	assert.False(t, disabled.Enabled)
	disabled.Start()
	disabled.Stop()
}

func TestPDFJanitor_StartStop(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "old.pdf")
	require.NoError(t, os.WriteFile(path, []byte("%PDF"), 0o644))
	past := time.Now().Add(-72 * time.Hour)
	require.NoError(t, os.Chtimes(path, past, past))

	j := NewPDFJanitor(dir, 24*time.Hour, time.Hour)
	j.Start()
	j.Start()

	// The first sweep runs on start
	assert.Eventually(t, func() bool {
		_, err := os.Stat(path)
		return os.IsNotExist(err)
	}, 2*time.Second, 10*time.Millisecond)

	j.Stop()
	j.Stop()
}
