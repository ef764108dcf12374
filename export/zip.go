/*
Package export bundles statements for download.

ZIP (Archive):
  One PDF per statement, named by render.FileName, written in input order.
  Empty input is ErrNothingToExport; the HTTP layer turns it into a
  redirect back to the listing instead of an error page.

  A statement that cannot be rendered (its teacher was deleted, or the
  renderer fails) is skipped and reported in Result.Skipped. The rest of
  the batch is still written.

XLSX (WriteListing):
  The statement listing as a spreadsheet: one row per statement plus a
  grand-total row.
*/
package export

import (
	"archive/zip"
	"context"
	"io"
	"time"

	"github.com/pkg/errors"

	"github.com/escuelademusica/liquidaciones/internal/logger"
	"github.com/escuelademusica/liquidaciones/payroll"
	"github.com/escuelademusica/liquidaciones/render"
)

// ErrNothingToExport is returned when no statement was selected.
var ErrNothingToExport = errors.New("nothing to export")

// Renderer turns a statement into a document.
type Renderer interface {
	Render(v payroll.StatementView) (render.Document, error)
}

// Skipped is a statement left out of an archive.
type Skipped struct {
	StatementID int64  `json:"statement_id"`
	Reason      string `json:"reason"`
}

// Result describes a written archive.
type Result struct {
	Entries []string
	Skipped []Skipped
}

// Archive renders views and writes them as a ZIP archive to w.
func Archive(ctx context.Context, w io.Writer, r Renderer, views []payroll.StatementView) (Result, error) {
	var res Result
	if len(views) == 0 {
		return res, ErrNothingToExport
	}

	zw := zip.NewWriter(w)
	seen := make(map[string]bool, len(views))

	for _, v := range views {
		if err := ctx.Err(); err != nil {
			zw.Close()
			return res, errors.Wrap(err, "export canceled")
		}

		if v.Teacher == nil {
			logger.LogWarn("skipping statement without teacher", "statement_id", v.ID)
			res.Skipped = append(res.Skipped, Skipped{StatementID: v.ID, Reason: "teacher not found"})
			continue
		}

		doc, err := r.Render(v)
		if err != nil {
			logger.LogError("skipping statement that failed to render", err, "statement_id", v.ID)
			res.Skipped = append(res.Skipped, Skipped{StatementID: v.ID, Reason: err.Error()})
			continue
		}
		if seen[doc.Name] {
			res.Skipped = append(res.Skipped, Skipped{StatementID: v.ID, Reason: "duplicate"})
			continue
		}
		seen[doc.Name] = true

		if err := writeEntry(zw, doc, v.CreatedAt); err != nil {
			zw.Close()
			return res, err
		}
		res.Entries = append(res.Entries, doc.Name)
	}

	if err := zw.Close(); err != nil {
		return res, errors.Wrap(err, "closing archive")
	}
	return res, nil
}

func writeEntry(zw *zip.Writer, doc render.Document, modified time.Time) error {
	hdr := &zip.FileHeader{
		Name:     doc.Name,
		Method:   zip.Deflate,
		Modified: modified,
	}
	ew, err := zw.CreateHeader(hdr)
	if err != nil {
		return errors.Wrapf(err, "creating entry %s", doc.Name)
	}
	if _, err := ew.Write(doc.Data); err != nil {
		return errors.Wrapf(err, "writing entry %s", doc.Name)
	}
	return nil
}
