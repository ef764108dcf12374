/*
scheduler.go - Published PDF cleanup

PURPOSE:
  Notifications publish statement PDFs under Config.PDFDir so teachers can
  download them from a link. Nothing else ever removes them; the janitor
  deletes files older than the retention period.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Sweeps once on start, then on every tick
  - Only regular *.pdf files directly inside the directory are touched
  - A missing directory is not an error (nothing was published yet)

USAGE:
  janitor := NewPDFJanitor(cfg.PDFDir, cfg.PDFRetention, cfg.JanitorInterval)
  janitor.Start()
  // ... later
  janitor.Stop()

SEE ALSO:
  - documents.go: publish, DownloadPublishedPDF
*/
package api

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/escuelademusica/liquidaciones/internal/logger"
)

// PDFJanitor removes stale published PDFs.
type PDFJanitor struct {
	Dir           string
	Retention     time.Duration
	CheckInterval time.Duration
	Enabled       bool
	Now           func() time.Time

	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewPDFJanitor creates a janitor. A non-positive retention disables it.
func NewPDFJanitor(dir string, retention, interval time.Duration) *PDFJanitor {
	return &PDFJanitor{
		Dir:           dir,
		Retention:     retention,
		CheckInterval: interval,
		Enabled:       retention > 0 && interval > 0,
		Now:           time.Now,
	}
}

// Start begins the janitor.
func (j *PDFJanitor) Start() {
	j.mu.Lock()
	defer j.mu.Unlock()

	if !j.Enabled {
		logger.LogInfo("pdf janitor disabled")
		return
	}
	if j.ticker != nil {
		return
	}

	j.ticker = time.NewTicker(j.CheckInterval)
	j.stop = make(chan struct{})
	j.wg.Add(1)

	go j.run()

	logger.LogInfo("pdf janitor started", "dir", j.Dir, "interval", j.CheckInterval, "retention", j.Retention)
}

// Stop stops the janitor and waits for a running sweep to finish.
func (j *PDFJanitor) Stop() {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.ticker != nil {
		j.ticker.Stop()
		close(j.stop)
		j.wg.Wait()
		j.ticker = nil
		logger.LogInfo("pdf janitor stopped")
	}
}

func (j *PDFJanitor) run() {
	defer j.wg.Done()

	j.sweepAndLog()

	for {
		select {
		case <-j.ticker.C:
			j.sweepAndLog()
		case <-j.stop:
			return
		}
	}
}

func (j *PDFJanitor) sweepAndLog() {
	removed, err := j.Sweep()
	if err != nil {
		logger.LogError("pdf janitor sweep failed", err, "dir", j.Dir)
		return
	}
	if removed > 0 {
		logger.LogInfo("pdf janitor removed files", "count", removed)
	}
}

// Sweep deletes PDFs last modified before now - Retention and returns how
// many were removed. Files that cannot be removed are logged and skipped.
func (j *PDFJanitor) Sweep() (int, error) {
	entries, err := os.ReadDir(j.Dir)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	cutoff := j.Now().Add(-j.Retention)
	removed := 0
	for _, e := range entries {
		if !e.Type().IsRegular() || !strings.HasSuffix(e.Name(), ".pdf") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if !info.ModTime().Before(cutoff) {
			continue
		}
		path := filepath.Join(j.Dir, e.Name())
		if err := os.Remove(path); err != nil {
			logger.LogWarn("pdf janitor could not remove file", "path", path, "error", err)
			continue
		}
		removed++
	}
	return removed, nil
}
