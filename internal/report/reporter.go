// Package report accumulates per-page image outcomes and run totals, writes
// the run report document, and logs the page and summary lines.
package report

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/JakeFAU/imagesize-intrinsic/internal/id/uuid"
	"github.com/JakeFAU/imagesize-intrinsic/internal/imgsize"
	"github.com/JakeFAU/imagesize-intrinsic/internal/storage"
)

// DefaultName is the document name of the run report.
const DefaultName = "imgsize-run-report.json"

// Reporter is safe for concurrent use.
type Reporter struct {
	provider storage.Provider
	name     string
	logger   *zap.Logger
	runID    string

	mu     sync.Mutex
	totals imgsize.RunTotals
	pages  []imgsize.PageReport
	index  map[string]int
}

// New builds a Reporter that persists to name through provider.
func New(provider storage.Provider, name string, logger *zap.Logger) (*Reporter, error) {
	if provider == nil {
		return nil, fmt.Errorf("report provider: %w", imgsize.ErrMissingDependency)
	}
	if name == "" {
		name = DefaultName
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reporter{
		provider: provider,
		name:     name,
		logger:   logger.Named("report"),
		runID:    uuid.NewRunID(),
		index:    make(map[string]int),
	}, nil
}

// RunID identifies this run in logs and notifications.
func (r *Reporter) RunID() string {
	return r.runID
}

// AddPage folds one processed page into the totals. Records are appended to
// the page's report, so a page id seen twice accumulates both passes. Pages
// without image tags count toward totals but get no report entry.
func (r *Reporter) AddPage(page string, records []imgsize.ImageRecord, counters imgsize.PageCounters) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.totals.Add(counters)
	if len(records) == 0 {
		return
	}
	i, ok := r.index[page]
	if !ok {
		i = len(r.pages)
		r.index[page] = i
		r.pages = append(r.pages, imgsize.PageReport{Page: page})
	}
	r.pages[i].Images = append(r.pages[i].Images, records...)
}

// SetCleaned records the number of cache entries pruned at finalize.
func (r *Reporter) SetCleaned(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.totals.Cleaned = n
}

// Totals returns a snapshot of the run counters.
func (r *Reporter) Totals() imgsize.RunTotals {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.totals
}

// Pages returns a deep copy of the page reports in first-seen order.
func (r *Reporter) Pages() []imgsize.PageReport {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]imgsize.PageReport, len(r.pages))
	for i, p := range r.pages {
		out[i] = imgsize.PageReport{Page: p.Page, Images: append([]imgsize.ImageRecord(nil), p.Images...)}
	}
	return out
}

// Persist writes {"pages":[...]} as indented JSON.
func (r *Reporter) Persist(ctx context.Context) error {
	pages := r.Pages()
	data, err := json.MarshalIndent(imgsize.RunReport{Pages: pages}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal run report: %w", err)
	}
	if err := r.provider.Write(ctx, r.name, data); err != nil {
		return fmt.Errorf("write run report: %w", err)
	}
	return nil
}

// Location is where the report lands: a filesystem path for local storage,
// otherwise the document name.
func (r *Reporter) Location() string {
	if p, ok := r.provider.(interface{ Path(string) string }); ok {
		return p.Path(r.name)
	}
	return r.name
}

// LogSummary emits the [total] line followed by the report location.
func (r *Reporter) LogSummary() {
	t := r.Totals()
	r.logger.Info(fmt.Sprintf("[total] pages=%d imgs=%d wrote=%d cached=%d failed=%d skipped=%d cleaned=%d",
		t.Pages, t.Images, t.Wrote, t.Cached, t.Failed, t.Skipped, t.Cleaned),
		zap.String("run_id", r.runID))
	r.logger.Info("run report -> " + r.Location())
}

// LogPage emits the per-page line and one line per image at debug level.
func (r *Reporter) LogPage(page string, records []imgsize.ImageRecord, counters imgsize.PageCounters) {
	if !r.logger.Core().Enabled(zap.DebugLevel) {
		return
	}
	r.logger.Debug(fmt.Sprintf("[page] %d wrote=%d cached=%d failed=%d skipped=%d :: %s",
		counters.Total, counters.Wrote, counters.Cached, counters.Failed, counters.Skipped, page))
	for _, rec := range records {
		r.logger.Debug(formatRecord(rec))
	}
}

func formatRecord(rec imgsize.ImageRecord) string {
	var b strings.Builder
	fmt.Fprintf(&b, "  %-14s", rec.Status)
	if rec.Reason != "" {
		fmt.Fprintf(&b, " [%s]", rec.Reason)
	}
	if rec.URL != "" {
		b.WriteString(" " + rec.URL)
	}
	return b.String()
}
