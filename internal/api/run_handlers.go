package api

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/imagesize-intrinsic/internal/imgsize"
)

const finalizeTimeout = 2 * time.Minute

// snapshotter is implemented by processors that can report a run in progress.
type snapshotter interface {
	Snapshot() (imgsize.RunTotals, []imgsize.PageReport)
}

// RunHandler owns the current run and swaps in a fresh one on finalize.
type RunHandler struct {
	newRun  func() imgsize.Processor
	timeout time.Duration
	logger  *zap.Logger

	mu      sync.RWMutex
	current imgsize.Processor
	started time.Time
}

// NewRunHandler starts the first run.
func NewRunHandler(newRun func() imgsize.Processor, logger *zap.Logger) *RunHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RunHandler{
		newRun:  newRun,
		timeout: finalizeTimeout,
		logger:  logger,
		current: newRun(),
		started: time.Now().UTC(),
	}
}

type runResponse struct {
	StartedAt time.Time            `json:"started_at"`
	Totals    imgsize.RunTotals    `json:"totals"`
	Pages     []imgsize.PageReport `json:"pages"`
}

type finalizeResponse struct {
	Totals imgsize.RunTotals `json:"totals"`
	Error  string            `json:"error,omitempty"`
}

// Current handles GET /v1/runs/current. Processors that cannot report
// progress yield zero totals.
func (h *RunHandler) Current(w http.ResponseWriter, _ *http.Request) {
	h.mu.RLock()
	proc, started := h.current, h.started
	h.mu.RUnlock()

	resp := runResponse{StartedAt: started, Pages: []imgsize.PageReport{}}
	if s, ok := proc.(snapshotter); ok {
		resp.Totals, resp.Pages = s.Snapshot()
	}
	writeJSON(w, http.StatusOK, resp)
}

// Finalize handles POST /v1/runs/finalize. The next run starts before the
// old one is finalized, so pages keep flowing. Persistence errors are
// reported next to the totals with a 200 since the run itself completed.
func (h *RunHandler) Finalize(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), h.timeout)
	defer cancel()

	totals, err := h.finalize(ctx)
	resp := finalizeResponse{Totals: totals}
	if err != nil {
		h.logger.Warn("run finalized with errors", zap.Error(err))
		resp.Error = err.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

// FinalizeCurrent finalizes the current run without starting another.
func (h *RunHandler) FinalizeCurrent(ctx context.Context) (imgsize.RunTotals, error) {
	h.mu.RLock()
	proc := h.current
	h.mu.RUnlock()
	return proc.FinalizeRun(ctx)
}

func (h *RunHandler) finalize(ctx context.Context) (imgsize.RunTotals, error) {
	next := h.newRun()
	h.mu.Lock()
	old := h.current
	h.current = next
	h.started = time.Now().UTC()
	h.mu.Unlock()
	return old.FinalizeRun(ctx)
}

// processPage routes a page to the current run. A page that raced a
// finalize is retried once on the fresh run.
func (h *RunHandler) processPage(ctx context.Context, pageID, content string) (string, error) {
	for range 2 {
		h.mu.RLock()
		proc := h.current
		h.mu.RUnlock()
		out, err := proc.ProcessPage(ctx, pageID, content)
		if !errors.Is(err, imgsize.ErrRunFinalized) {
			return out, err
		}
	}
	return content, imgsize.ErrRunFinalized
}
