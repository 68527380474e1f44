// Package pipeline annotates the image tags of rendered pages with their
// intrinsic width and height. A Pipeline is one run: it shares a dimension
// cache, a probe limiter, and a run report across every page it processes,
// and FinalizeRun persists them once at the end.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/imagesize-intrinsic/internal/htmltag"
	"github.com/JakeFAU/imagesize-intrinsic/internal/imgsize"
	"github.com/JakeFAU/imagesize-intrinsic/internal/limiter"
	"github.com/JakeFAU/imagesize-intrinsic/internal/metrics"
	"github.com/JakeFAU/imagesize-intrinsic/internal/progress"
	"github.com/JakeFAU/imagesize-intrinsic/internal/report"
)

// DefaultConcurrency bounds in-flight probes when Config.Concurrency is unset.
const DefaultConcurrency = 8

// Page outcomes recorded in metrics.
const (
	pageRewritten = "rewritten"
	pageUnchanged = "unchanged"
	pageRejected  = "rejected"
)

// Config holds the per-run behavior switches.
type Config struct {
	Concurrency          int
	StripQuery           bool
	Whitelist            []string
	CachePresentWithSize bool
	CheckpointPages      bool
	// NotifyTopic is the event name attached to the run summary. Publishing
	// is skipped when no publisher is wired.
	NotifyTopic string
}

// Deps are the collaborators of a Pipeline. Prober, Cache and Reporter are
// required.
type Deps struct {
	Prober    imgsize.Prober
	Cache     imgsize.DimensionCache
	Reporter  *report.Reporter
	Limiter   *limiter.Limiter
	Progress  progress.Observer
	Publisher imgsize.Publisher
	Logger    *zap.Logger
}

// RunSummary is published once a run is finalized.
type RunSummary struct {
	RunID      string            `json:"run_id"`
	Totals     imgsize.RunTotals `json:"totals"`
	FinishedAt time.Time         `json:"finished_at"`
}

// Pipeline implements imgsize.Processor.
type Pipeline struct {
	cfg       Config
	prober    imgsize.Prober
	cache     imgsize.DimensionCache
	reporter  *report.Reporter
	limiter   *limiter.Limiter
	progress  progress.Observer
	publisher imgsize.Publisher
	logger    *zap.Logger

	// run is held shared by every page and exclusively by FinalizeRun.
	run       sync.RWMutex
	finalized bool
}

var _ imgsize.Processor = (*Pipeline)(nil)

// New validates deps and returns a ready pipeline.
func New(cfg Config, deps Deps) (*Pipeline, error) {
	switch {
	case deps.Prober == nil:
		return nil, fmt.Errorf("prober: %w", imgsize.ErrMissingDependency)
	case deps.Cache == nil:
		return nil, fmt.Errorf("dimension cache: %w", imgsize.ErrMissingDependency)
	case deps.Reporter == nil:
		return nil, fmt.Errorf("reporter: %w", imgsize.ErrMissingDependency)
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	lim := deps.Limiter
	if lim == nil {
		lim = limiter.New(cfg.Concurrency)
	}
	obs := deps.Progress
	if obs == nil {
		obs = progress.Nop{}
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		cfg:       cfg,
		prober:    deps.Prober,
		cache:     deps.Cache,
		reporter:  deps.Reporter,
		limiter:   lim,
		progress:  obs,
		publisher: deps.Publisher,
		logger:    logger.Named("pipeline"),
	}, nil
}

// ProcessPage returns content with width and height written onto every
// remote image tag whose size is cached or could be probed. It blocks until
// all probes for the page settle. Per-image failures never fail the page.
func (p *Pipeline) ProcessPage(ctx context.Context, pageID string, content string) (string, error) {
	p.run.RLock()
	defer p.run.RUnlock()
	if p.finalized {
		metrics.ObservePage(pageRejected)
		return content, imgsize.ErrRunFinalized
	}

	matches := slices.Collect(htmltag.Scan(content))
	if len(matches) == 0 {
		p.reporter.AddPage(pageID, nil, imgsize.PageCounters{})
		metrics.ObservePage(pageUnchanged)
		return content, nil
	}
	p.progress.Grow(len(matches))

	r := newResolver(p, matches)
	r.classify(ctx)
	r.probe(ctx)

	records := r.records()
	p.reporter.AddPage(pageID, records, r.counters)
	p.reporter.LogPage(pageID, records, r.counters)

	if p.cfg.CheckpointPages {
		if err := p.cache.Checkpoint(ctx); err != nil {
			p.logger.Warn("cache checkpoint failed", zap.String("page", pageID), zap.Error(err))
		}
	}

	reps := r.replacements()
	if len(reps) == 0 {
		metrics.ObservePage(pageUnchanged)
		return content, nil
	}
	out, err := htmltag.Apply(content, reps)
	if err != nil {
		p.logger.Warn("rewrite failed, page left unchanged", zap.String("page", pageID), zap.Error(err))
		metrics.ObservePage(pageUnchanged)
		return content, nil
	}
	metrics.ObservePage(pageRewritten)
	return out, nil
}

// FinalizeRun waits for in-flight pages, prunes and persists the cache,
// writes the run report, and logs the summary. Later pages are rejected with
// imgsize.ErrRunFinalized; a second call returns the same totals. Persistence
// failures are logged and returned joined; they never stop the remaining
// steps.
func (p *Pipeline) FinalizeRun(ctx context.Context) (imgsize.RunTotals, error) {
	p.run.Lock()
	defer p.run.Unlock()
	if p.finalized {
		return p.reporter.Totals(), nil
	}
	p.finalized = true

	var errs []error
	pruned, err := p.cache.Flush(ctx)
	if err != nil {
		p.logger.Warn("cache flush failed", zap.Error(err))
		errs = append(errs, fmt.Errorf("flush cache: %w", err))
	} else {
		p.reporter.SetCleaned(pruned)
		metrics.AddCachePruned(pruned)
	}

	if closer, ok := p.progress.(interface{ Close(context.Context) error }); ok {
		if err := closer.Close(ctx); err != nil {
			p.logger.Warn("progress close failed", zap.Error(err))
		}
	}

	if err := p.reporter.Persist(ctx); err != nil {
		p.logger.Warn("run report not written", zap.Error(err))
		errs = append(errs, err)
	}
	p.reporter.LogSummary()

	totals := p.reporter.Totals()
	if p.publisher != nil && p.cfg.NotifyTopic != "" {
		summary := RunSummary{RunID: p.reporter.RunID(), Totals: totals, FinishedAt: time.Now().UTC()}
		if _, err := p.publisher.Publish(ctx, p.cfg.NotifyTopic, summary); err != nil {
			p.logger.Warn("run summary not published", zap.Error(err))
			errs = append(errs, fmt.Errorf("publish run summary: %w", err))
		}
	}
	return totals, errors.Join(errs...)
}

// Snapshot returns the totals and page reports accumulated so far.
func (p *Pipeline) Snapshot() (imgsize.RunTotals, []imgsize.PageReport) {
	return p.reporter.Totals(), p.reporter.Pages()
}

// Passthrough returns every page unchanged. Hosts fall back to it when the
// feature is disabled or a collaborator cannot be built.
type Passthrough struct{}

var _ imgsize.Processor = Passthrough{}

// ProcessPage returns content as is.
func (Passthrough) ProcessPage(_ context.Context, _ string, content string) (string, error) {
	return content, nil
}

// FinalizeRun returns zero totals.
func (Passthrough) FinalizeRun(context.Context) (imgsize.RunTotals, error) {
	return imgsize.RunTotals{}, nil
}
