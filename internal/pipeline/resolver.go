package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/JakeFAU/imagesize-intrinsic/internal/htmltag"
	"github.com/JakeFAU/imagesize-intrinsic/internal/imgsize"
	"github.com/JakeFAU/imagesize-intrinsic/internal/limiter"
	"github.com/JakeFAU/imagesize-intrinsic/internal/metrics"
	"github.com/JakeFAU/imagesize-intrinsic/internal/urlnorm"
)

// imageTask is the per-tag working state for one page.
type imageTask struct {
	match   htmltag.Match
	tag     htmltag.Tag
	key     string
	safe    string
	record  imgsize.ImageRecord
	changed bool
}

// probeGroup shares one network probe among all tags of a page with the same
// cache key.
type probeGroup struct {
	key      string
	url      string
	tasks    []*imageTask
	handle   *limiter.Task
	result   imgsize.ProbeResult
	err      error
	advanced bool
}

// resolver walks the tags of one page through their states: excluded,
// already sized, cache hit, or probing, and finally resolved or failed.
type resolver struct {
	p        *Pipeline
	tasks    []*imageTask
	groups   []*probeGroup
	byKey    map[string]*probeGroup
	counters imgsize.PageCounters
}

func newResolver(p *Pipeline, matches []htmltag.Match) *resolver {
	r := &resolver{
		p:     p,
		tasks: make([]*imageTask, len(matches)),
		byKey: make(map[string]*probeGroup),
	}
	for i, m := range matches {
		r.tasks[i] = &imageTask{match: m, tag: htmltag.ParseTag(m.Text)}
	}
	return r
}

// classify settles every tag that needs no network access and groups the
// rest by cache key.
func (r *resolver) classify(ctx context.Context) {
	for _, t := range r.tasks {
		r.classifyOne(ctx, t)
	}
}

func (r *resolver) classifyOne(ctx context.Context, t *imageTask) {
	cfg := r.p.cfg
	src := t.tag.Src()
	switch {
	case src == "":
		r.settle(t, "", imgsize.StatusSkipped, imgsize.ReasonNoSrc)
		return
	case !urlnorm.IsRemote(src):
		r.settle(t, src, imgsize.StatusSkipped, imgsize.ReasonNotRemote)
		return
	case !urlnorm.InAllowlist(src, cfg.Whitelist):
		r.settle(t, src, imgsize.StatusSkipped, imgsize.ReasonNotInWhitelist)
		return
	}
	r.counters.Total++

	safe, err := urlnorm.SafeURL(src)
	if err != nil {
		r.settle(t, src, imgsize.StatusFailed, err.Error())
		return
	}
	key, err := urlnorm.CacheKey(src, cfg.StripQuery)
	if err != nil {
		r.settle(t, safe, imgsize.StatusFailed, err.Error())
		return
	}
	t.safe, t.key = safe, key

	cache := r.p.cache
	if w, h, ok := t.tag.NumericSize(); ok {
		if _, complete := cache.Get(ctx, key); complete {
			cache.MarkUsed(key)
		} else if cfg.CachePresentWithSize {
			cache.Put(key, imgsize.Dimensions{Width: w, Height: h})
			r.settle(t, safe, imgsize.StatusCachedPresent, imgsize.ReasonHadSize)
			return
		}
		r.settle(t, safe, imgsize.StatusSkipped, imgsize.ReasonAlreadyHasSize)
		return
	}

	if dims, ok := cache.Get(ctx, key); ok {
		cache.MarkUsed(key)
		t.tag.SetSize(dims.Width, dims.Height)
		t.changed = true
		r.settle(t, safe, imgsize.StatusCached, "")
		return
	}

	g, ok := r.byKey[key]
	if !ok {
		g = &probeGroup{key: key, url: safe}
		r.byKey[key] = g
		r.groups = append(r.groups, g)
	}
	g.tasks = append(g.tasks, t)
}

// probe submits one unit per group and blocks until all of them settle.
func (r *resolver) probe(ctx context.Context) {
	for _, g := range r.groups {
		g.handle = r.p.limiter.Submit(func() error {
			metrics.IncProbesInFlight()
			defer metrics.DecProbesInFlight()
			g.result, g.err = r.p.prober.Probe(ctx, g.url)
			status, _ := probeOutcome(g.result, g.err)
			for range g.tasks {
				r.p.progress.Advance(status)
			}
			g.advanced = true
			return nil
		})
	}
	for _, g := range r.groups {
		if err := g.handle.Wait(); err != nil {
			g.err = fmt.Errorf("probe %s: %w", g.url, err)
		}
		r.settleGroup(g)
	}
}

func (r *resolver) settleGroup(g *probeGroup) {
	status, reason := probeOutcome(g.result, g.err)
	if status == imgsize.StatusWrote {
		r.p.cache.Put(g.key, g.result.Dimensions)
	}
	url := g.url
	if err := probeError(g.result, g.err); err == nil || errors.Is(err, imgsize.ErrBadDimensions) {
		if g.result.FinalURL != "" {
			url = g.result.FinalURL
		}
	}
	for _, t := range g.tasks {
		if status == imgsize.StatusWrote {
			t.tag.SetSize(g.result.Width, g.result.Height)
			t.changed = true
		}
		t.record = imgsize.ImageRecord{URL: url, Status: status, Reason: reason}
		r.counters.Record(status)
		if !g.advanced {
			r.p.progress.Advance(status)
		}
	}
}

// probeError folds a successful probe without a usable size into
// imgsize.ErrBadDimensions.
func probeError(res imgsize.ProbeResult, err error) error {
	if err == nil && !res.Complete() {
		return imgsize.ErrBadDimensions
	}
	return err
}

// probeOutcome maps a probe result onto a terminal status and reason.
func probeOutcome(res imgsize.ProbeResult, err error) (imgsize.Status, string) {
	if err := probeError(res, err); err != nil {
		return imgsize.StatusFailed, err.Error()
	}
	return imgsize.StatusWrote, ""
}

func (r *resolver) settle(t *imageTask, url string, status imgsize.Status, reason string) {
	t.record = imgsize.ImageRecord{URL: url, Status: status, Reason: reason}
	r.counters.Record(status)
	r.p.progress.Advance(status)
}

// records returns one record per tag in document order.
func (r *resolver) records() []imgsize.ImageRecord {
	out := make([]imgsize.ImageRecord, 0, len(r.tasks))
	for _, t := range r.tasks {
		out = append(out, t.record)
	}
	return out
}

// replacements returns the serialized tags that changed. Untouched tags keep
// their original bytes.
func (r *resolver) replacements() []htmltag.Replacement {
	var reps []htmltag.Replacement
	for _, t := range r.tasks {
		if !t.changed {
			continue
		}
		reps = append(reps, htmltag.Replacement{Start: t.match.Start, End: t.match.End, Text: t.tag.String()})
	}
	return reps
}
