// Package probe resolves the intrinsic size of remote images. Each probe
// makes up to retry+1 attempts, and every attempt races the fetch against a
// per-attempt timer.
package probe

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/imagesize-intrinsic/internal/imgsize"
	"github.com/JakeFAU/imagesize-intrinsic/internal/metrics"
	"github.com/JakeFAU/imagesize-intrinsic/internal/ratelimit"
)

// Default request headers sent with every probe unless overridden.
const (
	DefaultUserAgent = "imagesize-intrinsic/1.0 (+https://github.com/JakeFAU/imagesize-intrinsic)"
	DefaultAccept    = "image/*,*/*;q=0.8"
)

const defaultTimeout = 8 * time.Second

// Response is what a Fetcher returns for one request.
type Response struct {
	FinalURL    string
	StatusCode  int
	ContentType string
	Body        []byte
}

// Fetcher performs a single GET for url with the given headers.
type Fetcher interface {
	Fetch(ctx context.Context, url string, headers http.Header) (Response, error)
}

// Config controls attempt budget, timing, and request headers.
type Config struct {
	Timeout time.Duration
	Retry   int
	Headers http.Header
}

// Client implements imgsize.Prober.
type Client struct {
	fetcher Fetcher
	limiter *ratelimit.Limiter
	cfg     Config
	logger  *zap.Logger
}

var _ imgsize.Prober = (*Client)(nil)

// New builds a Client. A nil limiter disables per-host pacing.
func New(fetcher Fetcher, cfg Config, limiter *ratelimit.Limiter, logger *zap.Logger) (*Client, error) {
	if fetcher == nil {
		return nil, fmt.Errorf("probe fetcher: %w", imgsize.ErrMissingDependency)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.Retry < 0 {
		cfg.Retry = 0
	}
	if cfg.Headers == nil {
		cfg.Headers = BuildHeaders(nil, "")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		fetcher: fetcher,
		limiter: limiter,
		cfg:     cfg,
		logger:  logger.Named("probe"),
	}, nil
}

// BuildHeaders layers configured headers and an optional Referer over the
// default User-Agent and Accept headers.
func BuildHeaders(custom map[string]string, referer string) http.Header {
	h := http.Header{}
	h.Set("User-Agent", DefaultUserAgent)
	h.Set("Accept", DefaultAccept)
	for k, v := range custom {
		h.Set(k, v)
	}
	if referer != "" {
		h.Set("Referer", referer)
	}
	return h
}

// Probe returns the image size at url. Attempts are immediate; the error of
// the last attempt is returned once the budget is spent.
func (c *Client) Probe(ctx context.Context, url string) (imgsize.ProbeResult, error) {
	attempts := c.cfg.Retry + 1
	var lastErr error
	for i := 1; i <= attempts; i++ {
		res, err := c.attempt(ctx, url)
		if err == nil {
			return res, nil
		}
		lastErr = err
		c.logger.Debug("probe attempt failed",
			zap.String("url", url),
			zap.Int("attempt", i),
			zap.Int("attempts", attempts),
			zap.Error(err),
		)
		if ctx.Err() != nil {
			break
		}
	}
	return imgsize.ProbeResult{}, lastErr
}

type outcome struct {
	res imgsize.ProbeResult
	err error
}

func (c *Client) attempt(ctx context.Context, url string) (imgsize.ProbeResult, error) {
	if err := c.limiter.Wait(ctx, url); err != nil {
		return imgsize.ProbeResult{}, err
	}

	start := time.Now()
	actx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	done := make(chan outcome, 1)
	go func() {
		done <- c.fetchAndDecode(actx, url)
	}()

	var out outcome
	select {
	case out = <-done:
		if out.err != nil && timedOut(ctx, actx) {
			out.err = imgsize.ErrProbeTimeout
		}
	case <-actx.Done():
		if ctx.Err() != nil {
			out.err = fmt.Errorf("probe canceled: %w", ctx.Err())
		} else {
			out.err = imgsize.ErrProbeTimeout
		}
	}

	switch {
	case out.err == nil:
		metrics.ObserveProbeAttempt(metrics.ProbeOK, time.Since(start))
	case errors.Is(out.err, imgsize.ErrProbeTimeout):
		metrics.ObserveProbeAttempt(metrics.ProbeTimeout, time.Since(start))
	default:
		metrics.ObserveProbeAttempt(metrics.ProbeError, time.Since(start))
	}
	return out.res, out.err
}

func (c *Client) fetchAndDecode(ctx context.Context, url string) outcome {
	resp, err := c.fetcher.Fetch(ctx, url, c.cfg.Headers.Clone())
	if err != nil {
		var netErr *imgsize.ProbeNetworkError
		if !errors.As(err, &netErr) {
			err = &imgsize.ProbeNetworkError{URL: url, Err: err}
		}
		return outcome{err: err}
	}
	dims, err := Decode(resp.ContentType, resp.Body)
	if err != nil {
		return outcome{err: err}
	}
	final := resp.FinalURL
	if final == "" {
		final = url
	}
	return outcome{res: imgsize.ProbeResult{Dimensions: dims, FinalURL: final}}
}

// timedOut reports whether the attempt context expired while the caller's did not.
func timedOut(parent, attempt context.Context) bool {
	return parent.Err() == nil && errors.Is(attempt.Err(), context.DeadlineExceeded)
}
