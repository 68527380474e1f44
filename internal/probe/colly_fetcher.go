package probe

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/JakeFAU/imagesize-intrinsic/internal/imgsize"
)

const defaultMaxBodyBytes = 4 << 20

// CollyConfig controls the shared collector.
type CollyConfig struct {
	// Timeout bounds the underlying HTTP request; the client's attempt
	// timer normally wins first.
	Timeout time.Duration
	// MaxBodyBytes caps how much of each image is downloaded.
	MaxBodyBytes int
}

// CollyFetcher implements Fetcher using a Colly collector cloned per request.
type CollyFetcher struct {
	baseCollector *colly.Collector
}

type collectorHooks interface {
	OnRequest(colly.RequestCallback)
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// NewCollyFetcher builds a fetcher over a pooled HTTP transport.
func NewCollyFetcher(cfg CollyConfig) *CollyFetcher {
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = defaultMaxBodyBytes
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	c := colly.NewCollector(
		colly.Async(false),
		colly.AllowURLRevisit(),
		colly.MaxBodySize(cfg.MaxBodyBytes),
	)
	c.WithTransport(newHTTPTransport())
	c.SetRequestTimeout(cfg.Timeout)
	return &CollyFetcher{baseCollector: c}
}

// Fetch executes a single GET using a clone of the base collector so
// callbacks never leak between concurrent probes. The request is bound to
// ctx and Fetch returns only once it has ended.
func (f *CollyFetcher) Fetch(ctx context.Context, url string, headers http.Header) (Response, error) {
	var (
		result   Response
		fetchErr error
	)
	collector := f.baseCollector.Clone()
	collector.Context = ctx
	configureCollectorHooks(collector, url, headers, &result, &fetchErr)

	err := collector.Visit(url)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return Response{}, fmt.Errorf("colly fetch canceled: %w", ctxErr)
	}
	if fetchErr != nil {
		return Response{}, fetchErr
	}
	if err != nil {
		return Response{}, &imgsize.ProbeNetworkError{URL: url, Err: err}
	}
	return result, nil
}

func configureCollectorHooks(
	hooks collectorHooks,
	url string,
	headers http.Header,
	result *Response,
	fetchErr *error,
) {
	hooks.OnRequest(func(r *colly.Request) {
		for key, values := range headers {
			r.Headers.Del(key)
			for _, v := range values {
				r.Headers.Add(key, v)
			}
		}
	})

	hooks.OnResponse(func(r *colly.Response) {
		final := url
		if r.Request != nil && r.Request.URL != nil {
			final = r.Request.URL.String()
		}
		contentType := ""
		if r.Headers != nil {
			contentType = r.Headers.Get("Content-Type")
		}
		*result = Response{
			FinalURL:    final,
			StatusCode:  r.StatusCode,
			ContentType: contentType,
			Body:        append([]byte(nil), r.Body...),
		}
	})

	hooks.OnError(func(r *colly.Response, err error) {
		status := 0
		if r != nil {
			status = r.StatusCode
		}
		*fetchErr = &imgsize.ProbeNetworkError{URL: url, StatusCode: status, Err: err}
	})
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   8,
		IdleConnTimeout:       90 * time.Second,
	}
}
