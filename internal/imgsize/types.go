package imgsize

// Dimensions is the intrinsic pixel size of an image. It doubles as the
// persisted cache entry.
type Dimensions struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Complete reports whether both sides are positive. Only complete entries are
// ever persisted or written onto a tag.
func (d Dimensions) Complete() bool {
	return d.Width > 0 && d.Height > 0
}

// Status is the terminal outcome recorded for one image tag.
type Status string

// Image outcome statuses written to the run report.
const (
	StatusWrote         Status = "wrote"
	StatusCached        Status = "cached"
	StatusCachedPresent Status = "cached-present"
	StatusSkipped       Status = "skipped"
	StatusFailed        Status = "failed"
)

// Reasons attached to skipped, cached-present and size failures. Probe errors
// use the error message instead.
const (
	ReasonNoSrc          = "no-src"
	ReasonNotRemote      = "not-remote"
	ReasonNotInWhitelist = "not-in-whitelist"
	ReasonAlreadyHasSize = "already-has-size"
	ReasonHadSize        = "had-size"
	ReasonNoSize         = "no-size"
)

// ImageRecord is one entry of a page report.
type ImageRecord struct {
	URL    string `json:"url"`
	Status Status `json:"status"`
	Reason string `json:"reason,omitempty"`
}

// PageReport groups the image records of one page in document order.
type PageReport struct {
	Page   string        `json:"page"`
	Images []ImageRecord `json:"images"`
}

// PageCounters tallies the outcomes of a single page. Total counts only
// remote, allow-listed images; cached includes cached-present.
type PageCounters struct {
	Total   int `json:"total"`
	Wrote   int `json:"wrote"`
	Cached  int `json:"cached"`
	Failed  int `json:"failed"`
	Skipped int `json:"skipped"`
}

// Record folds one outcome into the counters.
func (c *PageCounters) Record(status Status) {
	switch status {
	case StatusWrote:
		c.Wrote++
	case StatusCached, StatusCachedPresent:
		c.Cached++
	case StatusFailed:
		c.Failed++
	case StatusSkipped:
		c.Skipped++
	}
}

// RunTotals are the process-wide counters persisted in the summary line.
type RunTotals struct {
	Pages   int `json:"pages"`
	Images  int `json:"imgs_total"`
	Wrote   int `json:"wrote"`
	Cached  int `json:"cached"`
	Failed  int `json:"failed"`
	Skipped int `json:"skipped"`
	Cleaned int `json:"cleaned"`
}

// Add accumulates one finished page.
func (t *RunTotals) Add(page PageCounters) {
	t.Pages++
	t.Images += page.Total
	t.Wrote += page.Wrote
	t.Cached += page.Cached
	t.Failed += page.Failed
	t.Skipped += page.Skipped
}

// ProbeResult is what a successful network probe returns.
type ProbeResult struct {
	Dimensions
	FinalURL string
}

// RunReport is the persisted run report document.
type RunReport struct {
	Pages []PageReport `json:"pages"`
}
