package imgsize

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingDependency marks a collaborator that could not be built; hosts
	// degrade to a pass-through processor when they see it.
	ErrMissingDependency = errors.New("missing dependency")
	// ErrCacheUnreadable marks a cache document that could not be read or
	// decoded. It is logged and the cache starts empty.
	ErrCacheUnreadable = errors.New("cache unreadable")
	// ErrProbeTimeout is returned when a probe attempt loses the race against
	// its timer.
	ErrProbeTimeout = errors.New("timeout")
	// ErrBadDimensions marks a probe that succeeded without a usable size. Its
	// message is the no-size report reason.
	ErrBadDimensions = errors.New(ReasonNoSize)
	// ErrRunFinalized is returned for pages submitted after FinalizeRun.
	ErrRunFinalized = errors.New("run already finalized")
)

// ProbeNetworkError wraps a transport or HTTP status failure for one URL.
type ProbeNetworkError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *ProbeNetworkError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("status %d: %v", e.StatusCode, e.Err)
	}
	return e.Err.Error()
}

func (e *ProbeNetworkError) Unwrap() error {
	return e.Err
}
