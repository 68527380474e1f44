package progress

import (
	"time"

	"github.com/JakeFAU/imagesize-intrinsic/internal/imgsize"
)

// Kind denotes the type of notification represented by an Event.
type Kind string

// Supported event kinds.
const (
	// KindGrow announces N newly discovered images.
	KindGrow Kind = "GROW"
	// KindAdvance marks one image as settled.
	KindAdvance Kind = "ADVANCE"
)

// Event is one progress notification.
type Event struct {
	Kind Kind
	// N is the number of discovered images for KindGrow.
	N int
	// Status is the outcome of the settled image for KindAdvance.
	Status imgsize.Status
	TS     time.Time
}
