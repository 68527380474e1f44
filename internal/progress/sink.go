package progress

import (
	"context"

	"github.com/JakeFAU/imagesize-intrinsic/internal/imgsize"
)

// Sink consumes batches of progress events. Implementations must be safe for
// repeated calls and honor ctx deadlines.
type Sink interface {
	Consume(ctx context.Context, batch []Event) error
	Close(ctx context.Context) error
}

// Observer receives discovery and settlement notifications from the pipeline.
type Observer interface {
	Grow(n int)
	Advance(status imgsize.Status)
}

// Nop discards all notifications.
type Nop struct{}

// Grow does nothing.
func (Nop) Grow(int) {}

// Advance does nothing.
func (Nop) Advance(imgsize.Status) {}
