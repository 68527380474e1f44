package sinks

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/schollz/progressbar/v3"

	"github.com/JakeFAU/imagesize-intrinsic/internal/progress"
)

// BarSink renders a terminal progress bar. The bar appears with the first
// discovered images and its maximum grows as more pages report images.
type BarSink struct {
	w io.Writer

	mu    sync.Mutex
	bar   *progressbar.ProgressBar
	total int
	done  int
}

// NewBarSink draws on w, or stderr when w is nil.
func NewBarSink(w io.Writer) *BarSink {
	if w == nil {
		w = os.Stderr
	}
	return &BarSink{w: w}
}

// Consume grows and advances the bar.
func (s *BarSink) Consume(_ context.Context, batch []progress.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, evt := range batch {
		switch evt.Kind {
		case progress.KindGrow:
			s.total += evt.N
			if s.bar == nil {
				s.bar = progressbar.NewOptions(s.total,
					progressbar.OptionSetWriter(s.w),
					progressbar.OptionSetDescription("[imgsize]"),
					progressbar.OptionShowCount(),
					progressbar.OptionSetWidth(30),
					progressbar.OptionClearOnFinish(),
					progressbar.OptionSetRenderBlankState(true),
				)
				continue
			}
			s.bar.ChangeMax(s.total)
		case progress.KindAdvance:
			if s.bar == nil || s.done >= s.total {
				continue
			}
			s.done++
			if err := s.bar.Add(1); err != nil {
				return fmt.Errorf("advance progress bar: %w", err)
			}
		}
	}
	return nil
}

// Close finishes and clears the bar.
func (s *BarSink) Close(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.bar == nil {
		return nil
	}
	if err := s.bar.Finish(); err != nil {
		return fmt.Errorf("finish progress bar: %w", err)
	}
	s.bar = nil
	return nil
}
