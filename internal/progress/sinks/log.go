package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/JakeFAU/imagesize-intrinsic/internal/progress"
)

// LogSink emits one debug line per batch with discovery and settlement counts.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink wires a Zap logger to the sink interface.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Consume logs a summary of the batch.
func (s *LogSink) Consume(_ context.Context, batch []progress.Event) error {
	discovered, settled := 0, 0
	for _, evt := range batch {
		switch evt.Kind {
		case progress.KindGrow:
			discovered += evt.N
		case progress.KindAdvance:
			settled++
		}
	}
	s.logger.Debug("progress",
		zap.Int("discovered", discovered),
		zap.Int("settled", settled),
		zap.Int("events", len(batch)),
	)
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *LogSink) Close(context.Context) error {
	return nil
}
