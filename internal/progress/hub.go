package progress

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/imagesize-intrinsic/internal/imgsize"
)

// Config controls buffering and batching for the Hub. Zero values select
// the defaults.
type Config struct {
	BufferSize     int
	MaxBatchEvents int
	MaxBatchWait   time.Duration
	Logger         *zap.Logger
}

const (
	defaultBufferSize     = 4096
	defaultMaxBatchEvents = 256
	defaultMaxBatchWait   = 100 * time.Millisecond
)

var _ Observer = (*Hub)(nil)

// Hub counts discovered and settled images for one run and forwards the
// notifications to its sinks in batches, on a goroutine of its own, so probes
// never wait on a terminal or a metrics registry. Counts are exact even when
// the buffer overflows; only the sink notification is lost.
type Hub struct {
	cfg    Config
	sinks  []Sink
	events chan Event
	stopCh chan struct{}
	doneCh chan struct{}
	logger *zap.Logger

	discovered atomic.Int64
	settled    atomic.Int64
	dropped    atomic.Int64
	closed     atomic.Bool
	closeOnce  sync.Once
}

// NewHub starts the batching goroutine for sinks.
func NewHub(cfg Config, sinks ...Sink) *Hub {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = defaultBufferSize
	}
	if cfg.MaxBatchEvents <= 0 {
		cfg.MaxBatchEvents = defaultMaxBatchEvents
	}
	if cfg.MaxBatchWait <= 0 {
		cfg.MaxBatchWait = defaultMaxBatchWait
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Hub{
		cfg:    cfg,
		sinks:  append([]Sink(nil), sinks...),
		events: make(chan Event, cfg.BufferSize),
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
		logger: logger.Named("progress"),
	}
	go h.run()
	return h
}

// Grow announces n newly discovered images.
func (h *Hub) Grow(n int) {
	if n <= 0 || h.closed.Load() {
		return
	}
	h.discovered.Add(int64(n))
	h.emit(Event{Kind: KindGrow, N: n, TS: time.Now().UTC()})
}

// Advance records one settled image.
func (h *Hub) Advance(status imgsize.Status) {
	if h.closed.Load() {
		return
	}
	h.settled.Add(1)
	h.emit(Event{Kind: KindAdvance, Status: status, TS: time.Now().UTC()})
}

// Pending returns discovered images that have not settled yet.
func (h *Hub) Pending() int {
	return int(h.discovered.Load() - h.settled.Load())
}

func (h *Hub) emit(evt Event) {
	select {
	case h.events <- evt:
	default:
		h.dropped.Add(1)
	}
}

// Close flushes buffered events, closes the sinks, and waits for the
// batching goroutine. Later calls and later notifications are ignored.
func (h *Hub) Close(ctx context.Context) error {
	h.closeOnce.Do(func() {
		h.closed.Store(true)
		close(h.stopCh)
	})
	select {
	case <-h.doneCh:
	case <-ctx.Done():
		return ctx.Err()
	}
	if n := h.dropped.Swap(0); n > 0 {
		h.logger.Warn("progress notifications dropped",
			zap.Int64("dropped", n),
			zap.Int64("discovered", h.discovered.Load()),
			zap.Int64("settled", h.settled.Load()),
		)
	}
	return nil
}

func (h *Hub) run() {
	defer close(h.doneCh)
	batch := make([]Event, 0, h.cfg.MaxBatchEvents)
	ticker := time.NewTicker(h.cfg.MaxBatchWait)
	defer ticker.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		h.deliver(batch)
		batch = batch[:0]
	}
	for {
		select {
		case evt := <-h.events:
			batch = append(batch, evt)
			if len(batch) >= h.cfg.MaxBatchEvents {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-h.stopCh:
			for {
				select {
				case evt := <-h.events:
					batch = append(batch, evt)
				default:
					flush()
					h.closeSinks()
					return
				}
			}
		}
	}
}

func (h *Hub) deliver(batch []Event) {
	out := append([]Event(nil), batch...)
	for _, sink := range h.sinks {
		if err := sink.Consume(context.Background(), out); err != nil {
			h.logger.Warn("progress sink consume failed", zap.Error(err))
		}
	}
}

func (h *Hub) closeSinks() {
	for _, sink := range h.sinks {
		if err := sink.Close(context.Background()); err != nil {
			h.logger.Warn("progress sink close failed", zap.Error(err))
		}
	}
}
