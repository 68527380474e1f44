package imgsize

import "context"

// Prober resolves the intrinsic size of a remote image. Implementations own
// timeouts and retries.
type Prober interface {
	Probe(ctx context.Context, url string) (ProbeResult, error)
}

// DimensionCache is the run-scoped view of the persisted dimension store.
type DimensionCache interface {
	Get(ctx context.Context, key string) (Dimensions, bool)
	Put(key string, dims Dimensions)
	MarkUsed(key string)
	Checkpoint(ctx context.Context) error
	Flush(ctx context.Context) (int, error)
}

// Processor is the host-facing contract: one call per rendered page and one
// finalize call per run.
type Processor interface {
	ProcessPage(ctx context.Context, pageID string, content string) (string, error)
	FinalizeRun(ctx context.Context) (RunTotals, error)
}

// Publisher announces finished runs to downstream consumers.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}
