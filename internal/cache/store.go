// Package cache holds the run-scoped dimension cache: a lazily loaded
// snapshot of the persisted document, the entries resolved during the run,
// and the set of keys the run touched.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/JakeFAU/imagesize-intrinsic/internal/imgsize"
	"github.com/JakeFAU/imagesize-intrinsic/internal/metrics"
	"github.com/JakeFAU/imagesize-intrinsic/internal/storage"
)

// Store is safe for concurrent use.
type Store struct {
	provider storage.Provider
	name     string
	logger   *zap.Logger

	mu      sync.Mutex
	loaded  bool
	entries map[string]imgsize.Dimensions
	used    map[string]struct{}
	dirty   bool
}

var _ imgsize.DimensionCache = (*Store)(nil)

// New returns a store persisting the document called name through provider.
// Nothing is read until the first lookup.
func New(provider storage.Provider, name string, logger *zap.Logger) (*Store, error) {
	if provider == nil {
		return nil, fmt.Errorf("storage provider: %w", imgsize.ErrMissingDependency)
	}
	if name == "" {
		return nil, fmt.Errorf("cache document name is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		provider: provider,
		name:     name,
		logger:   logger.Named("cache"),
		entries:  make(map[string]imgsize.Dimensions),
		used:     make(map[string]struct{}),
	}, nil
}

// Load reads the persisted snapshot once. A missing or unreadable document
// leaves the store empty; it is never fatal.
func (s *Store) Load(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loadLocked(ctx)
}

func (s *Store) loadLocked(ctx context.Context) {
	if s.loaded {
		return
	}
	s.loaded = true
	snapshot, err := s.readSnapshot(ctx)
	if err != nil {
		s.logger.Warn("starting with empty cache", zap.String("document", s.name), zap.Error(err))
		return
	}
	for k, v := range snapshot {
		if _, ok := s.entries[k]; !ok {
			s.entries[k] = v
		}
	}
	metrics.SetCacheEntries(len(s.entries))
	s.logger.Debug("cache loaded", zap.String("document", s.name), zap.Int("entries", len(snapshot)))
}

// Get returns a complete entry for key.
func (s *Store) Get(ctx context.Context, key string) (imgsize.Dimensions, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loadLocked(ctx)
	d, ok := s.entries[key]
	if !ok || !d.Complete() {
		metrics.RecordCacheLookup(false)
		return imgsize.Dimensions{}, false
	}
	metrics.RecordCacheLookup(true)
	return d, true
}

// Put records a complete entry and marks its key used. Incomplete sizes are ignored.
func (s *Store) Put(key string, dims imgsize.Dimensions) {
	if !dims.Complete() {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = dims
	s.used[key] = struct{}{}
	s.dirty = true
	metrics.SetCacheEntries(len(s.entries))
}

// MarkUsed keeps key alive through the end-of-run prune.
func (s *Store) MarkUsed(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.used[key] = struct{}{}
}

// Used returns the number of keys touched so far.
func (s *Store) Used() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.used)
}

// Checkpoint merges new entries into the persisted document without pruning.
func (s *Store) Checkpoint(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.dirty {
		return nil
	}
	onDisk, err := s.readSnapshot(ctx)
	if err != nil && !errors.Is(err, imgsize.ErrCacheUnreadable) {
		return err
	}
	merged, _ := MergeAndPrune(onDisk, s.entries, nil)
	if err := s.persist(ctx, merged); err != nil {
		return err
	}
	s.dirty = false
	return nil
}

// Flush re-reads the persisted document, merges the working set, prunes
// keys the run never touched, and writes the result. It returns the number
// of pruned entries and consumes the used set. A run that touched nothing
// writes nothing.
func (s *Store) Flush(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.used) == 0 {
		s.logger.Debug("no cache keys used, skipping write")
		return 0, nil
	}
	onDisk, err := s.readSnapshot(ctx)
	if err != nil && !errors.Is(err, imgsize.ErrCacheUnreadable) {
		return 0, err
	}
	if err != nil {
		s.logger.Warn("replacing unreadable cache document", zap.String("document", s.name), zap.Error(err))
	}
	merged, pruned := MergeAndPrune(onDisk, s.entries, s.used)
	if err := s.persist(ctx, merged); err != nil {
		return 0, err
	}
	s.entries = merged
	s.used = make(map[string]struct{})
	s.dirty = false
	metrics.SetCacheEntries(len(merged))
	if pruned > 0 {
		s.logger.Debug("pruned unused cache entries", zap.Int("count", pruned))
	}
	return pruned, nil
}

// readSnapshot decodes the persisted document. A missing document is an
// empty snapshot. Undecodable individual entries are skipped; an
// undecodable document yields an empty snapshot and ErrCacheUnreadable.
// Other read failures are returned as is so callers never overwrite a
// document they could not see.
func (s *Store) readSnapshot(ctx context.Context) (map[string]imgsize.Dimensions, error) {
	out := make(map[string]imgsize.Dimensions)
	data, err := s.provider.Read(ctx, s.name)
	if errors.Is(err, storage.ErrNotExist) {
		return out, nil
	}
	if err != nil {
		return out, fmt.Errorf("read cache: %w", err)
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return out, fmt.Errorf("%w: %s: %v", imgsize.ErrCacheUnreadable, s.name, err)
	}
	skipped := 0
	for k, v := range raw {
		var d imgsize.Dimensions
		if err := json.Unmarshal(v, &d); err != nil || !d.Complete() {
			skipped++
			continue
		}
		out[k] = d
	}
	if skipped > 0 {
		s.logger.Debug("ignored malformed cache entries", zap.Int("count", skipped))
	}
	return out, nil
}

func (s *Store) persist(ctx context.Context, entries map[string]imgsize.Dimensions) error {
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("encode cache: %w", err)
	}
	if err := s.provider.Write(ctx, s.name, data); err != nil {
		return fmt.Errorf("write cache: %w", err)
	}
	return nil
}
