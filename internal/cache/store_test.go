package cache

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/imagesize-intrinsic/internal/imgsize"
	"github.com/JakeFAU/imagesize-intrinsic/internal/storage"
	"github.com/JakeFAU/imagesize-intrinsic/internal/storage/memory"
)

const docName = "imgsize-cache.json"

type countingProvider struct {
	storage.Provider
	mu      sync.Mutex
	reads   int
	writes  int
	readErr error
}

func (p *countingProvider) Read(ctx context.Context, name string) ([]byte, error) {
	p.mu.Lock()
	p.reads++
	err := p.readErr
	p.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return p.Provider.Read(ctx, name)
}

func (p *countingProvider) Write(ctx context.Context, name string, data []byte) error {
	p.mu.Lock()
	p.writes++
	p.mu.Unlock()
	return p.Provider.Write(ctx, name, data)
}

func seed(t *testing.T, doc string) *countingProvider {
	t.Helper()
	backing := memory.New()
	if doc != "" {
		require.NoError(t, backing.Write(context.Background(), docName, []byte(doc)))
	}
	return &countingProvider{Provider: backing}
}

func readDoc(t *testing.T, p storage.Provider) map[string]imgsize.Dimensions {
	t.Helper()
	data, err := p.Read(context.Background(), docName)
	require.NoError(t, err)
	out := map[string]imgsize.Dimensions{}
	require.NoError(t, json.Unmarshal(data, &out))
	return out
}

func TestNewRequiresProvider(t *testing.T) {
	t.Parallel()

	_, err := New(nil, docName, nil)
	require.ErrorIs(t, err, imgsize.ErrMissingDependency)
}

func TestGetLoadsLazilyOnce(t *testing.T) {
	t.Parallel()

	p := seed(t, `{"https://a.com/x.jpg":{"width":800,"height":600}}`)
	store, err := New(p, docName, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, p.reads)

	d, ok := store.Get(context.Background(), "https://a.com/x.jpg")
	require.True(t, ok)
	assert.Equal(t, imgsize.Dimensions{Width: 800, Height: 600}, d)

	_, ok = store.Get(context.Background(), "https://a.com/missing.jpg")
	assert.False(t, ok)
	assert.Equal(t, 1, p.reads)
}

func TestLoadToleratesCorruptDocuments(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name string
		doc  string
		hit  bool
	}{
		{"not json", `{{{`, false},
		{"array", `[1,2]`, false},
		{"bad entry", `{"k":"oops","good":{"width":1,"height":2}}`, false},
		{"incomplete entry", `{"k":{"width":0,"height":2}}`, false},
		{"good", `{"k":{"width":3,"height":4}}`, true},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			store, err := New(seed(t, tc.doc), docName, nil)
			require.NoError(t, err)
			_, ok := store.Get(context.Background(), "k")
			assert.Equal(t, tc.hit, ok)
		})
	}

	store, err := New(seed(t, `{"k":"oops","good":{"width":1,"height":2}}`), docName, nil)
	require.NoError(t, err)
	_, ok := store.Get(context.Background(), "good")
	assert.True(t, ok, "valid entries survive next to corrupt ones")
}

func TestPutIgnoresIncompleteSizes(t *testing.T) {
	t.Parallel()

	store, err := New(seed(t, ""), docName, nil)
	require.NoError(t, err)
	store.Put("k", imgsize.Dimensions{Width: 5})
	_, ok := store.Get(context.Background(), "k")
	assert.False(t, ok)
	assert.Equal(t, 0, store.Used())
}

func TestFlushMergesAndPrunes(t *testing.T) {
	t.Parallel()

	p := seed(t, `{"old":{"width":1,"height":1},"kept":{"width":2,"height":2}}`)
	store, err := New(p, docName, nil)
	require.NoError(t, err)
	ctx := context.Background()

	_, ok := store.Get(ctx, "kept")
	require.True(t, ok)
	store.MarkUsed("kept")
	store.Put("new", imgsize.Dimensions{Width: 3, Height: 3})

	// Another writer adds an entry after our load.
	require.NoError(t, p.Provider.Write(ctx, docName, []byte(`{"old":{"width":1,"height":1},"kept":{"width":2,"height":2},"other":{"width":9,"height":9}}`)))

	pruned, err := store.Flush(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, pruned)
	assert.Equal(t, map[string]imgsize.Dimensions{
		"kept": {Width: 2, Height: 2},
		"new":  {Width: 3, Height: 3},
	}, readDoc(t, p))
	assert.Equal(t, 0, store.Used(), "used set is consumed")
}

func TestFlushWithoutUsedKeysWritesNothing(t *testing.T) {
	t.Parallel()

	p := seed(t, `{"a":{"width":1,"height":1}}`)
	store, err := New(p, docName, nil)
	require.NoError(t, err)
	_, _ = store.Get(context.Background(), "zzz")

	pruned, err := store.Flush(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, pruned)
	assert.Equal(t, 0, p.writes)
	assert.Len(t, readDoc(t, p), 1)
}

func TestFlushReplacesCorruptDocument(t *testing.T) {
	t.Parallel()

	p := seed(t, `not json`)
	store, err := New(p, docName, nil)
	require.NoError(t, err)
	store.Put("a", imgsize.Dimensions{Width: 1, Height: 1})

	_, err = store.Flush(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[string]imgsize.Dimensions{"a": {Width: 1, Height: 1}}, readDoc(t, p))
}

func TestFlushRefusesToOverwriteUnreadableDocument(t *testing.T) {
	t.Parallel()

	p := seed(t, `{"a":{"width":1,"height":1}}`)
	store, err := New(p, docName, nil)
	require.NoError(t, err)
	store.Put("b", imgsize.Dimensions{Width: 2, Height: 2})

	p.readErr = errors.New("backend unavailable")
	_, err = store.Flush(context.Background())
	require.Error(t, err)
	assert.Equal(t, 0, p.writes)
}

func TestCheckpointDoesNotPrune(t *testing.T) {
	t.Parallel()

	p := seed(t, `{"a":{"width":1,"height":1}}`)
	store, err := New(p, docName, nil)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, store.Checkpoint(ctx))
	assert.Equal(t, 0, p.writes, "nothing new to checkpoint")

	store.Put("b", imgsize.Dimensions{Width: 2, Height: 2})
	require.NoError(t, store.Checkpoint(ctx))
	assert.Equal(t, map[string]imgsize.Dimensions{
		"a": {Width: 1, Height: 1},
		"b": {Width: 2, Height: 2},
	}, readDoc(t, p))
}

func TestPersistedDocumentIsSortedAndIndented(t *testing.T) {
	t.Parallel()

	p := seed(t, "")
	store, err := New(p, docName, nil)
	require.NoError(t, err)
	store.Put("https://b.com/2.png", imgsize.Dimensions{Width: 2, Height: 2})
	store.Put("https://a.com/1.png", imgsize.Dimensions{Width: 1, Height: 1})

	_, err = store.Flush(context.Background())
	require.NoError(t, err)
	data, err := p.Read(context.Background(), docName)
	require.NoError(t, err)
	want := "{\n  \"https://a.com/1.png\": {\n    \"width\": 1,\n    \"height\": 1\n  },\n  \"https://b.com/2.png\": {\n    \"width\": 2,\n    \"height\": 2\n  }\n}"
	assert.Equal(t, want, string(data))
}

func TestConcurrentAccess(t *testing.T) {
	t.Parallel()

	store, err := New(seed(t, ""), docName, nil)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := string(rune('a' + i%8))
			store.Put(key, imgsize.Dimensions{Width: i + 1, Height: i + 1})
			_, _ = store.Get(context.Background(), key)
			store.MarkUsed(key)
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 8, store.Used())
}
