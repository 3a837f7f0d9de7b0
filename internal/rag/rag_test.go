package rag

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sevigo/goframe/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sevigo/review-warden/internal/storage"
)

// fakeVectors keeps collections in memory and ranks documents by how many
// query words they contain.
type fakeVectors struct {
	mu          sync.Mutex
	collections map[string][]schema.Document
	deleted     []string
}

func newFakeVectors() *fakeVectors {
	return &fakeVectors{collections: make(map[string][]schema.Document)}
}

func (f *fakeVectors) AddDocuments(_ context.Context, name string, docs []schema.Document) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.collections[name] = append(f.collections[name], docs...)
	return nil
}

func (f *fakeVectors) SimilaritySearch(_ context.Context, name, query string, n int) ([]schema.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	docs, ok := f.collections[name]
	if !ok {
		return nil, fmt.Errorf("collection %s not found", name)
	}
	words := strings.Fields(strings.ToLower(query))
	score := func(d schema.Document) int {
		s := 0
		for _, w := range words {
			if strings.Contains(strings.ToLower(d.PageContent), w) {
				s++
			}
		}
		return s
	}
	ranked := append([]schema.Document(nil), docs...)
	sort.SliceStable(ranked, func(i, j int) bool { return score(ranked[i]) > score(ranked[j]) })
	if len(ranked) > n {
		ranked = ranked[:n]
	}
	return ranked, nil
}

func (f *fakeVectors) DeleteCollection(_ context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.collections, name)
	f.deleted = append(f.deleted, name)
	return nil
}

func (f *fakeVectors) names() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for n := range f.collections {
		out = append(out, n)
	}
	return out
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func sampleFiles() []File {
	return []File{
		{Path: "auth/login.go", Content: "package auth\n\nfunc Login(user, password string) error {\n\treturn checkPassword(user, password)\n}\n"},
		{Path: "billing/invoice.go", Content: "package billing\n\nfunc Invoice(total int) int {\n\treturn total * 2\n}\n"},
		{Path: "assets/logo.png", Content: "\x89PNG\x00\x00binary"},
	}
}

func TestRetriever_UnindexedRepositoryReturnsEmpty(t *testing.T) {
	store := storage.NewMemoryStore()
	r := NewRetriever(newFakeVectors(), store, discard())

	texts, err := r.Retrieve(context.Background(), "login bug", "acme/widgets", 5)
	require.NoError(t, err)
	assert.Empty(t, texts)
	assert.NotNil(t, texts)
}

func TestIndexer_IndexAndRetrieve(t *testing.T) {
	store := storage.NewMemoryStore()
	vectors := newFakeVectors()
	idx := NewIndexer(vectors, store, LineChunker{Size: 3, Overlap: 1}, "nomic-embed-text", 2, discard())
	r := NewRetriever(vectors, store, discard())
	ctx := context.Background()

	n, err := idx.Index(ctx, "acme/widgets", sampleFiles())
	require.NoError(t, err)
	assert.Positive(t, n)

	texts, err := r.Retrieve(ctx, "login password", "acme/widgets", 2)
	require.NoError(t, err)
	require.NotEmpty(t, texts)
	assert.LessOrEqual(t, len(texts), 2)
	assert.Contains(t, texts[0], "Login")
	for _, text := range texts {
		assert.NotContains(t, text, "PNG", "binary files are never indexed")
	}
}

func TestIndexer_ReindexIsIdempotent(t *testing.T) {
	store := storage.NewMemoryStore()
	vectors := newFakeVectors()
	idx := NewIndexer(vectors, store, LineChunker{Size: 3, Overlap: 1}, "nomic-embed-text", 4, discard())
	r := NewRetriever(vectors, store, discard())
	ctx := context.Background()

	var gen int64
	idx.now = func() time.Time { gen++; return time.Unix(0, gen) }

	first, err := idx.Index(ctx, "acme/widgets", sampleFiles())
	require.NoError(t, err)
	before, err := r.Retrieve(ctx, "invoice total", "acme/widgets", 10)
	require.NoError(t, err)

	second, err := idx.Index(ctx, "acme/widgets", sampleFiles())
	require.NoError(t, err)
	after, err := r.Retrieve(ctx, "invoice total", "acme/widgets", 10)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.ElementsMatch(t, before, after)
	assert.Len(t, vectors.names(), 1, "the replaced generation is dropped")
	assert.Len(t, vectors.deleted, 1)
}

func TestRetriever_CollapsesDuplicateTexts(t *testing.T) {
	store := storage.NewMemoryStore()
	vectors := newFakeVectors()
	idx := NewIndexer(vectors, store, LineChunker{Size: 10}, "m", 1, discard())
	ctx := context.Background()

	files := []File{
		{Path: "a/util.go", Content: "func Helper() {}\n"},
		{Path: "b/util.go", Content: "func Helper() {}\n"},
	}
	_, err := idx.Index(ctx, "acme/widgets", files)
	require.NoError(t, err)

	texts, err := NewRetriever(vectors, store, discard()).Retrieve(ctx, "helper", "acme/widgets", 5)
	require.NoError(t, err)
	assert.Equal(t, []string{"func Helper() {}"}, texts)
}

type failingVectors struct{ *fakeVectors }

func (failingVectors) AddDocuments(context.Context, string, []schema.Document) error {
	return errors.New("qdrant unavailable")
}

func TestIndexer_FailedWriteKeepsPreviousIndex(t *testing.T) {
	store := storage.NewMemoryStore()
	vectors := newFakeVectors()
	ctx := context.Background()

	good := NewIndexer(vectors, store, LineChunker{Size: 3}, "m", 1, discard())
	_, err := good.Index(ctx, "acme/widgets", sampleFiles())
	require.NoError(t, err)
	active, err := store.GetRepositoryIndex(ctx, "acme/widgets")
	require.NoError(t, err)

	bad := NewIndexer(failingVectors{vectors}, store, LineChunker{Size: 3}, "m", 1, discard())
	_, err = bad.Index(ctx, "acme/widgets", sampleFiles())
	require.Error(t, err)

	still, err := store.GetRepositoryIndex(ctx, "acme/widgets")
	require.NoError(t, err)
	assert.Equal(t, active.CollectionName, still.CollectionName)
}
