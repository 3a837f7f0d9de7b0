package rag

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sevigo/goframe/schema"
	"golang.org/x/sync/errgroup"

	"github.com/sevigo/review-warden/internal/core"
	"github.com/sevigo/review-warden/internal/storage"
)

const addBatchSize = 256

// Indexer embeds repository files into a fresh collection and atomically
// makes it the active index of the repository.
type Indexer struct {
	vectors       storage.VectorStore
	indexes       storage.IndexStore
	chunker       Chunker
	embedderModel string
	workers       int
	logger        *slog.Logger
	now           func() time.Time
}

// NewIndexer creates an Indexer.
func NewIndexer(vectors storage.VectorStore, indexes storage.IndexStore, chunker Chunker, embedderModel string, workers int, logger *slog.Logger) *Indexer {
	if vectors == nil || indexes == nil || chunker == nil {
		panic("indexer dependencies are required")
	}
	return &Indexer{
		vectors:       vectors,
		indexes:       indexes,
		chunker:       chunker,
		embedderModel: embedderModel,
		workers:       max(workers, 1),
		logger:        logger,
		now:           time.Now,
	}
}

// Index replaces the index of repositoryKey with the given files and returns
// the number of chunks stored. Readers keep seeing the previous collection
// until the pointer swap; re-indexing the same files yields the same chunks.
func (i *Indexer) Index(ctx context.Context, repositoryKey string, files []File) (int, error) {
	docs, err := i.chunkFiles(ctx, files)
	if err != nil {
		return 0, err
	}

	collection := CollectionName(repositoryKey, i.embedderModel, i.now().UnixNano())
	i.logger.Info("indexing repository", "repo", repositoryKey, "files", len(files), "chunks", len(docs), "collection", collection)

	for start := 0; start < len(docs); start += addBatchSize {
		end := min(start+addBatchSize, len(docs))
		if err := i.vectors.AddDocuments(ctx, collection, docs[start:end]); err != nil {
			i.dropCollection(ctx, collection)
			return 0, core.Transient(fmt.Errorf("failed to store chunks for %s: %w", repositoryKey, err))
		}
	}

	previous, err := i.indexes.SwapRepositoryIndex(ctx, &core.RepositoryIndex{
		RepositoryKey:  repositoryKey,
		CollectionName: collection,
		EmbedderModel:  i.embedderModel,
		ChunkCount:     len(docs),
	})
	if err != nil {
		i.dropCollection(ctx, collection)
		return 0, fmt.Errorf("failed to activate index for %s: %w", repositoryKey, err)
	}

	if previous != "" && previous != collection {
		i.dropCollection(ctx, previous)
	}

	i.logger.Info("repository indexed", "repo", repositoryKey, "chunks", len(docs), "replaced", previous)
	return len(docs), nil
}

// dropCollection is best effort; an orphaned collection is only wasted space.
func (i *Indexer) dropCollection(ctx context.Context, name string) {
	if err := i.vectors.DeleteCollection(context.WithoutCancel(ctx), name); err != nil {
		i.logger.Warn("failed to delete collection", "collection", name, "error", err)
	}
}

func (i *Indexer) chunkFiles(ctx context.Context, files []File) ([]schema.Document, error) {
	perFile := make([][]Chunk, len(files))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(i.workers)
	for n, f := range files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			if !IsIndexable(f.Path, []byte(f.Content)) {
				return nil
			}
			perFile[n] = i.chunker.Chunk(f.Path, f.Content)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("chunking interrupted: %w", err)
	}

	seen := make(map[string]bool)
	var docs []schema.Document
	for _, chunks := range perFile {
		for _, c := range chunks {
			if seen[c.ID] {
				continue
			}
			seen[c.ID] = true
			docs = append(docs, schema.NewDocument(c.Text, map[string]any{
				"id":         c.ID,
				"source":     c.Path,
				"line_start": c.LineStart,
				"line_end":   c.LineEnd,
			}))
		}
	}
	return docs, nil
}

// Retriever answers context queries against the active index of a repository.
type Retriever struct {
	vectors storage.VectorStore
	indexes storage.IndexStore
	logger  *slog.Logger
}

// NewRetriever creates a Retriever.
func NewRetriever(vectors storage.VectorStore, indexes storage.IndexStore, logger *slog.Logger) *Retriever {
	if vectors == nil || indexes == nil {
		panic("retriever dependencies are required")
	}
	return &Retriever{vectors: vectors, indexes: indexes, logger: logger}
}

// Retrieve returns up to k chunk texts most similar to query, most similar
// first, with duplicate texts collapsed. A repository without an index
// yields an empty result rather than an error.
func (r *Retriever) Retrieve(ctx context.Context, query, repositoryKey string, k int) ([]string, error) {
	if k <= 0 {
		return []string{}, nil
	}

	idx, err := r.indexes.GetRepositoryIndex(ctx, repositoryKey)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			r.logger.Info("repository has no index yet, continuing without context", "repo", repositoryKey)
			return []string{}, nil
		}
		return nil, fmt.Errorf("failed to look up index for %s: %w", repositoryKey, err)
	}
	if idx.ChunkCount == 0 {
		return []string{}, nil
	}

	docs, err := r.vectors.SimilaritySearch(ctx, idx.CollectionName, query, k)
	if err != nil {
		if isMissingCollection(err) {
			r.logger.Warn("active collection is missing, continuing without context", "repo", repositoryKey, "collection", idx.CollectionName)
			return []string{}, nil
		}
		return nil, core.Transient(fmt.Errorf("context search for %s failed: %w", repositoryKey, err))
	}

	seen := make(map[string]bool, len(docs))
	texts := make([]string, 0, len(docs))
	for _, d := range docs {
		if d.PageContent == "" || seen[d.PageContent] {
			continue
		}
		seen[d.PageContent] = true
		texts = append(texts, d.PageContent)
		if len(texts) == k {
			break
		}
	}
	return texts, nil
}

func isMissingCollection(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "collection") &&
		(strings.Contains(msg, "not found") || strings.Contains(msg, "doesn't exist") || strings.Contains(msg, "does not exist"))
}
