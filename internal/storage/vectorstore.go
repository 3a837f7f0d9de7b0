package storage

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sevigo/goframe/embeddings"
	"github.com/sevigo/goframe/schema"
	"github.com/sevigo/goframe/vectorstores"
	"github.com/sevigo/goframe/vectorstores/qdrant"
)

// VectorStore stores embedded chunks in named collections.
type VectorStore interface {
	// AddDocuments embeds and stores documents into a collection,
	// creating it if needed.
	AddDocuments(ctx context.Context, collectionName string, docs []schema.Document) error

	// SimilaritySearch returns up to numDocs documents nearest to query.
	SimilaritySearch(ctx context.Context, collectionName, query string, numDocs int) ([]schema.Document, error)

	// DeleteCollection removes a collection and all its data.
	DeleteCollection(ctx context.Context, collectionName string) error
}

type collectionDeleter interface {
	DeleteCollection(ctx context.Context, collectionName string) error
}

// qdrantVectorStore implements VectorStore on Qdrant, one goframe store per
// collection.
type qdrantVectorStore struct {
	host     string
	embedder embeddings.Embedder
	logger   *slog.Logger
}

// NewQdrantVectorStore creates a Qdrant-backed vector store.
func NewQdrantVectorStore(host string, embedder embeddings.Embedder, logger *slog.Logger) VectorStore {
	if embedder == nil {
		panic("embedder is required")
	}
	return &qdrantVectorStore{host: host, embedder: embedder, logger: logger}
}

func (q *qdrantVectorStore) storeFor(collectionName string) (vectorstores.VectorStore, error) {
	if strings.TrimSpace(collectionName) == "" {
		return nil, fmt.Errorf("collection name cannot be empty")
	}
	return qdrant.New(
		qdrant.WithHost(q.host),
		qdrant.WithEmbedder(q.embedder),
		qdrant.WithCollectionName(collectionName),
		qdrant.WithLogger(q.logger),
	)
}

func (q *qdrantVectorStore) AddDocuments(ctx context.Context, collectionName string, docs []schema.Document) error {
	if len(docs) == 0 {
		return nil
	}
	store, err := q.storeFor(collectionName)
	if err != nil {
		return fmt.Errorf("failed to open collection %s: %w", collectionName, err)
	}
	if _, err := store.AddDocuments(ctx, docs); err != nil {
		return fmt.Errorf("failed to add %d documents to %s: %w", len(docs), collectionName, err)
	}
	return nil
}

func (q *qdrantVectorStore) SimilaritySearch(ctx context.Context, collectionName, query string, numDocs int) ([]schema.Document, error) {
	store, err := q.storeFor(collectionName)
	if err != nil {
		return nil, fmt.Errorf("failed to open collection %s: %w", collectionName, err)
	}
	docs, err := store.SimilaritySearch(ctx, query, numDocs)
	if err != nil {
		return nil, fmt.Errorf("similarity search in %s failed: %w", collectionName, err)
	}
	return docs, nil
}

func (q *qdrantVectorStore) DeleteCollection(ctx context.Context, collectionName string) error {
	store, err := q.storeFor(collectionName)
	if err != nil {
		return fmt.Errorf("failed to open collection %s: %w", collectionName, err)
	}
	deleter, ok := store.(collectionDeleter)
	if !ok {
		return fmt.Errorf("vector store for %s cannot delete collections", collectionName)
	}
	return deleter.DeleteCollection(ctx, collectionName)
}
