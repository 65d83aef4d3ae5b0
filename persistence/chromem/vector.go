package chromem

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/philippgille/chromem-go"
	"golang.org/x/sync/semaphore"

	"github.com/flarexio/blograg/vector"
)

const defaultMaxConns = 16

var ErrDimensionMismatch = errors.New("embedding dimension mismatch")

func NewChromemVectorDB(cfg vector.Config) (vector.Store, error) {
	var db *chromem.DB
	if !cfg.Persistent {
		db = chromem.NewDB()
	} else {
		d, err := chromem.NewPersistentDB(cfg.Path, false)
		if err != nil {
			return nil, err
		}

		db = d
	}

	// Embeddings are always computed by the caller.
	noEmbed := func(ctx context.Context, text string) ([]float32, error) {
		return nil, errors.New("chromem: embedding must be provided")
	}

	c, err := db.GetOrCreateCollection(cfg.Collection, nil, noEmbed)
	if err != nil {
		return nil, err
	}

	maxConns := cfg.MaxConns
	if maxConns <= 0 {
		maxConns = defaultMaxConns
	}

	return &chromemVectorDB{
		collection: c,
		dimensions: cfg.Dimensions,
		sem:        semaphore.NewWeighted(int64(maxConns)),
	}, nil
}

type chromemVectorDB struct {
	collection *chromem.Collection
	dimensions int
	sem        *semaphore.Weighted
}

func (db *chromemVectorDB) Acquire(ctx context.Context) (vector.Conn, error) {
	if err := db.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}

	return &conn{db: db}, nil
}

func (db *chromemVectorDB) Dimensions() int {
	return db.dimensions
}

func (db *chromemVectorDB) Close() error {
	return nil
}

type conn struct {
	db       *chromemVectorDB
	released bool
}

func (c *conn) Release() {
	if c.released {
		return
	}

	c.released = true
	c.db.sem.Release(1)
}

func (c *conn) checkDimensions(v []float32) error {
	if c.db.dimensions > 0 && len(v) != c.db.dimensions {
		return fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(v), c.db.dimensions)
	}

	return nil
}

func (c *conn) Upsert(ctx context.Context, doc vector.Document) error {
	if err := c.checkDimensions(doc.Embedding); err != nil {
		return err
	}

	metadata := make(map[string]string, len(doc.Metadata)+2)
	for k, v := range doc.Metadata {
		metadata[k] = v
	}

	metadata["title"] = doc.Title
	metadata["url"] = doc.URL

	// AddDocument replaces any document with the same ID.
	document := chromem.Document{
		ID:        doc.ID,
		Metadata:  metadata,
		Embedding: doc.Embedding,
		Content:   doc.Content,
	}

	return c.db.collection.AddDocument(ctx, document)
}

func (c *conn) Search(ctx context.Context, literal string, limit int) ([]vector.Document, error) {
	if limit <= 0 {
		return nil, vector.ErrInvalidLimit
	}

	query, err := vector.ParseVector(literal)
	if err != nil {
		return nil, err
	}

	if err := c.checkDimensions(query); err != nil {
		return nil, err
	}

	collection := c.db.collection

	count := collection.Count()
	if count == 0 {
		return []vector.Document{}, nil
	}

	if limit > count {
		limit = count
	}

	results, err := c.query(ctx, query, limit, count)
	if err != nil {
		return nil, err
	}

	docs := make([]vector.Document, len(results))
	for i, result := range results {
		metadata := make(map[string]string, len(result.Metadata))
		for k, v := range result.Metadata {
			metadata[k] = v
		}

		title := metadata["title"]
		url := metadata["url"]
		delete(metadata, "title")
		delete(metadata, "url")

		if len(metadata) == 0 {
			metadata = nil
		}

		docs[i] = vector.Document{
			ID:       result.ID,
			Title:    title,
			URL:      url,
			Content:  result.Content,
			Metadata: metadata,
			Score:    result.Similarity,
		}
	}

	return docs, nil
}

// query returns the top limit results ordered by similarity, then ID. chromem
// picks its top k concurrently, so a tie at the cut-off is resolved by
// widening the query until the result after the cut scores strictly lower.
func (c *conn) query(ctx context.Context, query []float32, limit int, count int) ([]chromem.Result, error) {
	n := limit + 1
	if n > count {
		n = count
	}

	for {
		results, err := c.db.collection.QueryEmbedding(ctx, query, n, nil, nil)
		if err != nil {
			return nil, err
		}

		sort.SliceStable(results, func(i, j int) bool {
			if results[i].Similarity != results[j].Similarity {
				return results[i].Similarity > results[j].Similarity
			}

			return results[i].ID < results[j].ID
		})

		if len(results) <= limit || n >= count ||
			results[len(results)-1].Similarity < results[limit-1].Similarity {

			if len(results) > limit {
				results = results[:limit]
			}

			return results, nil
		}

		n *= 2
		if n > count {
			n = count
		}
	}
}
