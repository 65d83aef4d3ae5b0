package postgres

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/flarexio/blograg/vector"
)

const defaultTable = "blogs"

var (
	ErrDSNRequired       = errors.New("dsn is required")
	ErrInvalidTable      = errors.New("invalid table name")
	ErrInvalidDimensions = errors.New("dimensions must be greater than zero")
	ErrDimensionMismatch = errors.New("embedding column dimension mismatch")
)

var tablePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// NewStore opens a pgxpool backed store. The embedding column dimension is
// checked against cfg.Dimensions unless cfg.Migrate creates the table.
func NewStore(ctx context.Context, cfg vector.Config) (vector.Store, error) {
	if cfg.DSN == "" {
		return nil, ErrDSNRequired
	}

	if cfg.Dimensions <= 0 {
		return nil, ErrInvalidDimensions
	}

	table := cfg.Table
	if table == "" {
		table = defaultTable
	}

	if !tablePattern.MatchString(table) {
		return nil, fmt.Errorf("%w: %s", ErrInvalidTable, table)
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, err
	}

	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = int32(cfg.MaxConns)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	s := &store{
		pool:  pool,
		table: table,
		dim:   cfg.Dimensions,
	}

	if cfg.Migrate {
		if err := s.migrate(ctx); err != nil {
			pool.Close()
			return nil, err
		}
	}

	if err := s.verifyDimensions(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return s, nil
}

type store struct {
	pool  *pgxpool.Pool
	table string
	dim   int
}

func (s *store) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id TEXT PRIMARY KEY,
	title TEXT NOT NULL DEFAULT '',
	url TEXT NOT NULL DEFAULT '',
	content TEXT NOT NULL,
	metadata JSONB NOT NULL DEFAULT '{}'::jsonb,
	embedding VECTOR(%d) NOT NULL
)`, s.table, s.dim),
	}

	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}

	return nil
}

// verifyDimensions reads the declared dimension of the embedding column;
// pgvector stores it as the column's type modifier.
func (s *store) verifyDimensions(ctx context.Context) error {
	const query = `
SELECT atttypmod
FROM pg_attribute
WHERE attrelid = to_regclass($1::text) AND attname = 'embedding' AND NOT attisdropped`

	var typmod int
	if err := s.pool.QueryRow(ctx, query, s.table).Scan(&typmod); err != nil {
		return fmt.Errorf("inspect %s.embedding: %w", s.table, err)
	}

	if typmod > 0 && typmod != s.dim {
		return fmt.Errorf("%w: column has %d, configured %d", ErrDimensionMismatch, typmod, s.dim)
	}

	return nil
}

func (s *store) Acquire(ctx context.Context) (vector.Conn, error) {
	c, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}

	return &conn{c, s}, nil
}

func (s *store) Dimensions() int {
	return s.dim
}

func (s *store) Close() error {
	s.pool.Close()
	return nil
}

type conn struct {
	conn  *pgxpool.Conn
	store *store
}

func (c *conn) Release() {
	if c.conn == nil {
		return
	}

	c.conn.Release()
	c.conn = nil
}

func (c *conn) Search(ctx context.Context, literal string, limit int) ([]vector.Document, error) {
	if limit <= 0 {
		return nil, vector.ErrInvalidLimit
	}

	// cosine distance lies in [0,2]; similarity is 1 - distance.
	query := fmt.Sprintf(`
SELECT id, title, url, content, metadata, 1 - (embedding <=> $1::vector) AS similarity
FROM %s
ORDER BY embedding <=> $1::vector ASC, id ASC
LIMIT $2`, c.store.table)

	rows, err := c.conn.Query(ctx, query, literal, limit)
	if err != nil {
		return nil, fmt.Errorf("query vectors: %w", err)
	}

	docs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (vector.Document, error) {
		var (
			doc        vector.Document
			similarity float64
		)

		err := row.Scan(&doc.ID, &doc.Title, &doc.URL, &doc.Content, &doc.Metadata, &similarity)
		if err != nil {
			return doc, err
		}

		if len(doc.Metadata) == 0 {
			doc.Metadata = nil
		}

		doc.Score = float32(similarity)
		return doc, nil
	})

	if err != nil {
		return nil, fmt.Errorf("scan vectors: %w", err)
	}

	if docs == nil {
		docs = []vector.Document{}
	}

	return docs, nil
}

func (c *conn) Upsert(ctx context.Context, doc vector.Document) error {
	if len(doc.Embedding) != c.store.dim {
		return fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(doc.Embedding), c.store.dim)
	}

	metadata := doc.Metadata
	if metadata == nil {
		metadata = map[string]string{}
	}

	query := fmt.Sprintf(`
INSERT INTO %s (id, title, url, content, metadata, embedding)
VALUES ($1, $2, $3, $4, $5, $6::vector)
ON CONFLICT (id) DO UPDATE
SET title = EXCLUDED.title,
    url = EXCLUDED.url,
    content = EXCLUDED.content,
    metadata = EXCLUDED.metadata,
    embedding = EXCLUDED.embedding`, c.store.table)

	_, err := c.conn.Exec(ctx, query,
		doc.ID, doc.Title, doc.URL, doc.Content, metadata, vector.FormatVector(doc.Embedding))

	if err != nil {
		return fmt.Errorf("upsert vector %s: %w", doc.ID, err)
	}

	return nil
}
