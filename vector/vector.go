package vector

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	ErrInvalidLiteral = errors.New("invalid vector literal")
	ErrInvalidLimit   = errors.New("limit must be greater than zero")
)

type Driver string

const (
	DriverChromem  Driver = "chromem"
	DriverPostgres Driver = "postgres"
)

type Config struct {
	Driver     Driver `yaml:"driver"`
	Persistent bool   `yaml:"persistent"`
	Path       string `yaml:"path"`
	Collection string `yaml:"collection"`
	DSN        string `yaml:"dsn"`
	Table      string `yaml:"table"`
	Dimensions int    `yaml:"dimensions"`
	MaxConns   int    `yaml:"maxConns"`
	Migrate    bool   `yaml:"migrate"`
}

// Store is a vector store whose connections are handed out one request at a
// time. Every successful Acquire must be paired with a Release.
type Store interface {
	Acquire(ctx context.Context) (Conn, error)
	Dimensions() int
	Close() error
}

type Conn interface {
	// Search returns up to limit documents ordered by descending similarity to
	// the vector literal. Documents with equal scores are ordered by ID.
	Search(ctx context.Context, literal string, limit int) ([]Document, error)

	// Upsert inserts or replaces a document together with its embedding.
	Upsert(ctx context.Context, doc Document) error

	Release()
}

type Document struct {
	ID        string            `json:"id" yaml:"id"`
	Title     string            `json:"title" yaml:"title"`
	URL       string            `json:"url,omitempty" yaml:"url"`
	Content   string            `json:"content" yaml:"content"`
	Metadata  map[string]string `json:"metadata,omitempty" yaml:"metadata"`
	Score     float32           `json:"score"  yaml:"-"`
	Embedding []float32         `json:"-" yaml:"-"`
}

// FormatVector renders a vector in the pgvector text form, e.g. "[0.1,0.2]".
func FormatVector(v []float32) string {
	var sb strings.Builder
	sb.Grow(len(v)*10 + 2)

	sb.WriteByte('[')
	for i, f := range v {
		if i > 0 {
			sb.WriteByte(',')
		}

		sb.WriteString(strconv.FormatFloat(float64(f), 'g', -1, 32))
	}
	sb.WriteByte(']')

	return sb.String()
}

// ParseVector is the inverse of FormatVector.
func ParseVector(literal string) ([]float32, error) {
	s := strings.TrimSpace(literal)

	inner, ok := strings.CutPrefix(s, "[")
	if !ok {
		return nil, fmt.Errorf("%w: missing '['", ErrInvalidLiteral)
	}

	inner, ok = strings.CutSuffix(inner, "]")
	if !ok {
		return nil, fmt.Errorf("%w: missing ']'", ErrInvalidLiteral)
	}

	inner = strings.TrimSpace(inner)
	if inner == "" {
		return []float32{}, nil
	}

	parts := strings.Split(inner, ",")
	v := make([]float32, len(parts))
	for i, part := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(part), 32)
		if err != nil {
			return nil, fmt.Errorf("%w: element %d: %w", ErrInvalidLiteral, i, err)
		}

		v[i] = float32(f)
	}

	return v, nil
}
