package chromem

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"

	"github.com/flarexio/blograg/vector"
)

type chromemTestSuite struct {
	suite.Suite
	store vector.Store
}

func (suite *chromemTestSuite) SetupTest() {
	cfg := vector.Config{
		Driver:     vector.DriverChromem,
		Collection: "blogs",
		Dimensions: 3,
		MaxConns:   2,
	}

	store, err := NewChromemVectorDB(cfg)
	if err != nil {
		suite.Fail(err.Error())
		return
	}

	ctx := context.Background()

	conn, err := store.Acquire(ctx)
	if err != nil {
		suite.Fail(err.Error())
		return
	}
	defer conn.Release()

	docs := []vector.Document{
		{ID: "go", Title: "Go", URL: "/go", Content: "go", Embedding: []float32{1, 0, 0}},
		{ID: "rust", Title: "Rust", Content: "rust", Embedding: []float32{0, 1, 0}},
		{ID: "zig", Title: "Zig", Content: "zig", Embedding: []float32{0, 0, 1}},
		{ID: "gopher", Title: "Gopher", Content: "gopher", Embedding: []float32{0.8, 0.2, 0}},
		{ID: "golang", Title: "Golang", Content: "golang", Embedding: []float32{0.8, 0.2, 0},
			Metadata: map[string]string{"author": "rob"}},
	}

	for _, doc := range docs {
		if err := conn.Upsert(ctx, doc); err != nil {
			suite.Fail(err.Error())
			return
		}
	}

	suite.store = store
}

func (suite *chromemTestSuite) TestSearchOrdering() {
	ctx := context.Background()

	conn, err := suite.store.Acquire(ctx)
	if err != nil {
		suite.Fail(err.Error())
		return
	}
	defer conn.Release()

	docs, err := conn.Search(ctx, vector.FormatVector([]float32{1, 0.1, 0}), 5)
	if err != nil {
		suite.Fail(err.Error())
		return
	}

	suite.Len(docs, 5)
	suite.Equal("go", docs[0].ID)
	suite.Equal("Go", docs[0].Title)
	suite.Equal("/go", docs[0].URL)

	// equal scores fall back to ID order
	suite.Equal("golang", docs[1].ID)
	suite.Equal("gopher", docs[2].ID)
	suite.Equal("rob", docs[1].Metadata["author"])

	for i := 1; i < len(docs); i++ {
		suite.GreaterOrEqual(docs[i-1].Score, docs[i].Score)
	}

	for _, doc := range docs {
		suite.GreaterOrEqual(doc.Score, float32(-1.0001))
		suite.LessOrEqual(doc.Score, float32(1.0001))
	}
}

func (suite *chromemTestSuite) TestSearchLimit() {
	ctx := context.Background()

	conn, err := suite.store.Acquire(ctx)
	if err != nil {
		suite.Fail(err.Error())
		return
	}
	defer conn.Release()

	docs, err := conn.Search(ctx, "[0,1,0]", 2)
	if err != nil {
		suite.Fail(err.Error())
		return
	}

	suite.Len(docs, 2)
	suite.Equal("rust", docs[0].ID)

	docs, err = conn.Search(ctx, "[0,1,0]", 100)
	if err != nil {
		suite.Fail(err.Error())
		return
	}

	suite.Len(docs, 5)

	_, err = conn.Search(ctx, "[0,1,0]", 0)
	suite.ErrorIs(err, vector.ErrInvalidLimit)
}

func (suite *chromemTestSuite) TestSearchDimensionMismatch() {
	ctx := context.Background()

	conn, err := suite.store.Acquire(ctx)
	if err != nil {
		suite.Fail(err.Error())
		return
	}
	defer conn.Release()

	_, err = conn.Search(ctx, "[1,0]", 3)
	suite.ErrorIs(err, ErrDimensionMismatch)

	err = conn.Upsert(ctx, vector.Document{ID: "bad", Content: "bad", Embedding: []float32{1}})
	suite.ErrorIs(err, ErrDimensionMismatch)
}

func (suite *chromemTestSuite) TestAcquireBounded() {
	ctx := context.Background()

	c1, err := suite.store.Acquire(ctx)
	if err != nil {
		suite.Fail(err.Error())
		return
	}

	c2, err := suite.store.Acquire(ctx)
	if err != nil {
		suite.Fail(err.Error())
		return
	}

	timeout, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()

	_, err = suite.store.Acquire(timeout)
	suite.ErrorIs(err, context.DeadlineExceeded)

	c1.Release()
	c1.Release() // idempotent

	c3, err := suite.store.Acquire(ctx)
	if err != nil {
		suite.Fail(err.Error())
		return
	}

	c2.Release()
	c3.Release()
}

func (suite *chromemTestSuite) TestEmptyCollection() {
	store, err := NewChromemVectorDB(vector.Config{Collection: "empty", Dimensions: 3})
	if err != nil {
		suite.Fail(err.Error())
		return
	}

	ctx := context.Background()

	conn, err := store.Acquire(ctx)
	if err != nil {
		suite.Fail(err.Error())
		return
	}
	defer conn.Release()

	docs, err := conn.Search(ctx, "[1,0,0]", 5)
	if err != nil {
		suite.Fail(err.Error())
		return
	}

	suite.Empty(docs)
}

func TestSearchTiesAtCutoff(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	store, err := NewChromemVectorDB(vector.Config{Collection: "ties", Dimensions: 3})
	if err != nil {
		assert.Fail(err.Error())
		return
	}

	conn, err := store.Acquire(ctx)
	if err != nil {
		assert.Fail(err.Error())
		return
	}
	defer conn.Release()

	for i := 0; i < 200; i++ {
		doc := vector.Document{
			ID:        fmt.Sprintf("d%03d", i),
			Content:   "same",
			Embedding: []float32{1, 0, 0},
		}

		if err := conn.Upsert(ctx, doc); err != nil {
			assert.Fail(err.Error())
			return
		}
	}

	closer := vector.Document{ID: "z999", Content: "closer", Embedding: []float32{1, 0.01, 0}}
	if err := conn.Upsert(ctx, closer); err != nil {
		assert.Fail(err.Error())
		return
	}

	for i := 0; i < 50; i++ {
		docs, err := conn.Search(ctx, "[1,0,0]", 3)
		if err != nil {
			assert.Fail(err.Error())
			return
		}

		ids := make([]string, len(docs))
		for j, doc := range docs {
			ids[j] = doc.ID
		}

		if !assert.Equal([]string{"d000", "d001", "d002"}, ids) {
			return
		}
	}

	docs, err := conn.Search(ctx, "[1,0.01,0]", 2)
	if err != nil {
		assert.Fail(err.Error())
		return
	}

	assert.Equal("z999", docs[0].ID)
	assert.Equal("d000", docs[1].ID)
}

func TestChromemTestSuite(t *testing.T) {
	suite.Run(t, new(chromemTestSuite))
}
