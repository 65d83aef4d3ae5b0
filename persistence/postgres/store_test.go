package postgres

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/flarexio/blograg/vector"
)

type postgresTestSuite struct {
	suite.Suite
	container testcontainers.Container
	cfg       vector.Config
	store     vector.Store
}

func (suite *postgresTestSuite) SetupSuite() {
	if testing.Short() {
		suite.T().Skip("skipping postgres integration test in short mode")
	}

	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "pgvector/pgvector:pg16",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "blograg",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(suite.T(), err, "failed to start pgvector container")

	suite.container = container

	host, err := container.Host(ctx)
	require.NoError(suite.T(), err)

	port, err := container.MappedPort(ctx, "5432")
	require.NoError(suite.T(), err)

	suite.cfg = vector.Config{
		Driver:     vector.DriverPostgres,
		DSN:        fmt.Sprintf("postgres://test:test@%s:%s/blograg?sslmode=disable", host, port.Port()),
		Table:      "blogs",
		Dimensions: 3,
		MaxConns:   2,
		Migrate:    true,
	}

	store, err := NewStore(ctx, suite.cfg)
	require.NoError(suite.T(), err)

	suite.store = store

	conn, err := store.Acquire(ctx)
	require.NoError(suite.T(), err)
	defer conn.Release()

	docs := []vector.Document{
		{ID: "a", Title: "A", Content: "a", Embedding: []float32{1, 0, 0}},
		{ID: "b", Title: "B", Content: "b", Embedding: []float32{0, 1, 0},
			Metadata: map[string]string{"tag": "b"}},
		{ID: "c", Title: "C", Content: "c", Embedding: []float32{0.9, 0.1, 0}},
		{ID: "d", Title: "D", Content: "d", Embedding: []float32{0.9, 0.1, 0}},
	}

	for _, doc := range docs {
		require.NoError(suite.T(), conn.Upsert(ctx, doc))
	}
}

func (suite *postgresTestSuite) TestSearch() {
	ctx := context.Background()

	conn, err := suite.store.Acquire(ctx)
	if err != nil {
		suite.Fail(err.Error())
		return
	}
	defer conn.Release()

	docs, err := conn.Search(ctx, "[1,0,0]", 3)
	if err != nil {
		suite.Fail(err.Error())
		return
	}

	suite.Len(docs, 3)
	suite.Equal("a", docs[0].ID)
	suite.Equal("c", docs[1].ID)
	suite.Equal("d", docs[2].ID)
	suite.InDelta(1.0, docs[0].Score, 1e-5)

	for i := 1; i < len(docs); i++ {
		suite.GreaterOrEqual(docs[i-1].Score, docs[i].Score)
	}

	docs, err = conn.Search(ctx, "[0,1,0]", 10)
	if err != nil {
		suite.Fail(err.Error())
		return
	}

	suite.Len(docs, 4)
	suite.Equal("b", docs[0].ID)
	suite.Equal("b", docs[0].Metadata["tag"])
}

func (suite *postgresTestSuite) TestDimensionMismatch() {
	ctx := context.Background()

	cfg := suite.cfg
	cfg.Dimensions = 4
	cfg.Migrate = false

	_, err := NewStore(ctx, cfg)
	suite.ErrorIs(err, ErrDimensionMismatch)
}

func (suite *postgresTestSuite) TestReleaseReturnsConnection() {
	ctx := context.Background()

	for range 5 {
		conn, err := suite.store.Acquire(ctx)
		if err != nil {
			suite.Fail(err.Error())
			return
		}

		conn.Release()
		conn.Release()
	}
}

func (suite *postgresTestSuite) TearDownSuite() {
	if suite.store != nil {
		suite.store.Close()
	}

	if suite.container != nil {
		suite.container.Terminate(context.Background())
	}
}

func TestPostgresTestSuite(t *testing.T) {
	suite.Run(t, new(postgresTestSuite))
}
