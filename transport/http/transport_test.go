package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"

	"github.com/flarexio/blograg"
	"github.com/flarexio/blograg/vector"

	mcpE "github.com/flarexio/blograg/mcp"
)

type sliceStream struct {
	chunks []string
	err    error

	i       int
	current string
	failed  error
	closed  bool

	pulled func(n int)
}

func (s *sliceStream) Next() bool {
	if s.i < len(s.chunks) {
		s.current = s.chunks[s.i]
		s.i++

		if s.pulled != nil {
			s.pulled(s.i)
		}

		return true
	}

	s.failed = s.err
	return false
}

func (s *sliceStream) Current() string { return s.current }
func (s *sliceStream) Err() error      { return s.failed }

func (s *sliceStream) Close() error {
	s.closed = true
	return nil
}

type stubService struct {
	blograg.Service

	docs   []vector.Document
	stream *sliceStream
	err    error

	requestID string
}

func (s *stubService) FindSimilar(ctx context.Context, query string, limit ...int) ([]vector.Document, error) {
	s.requestID, _ = ctx.Value(blograg.RequestID).(string)

	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("%w: query is required", blograg.ErrValidation)
	}

	return s.docs, s.err
}

func (s *stubService) StreamAIResponse(ctx context.Context, query string) (blograg.ChunkStream, error) {
	if s.err != nil {
		return nil, s.err
	}

	return s.stream, nil
}

func (s *stubService) GenerateRelatedQuestions(ctx context.Context, question string, docs []vector.Document) ([]string, error) {
	return []string{"What is a goroutine?"}, s.err
}

func (s *stubService) RecommendProduct(ctx context.Context, docs []vector.Document) (*blograg.ProductRecommendation, error) {
	if s.err != nil {
		return nil, s.err
	}

	return &blograg.ProductRecommendation{ProductName: "Go Course", Reason: "fits"}, nil
}

type transportTestSuite struct {
	suite.Suite
	svc    *stubService
	router *gin.Engine
}

func (suite *transportTestSuite) SetupTest() {
	gin.SetMode(gin.TestMode)

	suite.svc = &stubService{
		docs: []vector.Document{
			{ID: "1", Title: "Goroutines", Content: "Lightweight threads", Score: 0.9},
			{ID: "2", Title: "Channels", Content: "Typed pipes", Score: 0.8},
		},
	}

	r := gin.New()
	r.Use(RequestIDMiddleware())

	AddRouters(r, blograg.MakeEndpoints(suite.svc))
	AddStreamableRouters(r, mcpE.MakeEndpoints(suite.svc))
	AddOperationalRouters(r, prometheus.NewRegistry())

	suite.router = r
}

func (suite *transportTestSuite) post(path string, body string, headers ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	w := httptest.NewRecorder()
	suite.router.ServeHTTP(w, req)
	return w
}

func (suite *transportTestSuite) TestFindSimilar() {
	w := suite.post("/blog/similar", `{"query": "concurrency", "limit": 2}`)

	suite.Equal(http.StatusOK, w.Code)

	var resp blograg.SearchResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		suite.Fail(err.Error())
		return
	}

	suite.Equal("Similar blogs found", resp.Message)
	suite.Len(resp.Results, 2)
	suite.Equal("Goroutines", resp.Results[0].Title)
	suite.InDelta(0.9, resp.Results[0].Score, 1e-6)
}

func (suite *transportTestSuite) TestFindSimilarValidation() {
	w := suite.post("/blog/similar", `{"query": "   "}`)
	suite.Equal(http.StatusBadRequest, w.Code)

	w = suite.post("/blog/similar", `{"query": `)
	suite.Equal(http.StatusBadRequest, w.Code)
}

func (suite *transportTestSuite) TestFindSimilarUpstreamErrors() {
	suite.svc.err = fmt.Errorf("%w: pool exhausted", blograg.ErrStoreUnavailable)
	w := suite.post("/blog/similar", `{"query": "go"}`)
	suite.Equal(http.StatusServiceUnavailable, w.Code)

	suite.svc.err = fmt.Errorf("%w: timeout", blograg.ErrEmbeddingService)
	w = suite.post("/blog/similar", `{"query": "go"}`)
	suite.Equal(http.StatusBadGateway, w.Code)
}

func (suite *transportTestSuite) TestRequestID() {
	w := suite.post("/blog/similar", `{"query": "go"}`, RequestIDHeader, "req-42")

	suite.Equal("req-42", w.Header().Get(RequestIDHeader))
	suite.Equal("req-42", suite.svc.requestID)

	w = suite.post("/blog/similar", `{"query": "go"}`)
	suite.NotEmpty(w.Header().Get(RequestIDHeader))
	suite.Equal(w.Header().Get(RequestIDHeader), suite.svc.requestID)
}

func (suite *transportTestSuite) TestStreamAIResponse() {
	suite.svc.stream = &sliceStream{
		chunks: []string{"# Go", "routines", " are cheap."},
	}

	w := suite.post("/blog/ai-streaming-response", `{"query": "goroutines"}`)

	suite.Equal(http.StatusOK, w.Code)
	suite.Equal("# Goroutines are cheap.", w.Body.String())
	suite.True(strings.HasPrefix(w.Header().Get("Content-Type"), "text/markdown"))
	suite.Equal("no-cache", w.Header().Get("Cache-Control"))
	suite.Equal("keep-alive", w.Header().Get("Connection"))
	suite.Equal("no", w.Header().Get("X-Accel-Buffering"))
	suite.True(w.Flushed)
	suite.True(suite.svc.stream.closed)
}

func (suite *transportTestSuite) TestStreamAIResponseFailsBeforeFirstChunk() {
	suite.svc.stream = &sliceStream{
		err: fmt.Errorf("%w: connection reset", blograg.ErrStreamInterrupted),
	}

	w := suite.post("/blog/ai-streaming-response", `{"query": "goroutines"}`)

	suite.Equal(http.StatusBadGateway, w.Code)
	suite.Empty(w.Header().Get("X-Accel-Buffering"))
	suite.True(suite.svc.stream.closed)
}

func (suite *transportTestSuite) TestStreamAIResponseFailsMidStream() {
	suite.svc.stream = &sliceStream{
		chunks: []string{"partial"},
		err:    fmt.Errorf("%w: connection reset", blograg.ErrStreamInterrupted),
	}

	w := suite.post("/blog/ai-streaming-response", `{"query": "goroutines"}`)

	suite.Equal(http.StatusOK, w.Code)
	suite.Equal("partial", w.Body.String())
	suite.True(suite.svc.stream.closed)
}

func (suite *transportTestSuite) TestStreamAIResponseStopsWhenClientGoesAway() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	suite.svc.stream = &sliceStream{
		chunks: []string{"Go ", "is ", "fun", "!"},
		pulled: func(n int) {
			if n == 2 {
				cancel()
			}
		},
	}

	req := httptest.NewRequest(http.MethodPost, "/blog/ai-streaming-response", strings.NewReader(`{"query": "go"}`))
	req.Header.Set("Content-Type", "application/json")
	req = req.WithContext(ctx)

	w := httptest.NewRecorder()
	suite.router.ServeHTTP(w, req)

	suite.Equal(http.StatusOK, w.Code)
	suite.Equal("Go is ", w.Body.String())
	suite.Equal(2, suite.svc.stream.i)
	suite.True(suite.svc.stream.closed)
}

func (suite *transportTestSuite) TestStreamAIResponseValidation() {
	suite.svc.err = fmt.Errorf("%w: query is required", blograg.ErrValidation)

	w := suite.post("/blog/ai-streaming-response", `{"query": ""}`)
	suite.Equal(http.StatusBadRequest, w.Code)
}

func (suite *transportTestSuite) TestRelatedQuestion() {
	w := suite.post("/blog/related-question", `{"question": "goroutines?", "context": [{"id": "1", "title": "Goroutines"}]}`)

	suite.Equal(http.StatusOK, w.Code)
	suite.JSONEq(`{"related_questions": ["What is a goroutine?"]}`, w.Body.String())
}

func (suite *transportTestSuite) TestRecommendProduct() {
	w := suite.post("/blog/recommend-product", `{"context": [{"id": "1", "title": "Goroutines"}]}`)

	suite.Equal(http.StatusOK, w.Code)
	suite.JSONEq(`{"product_name": "Go Course", "reason": "fits"}`, w.Body.String())

	suite.svc.err = blograg.ErrNoProducts
	w = suite.post("/blog/recommend-product", `{"context": []}`)
	suite.Equal(http.StatusInternalServerError, w.Code)
}

func (suite *transportTestSuite) TestMCP() {
	w := suite.post("/mcp/", `{"jsonrpc": "2.0", "id": 1, "method": "ping"}`)
	suite.Equal(http.StatusOK, w.Code)

	w = suite.post("/mcp/", `{"jsonrpc": "2.0", "method": "notifications/initialized"}`)
	suite.Equal(http.StatusAccepted, w.Code)

	w = suite.post("/mcp/", `{"jsonrpc": "2.0", "id": 2, "method": "resources/list"}`)
	suite.Equal(http.StatusNotFound, w.Code)
}

func (suite *transportTestSuite) TestOperational() {
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	suite.router.ServeHTTP(w, req)

	suite.Equal(http.StatusOK, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w = httptest.NewRecorder()
	suite.router.ServeHTTP(w, req)

	suite.Equal(http.StatusOK, w.Code)
}

func TestTransportTestSuite(t *testing.T) {
	suite.Run(t, new(transportTestSuite))
}

func TestAbortKeepsErrorClass(t *testing.T) {
	assert := assert.New(t)
	gin.SetMode(gin.TestMode)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	err := fmt.Errorf("%w: boom", blograg.ErrLanguageModel)
	abort(c, err)

	assert.Equal(http.StatusBadGateway, w.Code)
	assert.True(c.IsAborted())
	assert.True(errors.Is(c.Errors.Last().Err, blograg.ErrLanguageModel))
}
