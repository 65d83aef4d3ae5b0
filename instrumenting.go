package blograg

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/flarexio/blograg/vector"
)

type Metrics struct {
	requests     *prometheus.CounterVec
	duration     *prometheus.HistogramVec
	streamChunks prometheus.Counter
	streams      *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer, namespace string) *Metrics {
	if namespace == "" {
		namespace = "blograg"
	}

	m := &Metrics{
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "requests_total",
				Help:      "Total number of service requests",
			},
			[]string{"method", "status"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "request_duration_seconds",
				Help:      "Service request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method"},
		),
		streamChunks: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "stream_chunks_total",
				Help:      "Total number of relayed answer chunks",
			},
		),
		streams: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "streams_total",
				Help:      "Total number of finished answer streams",
			},
			[]string{"outcome"},
		),
	}

	reg.MustRegister(
		m.requests,
		m.duration,
		m.streamChunks,
		m.streams,
	)

	return m
}

func (m *Metrics) observe(method string, begin time.Time, err error) {
	m.requests.WithLabelValues(method, strconv.Itoa(StatusCode(err))).Inc()
	m.duration.WithLabelValues(method).Observe(time.Since(begin).Seconds())
}

func InstrumentingMiddleware(m *Metrics) ServiceMiddleware {
	return func(next Service) Service {
		return &instrumentingMiddleware{
			metrics: m,
			next:    next,
		}
	}
}

type instrumentingMiddleware struct {
	metrics *Metrics
	next    Service
}

func (mw *instrumentingMiddleware) Close() error {
	return mw.next.Close()
}

func (mw *instrumentingMiddleware) FindSimilar(ctx context.Context, query string, limit ...int) ([]vector.Document, error) {
	begin := time.Now()

	docs, err := mw.next.FindSimilar(ctx, query, limit...)
	mw.metrics.observe("find_similar", begin, err)
	return docs, err
}

func (mw *instrumentingMiddleware) GenerateAIResponse(ctx context.Context, query string) (*AIResponse, error) {
	begin := time.Now()

	resp, err := mw.next.GenerateAIResponse(ctx, query)
	mw.metrics.observe("generate_ai_response", begin, err)
	return resp, err
}

func (mw *instrumentingMiddleware) StreamAIResponse(ctx context.Context, query string) (ChunkStream, error) {
	begin := time.Now()

	stream, err := mw.next.StreamAIResponse(ctx, query)
	mw.metrics.observe("stream_ai_response", begin, err)
	if err != nil {
		return nil, err
	}

	return &instrumentingStream{
		ChunkStream: stream,
		metrics:     mw.metrics,
	}, nil
}

func (mw *instrumentingMiddleware) GenerateRelatedQuestions(ctx context.Context, question string, docs []vector.Document) ([]string, error) {
	begin := time.Now()

	questions, err := mw.next.GenerateRelatedQuestions(ctx, question, docs)
	mw.metrics.observe("generate_related_questions", begin, err)
	return questions, err
}

func (mw *instrumentingMiddleware) RecommendProduct(ctx context.Context, docs []vector.Document) (*ProductRecommendation, error) {
	begin := time.Now()

	recommendation, err := mw.next.RecommendProduct(ctx, docs)
	mw.metrics.observe("recommend_product", begin, err)
	return recommendation, err
}

type instrumentingStream struct {
	ChunkStream
	metrics *Metrics
}

func (s *instrumentingStream) Next() bool {
	ok := s.ChunkStream.Next()
	if ok {
		s.metrics.streamChunks.Inc()
	}

	return ok
}

func (s *instrumentingStream) Close() error {
	err := s.ChunkStream.Close()

	outcome := "complete"
	if streamErr := s.ChunkStream.Err(); errors.Is(streamErr, ErrStreamInterrupted) {
		outcome = "interrupted"
	} else if streamErr != nil {
		outcome = "failed"
	}

	s.metrics.streams.WithLabelValues(outcome).Inc()
	return err
}
