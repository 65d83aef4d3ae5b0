package blograg

import (
	"context"

	"go.uber.org/zap"

	"github.com/flarexio/blograg/vector"
)

func LoggingMiddleware(log *zap.Logger) ServiceMiddleware {
	log = log.With(
		zap.String("service", "blograg"),
	)

	return func(next Service) Service {
		log.Info("service initialized")

		return &loggingMiddleware{
			log:  log,
			next: next,
		}
	}
}

type loggingMiddleware struct {
	log  *zap.Logger
	next Service
}

func (mw *loggingMiddleware) withRequest(ctx context.Context, log *zap.Logger) *zap.Logger {
	id, ok := ctx.Value(RequestID).(string)
	if !ok {
		return log
	}

	return log.With(
		zap.String("request_id", id),
	)
}

func (mw *loggingMiddleware) Close() error {
	log := mw.log.With(
		zap.String("action", "close"),
	)

	err := mw.next.Close()
	if err != nil {
		log.Error(err.Error())
		return err
	}

	log.Info("service closed")
	return nil
}

func (mw *loggingMiddleware) FindSimilar(ctx context.Context, query string, limit ...int) ([]vector.Document, error) {
	log := mw.withRequest(ctx, mw.log.With(
		zap.String("action", "find_similar"),
		zap.String("query", query),
	))

	if len(limit) > 0 && limit[0] > 0 {
		log = log.With(
			zap.Int("limit", limit[0]),
		)
	}

	docs, err := mw.next.FindSimilar(ctx, query, limit...)
	if err != nil {
		log.Error(err.Error())
		return nil, err
	}

	log.Info("similar blogs found", zap.Int("count", len(docs)))
	return docs, nil
}

func (mw *loggingMiddleware) GenerateAIResponse(ctx context.Context, query string) (*AIResponse, error) {
	log := mw.withRequest(ctx, mw.log.With(
		zap.String("action", "generate_ai_response"),
		zap.String("query", query),
	))

	resp, err := mw.next.GenerateAIResponse(ctx, query)
	if err != nil {
		log.Error(err.Error())
		return nil, err
	}

	log.Info("ai response generated", zap.Int("sources", len(resp.Sources)))
	return resp, nil
}

func (mw *loggingMiddleware) StreamAIResponse(ctx context.Context, query string) (ChunkStream, error) {
	log := mw.withRequest(ctx, mw.log.With(
		zap.String("action", "stream_ai_response"),
		zap.String("query", query),
	))

	stream, err := mw.next.StreamAIResponse(ctx, query)
	if err != nil {
		log.Error(err.Error())
		return nil, err
	}

	log.Info("stream started")

	return &loggingStream{
		ChunkStream: stream,
		log:         log,
	}, nil
}

func (mw *loggingMiddleware) GenerateRelatedQuestions(ctx context.Context, question string, docs []vector.Document) ([]string, error) {
	log := mw.withRequest(ctx, mw.log.With(
		zap.String("action", "generate_related_questions"),
		zap.String("question", question),
		zap.Int("context", len(docs)),
	))

	questions, err := mw.next.GenerateRelatedQuestions(ctx, question, docs)
	if err != nil {
		log.Error(err.Error())
		return nil, err
	}

	log.Info("related questions generated", zap.Int("count", len(questions)))
	return questions, nil
}

func (mw *loggingMiddleware) RecommendProduct(ctx context.Context, docs []vector.Document) (*ProductRecommendation, error) {
	log := mw.withRequest(ctx, mw.log.With(
		zap.String("action", "recommend_product"),
		zap.Int("context", len(docs)),
	))

	recommendation, err := mw.next.RecommendProduct(ctx, docs)
	if err != nil {
		log.Error(err.Error())
		return nil, err
	}

	log.Info("product recommended", zap.String("product", recommendation.ProductName))
	return recommendation, nil
}

type loggingStream struct {
	ChunkStream
	log    *zap.Logger
	chunks int
}

func (s *loggingStream) Next() bool {
	ok := s.ChunkStream.Next()
	if ok {
		s.chunks++
	}

	return ok
}

func (s *loggingStream) Close() error {
	streamErr := s.ChunkStream.Err()
	closeErr := s.ChunkStream.Close()

	if streamErr == nil {
		// Close marks an unfinished relay as interrupted.
		streamErr = s.ChunkStream.Err()
	}

	log := s.log.With(
		zap.Int("chunks", s.chunks),
	)

	switch {
	case streamErr != nil:
		log.Warn(streamErr.Error())
	case closeErr != nil:
		log.Error(closeErr.Error())
	default:
		log.Info("stream completed")
	}

	return closeErr
}
