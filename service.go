package blograg

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/flarexio/blograg/llm"
	"github.com/flarexio/blograg/vector"
)

// Service defines the core logic of the blog assistant.
type Service interface {

	// Close releases the underlying vector store.
	Close() error

	// FindSimilar returns the blog posts closest to the query, best match first.
	FindSimilar(ctx context.Context, query string, limit ...int) ([]vector.Document, error)

	// GenerateAIResponse answers the query grounded on the closest blog posts.
	GenerateAIResponse(ctx context.Context, query string) (*AIResponse, error)

	// StreamAIResponse answers the query like GenerateAIResponse, but relays
	// the answer fragment by fragment as the model produces them.
	StreamAIResponse(ctx context.Context, query string) (ChunkStream, error)

	// GenerateRelatedQuestions proposes follow-up questions for the reader.
	GenerateRelatedQuestions(ctx context.Context, question string, docs []vector.Document) ([]string, error)

	// RecommendProduct picks one product of the catalog that fits the posts.
	RecommendProduct(ctx context.Context, docs []vector.Document) (*ProductRecommendation, error)
}

type ServiceMiddleware func(Service) Service

func NewService(cfg Config, store vector.Store, embedder llm.Embedder, chat llm.ChatModel) (Service, error) {
	log := zap.L().With(
		zap.String("service", "blograg"),
	)

	if cfg.Embedding.Dimensions > 0 && store.Dimensions() > 0 &&
		cfg.Embedding.Dimensions != store.Dimensions() {

		return nil, fmt.Errorf("%w: embedding model produces %d, store expects %d",
			ErrDimensionMismatch, cfg.Embedding.Dimensions, store.Dimensions())
	}

	svc := &service{
		store:    store,
		embedder: embedder,
		chat:     chat,
		products: cfg.Products,
		timeouts: cfg.Timeouts.withDefaults(),
		log:      log,
	}

	return svc, nil
}

type service struct {
	store    vector.Store
	embedder llm.Embedder
	chat     llm.ChatModel
	products []Product
	timeouts TimeoutConfig
	log      *zap.Logger
}

func (svc *service) Close() error {
	return svc.store.Close()
}

// pipeline tracks one request through the answer states.
type pipeline struct {
	state State
	log   *zap.Logger
}

func (svc *service) newPipeline(ctx context.Context, action string) *pipeline {
	log := svc.log.With(
		zap.String("action", action),
	)

	if id, ok := ctx.Value(RequestID).(string); ok {
		log = log.With(
			zap.String("request_id", id),
		)
	}

	return &pipeline{
		state: StateReceived,
		log:   log,
	}
}

func (p *pipeline) transition(to State) {
	p.log.Debug("state changed",
		zap.Stringer("from", p.state),
		zap.Stringer("to", to),
	)

	p.state = to
}

func (p *pipeline) fail(err error) error {
	p.log.Debug("state changed",
		zap.Stringer("from", p.state),
		zap.Stringer("to", StateFailed),
		zap.Error(err),
	)

	p.state = StateFailed
	return err
}

func validateQuery(query string) (string, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return "", fmt.Errorf("%w: query is required", ErrValidation)
	}

	return query, nil
}

func (svc *service) embed(ctx context.Context, p *pipeline, query string) ([]float32, error) {
	p.transition(StateEmbedding)

	ctx, cancel := context.WithTimeout(ctx, svc.timeouts.Embedding.Duration())
	defer cancel()

	vec, err := svc.embedder.Embed(ctx, query)
	if err != nil {
		return nil, p.fail(fmt.Errorf("%w: %w", ErrEmbeddingService, err))
	}

	if dim := svc.store.Dimensions(); dim > 0 && len(vec) != dim {
		err := fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(vec), dim)
		p.log.Error("embedding model and store disagree on dimensions", zap.Error(err))
		return nil, p.fail(err)
	}

	return vec, nil
}

// search holds a store connection only for the duration of the query; it is
// released on every return path.
func (svc *service) search(ctx context.Context, p *pipeline, vec []float32, limit int) ([]vector.Document, error) {
	p.transition(StateSearching)

	ctx, cancel := context.WithTimeout(ctx, svc.timeouts.Search.Duration())
	defer cancel()

	conn, err := svc.store.Acquire(ctx)
	if err != nil {
		return nil, p.fail(fmt.Errorf("%w: %w", ErrStoreUnavailable, err))
	}
	defer conn.Release()

	docs, err := conn.Search(ctx, vector.FormatVector(vec), limit)
	if err != nil {
		return nil, p.fail(fmt.Errorf("%w: %w", ErrStoreUnavailable, err))
	}

	return docs, nil
}

func (svc *service) retrieve(ctx context.Context, p *pipeline, query string, limit int) ([]vector.Document, error) {
	vec, err := svc.embed(ctx, p, query)
	if err != nil {
		return nil, err
	}

	return svc.search(ctx, p, vec, limit)
}

func (svc *service) FindSimilar(ctx context.Context, query string, limit ...int) ([]vector.Document, error) {
	p := svc.newPipeline(ctx, "find_similar")

	query, err := validateQuery(query)
	if err != nil {
		return nil, p.fail(err)
	}

	n := DefaultSearchLimit
	if len(limit) > 0 && limit[0] != 0 {
		n = limit[0]
	}

	if n < 0 || n > MaxSearchLimit {
		return nil, p.fail(fmt.Errorf("%w: limit must be between 1 and %d", ErrValidation, MaxSearchLimit))
	}

	docs, err := svc.retrieve(ctx, p, query, n)
	if err != nil {
		return nil, err
	}

	p.transition(StateComplete)
	return docs, nil
}

func (svc *service) complete(ctx context.Context, messages []llm.Message) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, svc.timeouts.Completion.Duration())
	defer cancel()

	reply, err := svc.chat.Complete(ctx, messages)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrLanguageModel, err)
	}

	return reply, nil
}

func (svc *service) GenerateAIResponse(ctx context.Context, query string) (*AIResponse, error) {
	p := svc.newPipeline(ctx, "generate_ai_response")

	query, err := validateQuery(query)
	if err != nil {
		return nil, p.fail(err)
	}

	docs, err := svc.retrieve(ctx, p, query, DefaultSearchLimit)
	if err != nil {
		return nil, err
	}

	p.transition(StateStreaming)

	answer, err := svc.complete(ctx, answerMessages(query, docs))
	if err != nil {
		return nil, p.fail(err)
	}

	p.transition(StateComplete)

	return &AIResponse{
		Answer:  answer,
		Sources: docs,
	}, nil
}

func (svc *service) StreamAIResponse(ctx context.Context, query string) (ChunkStream, error) {
	p := svc.newPipeline(ctx, "stream_ai_response")

	query, err := validateQuery(query)
	if err != nil {
		return nil, p.fail(err)
	}

	docs, err := svc.retrieve(ctx, p, query, StreamSearchLimit)
	if err != nil {
		return nil, err
	}

	p.transition(StateStreaming)

	streamCtx, cancel := context.WithTimeout(ctx, svc.timeouts.Stream.Duration())

	upstream, err := svc.chat.Stream(streamCtx, answerMessages(query, docs))
	if err != nil {
		cancel()
		return nil, p.fail(fmt.Errorf("%w: %w", ErrLanguageModel, err))
	}

	return newRelay(streamCtx, cancel, upstream), nil
}

func (svc *service) GenerateRelatedQuestions(ctx context.Context, question string, docs []vector.Document) ([]string, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, fmt.Errorf("%w: question is required", ErrValidation)
	}

	reply, err := svc.complete(ctx, relatedQuestionMessages(question, docs))
	if err != nil {
		return nil, err
	}

	questions, err := parseRelatedQuestions(reply)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLanguageModel, err)
	}

	return questions, nil
}

func (svc *service) RecommendProduct(ctx context.Context, docs []vector.Document) (*ProductRecommendation, error) {
	if len(docs) == 0 {
		return nil, fmt.Errorf("%w: context is required", ErrValidation)
	}

	if len(svc.products) == 0 {
		return nil, ErrNoProducts
	}

	reply, err := svc.complete(ctx, productMessages(docs, svc.products))
	if err != nil {
		return nil, err
	}

	recommendation, err := parseProductRecommendation(reply, svc.products)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLanguageModel, err)
	}

	return recommendation, nil
}

// Index embeds and stores documents. It is used by the index command and
// is not part of the request path.
func Index(ctx context.Context, store vector.Store, embedder llm.Embedder, docs []vector.Document, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	conn, err := store.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	defer conn.Release()

	for _, doc := range docs {
		if doc.ID == "" {
			return fmt.Errorf("%w: document id is required", ErrValidation)
		}

		if strings.TrimSpace(doc.Content) == "" {
			return fmt.Errorf("%w: document %s has no content", ErrValidation, doc.ID)
		}

		if len(doc.Embedding) == 0 {
			text := doc.Content
			if doc.Title != "" {
				text = doc.Title + "\n\n" + doc.Content
			}

			embedCtx, cancel := context.WithTimeout(ctx, timeout)
			vec, err := embedder.Embed(embedCtx, text)
			cancel()

			if err != nil {
				return fmt.Errorf("%w: %w", ErrEmbeddingService, err)
			}

			doc.Embedding = vec
		}

		if err := conn.Upsert(ctx, doc); err != nil {
			if errors.Is(err, context.Canceled) {
				return err
			}

			return fmt.Errorf("upsert %s: %w", doc.ID, err)
		}
	}

	return nil
}
