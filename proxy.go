package blograg

import (
	"context"
	"errors"

	"github.com/flarexio/blograg/vector"
)

// ProxyMiddleware serves the service through remote endpoints. Streaming
// answers are not relayed by the remote transports.
func ProxyMiddleware(endpoints *EndpointSet) ServiceMiddleware {
	return func(next Service) Service {
		return &proxyMiddleware{
			endpoints: endpoints,
		}
	}
}

type proxyMiddleware struct {
	endpoints *EndpointSet
}

func (mw *proxyMiddleware) Close() error {
	return nil
}

func (mw *proxyMiddleware) FindSimilar(ctx context.Context, query string, limit ...int) ([]vector.Document, error) {
	n := 0
	if len(limit) > 0 {
		n = limit[0]
	}

	req := SearchRequest{
		Query: query,
		Limit: n,
	}

	resp, err := mw.endpoints.FindSimilar(ctx, req)
	if err != nil {
		return nil, err
	}

	result, ok := resp.(*SearchResponse)
	if !ok {
		return nil, errors.New("invalid response type")
	}

	return result.Results, nil
}

func (mw *proxyMiddleware) GenerateAIResponse(ctx context.Context, query string) (*AIResponse, error) {
	resp, err := mw.endpoints.GenerateAIResponse(ctx, QueryRequest{Query: query})
	if err != nil {
		return nil, err
	}

	result, ok := resp.(*AIResponse)
	if !ok {
		return nil, errors.New("invalid response type")
	}

	return result, nil
}

func (mw *proxyMiddleware) StreamAIResponse(ctx context.Context, query string) (ChunkStream, error) {
	return nil, ErrStreamingNotSupported
}

func (mw *proxyMiddleware) GenerateRelatedQuestions(ctx context.Context, question string, docs []vector.Document) ([]string, error) {
	req := RelatedQuestionRequest{
		Question: question,
		Context:  docs,
	}

	resp, err := mw.endpoints.GenerateRelatedQuestions(ctx, req)
	if err != nil {
		return nil, err
	}

	result, ok := resp.(*RelatedQuestionResponse)
	if !ok {
		return nil, errors.New("invalid response type")
	}

	return result.RelatedQuestions, nil
}

func (mw *proxyMiddleware) RecommendProduct(ctx context.Context, docs []vector.Document) (*ProductRecommendation, error) {
	req := RecommendProductRequest{
		Context: docs,
	}

	resp, err := mw.endpoints.RecommendProduct(ctx, req)
	if err != nil {
		return nil, err
	}

	result, ok := resp.(*ProductRecommendation)
	if !ok {
		return nil, errors.New("invalid response type")
	}

	return result, nil
}
