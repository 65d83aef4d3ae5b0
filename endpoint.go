package blograg

import (
	"context"
	"errors"

	"github.com/go-kit/kit/endpoint"

	"github.com/flarexio/blograg/vector"
)

type EndpointSet struct {
	FindSimilar              endpoint.Endpoint
	GenerateAIResponse       endpoint.Endpoint
	StreamAIResponse         endpoint.Endpoint
	GenerateRelatedQuestions endpoint.Endpoint
	RecommendProduct         endpoint.Endpoint
}

func MakeEndpoints(svc Service) EndpointSet {
	return EndpointSet{
		FindSimilar:              FindSimilarEndpoint(svc),
		GenerateAIResponse:       GenerateAIResponseEndpoint(svc),
		StreamAIResponse:         StreamAIResponseEndpoint(svc),
		GenerateRelatedQuestions: GenerateRelatedQuestionsEndpoint(svc),
		RecommendProduct:         RecommendProductEndpoint(svc),
	}
}

type SearchRequest struct {
	Query string `json:"query"`
	Limit int    `json:"limit,omitempty"`
}

type SearchResponse struct {
	Message string            `json:"message"`
	Results []vector.Document `json:"results"`
}

func FindSimilarEndpoint(svc Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req, ok := request.(SearchRequest)
		if !ok {
			return nil, errors.New("invalid request type")
		}

		docs, err := svc.FindSimilar(ctx, req.Query, req.Limit)
		if err != nil {
			return nil, err
		}

		if docs == nil {
			docs = []vector.Document{}
		}

		return &SearchResponse{
			Message: "Similar blogs found",
			Results: docs,
		}, nil
	}
}

type QueryRequest struct {
	Query string `json:"query"`
}

func GenerateAIResponseEndpoint(svc Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req, ok := request.(QueryRequest)
		if !ok {
			return nil, errors.New("invalid request type")
		}

		return svc.GenerateAIResponse(ctx, req.Query)
	}
}

// StreamAIResponseEndpoint returns a ChunkStream; the caller owns it and must
// close it.
func StreamAIResponseEndpoint(svc Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req, ok := request.(QueryRequest)
		if !ok {
			return nil, errors.New("invalid request type")
		}

		return svc.StreamAIResponse(ctx, req.Query)
	}
}

type RelatedQuestionRequest struct {
	Question string            `json:"question"`
	Context  []vector.Document `json:"context"`
}

type RelatedQuestionResponse struct {
	RelatedQuestions []string `json:"related_questions"`
}

func GenerateRelatedQuestionsEndpoint(svc Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req, ok := request.(RelatedQuestionRequest)
		if !ok {
			return nil, errors.New("invalid request type")
		}

		questions, err := svc.GenerateRelatedQuestions(ctx, req.Question, req.Context)
		if err != nil {
			return nil, err
		}

		if questions == nil {
			questions = []string{}
		}

		return &RelatedQuestionResponse{
			RelatedQuestions: questions,
		}, nil
	}
}

type RecommendProductRequest struct {
	Context []vector.Document `json:"context"`
}

func RecommendProductEndpoint(svc Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req, ok := request.(RecommendProductRequest)
		if !ok {
			return nil, errors.New("invalid request type")
		}

		return svc.RecommendProduct(ctx, req.Context)
	}
}
