package nats

import (
	"context"
	"encoding/json"
	"strconv"

	"github.com/go-kit/kit/endpoint"
	"github.com/nats-io/nats.go/micro"

	"github.com/flarexio/blograg"
)

const (
	RequestIDHeader  = "X-Request-ID"
	ErrorClassHeader = "Blograg-Error-Class"
)

func AddEndpoints(group micro.Group, endpoints blograg.EndpointSet) error {
	handlers := map[string]micro.HandlerFunc{
		"find_similar":               FindSimilarHandler(endpoints.FindSimilar),
		"generate_ai_response":       GenerateAIResponseHandler(endpoints.GenerateAIResponse),
		"generate_related_questions": GenerateRelatedQuestionsHandler(endpoints.GenerateRelatedQuestions),
		"recommend_product":          RecommendProductHandler(endpoints.RecommendProduct),
	}

	for name, handler := range handlers {
		if err := group.AddEndpoint(name, handler); err != nil {
			return err
		}
	}

	return nil
}

func requestContext(r micro.Request) context.Context {
	ctx := context.Background()

	id := r.Headers().Get(RequestIDHeader)
	if id != "" {
		ctx = context.WithValue(ctx, blograg.RequestID, id)
	}

	return ctx
}

func respondError(r micro.Request, err error) {
	code := strconv.Itoa(blograg.StatusCode(err))

	class := blograg.ErrorClass(err)
	if class == "" {
		r.Error(code, err.Error(), nil)
		return
	}

	headers := micro.Headers{
		ErrorClassHeader: []string{class},
	}

	r.Error(code, err.Error(), nil, micro.WithHeaders(headers))
}

func FindSimilarHandler(endpoint endpoint.Endpoint) micro.HandlerFunc {
	return func(r micro.Request) {
		var req blograg.SearchRequest
		if err := json.Unmarshal(r.Data(), &req); err != nil {
			r.Error("400", err.Error(), nil)
			return
		}

		resp, err := endpoint(requestContext(r), req)
		if err != nil {
			respondError(r, err)
			return
		}

		r.RespondJSON(resp)
	}
}

func GenerateAIResponseHandler(endpoint endpoint.Endpoint) micro.HandlerFunc {
	return func(r micro.Request) {
		var req blograg.QueryRequest
		if err := json.Unmarshal(r.Data(), &req); err != nil {
			r.Error("400", err.Error(), nil)
			return
		}

		resp, err := endpoint(requestContext(r), req)
		if err != nil {
			respondError(r, err)
			return
		}

		r.RespondJSON(resp)
	}
}

func GenerateRelatedQuestionsHandler(endpoint endpoint.Endpoint) micro.HandlerFunc {
	return func(r micro.Request) {
		var req blograg.RelatedQuestionRequest
		if err := json.Unmarshal(r.Data(), &req); err != nil {
			r.Error("400", err.Error(), nil)
			return
		}

		resp, err := endpoint(requestContext(r), req)
		if err != nil {
			respondError(r, err)
			return
		}

		r.RespondJSON(resp)
	}
}

func RecommendProductHandler(endpoint endpoint.Endpoint) micro.HandlerFunc {
	return func(r micro.Request) {
		var req blograg.RecommendProductRequest
		if err := json.Unmarshal(r.Data(), &req); err != nil {
			r.Error("400", err.Error(), nil)
			return
		}

		resp, err := endpoint(requestContext(r), req)
		if err != nil {
			respondError(r, err)
			return
		}

		r.RespondJSON(resp)
	}
}
