package nats

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/go-kit/kit/endpoint"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/micro"

	"github.com/flarexio/blograg"
)

// DefaultRequestTimeout covers the server's embedding, search and
// completion timeouts of a single request.
const DefaultRequestTimeout = 90 * time.Second

// MakeEndpoints builds client endpoints that call a blograg micro service
// under the given subject prefix. Requests whose context has no deadline
// wait at most timeout, or DefaultRequestTimeout when timeout is not positive.
// Streaming answers are not available.
func MakeEndpoints(nc *nats.Conn, prefix string, timeout time.Duration) *blograg.EndpointSet {
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}

	return &blograg.EndpointSet{
		FindSimilar:              FindSimilarEndpoint(nc, prefix+".find_similar", timeout),
		GenerateAIResponse:       GenerateAIResponseEndpoint(nc, prefix+".generate_ai_response", timeout),
		GenerateRelatedQuestions: GenerateRelatedQuestionsEndpoint(nc, prefix+".generate_related_questions", timeout),
		RecommendProduct:         RecommendProductEndpoint(nc, prefix+".recommend_product", timeout),
	}
}

func call(ctx context.Context, nc *nats.Conn, topic string, timeout time.Duration, req any) (*nats.Msg, error) {
	data, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	msg := nats.NewMsg(topic)
	msg.Data = data

	if id, ok := ctx.Value(blograg.RequestID).(string); ok {
		msg.Header.Set(RequestIDHeader, id)
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	resp, err := nc.RequestMsgWithContext(ctx, msg)
	if err != nil {
		return nil, err
	}

	if err := Error(resp); err != nil {
		return nil, err
	}

	return resp, nil
}

func FindSimilarEndpoint(nc *nats.Conn, topic string, timeout time.Duration) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req, ok := request.(blograg.SearchRequest)
		if !ok {
			return nil, errors.New("invalid request")
		}

		resp, err := call(ctx, nc, topic, timeout, &req)
		if err != nil {
			return nil, err
		}

		var result blograg.SearchResponse
		if err := json.Unmarshal(resp.Data, &result); err != nil {
			return nil, err
		}

		return &result, nil
	}
}

func GenerateAIResponseEndpoint(nc *nats.Conn, topic string, timeout time.Duration) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req, ok := request.(blograg.QueryRequest)
		if !ok {
			return nil, errors.New("invalid request")
		}

		resp, err := call(ctx, nc, topic, timeout, &req)
		if err != nil {
			return nil, err
		}

		var result blograg.AIResponse
		if err := json.Unmarshal(resp.Data, &result); err != nil {
			return nil, err
		}

		return &result, nil
	}
}

func GenerateRelatedQuestionsEndpoint(nc *nats.Conn, topic string, timeout time.Duration) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req, ok := request.(blograg.RelatedQuestionRequest)
		if !ok {
			return nil, errors.New("invalid request")
		}

		resp, err := call(ctx, nc, topic, timeout, &req)
		if err != nil {
			return nil, err
		}

		var result blograg.RelatedQuestionResponse
		if err := json.Unmarshal(resp.Data, &result); err != nil {
			return nil, err
		}

		return &result, nil
	}
}

func RecommendProductEndpoint(nc *nats.Conn, topic string, timeout time.Duration) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req, ok := request.(blograg.RecommendProductRequest)
		if !ok {
			return nil, errors.New("invalid request")
		}

		resp, err := call(ctx, nc, topic, timeout, &req)
		if err != nil {
			return nil, err
		}

		var result blograg.ProductRecommendation
		if err := json.Unmarshal(resp.Data, &result); err != nil {
			return nil, err
		}

		return &result, nil
	}
}

// Error extracts a micro service error from a reply, keeping its class.
func Error(msg *nats.Msg) error {
	if msg == nil {
		return errors.New("nil message")
	}

	code := msg.Header.Get(micro.ErrorCodeHeader)
	if code == "" {
		return nil
	}

	description := msg.Header.Get(micro.ErrorHeader)
	if description == "" {
		description = "unknown error"
	}

	if class := msg.Header.Get(ErrorClassHeader); class != "" {
		if err := blograg.ClassError(class, description); err != nil {
			return err
		}
	}

	return blograg.StatusError(code, description)
}
