package openai

import (
	"context"
	"errors"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/ssestream"

	"github.com/flarexio/blograg/llm"
)

const (
	DefaultEmbeddingModel = "text-embedding-3-small"
	DefaultChatModel      = "gpt-4o-mini"
)

var (
	ErrEmptyEmbedding = errors.New("empty embedding response")
	ErrNoChoices      = errors.New("no choices in completion response")
)

func clientOptions(baseURL, apiKey string) []option.RequestOption {
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}

	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}

	return opts
}

func NewEmbedder(cfg llm.EmbeddingConfig, apiKey string) llm.Embedder {
	model := cfg.Model
	if model == "" {
		model = DefaultEmbeddingModel
	}

	return &embedder{
		client:     openai.NewClient(clientOptions(cfg.BaseURL, apiKey)...),
		model:      model,
		dimensions: cfg.Dimensions,
	}
}

type embedder struct {
	client     openai.Client
	model      string
	dimensions int
}

func (e *embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	params := openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{
			OfString: openai.String(text),
		},
		Model: openai.EmbeddingModel(e.model),
	}

	if e.dimensions > 0 {
		params.Dimensions = openai.Int(int64(e.dimensions))
	}

	resp, err := e.client.Embeddings.New(ctx, params)
	if err != nil {
		return nil, err
	}

	if len(resp.Data) == 0 {
		return nil, ErrEmptyEmbedding
	}

	raw := resp.Data[0].Embedding

	vec := make([]float32, len(raw))
	for i, v := range raw {
		vec[i] = float32(v)
	}

	return vec, nil
}

func NewChatModel(cfg llm.ChatConfig, apiKey string) llm.ChatModel {
	model := cfg.Model
	if model == "" {
		model = DefaultChatModel
	}

	return &chatModel{
		client:      openai.NewClient(clientOptions(cfg.BaseURL, apiKey)...),
		model:       model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
	}
}

type chatModel struct {
	client      openai.Client
	model       string
	temperature float64
	maxTokens   int
}

func (m *chatModel) params(messages []llm.Message) openai.ChatCompletionNewParams {
	msgs := make([]openai.ChatCompletionMessageParamUnion, len(messages))
	for i, msg := range messages {
		switch msg.Role {
		case llm.RoleSystem:
			msgs[i] = openai.SystemMessage(msg.Content)
		case llm.RoleAssistant:
			msgs[i] = openai.AssistantMessage(msg.Content)
		default:
			msgs[i] = openai.UserMessage(msg.Content)
		}
	}

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(m.model),
		Messages: msgs,
	}

	if m.temperature > 0 {
		params.Temperature = openai.Float(m.temperature)
	}

	if m.maxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(m.maxTokens))
	}

	return params
}

func (m *chatModel) Complete(ctx context.Context, messages []llm.Message) (string, error) {
	resp, err := m.client.Chat.Completions.New(ctx, m.params(messages))
	if err != nil {
		return "", err
	}

	if len(resp.Choices) == 0 {
		return "", ErrNoChoices
	}

	return resp.Choices[0].Message.Content, nil
}

func (m *chatModel) Stream(ctx context.Context, messages []llm.Message) (llm.TokenStream, error) {
	stream := m.client.Chat.Completions.NewStreaming(ctx, m.params(messages))
	if err := stream.Err(); err != nil {
		stream.Close()
		return nil, err
	}

	return &tokenStream{stream: stream}, nil
}

type tokenStream struct {
	stream  *ssestream.Stream[openai.ChatCompletionChunk]
	current string
}

func (s *tokenStream) Next() bool {
	for s.stream.Next() {
		chunk := s.stream.Current()
		if len(chunk.Choices) == 0 {
			continue
		}

		content := chunk.Choices[0].Delta.Content
		if content == "" {
			continue
		}

		s.current = content
		return true
	}

	s.current = ""
	return false
}

func (s *tokenStream) Current() string {
	return s.current
}

func (s *tokenStream) Err() error {
	return s.stream.Err()
}

func (s *tokenStream) Close() error {
	return s.stream.Close()
}
