// Package goopenai talks to OpenAI compatible servers (Ollama, DeepSeek,
// vLLM, ...) through github.com/sashabaranov/go-openai.
package goopenai

import (
	"context"
	"errors"
	"io"

	openai "github.com/sashabaranov/go-openai"

	"github.com/flarexio/blograg/llm"
)

var (
	ErrEmptyEmbedding = errors.New("empty embedding response")
	ErrNoChoices      = errors.New("no choices in completion response")
)

func newClient(baseURL, apiKey string) *openai.Client {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}

	return openai.NewClientWithConfig(cfg)
}

func NewEmbedder(cfg llm.EmbeddingConfig, apiKey string) llm.Embedder {
	model := cfg.Model
	if model == "" {
		model = string(openai.SmallEmbedding3)
	}

	return &embedder{
		client:     newClient(cfg.BaseURL, apiKey),
		model:      model,
		dimensions: cfg.Dimensions,
	}
}

type embedder struct {
	client     *openai.Client
	model      string
	dimensions int
}

func (e *embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	req := openai.EmbeddingRequest{
		Input:      []string{text},
		Model:      openai.EmbeddingModel(e.model),
		Dimensions: e.dimensions,
	}

	resp, err := e.client.CreateEmbeddings(ctx, req)
	if err != nil {
		return nil, err
	}

	if len(resp.Data) == 0 {
		return nil, ErrEmptyEmbedding
	}

	return resp.Data[0].Embedding, nil
}

func NewChatModel(cfg llm.ChatConfig, apiKey string) llm.ChatModel {
	model := cfg.Model
	if model == "" {
		model = openai.GPT4oMini
	}

	return &chatModel{
		client:      newClient(cfg.BaseURL, apiKey),
		model:       model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
	}
}

type chatModel struct {
	client      *openai.Client
	model       string
	temperature float64
	maxTokens   int
}

func (m *chatModel) request(messages []llm.Message, stream bool) openai.ChatCompletionRequest {
	msgs := make([]openai.ChatCompletionMessage, len(messages))
	for i, msg := range messages {
		role := openai.ChatMessageRoleUser
		switch msg.Role {
		case llm.RoleSystem:
			role = openai.ChatMessageRoleSystem
		case llm.RoleAssistant:
			role = openai.ChatMessageRoleAssistant
		}

		msgs[i] = openai.ChatCompletionMessage{
			Role:    role,
			Content: msg.Content,
		}
	}

	return openai.ChatCompletionRequest{
		Model:       m.model,
		Messages:    msgs,
		Temperature: float32(m.temperature),
		MaxTokens:   m.maxTokens,
		Stream:      stream,
	}
}

func (m *chatModel) Complete(ctx context.Context, messages []llm.Message) (string, error) {
	resp, err := m.client.CreateChatCompletion(ctx, m.request(messages, false))
	if err != nil {
		return "", err
	}

	if len(resp.Choices) == 0 {
		return "", ErrNoChoices
	}

	return resp.Choices[0].Message.Content, nil
}

func (m *chatModel) Stream(ctx context.Context, messages []llm.Message) (llm.TokenStream, error) {
	stream, err := m.client.CreateChatCompletionStream(ctx, m.request(messages, true))
	if err != nil {
		return nil, err
	}

	return &tokenStream{stream: stream}, nil
}

type tokenStream struct {
	stream  *openai.ChatCompletionStream
	current string
	done    bool
	err     error
}

func (s *tokenStream) Next() bool {
	for !s.done {
		resp, err := s.stream.Recv()
		if err != nil {
			s.done = true
			if !errors.Is(err, io.EOF) {
				s.err = err
			}

			break
		}

		if len(resp.Choices) == 0 || resp.Choices[0].Delta.Content == "" {
			continue
		}

		s.current = resp.Choices[0].Delta.Content
		return true
	}

	s.current = ""
	return false
}

func (s *tokenStream) Current() string {
	return s.current
}

func (s *tokenStream) Err() error {
	return s.err
}

func (s *tokenStream) Close() error {
	return s.stream.Close()
}
