package llm

import "context"

type Provider string

const (
	ProviderOpenAI   Provider = "openai"
	ProviderGoOpenAI Provider = "go-openai"
)

type EmbeddingConfig struct {
	Provider   Provider `yaml:"provider"`
	BaseURL    string   `yaml:"baseURL"`
	Model      string   `yaml:"model"`
	Dimensions int      `yaml:"dimensions"`
}

type ChatConfig struct {
	Provider    Provider `yaml:"provider"`
	BaseURL     string   `yaml:"baseURL"`
	Model       string   `yaml:"model"`
	Temperature float64  `yaml:"temperature"`
	MaxTokens   int      `yaml:"maxTokens"`
}

// Embedder turns text into a vector. Implementations perform exactly one
// upstream call per invocation.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Message struct {
	Role    Role
	Content string
}

type ChatModel interface {
	Complete(ctx context.Context, messages []Message) (string, error)

	// Stream opens a token stream. Cancelling ctx stops generation upstream.
	Stream(ctx context.Context, messages []Message) (TokenStream, error)
}

// TokenStream is a forward-only sequence of generated text fragments.
type TokenStream interface {
	Next() bool
	Current() string
	Err() error
	Close() error
}
