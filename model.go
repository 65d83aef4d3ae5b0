package blograg

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/flarexio/blograg/llm"
	"github.com/flarexio/blograg/vector"
)

var (
	ErrValidation            = errors.New("validation error")
	ErrEmbeddingService      = errors.New("embedding service error")
	ErrStoreUnavailable      = errors.New("store unavailable")
	ErrLanguageModel         = errors.New("language model error")
	ErrStreamInterrupted     = errors.New("stream interrupted")
	ErrDimensionMismatch     = errors.New("embedding dimension mismatch")
	ErrNoProducts            = errors.New("no products configured")
	ErrStreamingNotSupported = errors.New("streaming is not supported by this transport")
)

// StatusCode maps an error returned by the service to an HTTP status code.
func StatusCode(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrEmbeddingService), errors.Is(err, ErrLanguageModel),
		errors.Is(err, ErrStreamInterrupted):
		return http.StatusBadGateway
	case errors.Is(err, ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, ErrStreamingNotSupported):
		return http.StatusNotImplemented
	default:
		return http.StatusInternalServerError
	}
}

var classes = []error{
	ErrValidation,
	ErrEmbeddingService,
	ErrStoreUnavailable,
	ErrLanguageModel,
	ErrStreamInterrupted,
	ErrDimensionMismatch,
	ErrNoProducts,
	ErrStreamingNotSupported,
}

// ErrorClass names the service error class of err, or returns an empty
// string when err belongs to none.
func ErrorClass(err error) string {
	for _, class := range classes {
		if errors.Is(err, class) {
			return class.Error()
		}
	}

	return ""
}

// ClassError rebuilds an error of the named class. It returns nil when the
// class is unknown.
func ClassError(class string, message string) error {
	for _, sentinel := range classes {
		if sentinel.Error() != class {
			continue
		}

		if message == class {
			return sentinel
		}

		message = strings.TrimPrefix(message, class+": ")
		return fmt.Errorf("%w: %s", sentinel, message)
	}

	return nil
}

// StatusError rebuilds a service error from a status code and message,
// so that errors keep their class across remote transports.
func StatusError(code string, message string) error {
	status, err := strconv.Atoi(code)
	if err != nil {
		return errors.New(code + ":" + message)
	}

	var sentinel error
	switch status {
	case http.StatusBadRequest:
		sentinel = ErrValidation
	case http.StatusBadGateway:
		sentinel = ErrLanguageModel
	case http.StatusServiceUnavailable:
		sentinel = ErrStoreUnavailable
	case http.StatusNotImplemented:
		sentinel = ErrStreamingNotSupported
	default:
		return errors.New(code + ":" + message)
	}

	return fmt.Errorf("%w: %s", sentinel, message)
}

type ContextKey string

const (
	RequestID ContextKey = "request_id"
)

const (
	DefaultSearchLimit = 5
	MaxSearchLimit     = 50
	StreamSearchLimit  = 5
)

type Config struct {
	Embedding llm.EmbeddingConfig `yaml:"embedding"`
	Chat      llm.ChatConfig      `yaml:"chat"`
	Vector    vector.Config       `yaml:"vector"`
	Timeouts  TimeoutConfig       `yaml:"timeouts"`
	Products  []Product           `yaml:"products"`
	RateLimit RateLimitConfig     `yaml:"rateLimit"`
}

type TimeoutConfig struct {
	Embedding  Duration `yaml:"embedding"`
	Search     Duration `yaml:"search"`
	Completion Duration `yaml:"completion"`
	Stream     Duration `yaml:"stream"`
}

func (cfg TimeoutConfig) withDefaults() TimeoutConfig {
	if cfg.Embedding <= 0 {
		cfg.Embedding = Duration(15 * time.Second)
	}

	if cfg.Search <= 0 {
		cfg.Search = Duration(10 * time.Second)
	}

	if cfg.Completion <= 0 {
		cfg.Completion = Duration(60 * time.Second)
	}

	if cfg.Stream <= 0 {
		cfg.Stream = Duration(2 * time.Minute)
	}

	return cfg
}

type RateLimitConfig struct {
	Enabled bool     `yaml:"enabled"`
	Addr    string   `yaml:"addr"`
	Limit   int      `yaml:"limit"`
	Window  Duration `yaml:"window"`
}

type Duration time.Duration

func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

func (d Duration) MarshalJSON() ([]byte, error) {
	str := d.Duration().String()
	return json.Marshal(str)
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}

	duration, err := time.ParseDuration(str)
	if err != nil {
		return err
	}

	*d = Duration(duration)
	return nil
}

func (d Duration) MarshalYAML() (any, error) {
	return d.Duration().String(), nil
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var str string
	if err := value.Decode(&str); err != nil {
		return err
	}

	duration, err := time.ParseDuration(str)
	if err != nil {
		return err
	}

	*d = Duration(duration)
	return nil
}

type Product struct {
	Name        string `json:"name" yaml:"name"`
	URL         string `json:"url" yaml:"url"`
	Description string `json:"description" yaml:"description"`
}

type AIResponse struct {
	Answer  string            `json:"answer"`
	Sources []vector.Document `json:"sources"`
}

type ProductRecommendation struct {
	ProductName string `json:"product_name"`
	ProductURL  string `json:"product_url,omitempty"`
	Reason      string `json:"reason"`
}

// State is a step of the answer pipeline:
// Received → Embedding → Searching → Streaming → Complete, or Failed.
type State int

const (
	StateReceived State = iota
	StateEmbedding
	StateSearching
	StateStreaming
	StateComplete
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateReceived:
		return "received"
	case StateEmbedding:
		return "embedding"
	case StateSearching:
		return "searching"
	case StateStreaming:
		return "streaming"
	case StateComplete:
		return "complete"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

func (s State) Terminal() bool {
	return s == StateComplete || s == StateFailed
}
