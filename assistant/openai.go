package assistant

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/c360/eipcanvas/errors"
	"github.com/c360/eipcanvas/health"
	"github.com/c360/eipcanvas/pkg/retry"
)

// OpenAIConfig configures the OpenAI-compatible generator.
type OpenAIConfig struct {
	// BaseURL of the chat completion service.
	// Examples:
	//   - "http://localhost:11434/v1" (Ollama)
	//   - "https://api.openai.com/v1" (OpenAI cloud)
	BaseURL string

	// Model is the chat model to use, e.g. "mistral".
	Model string

	// APIKey for authentication, optional for local services.
	APIKey string

	// Timeout bounds a whole generation run (default: 2m).
	Timeout time.Duration

	// Temperature is passed through to the model (default 0).
	Temperature float32

	// Retry applies to attempts that fail before the first chunk arrives.
	// Zero value uses retry.Transient().
	Retry retry.Config

	// Logger for request logging (optional, defaults to slog.Default()).
	Logger *slog.Logger
}

// OpenAIGenerator streams flows from an OpenAI-compatible chat endpoint using
// the JSON response format.
type OpenAIGenerator struct {
	client      *openai.Client
	model       string
	temperature float32
	retry       retry.Config
	logger      *slog.Logger
}

var _ Generator = (*OpenAIGenerator)(nil)

// NewOpenAIGenerator creates a generator for cfg.
func NewOpenAIGenerator(cfg OpenAIConfig) (*OpenAIGenerator, error) {
	if cfg.BaseURL == "" {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "OpenAIGenerator", "New", "base_url is required")
	}
	if cfg.Model == "" {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "OpenAIGenerator", "New", "model is required")
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 2 * time.Minute
	}

	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = "unused" // local services ignore the key
	}

	config := openai.DefaultConfig(apiKey)
	config.BaseURL = cfg.BaseURL
	config.HTTPClient = &http.Client{Timeout: timeout}

	policy := cfg.Retry
	if policy.MaxAttempts == 0 {
		policy = retry.Transient()
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &OpenAIGenerator{
		client:      openai.NewClientWithConfig(config),
		model:       cfg.Model,
		temperature: cfg.Temperature,
		retry:       policy,
		logger:      logger.With("component", "assistant", "model", cfg.Model),
	}, nil
}

// Generate implements Generator. Attempts that fail before any chunk has been
// delivered are retried; a stream that breaks midway is not.
func (g *OpenAIGenerator) Generate(ctx context.Context, req Request, onChunk func(string)) (string, error) {
	system, user, err := req.Messages()
	if err != nil {
		return "", errors.WrapInvalid(err, "OpenAIGenerator", "Generate", "render prompt")
	}

	chatReq := openai.ChatCompletionRequest{
		Model:       g.model,
		Temperature: g.temperature,
		Stream:      true,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
	}

	var raw strings.Builder
	attempt := 0
	err = retry.Do(ctx, g.retry, func() error {
		attempt++
		raw.Reset()
		delivered, err := g.stream(ctx, chatReq, &raw, onChunk)
		if err != nil && delivered {
			return retry.NonRetryable(err)
		}
		if err != nil {
			g.logger.Debug("Generation attempt failed", "request_id", req.ID, "attempt", attempt, "error", err)
		}
		return err
	})
	return raw.String(), err
}

// Ping checks that the endpoint answers and serves the configured model.
// Model ids with a tag suffix such as "mistral:latest" match "mistral".
func (g *OpenAIGenerator) Ping(ctx context.Context) error {
	models, err := g.client.ListModels(ctx)
	if err != nil {
		return errors.WrapTransient(err, "OpenAIGenerator", "Ping", "list models")
	}
	for _, m := range models.Models {
		if m.ID == g.model || strings.HasPrefix(m.ID, g.model+":") {
			return nil
		}
	}
	return errors.WrapInvalid(fmt.Errorf("model %q is not served", g.model), "OpenAIGenerator", "Ping", "find model")
}

// HealthCheck returns a check that pings the endpoint within timeout. A
// failing endpoint reports degraded: the canvas keeps working without it.
func (g *OpenAIGenerator) HealthCheck(timeout time.Duration) health.Check {
	return func() health.Status {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		return health.FromError("assistant", g.Ping(ctx), "model "+g.model+" available")
	}
}

// stream runs one attempt and reports whether any chunk was delivered.
func (g *OpenAIGenerator) stream(ctx context.Context, req openai.ChatCompletionRequest, raw *strings.Builder, onChunk func(string)) (bool, error) {
	stream, err := g.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return false, classify(err, "open stream")
	}
	defer stream.Close()

	delivered := false
	for {
		resp, err := stream.Recv()
		if stderrors.Is(err, io.EOF) {
			return delivered, nil
		}
		if err != nil {
			return delivered, classify(err, "receive chunk")
		}
		for _, choice := range resp.Choices {
			if choice.Delta.Content == "" {
				continue
			}
			raw.WriteString(choice.Delta.Content)
			delivered = true
			if onChunk != nil {
				onChunk(choice.Delta.Content)
			}
		}
	}
}

// classify marks client errors invalid and everything else transient.
func classify(err error, action string) error {
	status := 0
	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case stderrors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
	case stderrors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
	}
	if status >= 400 && status < 500 && status != http.StatusTooManyRequests && status != http.StatusRequestTimeout {
		return errors.WrapInvalid(fmt.Errorf("status %d: %w", status, err), "OpenAIGenerator", "Generate", action)
	}
	return errors.WrapTransient(err, "OpenAIGenerator", "Generate", action)
}
