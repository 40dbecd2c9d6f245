package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/tamalebot/tamalebot/internal/model"
)

// Config holds the HTTP adapter's connection and generation parameters.
type Config struct {
	Endpoint     string
	APIKey       string
	Model        string
	MaxTokens    int
	SystemPrompt string
	Dialect      Dialect
	Timeout      time.Duration
}

// DefaultConfig returns generation defaults, leaving Endpoint/APIKey/Model
// for the caller to fill in from configuration.
func DefaultConfig() Config {
	return Config{
		MaxTokens: 4096,
		Timeout:   2 * time.Minute,
	}
}

// HTTPAdapter is an Adapter backed by a single HTTP API endpoint, wired to
// one of the two wire dialects (spec §4.4).
type HTTPAdapter struct {
	cfg        Config
	httpClient *http.Client
}

// NewHTTPAdapter constructs an HTTPAdapter. If cfg.Dialect was not set
// explicitly by the caller, use WithDialectDetection to infer it from
// cfg.Model.
func NewHTTPAdapter(cfg Config) *HTTPAdapter {
	return &HTTPAdapter{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

// WithDialectDetection returns a copy of cfg with Dialect inferred from
// cfg.Model's prefix (spec §4.4, "Model detection").
func WithDialectDetection(cfg Config) Config {
	cfg.Dialect = DetectDialect(cfg.Model)
	return cfg
}

// SendMessage implements Adapter.
func (a *HTTPAdapter) SendMessage(ctx context.Context, history model.History, toolSchemas []model.ToolSchema) (model.LLMResponse, error) {
	switch a.cfg.Dialect {
	case DialectFunctionCall:
		return a.sendFunctionCall(ctx, history, toolSchemas)
	default:
		return a.sendNative(ctx, history, toolSchemas)
	}
}

func (a *HTTPAdapter) sendNative(ctx context.Context, history model.History, toolSchemas []model.ToolSchema) (model.LLMResponse, error) {
	req := buildNativeRequest(a.cfg.Model, a.cfg.MaxTokens, a.cfg.SystemPrompt, history, toolSchemas)

	var wire nativeResponse
	if err := a.doJSON(ctx, req, &wire); err != nil {
		return model.LLMResponse{}, err
	}
	return parseNativeResponse(wire), nil
}

func (a *HTTPAdapter) sendFunctionCall(ctx context.Context, history model.History, toolSchemas []model.ToolSchema) (model.LLMResponse, error) {
	req := buildFunctionRequest(a.cfg.Model, a.cfg.MaxTokens, a.cfg.SystemPrompt, history, toolSchemas)

	var wire functionResponse
	if err := a.doJSON(ctx, req, &wire); err != nil {
		return model.LLMResponse{}, err
	}
	return parseFunctionResponse(wire)
}

func (a *HTTPAdapter) doJSON(ctx context.Context, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("provider: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("provider: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if a.cfg.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+a.cfg.APIKey)
	}

	resp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("provider: send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("provider: unexpected status %d: %s", resp.StatusCode, string(respBody))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("provider: decode response: %w", err)
	}
	return nil
}
