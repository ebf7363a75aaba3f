package answer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/askfs/askfs/internal/assemble"
	"github.com/askfs/askfs/internal/errors"
)

// Ollama defaults.
const (
	DefaultOllamaEndpoint = "http://localhost:11434"
	DefaultOllamaModel    = "qwen2.5:7b-instruct"
	DefaultOllamaTimeout  = 120 * time.Second
	ollamaPoolSize        = 2
)

// OllamaConfig configures the local Ollama answerer.
type OllamaConfig struct {
	Endpoint string
	Model    string
	Timeout  time.Duration
}

// Ollama answers via a local Ollama /api/generate call.
type Ollama struct {
	client    *http.Client
	transport *http.Transport
	cfg       OllamaConfig
	logger    *slog.Logger
}

var _ Answerer = (*Ollama)(nil)

// NewOllama creates an Ollama answerer. No health check is made here; a
// dead endpoint surfaces as a retryable answer error on the first call.
func NewOllama(cfg OllamaConfig, logger *slog.Logger) *Ollama {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultOllamaEndpoint
	}
	if cfg.Model == "" {
		cfg.Model = DefaultOllamaModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultOllamaTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}

	// Timeout comes from the per-request context, not the client, so
	// callers can cancel interactively.
	transport := &http.Transport{
		MaxIdleConns:        ollamaPoolSize,
		MaxIdleConnsPerHost: ollamaPoolSize,
		IdleConnTimeout:     10 * time.Second,
	}
	return &Ollama{
		client:    &http.Client{Transport: transport},
		transport: transport,
		cfg:       cfg,
		logger:    logger,
	}
}

type generateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

type generateResponse struct {
	Response string `json:"response"`
	Error    string `json:"error,omitempty"`
}

// Answer sends the grounded prompt to /api/generate and returns the model
// output.
func (o *Ollama) Answer(ctx context.Context, question string, contexts []assemble.Window) (string, error) {
	reqCtx, cancel := context.WithTimeout(ctx, o.cfg.Timeout)
	defer cancel()

	body, err := json.Marshal(generateRequest{
		Model:  o.cfg.Model,
		Prompt: buildPrompt(question, contexts),
		Stream: false,
	})
	if err != nil {
		return "", errors.New(errors.ErrCodeInternal, "failed to marshal generate request", err)
	}

	url := strings.TrimSuffix(o.cfg.Endpoint, "/") + "/api/generate"
	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", errors.New(errors.ErrCodeInternal, "failed to build generate request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := o.client.Do(req)
	if err != nil {
		if reqCtx.Err() == context.DeadlineExceeded {
			return "", errors.New(errors.ErrCodeNetworkTimeout, "answer request timed out", err)
		}
		return "", errors.New(errors.ErrCodeNetworkUnavailable, "answer endpoint unreachable", err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return "", errors.New(errors.ErrCodeAnswerFailed, "failed to read answer response", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", errors.New(errors.ErrCodeAnswerFailed,
			fmt.Sprintf("answer endpoint returned status %d", resp.StatusCode), nil)
	}

	var gr generateResponse
	if err := json.Unmarshal(data, &gr); err != nil {
		return "", errors.New(errors.ErrCodeAnswerFailed, "failed to decode answer response", err)
	}
	if gr.Error != "" {
		return "", errors.New(errors.ErrCodeAnswerFailed, "answer model error: "+gr.Error, nil)
	}

	o.logger.Debug("answer_generated",
		slog.String("model", o.cfg.Model),
		slog.Duration("duration", time.Since(start)),
		slog.Int("context_windows", len(contexts)))
	return strings.TrimSpace(gr.Response), nil
}

// Close releases pooled connections.
func (o *Ollama) Close() {
	o.transport.CloseIdleConnections()
}

// WithFallback wraps primary so that any failure falls back to the
// baseline answerer, logging the original error.
type WithFallback struct {
	Primary  Answerer
	Fallback Answerer
	Logger   *slog.Logger
}

// Answer tries the primary answerer, then the fallback.
func (w *WithFallback) Answer(ctx context.Context, question string, contexts []assemble.Window) (string, error) {
	out, err := w.Primary.Answer(ctx, question, contexts)
	if err == nil {
		return out, nil
	}
	if w.Logger != nil {
		w.Logger.Warn("answerer_fell_back", slog.String("error", err.Error()))
	}
	return w.Fallback.Answer(ctx, question, contexts)
}
