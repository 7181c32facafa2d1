package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/bryanwahyu/solidity-sentinel/internal/domain/ai"
)

const (
	probeTimeout    = 5 * time.Second
	generateTimeout = 300 * time.Second
	// Low temperature biases the model toward literal, parseable output.
	temperature = 0.1
)

// Client talks to an Ollama server over HTTP.
type Client struct {
	host   string
	http   *http.Client
	probes *http.Client
	log    *zap.Logger
}

// NewClient builds a client against host, e.g. "http://localhost:11434".
func NewClient(host string, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		host:   host,
		http:   &http.Client{Timeout: generateTimeout},
		probes: &http.Client{Timeout: probeTimeout},
		log:    log,
	}
}

type generateRequest struct {
	Model   string          `json:"model"`
	Prompt  string          `json:"prompt"`
	Stream  bool            `json:"stream"`
	Options generateOptions `json:"options"`
}

type generateOptions struct {
	Temperature float64 `json:"temperature"`
}

type generateResponse struct {
	Response string `json:"response"`
}

// CheckAvailability probes /api/tags. True only on HTTP 200; any error is
// reported as unavailable, never raised.
func (c *Client) CheckAvailability(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.host+"/api/tags", nil)
	if err != nil {
		return false
	}
	resp, err := c.probes.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	return resp.StatusCode == http.StatusOK
}

// Generate runs one non-streaming completion. The system and user prompts
// are joined with a blank line, matching the /api/generate single-prompt
// shape.
func (c *Client) Generate(ctx context.Context, model, systemPrompt, userPrompt string) (string, error) {
	body, err := json.Marshal(generateRequest{
		Model:   model,
		Prompt:  systemPrompt + "\n\n" + userPrompt,
		Stream:  false,
		Options: generateOptions{Temperature: temperature},
	})
	if err != nil {
		return "", fmt.Errorf("%w: encoding request: %v", ai.ErrAIService, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.host+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("%w: building request: %v", ai.ErrAIService, err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return "", classify(err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: reading response: %v", ai.ErrAIService, err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: model server returned status %d: %s",
			ai.ErrAIService, resp.StatusCode, string(data))
	}

	var out generateResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return "", fmt.Errorf("%w: decoding response: %v", ai.ErrAIService, err)
	}

	c.log.Debug("generation finished",
		zap.String("model", model),
		zap.Duration("took", time.Since(start)),
		zap.Int("chars", len(out.Response)))
	return out.Response, nil
}

// classify maps transport failures onto the AI-service error with a
// message the caller can surface as-is.
func classify(err error) error {
	if errors.Is(err, os.ErrDeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: request timed out, the model may still be loading", ai.ErrAIService)
	}
	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return fmt.Errorf("%w: request timed out, the model may still be loading", ai.ErrAIService)
	}
	if errors.Is(err, syscall.ECONNREFUSED) {
		return fmt.Errorf("%w: model service not reachable, is it running?", ai.ErrAIService)
	}
	return fmt.Errorf("%w: %v", ai.ErrAIService, err)
}
