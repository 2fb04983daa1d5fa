// Package advisor requests optimization recommendations from an
// OpenAI-compatible chat-completions endpoint
package advisor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/nainya/querylens/internal/logger"
	"github.com/nainya/querylens/internal/metrics"
	"github.com/nainya/querylens/pkg/group"
	"github.com/nainya/querylens/pkg/metacache"
)

// ErrNoAPIKey indicates the recommendation service cannot be called
var ErrNoAPIKey = errors.New("advisor: API key not configured")

// Config holds advisor client settings
type Config struct {
	Endpoint string
	APIKey   string
	Model    string
	Timeout  time.Duration
}

// Client calls the recommendation collaborator once per query group.
// Request timeouts live here, not in the analysis core.
type Client struct {
	cfg     Config
	http    *http.Client
	log     *logger.Logger
	metrics *metrics.Metrics
}

// NewClient creates an advisor client
func NewClient(cfg Config, log *logger.Logger, m *metrics.Metrics) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &Client{
		cfg:     cfg,
		http:    &http.Client{Timeout: timeout},
		log:     log.Component("advisor"),
		metrics: m,
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Recommend requests optimization advice for one query group. meta and
// plan may be nil when the respective context was unavailable; the prompt
// then flags the missing sections.
func (c *Client) Recommend(ctx context.Context, g *group.QueryGroup, meta *metacache.Entry, plan bson.M) (string, error) {
	if c.cfg.APIKey == "" {
		return "", ErrNoAPIKey
	}

	start := time.Now()
	text, err := c.send(ctx, BuildPrompt(g, meta, plan))

	status := "success"
	if err != nil {
		status = "error"
	}
	if c.metrics != nil {
		c.metrics.RecordAdvisorRequest(status, time.Since(start))
	}

	event := c.log.Debug("Recommendation request completed")
	if err != nil {
		event = c.log.Error("Recommendation request failed").Err(err)
	}
	event.
		Str("signature", string(g.Signature)).
		Str("namespace", g.Representative.Namespace.String()).
		Dur("duration_ms", time.Since(start)).
		Send()

	return text, err
}

func (c *Client) send(ctx context.Context, prompt string) (string, error) {
	payload, err := json.Marshal(chatRequest{
		Model:    c.cfg.Model,
		Messages: []chatMessage{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return "", fmt.Errorf("advisor: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("advisor: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("advisor: request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("advisor: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("advisor: unexpected status %d: %s", resp.StatusCode, truncate(body, 200))
	}

	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("advisor: decode response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("advisor: response contained no choices")
	}
	return parsed.Choices[0].Message.Content, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
