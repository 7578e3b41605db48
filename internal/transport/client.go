// Package transport talks to the guide backend's chat endpoint.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"guidechat/internal/models"
)

const chatPath = "/api/chat"

// maxErrorBody bounds how much of a failure response is read for its message.
const maxErrorBody = 64 << 10

// Client is a backend API client. It never retries and imposes no timeout of
// its own; callers bound calls through the context.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     zerolog.Logger
}

type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// NewClient creates a client for the backend rooted at baseURL.
// An empty baseURL targets the same origin, i.e. relative paths.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{},
		logger:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the backend address the client targets.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Health is the backend's availability report.
type Health struct {
	Ready      bool
	ChunkCount int
	Status     string
	Message    string
}

type healthResponse struct {
	Status              string `json:"status"`
	Message             string `json:"message"`
	KnowledgeBaseLoaded bool   `json:"knowledge_base_loaded"`
	ChunksCount         int    `json:"chunks_count"`
}

// CheckHealth issues a single status request.
func (c *Client) CheckHealth(ctx context.Context) (*Health, error) {
	var resp healthResponse
	if err := c.doRequest(ctx, http.MethodGet, nil, &resp); err != nil {
		return nil, err
	}
	return &Health{
		Ready:      resp.KnowledgeBaseLoaded,
		ChunkCount: resp.ChunksCount,
		Status:     resp.Status,
		Message:    resp.Message,
	}, nil
}

// Answer is the backend's reply to a question.
type Answer struct {
	Text    string
	Sources []models.SourceSnippet
}

type askRequest struct {
	Question string `json:"question"`
}

type askResponse struct {
	Answer  string       `json:"answer"`
	Sources []wireSource `json:"sources"`
}

// wireSource accepts both a bare string and a {text, page, similarity} object.
type wireSource struct {
	Text       string
	Page       int
	Similarity float64
}

func (s *wireSource) UnmarshalJSON(data []byte) error {
	var text string
	if err := json.Unmarshal(data, &text); err == nil {
		*s = wireSource{Text: text}
		return nil
	}
	var obj struct {
		Text       string   `json:"text"`
		Page       *float64 `json:"page"`
		Similarity float64  `json:"similarity"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("decode source: %w", err)
	}
	*s = wireSource{Text: obj.Text, Similarity: obj.Similarity}
	if obj.Page != nil {
		s.Page = int(*obj.Page)
	}
	return nil
}

// Ask posts one question. The caller must pass a non-empty, trimmed question.
func (c *Client) Ask(ctx context.Context, question string) (*Answer, error) {
	body, err := json.Marshal(askRequest{Question: question})
	if err != nil {
		return nil, fmt.Errorf("encode question: %w", err)
	}
	var resp askResponse
	if err := c.doRequest(ctx, http.MethodPost, body, &resp); err != nil {
		return nil, err
	}
	answer := &Answer{Text: resp.Answer}
	if len(resp.Sources) > 0 {
		answer.Sources = make([]models.SourceSnippet, 0, len(resp.Sources))
		for _, src := range resp.Sources {
			answer.Sources = append(answer.Sources, models.SourceSnippet{Text: src.Text, Page: src.Page})
		}
	}
	return answer, nil
}

// doRequest performs one call against the chat endpoint and decodes a 2xx body into out.
func (c *Client) doRequest(ctx context.Context, method string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+chatPath, reader)
	if err != nil {
		return networkError(fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Debug().Err(err).Str("method", method).Msg("backend unreachable")
		return networkError(err)
	}
	defer resp.Body.Close()

	c.logger.Debug().
		Str("method", method).
		Int("status", resp.StatusCode).
		Dur("latency", time.Since(start)).
		Msg("backend responded")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return backendError(resp.StatusCode, extractErrorMessage(raw))
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return networkError(fmt.Errorf("read response: %w", err))
	}
	if err := json.Unmarshal(raw, out); err != nil {
		c.logger.Warn().Err(err).Str("method", method).Msg("malformed backend response")
		return &Error{Kind: KindBackend, StatusCode: resp.StatusCode, Message: "malformed response", Err: err}
	}
	return nil
}

// extractErrorMessage reads the "error" field, then "detail", from a failure body.
func extractErrorMessage(raw []byte) string {
	var errResp struct {
		Error  json.RawMessage `json:"error"`
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(raw, &errResp); err != nil {
		return ""
	}
	for _, field := range []json.RawMessage{errResp.Error, errResp.Detail} {
		var msg string
		if len(field) > 0 && json.Unmarshal(field, &msg) == nil && strings.TrimSpace(msg) != "" {
			return msg
		}
	}
	return ""
}
