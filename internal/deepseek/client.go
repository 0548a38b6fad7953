// Package deepseek implements the completion client adapter: a thin client
// for an OpenAI-compatible chat-completions endpoint, supporting whole-
// response and incremental (server-sent events) delivery. The contract is
// provider-agnostic; any endpoint speaking the same wire protocol can be
// substituted by pointing BaseURL elsewhere.
package deepseek

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"deepchat/internal/types"
)

// Client talks to a remote chat-completions service.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

// Completion is the buffered result: the full assistant text plus the token
// accounting record.
type Completion struct {
	Text  string
	Usage types.Usage
}

// NewClient creates a client with the given config.
func NewClient(config Config, logger *zap.Logger) *Client {
	if config.BaseURL == "" {
		config.BaseURL = DefaultBaseURL
	}
	if config.Timeout == 0 {
		config.Timeout = DefaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		apiKey:  config.APIKey,
		baseURL: strings.TrimRight(config.BaseURL, "/"),
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		logger: logger,
	}
}

// Complete sends the context window and returns the full assistant message.
// Failures, including timeouts, carry KindUpstream.
func (c *Client) Complete(ctx context.Context, messages []types.Message, opts Options) (*Completion, error) {
	// Apply the client timeout when the caller brought no deadline.
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.httpClient.Timeout)
		defer cancel()
	}

	opts = opts.withDefaults()
	start := time.Now()
	c.logger.Debug("completion request",
		zap.String("model", opts.Model), zap.Int("messages", len(messages)))

	body, err := json.Marshal(c.buildRequest(messages, opts, false))
	if err != nil {
		return nil, types.WrapError(types.KindUpstream, err, "failed to marshal request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, types.WrapError(types.KindUpstream, err, "failed to create request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, types.WrapError(types.KindUpstream, err, "completion request failed")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, types.WrapError(types.KindUpstream, err, "failed to read response")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, types.NewError(types.KindUpstream,
			"completion request failed with status %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	var parsed wireResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, types.WrapError(types.KindUpstream, err, "failed to parse response")
	}
	if parsed.Error != nil {
		return nil, types.NewError(types.KindUpstream, "completion service error: %s", parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 {
		return nil, types.NewError(types.KindUpstream, "no completion returned")
	}

	c.logger.Debug("completion finished",
		zap.Duration("elapsed", time.Since(start)),
		zap.Int("total_tokens", parsed.Usage.TotalTokens))

	return &Completion{
		Text: parsed.Choices[0].Message.Content,
		Usage: types.Usage{
			PromptTokens:     parsed.Usage.PromptTokens,
			CompletionTokens: parsed.Usage.CompletionTokens,
			TotalTokens:      parsed.Usage.TotalTokens,
		},
	}, nil
}

// CompleteStreaming sends the context window with streaming enabled and
// returns a lazy, single-pass sequence of text fragments. The content
// channel closes on normal completion; the error channel delivers at most
// one KindUpstream error for a mid-stream failure. Fragments already
// delivered remain valid either way.
func (c *Client) CompleteStreaming(ctx context.Context, messages []types.Message, opts Options) (<-chan string, <-chan error) {
	contentCh := make(chan string, 64)
	errCh := make(chan error, 1)

	opts = opts.withDefaults()
	c.logger.Debug("streaming completion request",
		zap.String("model", opts.Model), zap.Int("messages", len(messages)))

	go func() {
		defer close(contentCh)
		defer close(errCh)

		if _, hasDeadline := ctx.Deadline(); !hasDeadline {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, c.httpClient.Timeout)
			defer cancel()
		}

		start := time.Now()

		body, err := json.Marshal(c.buildRequest(messages, opts, true))
		if err != nil {
			errCh <- types.WrapError(types.KindUpstream, err, "failed to marshal request")
			return
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost,
			c.baseURL+"/chat/completions", bytes.NewReader(body))
		if err != nil {
			errCh <- types.WrapError(types.KindUpstream, err, "failed to create request")
			return
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
		req.Header.Set("Accept", "text/event-stream")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			errCh <- types.WrapError(types.KindUpstream, err, "completion request failed")
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			respBody, _ := io.ReadAll(resp.Body)
			errCh <- types.NewError(types.KindUpstream,
				"completion request failed with status %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
			return
		}

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

		for scanner.Scan() {
			line := scanner.Text()
			if !strings.HasPrefix(line, "data:") {
				continue
			}
			data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if data == "" {
				continue
			}
			if data == "[DONE]" {
				c.logger.Debug("streaming completion finished",
					zap.Duration("elapsed", time.Since(start)))
				return
			}

			var chunk wireResponse
			if err := json.Unmarshal([]byte(data), &chunk); err != nil {
				// Malformed heartbeat/control frame; skip.
				continue
			}
			if chunk.Error != nil {
				errCh <- types.NewError(types.KindUpstream,
					"completion service error: %s", chunk.Error.Message)
				return
			}
			if len(chunk.Choices) == 0 || chunk.Choices[0].Delta == nil {
				continue
			}
			// An empty delta is a control chunk, not an empty fragment.
			delta := chunk.Choices[0].Delta.Content
			if delta == "" {
				continue
			}

			select {
			case contentCh <- delta:
			case <-ctx.Done():
				errCh <- types.WrapError(types.KindUpstream, ctx.Err(), "stream cancelled")
				return
			}
		}

		if err := scanner.Err(); err != nil {
			c.logger.Warn("stream read failed", zap.Duration("elapsed", time.Since(start)), zap.Error(err))
			errCh <- types.WrapError(types.KindUpstream, err, "stream read failed")
		}
	}()

	return contentCh, errCh
}

func (c *Client) buildRequest(messages []types.Message, opts Options, stream bool) wireRequest {
	wire := make([]wireMessage, len(messages))
	for i, m := range messages {
		wire[i] = wireMessage{Role: m.Role, Content: m.Content}
	}
	return wireRequest{
		Model:       opts.Model,
		Messages:    wire,
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxTokens,
		Stream:      stream,
	}
}
