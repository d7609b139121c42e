// Package agent is the HTTP/SSE client for the upstream listening agent.
package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/echolens/listening-gateway/internal/auth"
	"github.com/echolens/listening-gateway/internal/model"
	"github.com/echolens/listening-gateway/internal/sse"
	"github.com/echolens/listening-gateway/pkg/logger"
)

// Client performs one chat exchange against the agent per Stream call.
type Client struct {
	baseURL     string
	httpClient  *http.Client
	tokenSource auth.TokenSource
	logger      *logger.Logger
}

// NewClient creates an agent client. The http.Client deliberately carries no
// overall timeout: a turn stays open until the agent closes it or the context
// is cancelled.
func NewClient(baseURL string, ts auth.TokenSource, log *logger.Logger) *Client {
	if log == nil {
		log = logger.NewNop()
	}
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Transport: &http.Transport{
				ResponseHeaderTimeout: 30 * time.Second,
			},
		},
		tokenSource: ts,
		logger:      log,
	}
}

// Stream opens the chat exchange and pushes decoded events to fn in arrival
// order. It returns nil on normal end of stream, the context error when the
// caller cancelled, and a transport error otherwise. A callback error stops
// the stream and propagates. The response body is closed on every exit path.
func (c *Client) Stream(ctx context.Context, req *model.ChatRequest, fn func(*model.StreamEvent) error) error {
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to marshal chat request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create chat request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")

	token, err := c.tokenSource.Token(ctx)
	if err != nil {
		return fmt.Errorf("failed to obtain agent credentials: %w", err)
	}
	if token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("chat request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Drain a little of the body for the log, the stream is dead anyway.
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		c.logger.Warn("agent rejected chat request",
			zap.Int("status", resp.StatusCode),
			zap.ByteString("body", snippet),
		)
		return fmt.Errorf("chat request failed: status %d", resp.StatusCode)
	}

	dec := sse.NewDecoder(resp.Body, c.logger)
	for {
		ev, err := dec.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("reading agent stream: %w", err)
		}
		if err := fn(ev); err != nil {
			return err
		}
	}
}
