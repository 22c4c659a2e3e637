// Package piston forwards code submissions to the Piston execution API
// and relays its responses without interpreting them.
package piston

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/codepair-live/codepair/internal/metrics"
)

const (
	// DefaultBaseURL is the public Piston endpoint. It is fixed in code;
	// only tests point the client elsewhere.
	DefaultBaseURL = "https://emkc.org/api/v2/piston"

	// FallbackOutput replaces real output whenever the execution API
	// cannot be reached or rejects the request. The payload carrying it
	// has the same shape as a successful response, so the relay and the
	// UI use one display path for every outcome.
	FallbackOutput = "Error compiling code or contacting API."
)

// Request is a single code submission.
type Request struct {
	Language string
	Version  string
	Code     string
	Stdin    string
}

// Client calls the execution API. It performs no retries and no caching;
// the timeout is whatever the injected http.Client enforces.
type Client struct {
	baseURL string
	http    *http.Client
	logger  zerolog.Logger
}

// NewClient creates a Client against baseURL using httpClient.
func NewClient(baseURL string, httpClient *http.Client, logger zerolog.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		http:    httpClient,
		logger:  logger.With().Str("component", "piston").Logger(),
	}
}

type executeFile struct {
	Content string `json:"content"`
}

type executeBody struct {
	Language string        `json:"language"`
	Version  string        `json:"version"`
	Files    []executeFile `json:"files"`
	Stdin    string        `json:"stdin"`
}

// Execute forwards req to the execution API and returns the raw response
// body. Every failure is folded into a synthesized result carrying
// FallbackOutput; Execute never returns an error.
func (c *Client) Execute(ctx context.Context, req Request) json.RawMessage {
	id := uuid.NewString()
	start := time.Now()

	body, err := json.Marshal(executeBody{
		Language: req.Language,
		Version:  req.Version,
		Files:    []executeFile{{Content: req.Code}},
		Stdin:    req.Stdin,
	})
	if err != nil {
		return c.fallback(id, "marshal request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/execute", bytes.NewReader(body))
	if err != nil {
		return c.fallback(id, "build request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		metrics.ExecutionsTotal.WithLabelValues("error").Inc()
		c.logger.Warn().Err(err).Str("request_id", id).Str("language", req.Language).Msg("execution API unreachable")
		return fallbackResult()
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		metrics.ExecutionsTotal.WithLabelValues("error").Inc()
		c.logger.Warn().Err(err).Str("request_id", id).Msg("reading execution API response failed")
		return fallbackResult()
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		metrics.ExecutionsTotal.WithLabelValues("bad_status").Inc()
		c.logger.Warn().Int("status", resp.StatusCode).Str("request_id", id).Str("language", req.Language).Msg("execution API returned non-success status")
		return fallbackResult()
	}

	// The body is re-embedded verbatim in a relay event, so it must at
	// least be valid JSON.
	if !json.Valid(raw) {
		metrics.ExecutionsTotal.WithLabelValues("error").Inc()
		c.logger.Warn().Str("request_id", id).Msg("execution API returned invalid JSON")
		return fallbackResult()
	}

	metrics.ExecutionsTotal.WithLabelValues("ok").Inc()
	metrics.ExecutionDuration.Observe(time.Since(start).Seconds())
	c.logger.Info().
		Str("request_id", id).
		Str("language", req.Language).
		Str("version", req.Version).
		Dur("latency", time.Since(start)).
		Msg("execution completed")

	return json.RawMessage(raw)
}

func (c *Client) fallback(id, stage string, err error) json.RawMessage {
	metrics.ExecutionsTotal.WithLabelValues("error").Inc()
	c.logger.Warn().Err(err).Str("request_id", id).Msgf("%s failed", stage)
	return fallbackResult()
}

type fallbackRun struct {
	Output string `json:"output"`
}

type fallbackBody struct {
	Run fallbackRun `json:"run"`
}

func fallbackResult() json.RawMessage {
	raw, _ := json.Marshal(fallbackBody{Run: fallbackRun{Output: FallbackOutput}})
	return raw
}
