// Package notify sends best-effort, non-blocking HTTP notifications to
// external services: Slack incoming webhooks (§4.8 container-publish
// announcement) and the "test oracle" service (§4.6, §4.9). Both use a
// bounded-retry client so a flaky endpoint never blocks or fails the
// delivery that triggered it.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/hashicorp/go-cleanhttp"
	"github.com/hashicorp/go-retryablehttp"
)

// client is shared across calls; go-retryablehttp's default backoff
// (exponential, capped) paired with a short per-attempt timeout keeps this
// well within §5's "10s timeout for external service calls" budget.
var client = newClient()

func newClient() *retryablehttp.Client {
	c := retryablehttp.NewClient()
	c.HTTPClient = cleanhttp.DefaultPooledClient()
	c.HTTPClient.Timeout = 10 * time.Second
	c.RetryMax = 2
	c.Logger = nil
	return c
}

// Slack posts a plain-text message to a Slack incoming-webhook URL.
// Failures are logged, never propagated — §4.8 calls this "optionally...
// to Slack" alongside the container-publish PR comment.
func Slack(ctx context.Context, webhookURL, message string) {
	if webhookURL == "" {
		return
	}
	postJSON(ctx, webhookURL, map[string]string{"text": message})
}

// TestOracleRequest is the payload posted to the configured test-oracle
// service on an `/approve` review body (§4.6, §4.9).
type TestOracleRequest struct {
	PullRequestURL string `json:"pull_request_url"`
	AIProvider     string `json:"ai_provider,omitempty"`
	AIModel        string `json:"ai_model,omitempty"`
}

// TestOracle posts the PR URL and AI provider config to the test-oracle
// server URL; best-effort, per §4.9 ("best-effort, non-blocking").
func TestOracle(ctx context.Context, serverURL string, req TestOracleRequest) {
	if serverURL == "" {
		return
	}
	postJSON(ctx, serverURL, req)
}

func postJSON(ctx context.Context, url string, body any) {
	b, err := json.Marshal(body)
	if err != nil {
		slog.Warn("notify.marshal_error", "url", url, "err", err)
		return
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		slog.Warn("notify.request_error", "url", url, "err", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		slog.Warn("notify.send_failed", "url", url, "err", err)
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		slog.Warn("notify.non_2xx", "url", url, "status", resp.StatusCode)
	}
}
