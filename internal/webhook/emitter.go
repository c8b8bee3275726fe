// Package webhook posts Job Adapter lifecycle events (§4.L, §6) to a
// caller-configured URL with HMAC-SHA256 signing and exponential backoff
// on 5xx responses.
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/wayfarer-labs/scrapeforge/internal/models"
)

// RetryPolicy describes an exponential backoff (no jitter) between
// delivery attempts.
type RetryPolicy struct {
	MaxAttempts       int
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
	BackoffMultiplier float64
}

// DefaultRetryPolicy makes up to 4 attempts in total (the first plus 3
// retries on 5xx or transport errors) with doubling backoff starting at 500ms.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:       4,
		InitialBackoff:    500 * time.Millisecond,
		MaxBackoff:        10 * time.Second,
		BackoffMultiplier: 2.0,
	}
}

func (p RetryPolicy) backoff(attempt int) time.Duration {
	d := float64(p.InitialBackoff)
	for i := 0; i < attempt; i++ {
		d *= p.BackoffMultiplier
	}
	if d > float64(p.MaxBackoff) {
		d = float64(p.MaxBackoff)
	}
	return time.Duration(d)
}

// Emitter posts WebhookEvents to a configured endpoint.
type Emitter struct {
	client *http.Client
	retry  RetryPolicy
	logger arbor.ILogger
}

// NewEmitter builds an Emitter with the given HTTP client (nil selects a
// 15s-timeout default) and retry policy.
func NewEmitter(client *http.Client, retry RetryPolicy, logger arbor.ILogger) *Emitter {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &Emitter{client: client, retry: retry, logger: logger}
}

// Emit posts event to cfg.URL. Failures are logged and swallowed: a
// webhook delivery failure must never fail the underlying crawl/scrape.
func (e *Emitter) Emit(ctx context.Context, cfg models.WebhookConfig, event models.WebhookEvent) {
	if cfg.URL == "" {
		return
	}

	body, err := json.Marshal(event)
	if err != nil {
		e.logger.Warn().Err(err).Str("job_id", event.JobID).Msg("webhook: failed to marshal event")
		return
	}

	var lastErr error
	var lastStatus int
	for attempt := 0; attempt < e.retry.MaxAttempts; attempt++ {
		lastStatus, lastErr = e.post(ctx, cfg, body)
		if lastErr == nil && lastStatus < 500 {
			return
		}
		if attempt < e.retry.MaxAttempts-1 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(e.retry.backoff(attempt)):
			}
		}
	}

	e.logger.Warn().
		Str("job_id", event.JobID).
		Str("event", event.Event).
		Int("status", lastStatus).
		Err(lastErr).
		Msg("webhook: delivery failed after all retries")
}

func (e *Emitter) post(ctx context.Context, cfg models.WebhookConfig, body []byte) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.URL, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range cfg.Headers {
		req.Header.Set(k, v)
	}
	if cfg.Secret != "" {
		req.Header.Set("X-Webhook-Signature", sign(cfg.Secret, body))
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	return resp.StatusCode, nil
}

// sign computes the hex-encoded HMAC-SHA256 of body using secret.
func sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}
