package events

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/atvirokodosprendimai/dynaschema/internal/core/domain"
)

const defaultWebhookTimeout = 10 * time.Second

// WebhookPublisher POSTs outbox events to a configured endpoint. Non-2xx
// responses are errors so the outbox dispatcher retries them.
type WebhookPublisher struct {
	url    string
	secret []byte
	client *http.Client
	now    func() time.Time
}

// NewWebhookPublisher returns a publisher for url. A zero or negative timeout
// falls back to defaultWebhookTimeout.
func NewWebhookPublisher(url, secret string, timeout time.Duration) *WebhookPublisher {
	if timeout <= 0 {
		timeout = defaultWebhookTimeout
	}
	return &WebhookPublisher{
		url:    url,
		secret: []byte(secret),
		client: &http.Client{Timeout: timeout},
		now:    time.Now,
	}
}

// Publish sends event as JSON. Every request carries:
//
//	X-Dynaschema-Topic:       <topic>
//	X-Dynaschema-Event-Id:    <event.EventID>
//	X-Dynaschema-Event-Type:  <event.EventType>
//	X-Dynaschema-Owner:       <event.OwnerID>
//	X-Dynaschema-Timestamp:   <unix seconds>
//	X-Hub-Signature-256:      sha256=<hex HMAC-SHA256 of "<timestamp>.<body>">
func (p *WebhookPublisher) Publish(ctx context.Context, topic string, event domain.EventEnvelope) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	timestamp := strconv.FormatInt(p.now().Unix(), 10)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Dynaschema-Topic", topic)
	req.Header.Set("X-Dynaschema-Event-Id", event.EventID)
	req.Header.Set("X-Dynaschema-Event-Type", event.EventType)
	req.Header.Set("X-Dynaschema-Owner", event.OwnerID)
	req.Header.Set("X-Dynaschema-Timestamp", timestamp)
	req.Header.Set("X-Hub-Signature-256", "sha256="+Sign(p.secret, timestamp, payload))

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("send webhook: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

// Sign returns the lowercase hex HMAC-SHA256 of "<timestamp>.<payload>".
// Receivers use it to verify a delivery.
func Sign(secret []byte, timestamp string, payload []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(timestamp))
	mac.Write([]byte{'.'})
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// verify reports whether signature matches the delivery.
func verify(secret []byte, timestamp string, payload []byte, signature string) bool {
	want := Sign(secret, timestamp, payload)
	return hmac.Equal([]byte(want), []byte(signature))
}
