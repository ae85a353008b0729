package alert

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
)

const (
	EventCycleFinished = "cycle.finished"
	EventCycleFailed   = "cycle.failed"

	signatureHeader = "X-Signature-256"
	cycleHeader     = "X-Jokemachine-Cycle"
)

// WebhookEvent is the JSON body posted for every report.
type WebhookEvent struct {
	Event  string    `json:"event"`
	SentAt time.Time `json:"sent_at"`
	Report *Report   `json:"report"`
}

// Webhook posts cycle events to an arbitrary HTTP endpoint. When a secret is
// set, the body is signed with HMAC-SHA256.
type Webhook struct {
	client *http.Client
	url    string
	secret string
	now    func() time.Time
}

func NewWebhook(url, secret string) *Webhook {
	return &Webhook{
		client: &http.Client{Timeout: 10 * time.Second},
		url:    url,
		secret: secret,
		now:    time.Now,
	}
}

func (w *Webhook) Name() string { return "webhook" }

func (w *Webhook) Send(ctx context.Context, r *Report) error {
	ev := WebhookEvent{Event: EventCycleFinished, SentAt: w.now().UTC(), Report: r}
	if !r.OK {
		ev.Event = EventCycleFailed
	}
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", ev.Event, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "jokemachine/1.0")
	req.Header.Set(cycleHeader, r.CycleID)
	if w.secret != "" {
		req.Header.Set(signatureHeader, Sign(w.secret, body))
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("post %s event for %s: %w", ev.Event, r.Source, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("webhook rejected %s event for %s: status %d", ev.Event, r.Source, resp.StatusCode)
	}
	return nil
}

// Sign returns the signature header value for body: "sha256=" followed by
// the hex HMAC.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}
