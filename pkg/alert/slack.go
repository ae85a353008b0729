package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Slack sends reports via Slack incoming webhook.
type Slack struct {
	client       *http.Client
	webhookURL   string
	onlyFailures bool
}

// NewSlack creates a new Slack notifier. With onlyFailures set, reports of
// completed cycles are not sent.
func NewSlack(webhookURL string, onlyFailures bool) *Slack {
	return &Slack{
		client:       &http.Client{Timeout: 10 * time.Second},
		webhookURL:   webhookURL,
		onlyFailures: onlyFailures,
	}
}

func (s *Slack) Name() string { return "slack" }

func (s *Slack) Send(ctx context.Context, r *Report) error {
	if s.onlyFailures && r.OK {
		return nil
	}

	body, err := json.Marshal(map[string]any{"blocks": slackBlocks(r)})
	if err != nil {
		return fmt.Errorf("marshal slack payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create slack request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("send slack webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("slack webhook status %d", resp.StatusCode)
	}

	return nil
}

// slackBlocks builds the Block Kit message for r.
func slackBlocks(r *Report) []map[string]any {
	status := "updated"
	if !r.OK {
		status = "update failed"
	}

	summary := fmt.Sprintf("*Stored:* %d | *Duplicates:* %d | *Dropped:* %d | *Requests:* %d | *Took:* %.1fs",
		r.Stored, r.Duplicates, r.Dropped, r.Fetched, r.Seconds)
	if r.Error != "" {
		summary += "\n*Error:* " + r.Error
	}

	blocks := []map[string]any{
		{
			"type": "header",
			"text": map[string]any{
				"type": "plain_text",
				"text": fmt.Sprintf("%s %s", r.Tag, status),
			},
		},
		{
			"type": "section",
			"text": map[string]any{
				"type": "mrkdwn",
				"text": summary,
			},
		},
	}

	if len(r.Titles) > 0 {
		blocks = append(blocks, map[string]any{
			"type": "context",
			"elements": []map[string]any{{
				"type": "mrkdwn",
				"text": strings.Join(r.Titles, " · "),
			}},
		})
	}
	return blocks
}
