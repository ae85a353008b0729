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

const (
	discordColorOK     = 0x2ECC71
	discordColorFailed = 0xE74C3C
)

// Discord sends reports via Discord webhook.
type Discord struct {
	client     *http.Client
	webhookURL string
}

// NewDiscord creates a new Discord notifier.
func NewDiscord(webhookURL string) *Discord {
	return &Discord{
		client:     &http.Client{Timeout: 10 * time.Second},
		webhookURL: webhookURL,
	}
}

func (d *Discord) Name() string { return "discord" }

func (d *Discord) Send(ctx context.Context, r *Report) error {
	body, err := json.Marshal(map[string]any{"embeds": []map[string]any{discordEmbed(r)}})
	if err != nil {
		return fmt.Errorf("marshal discord payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create discord request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("send discord webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("discord webhook status %d", resp.StatusCode)
	}

	return nil
}

func discordEmbed(r *Report) map[string]any {
	color := discordColorOK
	title := r.Tag + " updated"
	if !r.OK {
		color = discordColorFailed
		title = r.Tag + " update failed"
	}

	lines := []string{fmt.Sprintf("**Stored:** %d | **Duplicates:** %d | **Dropped:** %d | **Requests:** %d",
		r.Stored, r.Duplicates, r.Dropped, r.Fetched)}
	if r.Error != "" {
		lines = append(lines, "**Error:** "+r.Error)
	}
	for _, t := range r.Titles {
		lines = append(lines, "• "+t)
	}

	return map[string]any{
		"title":       title,
		"description": strings.Join(lines, "\n"),
		"color":       color,
		"timestamp":   r.FinishedAt.Format(time.RFC3339),
	}
}
