package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/smallbiznis/payoutd/internal/config"
)

type Provider interface {
	PostMessage(ctx context.Context, channelID string, message string) error
}

type NoOpProvider struct{}

func (p *NoOpProvider) PostMessage(ctx context.Context, channelID string, message string) error {
	return nil
}

// WebhookProvider posts to a Slack incoming webhook.
type WebhookProvider struct {
	url        string
	httpClient *http.Client
}

func NewWebhookProvider(url string, httpClient *http.Client) *WebhookProvider {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &WebhookProvider{url: url, httpClient: httpClient}
}

func (p *WebhookProvider) PostMessage(ctx context.Context, channelID string, message string) error {
	payload := map[string]string{"text": message}
	if channelID = strings.TrimSpace(channelID); channelID != "" {
		payload["channel"] = channelID
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("post slack message: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("post slack message: status %d", resp.StatusCode)
	}
	return nil
}

func NewFromConfig(cfg config.Config) Provider {
	url := strings.TrimSpace(cfg.Slack.WebhookURL)
	if url == "" {
		return &NoOpProvider{}
	}
	return NewWebhookProvider(url, nil)
}
