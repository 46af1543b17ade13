// Package messaging is the thin edge to the external WhatsApp/SMS gateway.
// Rendering policy, retries and channel fallback live in the gateway service;
// this package only submits sends and reports the gateway's result shape.
package messaging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/donorlink/callops/pkg/logging"
)

// Channel names accepted by the gateway.
const (
	ChannelWhatsApp = "whatsapp"
	ChannelSMS      = "sms"
)

// SendResult is the gateway's result shape, shared by both send variants.
type SendResult struct {
	Success   bool   `json:"success"`
	MessageID string `json:"message_id,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Gateway is the outbound messaging collaborator.
type Gateway interface {
	Send(ctx context.Context, phone, message, channel string) (SendResult, error)
	SendFromTemplate(ctx context.Context, templateKey string, donorID int64, variables map[string]string, channel string) (SendResult, error)
}

// Client talks to the messaging gateway over HTTP with a bearer token.
type Client struct {
	baseURL    string
	apiToken   string
	httpClient *http.Client
	logger     *logging.Logger
}

// NewClient builds a gateway client. Returns nil when no base URL is
// configured so callers can treat messaging as absent.
func NewClient(baseURL, apiToken string, timeout time.Duration, logger *logging.Logger) *Client {
	if strings.TrimSpace(baseURL) == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiToken:   apiToken,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// Send submits one direct message.
func (c *Client) Send(ctx context.Context, phone, message, channel string) (SendResult, error) {
	if phone == "" || message == "" {
		return SendResult{}, errors.New("messaging: phone and message required")
	}
	if channel == "" {
		channel = ChannelWhatsApp
	}
	return c.post(ctx, "/messages", map[string]any{
		"phone":   phone,
		"message": message,
		"channel": channel,
	})
}

// SendFromTemplate submits a template-driven send; the gateway renders it.
func (c *Client) SendFromTemplate(ctx context.Context, templateKey string, donorID int64, variables map[string]string, channel string) (SendResult, error) {
	if templateKey == "" {
		return SendResult{}, errors.New("messaging: template key required")
	}
	if channel == "" {
		channel = ChannelWhatsApp
	}
	return c.post(ctx, "/messages/template", map[string]any{
		"template_key": templateKey,
		"donor_id":     donorID,
		"variables":    variables,
		"channel":      channel,
	})
}

func (c *Client) post(ctx context.Context, path string, payload map[string]any) (SendResult, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return SendResult{}, fmt.Errorf("messaging: encode payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return SendResult{}, fmt.Errorf("messaging: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return SendResult{}, fmt.Errorf("messaging: gateway request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	var result SendResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return SendResult{}, fmt.Errorf("messaging: decode gateway response: %w", err)
	}
	if resp.StatusCode >= 400 && result.Error == "" {
		result.Success = false
		result.Error = fmt.Sprintf("gateway returned status %d", resp.StatusCode)
	}
	return result, nil
}
