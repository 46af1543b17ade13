// Package carrier talks to the Twilio-compatible voice carrier: outbound call
// creation and webhook signature verification.
package carrier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/donorlink/callops/pkg/logging"
)

var tracer = otel.Tracer("callops.internal.carrier")

// Error is a structured rejection from the carrier's REST API.
type Error struct {
	StatusCode int
	Code       int
	Message    string
}

func (e *Error) Error() string {
	return fmt.Sprintf("carrier: call rejected (status %d, code %d): %s", e.StatusCode, e.Code, e.Message)
}

// CallRequest describes one outbound call attempt. The carrier rings To and,
// once answered, fetches call-control markup from VoiceURL.
type CallRequest struct {
	To             string
	From           string
	VoiceURL       string
	StatusCallback string
	// StatusCallbackEvents defaults to the full lifecycle when empty.
	StatusCallbackEvents []string
	Record               bool
}

// Client posts call-creation requests to the carrier REST API.
type Client struct {
	accountSID string
	authToken  string
	baseURL    string
	httpClient *http.Client
	logger     *logging.Logger
}

// NewClient builds a carrier client with sane defaults.
func NewClient(accountSID, authToken string, logger *logging.Logger) *Client {
	if logger == nil {
		logger = logging.Default()
	}
	return &Client{
		accountSID: accountSID,
		authToken:  authToken,
		baseURL:    "https://api.twilio.com",
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     logger,
	}
}

// WithBaseURL points the client at a different API host, used by tests.
func (c *Client) WithBaseURL(base string) *Client {
	c.baseURL = strings.TrimRight(base, "/")
	return c
}

// CreateCall asks the carrier to place the call and returns the external call
// identifier (call SID) it assigned.
func (c *Client) CreateCall(ctx context.Context, req CallRequest) (string, error) {
	if c.accountSID == "" || c.authToken == "" {
		return "", errors.New("carrier: credentials missing")
	}
	if req.To == "" || req.From == "" {
		return "", errors.New("carrier: to and from required")
	}
	if req.VoiceURL == "" {
		return "", errors.New("carrier: voice url required")
	}

	ctx, span := tracer.Start(ctx, "carrier.create_call")
	defer span.End()
	span.SetAttributes(attribute.String("callops.carrier.to", req.To))

	payload := url.Values{}
	payload.Set("To", req.To)
	payload.Set("From", req.From)
	payload.Set("Url", req.VoiceURL)
	payload.Set("Method", "POST")
	if req.StatusCallback != "" {
		payload.Set("StatusCallback", req.StatusCallback)
		events := req.StatusCallbackEvents
		if len(events) == 0 {
			events = []string{"initiated", "ringing", "answered", "completed"}
		}
		for _, ev := range events {
			payload.Add("StatusCallbackEvent", ev)
		}
		payload.Set("StatusCallbackMethod", "POST")
	}
	if req.Record {
		payload.Set("Record", "true")
	}

	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Calls.json", c.baseURL, c.accountSID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(payload.Encode()))
	if err != nil {
		return "", fmt.Errorf("carrier: build request: %w", err)
	}
	httpReq.SetBasicAuth(c.accountSID, c.authToken)
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("carrier: call creation request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("carrier: read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &Error{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(body))}
		var decoded struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		}
		if json.Unmarshal(body, &decoded) == nil && decoded.Message != "" {
			apiErr.Code = decoded.Code
			apiErr.Message = decoded.Message
		}
		span.RecordError(apiErr)
		c.logger.Warn("carrier rejected call creation",
			"status", resp.StatusCode, "code", apiErr.Code, "to", req.To)
		return "", apiErr
	}

	var created struct {
		Sid string `json:"sid"`
	}
	if err := json.Unmarshal(body, &created); err != nil {
		return "", fmt.Errorf("carrier: decode response: %w", err)
	}
	if created.Sid == "" {
		return "", errors.New("carrier: response missing call sid")
	}
	span.SetAttributes(attribute.String("callops.carrier.call_sid", created.Sid))
	return created.Sid, nil
}
