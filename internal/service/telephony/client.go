package telephony

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/zhouzirui/agentdesk/backend/internal/config"
)

// ErrNotConfigured is returned when credentials for outbound calling are missing.
var ErrNotConfigured = errors.New("telephony integration not configured")

// CallRequest describes an outbound call.
type CallRequest struct {
	To             string
	WebhookURL     string
	StatusCallback string
}

// Call is the provider's view of a placed call.
type Call struct {
	SID    string `json:"sid"`
	Status string `json:"status"`
}

// Client places outbound calls.
type Client interface {
	Enabled() bool
	CreateCall(ctx context.Context, req CallRequest) (*Call, error)
}

type apiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"status"`
}

// TwilioClient talks to the Twilio REST API.
type TwilioClient struct {
	client     *resty.Client
	accountSID string
	from       string
	enabled    bool
}

// NewTwilioClient creates a client from telephony configuration.
func NewTwilioClient(cfg config.TelephonyConfig) *TwilioClient {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	client := resty.New()
	client.SetBaseURL(cfg.APIBaseURL + "/2010-04-01")
	client.SetTimeout(timeout)
	client.SetBasicAuth(cfg.AccountSID, cfg.AuthToken)
	client.SetHeader("Accept", "application/json")

	return &TwilioClient{
		client:     client,
		accountSID: cfg.AccountSID,
		from:       cfg.FromNumber,
		enabled:    cfg.Enabled(),
	}
}

// Enabled reports whether credentials are present.
func (c *TwilioClient) Enabled() bool {
	return c != nil && c.enabled
}

// CreateCall places a call whose first webhook hits req.WebhookURL.
func (c *TwilioClient) CreateCall(ctx context.Context, req CallRequest) (*Call, error) {
	if !c.Enabled() {
		return nil, ErrNotConfigured
	}

	form := map[string]string{
		"To":   req.To,
		"From": c.from,
		"Url":  req.WebhookURL,
	}
	if req.StatusCallback != "" {
		form["StatusCallback"] = req.StatusCallback
		form["StatusCallbackEvent"] = "completed"
		form["StatusCallbackMethod"] = "POST"
	}

	var call Call
	var failure apiError
	resp, err := c.client.R().
		SetContext(ctx).
		SetPathParam("accountSid", c.accountSID).
		SetFormData(form).
		SetResult(&call).
		SetError(&failure).
		Post("/Accounts/{accountSid}/Calls.json")
	if err != nil {
		return nil, fmt.Errorf("create call: %w", err)
	}
	if resp.IsError() {
		if failure.Message != "" {
			return nil, fmt.Errorf("create call: twilio %d (code %d): %s", resp.StatusCode(), failure.Code, failure.Message)
		}
		return nil, fmt.Errorf("create call: twilio status %d", resp.StatusCode())
	}
	if call.SID == "" {
		return nil, fmt.Errorf("create call: response missing call sid")
	}
	return &call, nil
}
