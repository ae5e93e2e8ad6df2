package flowpay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"ticket-settlement/internal/services/gateway"
	"ticket-settlement/internal/status"
)

type Client struct {
	// baseURL is the base url of the FlowPay backend.
	baseURL string

	// apiKey authenticates requests against the FlowPay backend.
	apiKey string

	// hmacKey signs outgoing request bodies.
	hmacKey string

	// hc is the http client.
	hc *http.Client
}

func newClient(c *Config) *Client {
	return &Client{
		baseURL: c.BaseURL,
		apiKey:  c.APIKey,
		hmacKey: c.WebhookSecret,

		// set http client with timeout.
		hc: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

type errorReply struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// createIntent creates a payment intent on the FlowPay backend. The
// Idempotency-Key header makes retried calls safe; FlowPay returns the
// original intent for a repeated key instead of charging again.
func (c *Client) createIntent(ctx context.Context, r *gateway.IntentRequest) (*gateway.Intent, error) {
	requestID, err := randomRequestID()
	if err != nil {
		return nil, fmt.Errorf("createIntent: randomRequestID: %w", err)
	}

	payload := struct {
		RequestID string            `json:"requestId"`
		Amount    int64             `json:"amount"`
		Currency  string            `json:"currency"`
		Metadata  map[string]string `json:"metadata"`
	}{
		RequestID: requestID,
		Amount:    r.Amount,
		Currency:  r.Currency,
		Metadata:  r.Metadata,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("createIntent: json.Marshal: %w", err)
	}

	_baseURL, _ := url.Parse(c.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, fmt.Sprintf("%s%s", _baseURL.String(), "/v1/payment_intents"), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("createIntent: http.NewReq: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.apiKey))
	req.Header.Set("Idempotency-Key", r.IdempotencyKey)
	req.Header.Set("SignedHash", Hmac256(body, []byte(c.hmacKey)))

	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("createIntent: http.Do: %w: %v", status.ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, fmt.Errorf("createIntent: status %d: %w", resp.StatusCode, status.ErrGatewayUnavailable)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		var reply errorReply
		_ = json.NewDecoder(resp.Body).Decode(&reply)
		return nil, fmt.Errorf("createIntent: %s (%s): %w", reply.Error.Message, reply.Error.Code, status.ErrGatewayRejected)
	}

	var intent gateway.Intent
	dec := json.NewDecoder(resp.Body)
	if err := dec.Decode(&intent); err != nil {
		return nil, fmt.Errorf("createIntent: json.Decode: %w", err)
	}
	if intent.ID == "" {
		return nil, fmt.Errorf("createIntent: reply without intent id: %w", status.ErrGatewayUnavailable)
	}

	return &intent, nil
}

// checkIntent fetches the authoritative intent state from FlowPay.
func (c *Client) checkIntent(ctx context.Context, providerIntentID string) (*gateway.Intent, error) {
	_baseURL, _ := url.Parse(c.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/v1/payment_intents/%s", _baseURL.String(), providerIntentID), nil)
	if err != nil {
		return nil, fmt.Errorf("checkIntent: http.NewReq: %w", err)
	}
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.apiKey))

	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("checkIntent: http.Do: %w: %v", status.ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("checkIntent: intent %s: %w", providerIntentID, status.ErrNotFound)
	}
	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, fmt.Errorf("checkIntent: status %d: %w", resp.StatusCode, status.ErrGatewayUnavailable)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		var reply errorReply
		_ = json.NewDecoder(resp.Body).Decode(&reply)
		return nil, fmt.Errorf("checkIntent: %s (%s): %w", reply.Error.Message, reply.Error.Code, status.ErrGatewayRejected)
	}

	var intent gateway.Intent
	dec := json.NewDecoder(resp.Body)
	if err := dec.Decode(&intent); err != nil {
		return nil, fmt.Errorf("checkIntent: json.Decode: %w", err)
	}

	return &intent, nil
}
