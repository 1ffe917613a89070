package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const (
	DefaultTimeout = 10 * time.Second

	maxResponseBytes = 1 << 20
	statusSucceeded  = "succeeded"
	statusFailed     = "failed"
	statusPending    = "pending"
)

// ClientConfig configures the HTTP gateway.
type ClientConfig struct {
	BaseURL string
	APIKey  string
	// Timeout bounds every outbound call; zero means DefaultTimeout.
	Timeout time.Duration
	// Limiter throttles outbound calls; nil disables throttling.
	Limiter *rate.Limiter
	// Transport overrides the HTTP transport, mainly for tests.
	Transport http.RoundTripper
}

// Client speaks the provider's JSON contract: decimal-string amounts, the transaction id as
// idempotency key in both the body and the Idempotency-Key header.
// It is stateless apart from read-only configuration and safe for concurrent use.
type Client struct {
	baseURL string
	apiKey  string
	client  *http.Client
	limiter *rate.Limiter
}

func NewClient(cfg ClientConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		client:  &http.Client{Timeout: timeout, Transport: cfg.Transport},
		limiter: cfg.Limiter,
	}
}

type paymentBody struct {
	Amount         string            `json:"amount"`
	Currency       string            `json:"currency"`
	PaymentMethod  PaymentMethod     `json:"payment_method"`
	IdempotencyKey string            `json:"idempotency_key"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

type refundBody struct {
	PaymentID      string `json:"payment_id"`
	Amount         string `json:"amount,omitempty"`
	Currency       string `json:"currency,omitempty"`
	IdempotencyKey string `json:"idempotency_key"`
}

type captureBody struct {
	AuthorizationID string `json:"authorization_id"`
	Amount          string `json:"amount,omitempty"`
	Currency        string `json:"currency,omitempty"`
	IdempotencyKey  string `json:"idempotency_key"`
}

type responseBody struct {
	Status string `json:"status"`
	ID     string `json:"id"`
	Error  *struct {
		Message string `json:"message"`
		Code    string `json:"code"`
	} `json:"error"`
}

func (c *Client) SubmitPayment(ctx context.Context, req PaymentRequest) Outcome {
	return c.post(ctx, "/payments", req.IdempotencyKey, paymentBody{
		Amount:         req.Amount.String(),
		Currency:       req.Amount.Currency(),
		PaymentMethod:  req.Method,
		IdempotencyKey: req.IdempotencyKey,
		Metadata:       req.Metadata,
	})
}

func (c *Client) SubmitRefund(ctx context.Context, req RefundRequest) Outcome {
	body := refundBody{PaymentID: req.ProviderTransactionID, IdempotencyKey: req.IdempotencyKey}
	if req.Amount != nil {
		body.Amount = req.Amount.String()
		body.Currency = req.Amount.Currency()
	}

	return c.post(ctx, "/refunds", req.IdempotencyKey, body)
}

func (c *Client) SubmitCapture(ctx context.Context, req CaptureRequest) Outcome {
	body := captureBody{AuthorizationID: req.AuthorizationID, IdempotencyKey: req.IdempotencyKey}
	if req.Amount != nil {
		body.Amount = req.Amount.String()
		body.Currency = req.Amount.Currency()
	}

	return c.post(ctx, "/captures", req.IdempotencyKey, body)
}

func (c *Client) post(ctx context.Context, path, idempotencyKey string, body any) Outcome {
	payload, err := json.Marshal(body)
	if err != nil {
		// Only reachable with an unencodable payment method; nothing was sent.
		return Declined(CodeUnsupportedMethod, "encoding request")
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			// Nothing was sent. Wait fails early when the next slot lies past the deadline,
			// so the call ends with the deadline instead of passing for a provider failure.
			if _, ok := ctx.Deadline(); ok {
				<-ctx.Done()
				return Transient(CodeTimeout, "no outbound rate limit slot before the deadline")
			}

			return Transient(CodeRateLimited, "waiting for outbound rate limit")
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return Malformed(fmt.Sprintf("creating request: %v", err))
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Idempotency-Key", idempotencyKey)

	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return transportOutcome(err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return transportOutcome(err)
	}

	return interpret(resp.StatusCode, raw)
}

func transportOutcome(err error) Outcome {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return Transient(CodeTimeout, "provider call timed out")
	}

	return Transient(CodeNetworkError, "provider unreachable")
}

// interpret maps an HTTP response onto the outcome taxonomy. 5xx, 408 and 429 are retryable;
// every other status is judged by the body.
func interpret(statusCode int, raw []byte) Outcome {
	if statusCode >= http.StatusInternalServerError ||
		statusCode == http.StatusTooManyRequests ||
		statusCode == http.StatusRequestTimeout {
		return Transient(CodeUnavailable, fmt.Sprintf("provider returned HTTP %d", statusCode))
	}

	var body responseBody
	if err := json.Unmarshal(raw, &body); err != nil {
		return Malformed(fmt.Sprintf("decoding HTTP %d response: %v", statusCode, err))
	}

	switch body.Status {
	case statusSucceeded:
		if body.ID == "" {
			return Malformed("succeeded response without id")
		}

		return Accepted(body.ID)
	case statusFailed:
		if body.Error == nil {
			return Declined(CodeDeclined, "")
		}

		return Declined(body.Error.Code, body.Error.Message)
	case statusPending:
		return Pending(body.ID, "provider has not settled the operation")
	default:
		return Malformed(fmt.Sprintf("unexpected status %q with HTTP %d", body.Status, statusCode))
	}
}
