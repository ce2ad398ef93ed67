package trp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/cmatc13/merchantpay/pkg/config"
	"github.com/cmatc13/merchantpay/pkg/errors"
)

const (
	methodSubmit        = "trp.submit"
	defaultAPIKeyHeader = "dmtr-api-key"
	maxResponseBytes    = 1 << 20
)

// Submitter submits a witnessed transaction.
type Submitter interface {
	Submit(ctx context.Context, params SubmitParams) (*SubmitResponse, error)
}

// Client calls a TRP endpoint over JSON-RPC 2.0. It never retries.
type Client struct {
	endpoint   string
	headers    map[string]string
	httpClient *http.Client
}

// NewClient creates a client from the trp config section.
func NewClient(cfg config.TRPConfig) *Client {
	headers := make(map[string]string, len(cfg.Headers)+1)
	for k, v := range cfg.Headers {
		headers[k] = v
	}
	if cfg.APIKey != "" {
		header := cfg.APIKeyHeader
		if header == "" {
			header = defaultAPIKeyHeader
		}
		headers[header] = cfg.APIKey
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &Client{
		endpoint:   cfg.Endpoint,
		headers:    headers,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Endpoint returns the configured URL.
func (c *Client) Endpoint() string { return c.endpoint }

// Submit sends trp.submit. Transport failures, non-2xx statuses and
// JSON-RPC error objects all come back as submission errors.
func (c *Client) Submit(ctx context.Context, params SubmitParams) (*SubmitResponse, error) {
	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		Method:  methodSubmit,
		Params:  params,
		ID:      uuid.NewString(),
	})
	if err != nil {
		return nil, errors.SubmissionFailed(errors.PaymentErrSubmitRejected, "", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, errors.SubmissionFailed(errors.PaymentErrSubmitUnavailable, "", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.SubmissionFailed(errors.PaymentErrSubmitUnavailable, "Submission service is unreachable", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, errors.SubmissionFailed(errors.PaymentErrSubmitUnavailable, "", err)
	}

	var rpcResp rpcResponse
	decodeErr := json.Unmarshal(raw, &rpcResp)

	if rpcResp.Error != nil {
		return nil, errors.SubmissionFailed(errors.PaymentErrSubmitRejected, rpcResp.Error.Message, rpcResp.Error)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		code := errors.PaymentErrSubmitRejected
		if resp.StatusCode >= http.StatusInternalServerError {
			code = errors.PaymentErrSubmitUnavailable
		}
		msg := fmt.Sprintf("Submission service returned HTTP %d", resp.StatusCode)
		return nil, errors.SubmissionFailed(code, msg, fmt.Errorf("status %d: %s", resp.StatusCode, bytes.TrimSpace(raw)))
	}
	if decodeErr != nil {
		return nil, errors.SubmissionFailed(errors.PaymentErrSubmitRejected, "Invalid response from submission service", decodeErr)
	}

	var result SubmitResponse
	if len(rpcResp.Result) > 0 {
		if err := json.Unmarshal(rpcResp.Result, &result); err != nil {
			return nil, errors.SubmissionFailed(errors.PaymentErrSubmitRejected, "Invalid response from submission service", err)
		}
	}
	return &result, nil
}

// Ping reports whether the endpoint answers HTTP at all.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint, nil)
	if err != nil {
		return err
	}
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
	return resp.Body.Close()
}
