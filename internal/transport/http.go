package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// HTTPClient implements Client over the issuer's JSON/HTTP API.
type HTTPClient struct {
	baseURL string
	hc      *http.Client
	log     *zap.Logger
}

// NewHTTPClient constructs a client for the given issuer base URL.
func NewHTTPClient(baseURL string, log *zap.Logger) *HTTPClient {
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		hc:      &http.Client{Timeout: 30 * time.Second},
		log:     log,
	}
}

// serverErrorBody is the error envelope the issuer returns on failures.
type serverErrorBody struct {
	Status string `json:"status"`
	Code   int    `json:"code"`
}

// PrepareIssue starts an issuance session.
func (c *HTTPClient) PrepareIssue(ctx context.Context) (*PrepareIssueEnvelope, error) {
	var envelope PrepareIssueEnvelope
	if err := c.post(ctx, "prepare_issue", struct{}{}, &envelope); err != nil {
		return nil, err
	}
	return &envelope, nil
}

// FetchCredentials exchanges signed events and a commitment for green cards.
func (c *HTTPClient) FetchCredentials(ctx context.Context, req *CredentialsRequest) (*GreenCardResponse, error) {
	var response GreenCardResponse
	if err := c.post(ctx, "credentials", req, &response); err != nil {
		return nil, err
	}
	return &response, nil
}

// CheckCouplingStatus verifies a paper proof against its coupling code.
func (c *HTTPClient) CheckCouplingStatus(ctx context.Context, dcc, couplingCode string) (*CouplingResponse, error) {
	body := struct {
		Credential   string `json:"credential"`
		CouplingCode string `json:"couplingCode"`
	}{Credential: dcc, CouplingCode: couplingCode}

	var response CouplingResponse
	if err := c.post(ctx, "coupling", body, &response); err != nil {
		return nil, err
	}
	return &response, nil
}

// post sends one JSON request and decodes the response, mapping network and
// non-2xx failures onto *ServerError.
func (c *HTTPClient) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return &ServerError{Cause: fmt.Sprintf("encode request: %v", err)}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+path, bytes.NewReader(payload))
	if err != nil {
		return &ServerError{Cause: fmt.Sprintf("build request: %v", err)}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.hc.Do(req)
	if err != nil {
		c.log.Warn("issuer request failed", zap.String("path", path), zap.Error(err))
		return &ServerError{Cause: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var errBody serverErrorBody
		_ = json.NewDecoder(resp.Body).Decode(&errBody)
		c.log.Warn("issuer returned error",
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
			zap.Int("code", errBody.Code),
		)
		return &ServerError{StatusCode: resp.StatusCode, Code: errBody.Code, Cause: errBody.Status}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &ServerError{StatusCode: resp.StatusCode, Cause: fmt.Sprintf("decode response: %v", err)}
	}
	return nil
}
