package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/kittipos-w/paygate/internal/logger"
)

const (
	CodeUnreachable = "unreachable"
	CodeUnexpected  = "unexpected"
)

const redeemTimeout = 5 * time.Second

// IssuerError means the redemption outcome is unknown: the issuer could not
// be reached or answered with something that is not a redemption result.
// It must never be treated as a valid payment.
type IssuerError struct {
	Code string
	Err  error
}

func (e *IssuerError) Error() string {
	return fmt.Sprintf("code: %s, error: %v", e.Code, e.Err)
}

func NewIssuerError(code string, err error) *IssuerError {
	return &IssuerError{Code: code, Err: err}
}

// RedeemResult mirrors the issuer's redemption response.
// Valid false is a declined payment, a business outcome rather than an error.
type RedeemResult struct {
	Valid     bool       `json:"valid"`
	AccountID string     `json:"account_id,omitempty"`
	Reason    string     `json:"reason,omitempty"`
	UsedAt    *time.Time `json:"used_at,omitempty"`
}

type Client struct {
	IssuerAddr string

	client *http.Client
	logger logger.Logger
}

func NewClient(addr string, l logger.Logger) *Client {
	if l == nil {
		l = logger.NewNoOpLogger()
	}

	return &Client{
		IssuerAddr: addr,
		client:     &http.Client{},
		logger:     l,
	}
}

// RedeemToken asks the issuer to spend the token.
// The call is bounded by its own timeout and is never retried here:
// redemption is not idempotent, a retry after a timeout could double-charge
// a token the first attempt already consumed.
func (c *Client) RedeemToken(ctx context.Context, tokenID string) (RedeemResult, error) {
	var result RedeemResult

	ctx, cancel := context.WithTimeout(ctx, redeemTimeout)
	defer cancel()

	body, err := json.Marshal(map[string]string{"token_id": tokenID})
	if err != nil {
		return result, NewIssuerError(CodeUnexpected, fmt.Errorf("failed to encode request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.IssuerAddr+"/api/tokens/redeem", bytes.NewReader(body))
	if err != nil {
		return result, NewIssuerError(CodeUnexpected, fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Warn("Issuer not reachable", "error", err)
		return result, NewIssuerError(CodeUnreachable, fmt.Errorf("failed to send request: %w", err))
	}
	defer resp.Body.Close() // nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		c.logger.Warn("Unexpected issuer response", "status_code", resp.StatusCode)
		return result, NewIssuerError(CodeUnexpected, fmt.Errorf("unexpected status code %d", resp.StatusCode))
	}

	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return result, NewIssuerError(CodeUnexpected, fmt.Errorf("failed to decode response: %w", err))
	}

	c.logger.Debug("Redeem response", "valid", result.Valid, "reason", result.Reason)
	return result, nil
}
