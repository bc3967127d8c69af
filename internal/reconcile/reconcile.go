// Package reconcile queries the authoritative payment status for a
// reference token after submission.
package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

var ErrNotFound = errors.New("reconcile: no payment for reference token")

type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusFailed    Status = "failed"
	StatusUnknown   Status = "unknown"
)

// PaymentRecord is the server-owned view of a payment.
type PaymentRecord struct {
	ReferenceToken string `json:"reference_token"`
	Status         Status `json:"status"`
	Amount         int64  `json:"amount"`
	Method         string `json:"method"`
}

type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{baseURL: baseURL, httpClient: httpClient}
}

// CheckStatus is a pure read and safe to repeat; it never mutates anything
// on either side. Statuses the backend reports that we do not recognize
// come back as StatusUnknown rather than an error.
func (c *Client) CheckStatus(ctx context.Context, referenceToken string) (*PaymentRecord, error) {
	url := fmt.Sprintf("%s/payment-status/%s", c.baseURL, referenceToken)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("reconcile: build request: %w", err)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("reconcile: status request: %w", err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("reconcile: status check failed: http=%d body=%s", resp.StatusCode, string(raw))
	}

	var res struct {
		Status string `json:"status"`
		Amount int64  `json:"amount"`
		Method string `json:"method"`
	}
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, fmt.Errorf("reconcile: decode status: %w body=%s", err, string(raw))
	}

	return &PaymentRecord{
		ReferenceToken: referenceToken,
		Status:         normalize(res.Status),
		Amount:         res.Amount,
		Method:         res.Method,
	}, nil
}

func normalize(s string) Status {
	switch Status(strings.ToLower(strings.TrimSpace(s))) {
	case StatusPending:
		return StatusPending
	case StatusConfirmed:
		return StatusConfirmed
	case StatusFailed:
		return StatusFailed
	default:
		return StatusUnknown
	}
}
