package rails

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// minorUnitFactor converts major currency units into the processor's minor
// units (rupees to paisa).
const minorUnitFactor = 100

// HostedRail asks the backend for a hosted-checkout session and hands the
// redirect URL back to the caller. The browser then leaves the portal; the
// processor returns it to one of the two callback URLs.
type HostedRail struct {
	baseURL        string
	publishableKey string
	successURL     string
	cancelURL      string
	httpClient     *http.Client
}

// CreateSession requests a fresh session for the attempt. Re-selecting the
// hosted rail always creates another session; nothing is cached and the
// previous session is not cancelled.
func (h *HostedRail) CreateSession(ctx context.Context, req SubmitRequest) (*Session, error) {
	payload := map[string]any{
		"amount":          req.Total * minorUnitFactor,
		"currency":        req.Currency,
		"reference_token": req.ReferenceToken,
		"publishable_key": h.publishableKey,
		"success_url":     withReference(h.successURL, req.ReferenceToken),
		"cancel_url":      withReference(h.cancelURL, req.ReferenceToken),
	}

	body, _ := json.Marshal(payload)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, h.baseURL+"/payment-sessions", bytes.NewBuffer(body))
	if err != nil {
		return nil, fmt.Errorf("hosted rail: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := h.httpClient.Do(httpReq)
	if err != nil {
		return nil, &SubmitError{Op: "session create", Err: err}
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, &SubmitError{Op: "session create", StatusCode: resp.StatusCode, Body: string(raw)}
	}

	var res struct {
		SessionID   string `json:"session_id"`
		RedirectURL string `json:"redirect_url"`
	}
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, fmt.Errorf("hosted rail: decode session: %w body=%s", err, string(raw))
	}
	if res.RedirectURL == "" {
		return nil, fmt.Errorf("hosted rail: session has no redirect url: body=%s", string(raw))
	}

	return &Session{SessionID: res.SessionID, RedirectURL: res.RedirectURL}, nil
}
