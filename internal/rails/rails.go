// Package rails implements the two payment paths a checkout attempt can
// take: a one-shot multipart submission of manual payment evidence, and a
// hosted-checkout session the browser is redirected through.
package rails

import (
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// Config wires both rails against the operations backend.
type Config struct {
	// BackendURL is the base URL of the portal's REST backend.
	BackendURL string
	// PublishableKey identifies this deployment (test vs. live) to the
	// hosted payment processor. It is not a secret.
	PublishableKey string
	// SuccessURL and CancelURL are where the processor sends the browser
	// back after a hosted checkout.
	SuccessURL string
	CancelURL  string

	HTTPClient *http.Client
}

// Rails bundles the two mutually exclusive payment paths.
type Rails struct {
	Manual *ManualRail
	Hosted *HostedRail
}

func New(cfg Config) *Rails {
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &Rails{
		Manual: &ManualRail{
			baseURL:    cfg.BackendURL,
			httpClient: client,
		},
		Hosted: &HostedRail{
			baseURL:        cfg.BackendURL,
			publishableKey: cfg.PublishableKey,
			successURL:     cfg.SuccessURL,
			cancelURL:      cfg.CancelURL,
			httpClient:     client,
		},
	}
}

// SubmitError reports a failed rail call. Validation failures never become
// one of these; only transport failures and non-2xx backend replies do.
type SubmitError struct {
	Op         string
	StatusCode int // 0 on transport failure
	Body       string
	Err        error
}

func (e *SubmitError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s failed: http=%d body=%s", e.Op, e.StatusCode, e.Body)
	}
	return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
}

func (e *SubmitError) Unwrap() error {
	return e.Err
}

// withReference appends the reference token to a callback URL so the return
// handler can find the suspended wizard again.
func withReference(base, token string) string {
	u, err := url.Parse(base)
	if err != nil {
		if len(base) > 0 && base[len(base)-1] == '?' {
			return base + "reference=" + url.QueryEscape(token)
		}
		return base + "?reference=" + url.QueryEscape(token)
	}
	q := u.Query()
	q.Set("reference", token)
	u.RawQuery = q.Encode()
	return u.String()
}
