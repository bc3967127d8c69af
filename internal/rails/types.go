package rails

import "time"

// Kind names one of the two mutually exclusive payment paths.
type Kind string

const (
	KindManualEvidence Kind = "manual-evidence"
	KindHostedRedirect Kind = "hosted-redirect"
)

// Purchase selects which backend collection an attempt lands in.
type Purchase string

const (
	PurchaseTicket   Purchase = "ticket"
	PurchaseDonation Purchase = "donation"
)

// SubmitRequest carries everything a rail needs for one purchase attempt.
type SubmitRequest struct {
	ReferenceToken string
	Purchase       Purchase
	ItemID         string
	UnitPrice      int64
	Quantity       int
	Total          int64
	Currency       string

	PayerName  string
	PayerPhone string
	PayerEmail string
}

// OrderAttempt is the unconfirmed order produced by a successful
// manual-evidence submission. It stays "pending" until the back office
// confirms the evidence.
type OrderAttempt struct {
	AttemptID      string    `json:"attempt_id"`
	ReferenceToken string    `json:"reference_token"`
	Status         string    `json:"status"`
	EvidenceURL    string    `json:"evidence_url,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// Session is a hosted-checkout descriptor: where to send the browser, and
// the processor's handle for the attempt.
type Session struct {
	SessionID   string `json:"session_id"`
	RedirectURL string `json:"redirect_url"`
}
