// Package refund implements the refund-request workflow invoked from a
// payment-details view: validate everything up front, then submit a single
// multipart request the back office later approves or rejects.
package refund

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"arabesque/internal/evidence"

	"github.com/google/uuid"
)

// FieldError is one collected validation failure.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationErrors aggregates every failed rule so the caller can surface
// them together instead of one at a time.
type ValidationErrors []FieldError

func (v ValidationErrors) Error() string {
	msgs := make([]string, 0, len(v))
	for _, fe := range v {
		msgs = append(msgs, fe.Field+": "+fe.Message)
	}
	return "refund validation failed: " + strings.Join(msgs, "; ")
}

// Request is a refund attempt against an existing payment. OriginalAmount
// comes from the payment-details view the flow was opened from.
type Request struct {
	PaymentID      string
	RefundAmount   int64
	OriginalAmount int64
	Reason         string
	InvoiceNumber  string // optional
}

// RefundRequest is the submitted request, pending until a reviewer acts.
type RefundRequest struct {
	RequestID    string    `json:"request_id"`
	PaymentID    string    `json:"payment_id"`
	RefundAmount int64     `json:"refund_amount"`
	Status       string    `json:"status"`
	EvidenceURL  string    `json:"evidence_url,omitempty"`
	SubmittedAt  time.Time `json:"submitted_at"`
}

type Client struct {
	baseURL     string
	httpClient  *http.Client
	constraints evidence.Constraints
}

func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &Client{
		baseURL:     baseURL,
		httpClient:  httpClient,
		constraints: evidence.TicketConstraints,
	}
}

// Validate runs every rule and reports all violations together. Nothing
// touches the network while this can still fail.
func (c *Client) Validate(req Request, upload io.Reader, filename string) (*evidence.File, ValidationErrors) {
	var violations ValidationErrors

	if strings.TrimSpace(req.Reason) == "" {
		violations = append(violations, FieldError{Field: "reason", Message: "reason is required"})
	}

	if req.RefundAmount <= 0 {
		violations = append(violations, FieldError{Field: "refund_amount", Message: "refund amount must be greater than zero"})
	} else if req.RefundAmount > req.OriginalAmount {
		violations = append(violations, FieldError{
			Field:   "refund_amount",
			Message: fmt.Sprintf("refund amount %d exceeds the original payment amount %d", req.RefundAmount, req.OriginalAmount),
		})
	}

	ev, err := evidence.Validate(upload, filename, c.constraints)
	if err != nil {
		violations = append(violations, FieldError{Field: "evidence", Message: evidence.Reason(err)})
	}

	if len(violations) > 0 {
		return nil, violations
	}
	return ev, nil
}

// Submit validates and then posts the request once. A ValidationErrors
// return means no network call was made.
func (c *Client) Submit(ctx context.Context, req Request, upload io.Reader, filename string) (*RefundRequest, error) {
	ev, violations := c.Validate(req, upload, filename)
	if violations != nil {
		return nil, violations
	}
	return c.submit(ctx, req, ev, "")
}

// SubmitWithEvidence posts a request whose evidence already passed
// Validate, attaching the preview URL generated for the file.
func (c *Client) SubmitWithEvidence(ctx context.Context, req Request, ev *evidence.File, evidenceURL string) (*RefundRequest, error) {
	return c.submit(ctx, req, ev, evidenceURL)
}

func (c *Client) submit(ctx context.Context, req Request, ev *evidence.File, evidenceURL string) (*RefundRequest, error) {
	body := new(bytes.Buffer)
	mw := multipart.NewWriter(body)

	fields := map[string]string{
		"payment_id":    req.PaymentID,
		"refund_amount": strconv.FormatInt(req.RefundAmount, 10),
		"reason":        req.Reason,
	}
	if req.InvoiceNumber != "" {
		fields["invoice_number"] = req.InvoiceNumber
	}
	if evidenceURL != "" {
		fields["evidence_url"] = evidenceURL
	}
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			return nil, fmt.Errorf("refund: write field %s: %w", k, err)
		}
	}

	fw, err := mw.CreateFormFile("evidence", ev.Name)
	if err != nil {
		return nil, fmt.Errorf("refund: create file part: %w", err)
	}
	if _, err := io.Copy(fw, bytes.NewReader(ev.Bytes)); err != nil {
		return nil, fmt.Errorf("refund: copy evidence: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("refund: close multipart: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/refunds", body)
	if err != nil {
		return nil, fmt.Errorf("refund: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("refund: submit request: %w", err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("refund: submit failed: http=%d body=%s", resp.StatusCode, string(raw))
	}

	return &RefundRequest{
		RequestID:    uuid.NewString(),
		PaymentID:    req.PaymentID,
		RefundAmount: req.RefundAmount,
		Status:       "pending",
		EvidenceURL:  evidenceURL,
		SubmittedAt:  time.Now(),
	}, nil
}
