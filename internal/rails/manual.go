package rails

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"arabesque/internal/evidence"

	"github.com/google/uuid"
)

// ManualRail submits payer details plus a proof-of-payment file to the
// backend as a single multipart request. There is no retry and no
// idempotency key: a resubmission after a failure is a brand-new attempt
// under a fresh reference token, and whether the backend deduplicates is
// its own business.
type ManualRail struct {
	baseURL    string
	httpClient *http.Client
}

func (m *ManualRail) endpoint(p Purchase) string {
	if p == PurchaseDonation {
		return m.baseURL + "/donations"
	}
	return m.baseURL + "/tickets"
}

// Submit posts the attempt exactly once. On success the order is pending,
// awaiting manual back-office confirmation.
func (m *ManualRail) Submit(ctx context.Context, req SubmitRequest, ev *evidence.File) (*OrderAttempt, error) {
	body := new(bytes.Buffer)
	mw := multipart.NewWriter(body)

	fields := map[string]string{
		"reference_token": req.ReferenceToken,
		"item_id":         req.ItemID,
		"unit_price":      strconv.FormatInt(req.UnitPrice, 10),
		"quantity":        strconv.Itoa(req.Quantity),
		"total":           strconv.FormatInt(req.Total, 10),
		"currency":        req.Currency,
		"full_name":       req.PayerName,
		"contact_number":  req.PayerPhone,
		"email":           req.PayerEmail,
	}
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			return nil, fmt.Errorf("manual rail: write field %s: %w", k, err)
		}
	}

	fw, err := mw.CreateFormFile("evidence", ev.Name)
	if err != nil {
		return nil, fmt.Errorf("manual rail: create file part: %w", err)
	}
	if _, err := io.Copy(fw, bytes.NewReader(ev.Bytes)); err != nil {
		return nil, fmt.Errorf("manual rail: copy evidence: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("manual rail: close multipart: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, m.endpoint(req.Purchase), body)
	if err != nil {
		return nil, fmt.Errorf("manual rail: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := m.httpClient.Do(httpReq)
	if err != nil {
		return nil, &SubmitError{Op: "manual submit", Err: err}
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// keep the raw body for logging/support
		return nil, &SubmitError{Op: "manual submit", StatusCode: resp.StatusCode, Body: string(raw)}
	}

	return &OrderAttempt{
		AttemptID:      uuid.NewString(),
		ReferenceToken: req.ReferenceToken,
		Status:         "pending",
		CreatedAt:      time.Now(),
	}, nil
}
