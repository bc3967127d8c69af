package main

import (
	"fmt"
	"net/http"
	"strconv"

	"arabesque/internal/mailer"
	"arabesque/internal/refund"
)

// createRefundHandler accepts a refund request against an existing
// payment: the original amount and payment id come from the
// payment-details view the user started on. Every validation rule runs
// before submission and all violations come back together; nothing reaches
// the backend unless the whole request is valid.
//
//	@Summary	Submit a refund request
//	@Tags		refunds
//	@Accept		mpfd
//	@Produce	json
//	@Success	201	{object}	refund.RefundRequest
//	@Failure	400	{object}	error
//	@Failure	502	{object}	error
//	@Router		/refunds [post]
func (app *application) createRefundHandler(w http.ResponseWriter, r *http.Request) {
	const maxBytes = 15 * 1024 * 1024
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	if err := r.ParseMultipartForm(maxBytes); err != nil {
		app.badRequestResponse(w, r, fmt.Errorf("parse form: %w", err))
		return
	}

	refundAmount, err := strconv.ParseInt(r.FormValue("refund_amount"), 10, 64)
	if err != nil {
		app.badRequestResponse(w, r, fmt.Errorf("invalid refund_amount"))
		return
	}
	originalAmount, err := strconv.ParseInt(r.FormValue("original_amount"), 10, 64)
	if err != nil {
		app.badRequestResponse(w, r, fmt.Errorf("invalid original_amount"))
		return
	}

	req := refund.Request{
		PaymentID:      r.FormValue("payment_id"),
		RefundAmount:   refundAmount,
		OriginalAmount: originalAmount,
		Reason:         r.FormValue("reason"),
		InvoiceNumber:  r.FormValue("invoice_number"),
	}
	if req.PaymentID == "" {
		app.badRequestResponse(w, r, fmt.Errorf("missing payment_id"))
		return
	}

	var filename string
	file, header, fileErr := r.FormFile("evidence")
	if fileErr == nil {
		defer file.Close()
		filename = header.Filename
	}

	ev, violations := app.refunds.Validate(req, file, filename)
	if violations != nil {
		app.logger.Warnw("refund validation failed", "payment_id", req.PaymentID, "violations", len(violations))
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"success": false,
			"status":  http.StatusBadRequest,
			"errors":  violations,
		})
		return
	}

	// same flow as checkout evidence: the preview is a nicety and its
	// failure only costs the link
	var previewURL string
	if app.previews != nil {
		previewURL, err = app.previews.Upload(r.Context(), ev, "refund_"+req.PaymentID)
		if err != nil {
			app.logger.Warnw("refund evidence preview upload failed", "payment_id", req.PaymentID, "error", err.Error())
		}
	}

	result, err := app.refunds.SubmitWithEvidence(r.Context(), req, ev, previewURL)
	if err != nil {
		app.badGatewayResponse(w, r, err)
		return
	}

	refundsRequested.Add(1)
	app.logger.Infow("refund requested",
		"payment_id", result.PaymentID,
		"request_id", result.RequestID,
		"refund_amount", result.RefundAmount,
	)

	if email := r.FormValue("email"); email != "" {
		app.background(func() {
			data := map[string]any{
				"PaymentID":    result.PaymentID,
				"RefundAmount": result.RefundAmount,
			}
			if _, err := app.mailer.Send(mailer.RefundRequestedTemplate, "", email, data); err != nil {
				app.logger.Warnw("refund mail failed", "payment_id", result.PaymentID, "error", err.Error())
			}
		})
	}

	if err := app.jsonResponse(w, http.StatusCreated, result); err != nil {
		app.internalServerError(w, r, err)
	}
}
