package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"arabesque/internal/reconcile"

	"github.com/go-chi/chi/v5"
)

// paymentStatusHandler godoc
//
//	@Summary		Check a payment's status by reference token
//	@Description	Pure read against the backend; safe to repeat. Invoked on demand from the confirmation screen, never on a timer.
//	@Tags			payments
//	@Produce		json
//	@Param			referenceToken	path		string	true	"Reference token"
//	@Success		200				{object}	reconcile.PaymentRecord
//	@Failure		404				{object}	error
//	@Failure		502				{object}	error
//	@Router			/payments/{referenceToken}/status [get]
func (app *application) paymentStatusHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	token := chi.URLParam(r, "referenceToken")
	if token == "" {
		app.badRequestResponse(w, r, fmt.Errorf("missing reference token"))
		return
	}

	record, err := app.reconciler.CheckStatus(ctx, token)
	if err != nil {
		if errors.Is(err, reconcile.ErrNotFound) {
			app.notFoundResponse(w, r, err)
			return
		}
		// distinct "unable to determine status" outcome, never fatal
		app.logger.Errorw("status check failed", "reference_token", token, "error", err.Error())
		writeJSONError(w, http.StatusBadGateway, "unable to determine status")
		return
	}

	if err := app.jsonResponse(w, http.StatusOK, record); err != nil {
		app.internalServerError(w, r, err)
	}
}
