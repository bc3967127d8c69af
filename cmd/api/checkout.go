package main

import (
	"errors"
	"fmt"
	"net/http"

	"arabesque/internal/checkout"
	"arabesque/internal/evidence"
	"arabesque/internal/mailer"
	"arabesque/internal/rails"

	"github.com/go-chi/chi/v5"
)

type openCheckoutPayload struct {
	Purchase  string `json:"purchase" validate:"required,oneof=ticket donation"`
	ItemID    string `json:"item_id" validate:"required"`
	UnitPrice int64  `json:"unit_price" validate:"required,gt=0"`
	Currency  string `json:"currency" validate:"required,len=3"`
}

// openCheckoutHandler godoc
//
//	@Summary		Open a checkout wizard
//	@Description	Creates an in-memory checkout attempt on the item-selection step. A bearer token, when present, prefills payer info from the authenticated identity.
//	@Tags			checkout
//	@Accept			json
//	@Produce		json
//	@Param			payload	body		openCheckoutPayload	true	"Item being purchased"
//	@Success		201		{object}	checkout.State
//	@Failure		400		{object}	error
//	@Router			/checkout [post]
func (app *application) openCheckoutHandler(w http.ResponseWriter, r *http.Request) {
	var payload openCheckoutPayload
	if err := readJSON(w, r, &payload); err != nil {
		app.badRequestResponse(w, r, err)
		return
	}
	if err := Validate.Struct(payload); err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	var prefill *checkout.PayerInfo
	if id := app.identityFromRequest(r); id != nil {
		p := checkout.IdentityPayer(id.FullName, id.Email, id.Phone)
		prefill = &p
	}

	wizard, err := app.sessions.Open(checkout.OpenParams{
		Purchase:  rails.Purchase(payload.Purchase),
		ItemID:    payload.ItemID,
		UnitPrice: payload.UnitPrice,
		Currency:  payload.Currency,
		Prefill:   prefill,
	})
	if err != nil {
		app.internalServerError(w, r, err)
		return
	}

	checkoutsOpened.Add(1)
	app.logger.Infow("checkout opened",
		"checkout_id", wizard.ID(),
		"reference_token", wizard.ReferenceToken(),
		"purchase", payload.Purchase,
	)

	if err := app.jsonResponse(w, http.StatusCreated, wizard.Snapshot()); err != nil {
		app.internalServerError(w, r, err)
	}
}

func (app *application) wizardFromRequest(w http.ResponseWriter, r *http.Request) (*checkout.Wizard, bool) {
	id := chi.URLParam(r, "checkoutID")
	wizard, ok := app.sessions.Get(id)
	if !ok {
		app.notFoundResponse(w, r, fmt.Errorf("no checkout with id %s", id))
		return nil, false
	}
	return wizard, true
}

// getCheckoutHandler godoc
//
//	@Summary	Inspect a checkout wizard
//	@Tags		checkout
//	@Produce	json
//	@Param		checkoutID	path		string	true	"Checkout ID"
//	@Success	200			{object}	checkout.State
//	@Failure	404			{object}	error
//	@Router		/checkout/{checkoutID} [get]
func (app *application) getCheckoutHandler(w http.ResponseWriter, r *http.Request) {
	wizard, ok := app.wizardFromRequest(w, r)
	if !ok {
		return
	}
	if err := app.jsonResponse(w, http.StatusOK, wizard.Snapshot()); err != nil {
		app.internalServerError(w, r, err)
	}
}

// abandonCheckoutHandler discards the wizard and everything it held. Any
// in-flight request is left to finish on its own.
//
//	@Summary	Abandon a checkout wizard
//	@Tags		checkout
//	@Param		checkoutID	path	string	true	"Checkout ID"
//	@Success	204
//	@Failure	404	{object}	error
//	@Router		/checkout/{checkoutID} [delete]
func (app *application) abandonCheckoutHandler(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "checkoutID")
	if !app.sessions.Close(id) {
		app.notFoundResponse(w, r, fmt.Errorf("no checkout with id %s", id))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type setQuantityPayload struct {
	Quantity int `json:"quantity" validate:"required"`
}

// setQuantityHandler godoc
//
//	@Summary	Set the quantity during item selection
//	@Tags		checkout
//	@Accept		json
//	@Produce	json
//	@Param		checkoutID	path		string				true	"Checkout ID"
//	@Param		payload		body		setQuantityPayload	true	"Quantity"
//	@Success	200			{object}	checkout.Cart
//	@Failure	400			{object}	error
//	@Router		/checkout/{checkoutID}/quantity [put]
func (app *application) setQuantityHandler(w http.ResponseWriter, r *http.Request) {
	wizard, ok := app.wizardFromRequest(w, r)
	if !ok {
		return
	}

	var payload setQuantityPayload
	if err := readJSON(w, r, &payload); err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	cart, err := wizard.SetQuantity(payload.Quantity)
	if err != nil {
		app.checkoutErrorResponse(w, r, err)
		return
	}

	if err := app.jsonResponse(w, http.StatusOK, cart); err != nil {
		app.internalServerError(w, r, err)
	}
}

// advanceCheckoutHandler moves item selection forward; it is refused while
// the quantity is below one.
//
//	@Summary	Advance from item selection
//	@Tags		checkout
//	@Produce	json
//	@Param		checkoutID	path		string	true	"Checkout ID"
//	@Success	200			{object}	checkout.State
//	@Failure	409			{object}	error
//	@Router		/checkout/{checkoutID}/advance [post]
func (app *application) advanceCheckoutHandler(w http.ResponseWriter, r *http.Request) {
	wizard, ok := app.wizardFromRequest(w, r)
	if !ok {
		return
	}

	if err := wizard.Advance(); err != nil {
		app.checkoutErrorResponse(w, r, err)
		return
	}

	if err := app.jsonResponse(w, http.StatusOK, wizard.Snapshot()); err != nil {
		app.internalServerError(w, r, err)
	}
}

// backCheckoutHandler godoc
//
//	@Summary	Step back in the wizard
//	@Tags		checkout
//	@Produce	json
//	@Param		checkoutID	path		string	true	"Checkout ID"
//	@Success	200			{object}	checkout.State
//	@Failure	409			{object}	error
//	@Router		/checkout/{checkoutID}/back [post]
func (app *application) backCheckoutHandler(w http.ResponseWriter, r *http.Request) {
	wizard, ok := app.wizardFromRequest(w, r)
	if !ok {
		return
	}

	if err := wizard.Back(); err != nil {
		app.checkoutErrorResponse(w, r, err)
		return
	}

	if err := app.jsonResponse(w, http.StatusOK, wizard.Snapshot()); err != nil {
		app.internalServerError(w, r, err)
	}
}

type chooseRailPayload struct {
	Rail string `json:"rail" validate:"required,oneof=manual-evidence hosted-redirect"`
}

// chooseRailHandler picks the payment path. Choosing hosted-redirect is
// side-effecting: it creates a checkout session with the processor and the
// returned redirect URL is where the browser must navigate next.
//
//	@Summary	Choose a payment rail
//	@Tags		checkout
//	@Accept		json
//	@Produce	json
//	@Param		checkoutID	path		string				true	"Checkout ID"
//	@Param		payload		body		chooseRailPayload	true	"Rail"
//	@Success	200			{object}	checkout.State
//	@Failure	400			{object}	error
//	@Failure	502			{object}	error
//	@Router		/checkout/{checkoutID}/rail [post]
func (app *application) chooseRailHandler(w http.ResponseWriter, r *http.Request) {
	wizard, ok := app.wizardFromRequest(w, r)
	if !ok {
		return
	}

	var payload chooseRailPayload
	if err := readJSON(w, r, &payload); err != nil {
		app.badRequestResponse(w, r, err)
		return
	}
	if err := Validate.Struct(payload); err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	session, err := wizard.ChooseRail(r.Context(), rails.Kind(payload.Rail))
	if err != nil {
		app.checkoutErrorResponse(w, r, err)
		return
	}

	if session != nil {
		hostedSessions.Add(1)
		app.logger.Infow("hosted checkout session created",
			"checkout_id", wizard.ID(),
			"reference_token", wizard.ReferenceToken(),
			"session_id", session.SessionID,
		)
	}

	if err := app.jsonResponse(w, http.StatusOK, wizard.Snapshot()); err != nil {
		app.internalServerError(w, r, err)
	}
}

// submitEvidenceHandler is the manual rail's submit: payer details plus the
// proof-of-payment file as one multipart request. Validation failure keeps
// everything local; only a fully valid attempt reaches the backend.
//
//	@Summary	Submit manual payment evidence
//	@Tags		checkout
//	@Accept		mpfd
//	@Produce	json
//	@Param		checkoutID	path		string	true	"Checkout ID"
//	@Success	200			{object}	checkout.State
//	@Failure	400			{object}	error
//	@Failure	502			{object}	error
//	@Router		/checkout/{checkoutID}/submit [post]
func (app *application) submitEvidenceHandler(w http.ResponseWriter, r *http.Request) {
	wizard, ok := app.wizardFromRequest(w, r)
	if !ok {
		return
	}

	const maxBytes = 15 * 1024 * 1024
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	if err := r.ParseMultipartForm(maxBytes); err != nil {
		app.badRequestResponse(w, r, fmt.Errorf("parse form: %w", err))
		return
	}

	payer := checkout.PayerInfo{
		FullName:      r.FormValue("full_name"),
		ContactNumber: r.FormValue("contact_number"),
		Email:         r.FormValue("email"),
	}
	if payer.Email != "" {
		if err := Validate.Var(payer.Email, "email"); err != nil {
			app.badRequestResponse(w, r, fmt.Errorf("invalid email address"))
			return
		}
	}
	if payer.ContactNumber != "" {
		if err := Validate.Var(payer.ContactNumber, "contactnumber"); err != nil {
			app.badRequestResponse(w, r, fmt.Errorf("invalid contact number"))
			return
		}
	}
	acknowledged := r.FormValue("acknowledged") == "true"

	snapshot := wizard.Snapshot()
	constraints := evidence.TicketConstraints
	if snapshot.Purchase == rails.PurchaseDonation {
		constraints = evidence.DonationConstraints
	}

	file, header, err := r.FormFile("evidence")
	if err != nil {
		app.badRequestResponse(w, r, fmt.Errorf("evidence: %s", evidence.Reason(evidence.ErrMissing)))
		return
	}
	defer file.Close()

	ev, err := evidence.Validate(file, header.Filename, constraints)
	if err != nil {
		app.badRequestResponse(w, r, fmt.Errorf("evidence: %s", evidence.Reason(err)))
		return
	}

	// preview only exists once validation has passed
	var previewURL string
	if app.previews != nil {
		publicID := fmt.Sprintf("%s_%s", wizard.ReferenceToken(), wizard.ID())
		previewURL, err = app.previews.Upload(r.Context(), ev, publicID)
		if err != nil {
			// the preview is a nicety; the submission does not depend on it
			app.logger.Warnw("evidence preview upload failed", "checkout_id", wizard.ID(), "error", err.Error())
		}
	}

	attempt, err := wizard.SubmitManualEvidence(r.Context(), payer, ev, acknowledged, previewURL)
	if err != nil {
		app.checkoutErrorResponse(w, r, err)
		return
	}

	manualSubmissions.Add(1)
	app.logger.Infow("manual evidence submitted",
		"checkout_id", wizard.ID(),
		"reference_token", attempt.ReferenceToken,
		"attempt_id", attempt.AttemptID,
	)

	state := wizard.Snapshot()
	app.background(func() {
		data := map[string]any{
			"Username":       state.Payer.FullName,
			"Purchase":       state.Purchase,
			"ReferenceToken": state.ReferenceToken,
			"Total":          state.Cart.Total,
			"Currency":       state.Cart.Currency,
		}
		if _, err := app.mailer.Send(mailer.PaymentReceiptTemplate, state.Payer.FullName, state.Payer.Email, data); err != nil {
			app.logger.Warnw("receipt mail failed", "reference_token", state.ReferenceToken, "error", err.Error())
		}
	})

	if err := app.jsonResponse(w, http.StatusOK, state); err != nil {
		app.internalServerError(w, r, err)
	}
}

// checkoutErrorResponse maps wizard errors onto the error taxonomy: local
// validation stays 400, step misuse is 409, backend trouble is 502.
func (app *application) checkoutErrorResponse(w http.ResponseWriter, r *http.Request, err error) {
	var submitErr *rails.SubmitError

	switch {
	case errors.Is(err, checkout.ErrQuantityTooLow),
		errors.Is(err, checkout.ErrAcknowledgmentRequired),
		errors.Is(err, checkout.ErrPayerIncomplete):
		app.badRequestResponse(w, r, err)
	case errors.Is(err, checkout.ErrInvalidTransition),
		errors.Is(err, checkout.ErrSubmissionInFlight),
		errors.Is(err, checkout.ErrAwaitingReturn),
		errors.Is(err, checkout.ErrNotAwaitingReturn):
		app.conflictResponse(w, r, err)
	case errors.As(err, &submitErr):
		app.badGatewayResponse(w, r, err)
	default:
		app.internalServerError(w, r, err)
	}
}
