package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"arabesque/internal/reconcile"
)

// redirectToPortalReturn serves a small HTML page that sends the browser
// back to the portal frontend with the outcome in the query string.
//
// The callback URLs are opened by the payment processor in the user's
// browser, so the response must be HTML, never JSON.
func (app *application) redirectToPortalReturn(
	w http.ResponseWriter,
	result string, // "success" | "failed" | "pending" | "cancelled"
	referenceToken string,
	reason string, // optional internal reason for debugging
) {
	result = strings.ToLower(strings.TrimSpace(result))
	switch result {
	case "success", "failed", "pending", "cancelled":
	default:
		result = "pending"
	}

	q := url.Values{}
	q.Set("result", result)
	if referenceToken != "" {
		q.Set("reference", referenceToken)
	}
	if reason != "" {
		q.Set("reason", reason)
	}

	target := fmt.Sprintf("%s/payments/return?%s", app.config.frontendURL, q.Encode())

	html := fmt.Sprintf(`<!doctype html>
<html>
  <head>
    <meta charset="utf-8" />
    <meta name="viewport" content="width=device-width, initial-scale=1" />
    <title>Returning to the portal…</title>
    <style>
      body { font-family: system-ui, -apple-system, Segoe UI, Roboto; padding: 24px; }
      .btn { display: inline-block; padding: 12px 16px; border-radius: 10px; background:#111; color:#fff; text-decoration:none; }
      .muted { opacity: 0.7; margin-top: 12px; }
    </style>
  </head>
  <body>
    <h3>Returning to Arabesque…</h3>
    <p class="muted">If you are not redirected automatically, use the button below.</p>
    <p><a class="btn" href="%s">Back to the portal</a></p>

    <script>
      window.location.href = %q;
    </script>
  </body>
</html>`,
		target,
		target,
	)

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store, max-age=0")
	w.Header().Set("X-Frame-Options", "DENY")
	w.Header().Set("Referrer-Policy", "no-referrer")

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(html))
}

// paymentSuccessReturnHandler is where the processor sends the browser
// after a hosted checkout it considers successful. The redirect is not
// trusted on its own: the reference token is verified against the backend
// before the wizard may reach confirmation. An unverifiable return leaves
// the wizard suspended and reports pending.
//
// GET /v1/payments/return/success?reference=TKT-12345
func (app *application) paymentSuccessReturnHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	token := strings.TrimSpace(r.URL.Query().Get("reference"))
	if token == "" {
		app.redirectToPortalReturn(w, "failed", "", "missing_reference")
		return
	}

	wizard, ok := app.sessions.ByToken(token)
	if !ok {
		// wizard already closed or never existed; the user can still check
		// status by reference token
		app.redirectToPortalReturn(w, "pending", token, "checkout_not_found")
		return
	}

	record, err := app.reconciler.CheckStatus(ctx, token)
	if err != nil {
		if errors.Is(err, reconcile.ErrNotFound) {
			app.logger.Warnw("hosted return for unknown payment", "reference_token", token)
			app.redirectToPortalReturn(w, "pending", token, "payment_not_found")
			return
		}
		app.logger.Errorw("hosted return verification failed", "reference_token", token, "error", err.Error())
		app.redirectToPortalReturn(w, "pending", token, "status_check_failed")
		return
	}

	step, err := wizard.ConfirmHostedReturn(record.Status)
	if err != nil {
		app.logger.Warnw("hosted return ignored", "reference_token", token, "error", err.Error())
	}

	switch record.Status {
	case reconcile.StatusConfirmed:
		app.logger.Infow("hosted checkout confirmed", "reference_token", token, "step", step)
		app.redirectToPortalReturn(w, "success", token, "")
	case reconcile.StatusFailed:
		app.redirectToPortalReturn(w, "failed", token, "gateway_terminal")
	default:
		app.redirectToPortalReturn(w, "pending", token, "")
	}
}

// paymentCancelReturnHandler handles the processor's cancel callback: the
// suspension is lifted and the user lands back on rail choice with
// everything they entered intact.
//
// GET /v1/payments/return/cancel?reference=TKT-12345
func (app *application) paymentCancelReturnHandler(w http.ResponseWriter, r *http.Request) {
	token := strings.TrimSpace(r.URL.Query().Get("reference"))
	if token == "" {
		app.redirectToPortalReturn(w, "failed", "", "missing_reference")
		return
	}

	if wizard, ok := app.sessions.ByToken(token); ok {
		if _, err := wizard.ConfirmHostedReturn(reconcile.StatusFailed); err != nil {
			app.logger.Warnw("cancel return ignored", "reference_token", token, "error", err.Error())
		}
	}

	app.redirectToPortalReturn(w, "cancelled", token, "user_cancelled")
}
