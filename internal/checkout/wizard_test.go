package checkout

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"arabesque/internal/evidence"
	"arabesque/internal/rails"
	"arabesque/internal/reconcile"
	"arabesque/internal/reference"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testBackend(t *testing.T, handler http.HandlerFunc) *rails.Rails {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return rails.New(rails.Config{
		BackendURL:     srv.URL,
		PublishableKey: "pk_test",
		SuccessURL:     "https://portal.test/payments/return/success",
		CancelURL:      "https://portal.test/payments/return/cancel",
	})
}

func okBackend(t *testing.T) *rails.Rails {
	return testBackend(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/payment-sessions" {
			json.NewEncoder(w).Encode(map[string]string{
				"session_id":   "cs_1",
				"redirect_url": "https://pay.test/cs_1",
			})
			return
		}
		w.WriteHeader(http.StatusCreated)
	})
}

func openTicketWizard(t *testing.T, r *rails.Rails, prefill *PayerInfo) *Wizard {
	t.Helper()
	sessions, err := NewSessions("test-salt", time.Hour, reference.NewGenerator(), r)
	require.NoError(t, err)
	t.Cleanup(sessions.Stop)

	w, err := sessions.Open(OpenParams{
		Purchase:  rails.PurchaseTicket,
		ItemID:    "showcase-2026",
		UnitPrice: 10000,
		Currency:  "NPR",
		Prefill:   prefill,
	})
	require.NoError(t, err)
	return w
}

func testPayer() PayerInfo {
	return PayerInfo{
		FullName:      "Anita Shrestha",
		ContactNumber: "+9779841000000",
		Email:         "anita@example.com",
	}
}

func testEvidenceFile() *evidence.File {
	return &evidence.File{Name: "receipt.png", MIMEType: "image/png", Size: 4, Bytes: []byte{1, 2, 3, 4}}
}

func TestWizardOpensOnItemSelection(t *testing.T) {
	w := openTicketWizard(t, okBackend(t), nil)

	state := w.Snapshot()
	assert.Equal(t, StepItemSelection, state.Step)
	assert.Equal(t, 1, state.Cart.Quantity)
	assert.Equal(t, int64(10000), state.Cart.Total)
	assert.Regexp(t, `^TKT-\d{5}$`, state.ReferenceToken)
}

func TestSetQuantityRecomputesTotal(t *testing.T) {
	w := openTicketWizard(t, okBackend(t), nil)

	cart, err := w.SetQuantity(3)
	require.NoError(t, err)
	assert.Equal(t, 3, cart.Quantity)
	assert.Equal(t, int64(30000), cart.Total)

	_, err = w.SetQuantity(0)
	require.ErrorIs(t, err, ErrQuantityTooLow)

	// a rejected quantity leaves the cart untouched
	assert.Equal(t, int64(30000), w.Snapshot().Cart.Total)
}

func TestQuantityLockedAfterItemSelection(t *testing.T) {
	w := openTicketWizard(t, okBackend(t), nil)
	require.NoError(t, w.Advance())

	_, err := w.SetQuantity(5)
	require.ErrorIs(t, err, ErrInvalidTransition)
}

func TestAdvanceOnlyFromItemSelection(t *testing.T) {
	w := openTicketWizard(t, okBackend(t), nil)
	require.NoError(t, w.Advance())
	assert.Equal(t, StepPaymentRailChoice, w.Snapshot().Step)

	err := w.Advance()
	require.ErrorIs(t, err, ErrInvalidTransition)
}

func TestBackWalksTheReverseEdges(t *testing.T) {
	w := openTicketWizard(t, okBackend(t), nil)

	// no step before item selection
	require.ErrorIs(t, w.Back(), ErrInvalidTransition)

	require.NoError(t, w.Advance())
	_, err := w.ChooseRail(context.Background(), rails.KindManualEvidence)
	require.NoError(t, err)
	assert.Equal(t, StepRailDetails, w.Snapshot().Step)

	require.NoError(t, w.Back())
	assert.Equal(t, StepPaymentRailChoice, w.Snapshot().Step)

	require.NoError(t, w.Back())
	assert.Equal(t, StepItemSelection, w.Snapshot().Step)
}

func TestBackPreservesPayerInfo(t *testing.T) {
	prefill := IdentityPayer("Anita Shrestha", "anita@example.com", "+9779841000000")
	w := openTicketWizard(t, okBackend(t), &prefill)

	require.NoError(t, w.Advance())
	_, err := w.ChooseRail(context.Background(), rails.KindManualEvidence)
	require.NoError(t, err)
	require.NoError(t, w.Back())

	state := w.Snapshot()
	assert.Equal(t, "Anita Shrestha", state.Payer.FullName)
	assert.Equal(t, "anita@example.com", state.Payer.Email)
	assert.True(t, state.PayerLocked)
}

func TestChooseRailBeforeRailChoice(t *testing.T) {
	w := openTicketWizard(t, okBackend(t), nil)

	_, err := w.ChooseRail(context.Background(), rails.KindManualEvidence)
	require.ErrorIs(t, err, ErrInvalidTransition)
}

func TestChooseHostedRailSuspendsWizard(t *testing.T) {
	w := openTicketWizard(t, okBackend(t), nil)
	require.NoError(t, w.Advance())

	sess, err := w.ChooseRail(context.Background(), rails.KindHostedRedirect)
	require.NoError(t, err)
	require.NotNil(t, sess)
	assert.Equal(t, "https://pay.test/cs_1", sess.RedirectURL)

	state := w.Snapshot()
	assert.True(t, state.AwaitingReturn)
	assert.Equal(t, StepPaymentRailChoice, state.Step)
}

func TestReselectingHostedRailMintsFreshSession(t *testing.T) {
	var sessionCount int
	r := testBackend(t, func(w http.ResponseWriter, req *http.Request) {
		sessionCount++
		json.NewEncoder(w).Encode(map[string]string{
			"session_id":   fmt.Sprintf("cs_%d", sessionCount),
			"redirect_url": fmt.Sprintf("https://pay.test/cs_%d", sessionCount),
		})
	})

	w := openTicketWizard(t, r, nil)
	require.NoError(t, w.Advance())

	first, err := w.ChooseRail(context.Background(), rails.KindHostedRedirect)
	require.NoError(t, err)

	// the processor reports a failure; the suspension lifts and the user
	// picks the hosted rail again
	_, err = w.ConfirmHostedReturn(reconcile.StatusFailed)
	require.NoError(t, err)

	second, err := w.ChooseRail(context.Background(), rails.KindHostedRedirect)
	require.NoError(t, err)

	assert.Equal(t, 2, sessionCount)
	assert.NotEqual(t, first.SessionID, second.SessionID)
}

func TestChooseHostedRailFailureStaysPut(t *testing.T) {
	r := testBackend(t, func(w http.ResponseWriter, req *http.Request) {
		http.Error(w, "processor unavailable", http.StatusBadGateway)
	})

	w := openTicketWizard(t, r, nil)
	require.NoError(t, w.Advance())

	sess, err := w.ChooseRail(context.Background(), rails.KindHostedRedirect)
	require.Error(t, err)
	assert.Nil(t, sess)

	var submitErr *rails.SubmitError
	require.ErrorAs(t, err, &submitErr)

	state := w.Snapshot()
	assert.Equal(t, StepPaymentRailChoice, state.Step)
	assert.False(t, state.AwaitingReturn)
	assert.Nil(t, state.Session)
}

func TestSuspendedWizardRejectsEdits(t *testing.T) {
	w := openTicketWizard(t, okBackend(t), nil)
	require.NoError(t, w.Advance())
	_, err := w.ChooseRail(context.Background(), rails.KindHostedRedirect)
	require.NoError(t, err)

	// the processor holds the suspended amount; nothing may drift until
	// the return callback resolves the attempt
	require.ErrorIs(t, w.Back(), ErrAwaitingReturn)
	_, err = w.ChooseRail(context.Background(), rails.KindHostedRedirect)
	require.ErrorIs(t, err, ErrAwaitingReturn)

	// a cancel lifts the suspension and edits resume
	_, err = w.ConfirmHostedReturn(reconcile.StatusFailed)
	require.NoError(t, err)
	require.NoError(t, w.Back())
	assert.Equal(t, StepItemSelection, w.Snapshot().Step)
}

func TestConfirmHostedReturn(t *testing.T) {
	newSuspended := func(t *testing.T) *Wizard {
		w := openTicketWizard(t, okBackend(t), nil)
		require.NoError(t, w.Advance())
		_, err := w.ChooseRail(context.Background(), rails.KindHostedRedirect)
		require.NoError(t, err)
		return w
	}

	t.Run("requires a suspended wizard", func(t *testing.T) {
		w := openTicketWizard(t, okBackend(t), nil)
		_, err := w.ConfirmHostedReturn(reconcile.StatusConfirmed)
		require.ErrorIs(t, err, ErrNotAwaitingReturn)
	})

	t.Run("confirmed completes the wizard", func(t *testing.T) {
		w := newSuspended(t)
		step, err := w.ConfirmHostedReturn(reconcile.StatusConfirmed)
		require.NoError(t, err)
		assert.Equal(t, StepConfirmation, step)
		assert.False(t, w.Snapshot().AwaitingReturn)
	})

	t.Run("failed lifts the suspension", func(t *testing.T) {
		w := newSuspended(t)
		step, err := w.ConfirmHostedReturn(reconcile.StatusFailed)
		require.NoError(t, err)
		assert.Equal(t, StepPaymentRailChoice, step)
		assert.False(t, w.Snapshot().AwaitingReturn)
	})

	t.Run("pending keeps waiting", func(t *testing.T) {
		w := newSuspended(t)
		_, err := w.ConfirmHostedReturn(reconcile.StatusPending)
		require.NoError(t, err)
		assert.True(t, w.Snapshot().AwaitingReturn)

		// a later return can still resolve it
		step, err := w.ConfirmHostedReturn(reconcile.StatusConfirmed)
		require.NoError(t, err)
		assert.Equal(t, StepConfirmation, step)
	})
}

func TestSubmitManualEvidence(t *testing.T) {
	toDetails := func(t *testing.T, r *rails.Rails) *Wizard {
		w := openTicketWizard(t, r, nil)
		require.NoError(t, w.Advance())
		_, err := w.ChooseRail(context.Background(), rails.KindManualEvidence)
		require.NoError(t, err)
		return w
	}

	t.Run("requires the acknowledgment", func(t *testing.T) {
		w := toDetails(t, okBackend(t))
		_, err := w.SubmitManualEvidence(context.Background(), testPayer(), testEvidenceFile(), false, "")
		require.ErrorIs(t, err, ErrAcknowledgmentRequired)
	})

	t.Run("requires complete payer info", func(t *testing.T) {
		w := toDetails(t, okBackend(t))
		payer := testPayer()
		payer.ContactNumber = "  "
		_, err := w.SubmitManualEvidence(context.Background(), payer, testEvidenceFile(), true, "")
		require.ErrorIs(t, err, ErrPayerIncomplete)
	})

	t.Run("refused outside rail details", func(t *testing.T) {
		w := openTicketWizard(t, okBackend(t), nil)
		_, err := w.SubmitManualEvidence(context.Background(), testPayer(), testEvidenceFile(), true, "")
		require.ErrorIs(t, err, ErrInvalidTransition)
	})

	t.Run("success completes the wizard", func(t *testing.T) {
		w := toDetails(t, okBackend(t))
		attempt, err := w.SubmitManualEvidence(context.Background(), testPayer(), testEvidenceFile(), true, "https://cdn.test/receipt.png")
		require.NoError(t, err)

		assert.Equal(t, "pending", attempt.Status)
		assert.Equal(t, "https://cdn.test/receipt.png", attempt.EvidenceURL)

		state := w.Snapshot()
		assert.Equal(t, StepConfirmation, state.Step)
		require.NotNil(t, state.Attempt)
		assert.Equal(t, attempt.AttemptID, state.Attempt.AttemptID)
	})

	t.Run("backend failure stays editable", func(t *testing.T) {
		r := testBackend(t, func(w http.ResponseWriter, req *http.Request) {
			http.Error(w, "ledger is closed", http.StatusUnprocessableEntity)
		})
		w := toDetails(t, r)

		_, err := w.SubmitManualEvidence(context.Background(), testPayer(), testEvidenceFile(), true, "")
		var submitErr *rails.SubmitError
		require.ErrorAs(t, err, &submitErr)

		state := w.Snapshot()
		assert.Equal(t, StepRailDetails, state.Step)
		assert.Nil(t, state.Attempt)
		// everything entered so far survives the failure
		assert.Equal(t, "Anita Shrestha", state.Payer.FullName)
	})

	t.Run("failed attempt burns its reference token", func(t *testing.T) {
		var mu sync.Mutex
		var tokens []string
		r := testBackend(t, func(w http.ResponseWriter, req *http.Request) {
			require.NoError(t, req.ParseMultipartForm(1<<20))
			mu.Lock()
			tokens = append(tokens, req.FormValue("reference_token"))
			first := len(tokens) == 1
			mu.Unlock()
			if first {
				http.Error(w, "ledger is closed", http.StatusBadGateway)
				return
			}
			w.WriteHeader(http.StatusCreated)
		})

		sessions, err := NewSessions("test-salt", time.Hour, reference.NewGenerator(), r)
		require.NoError(t, err)
		t.Cleanup(sessions.Stop)

		w, err := sessions.Open(OpenParams{
			Purchase:  rails.PurchaseTicket,
			ItemID:    "showcase-2026",
			UnitPrice: 10000,
			Currency:  "NPR",
		})
		require.NoError(t, err)
		oldToken := w.ReferenceToken()

		require.NoError(t, w.Advance())
		_, err = w.ChooseRail(context.Background(), rails.KindManualEvidence)
		require.NoError(t, err)

		_, err = w.SubmitManualEvidence(context.Background(), testPayer(), testEvidenceFile(), true, "")
		require.Error(t, err)

		newToken := w.ReferenceToken()
		require.NotEqual(t, oldToken, newToken)
		assert.Regexp(t, `^TKT-\d{5}$`, newToken)

		// the token index follows the remint
		_, ok := sessions.ByToken(oldToken)
		assert.False(t, ok)
		byToken, ok := sessions.ByToken(newToken)
		require.True(t, ok)
		assert.Same(t, w, byToken)

		attempt, err := w.SubmitManualEvidence(context.Background(), testPayer(), testEvidenceFile(), true, "")
		require.NoError(t, err)
		assert.Equal(t, newToken, attempt.ReferenceToken)

		require.Len(t, tokens, 2)
		assert.NotEqual(t, tokens[0], tokens[1])
		assert.Equal(t, newToken, tokens[1])
	})

	t.Run("identity payer keeps name and email locked", func(t *testing.T) {
		prefill := IdentityPayer("Anita Shrestha", "anita@example.com", "")
		w := openTicketWizard(t, okBackend(t), &prefill)
		require.NoError(t, w.Advance())
		_, err := w.ChooseRail(context.Background(), rails.KindManualEvidence)
		require.NoError(t, err)

		edited := PayerInfo{
			FullName:      "Someone Else",
			Email:         "other@example.com",
			ContactNumber: "+9779841000000",
		}
		_, err = w.SubmitManualEvidence(context.Background(), edited, testEvidenceFile(), true, "")
		require.NoError(t, err)

		state := w.Snapshot()
		assert.Equal(t, "Anita Shrestha", state.Payer.FullName)
		assert.Equal(t, "anita@example.com", state.Payer.Email)
		assert.Equal(t, "+9779841000000", state.Payer.ContactNumber)
	})
}
