// Package checkout owns the purchase wizard: a fixed step sequence with an
// explicit transition table, the cart it carries, and dispatch to whichever
// payment rail the user picked.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"arabesque/internal/evidence"
	"arabesque/internal/rails"
	"arabesque/internal/reconcile"
)

// Step is one of the wizard's states. Transitions happen only through the
// methods below; there is no way to jump the sequence.
type Step string

const (
	StepItemSelection     Step = "item-selection"
	StepPaymentRailChoice Step = "payment-rail-choice"
	StepRailDetails       Step = "rail-details"
	StepConfirmation      Step = "confirmation"
)

var (
	ErrInvalidTransition      = errors.New("checkout: invalid step transition")
	ErrSubmissionInFlight     = errors.New("checkout: a submission is already in flight")
	ErrAcknowledgmentRequired = errors.New("checkout: the evidence acknowledgment must be set")
	ErrPayerIncomplete        = errors.New("checkout: payer name, contact number and email are required")
	ErrNotAwaitingReturn      = errors.New("checkout: wizard is not awaiting a hosted-checkout return")
	ErrAwaitingReturn         = errors.New("checkout: wizard is suspended awaiting the hosted-checkout return")
)

// back holds the only legal reverse edges. Forward movement is per-method
// because every forward edge has its own guard.
var back = map[Step]Step{
	StepRailDetails:       StepPaymentRailChoice,
	StepPaymentRailChoice: StepItemSelection,
}

// PayerInfo is editable by the user, except that name and email sourced
// from an authenticated identity stay read-only.
type PayerInfo struct {
	FullName      string `json:"full_name"`
	ContactNumber string `json:"contact_number"`
	Email         string `json:"email"`

	fromIdentity bool
}

// IdentityPayer builds a prefilled PayerInfo whose name and email are
// locked to the authenticated identity.
func IdentityPayer(fullName, email, phone string) PayerInfo {
	return PayerInfo{
		FullName:      fullName,
		Email:         email,
		ContactNumber: phone,
		fromIdentity:  true,
	}
}

func (p PayerInfo) complete() bool {
	return strings.TrimSpace(p.FullName) != "" &&
		strings.TrimSpace(p.ContactNumber) != "" &&
		strings.TrimSpace(p.Email) != ""
}

// Wizard is one checkout attempt. All of its state lives in memory and
// dies when the wizard is closed or swept; concurrent wizards never share
// anything.
type Wizard struct {
	mu sync.Mutex

	id             string
	purchase       rails.Purchase
	referenceToken string
	step           Step
	cart           Cart
	payer          PayerInfo
	railKind       rails.Kind
	session        *rails.Session
	attempt        *rails.OrderAttempt
	inFlight       bool
	awaitingReturn bool
	createdAt      time.Time
	lastActive     time.Time

	r *rails.Rails

	// remint swaps in a fresh reference token after a failed manual
	// submission; set by the session container, which owns the token index.
	remint func(*Wizard)
}

func newWizard(id string, purchase rails.Purchase, cart Cart, token string, prefill *PayerInfo, r *rails.Rails) *Wizard {
	w := &Wizard{
		id:             id,
		purchase:       purchase,
		referenceToken: token,
		step:           StepItemSelection,
		cart:           cart,
		createdAt:      time.Now(),
		lastActive:     time.Now(),
		r:              r,
	}
	if prefill != nil {
		w.payer = *prefill
	}
	return w
}

func (w *Wizard) ID() string { return w.id }

func (w *Wizard) ReferenceToken() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.referenceToken
}

// SetQuantity captures the quantity during item selection and recomputes
// the total.
func (w *Wizard) SetQuantity(qty int) (Cart, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.step != StepItemSelection {
		return w.cart, fmt.Errorf("%w: quantity is set during %s", ErrInvalidTransition, StepItemSelection)
	}
	if err := w.cart.setQuantity(qty); err != nil {
		return w.cart, err
	}
	return w.cart, nil
}

// Advance moves ItemSelection forward. All other forward movement happens
// through rail selection and submission, which carry their own guards.
func (w *Wizard) Advance() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.step != StepItemSelection {
		return fmt.Errorf("%w: cannot advance from %s", ErrInvalidTransition, w.step)
	}
	if w.cart.Quantity < 1 {
		return ErrQuantityTooLow
	}
	w.step = StepPaymentRailChoice
	return nil
}

// Back walks one of the two explicit reverse edges. Previously entered
// payer info survives going back. A wizard suspended on a hosted checkout
// cannot move until the return callback resolves it: editing the cart
// while the processor still holds the old amount would let the two drift.
func (w *Wizard) Back() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.inFlight {
		return ErrSubmissionInFlight
	}
	if w.awaitingReturn {
		return ErrAwaitingReturn
	}
	prev, ok := back[w.step]
	if !ok {
		return fmt.Errorf("%w: cannot go back from %s", ErrInvalidTransition, w.step)
	}
	w.step = prev
	return nil
}

// ChooseRail picks the payment path. Picking the manual rail just moves to
// the details step; picking the hosted rail is side-effecting: it creates a
// fresh checkout session every time (previous sessions are neither cached
// nor cancelled) and suspends the wizard until the processor returns the
// browser to a callback URL. On a session failure the wizard stays on this
// step and no redirect happens.
func (w *Wizard) ChooseRail(ctx context.Context, kind rails.Kind) (*rails.Session, error) {
	w.mu.Lock()

	if w.step != StepPaymentRailChoice {
		w.mu.Unlock()
		return nil, fmt.Errorf("%w: rail is chosen during %s", ErrInvalidTransition, StepPaymentRailChoice)
	}
	if w.inFlight {
		w.mu.Unlock()
		return nil, ErrSubmissionInFlight
	}
	if w.awaitingReturn {
		w.mu.Unlock()
		return nil, ErrAwaitingReturn
	}

	switch kind {
	case rails.KindManualEvidence:
		w.railKind = kind
		w.session = nil
		w.awaitingReturn = false
		w.step = StepRailDetails
		w.mu.Unlock()
		return nil, nil

	case rails.KindHostedRedirect:
		w.inFlight = true
		req := w.submitRequest()
		w.mu.Unlock()

		sess, err := w.r.Hosted.CreateSession(ctx, req)

		w.mu.Lock()
		defer w.mu.Unlock()
		w.inFlight = false
		if err != nil {
			return nil, err
		}
		w.railKind = kind
		w.session = sess
		w.awaitingReturn = true
		return sess, nil

	default:
		w.mu.Unlock()
		return nil, fmt.Errorf("checkout: unknown rail %q", kind)
	}
}

// SubmitManualEvidence submits the manual-evidence rail once. ev must have
// already passed evidence validation; evidenceURL is the preview generated
// afterwards (may be empty). The submit is locked against concurrent
// resubmission within this wizard, but a failed attempt stays editable and
// the user may resubmit manually, which is a brand-new attempt under a
// fresh reference token.
func (w *Wizard) SubmitManualEvidence(ctx context.Context, payer PayerInfo, ev *evidence.File, acknowledged bool, evidenceURL string) (*rails.OrderAttempt, error) {
	w.mu.Lock()

	if w.step != StepRailDetails || w.railKind != rails.KindManualEvidence {
		w.mu.Unlock()
		return nil, fmt.Errorf("%w: evidence is submitted during %s on the manual rail", ErrInvalidTransition, StepRailDetails)
	}
	if w.inFlight {
		w.mu.Unlock()
		return nil, ErrSubmissionInFlight
	}
	if !acknowledged {
		w.mu.Unlock()
		return nil, ErrAcknowledgmentRequired
	}

	w.mergePayer(payer)
	if !w.payer.complete() {
		w.mu.Unlock()
		return nil, ErrPayerIncomplete
	}

	w.inFlight = true
	req := w.submitRequest()
	w.mu.Unlock()

	attempt, err := w.r.Manual.Submit(ctx, req, ev)

	w.mu.Lock()
	w.inFlight = false
	if err != nil {
		w.mu.Unlock()
		// stay on rail details with everything entered preserved, but the
		// failed token is burned: the next submission is a brand-new
		// attempt and must be distinguishable from this one
		if w.remint != nil {
			w.remint(w)
		}
		return nil, err
	}

	attempt.EvidenceURL = evidenceURL
	w.attempt = attempt
	w.step = StepConfirmation
	w.mu.Unlock()
	return attempt, nil
}

// ConfirmHostedReturn applies the verified outcome of a hosted-checkout
// return. Confirmed completes the wizard; failed (including a user cancel)
// lifts the suspension and leaves the user back on rail choice; anything
// else keeps the wizard suspended for a later return or status check.
func (w *Wizard) ConfirmHostedReturn(status reconcile.Status) (Step, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.awaitingReturn {
		return w.step, ErrNotAwaitingReturn
	}

	switch status {
	case reconcile.StatusConfirmed:
		w.awaitingReturn = false
		w.step = StepConfirmation
	case reconcile.StatusFailed:
		w.awaitingReturn = false
	default:
		// pending/unknown: stay suspended
	}
	return w.step, nil
}

// mergePayer applies user edits, keeping identity-sourced name and email
// read-only.
func (w *Wizard) mergePayer(p PayerInfo) {
	if w.payer.fromIdentity {
		if strings.TrimSpace(p.ContactNumber) != "" {
			w.payer.ContactNumber = p.ContactNumber
		}
		return
	}
	w.payer = p
}

// submitRequest flattens the wizard state for a rail call. Callers must
// hold w.mu.
func (w *Wizard) submitRequest() rails.SubmitRequest {
	return rails.SubmitRequest{
		ReferenceToken: w.referenceToken,
		Purchase:       w.purchase,
		ItemID:         w.cart.ItemID,
		UnitPrice:      w.cart.UnitPrice,
		Quantity:       w.cart.Quantity,
		Total:          w.cart.Total,
		Currency:       w.cart.Currency,
		PayerName:      w.payer.FullName,
		PayerPhone:     w.payer.ContactNumber,
		PayerEmail:     w.payer.Email,
	}
}

func (w *Wizard) touch() {
	w.mu.Lock()
	w.lastActive = time.Now()
	w.mu.Unlock()
}

func (w *Wizard) idle(now time.Time) (time.Duration, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	// an abandoned redirect has no client-side timeout; never sweep a
	// wizard still waiting on the processor
	if w.awaitingReturn || w.inFlight {
		return 0, false
	}
	return now.Sub(w.lastActive), true
}

// State is a read-only snapshot for the HTTP surface.
type State struct {
	ID             string              `json:"id"`
	Purchase       rails.Purchase      `json:"purchase"`
	ReferenceToken string              `json:"reference_token"`
	Step           Step                `json:"step"`
	Cart           Cart                `json:"cart"`
	Payer          PayerInfo           `json:"payer"`
	PayerLocked    bool                `json:"payer_locked"`
	Rail           rails.Kind          `json:"rail,omitempty"`
	AwaitingReturn bool                `json:"awaiting_return"`
	Session        *rails.Session      `json:"session,omitempty"`
	Attempt        *rails.OrderAttempt `json:"attempt,omitempty"`
	CreatedAt      time.Time           `json:"created_at"`
}

func (w *Wizard) Snapshot() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return State{
		ID:             w.id,
		Purchase:       w.purchase,
		ReferenceToken: w.referenceToken,
		Step:           w.step,
		Cart:           w.cart,
		Payer:          w.payer,
		PayerLocked:    w.payer.fromIdentity,
		Rail:           w.railKind,
		AwaitingReturn: w.awaitingReturn,
		Session:        w.session,
		Attempt:        w.attempt,
		CreatedAt:      w.createdAt,
	}
}
