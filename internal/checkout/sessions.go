package checkout

import (
	"fmt"
	"sync"
	"time"

	"arabesque/internal/rails"
	"arabesque/internal/reference"

	"github.com/speps/go-hashids/v2"
)

// Sessions holds every live wizard, keyed by an opaque id and indexed by
// reference token for the hosted-checkout return handlers. Wizards exist
// only in memory: closing one discards its state, and idle ones are swept
// after the TTL.
type Sessions struct {
	mu      sync.RWMutex
	byID    map[string]*Wizard
	byToken map[string]*Wizard
	seq     int64

	ttl  time.Duration
	hash *hashids.HashID
	gen  *reference.Generator
	r    *rails.Rails

	done     chan struct{}
	stopOnce sync.Once
}

func NewSessions(salt string, ttl time.Duration, gen *reference.Generator, r *rails.Rails) (*Sessions, error) {
	hd := hashids.NewData()
	hd.Salt = salt
	hd.MinLength = 10
	h, err := hashids.NewWithData(hd)
	if err != nil {
		return nil, fmt.Errorf("checkout: session id encoder: %w", err)
	}

	s := &Sessions{
		byID:    make(map[string]*Wizard),
		byToken: make(map[string]*Wizard),
		ttl:     ttl,
		hash:    h,
		gen:     gen,
		r:       r,
		done:    make(chan struct{}),
	}
	go s.sweep()
	return s, nil
}

// OpenParams describes a new checkout attempt. Prefill carries the
// authenticated identity when there is one.
type OpenParams struct {
	Purchase  rails.Purchase
	ItemID    string
	UnitPrice int64
	Currency  string
	Prefill   *PayerInfo
}

// Open creates a wizard on the item-selection step with a fresh reference
// token and registers it under a new session id.
func (s *Sessions) Open(params OpenParams) (*Wizard, error) {
	kind := reference.KindTicket
	if params.Purchase == rails.PurchaseDonation {
		kind = reference.KindDonation
	}
	token := s.gen.Generate(kind)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	id, err := s.hash.EncodeInt64([]int64{s.seq, time.Now().UnixNano() % 9973})
	if err != nil {
		return nil, fmt.Errorf("checkout: encode session id: %w", err)
	}

	w := newWizard(id, params.Purchase, newCart(params.ItemID, params.UnitPrice, params.Currency), token, params.Prefill, s.r)
	w.remint = s.remintToken
	s.byID[id] = w
	s.byToken[token] = w
	return w, nil
}

// remintToken replaces a wizard's reference token and moves the index
// entry with it. A failed manual submission burns its token; the retry
// carries a fresh one so the backend can tell the attempts apart.
func (s *Sessions) remintToken(w *Wizard) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w.mu.Lock()
	defer w.mu.Unlock()

	kind := reference.KindTicket
	if w.purchase == rails.PurchaseDonation {
		kind = reference.KindDonation
	}

	delete(s.byToken, w.referenceToken)
	w.referenceToken = s.gen.Generate(kind)
	// a wizard closed mid-flight stays out of the index
	if _, open := s.byID[w.id]; open {
		s.byToken[w.referenceToken] = w
	}
}

func (s *Sessions) Get(id string) (*Wizard, bool) {
	s.mu.RLock()
	w, ok := s.byID[id]
	s.mu.RUnlock()
	if ok {
		w.touch()
	}
	return w, ok
}

// ByToken resolves the wizard a hosted-checkout return belongs to.
func (s *Sessions) ByToken(token string) (*Wizard, bool) {
	s.mu.RLock()
	w, ok := s.byToken[token]
	s.mu.RUnlock()
	if ok {
		w.touch()
	}
	return w, ok
}

// Close discards a wizard. Any in-flight request is not aborted; it is
// left to finish or fail against a wizard nobody can reach anymore.
func (s *Sessions) Close(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.byID[id]
	if !ok {
		return false
	}
	delete(s.byID, id)
	delete(s.byToken, w.referenceToken)
	return true
}

func (s *Sessions) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}

// Stop ends the sweep goroutine. Live wizards stay reachable; they just
// stop being collected.
func (s *Sessions) Stop() {
	s.stopOnce.Do(func() { close(s.done) })
}

func (s *Sessions) sweep() {
	ticker := time.NewTicker(s.ttl)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case now := <-ticker.C:
			select {
			case <-s.done:
				return
			default:
			}
			s.mu.Lock()
			for id, w := range s.byID {
				if idle, sweepable := w.idle(now); sweepable && idle > s.ttl {
					delete(s.byID, id)
					delete(s.byToken, w.referenceToken)
				}
			}
			s.mu.Unlock()
		}
	}
}
