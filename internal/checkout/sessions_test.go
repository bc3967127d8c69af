package checkout

import (
	"context"
	"testing"
	"time"

	"arabesque/internal/rails"
	"arabesque/internal/reference"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSessions(t *testing.T, ttl time.Duration) *Sessions {
	t.Helper()
	s, err := NewSessions("test-salt", ttl, reference.NewGenerator(), okBackend(t))
	require.NoError(t, err)
	t.Cleanup(s.Stop)
	return s
}

func TestOpenRegistersBothIndexes(t *testing.T) {
	s := newTestSessions(t, time.Hour)

	w, err := s.Open(OpenParams{
		Purchase:  rails.PurchaseDonation,
		ItemID:    "annual-fund",
		UnitPrice: 2500,
		Currency:  "NPR",
	})
	require.NoError(t, err)

	assert.GreaterOrEqual(t, len(w.ID()), 10)
	assert.Regexp(t, `^DON-\d{5}$`, w.ReferenceToken())

	byID, ok := s.Get(w.ID())
	require.True(t, ok)
	assert.Same(t, w, byID)

	byToken, ok := s.ByToken(w.ReferenceToken())
	require.True(t, ok)
	assert.Same(t, w, byToken)

	assert.Equal(t, 1, s.Count())
}

func TestOpenAssignsDistinctIDs(t *testing.T) {
	s := newTestSessions(t, time.Hour)

	seen := make(map[string]struct{})
	for i := 0; i < 25; i++ {
		w, err := s.Open(OpenParams{
			Purchase:  rails.PurchaseTicket,
			ItemID:    "showcase-2026",
			UnitPrice: 10000,
			Currency:  "NPR",
		})
		require.NoError(t, err)
		seen[w.ID()] = struct{}{}
	}
	assert.Len(t, seen, 25)
}

func TestCloseDiscardsTheWizard(t *testing.T) {
	s := newTestSessions(t, time.Hour)

	w, err := s.Open(OpenParams{
		Purchase:  rails.PurchaseTicket,
		ItemID:    "showcase-2026",
		UnitPrice: 10000,
		Currency:  "NPR",
	})
	require.NoError(t, err)

	require.True(t, s.Close(w.ID()))

	_, ok := s.Get(w.ID())
	assert.False(t, ok)
	_, ok = s.ByToken(w.ReferenceToken())
	assert.False(t, ok)

	assert.False(t, s.Close(w.ID()))
	assert.Zero(t, s.Count())
}

func TestSweepCollectsIdleWizards(t *testing.T) {
	s := newTestSessions(t, 20*time.Millisecond)

	_, err := s.Open(OpenParams{
		Purchase:  rails.PurchaseTicket,
		ItemID:    "showcase-2026",
		UnitPrice: 10000,
		Currency:  "NPR",
	})
	require.NoError(t, err)
	require.Equal(t, 1, s.Count())

	assert.Eventually(t, func() bool { return s.Count() == 0 }, time.Second, 10*time.Millisecond)
}

func TestStopHaltsSweeping(t *testing.T) {
	s := newTestSessions(t, 20*time.Millisecond)
	s.Stop()

	_, err := s.Open(OpenParams{
		Purchase:  rails.PurchaseTicket,
		ItemID:    "showcase-2026",
		UnitPrice: 10000,
		Currency:  "NPR",
	})
	require.NoError(t, err)

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 1, s.Count())

	// repeated stops are harmless
	s.Stop()
}

func TestSweepSparesSuspendedWizards(t *testing.T) {
	s := newTestSessions(t, 20*time.Millisecond)

	w, err := s.Open(OpenParams{
		Purchase:  rails.PurchaseTicket,
		ItemID:    "showcase-2026",
		UnitPrice: 10000,
		Currency:  "NPR",
	})
	require.NoError(t, err)

	require.NoError(t, w.Advance())
	_, err = w.ChooseRail(context.Background(), rails.KindHostedRedirect)
	require.NoError(t, err)

	// an abandoned redirect has no client-side timeout
	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, 1, s.Count())
}
