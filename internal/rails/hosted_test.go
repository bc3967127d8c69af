package rails

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sessionPayload struct {
	Amount         int64  `json:"amount"`
	Currency       string `json:"currency"`
	ReferenceToken string `json:"reference_token"`
	PublishableKey string `json:"publishable_key"`
	SuccessURL     string `json:"success_url"`
	CancelURL      string `json:"cancel_url"`
}

func TestCreateSessionConvertsToMinorUnits(t *testing.T) {
	tests := []struct {
		name       string
		total      int64
		wantAmount int64
	}{
		{"three tickets", 30000, 3000000},
		{"single ticket", 10000, 1000000},
		{"donation", 2500, 250000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got sessionPayload
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				require.Equal(t, "/payment-sessions", r.URL.Path)
				require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
				json.NewEncoder(w).Encode(map[string]string{
					"session_id":   "cs_test_1",
					"redirect_url": "https://pay.example.com/cs_test_1",
				})
			}))
			defer srv.Close()

			r := New(Config{
				BackendURL:     srv.URL,
				PublishableKey: "pk_test_abc",
				SuccessURL:     "https://portal.example.com/payments/return/success",
				CancelURL:      "https://portal.example.com/payments/return/cancel",
			})

			req := testSubmitRequest(PurchaseTicket)
			req.Total = tt.total

			sess, err := r.Hosted.CreateSession(context.Background(), req)
			require.NoError(t, err)

			assert.Equal(t, tt.wantAmount, got.Amount)
			assert.Equal(t, "NPR", got.Currency)
			assert.Equal(t, "pk_test_abc", got.PublishableKey)
			assert.Equal(t, "cs_test_1", sess.SessionID)
			assert.Equal(t, "https://pay.example.com/cs_test_1", sess.RedirectURL)
		})
	}
}

func TestCreateSessionCallbacksCarryReference(t *testing.T) {
	var got sessionPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		json.NewEncoder(w).Encode(map[string]string{
			"session_id":   "cs_test_2",
			"redirect_url": "https://pay.example.com/cs_test_2",
		})
	}))
	defer srv.Close()

	r := New(Config{
		BackendURL: srv.URL,
		SuccessURL: "https://portal.example.com/payments/return/success",
		CancelURL:  "https://portal.example.com/payments/return/cancel",
	})

	_, err := r.Hosted.CreateSession(context.Background(), testSubmitRequest(PurchaseTicket))
	require.NoError(t, err)

	assert.Equal(t, "https://portal.example.com/payments/return/success?reference=TKT-00042", got.SuccessURL)
	assert.Equal(t, "https://portal.example.com/payments/return/cancel?reference=TKT-00042", got.CancelURL)
}

func TestCreateSessionBackendFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "processor unavailable", http.StatusBadGateway)
	}))
	defer srv.Close()

	r := New(Config{BackendURL: srv.URL})
	sess, err := r.Hosted.CreateSession(context.Background(), testSubmitRequest(PurchaseTicket))
	require.Nil(t, sess)

	var submitErr *SubmitError
	require.ErrorAs(t, err, &submitErr)
	assert.Equal(t, http.StatusBadGateway, submitErr.StatusCode)
	assert.Contains(t, submitErr.Body, "processor unavailable")
}

func TestCreateSessionMissingRedirectURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"session_id": "cs_test_3"})
	}))
	defer srv.Close()

	r := New(Config{BackendURL: srv.URL})
	sess, err := r.Hosted.CreateSession(context.Background(), testSubmitRequest(PurchaseTicket))
	require.Error(t, err)
	assert.Nil(t, sess)
}

func TestWithReference(t *testing.T) {
	tests := []struct {
		name string
		base string
		want string
	}{
		{"bare url", "https://x.test/return", "https://x.test/return?reference=TKT-00001"},
		{"existing query", "https://x.test/return?lang=en", "https://x.test/return?lang=en&reference=TKT-00001"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, withReference(tt.base, "TKT-00001"))
		})
	}
}
