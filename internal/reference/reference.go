package reference

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"time"
)

// Kind selects the user-facing prefix for a purchase attempt.
type Kind string

const (
	KindTicket   Kind = "TKT"
	KindDonation Kind = "DON"
)

type Generator struct{}

func NewGenerator() *Generator {
	return &Generator{}
}

// Generate returns a short display token like "TKT-48291" used to correlate
// an attempt with later status checks and with support.
//
// Tokens are NOT checked against existing orders. Two attempts can collide,
// and a retry after a transient failure always mints a new token, which can
// leave the old one orphaned. The backend owns reconciliation of that.
func (g *Generator) Generate(kind Kind) string {
	n, err := rand.Int(rand.Reader, big.NewInt(100000))
	if err != nil {
		// crypto/rand only fails when the OS entropy source is unusable;
		// keep checkout alive with a weaker draw rather than erroring out.
		return fmt.Sprintf("%s-%05d", kind, time.Now().UnixNano()%100000)
	}
	return fmt.Sprintf("%s-%05d", kind, n.Int64())
}
