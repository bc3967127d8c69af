package reference

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateFormat(t *testing.T) {
	gen := NewGenerator()

	tests := []struct {
		name    string
		kind    Kind
		pattern string
	}{
		{"ticket", KindTicket, `^TKT-\d{5}$`},
		{"donation", KindDonation, `^DON-\d{5}$`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			re := regexp.MustCompile(tt.pattern)
			for i := 0; i < 50; i++ {
				token := gen.Generate(tt.kind)
				require.Regexp(t, re, token)
			}
		})
	}
}

func TestGenerateIsNotSequential(t *testing.T) {
	gen := NewGenerator()

	seen := make(map[string]struct{})
	for i := 0; i < 20; i++ {
		seen[gen.Generate(KindTicket)] = struct{}{}
	}
	// collisions are possible but twenty draws from a 100k space collapsing
	// to a single value would mean the generator is broken
	assert.Greater(t, len(seen), 1)
}
