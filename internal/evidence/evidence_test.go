package evidence

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	pngHeader  = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}
	jpegHeader = []byte{0xff, 0xd8, 0xff, 0xe0}
	pdfHeader  = []byte("%PDF-1.4\n")
)

func pngBytes(size int) []byte {
	data := make([]byte, size)
	copy(data, pngHeader)
	return data
}

func TestValidateAcceptsAllowedTypes(t *testing.T) {
	tests := []struct {
		name        string
		data        []byte
		constraints Constraints
		wantMIME    string
	}{
		{"png receipt", pngBytes(512), TicketConstraints, "image/png"},
		{"jpeg receipt", append(jpegHeader, make([]byte, 64)...), TicketConstraints, "image/jpeg"},
		{"pdf receipt", pdfHeader, TicketConstraints, "application/pdf"},
		{"png donation slip", pngBytes(512), DonationConstraints, "image/png"},
		{"pdf donation slip", pdfHeader, DonationConstraints, "application/pdf"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := Validate(bytes.NewReader(tt.data), "proof.bin", tt.constraints)
			require.NoError(t, err)
			assert.Equal(t, tt.wantMIME, f.MIMEType)
			assert.Equal(t, int64(len(tt.data)), f.Size)
			assert.Equal(t, "proof.bin", f.Name)
		})
	}
}

func TestValidateMissing(t *testing.T) {
	_, err := Validate(nil, "proof.png", TicketConstraints)
	require.ErrorIs(t, err, ErrMissing)

	_, err = Validate(bytes.NewReader(nil), "proof.png", TicketConstraints)
	require.ErrorIs(t, err, ErrMissing)
}

func TestValidateTooLarge(t *testing.T) {
	over := pngBytes(int(TicketConstraints.MaxSizeBytes) + 1)

	_, err := Validate(bytes.NewReader(over), "big.png", TicketConstraints)
	require.ErrorIs(t, err, ErrTooLarge)
	assert.Equal(t, "too-large", Reason(err))
}

func TestValidateNoCapWhenUnset(t *testing.T) {
	// donation slips have no client-side byte ceiling
	big := pngBytes(6 << 20)

	f, err := Validate(bytes.NewReader(big), "slip.png", DonationConstraints)
	require.NoError(t, err)
	assert.Equal(t, int64(6<<20), f.Size)
}

func TestValidateUnsupportedType(t *testing.T) {
	// jpeg is fine for tickets but donations only take png/pdf
	data := append(jpegHeader, make([]byte, 64)...)

	_, err := Validate(bytes.NewReader(data), "slip.jpg", DonationConstraints)
	require.ErrorIs(t, err, ErrUnsupportedType)
	assert.Equal(t, "unsupported-type", Reason(err))
}

func TestValidateSniffsContentNotExtension(t *testing.T) {
	// a text file renamed to .png must still be rejected
	data := []byte("definitely not an image")

	_, err := Validate(bytes.NewReader(data), "receipt.png", TicketConstraints)
	require.ErrorIs(t, err, ErrUnsupportedType)
}

func TestReason(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{ErrMissing, "missing"},
		{ErrTooLarge, "too-large"},
		{ErrUnsupportedType, "unsupported-type"},
		{errors.New("something else"), "invalid"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, Reason(tt.err))
	}
}
