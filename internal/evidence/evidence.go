package evidence

import (
	"errors"
	"fmt"
	"io"

	"github.com/gabriel-vasile/mimetype"
)

var (
	ErrMissing         = errors.New("evidence: file is missing")
	ErrTooLarge        = errors.New("evidence: file exceeds the size limit")
	ErrUnsupportedType = errors.New("evidence: unsupported file type")
)

// Constraints bound what a flow accepts as proof of payment.
type Constraints struct {
	AllowedMIMETypes []string
	MaxSizeBytes     int64 // 0 means no client-side cap; the backend enforces its own
}

var (
	// TicketConstraints applies to ticket purchases and refund receipts.
	TicketConstraints = Constraints{
		AllowedMIMETypes: []string{"image/jpeg", "image/png", "application/pdf"},
		MaxSizeBytes:     5 << 20,
	}

	// DonationConstraints: donation slips are PNG/PDF only and the byte
	// ceiling is enforced server-side, so only the type set is pinned here.
	DonationConstraints = Constraints{
		AllowedMIMETypes: []string{"image/png", "application/pdf"},
	}
)

// File is a validated proof-of-payment artifact held in memory for the
// lifetime of one submission.
type File struct {
	Name     string
	MIMEType string
	Size     int64
	Bytes    []byte
}

// Validate reads the upload and checks it against c. The MIME type is
// sniffed from the content, never taken from the client-supplied header.
// It is a pure check: no preview or upload happens here, and every failure
// comes back as one of the package sentinels (possibly wrapped with detail).
func Validate(r io.Reader, name string, c Constraints) (*File, error) {
	if r == nil {
		return nil, ErrMissing
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("evidence: read upload: %w", err)
	}
	if len(data) == 0 {
		return nil, ErrMissing
	}

	if c.MaxSizeBytes > 0 && int64(len(data)) > c.MaxSizeBytes {
		return nil, fmt.Errorf("%w: %d bytes over a %d byte limit", ErrTooLarge, len(data), c.MaxSizeBytes)
	}

	mt := mimetype.Detect(data)
	for _, allowed := range c.AllowedMIMETypes {
		if mt.Is(allowed) {
			return &File{
				Name:     name,
				MIMEType: mt.String(),
				Size:     int64(len(data)),
				Bytes:    data,
			}, nil
		}
	}

	return nil, fmt.Errorf("%w: detected %s", ErrUnsupportedType, mt.String())
}

// Reason maps a validation failure to its wire-level reason code.
func Reason(err error) string {
	switch {
	case errors.Is(err, ErrMissing):
		return "missing"
	case errors.Is(err, ErrTooLarge):
		return "too-large"
	case errors.Is(err, ErrUnsupportedType):
		return "unsupported-type"
	default:
		return "invalid"
	}
}
