package evidence

import (
	"bytes"
	"context"
	"fmt"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
)

// PreviewStore archives a validated evidence file with the media store and
// returns a displayable URL for the confirmation and refund screens.
type PreviewStore struct {
	cld    *cloudinary.Cloudinary
	folder string
}

func NewPreviewStore(cld *cloudinary.Cloudinary, folder string) *PreviewStore {
	return &PreviewStore{cld: cld, folder: folder}
}

// Upload stores f under publicID. Only call this after Validate accepted
// the file; the store does no checking of its own.
func (s *PreviewStore) Upload(ctx context.Context, f *File, publicID string) (string, error) {
	resp, err := s.cld.Upload.Upload(
		ctx,
		bytes.NewReader(f.Bytes),
		uploader.UploadParams{
			Folder:    s.folder,
			PublicID:  publicID,
			Overwrite: api.Bool(false),
		},
	)
	if err != nil {
		return "", fmt.Errorf("evidence upload: %w", err)
	}
	return resp.SecureURL, nil
}
