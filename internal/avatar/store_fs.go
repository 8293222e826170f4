package avatar

import (
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"os"
	"path/filepath"

	"gatehouse/pkg/domain"
)

// FSStore writes avatars as JPEG files under a base directory.
type FSStore struct {
	dir     string
	quality int
}

// NewFSStore creates a filesystem avatar store rooted at dir.
func NewFSStore(dir string) *FSStore {
	return &FSStore{dir: dir, quality: 85}
}

// Save encodes the image to <dir>/<userID>.jpg, creating the directory if
// needed. The write goes through a temp file and rename so readers never see
// a partial avatar.
func (s *FSStore) Save(_ context.Context, userID domain.UserID, img image.Image) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create avatar dir: %w", err)
	}

	tmp, err := os.CreateTemp(s.dir, "avatar-*.jpg")
	if err != nil {
		return fmt.Errorf("create avatar temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := jpeg.Encode(tmp, img, &jpeg.Options{Quality: s.quality}); err != nil {
		tmp.Close()
		return fmt.Errorf("encode avatar: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close avatar temp file: %w", err)
	}

	final := filepath.Join(s.dir, userID.String()+".jpg")
	if err := os.Rename(tmp.Name(), final); err != nil {
		return fmt.Errorf("finalize avatar: %w", err)
	}
	return nil
}

// Path returns where a user's avatar lives.
func (s *FSStore) Path(userID domain.UserID) string {
	return filepath.Join(s.dir, userID.String()+".jpg")
}
