package store

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/graybeam/relaypoint/internal/model"
)

// LinkPrefix is the download path recorded on messages carrying a file.
const LinkPrefix = "/api/files/"

// BlobStore keeps uploaded file attachments on the local filesystem, one
// object per upload under a fresh unique name.
type BlobStore struct {
	root string
}

func NewBlobStore(root string) (*BlobStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("creating storage directory: %w", err)
	}
	return &BlobStore{root}, nil
}

// Store writes the attachment and returns the download link to record on the
// message. The original filename is kept in the object name for the benefit
// of the eventual download.
func (s *BlobStore) Store(filename string, r io.Reader) (string, error) {
	name := uuid.NewString() + "_" + filepath.Base(filename)

	f, err := os.Create(filepath.Join(s.root, name))
	if err != nil {
		return "", fmt.Errorf("creating blob: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(f, r); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("writing blob: %w", err)
	}

	return LinkPrefix + name, nil
}

// Open resolves an object name to a readable file and its content type.
// Names that escape the storage root are rejected.
func (s *BlobStore) Open(name string) (*os.File, string, error) {
	rootAbs, err := filepath.Abs(s.root)
	if err != nil {
		return nil, "", fmt.Errorf("resolving storage root: %w", err)
	}

	fullAbs, err := filepath.Abs(filepath.Join(s.root, name))
	if err != nil {
		return nil, "", fmt.Errorf("resolving blob path: %w", err)
	}
	if !strings.HasPrefix(fullAbs, rootAbs+string(os.PathSeparator)) {
		return nil, "", fmt.Errorf("blob name escapes storage root: %s", name)
	}

	contentType := "application/octet-stream"
	if mt, err := mimetype.DetectFile(fullAbs); err == nil {
		contentType = mt.String()
	}

	f, err := os.Open(fullAbs)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, "", model.ErrorFileNotFound
		}
		return nil, "", fmt.Errorf("opening blob: %w", err)
	}

	return f, contentType, nil
}
