package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/yukikurage/circuit/internal/storage"
)

var (
	ErrStorageNotConfigured = errors.New("file storage is not configured")
	ErrFileTooLarge         = errors.New("file is too large")
	ErrEmptyFile            = errors.New("file is empty")
)

// Upload is a file received from a client.
type Upload struct {
	FileName    string
	Size        int64
	ContentType string
	Body        io.Reader
}

// UploadService stores client files in the object store under random keys.
type UploadService struct {
	store    storage.ObjectStore
	maxBytes int64
	timeout  time.Duration
}

// NewUploadService accepts a nil store; uploads then fail with ErrStorageNotConfigured.
// A zero timeout leaves the request context as is.
func NewUploadService(store storage.ObjectStore, maxBytes int64, timeout time.Duration) *UploadService {
	return &UploadService{store: store, maxBytes: maxBytes, timeout: timeout}
}

// Store uploads the file under prefix and returns its hosted URL.
func (s *UploadService) Store(ctx context.Context, caller Caller, prefix string, upload Upload) (string, error) {
	if s == nil || s.store == nil {
		return "", ErrStorageNotConfigured
	}
	if upload.Size <= 0 {
		return "", ErrEmptyFile
	}
	if s.maxBytes > 0 && upload.Size > s.maxBytes {
		return "", ErrFileTooLarge
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	key := objectKey(prefix, caller.ID, upload.FileName)
	url, err := s.store.Put(ctx, key, upload.Body, upload.Size, upload.ContentType)
	if err != nil {
		return "", fmt.Errorf("failed to store file: %w", err)
	}
	return url, nil
}

func objectKey(prefix string, userID uint64, fileName string) string {
	ext := strings.ToLower(filepath.Ext(fileName))
	if len(ext) > 10 {
		ext = ""
	}
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		prefix = "uploads"
	}
	return fmt.Sprintf("%s/%d/%s%s", prefix, userID, uuid.NewString(), ext)
}
