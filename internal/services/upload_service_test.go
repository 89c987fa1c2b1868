package services

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingStore struct {
	key         string
	deadline    time.Time
	hasDeadline bool
}

func (s *recordingStore) Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) (string, error) {
	s.key = key
	s.deadline, s.hasDeadline = ctx.Deadline()
	return "https://files.example.com/" + key, nil
}

func (s *recordingStore) Delete(ctx context.Context, key string) error {
	return nil
}

func TestUploadService_StoreBoundsTheCall(t *testing.T) {
	store := &recordingStore{}
	uploads := NewUploadService(store, 1024, 5*time.Second)

	started := time.Now()
	url, err := uploads.Store(context.Background(), Caller{ID: 3}, "tasks/9", Upload{
		FileName: "Report.PDF",
		Size:     5,
		Body:     strings.NewReader("hello"),
	})
	require.NoError(t, err)

	assert.True(t, store.hasDeadline)
	assert.WithinDuration(t, started.Add(5*time.Second), store.deadline, time.Second)
	assert.True(t, strings.HasPrefix(store.key, "tasks/9/3/"))
	assert.True(t, strings.HasSuffix(store.key, ".pdf"))
	assert.Equal(t, "https://files.example.com/"+store.key, url)
}

func TestUploadService_Rejections(t *testing.T) {
	_, err := NewUploadService(nil, 0, 0).Store(context.Background(), Caller{ID: 1}, "", Upload{Size: 1})
	assert.ErrorIs(t, err, ErrStorageNotConfigured)

	uploads := NewUploadService(&recordingStore{}, 4, 0)
	_, err = uploads.Store(context.Background(), Caller{ID: 1}, "", Upload{Size: 0})
	assert.ErrorIs(t, err, ErrEmptyFile)
	_, err = uploads.Store(context.Background(), Caller{ID: 1}, "", Upload{Size: 5})
	assert.ErrorIs(t, err, ErrFileTooLarge)
}
