package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObjectURL(t *testing.T) {
	assert.Equal(t, "https://cdn.example.com/uploads/a/b.png", ObjectURL("https://cdn.example.com/", "uploads", "a/b.png"))
	assert.Equal(t, "http://localhost:9000/uploads/x.txt", ObjectURL("http://localhost:9000", "uploads", "x.txt"))
}

func TestNewMinioStore_Config(t *testing.T) {
	_, err := NewMinioStore(MinioConfig{})
	assert.ErrorIs(t, err, ErrNotConfigured)

	_, err = NewMinioStore(MinioConfig{Endpoint: "localhost:9000", Bucket: "b"})
	assert.Error(t, err)

	s, err := NewMinioStore(MinioConfig{
		Endpoint:  "https://minio.example.com",
		AccessKey: "key",
		SecretKey: "secret",
		Bucket:    "uploads",
	})
	require.NoError(t, err)
	assert.Equal(t, "https://minio.example.com", s.publicURL)

	s, err = NewMinioStore(MinioConfig{
		Endpoint:  "localhost:9000",
		AccessKey: "key",
		SecretKey: "secret",
		Bucket:    "uploads",
		PublicURL: "https://files.example.com/",
	})
	require.NoError(t, err)
	assert.Equal(t, "https://files.example.com", s.publicURL)
}
