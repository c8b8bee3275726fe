package blob

import (
	"encoding/base64"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	s, err := NewStore(Config{BaseDir: dir, PublicURL: "/blobs"}, arbor.NewLogger())
	require.NoError(t, err)
	return s
}

func dataURI(mime string, raw []byte) string {
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(raw)
}

func TestUpload_WritesFileAndReturnsPublicURL(t *testing.T) {
	s := newTestStore(t)

	url, err := s.Upload(t.Context(), dataURI("image/png", []byte("fake png bytes")))
	require.NoError(t, err)
	assert.Contains(t, url, "/blobs/")
	assert.Contains(t, url, ".png")
}

func TestUpload_IdenticalPayloadDedupesByHash(t *testing.T) {
	s := newTestStore(t)
	raw := []byte("identical bytes")

	first, err := s.Upload(t.Context(), dataURI("image/jpeg", raw))
	require.NoError(t, err)
	second, err := s.Upload(t.Context(), dataURI("image/jpeg", raw))
	require.NoError(t, err)

	assert.Equal(t, first, second)

	var fileCount int
	filepath.Walk(s.cfg.BaseDir, func(path string, info os.FileInfo, err error) error {
		if err == nil && !info.IsDir() {
			fileCount++
		}
		return nil
	})
	assert.Equal(t, 1, fileCount)
}

func TestUpload_RejectsNonDataURI(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Upload(t.Context(), "https://example.com/image.png")
	assert.Error(t, err)
}

func TestUpload_UnknownMimeUsesBinExtension(t *testing.T) {
	s := newTestStore(t)

	url, err := s.Upload(t.Context(), dataURI("application/octet-stream", []byte("blob")))
	require.NoError(t, err)
	assert.Contains(t, url, ".bin")
}
