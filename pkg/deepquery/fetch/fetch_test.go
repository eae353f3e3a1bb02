package fetch

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDigest(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.wav")
	b := filepath.Join(dir, "b.wav")
	c := filepath.Join(dir, "c.wav")
	require.NoError(t, os.WriteFile(a, []byte("same bytes"), 0o644))
	require.NoError(t, os.WriteFile(b, []byte("same bytes"), 0o644))
	require.NoError(t, os.WriteFile(c, []byte("other bytes"), 0o644))

	da, err := Digest(a)
	require.NoError(t, err)
	db, err := Digest(b)
	require.NoError(t, err)
	dc, err := Digest(c)
	require.NoError(t, err)

	assert.Len(t, da, 16)
	assert.Equal(t, da, db)
	assert.NotEqual(t, da, dc)

	_, err = Digest(filepath.Join(dir, "missing.wav"))
	assert.Error(t, err)
}

func TestDownloadRejectsForeignURL(t *testing.T) {
	d := NewDownloader(t.TempDir())
	_, err := d.Download(context.Background(), "https://example.com/track.mp3")
	assert.Error(t, err)
}

func TestDownloadReusesExistingFile(t *testing.T) {
	dir := t.TempDir()
	existing := filepath.Join(dir, "dQw4w9WgXcQ.wav")
	require.NoError(t, os.WriteFile(existing, []byte("RIFF"), 0o644))

	d := NewDownloader(dir)
	path, err := d.Download(context.Background(), "https://youtu.be/dQw4w9WgXcQ")
	require.NoError(t, err)
	assert.Equal(t, existing, path)
}
