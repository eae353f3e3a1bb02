package engine

import (
	"context"
	"errors"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func requireShell(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skipf("sh not available: %v", err)
	}
}

func TestQueryReturnsStdout(t *testing.T) {
	requireShell(t)

	q := NewCommandQuerier([]string{"sh", "-c", `echo "1;1;$0;0;0;lib.wav;0;5;20;12"`}, nil)
	out, err := q.Query(context.Background(), "/tmp/deepquery_1/segment_0000.wav")
	require.NoError(t, err)
	assert.Equal(t, "1;1;/tmp/deepquery_1/segment_0000.wav;0;0;lib.wav;0;5;20;12\n", out)
}

func TestQueryAttachesStderr(t *testing.T) {
	requireShell(t)

	q := NewCommandQuerier([]string{"sh", "-c", "echo 'index locked' >&2; exit 3"}, nil)
	_, err := q.Query(context.Background(), "clip.wav")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "index locked")
}

func TestQueryMissingExecutable(t *testing.T) {
	q := NewCommandQuerier([]string{"engine-binary-that-does-not-exist"}, nil)
	_, err := q.Query(context.Background(), "clip.wav")
	require.Error(t, err)
	assert.True(t, errors.Is(err, exec.ErrNotFound))
}

func TestQueryTimeout(t *testing.T) {
	requireShell(t)

	q := NewCommandQuerier([]string{"sh", "-c", "exec sleep 5"}, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := q.Query(ctx, "clip.wav")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestStoreUsesStoreCommand(t *testing.T) {
	requireShell(t)

	q := NewCommandQuerier(nil, []string{"sh", "-c", `echo "stored $0"`})
	out, err := q.Store(context.Background(), "song.mp3")
	require.NoError(t, err)
	assert.Equal(t, "stored song.mp3\n", out)
}

func TestEmptyCommand(t *testing.T) {
	q := &CommandQuerier{}
	_, err := q.Query(context.Background(), "clip.wav")
	assert.Error(t, err)
}

func TestParseCommand(t *testing.T) {
	assert.Equal(t, []string{"java", "-jar", "panako.jar", "query"}, ParseCommand("  java -jar panako.jar   query "))
	assert.Empty(t, ParseCommand(""))
}
