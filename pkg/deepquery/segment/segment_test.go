package segment

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlanFortySecondTrack(t *testing.T) {
	plan := Plan(40, 15, 2)
	assert.Equal(t, []Bounds{{0, 15}, {13, 28}, {26, 40}}, plan)
}

func TestPlanZeroDuration(t *testing.T) {
	assert.Empty(t, Plan(0, 15, 2))
}

func TestPlanRejectsInvalidParams(t *testing.T) {
	assert.Empty(t, Plan(60, 0, 0))
	assert.Empty(t, Plan(60, 10, 10))
	assert.Empty(t, Plan(60, 10, -1))
}

func TestPlanShortTrackSingleWindow(t *testing.T) {
	assert.Equal(t, []Bounds{{0, 5}}, Plan(5, 15, 2))
	assert.Empty(t, Plan(2.5, 15, 2), "a track shorter than the minimum window yields nothing")
}

func TestPlanProperties(t *testing.T) {
	for _, dur := range []float64{3, 7.5, 14, 15, 16, 29, 40, 61.3, 600} {
		for _, seg := range []float64{3, 5, 10, 15, 30} {
			for _, ov := range []float64{0, 1, 2, seg - 1} {
				if ov < 0 || ov >= seg {
					continue
				}
				name := fmt.Sprintf("d=%v/s=%v/o=%v", dur, seg, ov)
				plan := Plan(dur, seg, ov)
				step := seg - ov
				for i, b := range plan {
					assert.GreaterOrEqual(t, b.Length(), MinWindowLength, name)
					assert.LessOrEqual(t, b.End, dur, name)
					if i > 0 {
						assert.InDelta(t, step, b.Start-plan[i-1].Start, 1e-9, name)
					}
				}
			}
		}
	}
}

type fakeExtractor struct {
	fail    map[float64]bool
	calls   int
	lengths []float64
}

func (f *fakeExtractor) ExtractClip(_ context.Context, _, dst string, start, length float64) error {
	f.calls++
	f.lengths = append(f.lengths, length)
	if f.fail[start] {
		return errors.New("ffmpeg exited with status 1")
	}
	return os.WriteFile(dst, []byte("RIFF"), 0o644)
}

func TestMaterializeDropsFailedWindows(t *testing.T) {
	dir := t.TempDir()
	ext := &fakeExtractor{fail: map[float64]bool{13: true}}
	seg := &Segmenter{Extractor: ext}

	windows, failures, err := seg.Materialize(context.Background(), "/music/rec.wav", Plan(40, 15, 2), dir)
	require.NoError(t, err)
	assert.Equal(t, 3, ext.calls)
	assert.Equal(t, []float64{15, 15, 14}, ext.lengths)

	require.Len(t, windows, 2)
	assert.Equal(t, 0, windows[0].Index)
	assert.Equal(t, 1, windows[1].Index)
	assert.Equal(t, 26.0, windows[1].Start)
	assert.Equal(t, filepath.Join(dir, "segment_0002.wav"), windows[1].Clip)

	require.Len(t, failures, 1)
	assert.Equal(t, Bounds{13, 28}, failures[0].Bounds)
	assert.Contains(t, failures[0].Error(), "0:13-0:28")

	_, statErr := os.Stat(filepath.Join(dir, "segment_0001.wav"))
	assert.True(t, os.IsNotExist(statErr))
}

type silentExtractor struct{}

func (silentExtractor) ExtractClip(context.Context, string, string, float64, float64) error {
	return nil
}

func TestMaterializeRequiresArtifact(t *testing.T) {
	seg := &Segmenter{Extractor: silentExtractor{}}
	windows, failures, err := seg.Materialize(context.Background(), "src.wav", Plan(10, 15, 2), t.TempDir())
	require.NoError(t, err)
	assert.Empty(t, windows)
	assert.Len(t, failures, 1)
}

func TestMaterializeStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	seg := &Segmenter{Extractor: &fakeExtractor{}}
	_, _, err := seg.Materialize(ctx, "src.wav", Plan(40, 15, 2), t.TempDir())
	assert.ErrorIs(t, err, context.Canceled)
}
