// Package segment plans overlapping windows over a recording and cuts them into clips.
package segment

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/himanishpuri/DeepQuery/pkg/models"
)

// MinWindowLength is the shortest window worth querying, in seconds.
// A shorter tail ends the plan instead of producing a spurious tiny match.
const MinWindowLength = 3.0

// ClipPattern names extracted clips inside the scratch directory.
const ClipPattern = "segment_%04d.wav"

// Bounds is a planned window before extraction.
type Bounds struct {
	Start float64
	End   float64
}

// Length returns the window duration in seconds.
func (b Bounds) Length() float64 {
	return b.End - b.Start
}

// Plan lays out windows of segmentLength seconds every segmentLength-overlap seconds.
// Invalid parameters or a non-positive duration yield no windows.
func Plan(duration, segmentLength, overlap float64) []Bounds {
	if duration <= 0 || segmentLength <= 0 || overlap < 0 || overlap >= segmentLength {
		return nil
	}

	step := segmentLength - overlap
	var plan []Bounds
	for k := 0; ; k++ {
		start := float64(k) * step
		if start >= duration {
			break
		}
		b := Bounds{Start: start, End: math.Min(start+segmentLength, duration)}
		if b.Length() < MinWindowLength {
			break
		}
		plan = append(plan, b)
	}
	return plan
}

// Extractor cuts [start, start+length) of src into a new audio file at dst.
type Extractor interface {
	ExtractClip(ctx context.Context, src, dst string, start, length float64) error
}

// Failure records a planned window whose clip could not be produced.
type Failure struct {
	Bounds Bounds
	Err    error
}

func (f Failure) Error() string {
	return fmt.Sprintf("extract %s-%s: %v", models.FormatClock(f.Bounds.Start), models.FormatClock(f.Bounds.End), f.Err)
}

// Segmenter materializes a plan through an Extractor.
type Segmenter struct {
	Extractor Extractor
	Timeout   time.Duration // per clip; zero leaves the parent deadline alone
}

// Materialize extracts every planned window into dir. Windows whose extraction fails
// are dropped and reported as failures; the survivors are indexed 0..n-1 in plan order.
// Only cancellation of ctx is returned as an error.
func (s *Segmenter) Materialize(ctx context.Context, src string, plan []Bounds, dir string) ([]models.Window, []Failure, error) {
	windows := make([]models.Window, 0, len(plan))
	var failures []Failure

	for i, b := range plan {
		if err := ctx.Err(); err != nil {
			return nil, failures, err
		}

		dst := filepath.Join(dir, fmt.Sprintf(ClipPattern, i))
		if err := s.extract(ctx, src, dst, b); err != nil {
			os.Remove(dst)
			failures = append(failures, Failure{Bounds: b, Err: err})
			continue
		}

		windows = append(windows, models.Window{
			Index: len(windows),
			Start: b.Start,
			End:   b.End,
			Clip:  dst,
		})
	}

	return windows, failures, nil
}

func (s *Segmenter) extract(ctx context.Context, src, dst string, b Bounds) error {
	if s.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.Timeout)
		defer cancel()
	}
	if err := s.Extractor.ExtractClip(ctx, src, dst, b.Start, b.Length()); err != nil {
		return err
	}
	if _, err := os.Stat(dst); err != nil {
		return fmt.Errorf("clip missing after extraction: %w", err)
	}
	return nil
}
