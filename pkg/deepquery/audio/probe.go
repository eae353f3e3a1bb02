package audio

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-audio/wav"
)

type ffprobeOutput struct {
	Format struct {
		Filename string `json:"filename"`
		Duration string `json:"duration"`
		Format   string `json:"format_name"`
	} `json:"format"`
	Streams []ffprobeStream `json:"streams"`
}

type ffprobeStream struct {
	CodecType string `json:"codec_type"`
	Duration  string `json:"duration"`
}

func (p *ffprobeOutput) duration() (float64, error) {
	raw := p.Format.Duration
	if raw == "" {
		for _, s := range p.Streams {
			if s.CodecType == "audio" && s.Duration != "" {
				raw = s.Duration
				break
			}
		}
	}
	if raw == "" || raw == "N/A" {
		return 0, errors.New("ffprobe reported no duration")
	}
	d, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing duration %q: %w", raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("negative duration %v", d)
	}
	return d, nil
}

// FFProbe reads a file's duration with ffprobe. When the binary is missing it
// falls back to parsing WAV headers directly.
type FFProbe struct {
	Binary  string
	Timeout time.Duration
}

func NewFFProbe() *FFProbe {
	return &FFProbe{Binary: "ffprobe", Timeout: 30 * time.Second}
}

func (p *FFProbe) ProbeDuration(ctx context.Context, path string) (float64, error) {
	if _, err := os.Stat(path); err != nil {
		return 0, err
	}

	if _, ok := ctx.Deadline(); !ok && p.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.Timeout)
		defer cancel()
	}

	bin := p.Binary
	if bin == "" {
		bin = "ffprobe"
	}
	cmd := exec.CommandContext(
		ctx,
		bin,
		"-v", "error",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	)

	out, err := cmd.Output()
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) && isWAV(path) {
			return WAVDuration(path)
		}
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		return 0, fmt.Errorf("ffprobe failed: %w", err)
	}

	var probe ffprobeOutput
	if err := json.Unmarshal(out, &probe); err != nil {
		return 0, fmt.Errorf("decoding ffprobe output: %w", err)
	}
	return probe.duration()
}

// WAVProber reads durations from WAV headers only; no external tools involved.
type WAVProber struct{}

func (WAVProber) ProbeDuration(_ context.Context, path string) (float64, error) {
	return WAVDuration(path)
}

// WAVDuration returns the length of a PCM WAV file in seconds.
func WAVDuration(path string) (float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	d := wav.NewDecoder(f)
	if !d.IsValidFile() {
		return 0, fmt.Errorf("%s is not a valid WAV file", filepath.Base(path))
	}
	dur, err := d.Duration()
	if err != nil {
		return 0, fmt.Errorf("reading WAV duration: %w", err)
	}
	return dur.Seconds(), nil
}

func isWAV(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".wav")
}
