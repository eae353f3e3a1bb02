package audio

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"time"

	"github.com/go-audio/wav"

	"github.com/himanishpuri/DeepQuery/pkg/utils"
)

// ExtractConfig describes the clips the point-query engine expects.
type ExtractConfig struct {
	SampleRate int // e.g. 16000
	Channels   int // 1 for mono
}

// FFmpegExtractor cuts clips out of a source recording with ffmpeg.
type FFmpegExtractor struct {
	Binary  string
	Config  ExtractConfig
	Timeout time.Duration
}

func NewFFmpegExtractor(cfg ExtractConfig) *FFmpegExtractor {
	return &FFmpegExtractor{Binary: "ffmpeg", Config: cfg, Timeout: 60 * time.Second}
}

// ExtractClip writes [start, start+length) of src to dst as 16-bit PCM WAV.
// On failure no file is left at dst.
func (e *FFmpegExtractor) ExtractClip(ctx context.Context, src, dst string, start, length float64) error {
	cfg := e.Config
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 16000
	}
	if cfg.Channels == 0 {
		cfg.Channels = 1
	}

	if _, ok := ctx.Deadline(); !ok && e.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.Timeout)
		defer cancel()
	}

	bin := e.Binary
	if bin == "" {
		bin = "ffmpeg"
	}

	tmpPath := dst + ".tmp.wav"
	defer os.Remove(tmpPath)

	cmd := exec.CommandContext(
		ctx,
		bin,
		"-y",
		"-v", "error",
		"-ss", formatSeconds(start),
		"-i", src,
		"-t", formatSeconds(length),
		"-ac", strconv.Itoa(cfg.Channels),
		"-ar", strconv.Itoa(cfg.SampleRate),
		"-c:a", "pcm_s16le",
		tmpPath,
	)

	if out, err := cmd.CombinedOutput(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("ffmpeg failed: %v (%s)", err, out)
	}

	if err := validateWAV(tmpPath); err != nil {
		return err
	}
	return utils.MoveFile(tmpPath, dst)
}

func validateWAV(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	if !wav.NewDecoder(f).IsValidFile() {
		return fmt.Errorf("ffmpeg produced an invalid WAV file")
	}
	return nil
}

func formatSeconds(s float64) string {
	return strconv.FormatFloat(s, 'f', 3, 64)
}
