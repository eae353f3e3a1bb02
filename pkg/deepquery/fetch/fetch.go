// Package fetch resolves query sources: remote recordings are downloaded with
// yt-dlp and local files are fingerprinted by content digest.
package fetch

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/OneOfOne/xxhash"
	"github.com/lrstanley/go-ytdlp"

	"github.com/himanishpuri/DeepQuery/pkg/utils"
)

// Downloader fetches the audio track of a video URL into Dir as WAV.
type Downloader struct {
	Dir     string
	Timeout time.Duration
}

func NewDownloader(dir string) *Downloader {
	return &Downloader{Dir: dir, Timeout: 5 * time.Minute}
}

// Download returns the path of the extracted audio. Repeated downloads of
// the same video reuse the existing file.
func (d *Downloader) Download(ctx context.Context, url string) (string, error) {
	if !utils.IsYouTubeURL(url) {
		return "", fmt.Errorf("unsupported source URL: %s", url)
	}
	id, err := utils.ExtractYouTubeID(url)
	if err != nil {
		return "", err
	}

	if err := utils.MakeDir(d.Dir); err != nil {
		return "", fmt.Errorf("failed to create download directory: %w", err)
	}

	target := filepath.Join(d.Dir, id+".wav")
	if _, err := os.Stat(target); err == nil {
		return target, nil
	}

	if _, ok := ctx.Deadline(); !ok && d.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.Timeout)
		defer cancel()
	}

	dl := ytdlp.New().
		NoPlaylist().
		ExtractAudio().
		AudioFormat("wav").
		Output(filepath.Join(d.Dir, id+".%(ext)s"))

	res, err := dl.Run(ctx, url)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		stderr := ""
		if res != nil {
			stderr = strings.TrimSpace(res.Stderr)
		}
		return "", fmt.Errorf("yt-dlp download failed: %v\nstderr: %s", err, stderr)
	}

	if _, err := os.Stat(target); err != nil {
		return "", fmt.Errorf("downloaded audio not found for video %s: %w", id, err)
	}
	return target, nil
}

// Digest returns the xxhash64 of a file's contents as 16 hex digits.
func Digest(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := xxhash.New64()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hashing %s: %w", filepath.Base(path), err)
	}
	return fmt.Sprintf("%016x", h.Sum64()), nil
}
