package media

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// Prober extracts playback metadata from local media files.
type Prober interface {
	// Duration returns the media duration rounded to whole seconds.
	Duration(ctx context.Context, path string) (int, error)
	// Thumbnail writes a JPEG frame of a video into dir and returns its path.
	Thumbnail(ctx context.Context, videoPath, dir string) (string, error)
}

// FFmpegProber shells out to ffprobe and ffmpeg.
type FFmpegProber struct {
	FFprobe string
	FFmpeg  string
	// SeekSeconds is the thumbnail frame offset.
	SeekSeconds float64
	// Width is the thumbnail width; height keeps the aspect ratio.
	Width int
}

// NewFFmpegProber uses the binaries found on PATH.
func NewFFmpegProber() FFmpegProber {
	return FFmpegProber{FFprobe: "ffprobe", FFmpeg: "ffmpeg", SeekSeconds: 2, Width: 640}
}

// Duration implements Prober.
func (p FFmpegProber) Duration(ctx context.Context, path string) (int, error) {
	out, err := exec.CommandContext(ctx, p.FFprobe,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	).Output()
	if err != nil {
		return 0, fmt.Errorf("ffprobe: %w", err)
	}

	s := strings.TrimSpace(string(out))
	d, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("ffprobe duration %q: %w", s, err)
	}
	return int(math.Round(d)), nil
}

// Thumbnail implements Prober.
func (p FFmpegProber) Thumbnail(ctx context.Context, videoPath, dir string) (string, error) {
	out := filepath.Join(dir, "thumb-"+uuid.NewString()+".jpg")

	cmd := exec.CommandContext(ctx, p.FFmpeg,
		"-y",
		"-ss", strconv.FormatFloat(p.SeekSeconds, 'f', -1, 64),
		"-i", videoPath,
		"-frames:v", "1",
		"-vf", fmt.Sprintf("scale=%d:-2", p.Width),
		out,
	)
	if b, err := cmd.CombinedOutput(); err != nil {
		Remove(out)
		return "", fmt.Errorf("ffmpeg thumbnail: %w: %s", err, lastLine(b))
	}
	if _, err := os.Stat(out); err != nil {
		return "", errors.New("ffmpeg thumbnail: no output written")
	}
	return out, nil
}

func lastLine(b []byte) string {
	s := strings.TrimSpace(string(b))
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}
