package media

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"
)

func TestFFmpegProber(t *testing.T) {
	p := NewFFmpegProber()
	if _, err := exec.LookPath(p.FFmpeg); err != nil {
		t.Skip("ffmpeg not on PATH")
	}
	if _, err := exec.LookPath(p.FFprobe); err != nil {
		t.Skip("ffprobe not on PATH")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	dir := t.TempDir()
	video := filepath.Join(dir, "clip.mp4")
	gen := exec.CommandContext(ctx, p.FFmpeg, "-y",
		"-f", "lavfi", "-i", "testsrc=duration=3:size=320x240:rate=10",
		"-pix_fmt", "yuv420p", video)
	if out, err := gen.CombinedOutput(); err != nil {
		t.Skipf("cannot synthesize test video: %v: %s", err, out)
	}

	d, err := p.Duration(ctx, video)
	if err != nil {
		t.Fatalf("Duration: %v", err)
	}
	if d != 3 {
		t.Fatalf("duration=%d want 3", d)
	}

	thumb, err := p.Thumbnail(ctx, video, dir)
	if err != nil {
		t.Fatalf("Thumbnail: %v", err)
	}
	if st, err := os.Stat(thumb); err != nil || st.Size() == 0 {
		t.Fatalf("thumbnail missing: %v", err)
	}
}

func TestFFmpegProber_MissingBinary(t *testing.T) {
	t.Parallel()

	p := FFmpegProber{FFprobe: "/nonexistent/ffprobe", FFmpeg: "/nonexistent/ffmpeg", SeekSeconds: 2, Width: 640}
	if _, err := p.Duration(context.Background(), "x.mp4"); err == nil {
		t.Fatalf("expected error")
	}
	if _, err := p.Thumbnail(context.Background(), "x.mp4", t.TempDir()); err == nil {
		t.Fatalf("expected error")
	}
}
