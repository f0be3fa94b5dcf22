package media

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
)

// ImagePreviewer writes a downscaled JPEG preview next to an image.
type ImagePreviewer struct {
	Width int
}

// Preview returns the path of the preview file. Images narrower than Width are re-encoded
// at their own size.
func (p ImagePreviewer) Preview(path string) (string, error) {
	width := p.Width
	if width <= 0 {
		width = 320
	}

	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return "", fmt.Errorf("preview open: %w", err)
	}
	if img.Bounds().Dx() > width {
		img = imaging.Resize(img, width, 0, imaging.Lanczos)
	}

	ext := filepath.Ext(path)
	out := strings.TrimSuffix(path, ext) + "-preview.jpg"
	if err := imaging.Save(img, out, imaging.JPEGQuality(80)); err != nil {
		return "", fmt.Errorf("preview save: %w", err)
	}
	return out, nil
}
