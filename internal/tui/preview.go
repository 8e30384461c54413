package tui

import (
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/nfnt/resize"

	"github.com/Brownie44l1/soilscan/internal/acquire"
)

// renderPreview draws img as half-block characters, two pixel rows per
// line, at most cols wide.
func renderPreview(img image.Image, cols int) string {
	b := img.Bounds()
	if b.Dx() == 0 || b.Dy() == 0 || cols <= 0 {
		return ""
	}
	w := cols
	if b.Dx() < w {
		w = b.Dx()
	}
	// Terminal cells are about twice as tall as wide; each cell holds two
	// pixel rows, so the pixel aspect ratio carries over directly.
	h := b.Dy() * w / b.Dx()
	if h < 2 {
		h = 2
	}
	if h%2 == 1 {
		h++
	}
	small := resize.Resize(uint(w), uint(h), img, resize.NearestNeighbor)
	sb := small.Bounds()

	var out strings.Builder
	for y := sb.Min.Y; y < sb.Max.Y; y += 2 {
		for x := sb.Min.X; x < sb.Max.X; x++ {
			top := hexColor(small.At(x, y).RGBA())
			bottom := hexColor(small.At(x, y+1).RGBA())
			out.WriteString(lipgloss.NewStyle().
				Foreground(lipgloss.Color(top)).
				Background(lipgloss.Color(bottom)).
				Render("▀"))
		}
		if y+2 < sb.Max.Y {
			out.WriteByte('\n')
		}
	}
	return out.String()
}

func hexColor(r, g, b, _ uint32) string {
	return fmt.Sprintf("#%02x%02x%02x", r>>8, g>>8, b>>8)
}

// loadPreview decodes the image at loc for display only. Failures are left
// to the pipeline to report.
func loadPreview(loc acquire.Locator, cols int) (string, error) {
	rc, err := acquire.Open(loc)
	if err != nil {
		return "", err
	}
	defer rc.Close()
	img, _, err := image.Decode(rc)
	if err != nil {
		return "", err
	}
	return renderPreview(img, cols), nil
}
