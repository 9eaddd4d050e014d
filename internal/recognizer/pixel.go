package recognizer

import (
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"sync"
	"time"

	"github.com/kozaktomas/attendance-engine/internal/constants"
	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// PixelRecognizer compares two images pixel by pixel on a small fixed canvas.
// Resampled enrolled templates are cached by path and modification time.
type PixelRecognizer struct {
	size int

	mu    sync.Mutex
	cache map[string]cachedCanvas
}

type cachedCanvas struct {
	modTime time.Time
	size    int64
	canvas  *image.RGBA
}

// NewPixelRecognizer creates a pixel comparison tier.
func NewPixelRecognizer() *PixelRecognizer {
	return &PixelRecognizer{
		size:  constants.PixelCanvasSize,
		cache: make(map[string]cachedCanvas),
	}
}

func (p *PixelRecognizer) Method() Method { return MethodPixel }

// Compare decodes both files, resamples them and counts differing pixels.
func (p *PixelRecognizer) Compare(ctx context.Context, sample Sample, templatePath string) (MatchResult, error) {
	if err := ctx.Err(); err != nil {
		return MatchResult{}, unavailable("%v", err)
	}

	a, err := p.loadCanvas(sample.Path, false)
	if err != nil {
		return MatchResult{}, unavailable("capture: %v", err)
	}
	b, err := p.loadCanvas(templatePath, true)
	if err != nil {
		return MatchResult{}, unavailable("template: %v", err)
	}

	similarity := PixelSimilarity(a, b)
	return scorePixel(similarity), nil
}

// scorePixel applies the pixel tier's decision rule to a similarity.
func scorePixel(similarity float64) MatchResult {
	matched := similarity > constants.PixelMatchSimilarity

	score := similarity
	if matched {
		score = min(constants.PixelScoreCap, similarity*constants.PixelScoreBoost)
		if similarity == 1 {
			score = 1
		}
	}

	result := newResult(MethodPixel, matched, score)
	result.Similarity = &similarity
	return result
}

// PixelSimilarity returns 1 - differing/total for two equally sized canvases.
// A pixel differs when the summed absolute channel difference exceeds
// constants.PixelChannelThreshold on the 8-bit scale.
func PixelSimilarity(a, b *image.RGBA) float64 {
	bounds := a.Bounds().Intersect(b.Bounds())
	total := bounds.Dx() * bounds.Dy()
	if total == 0 {
		return 0
	}

	differing := 0
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			ca := a.RGBAAt(x, y)
			cb := b.RGBAAt(x, y)
			diff := absDiff(ca.R, cb.R) + absDiff(ca.G, cb.G) + absDiff(ca.B, cb.B)
			if diff > constants.PixelChannelThreshold {
				differing++
			}
		}
	}

	return 1 - float64(differing)/float64(total)
}

func absDiff(a, b uint8) int {
	if a > b {
		return int(a - b)
	}
	return int(b - a)
}

// loadCanvas decodes an image file and resamples it to the comparison canvas.
func (p *PixelRecognizer) loadCanvas(path string, cacheable bool) (*image.RGBA, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.Size() == 0 {
		return nil, fmt.Errorf("%s is empty", path)
	}

	if cacheable {
		p.mu.Lock()
		c, ok := p.cache[path]
		p.mu.Unlock()
		if ok && c.modTime.Equal(info.ModTime()) && c.size == info.Size() {
			return c.canvas, nil
		}
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	canvas := resizeImage(img, p.size, p.size)

	if cacheable {
		p.mu.Lock()
		p.cache[path] = cachedCanvas{modTime: info.ModTime(), size: info.Size(), canvas: canvas}
		p.mu.Unlock()
	}
	return canvas, nil
}

// resizeImage scales an image to the specified dimensions.
func resizeImage(img image.Image, width, height int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.BiLinear.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Over, nil)
	return dst
}
