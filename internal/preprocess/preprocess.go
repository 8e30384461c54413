// Package preprocess turns a picked image into the model's input tensor.
package preprocess

import (
	"context"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/nfnt/resize"
	"go.uber.org/zap"

	"github.com/Brownie44l1/soilscan/internal/acquire"
	"github.com/Brownie44l1/soilscan/internal/model"
)

// Error is returned for any image that cannot be turned into a tensor.
type Error struct {
	Source acquire.Locator
	Op     string
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("preprocess %s: %s: %v", e.Source.Name(), e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Image describes a decoded source image, for display.
type Image struct {
	Format string
	Width  int
	Height int
}

// Preprocessor resizes and lays out images according to model metadata.
type Preprocessor struct {
	meta   model.Metadata
	logger *zap.Logger
}

// New returns a Preprocessor for meta. logger may be nil.
func New(meta model.Metadata, logger *zap.Logger) *Preprocessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Preprocessor{meta: meta, logger: logger}
}

// Shape is the tensor shape every call produces.
func (p *Preprocessor) Shape() []int64 { return p.meta.InputShape }

// Tensor decodes the image at loc and converts it to a single-item batch.
func (p *Preprocessor) Tensor(ctx context.Context, loc acquire.Locator) (model.Tensor, Image, error) {
	if err := ctx.Err(); err != nil {
		return model.Tensor{}, Image{}, err
	}

	rc, err := acquire.Open(loc)
	if err != nil {
		return model.Tensor{}, Image{}, &Error{Source: loc, Op: "open", Err: err}
	}
	defer rc.Close()

	img, format, err := image.Decode(rc)
	if err != nil {
		return model.Tensor{}, Image{}, &Error{Source: loc, Op: "decode", Err: err}
	}
	info := Image{Format: format, Width: img.Bounds().Dx(), Height: img.Bounds().Dy()}
	if info.Width == 0 || info.Height == 0 {
		return model.Tensor{}, info, &Error{Source: loc, Op: "decode", Err: fmt.Errorf("empty image %dx%d", info.Width, info.Height)}
	}

	p.logger.Debug("image decoded",
		zap.String("source", loc.Name()),
		zap.String("format", format),
		zap.Int("width", info.Width),
		zap.Int("height", info.Height))

	if err := ctx.Err(); err != nil {
		return model.Tensor{}, info, err
	}
	t, err := p.FromImage(img)
	if err != nil {
		return model.Tensor{}, info, &Error{Source: loc, Op: "convert", Err: err}
	}
	return t, info, nil
}

// FromImage resizes img with nearest-neighbour sampling and packs it into a
// tensor with the metadata's layout and scale.
func (p *Preprocessor) FromImage(img image.Image) (model.Tensor, error) {
	size := p.meta.ImageSize
	if size <= 0 {
		return model.Tensor{}, fmt.Errorf("invalid target size %d", size)
	}
	resized := resize.Resize(uint(size), uint(size), img, resize.NearestNeighbor)

	bounds := resized.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	if width != size || height != size {
		return model.Tensor{}, fmt.Errorf("resized to %dx%d, want %dx%d", width, height, size, size)
	}

	t := model.NewTensor(p.meta.InputShape...)
	if len(t.Data) != 3*width*height {
		return model.Tensor{}, &model.ShapeError{
			What:     "preprocessed",
			Expected: p.meta.InputShape,
			Got:      []int64{1, int64(height), int64(width), 3},
		}
	}

	div := float32(1)
	if p.meta.Scale == model.ScaleUnit {
		div = 255
	}

	plane := width * height
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			// Alpha is dropped, not premultiplied into the channels.
			c := color.NRGBAModel.Convert(resized.At(bounds.Min.X+x, bounds.Min.Y+y)).(color.NRGBA)
			rv, gv, bv := float32(c.R)/div, float32(c.G)/div, float32(c.B)/div

			pixel := y*width + x
			if p.meta.Layout == model.LayoutNCHW {
				t.Data[pixel] = rv
				t.Data[plane+pixel] = gv
				t.Data[2*plane+pixel] = bv
			} else {
				t.Data[3*pixel] = rv
				t.Data[3*pixel+1] = gv
				t.Data[3*pixel+2] = bv
			}
		}
	}
	return t, nil
}
