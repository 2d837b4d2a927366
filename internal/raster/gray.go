package raster

import (
	"fmt"

	"layer-align/pkg/colorutil"
)

// Grayscale converts to a single-channel intensity image of the same size.
// Three-channel input is weighted with BT.601 luma; single-channel input is
// returned as is.
func Grayscale(img *Image) (*Image, error) {
	if err := img.Validate(); err != nil {
		return nil, err
	}

	switch img.Channels {
	case 1:
		return img, nil
	case 3:
		out, err := New(img.Width, img.Height, 1)
		if err != nil {
			return nil, err
		}
		forStripes(img.Height, func(yStart, yEnd int) {
			for i := yStart * img.Width; i < yEnd*img.Width; i++ {
				p := img.Pix[i*3 : i*3+3]
				out.Pix[i] = colorutil.Luma(p[0], p[1], p[2])
			}
		})
		return out, nil
	default:
		return nil, fmt.Errorf("%w: got %d", ErrInvalidChannels, img.Channels)
	}
}
