package core

import (
	"bytes"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"

	"github.com/pkg/errors"
)

// ToRGBA converts a source-native frame to the 4-channel presentation layout.
// The alpha channel is synthesized as fully opaque. The input frame is not
// modified; the returned frame owns a fresh buffer.
func ToRGBA(f *Frame) (*Frame, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}

	out := &Frame{
		Width:     f.Width,
		Height:    f.Height,
		Format:    FormatRGBA,
		Timestamp: f.Timestamp,
		Seq:       f.Seq,
	}

	switch f.Format {
	case FormatRGBA:
		out.Data = append([]byte(nil), f.Data...)
	case FormatRGB24:
		out.Data = rgb24ToRGBA(f.Data)
	case FormatYUYV:
		out.Data = yuyvToRGBA(f.Data, f.Width, f.Height)
	case FormatMJPEG:
		data, err := mjpegToRGBA(f.Data, f.Width, f.Height)
		if err != nil {
			return nil, errors.Wrap(ErrMalformedFrame, err.Error())
		}
		out.Data = data
	default:
		return nil, errors.Errorf("unsupported pixel format %q", f.Format)
	}
	return out, nil
}

func rgb24ToRGBA(src []byte) []byte {
	pixels := len(src) / 3
	dst := make([]byte, pixels*4)
	for i := 0; i < pixels; i++ {
		dst[i*4+0] = src[i*3+0]
		dst[i*4+1] = src[i*3+1]
		dst[i*4+2] = src[i*3+2]
		dst[i*4+3] = 0xFF
	}
	return dst
}

// yuyvToRGBA expands packed YUV 4:2:2 into RGBA. Each 4-byte group
// (Y0 Cb Y1 Cr) yields two pixels sharing one chroma sample.
func yuyvToRGBA(src []byte, width, height int) []byte {
	dst := make([]byte, width*height*4)
	di := 0
	for si := 0; si+3 < len(src); si += 4 {
		y0, cb, y1, cr := src[si], src[si+1], src[si+2], src[si+3]

		r, g, b := color.YCbCrToRGB(y0, cb, cr)
		dst[di+0], dst[di+1], dst[di+2], dst[di+3] = r, g, b, 0xFF

		r, g, b = color.YCbCrToRGB(y1, cb, cr)
		dst[di+4], dst[di+5], dst[di+6], dst[di+7] = r, g, b, 0xFF
		di += 8
	}
	return dst
}

func mjpegToRGBA(data []byte, width, height int) ([]byte, error) {
	img, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	bounds := img.Bounds()
	if bounds.Dx() != width || bounds.Dy() != height {
		return nil, errors.Errorf("decoded size %dx%d does not match reported %dx%d",
			bounds.Dx(), bounds.Dy(), width, height)
	}
	rgba := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(rgba, rgba.Bounds(), img, bounds.Min, draw.Src)
	return rgba.Pix, nil
}

// NativeImage wraps a frame's buffer as an image.Image in its native layout,
// for encoders that consume the pre-conversion data. No conversion to the
// presentation layout happens here.
func NativeImage(f *Frame) (image.Image, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	switch f.Format {
	case FormatYUYV:
		return yuyvToYCbCr(f.Data, f.Width, f.Height), nil
	case FormatRGB24:
		return &rgb24Image{pix: f.Data, width: f.Width, height: f.Height}, nil
	case FormatRGBA:
		return &image.RGBA{Pix: f.Data, Stride: f.Width * 4, Rect: image.Rect(0, 0, f.Width, f.Height)}, nil
	default:
		return nil, errors.Errorf("no image view for pixel format %q", f.Format)
	}
}

// yuyvToYCbCr repacks packed 4:2:2 into the planar layout image/jpeg encodes
// directly, avoiding a round trip through RGB.
func yuyvToYCbCr(src []byte, width, height int) *image.YCbCr {
	img := image.NewYCbCr(image.Rect(0, 0, width, height), image.YCbCrSubsampleRatio422)
	for row := 0; row < height; row++ {
		si := row * width * 2
		yi := row * img.YStride
		ci := row * img.CStride
		for x := 0; x < width/2; x++ {
			img.Y[yi+x*2] = src[si+x*4]
			img.Cb[ci+x] = src[si+x*4+1]
			img.Y[yi+x*2+1] = src[si+x*4+2]
			img.Cr[ci+x] = src[si+x*4+3]
		}
	}
	return img
}

// rgb24Image is a read-only image.Image view over a packed RGB buffer.
type rgb24Image struct {
	pix    []byte
	width  int
	height int
}

func (m *rgb24Image) ColorModel() color.Model { return color.RGBAModel }

func (m *rgb24Image) Bounds() image.Rectangle { return image.Rect(0, 0, m.width, m.height) }

func (m *rgb24Image) At(x, y int) color.Color {
	if x < 0 || y < 0 || x >= m.width || y >= m.height {
		return color.RGBA{}
	}
	i := (y*m.width + x) * 3
	return color.RGBA{R: m.pix[i], G: m.pix[i+1], B: m.pix[i+2], A: 0xFF}
}
