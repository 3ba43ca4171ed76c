package core

import (
	"time"

	"github.com/pkg/errors"
)

// PixelFormat identifies the pixel layout of a frame's byte buffer.
type PixelFormat string

const (
	// FormatYUYV is packed YUV 4:2:2 (Y0 Cb Y1 Cr), 2 bytes per pixel.
	FormatYUYV PixelFormat = "yuyv"
	// FormatRGB24 is packed 8-bit RGB, 3 bytes per pixel.
	FormatRGB24 PixelFormat = "rgb24"
	// FormatMJPEG is a JPEG-compressed frame, variable size.
	FormatMJPEG PixelFormat = "mjpeg"
	// FormatRGBA is packed 8-bit RGBA, 4 bytes per pixel. Presentation layout.
	FormatRGBA PixelFormat = "rgba"
)

// BytesPerPixel returns the per-pixel byte count for fixed-size layouts.
// Compressed layouts report ok=false.
func (f PixelFormat) BytesPerPixel() (bpp int, ok bool) {
	switch f {
	case FormatYUYV:
		return 2, true
	case FormatRGB24:
		return 3, true
	case FormatRGBA:
		return 4, true
	default:
		return 0, false
	}
}

// ErrMalformedFrame marks a frame that must be skipped: it is never written
// to the sink and never distributed to the presentation channel.
var ErrMalformedFrame = errors.New("malformed frame")

// Frame is an immutable snapshot of pixel data at one instant.
//
// Data is shared by reference through the pipeline; it MUST NOT be modified
// after the frame leaves the capture loop.
type Frame struct {
	// Data contains the raw frame bytes in the layout described by Format.
	Data []byte

	// Width of the frame in pixels
	Width int

	// Height of the frame in pixels
	Height int

	// Format is the pixel layout tag for Data
	Format PixelFormat

	// Timestamp is when the frame was read from the device
	Timestamp time.Time

	// Seq is a monotonic sequence number assigned by the capture loop
	Seq uint64
}

// Validate checks the frame invariant: positive dimensions and, for
// fixed-size layouts, len(Data) == Width*Height*BytesPerPixel.
func (f *Frame) Validate() error {
	if f.Width <= 0 || f.Height <= 0 {
		return errors.Wrapf(ErrMalformedFrame, "non-positive dimensions %dx%d", f.Width, f.Height)
	}
	if len(f.Data) == 0 {
		return errors.Wrap(ErrMalformedFrame, "empty buffer")
	}
	if bpp, ok := f.Format.BytesPerPixel(); ok {
		if want := f.Width * f.Height * bpp; len(f.Data) != want {
			return errors.Wrapf(ErrMalformedFrame, "buffer size %d, want %d for %s %dx%d",
				len(f.Data), want, f.Format, f.Width, f.Height)
		}
	}
	return nil
}
