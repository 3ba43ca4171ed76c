// Package capture adapts a physical video device to the pipeline. Reading is
// blocking and synchronous with the hardware's frame cadence; the device is
// the pipeline's natural rate limiter.
package capture

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/pixelfold/camcord/internal/core"
)

var (
	// ErrDeviceUnavailable means the device could not be opened. This is
	// fatal at startup: the pipeline must never run with an unopened device.
	ErrDeviceUnavailable = errors.New("capture device unavailable")

	// ErrUnsupportedPlatform is returned on builds without a V4L2 backend.
	ErrUnsupportedPlatform = errors.New("video capture not supported on this platform")

	// ErrNoSupportedFormat means the device offers no pixel format the
	// pipeline can consume.
	ErrNoSupportedFormat = errors.New("no supported pixel format")
)

// Device is an open capture device bound to one session.
//
// ReadFrame blocks until the next frame is available. A read failure is
// fatal to the capture loop; device loss is not retried, since a silent
// retry risks persisting corrupt frames.
type Device interface {
	ReadFrame() (*core.Frame, error)
	Width() int
	Height() int
	FPS() float64
	Format() core.PixelFormat
	Name() string
	Close() error
}

// Config holds requested capture parameters. Zero values mean "let the
// device decide".
type Config struct {
	Width  int
	Height int
	FPS    float64
}

// Info describes an enumerated capture device node.
type Info struct {
	Index int
	Path  string
	Name  string
}

// DevicePath maps a device index to its V4L2 node path.
func DevicePath(index int) string {
	return fmt.Sprintf("/dev/video%d", index)
}

// V4L2 fourcc codes for the pixel formats the pipeline understands.
const (
	fourccYUYV = 'Y' | 'U'<<8 | 'Y'<<16 | 'V'<<24
	fourccMJPG = 'M' | 'J'<<8 | 'P'<<16 | 'G'<<24
	fourccRGB3 = 'R' | 'G'<<8 | 'B'<<16 | '3'<<24
)

// preferredFormats is the negotiation order. YUYV first: it is cheap to
// persist (4:2:2 planes go straight into the JPEG encoder) and cheap to
// convert for display.
var preferredFormats = []struct {
	fourcc uint32
	format core.PixelFormat
}{
	{fourccYUYV, core.FormatYUYV},
	{fourccMJPG, core.FormatMJPEG},
	{fourccRGB3, core.FormatRGB24},
}

// pickFormat selects the first preferred fourcc the device supports.
func pickFormat(supported map[uint32]string) (uint32, core.PixelFormat, error) {
	for _, pref := range preferredFormats {
		if _, ok := supported[pref.fourcc]; ok {
			return pref.fourcc, pref.format, nil
		}
	}
	return 0, "", errors.Wrapf(ErrNoSupportedFormat, "device offers %v", supported)
}

const (
	// defaultWidth/defaultHeight are used when the caller does not request
	// a mode; the driver may still clamp them.
	defaultWidth  = 640
	defaultHeight = 480

	// defaultFPS is assumed when the device does not accept a rate request.
	defaultFPS = 30.0
)
