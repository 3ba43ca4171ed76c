//go:build linux

package capture

import (
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/blackjack/webcam"
	"github.com/pkg/errors"

	"github.com/pixelfold/camcord/internal/core"
	"github.com/pixelfold/camcord/internal/util"
)

// waitTimeoutSec is the poll interval for WaitForFrame. A timeout is not a
// read error: the loop keeps waiting, so a stalled device stalls the capture
// thread rather than corrupting the recording.
const waitTimeoutSec = 5

type v4l2Device struct {
	cam    *webcam.Webcam
	path   string
	name   string
	width  int
	height int
	fps    float64
	format core.PixelFormat
}

// Open opens /dev/video<index> and negotiates a pixel format, frame size and
// rate. It fails with ErrDeviceUnavailable before any goroutine is spawned.
func Open(index int, cfg Config) (Device, error) {
	path := DevicePath(index)
	logger := util.ComponentLogger("capture")

	cam, err := webcam.Open(path)
	if err != nil {
		return nil, errors.Wrapf(ErrDeviceUnavailable, "open %s: %v", path, err)
	}

	supported := make(map[uint32]string)
	for f, desc := range cam.GetSupportedFormats() {
		supported[uint32(f)] = desc
	}
	fourcc, format, err := pickFormat(supported)
	if err != nil {
		cam.Close()
		return nil, err
	}

	width, height := cfg.Width, cfg.Height
	if width <= 0 || height <= 0 {
		width, height = defaultWidth, defaultHeight
	}

	// The driver may clamp the request; the returned mode is authoritative.
	_, gotW, gotH, err := cam.SetImageFormat(webcam.PixelFormat(fourcc), uint32(width), uint32(height))
	if err != nil {
		cam.Close()
		return nil, errors.Wrapf(ErrDeviceUnavailable, "set format on %s: %v", path, err)
	}

	fps := cfg.FPS
	if fps <= 0 {
		fps = defaultFPS
	}
	if err := cam.SetFramerate(float32(fps)); err != nil {
		// Not fatal: some drivers reject rate control; the nominal rate
		// is still used for the container metadata.
		logger.Warn("Device rejected frame rate request", "device", path, "fps", fps, "error", err)
	}

	if err := cam.StartStreaming(); err != nil {
		cam.Close()
		return nil, errors.Wrapf(ErrDeviceUnavailable, "start streaming on %s: %v", path, err)
	}

	dev := &v4l2Device{
		cam:    cam,
		path:   path,
		name:   deviceNodeName(path),
		width:  int(gotW),
		height: int(gotH),
		fps:    fps,
		format: format,
	}
	logger.Info("Capture device opened",
		"device", path, "name", dev.name,
		"width", dev.width, "height", dev.height, "fps", dev.fps, "format", string(format))
	return dev, nil
}

// ReadFrame blocks until the device produces a frame.
func (d *v4l2Device) ReadFrame() (*core.Frame, error) {
	for {
		err := d.cam.WaitForFrame(waitTimeoutSec)
		switch err.(type) {
		case nil:
		case *webcam.Timeout:
			continue
		default:
			return nil, errors.Wrapf(err, "wait for frame on %s", d.path)
		}

		data, err := d.cam.ReadFrame()
		if err != nil {
			return nil, errors.Wrapf(err, "read frame from %s", d.path)
		}
		return &core.Frame{
			Data:      data,
			Width:     d.width,
			Height:    d.height,
			Format:    d.format,
			Timestamp: time.Now(),
		}, nil
	}
}

func (d *v4l2Device) Width() int               { return d.width }
func (d *v4l2Device) Height() int              { return d.height }
func (d *v4l2Device) FPS() float64             { return d.fps }
func (d *v4l2Device) Format() core.PixelFormat { return d.format }
func (d *v4l2Device) Name() string             { return d.name }

func (d *v4l2Device) Close() error {
	if err := d.cam.StopStreaming(); err != nil {
		util.ComponentLogger("capture").Warn("Stop streaming failed", "device", d.path, "error", err)
	}
	return d.cam.Close()
}

// ListDevices enumerates /dev/video* nodes with their kernel-reported names.
func ListDevices() []Info {
	nodes, _ := filepath.Glob("/dev/video*")
	sort.Strings(nodes)

	var infos []Info
	for _, node := range nodes {
		idxStr := strings.TrimPrefix(node, "/dev/video")
		idx, err := strconv.Atoi(idxStr)
		if err != nil {
			continue
		}
		infos = append(infos, Info{Index: idx, Path: node, Name: deviceNodeName(node)})
	}
	return infos
}

func deviceNodeName(node string) string {
	base := filepath.Base(node)
	data, err := os.ReadFile(filepath.Join("/sys/class/video4linux", base, "name"))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}
