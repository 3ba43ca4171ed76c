package record

import (
	"bytes"
	"image/jpeg"
	"log/slog"
	"os"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"github.com/pixelfold/camcord/internal/core"
	"github.com/pixelfold/camcord/internal/util"
)

// ErrSinkOpen means the container file could not be created. Same failure
// tier as a missing device: fatal at startup, before any goroutine runs.
var ErrSinkOpen = errors.New("cannot open persistence sink")

// DefaultQuality is the JPEG quality used when the caller passes 0.
const DefaultQuality = 85

// Sink owns the on-disk container file for one capture session. It is used
// from the capture goroutine only; Close must be called exactly once, on
// every loop-exit path.
type Sink struct {
	file     *os.File
	muxer    Muxer
	logger   *slog.Logger
	path     string
	width    int
	height   int
	interval time.Duration
	quality  int
	encBuf   bytes.Buffer
	closed   bool
}

// OpenSink creates the container file and its Matroska muxer. width, height
// and fps must match the live device mode.
func OpenSink(path string, width, height int, fps float64, quality int) (*Sink, error) {
	if quality <= 0 {
		quality = DefaultQuality
	}
	if fps <= 0 {
		return nil, errors.Wrapf(ErrSinkOpen, "invalid frame rate %v", fps)
	}

	file, err := os.Create(path)
	if err != nil {
		return nil, errors.Wrapf(ErrSinkOpen, "create %s: %v", path, err)
	}

	muxer, err := NewMKVMuxer(file, width, height, fps)
	if err != nil {
		file.Close()
		os.Remove(path)
		return nil, errors.Wrapf(ErrSinkOpen, "init container: %v", err)
	}

	logger := util.ComponentLogger("record")
	logger.Info("Recording sink opened",
		"path", path, "codec", CodecID, "width", width, "height", height, "fps", fps)

	return &Sink{
		file:     file,
		muxer:    muxer,
		logger:   logger,
		path:     path,
		width:    width,
		height:   height,
		interval: time.Duration(float64(time.Second) / fps),
		quality:  quality,
	}, nil
}

// WriteFrame appends one source-native frame. Malformed frames are rejected
// so they never corrupt the container; the caller decides whether to skip or
// abort. Frames are written in the pre-conversion layout: MJPEG passes
// through untouched, fixed-layout frames are JPEG-encoded from their native
// planes.
func (s *Sink) WriteFrame(f *core.Frame) error {
	if s.closed {
		return errors.New("sink is closed")
	}
	if err := f.Validate(); err != nil {
		return err
	}

	pts := time.Duration(s.muxer.FrameCount()) * s.interval

	if f.Format == core.FormatMJPEG {
		return s.muxer.WriteFrame(f.Data, pts)
	}

	img, err := core.NativeImage(f)
	if err != nil {
		return err
	}
	s.encBuf.Reset()
	if err := jpeg.Encode(&s.encBuf, img, &jpeg.Options{Quality: s.quality}); err != nil {
		return errors.Wrap(err, "encode frame")
	}
	return s.muxer.WriteFrame(s.encBuf.Bytes(), pts)
}

// FrameCount returns the number of frames persisted so far.
func (s *Sink) FrameCount() uint64 {
	return s.muxer.FrameCount()
}

// Path returns the container file location.
func (s *Sink) Path() string {
	return s.path
}

// Close finalizes the container and closes the file. Idempotent; only the
// first call does work.
func (s *Sink) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true

	err := multierr.Append(s.muxer.Close(), s.file.Close())
	if err != nil {
		s.logger.Warn("Sink close error", "path", s.path, "error", err)
		return err
	}
	s.logger.Info("Recording finalized", "path", s.path, "frames", s.muxer.FrameCount())
	return nil
}
