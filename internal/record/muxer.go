// Package record persists the captured frame stream to a container file.
// This is the pipeline's highest-stakes contract: the file on disk must be
// independently playable after every clean shutdown, so Close must run
// exactly once on every loop-exit path.
package record

import (
	"io"
	"log/slog"
	"time"
)

// Muxer writes encoded video frames into a container.
type Muxer interface {
	// WriteFrame appends one encoded frame at the given presentation time.
	WriteFrame(data []byte, pts time.Duration) error

	// FrameCount returns the number of frames written so far.
	FrameCount() uint64

	// Close finalizes the container. Idempotent.
	Close() error
}

// writerCloser wraps an io.Writer with basic error handling
type writerCloser struct {
	writer io.Writer
	logger *slog.Logger
	closed bool
}

func (wc *writerCloser) Write(p []byte) (n int, err error) {
	if wc.closed {
		return 0, io.ErrClosedPipe
	}

	n, err = wc.writer.Write(p)
	if err != nil {
		wc.logger.Warn("Write error detected, marking writer as closed",
			"error", err,
			"data_size", len(p),
			"bytes_written", n)
		wc.closed = true
	}
	return n, err
}

func (wc *writerCloser) Close() error {
	wc.closed = true
	return nil
}
