// Package session binds one open capture device and one open persistence
// sink, runs the capture loop, and coordinates race-free shutdown. The
// device and sink are owned exclusively by the capture goroutine; the rest
// of the process talks to it only through the distribution channel and the
// session context.
package session

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"github.com/pixelfold/camcord/internal/capture"
	"github.com/pixelfold/camcord/internal/core"
	"github.com/pixelfold/camcord/internal/pipeline"
	"github.com/pixelfold/camcord/internal/record"
	"github.com/pixelfold/camcord/internal/util"
)

// Stats is a snapshot of the session's operational counters.
type Stats struct {
	// FramesCaptured counts every successful device read.
	FramesCaptured uint64
	// FramesPersisted counts frames written to the container.
	FramesPersisted uint64
	// FramesSkipped counts malformed frames suppressed from both the sink
	// and the display channel.
	FramesSkipped uint64
	// DisplayDrops counts distributed frames superseded before display.
	// Drops are expected when the pump ticks slower than capture.
	DisplayDrops uint64
}

// Session is one capture run: device → convert → persist + distribute.
type Session struct {
	id     string
	dev    capture.Device
	sink   *record.Sink
	frames *pipeline.LatestFrame
	logger *slog.Logger

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	done    chan struct{}
	result  error

	captured  atomic.Uint64
	persisted atomic.Uint64
	skipped   atomic.Uint64
}

// New binds an open device and an open sink into a session. Both must have
// been created with the same geometry and frame rate.
func New(dev capture.Device, sink *record.Sink, frames *pipeline.LatestFrame) *Session {
	id := uuid.NewString()
	return &Session{
		id:     id,
		dev:    dev,
		sink:   sink,
		frames: frames,
		logger: util.ComponentLogger("session").With("session", id),
		done:   make(chan struct{}),
	}
}

// ID returns the session identifier used in logs.
func (s *Session) ID() string { return s.id }

// Start spawns the capture goroutine. It fails only before the goroutine
// exists, so a successful Start guarantees the sink will be closed exactly
// once when the loop exits.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return errors.New("session already started")
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.started = true

	go s.captureLoop(ctx)

	s.logger.Info("Capture session started",
		"device", s.dev.Name(),
		"width", s.dev.Width(), "height", s.dev.Height(), "fps", s.dev.FPS(),
		"output", s.sink.Path())
	return nil
}

// Stop requests shutdown and blocks until the capture loop has released the
// device and finalized the file. Safe to call more than once.
func (s *Session) Stop() error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return errors.New("session not started")
	}
	cancel := s.cancel
	s.mu.Unlock()

	cancel()
	return s.Wait()
}

// Wait blocks until the capture loop exits and returns its terminal result.
// A graceful stop yields nil; a device read failure yields that error, with
// the file still finalized.
func (s *Session) Wait() error {
	<-s.done
	return s.result
}

// Done is closed once the loop has exited and all resources are released.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Stats returns a snapshot of the session counters.
func (s *Session) Stats() Stats {
	return Stats{
		FramesCaptured:  s.captured.Load(),
		FramesPersisted: s.persisted.Load(),
		FramesSkipped:   s.skipped.Load(),
		DisplayDrops:    s.frames.Drops(),
	}
}

// captureLoop is the capture thread: read → convert → distribute → persist,
// until shutdown is requested or a read fails. Cancellation is cooperative
// and checked once per iteration, so any frame captured in the current
// iteration is still written before the loop honors a stop request.
func (s *Session) captureLoop(ctx context.Context) {
	defer close(s.done)

	var loopErr error
	var seq uint64

	for {
		if ctx.Err() != nil {
			s.logger.Info("Shutdown requested, stopping capture loop")
			break
		}

		frame, err := s.dev.ReadFrame()
		if err != nil {
			// Device loss is fatal, not retried: a silent retry risks
			// writing corrupt frames into the container.
			loopErr = errors.Wrap(err, "device read failed")
			s.logger.Error("Capture loop terminating", "error", loopErr)
			break
		}
		seq++
		frame.Seq = seq
		s.captured.Add(1)

		if err := frame.Validate(); err != nil {
			// Malformed frames reach neither the sink nor the display.
			s.skipped.Add(1)
			s.logger.Debug("Skipping malformed frame", "seq", seq, "error", err)
			continue
		}

		rgba, err := core.ToRGBA(frame)
		if err != nil {
			s.skipped.Add(1)
			s.logger.Debug("Skipping unconvertible frame", "seq", seq, "error", err)
			continue
		}
		s.frames.Send(rgba)

		if err := s.sink.WriteFrame(frame); err != nil {
			// The file's integrity is the pipeline's highest-stakes
			// contract; stop and finalize rather than keep appending.
			loopErr = errors.Wrap(err, "sink write failed")
			s.logger.Error("Capture loop terminating", "error", loopErr)
			break
		}
		s.persisted.Add(1)
	}

	// Every exit path releases the device and finalizes the file, exactly
	// once. The file must be playable even when the loop died on an error.
	s.result = multierr.Combine(loopErr, s.sink.Close(), s.dev.Close())

	stats := s.Stats()
	s.logger.Info("Capture session finished",
		"captured", stats.FramesCaptured,
		"persisted", stats.FramesPersisted,
		"skipped", stats.FramesSkipped,
		"display_drops", stats.DisplayDrops)
}
