// Package display drives the presentation side of the pipeline: a periodic
// pump that refreshes a fixed RGBA buffer from the distribution channel and
// hands it to a render target. The buffer is owned exclusively by the pump's
// goroutine, so it needs no locking of its own.
package display

import (
	"context"
	"image"
	"log/slog"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"

	"github.com/pixelfold/camcord/internal/pipeline"
	"github.com/pixelfold/camcord/internal/util"
)

// Target is anything that can be handed a frame buffer to repaint. The
// target owns displaying it; the pump never knows what a window is.
type Target interface {
	Render(img *image.RGBA)
}

// TargetFunc adapts a function to the Target interface.
type TargetFunc func(img *image.RGBA)

// Render implements Target.
func (f TargetFunc) Render(img *image.RGBA) { f(img) }

// ErrBadFrameSize means a received frame does not fit the presentation
// buffer. Dimensions are fixed for the lifetime of a session, so this is a
// contract violation and fails loudly instead of corrupting the buffer.
var ErrBadFrameSize = errors.New("frame does not match presentation buffer size")

// RateMargin is added to the source frame rate when sizing the tick
// interval. Ticking slightly faster than frames arrive keeps perceived
// playback smooth even when capture timing is irregular.
const RateMargin = 10.0

// Pump periodically copies the latest distributed frame into its fixed
// buffer and asks the target to repaint.
type Pump struct {
	src      *pipeline.LatestFrame
	target   Target
	img      *image.RGBA
	interval time.Duration
	clk      clock.Clock
	ticks    uint64
	logger   *slog.Logger
}

// Option customizes a Pump.
type Option func(*Pump)

// WithClock substitutes the wall clock, used by tests to drive ticks.
func WithClock(clk clock.Clock) Option {
	return func(p *Pump) { p.clk = clk }
}

// NewPump allocates the presentation buffer for a width×height session fed
// at the given source frame rate.
func NewPump(src *pipeline.LatestFrame, target Target, width, height int, fps float64, opts ...Option) (*Pump, error) {
	if width <= 0 || height <= 0 {
		return nil, errors.Errorf("invalid presentation size %dx%d", width, height)
	}
	if fps <= 0 {
		return nil, errors.Errorf("invalid source frame rate %v", fps)
	}

	p := &Pump{
		src:      src,
		target:   target,
		img:      image.NewRGBA(image.Rect(0, 0, width, height)),
		interval: time.Duration(float64(time.Second) / (fps + RateMargin)),
		clk:      clock.New(),
		logger:   util.ComponentLogger("display"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Run ticks until the context is cancelled. A buffer-size contract violation
// aborts the pump and is returned to the caller.
func (p *Pump) Run(ctx context.Context) error {
	ticker := p.clk.Ticker(p.interval)
	defer ticker.Stop()

	p.logger.Debug("Presentation pump running", "interval", p.interval)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := p.Tick(); err != nil {
				p.logger.Error("Presentation pump stopped", "error", err)
				return err
			}
		}
	}
}

// Tick runs one presentation cycle: refresh the buffer and repaint.
func (p *Pump) Tick() error {
	p.ticks++
	img, err := p.RenderImage(p.ticks)
	if err != nil {
		return err
	}
	if p.target != nil {
		p.target.Render(img)
	}
	return nil
}

// RenderImage is the pull-based hook for render surfaces: given an opaque
// tick counter it returns the current presentation buffer. If no new frame
// is pending the previous contents are returned unchanged.
func (p *Pump) RenderImage(tick uint64) (*image.RGBA, error) {
	if frame, ok := p.src.TryReceive(); ok {
		if len(frame.Data) != len(p.img.Pix) {
			return nil, errors.Wrapf(ErrBadFrameSize,
				"got %dx%d (%d bytes), buffer is %dx%d (%d bytes)",
				frame.Width, frame.Height, len(frame.Data),
				p.img.Rect.Dx(), p.img.Rect.Dy(), len(p.img.Pix))
		}
		copy(p.img.Pix, frame.Data)
	}
	return p.img, nil
}

// Image returns the presentation buffer. Callers must treat it as read-only.
func (p *Pump) Image() *image.RGBA {
	return p.img
}

// Interval returns the tick period derived from the source frame rate.
func (p *Pump) Interval() time.Duration {
	return p.interval
}
