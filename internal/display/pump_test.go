package display

import (
	"context"
	"image"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pixelfold/camcord/internal/core"
	"github.com/pixelfold/camcord/internal/pipeline"
)

func rgbaFrame(width, height int, fill byte) *core.Frame {
	data := make([]byte, width*height*4)
	for i := range data {
		data[i] = fill
	}
	return &core.Frame{Data: data, Width: width, Height: height, Format: core.FormatRGBA}
}

func TestNewPumpRejectsBadGeometry(t *testing.T) {
	src := pipeline.NewLatestFrame()
	_, err := NewPump(src, nil, 0, 480, 30)
	require.Error(t, err)
	_, err = NewPump(src, nil, 640, 480, 0)
	require.Error(t, err)
}

func TestPumpInterval(t *testing.T) {
	src := pipeline.NewLatestFrame()
	pump, err := NewPump(src, nil, 4, 2, 30)
	require.NoError(t, err)

	// Ticks run at source rate plus the fixed margin.
	want := time.Duration(float64(time.Second) / (30 + RateMargin))
	assert.Equal(t, want, pump.Interval())
}

func TestTickCopiesLatestFrame(t *testing.T) {
	src := pipeline.NewLatestFrame()
	var rendered *image.RGBA
	target := TargetFunc(func(img *image.RGBA) { rendered = img })

	pump, err := NewPump(src, target, 4, 2, 30)
	require.NoError(t, err)

	src.Send(rgbaFrame(4, 2, 0xAB))
	require.NoError(t, pump.Tick())

	require.NotNil(t, rendered)
	for _, b := range rendered.Pix {
		assert.Equal(t, byte(0xAB), b)
	}
}

func TestEmptyTickLeavesBufferUntouched(t *testing.T) {
	src := pipeline.NewLatestFrame()
	pump, err := NewPump(src, nil, 4, 2, 30)
	require.NoError(t, err)

	src.Send(rgbaFrame(4, 2, 0x55))
	require.NoError(t, pump.Tick())

	before := append([]byte(nil), pump.Image().Pix...)

	// No pending frame: the previous buffer is redisplayed unchanged.
	require.NoError(t, pump.Tick())
	assert.Equal(t, before, pump.Image().Pix, "buffer must be byte-identical after an empty tick")
}

func TestBadFrameSizeFailsLoudly(t *testing.T) {
	src := pipeline.NewLatestFrame()
	pump, err := NewPump(src, nil, 4, 2, 30)
	require.NoError(t, err)

	src.Send(rgbaFrame(8, 8, 0x01))
	err = pump.Tick()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrBadFrameSize))
}

func TestRunStopsOnCancel(t *testing.T) {
	src := pipeline.NewLatestFrame()
	pump, err := NewPump(src, nil, 4, 2, 30)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, pump.Run(ctx))
}

func TestRunRendersOnMockTicks(t *testing.T) {
	src := pipeline.NewLatestFrame()
	mock := clock.NewMock()

	renders := make(chan struct{}, 16)
	target := TargetFunc(func(img *image.RGBA) { renders <- struct{}{} })

	pump, err := NewPump(src, target, 4, 2, 30, WithClock(mock))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- pump.Run(ctx) }()

	// Give Run a moment to install its ticker before advancing the clock.
	time.Sleep(50 * time.Millisecond)
	src.Send(rgbaFrame(4, 2, 0x42))
	mock.Add(pump.Interval())

	select {
	case <-renders:
	case <-time.After(2 * time.Second):
		t.Fatal("pump never rendered after a tick")
	}

	cancel()
	require.NoError(t, <-done)
}

func TestRunPropagatesContractViolation(t *testing.T) {
	src := pipeline.NewLatestFrame()
	mock := clock.NewMock()

	pump, err := NewPump(src, nil, 4, 2, 30, WithClock(mock))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- pump.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	src.Send(rgbaFrame(16, 16, 0x01))
	mock.Add(pump.Interval())

	select {
	case err := <-done:
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrBadFrameSize))
	case <-time.After(2 * time.Second):
		t.Fatal("pump did not stop on a bad frame size")
	}
}
