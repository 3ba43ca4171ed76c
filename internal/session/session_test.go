package session

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pixelfold/camcord/internal/core"
	"github.com/pixelfold/camcord/internal/pipeline"
	"github.com/pixelfold/camcord/internal/record"
)

var ebmlMagic = []byte{0x1A, 0x45, 0xDF, 0xA3}

const (
	testWidth  = 16
	testHeight = 8
	testFPS    = 30.0
)

func grayYUYV() *core.Frame {
	data := make([]byte, testWidth*testHeight*2)
	for i := range data {
		data[i] = 128
	}
	return &core.Frame{Data: data, Width: testWidth, Height: testHeight, Format: core.FormatYUYV}
}

// scriptedDevice serves its queued frames in order. Once the queue is empty
// it returns readErr if set; otherwise it blocks until release is closed and
// then serves malformed frames, which keeps the loop spinning without
// touching the persisted count.
type scriptedDevice struct {
	mu      sync.Mutex
	queue   []*core.Frame
	readErr error
	release chan struct{}
	closes  atomic.Int32
}

func newScriptedDevice(frames ...*core.Frame) *scriptedDevice {
	return &scriptedDevice{queue: frames, release: make(chan struct{})}
}

func (d *scriptedDevice) ReadFrame() (*core.Frame, error) {
	d.mu.Lock()
	if len(d.queue) > 0 {
		f := d.queue[0]
		d.queue = d.queue[1:]
		d.mu.Unlock()
		return f, nil
	}
	err := d.readErr
	d.mu.Unlock()

	if err != nil {
		return nil, err
	}
	<-d.release
	return &core.Frame{Width: 0, Height: 0, Format: core.FormatYUYV}, nil
}

func (d *scriptedDevice) Width() int               { return testWidth }
func (d *scriptedDevice) Height() int              { return testHeight }
func (d *scriptedDevice) FPS() float64             { return testFPS }
func (d *scriptedDevice) Format() core.PixelFormat { return core.FormatYUYV }
func (d *scriptedDevice) Name() string             { return "scripted" }
func (d *scriptedDevice) Close() error {
	d.closes.Add(1)
	return nil
}

// streamDevice produces valid frames forever at a few hundred fps.
type streamDevice struct {
	closes atomic.Int32
}

func (d *streamDevice) ReadFrame() (*core.Frame, error) {
	time.Sleep(2 * time.Millisecond)
	return grayYUYV(), nil
}

func (d *streamDevice) Width() int               { return testWidth }
func (d *streamDevice) Height() int              { return testHeight }
func (d *streamDevice) FPS() float64             { return testFPS }
func (d *streamDevice) Format() core.PixelFormat { return core.FormatYUYV }
func (d *streamDevice) Name() string             { return "stream" }
func (d *streamDevice) Close() error {
	d.closes.Add(1)
	return nil
}

func openTestSink(t *testing.T) (*record.Sink, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "out.mkv")
	sink, err := record.OpenSink(path, testWidth, testHeight, testFPS, 0)
	require.NoError(t, err)
	return sink, path
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for !cond() {
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for %s", what)
		case <-time.After(time.Millisecond):
		}
	}
}

func TestSessionPersistsEveryFrame(t *testing.T) {
	dev := newScriptedDevice(grayYUYV(), grayYUYV(), grayYUYV(), grayYUYV(), grayYUYV())
	sink, path := openTestSink(t)
	frames := pipeline.NewLatestFrame()
	sess := New(dev, sink, frames)

	require.NoError(t, sess.Start(context.Background()))
	waitFor(t, "all frames persisted", func() bool {
		return sess.Stats().FramesPersisted == 5
	})

	close(dev.release)
	require.NoError(t, sess.Stop())

	stats := sess.Stats()
	assert.Equal(t, uint64(5), stats.FramesPersisted)
	assert.GreaterOrEqual(t, stats.FramesCaptured, uint64(5))
	assert.Equal(t, int32(1), dev.closes.Load(), "device must be released exactly once")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, ebmlMagic), "file must be finalized on stop")
}

func TestSessionStopWhileStreaming(t *testing.T) {
	dev := &streamDevice{}
	sink, path := openTestSink(t)
	sess := New(dev, sink, pipeline.NewLatestFrame())

	require.NoError(t, sess.Start(context.Background()))
	waitFor(t, "first frame persisted", func() bool {
		return sess.Stats().FramesPersisted > 0
	})

	stopped := make(chan error, 1)
	go func() { stopped <- sess.Stop() }()

	select {
	case err := <-stopped:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Stop did not return while the device was streaming")
	}

	assert.Equal(t, int32(1), dev.closes.Load())
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, ebmlMagic))
}

func TestSessionDeviceErrorStillFinalizes(t *testing.T) {
	dev := newScriptedDevice(grayYUYV(), grayYUYV())
	dev.readErr = io.ErrUnexpectedEOF
	sink, path := openTestSink(t)
	sess := New(dev, sink, pipeline.NewLatestFrame())

	require.NoError(t, sess.Start(context.Background()))

	err := sess.Wait()
	require.Error(t, err)
	assert.True(t, errors.Is(err, io.ErrUnexpectedEOF))

	stats := sess.Stats()
	assert.Equal(t, uint64(2), stats.FramesPersisted, "frames read before the failure stay in the file")
	assert.Equal(t, int32(1), dev.closes.Load())

	data, readErr := os.ReadFile(path)
	require.NoError(t, readErr)
	assert.True(t, bytes.HasPrefix(data, ebmlMagic), "file must be playable after a device failure")
}

func TestSessionSkipsMalformedFrames(t *testing.T) {
	bad := &core.Frame{Data: make([]byte, 7), Width: testWidth, Height: testHeight, Format: core.FormatYUYV}
	dev := newScriptedDevice(grayYUYV(), bad, grayYUYV())
	sink, _ := openTestSink(t)
	frames := pipeline.NewLatestFrame()
	sess := New(dev, sink, frames)

	require.NoError(t, sess.Start(context.Background()))
	waitFor(t, "scripted frames consumed", func() bool {
		return sess.Stats().FramesCaptured >= 3
	})

	close(dev.release)
	require.NoError(t, sess.Stop())

	stats := sess.Stats()
	assert.Equal(t, uint64(2), stats.FramesPersisted, "malformed frames must not reach the sink")
	assert.GreaterOrEqual(t, stats.FramesSkipped, uint64(1))

	// Whatever reached the channel is display-ready.
	if frame, ok := frames.TryReceive(); ok {
		assert.Equal(t, core.FormatRGBA, frame.Format)
		assert.NoError(t, frame.Validate())
	}
}

func TestSessionDoubleStart(t *testing.T) {
	dev := newScriptedDevice()
	sink, _ := openTestSink(t)
	sess := New(dev, sink, pipeline.NewLatestFrame())

	require.NoError(t, sess.Start(context.Background()))
	require.Error(t, sess.Start(context.Background()))

	close(dev.release)
	require.NoError(t, sess.Stop())
}

func TestSessionStopBeforeStart(t *testing.T) {
	dev := newScriptedDevice()
	sink, _ := openTestSink(t)
	defer sink.Close()
	sess := New(dev, sink, pipeline.NewLatestFrame())

	require.Error(t, sess.Stop())
}

func TestSessionParentContextCancel(t *testing.T) {
	dev := newScriptedDevice()
	sink, _ := openTestSink(t)
	sess := New(dev, sink, pipeline.NewLatestFrame())

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, sess.Start(ctx))

	close(dev.release)
	cancel()

	select {
	case <-sess.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("session did not stop when the parent context was cancelled")
	}
	require.NoError(t, sess.Wait())
}
