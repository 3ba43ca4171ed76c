package cmd

import (
	"context"
	"fmt"
	"image"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/pixelfold/camcord/config"
	"github.com/pixelfold/camcord/internal/capture"
	"github.com/pixelfold/camcord/internal/display"
	"github.com/pixelfold/camcord/internal/pipeline"
	"github.com/pixelfold/camcord/internal/record"
	"github.com/pixelfold/camcord/internal/session"
	"github.com/pixelfold/camcord/internal/util"
)

type RecordOptions struct {
	DeviceIndex int
	Width       int
	Height      int
	FPS         float64
	Output      string
	Quality     int
	NoDisplay   bool
}

func NewRecordCommand() *cobra.Command {
	opts := &RecordOptions{}

	cmd := &cobra.Command{
		Use:   "record",
		Short: "Record the camera to a container file with a live preview feed",
		Long: `Record opens the camera, writes every captured frame to a Matroska
file, and republishes the most recent frame to the preview buffer. Stop with
Ctrl-C; the file is finalized before the process exits.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			verbose, _ := cmd.Flags().GetBool("verbose")
			return ExecuteRecord(opts, verbose)
		},
		Example: `  # Record the default camera to the configured output path
  camcord record

  # Record camera 2 at 1280x720, 30 fps
  camcord record --device 2 --width 1280 --height 720 --fps 30

  # Record without the preview pump
  camcord record --no-display --output /tmp/capture.mkv`,
	}

	flags := cmd.Flags()
	flags.IntVarP(&opts.DeviceIndex, "device", "d", config.GetCameraIndex(), "Capture device index (/dev/video<N>)")
	flags.IntVar(&opts.Width, "width", config.GetCameraWidth(), "Requested capture width (0 = device default)")
	flags.IntVar(&opts.Height, "height", config.GetCameraHeight(), "Requested capture height (0 = device default)")
	flags.Float64Var(&opts.FPS, "fps", config.GetCameraFPS(), "Requested frame rate (0 = device default)")
	flags.StringVarP(&opts.Output, "output", "o", config.GetRecordPath(), "Output container file path")
	flags.IntVar(&opts.Quality, "quality", config.GetRecordQuality(), "JPEG quality for recorded frames (1-100)")
	flags.BoolVar(&opts.NoDisplay, "no-display", !config.GetDisplayEnabled(), "Disable the preview pump")

	return cmd
}

func ExecuteRecord(opts *RecordOptions, verbose bool) error {
	util.InitLogger(verbose)
	logger := util.GetLogger()

	// Startup is strictly ordered: device first, then sink, and only then
	// any goroutine. A failure here aborts before a file or thread exists.
	dev, err := capture.Open(opts.DeviceIndex, capture.Config{
		Width:  opts.Width,
		Height: opts.Height,
		FPS:    opts.FPS,
	})
	if err != nil {
		color.Red("Unable to open camera %d", opts.DeviceIndex)
		return err
	}
	fmt.Printf("camera: width %d, height %d, FPS: %g\n", dev.Width(), dev.Height(), dev.FPS())

	sink, err := record.OpenSink(opts.Output, dev.Width(), dev.Height(), dev.FPS(), opts.Quality)
	if err != nil {
		dev.Close()
		color.Red("Unable to open recording file %s", opts.Output)
		return err
	}

	frames := pipeline.NewLatestFrame()
	sess := session.New(dev, sink, frames)

	// Ctrl-C stands in for the window-close lifecycle event: it requests a
	// one-shot shutdown which the capture loop observes cooperatively.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := sess.Start(ctx); err != nil {
		sink.Close()
		dev.Close()
		return err
	}

	var pumpErr error
	if opts.NoDisplay {
		select {
		case <-ctx.Done():
		case <-sess.Done():
		}
	} else {
		pumpErr = runPump(ctx, sess, frames, dev.Width(), dev.Height(), dev.FPS())
	}

	// The controller blocks on loop termination so the sink close always
	// happens before the process exits.
	result := sess.Stop()
	stats := sess.Stats()
	if result != nil {
		// Surfaced as a diagnostic; shutdown itself succeeded and the
		// file was finalized, so the process still exits cleanly.
		logger.Error("Capture ended with error", "error", result)
	}
	color.Green("Recording saved to %s (%d frames, %d skipped)",
		sink.Path(), stats.FramesPersisted, stats.FramesSkipped)

	return pumpErr
}

// runPump drives the presentation side on the calling goroutine until the
// session ends, the context is cancelled, or the pump hits a contract
// violation.
func runPump(ctx context.Context, sess *session.Session, frames *pipeline.LatestFrame, width, height int, fps float64) error {
	logger := util.ComponentLogger("display")

	// Headless render target: the real surface is an external collaborator
	// that would pull the buffer via RenderImage.
	var repaints uint64
	target := display.TargetFunc(func(img *image.RGBA) {
		repaints++
		if repaints%256 == 0 {
			logger.Debug("Preview repainted", "repaints", repaints)
		}
	})

	pump, err := display.NewPump(frames, target, width, height, fps)
	if err != nil {
		return err
	}

	// The pump also winds down when the capture loop dies: a mid-session
	// error closes the preview's data feed like a graceful shutdown would.
	pumpCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		<-sess.Done()
		cancel()
	}()

	return pump.Run(pumpCtx)
}
