package record

import (
	"io"
	"log/slog"
	"time"

	"github.com/at-wat/ebml-go/mkvcore"
	"github.com/at-wat/ebml-go/webm"
	"github.com/pkg/errors"
)

// CodecID is the container codec tag, fixed at build time.
const CodecID = "V_MJPEG"

// MKVMuxer writes a single Motion-JPEG video track into a Matroska container.
type MKVMuxer struct {
	videoWriter webm.BlockWriteCloser
	logger      *slog.Logger
	frames      uint64
	width       int
	height      int
	fps         float64
}

// NewMKVMuxer creates a Matroska muxer for the given session geometry. The
// fps passed here must equal the source's measured frame rate: it becomes
// the track's DefaultDuration, and a mismatch produces a file that plays
// back at the wrong speed.
func NewMKVMuxer(w io.Writer, width, height int, fps float64) (*MKVMuxer, error) {
	if width <= 0 || height <= 0 {
		return nil, errors.Errorf("invalid track size %dx%d", width, height)
	}
	if fps <= 0 {
		return nil, errors.Errorf("invalid track frame rate %v", fps)
	}

	m := &MKVMuxer{
		logger: slog.With("component", "mkv_muxer"),
		width:  width,
		height: height,
		fps:    fps,
	}

	// Wrap writer with basic error handling
	writeCloser := &writerCloser{
		writer: w,
		logger: m.logger,
		closed: false,
	}

	writers, err := webm.NewSimpleBlockWriter(writeCloser, []webm.TrackEntry{
		{
			Name:            "Video",
			TrackNumber:     1,
			TrackUID:        1,
			CodecID:         CodecID,
			TrackType:       1, // Video track type
			DefaultDuration: uint64(float64(time.Second) / fps),
			Video: &webm.Video{
				PixelWidth:  uint64(width),
				PixelHeight: uint64(height),
			},
		},
	},
		mkvcore.WithEBMLHeader(&webm.EBMLHeader{
			EBMLVersion:        1,
			EBMLReadVersion:    1,
			EBMLMaxIDLength:    4,
			EBMLMaxSizeLength:  8,
			DocType:            "matroska",
			DocTypeVersion:     4,
			DocTypeReadVersion: 2,
		}),
		mkvcore.WithSegmentInfo(&webm.Info{
			TimecodeScale: 1000000, // 1ms ticks
			MuxingApp:     "camcord",
			WritingApp:    "camcord",
			DateUTC:       time.Now(),
		}),
		mkvcore.WithOnFatalHandler(func(err error) {
			m.logger.Error("Matroska writer fatal error", "error", err)
		}),
	)
	if err != nil {
		m.logger.Error("Failed to create Matroska writer", "error", err)
		return nil, err
	}

	m.videoWriter = writers[0]
	m.logger.Debug("Matroska container initialized",
		"codec", CodecID, "width", width, "height", height, "fps", fps)
	return m, nil
}

// WriteFrame appends one JPEG frame. Every Motion-JPEG frame is a keyframe.
func (m *MKVMuxer) WriteFrame(data []byte, pts time.Duration) error {
	if m.videoWriter == nil {
		return errors.New("muxer is closed")
	}
	if len(data) == 0 {
		return nil
	}

	if _, err := m.videoWriter.Write(true, pts.Milliseconds(), data); err != nil {
		m.logger.Error("Failed to write video frame", "error", err, "size", len(data))
		return err
	}

	m.frames++
	return nil
}

// FrameCount implements Muxer.
func (m *MKVMuxer) FrameCount() uint64 {
	return m.frames
}

// Close finalizes the Matroska container. Without it the cluster metadata is
// never flushed and the file is unplayable.
func (m *MKVMuxer) Close() error {
	if m.videoWriter == nil {
		return nil
	}

	err := m.videoWriter.Close()
	m.videoWriter = nil
	if err != nil {
		m.logger.Warn("Video writer close error", "error", err)
		return err
	}

	m.logger.Debug("Matroska container finalized", "frames", m.frames)
	return nil
}
