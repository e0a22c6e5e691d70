// Package video records rendered frames to an MJPEG AVI file
package video

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/draw"
	"image/jpeg"
	"os"
	"path/filepath"

	"github.com/icza/mjpeg"
)

// DefaultFPS is the frame rate of videos when none is given
const DefaultFPS = 30

// Quality is the JPEG quality each frame is encoded with
const Quality = 90

var (
	// ErrSealed is returned when writing to a sealed Recorder
	ErrSealed = errors.New("recorder is sealed")

	// ErrFrameSize is returned for frames whose dimensions differ from
	// the first frame written
	ErrFrameSize = errors.New("frame size changed")
)

// Recorder appends frames to an MJPEG AVI file. The file is opened
// when the first frame is written, and its dimensions are fixed by
// that frame. A Recorder that never receives a frame writes nothing.
//
// The file is only a valid video once the Recorder is sealed.
type Recorder struct {
	path string
	fps  int

	writer mjpeg.AviWriter
	bounds image.Rectangle
	rgba   *image.RGBA
	buf    bytes.Buffer

	frames int
	sealed bool
}

// NewRecorder returns a new Recorder writing to path at fps frames per
// second. If fps is not positive, DefaultFPS is used.
func NewRecorder(path string, fps int) *Recorder {
	if fps <= 0 {
		fps = DefaultFPS
	}
	return &Recorder{path: path, fps: fps}
}

// Write appends a frame to the video
func (r *Recorder) Write(frame image.Image) error {
	if r.sealed {
		return fmt.Errorf("write: %w", ErrSealed)
	}

	size := frame.Bounds().Size()
	if r.writer == nil {
		if err := r.open(size); err != nil {
			return fmt.Errorf("write: %w", err)
		}
	} else if size != r.bounds.Size() {
		return fmt.Errorf("write: %w: want(%v) have(%v)", ErrFrameSize,
			r.bounds.Size(), size)
	}

	draw.Draw(r.rgba, r.bounds, frame, frame.Bounds().Min, draw.Src)
	r.buf.Reset()
	if err := jpeg.Encode(&r.buf, r.rgba, &jpeg.Options{Quality: Quality}); err != nil {
		return fmt.Errorf("write: could not encode frame %v: %w", r.frames,
			err)
	}
	if err := r.writer.AddFrame(r.buf.Bytes()); err != nil {
		return fmt.Errorf("write: could not add frame %v: %w", r.frames, err)
	}
	r.frames++
	return nil
}

// open creates the video file with frames of the given size
func (r *Recorder) open(size image.Point) error {
	if size.X <= 0 || size.Y <= 0 {
		return fmt.Errorf("open: empty frame %v", size)
	}
	if dir := filepath.Dir(r.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("open: %w", err)
		}
	}

	w, err := mjpeg.New(r.path, int32(size.X), int32(size.Y), int32(r.fps))
	if err != nil {
		return fmt.Errorf("open: %w", err)
	}
	r.writer = w
	r.bounds = image.Rect(0, 0, size.X, size.Y)
	r.rgba = image.NewRGBA(r.bounds)
	return nil
}

// Seal finalises the video file. Sealing more than once has no effect.
func (r *Recorder) Seal() error {
	if r.sealed {
		return nil
	}
	r.sealed = true

	if r.writer == nil {
		return nil
	}
	if err := r.writer.Close(); err != nil {
		return fmt.Errorf("seal: %w", err)
	}
	return nil
}

// Sealed returns whether the Recorder has been sealed
func (r *Recorder) Sealed() bool {
	return r.sealed
}

// Frames returns the number of frames written
func (r *Recorder) Frames() int {
	return r.frames
}

// Path returns the path of the video file
func (r *Recorder) Path() string {
	return r.path
}

// FPS returns the frame rate of the video
func (r *Recorder) FPS() int {
	return r.fps
}
