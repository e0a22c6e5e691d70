package video

import (
	"bytes"
	"encoding/binary"
	"errors"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"
)

// indexedFrames returns the number of frames listed in the idx1 chunk
// of an AVI file
func indexedFrames(t *testing.T, path string) int {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("readFile: %v", err)
	}
	if !bytes.HasPrefix(data, []byte("RIFF")) {
		t.Fatalf("%v is not a RIFF file", path)
	}

	i := bytes.LastIndex(data, []byte("idx1"))
	if i < 0 || i+8 > len(data) {
		t.Fatalf("%v has no index", path)
	}
	return int(binary.LittleEndian.Uint32(data[i+4:i+8])) / 16
}

func frame(w, h int, c color.Color) image.Image {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func TestFrameCount(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vods", "model.avi")
	r := NewRecorder(path, 0)
	if r.FPS() != DefaultFPS {
		t.Errorf("want default fps %v, have %v", DefaultFPS, r.FPS())
	}

	for i := 0; i < 12; i++ {
		if err := r.Write(frame(32, 24, color.Gray{Y: uint8(20 * i)})); err != nil {
			t.Fatalf("write frame %v: %v", i, err)
		}
	}
	if err := r.Seal(); err != nil {
		t.Fatalf("seal: %v", err)
	}

	if r.Frames() != 12 {
		t.Errorf("want 12 frames, have %v", r.Frames())
	}
	if n := indexedFrames(t, path); n != 12 {
		t.Errorf("want 12 indexed frames, have %v", n)
	}
}

func TestFrameSizeChange(t *testing.T) {
	r := NewRecorder(filepath.Join(t.TempDir(), "v.avi"), 10)
	t.Cleanup(func() { r.Seal() })

	if err := r.Write(frame(16, 16, color.White)); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := r.Write(frame(8, 16, color.White)); !errors.Is(err, ErrFrameSize) {
		t.Errorf("want ErrFrameSize, have %v", err)
	}

	// Frames with offset bounds but the same size are accepted
	offset := image.NewRGBA(image.Rect(5, 5, 21, 21))
	if err := r.Write(offset); err != nil {
		t.Errorf("write offset frame: %v", err)
	}
	if r.Frames() != 2 {
		t.Errorf("want 2 frames, have %v", r.Frames())
	}
}

func TestSeal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "v.avi")
	r := NewRecorder(path, 10)
	if err := r.Write(frame(8, 8, color.Black)); err != nil {
		t.Fatalf("write: %v", err)
	}

	for i := 0; i < 2; i++ {
		if err := r.Seal(); err != nil {
			t.Fatalf("seal %v: %v", i, err)
		}
	}
	if !r.Sealed() {
		t.Error("recorder should report sealed")
	}
	if err := r.Write(frame(8, 8, color.Black)); !errors.Is(err, ErrSealed) {
		t.Errorf("want ErrSealed, have %v", err)
	}
	if n := indexedFrames(t, path); n != 1 {
		t.Errorf("want 1 indexed frame, have %v", n)
	}
}

func TestNoFrames(t *testing.T) {
	path := filepath.Join(t.TempDir(), "v.avi")
	r := NewRecorder(path, 10)
	if err := r.Seal(); err != nil {
		t.Fatalf("seal: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("recorder without frames should not create a file: %v", err)
	}
}
