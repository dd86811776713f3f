package facedetect

import (
	"image"
	"math/rand"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"gocv.io/x/gocv"
)

type fakeSearcher struct {
	mu     sync.Mutex
	rects  []image.Rectangle
	params []SearchParams
	closed bool
}

func (f *fakeSearcher) Search(img gocv.Mat, p SearchParams) []image.Rectangle {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.params = append(f.params, p)
	return append([]image.Rectangle(nil), f.rects...)
}

func (f *fakeSearcher) Close() error {
	f.closed = true
	return nil
}

// noiseMat returns a deterministic random grayscale image.
func noiseMat(rows, cols int, seed int64) gocv.Mat {
	rng := rand.New(rand.NewSource(seed))
	m := gocv.NewMatWithSize(rows, cols, gocv.MatTypeCV8U)
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			m.SetUCharAt(r, c, uint8(rng.Intn(256)))
		}
	}
	return m
}

func flatMat(rows, cols int, v float64) gocv.Mat {
	return gocv.NewMatWithSizeFromScalar(gocv.NewScalar(v, 0, 0, 0), rows, cols, gocv.MatTypeCV8U)
}

func writePNG(t *testing.T, dir, name string, m gocv.Mat) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if !gocv.IMWrite(path, m) {
		t.Fatalf("IMWrite %s failed", path)
	}
	return path
}

// findCascade looks for the Haar model in the usual OpenCV install paths.
func findCascade() string {
	rel := Profiles["HAAR_FRONTALFACE_ALT2"].Path
	for _, dir := range []string{
		os.Getenv("DATA_DIR"),
		"/usr/share/opencv4",
		"/usr/local/share/opencv4",
		"/usr/share/opencv",
	} {
		if dir == "" {
			continue
		}
		if _, err := os.Stat(filepath.Join(dir, rel)); err == nil {
			return dir
		}
	}
	return ""
}
