package facedetect

import (
	"errors"
	"image"
	"os"
	"sync"

	"gocv.io/x/gocv"
)

// SearchFlags mirror the OpenCV CASCADE_* flag values.
type SearchFlags int

const (
	FlagDoCannyPruning    SearchFlags = 1
	FlagFindBiggestObject SearchFlags = 4
)

func (f SearchFlags) Has(flag SearchFlags) bool {
	return f&flag != 0
}

type SearchParams struct {
	ScaleFactor  float64
	MinNeighbors int
	Flags        SearchFlags
	MinSize      image.Point
	MaxSize      image.Point
}

// Searcher is a multi-scale cascade search over a grayscale image.
type Searcher interface {
	Search(img gocv.Mat, p SearchParams) []image.Rectangle
	Close() error
}

type haarSearcher struct {
	mu  sync.Mutex
	cls gocv.CascadeClassifier
}

func newHaarSearcher(path string) (*haarSearcher, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	cls := gocv.NewCascadeClassifier()
	if !cls.Load(path) {
		cls.Close()
		return nil, errors.New("carga de haarcascade falló")
	}
	return &haarSearcher{cls: cls}, nil
}

func (s *haarSearcher) Search(img gocv.Mat, p SearchParams) []image.Rectangle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cls.DetectMultiScaleWithParams(img, p.ScaleFactor, p.MinNeighbors, int(p.Flags), p.MinSize, p.MaxSize)
}

func (s *haarSearcher) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cls.Close()
}
