package facedetect

import (
	"fmt"
	"image"
	"os"

	pigo "github.com/esimov/pigo/core"
	"gocv.io/x/gocv"
)

const (
	pigoShiftFactor  = 0.1
	pigoIoUThreshold = 0.2
	pigoMinQuality   = 5.0
)

// pigoSearcher runs the pigo pixel-intensity cascade. It has no notion of
// neighbor counts or Canny pruning; clustering plus a quality threshold
// play that role.
type pigoSearcher struct {
	classifier *pigo.Pigo
}

func newPigoSearcher(path string) (*pigoSearcher, error) {
	cascade, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	classifier, err := pigo.NewPigo().Unpack(cascade)
	if err != nil {
		return nil, fmt.Errorf("unpack cascade: %w", err)
	}
	return &pigoSearcher{classifier: classifier}, nil
}

func (s *pigoSearcher) Search(img gocv.Mat, p SearchParams) []image.Rectangle {
	cParams := pigo.CascadeParams{
		MinSize:     p.MinSize.X,
		MaxSize:     p.MaxSize.X,
		ShiftFactor: pigoShiftFactor,
		ScaleFactor: p.ScaleFactor,
		ImageParams: pigoImage(img),
	}

	dets := s.classifier.RunCascade(cParams, 0.0)
	dets = s.classifier.ClusterDetections(dets, pigoIoUThreshold)
	return pigoRects(dets, p.Flags.Has(FlagFindBiggestObject))
}

// pigoImage lays img out as the packed row-major buffer pigo expects.
// Region views are not continuous and are copied first.
func pigoImage(img gocv.Mat) pigo.ImageParams {
	if !img.IsContinuous() {
		img = img.Clone()
		defer img.Close()
	}
	return pigo.ImageParams{
		Pixels: img.ToBytes(),
		Rows:   img.Rows(),
		Cols:   img.Cols(),
		Dim:    img.Cols(),
	}
}

func (s *pigoSearcher) Close() error {
	s.classifier = nil
	return nil
}

// pigoRects converts center/diameter detections into rectangles, keeping
// only the highest quality one when biggest is set.
func pigoRects(dets []pigo.Detection, biggest bool) []image.Rectangle {
	var rects []image.Rectangle
	var bestQ float32
	for _, det := range dets {
		if det.Q < pigoMinQuality {
			continue
		}
		half := det.Scale / 2
		r := image.Rect(det.Col-half, det.Row-half, det.Col+half, det.Row+half)
		if !biggest {
			rects = append(rects, r)
			continue
		}
		if len(rects) == 0 || det.Q > bestQ {
			rects = []image.Rectangle{r}
			bestQ = det.Q
		}
	}
	return rects
}
