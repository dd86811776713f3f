package facedetect

import (
	"cmp"
	"image"
	"math"
	"slices"

	"gocv.io/x/gocv"
)

const (
	sharpnessWeight = 0.7
	centerWeight    = 0.1
	sizeWeight      = 0.2
)

// ScoreRecord holds the ranking attributes of one rectangle. Fitness and
// Rank are only comparable among records produced by the same Rank call.
type ScoreRecord struct {
	Sharpness      float64
	Size           float64
	CenterDistance float64
	SharpnessNorm  float64
	SizeNorm       float64
	Fitness        float64
	Rank           int
}

// Rank scores every rectangle by sharpness, size and centering and returns
// the records in input order together with the index of the best one.
func Rank(img gocv.Mat, rects []image.Rectangle, opts Options) ([]ScoreRecord, int, error) {
	if len(rects) == 0 {
		return nil, -1, ErrNoCandidates
	}

	scores := make([]ScoreRecord, len(rects))
	for i, r := range rects {
		e, err := sharpness(img, r, opts)
		if err != nil {
			return nil, -1, err
		}
		scores[i] = ScoreRecord{
			Sharpness:      e,
			Size:           float64(r.Dx()+r.Dy()) / 2,
			CenterDistance: centerDistance(img.Cols(), img.Rows(), r),
		}
	}
	return scores, rankScores(scores), nil
}

// sharpness is the mean absolute Laplacian response of the normalized
// region.
func sharpness(img gocv.Mat, r image.Rectangle, opts Options) (float64, error) {
	roi, err := Normalize(img, r, opts, false, true)
	if err != nil {
		return 0, err
	}
	defer roi.Close()

	lap := gocv.NewMat()
	defer lap.Close()
	gocv.Laplacian(roi, &lap, gocv.MatTypeCV32F, 1, 1, 0, gocv.BorderDefault)

	return gocv.Norm(lap, gocv.NormL1) / float64(roi.Rows()*roi.Cols()), nil
}

func centerDistance(w, h int, r image.Rectangle) float64 {
	dx := float64(w)/2 - float64(r.Min.X) + float64(r.Dx())/2
	dy := float64(h)/2 - float64(r.Min.Y) + float64(r.Dy())/2
	return math.Sqrt(dx*dx+dy*dy) / (float64(max(w, h)) / 2)
}

// rankScores fills the normalized fields, fitness and rank of scores in
// place and returns the index of the rank 0 record.
func rankScores(scores []ScoreRecord) int {
	var sharpMax, sizeMax float64
	for _, s := range scores {
		sharpMax = max(sharpMax, s.Sharpness)
		sizeMax = max(sizeMax, s.Size)
	}

	for i := range scores {
		s := &scores[i]
		s.SharpnessNorm = ratio(s.Sharpness, sharpMax)
		s.SizeNorm = ratio(s.Size, sizeMax)
		s.Fitness = s.SharpnessNorm*sharpnessWeight + (1-s.CenterDistance)*centerWeight + s.SizeNorm*sizeWeight
	}

	order := make([]int, len(scores))
	for i := range order {
		order[i] = i
	}
	slices.SortStableFunc(order, func(a, b int) int {
		return cmp.Compare(scores[b].Fitness, scores[a].Fitness)
	})
	for pos, idx := range order {
		scores[idx].Rank = pos
	}
	return order[0]
}

// ratio treats an all-zero batch as all scores zero.
func ratio(v, maxV float64) float64 {
	if maxV == 0 {
		return 0
	}
	return v / maxV
}
