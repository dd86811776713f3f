package facedetect

import (
	"context"
	"errors"
	"image"
	"iter"
	"log/slog"
	"math"
	"path/filepath"

	"gocv.io/x/gocv"
)

// Detector finds face candidates with a cascade Searcher and ranks or
// compares them. It is safe for concurrent use.
type Detector struct {
	opts   Options
	search Searcher
}

// New loads the cascade profile named by opts from opts.DataDir. A nil
// opts means DefaultOptions. Model loading failures are returned as
// *ConfigurationError.
func New(opts *Options) (*Detector, error) {
	if opts == nil {
		def := DefaultOptions()
		opts = &def
	}
	if err := opts.Validate(); err != nil {
		slog.Error("opciones inválidas", "err", err)
		return nil, err
	}

	profile := Profiles[opts.Profile]
	path := filepath.Join(opts.DataDir, profile.Path)

	var s Searcher
	var err error
	switch profile.Backend {
	case BackendPigo:
		s, err = newPigoSearcher(path)
	default:
		s, err = newHaarSearcher(path)
	}
	if err != nil {
		slog.Error("no se pudo cargar el modelo", "profile", opts.Profile, "path", path, "err", err)
		return nil, &ConfigurationError{Profile: opts.Profile, Path: path, Err: err}
	}
	return &Detector{opts: *opts, search: s}, nil
}

// NewWithSearcher builds a Detector around an already loaded Searcher.
func NewWithSearcher(s Searcher, opts *Options) (*Detector, error) {
	if s == nil {
		return nil, errors.New("searcher requerido")
	}
	if opts == nil {
		def := DefaultOptions()
		opts = &def
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return &Detector{opts: *opts, search: s}, nil
}

func (d *Detector) Options() Options {
	return d.opts
}

func (d *Detector) Close() error {
	return d.search.Close()
}

// SearchParams returns the cascade parameters used for an image of the
// given size.
func (d *Detector) SearchParams(width, height int, biggest bool) SearchParams {
	side := math.Sqrt(float64(width * height))
	minLen := int(side / d.opts.MinFaceDivisor)
	maxLen := int(side / d.opts.MaxFaceDivisor)

	flags := FlagDoCannyPruning
	if biggest {
		flags |= FlagFindBiggestObject
	}
	return SearchParams{
		ScaleFactor:  d.opts.ScaleFactor,
		MinNeighbors: d.opts.MinNeighbors,
		Flags:        flags,
		MinSize:      image.Pt(minLen, minLen),
		MaxSize:      image.Pt(maxLen, maxLen),
	}
}

// Detect returns the face candidates of a grayscale image, clipped to its
// bounds. Slivers left by clipping that cannot be normalized are dropped.
// With biggest at most one rectangle is returned. An empty result is not
// an error.
func (d *Detector) Detect(img gocv.Mat, biggest bool) ([]image.Rectangle, error) {
	if img.Empty() {
		return nil, ErrEmptyImage
	}
	W, H := img.Cols(), img.Rows()
	found := d.search.Search(img, d.SearchParams(W, H, biggest))

	bounds := image.Rect(0, 0, W, H)
	rects := make([]image.Rectangle, 0, len(found))
	for _, r := range found {
		r = r.Canon().Intersect(bounds)
		if !normalizable(r, d.opts) {
			slog.Debug("candidato descartado", "rect", r)
			continue
		}
		rects = append(rects, r)
	}
	if biggest && len(rects) > 1 {
		rects = []image.Rectangle{largest(rects)}
	}
	slog.Debug("detección", "width", W, "height", H, "faces", len(rects))
	return rects, nil
}

func largest(rects []image.Rectangle) image.Rectangle {
	best := rects[0]
	bestArea := best.Dx() * best.Dy()
	for i := 1; i < len(rects); i++ {
		a := rects[i].Dx() * rects[i].Dy()
		if a > bestArea {
			best = rects[i]
			bestArea = a
		}
	}
	return best
}

// DetectFile loads path as grayscale, equalizes it and detects faces. The
// returned Mat is owned by the caller even when no face is found.
func (d *Detector) DetectFile(path string, biggest bool) (gocv.Mat, []image.Rectangle, error) {
	img := gocv.IMRead(path, gocv.IMReadGrayScale)
	if img.Empty() {
		img.Close()
		return gocv.NewMat(), nil, &InputError{Path: path, Err: errors.New("decode vacío")}
	}
	return d.detectLoaded(img, biggest)
}

// DetectBytes is DetectFile for an encoded image buffer.
func (d *Detector) DetectBytes(buf []byte, biggest bool) (gocv.Mat, []image.Rectangle, error) {
	if len(buf) == 0 {
		return gocv.NewMat(), nil, &InputError{Err: ErrEmptyImage}
	}
	img, err := gocv.IMDecode(buf, gocv.IMReadGrayScale)
	if err != nil {
		return gocv.NewMat(), nil, &InputError{Err: err}
	}
	if img.Empty() {
		img.Close()
		return gocv.NewMat(), nil, &InputError{Err: errors.New("decode vacío")}
	}
	return d.detectLoaded(img, biggest)
}

func (d *Detector) detectLoaded(img gocv.Mat, biggest bool) (gocv.Mat, []image.Rectangle, error) {
	eq := gocv.NewMat()
	gocv.EqualizeHist(img, &eq)
	img.Close()

	rects, err := d.Detect(eq, biggest)
	if err != nil {
		eq.Close()
		return gocv.NewMat(), nil, err
	}
	return eq, rects, nil
}

func (d *Detector) Normalize(img gocv.Mat, rect image.Rectangle, equalize, preserveAspect bool) (gocv.Mat, error) {
	return Normalize(img, rect, d.opts, equalize, preserveAspect)
}

// Template is the canonical form of rect used as a similarity reference.
func (d *Detector) Template(img gocv.Mat, rect image.Rectangle) (gocv.Mat, error) {
	return Normalize(img, rect, d.opts, true, false)
}

func (d *Detector) Rank(img gocv.Mat, rects []image.Rectangle) ([]ScoreRecord, int, error) {
	return Rank(img, rects, d.opts)
}

func (d *Detector) Similarity(img gocv.Mat, rects []image.Rectangle, template gocv.Mat) (iter.Seq2[int, float64], error) {
	return Similarity(img, rects, template, d.opts, DefaultSSIMParams())
}

type Face struct {
	Rect image.Rectangle
	ScoreRecord
}

// Analysis is the ranked detection result of one image. Best is -1 when no
// face was found.
type Analysis struct {
	Width  int
	Height int
	Faces  []Face
	Best   int
}

func (a Analysis) BestFace() (Face, bool) {
	if a.Best < 0 || a.Best >= len(a.Faces) {
		return Face{}, false
	}
	return a.Faces[a.Best], true
}

// Analyze detects and ranks the faces of an equalized grayscale image.
func (d *Detector) Analyze(img gocv.Mat, biggest bool) (Analysis, error) {
	rects, err := d.Detect(img, biggest)
	if err != nil {
		return Analysis{}, err
	}
	return d.rankAll(img, rects)
}

func (d *Detector) rankAll(img gocv.Mat, rects []image.Rectangle) (Analysis, error) {
	a := Analysis{Width: img.Cols(), Height: img.Rows(), Best: -1}
	if len(rects) == 0 {
		return a, nil
	}
	scores, best, err := d.Rank(img, rects)
	if err != nil {
		return a, err
	}
	a.Faces = make([]Face, len(rects))
	for i := range rects {
		a.Faces[i] = Face{Rect: rects[i], ScoreRecord: scores[i]}
	}
	a.Best = best
	return a, nil
}

// AnalyzeFile is DetectFile followed by Rank.
func (d *Detector) AnalyzeFile(ctx context.Context, path string, biggest bool) (Analysis, error) {
	if err := ctx.Err(); err != nil {
		return Analysis{}, err
	}
	img, rects, err := d.DetectFile(path, biggest)
	if err != nil {
		return Analysis{}, err
	}
	defer img.Close()
	return d.rankAll(img, rects)
}

// AnalyzeBytes is AnalyzeFile for an encoded buffer. The returned Mat is
// the equalized grayscale image and must be closed by the caller.
func (d *Detector) AnalyzeBytes(buf []byte, biggest bool) (gocv.Mat, Analysis, error) {
	img, rects, err := d.DetectBytes(buf, biggest)
	if err != nil {
		return img, Analysis{}, err
	}
	a, err := d.rankAll(img, rects)
	return img, a, err
}
