package facedetect

import (
	"errors"
	"fmt"
	"image"
	"iter"
	"log/slog"
	"math"

	"gocv.io/x/gocv"
)

type SSIMParams struct {
	K1     float64
	K2     float64
	Window int
	Sigma  float64
}

func DefaultSSIMParams() SSIMParams {
	return SSIMParams{K1: 0.01, K2: 0.03, Window: 11, Sigma: 1.5}
}

// Similarity compares each candidate rectangle of img, normalized with
// equalization into the canonical square, against template. Values are
// produced lazily in candidate order; ranging again recomputes them. rects
// is read while ranging: a candidate that can no longer be scored yields
// NaN and is logged, and the sequence continues with the next one.
func Similarity(img gocv.Mat, rects []image.Rectangle, template gocv.Mat, opts Options, p SSIMParams) (iter.Seq2[int, float64], error) {
	n := opts.NormSize
	if p.Window <= 0 || p.Window%2 == 0 || p.Window > n {
		return nil, fmt.Errorf("ventana SSIM inválida: %d (máximo %d)", p.Window, n)
	}
	if template.Rows() != n || template.Cols() != n || template.Type() != gocv.MatTypeCV8U {
		return nil, fmt.Errorf("%w: se esperaba %dx%d en escala de grises", ErrTemplateSize, n, n)
	}
	for _, r := range rects {
		if err := checkRect(img, r); err != nil {
			return nil, err
		}
	}

	return func(yield func(int, float64) bool) {
		y := toUnitFloat(template)
		defer y.Close()

		for i, r := range rects {
			v, err := similarityOf(img, r, y, opts, p)
			if err != nil {
				slog.Error("similitud fallida", "index", i, "rect", r, "err", err)
				v = math.NaN()
			}
			if !yield(i, v) {
				return
			}
		}
	}, nil
}

func similarityOf(img gocv.Mat, r image.Rectangle, y gocv.Mat, opts Options, p SSIMParams) (float64, error) {
	roi, err := Normalize(img, r, opts, true, false)
	if err != nil {
		return 0, err
	}
	x := toUnitFloat(roi)
	roi.Close()
	defer x.Close()
	return mssim(x, y, p)
}

func toUnitFloat(m gocv.Mat) gocv.Mat {
	f := gocv.NewMat()
	m.ConvertTo(&f, gocv.MatTypeCV32F)
	f.DivideFloat(255)
	return f
}

// mssim is the mean structural similarity of two same-sized float images,
// excluding the (Window-1)/2 border spoiled by the blur.
func mssim(x, y gocv.Mat, p SSIMParams) (float64, error) {
	if x.Rows() != y.Rows() || x.Cols() != y.Cols() {
		return 0, errors.New("imágenes de distinto tamaño")
	}

	c1 := p.K1 * p.K1
	c2 := p.K2 * p.K2
	covNorm := float64(p.Window * p.Window)
	ksize := image.Pt(p.Window, p.Window)

	blur := func(src gocv.Mat) gocv.Mat {
		dst := gocv.NewMat()
		gocv.GaussianBlur(src, &dst, ksize, p.Sigma, p.Sigma, gocv.BorderDefault)
		return dst
	}
	product := func(a, b gocv.Mat) gocv.Mat {
		dst := gocv.NewMat()
		gocv.Multiply(a, b, &dst)
		return dst
	}

	xx := product(x, x)
	defer xx.Close()
	yy := product(y, y)
	defer yy.Close()
	xy := product(x, y)
	defer xy.Close()

	maps := []gocv.Mat{blur(x), blur(y), blur(xx), blur(yy), blur(xy)}
	defer func() {
		for _, m := range maps {
			m.Close()
		}
	}()

	data := make([][]float32, len(maps))
	for i, m := range maps {
		d, err := m.DataPtrFloat32()
		if err != nil {
			return 0, err
		}
		data[i] = d
	}
	ux, uy, uxx, uyy, uxy := data[0], data[1], data[2], data[3], data[4]

	rows, cols := x.Rows(), x.Cols()
	pad := (p.Window - 1) / 2
	var sum float64
	var n int
	for r := pad; r < rows-pad; r++ {
		for c := pad; c < cols-pad; c++ {
			i := r*cols + c
			mx, my := float64(ux[i]), float64(uy[i])
			vx := covNorm * (float64(uxx[i]) - mx*mx)
			vy := covNorm * (float64(uyy[i]) - my*my)
			vxy := covNorm * (float64(uxy[i]) - mx*my)

			a := (2*mx*my + c1) * (2*vxy + c2)
			b := (mx*mx + my*my + c1) * (vx + vy + c2)
			sum += a / b
			n++
		}
	}
	if n == 0 {
		return 0, errors.New("imagen menor que la ventana SSIM")
	}
	return sum / float64(n), nil
}
