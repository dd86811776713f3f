package facedetect

import (
	"fmt"
	"image"
	"math"

	"gocv.io/x/gocv"
)

// Normalize crops rect out of img, optionally equalizes it, resizes it to
// NormSize+2*NormMargin and trims NormMargin from every side. Without
// preserveAspect the result is always NormSize x NormSize.
func Normalize(img gocv.Mat, rect image.Rectangle, opts Options, equalize, preserveAspect bool) (gocv.Mat, error) {
	if err := checkRect(img, rect); err != nil {
		return gocv.NewMat(), err
	}

	size := resizedSize(rect, opts, preserveAspect)
	m := opts.NormMargin
	if size.X <= 2*m || size.Y <= 2*m {
		return gocv.NewMat(), fmt.Errorf("%w: %v queda vacío tras recortar el margen", ErrInvalidRect, rect)
	}

	roi := img.Region(rect)
	defer roi.Close()

	src := roi
	if equalize {
		eq := gocv.NewMat()
		defer eq.Close()
		gocv.EqualizeHist(roi, &eq)
		src = eq
	}

	resized := gocv.NewMat()
	defer resized.Close()
	gocv.Resize(src, &resized, size, 0, 0, gocv.InterpolationCubic)

	shaved := resized.Region(image.Rect(m, m, size.X-m, size.Y-m))
	defer shaved.Close()
	return shaved.Clone(), nil
}

func resizedSize(rect image.Rectangle, opts Options, preserveAspect bool) image.Point {
	side := opts.side()
	if !preserveAspect {
		return image.Pt(side, side)
	}
	scale := float64(side) / float64(max(rect.Dx(), rect.Dy()))
	return image.Pt(
		int(math.Round(float64(rect.Dx())*scale)),
		int(math.Round(float64(rect.Dy())*scale)),
	)
}

// normalizable reports whether rect keeps some pixels in both directions
// once normalized with its aspect preserved and the margin trimmed.
func normalizable(rect image.Rectangle, opts Options) bool {
	if rect.Empty() {
		return false
	}
	size := resizedSize(rect, opts, true)
	return size.X > 2*opts.NormMargin && size.Y > 2*opts.NormMargin
}

func checkRect(img gocv.Mat, rect image.Rectangle) error {
	if img.Empty() {
		return ErrEmptyImage
	}
	bounds := image.Rect(0, 0, img.Cols(), img.Rows())
	if rect.Empty() || !rect.In(bounds) {
		return fmt.Errorf("%w: %v fuera de %v", ErrInvalidRect, rect, bounds)
	}
	return nil
}
