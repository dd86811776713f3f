package facedetect

import (
	"errors"
	"image"
	"math"

	"gocv.io/x/gocv"
)

// CropOptions describe a portrait-style crop around a face.
type CropOptions struct {
	OutputWidth  int
	OutputHeight int
	PaddingPct   float64
}

func DefaultCropOptions() CropOptions {
	return CropOptions{
		OutputWidth:  354,
		OutputHeight: 472,
		PaddingPct:   0.15,
	}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// CropFace pads face, widens it to the output aspect ratio while staying
// inside img, and resizes the region to the output size.
func CropFace(img gocv.Mat, face image.Rectangle, opts CropOptions) (gocv.Mat, error) {
	if opts.OutputWidth <= 0 || opts.OutputHeight <= 0 {
		return gocv.NewMat(), errors.New("tamaño de salida inválido")
	}
	if err := checkRect(img, face); err != nil {
		return gocv.NewMat(), err
	}

	bounds := image.Rect(0, 0, img.Cols(), img.Rows())
	region := fitAspect(padRect(face, opts.PaddingPct, bounds), float64(opts.OutputWidth)/float64(opts.OutputHeight), bounds)
	if region.Dx() <= 1 || region.Dy() <= 1 {
		return gocv.NewMat(), errors.New("recorte inválido")
	}

	roi := img.Region(region)
	defer roi.Close()

	out := gocv.NewMat()
	gocv.Resize(roi, &out, image.Pt(opts.OutputWidth, opts.OutputHeight), 0, 0, gocv.InterpolationLanczos4)
	return out, nil
}

func padRect(r image.Rectangle, pct float64, bounds image.Rectangle) image.Rectangle {
	pct = max(pct, 0)
	padX := int(math.Round(float64(r.Dx()) * pct))
	padY := int(math.Round(float64(r.Dy()) * pct))
	return image.Rect(
		clamp(r.Min.X-padX, bounds.Min.X, bounds.Max.X),
		clamp(r.Min.Y-padY, bounds.Min.Y, bounds.Max.Y),
		clamp(r.Max.X+padX, bounds.Min.X, bounds.Max.X),
		clamp(r.Max.Y+padY, bounds.Min.Y, bounds.Max.Y),
	)
}

// fitAspect grows r around its center to the target aspect ratio, then
// shifts it back inside bounds. Whatever still overflows is clamped.
func fitAspect(r image.Rectangle, aspect float64, bounds image.Rectangle) image.Rectangle {
	cw, ch := r.Dx(), r.Dy()
	if cw == 0 || ch == 0 {
		return r
	}
	center := image.Pt(r.Min.X+cw/2, r.Min.Y+ch/2)

	cur := float64(cw) / float64(ch)
	switch {
	case cur > aspect:
		newH := int(math.Round(float64(cw) / aspect))
		r.Min.Y = center.Y - newH/2
		r.Max.Y = r.Min.Y + newH
	case cur < aspect:
		newW := int(math.Round(float64(ch) * aspect))
		r.Min.X = center.X - newW/2
		r.Max.X = r.Min.X + newW
	}

	var shift image.Point
	if r.Min.X < bounds.Min.X {
		shift.X = bounds.Min.X - r.Min.X
	} else if r.Max.X > bounds.Max.X {
		shift.X = bounds.Max.X - r.Max.X
	}
	if r.Min.Y < bounds.Min.Y {
		shift.Y = bounds.Min.Y - r.Min.Y
	} else if r.Max.Y > bounds.Max.Y {
		shift.Y = bounds.Max.Y - r.Max.Y
	}
	return r.Add(shift).Intersect(bounds)
}
