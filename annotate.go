package facedetect

import (
	"image"
	"image/color"
	"strconv"

	"gocv.io/x/gocv"
)

var (
	bestColor  = color.RGBA{0, 255, 0, 255}
	otherColor = color.RGBA{255, 0, 0, 255}
)

// Annotate returns a BGR copy of the grayscale img with every face of a
// outlined and labelled with its rank. The best face is drawn in green.
func Annotate(img gocv.Mat, a Analysis) gocv.Mat {
	out := gocv.NewMat()
	gocv.CvtColor(img, &out, gocv.ColorGrayToBGR)

	for i, f := range a.Faces {
		c, thickness := otherColor, 1
		if i == a.Best {
			c, thickness = bestColor, 2
		}
		gocv.Rectangle(&out, f.Rect, c, thickness)
		org := image.Pt(f.Rect.Min.X+2, f.Rect.Max.Y-4)
		gocv.PutText(&out, strconv.Itoa(f.Rank), org, gocv.FontHersheySimplex, 0.5, c, 1)
	}
	return out
}
