package main

import (
	"errors"
	"image"
	"io"
	"math"
	"mime/multipart"
	"net/http"
	"slices"
	"strconv"

	"github.com/gabriel-vasile/mimetype"
	"github.com/labstack/echo/v4"
	"github.com/user0608/facedetect"
	"github.com/user0608/goones/answer"
	"github.com/user0608/goones/errs"
	"gocv.io/x/gocv"
)

var acceptedTypes = []string{"image/png", "image/jpeg"}

type faceJSON struct {
	X              int     `json:"x"`
	Y              int     `json:"y"`
	Width          int     `json:"width"`
	Height         int     `json:"height"`
	Rank           int     `json:"rank"`
	Fitness        float64 `json:"fitness"`
	Sharpness      float64 `json:"sharpness"`
	Size           float64 `json:"size"`
	CenterDistance float64 `json:"center_distance"`
}

type analysisJSON struct {
	Width  int        `json:"width"`
	Height int        `json:"height"`
	Best   int        `json:"best"`
	Faces  []faceJSON `json:"faces"`
}

type similarityJSON struct {
	Face       faceJSON `json:"face"`
	Similarity float64  `json:"similarity"`
}

func toFaceJSON(f facedetect.Face) faceJSON {
	return faceJSON{
		X:              f.Rect.Min.X,
		Y:              f.Rect.Min.Y,
		Width:          f.Rect.Dx(),
		Height:         f.Rect.Dy(),
		Rank:           f.Rank,
		Fitness:        f.Fitness,
		Sharpness:      f.Sharpness,
		Size:           f.Size,
		CenterDistance: f.CenterDistance,
	}
}

func toAnalysisJSON(a facedetect.Analysis) analysisJSON {
	out := analysisJSON{Width: a.Width, Height: a.Height, Best: a.Best, Faces: []faceJSON{}}
	for _, f := range a.Faces {
		out.Faces = append(out.Faces, toFaceJSON(f))
	}
	return out
}

func readImage(r io.Reader) ([]byte, error) {
	content, err := io.ReadAll(r)
	if err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, errs.BadRequestDirect("la foto enviada está incompleta o dañada")
		}
		return nil, errs.InternalErrorDirect("no se pudo leer el cuerpo de la solicitud")
	}
	if len(content) == 0 {
		return nil, errs.BadRequestDirect("la foto enviada en la solicitud está vacía")
	}
	mime := mimetype.Detect(content)
	if !slices.Contains(acceptedTypes, mime.String()) {
		return nil, errs.BadRequestDirect("solo se aceptan imágenes en formato PNG o JPG")
	}
	return content, nil
}

func readFormImage(c echo.Context, field string) ([]byte, error) {
	fh, err := c.FormFile(field)
	if err != nil {
		return nil, errs.BadRequestDirect("falta el archivo " + field)
	}
	return readFormFile(fh)
}

func readFormFile(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, errs.InternalErrorDirect("no se pudo abrir el archivo enviado")
	}
	defer f.Close()
	return readImage(f)
}

// analyze decodes content and ranks its faces. The returned Mat is the
// equalized grayscale image and must be closed.
func analyze(d *facedetect.Detector, content []byte, biggest bool) (gocv.Mat, facedetect.Analysis, error) {
	img, a, err := d.AnalyzeBytes(content, biggest)
	if facedetect.IsInputError(err) {
		return img, a, errs.BadRequestDirect("no se pudo decodificar la imagen")
	}
	return img, a, err
}

func NewFacesHandle(d *facedetect.Detector) echo.HandlerFunc {
	return func(c echo.Context) error {
		content, err := readImage(c.Request().Body)
		if err != nil {
			return answer.Err(c, err)
		}
		biggest, _ := strconv.ParseBool(c.QueryParam("biggest"))

		img, a, err := analyze(d, content, biggest)
		defer img.Close()
		if err != nil {
			return answer.Err(c, err)
		}
		return c.JSON(http.StatusOK, toAnalysisJSON(a))
	}
}

func NewBestFaceHandle(d *facedetect.Detector) echo.HandlerFunc {
	return func(c echo.Context) error {
		content, err := readImage(c.Request().Body)
		if err != nil {
			return answer.Err(c, err)
		}
		img, a, err := analyze(d, content, false)
		defer img.Close()
		if err != nil {
			return answer.Err(c, err)
		}
		best, ok := a.BestFace()
		if !ok {
			return answer.Err(c, errs.BadRequestDirect("sin rostro"))
		}

		face, err := d.Template(img, best.Rect)
		if err != nil {
			return answer.Err(c, err)
		}
		defer face.Close()
		return blob(c, face)
	}
}

func NewFaceCropHandle(d *facedetect.Detector, opts facedetect.CropOptions) echo.HandlerFunc {
	return func(c echo.Context) error {
		content, err := readImage(c.Request().Body)
		if err != nil {
			return answer.Err(c, err)
		}
		img, a, err := analyze(d, content, false)
		defer img.Close()
		if err != nil {
			return answer.Err(c, err)
		}
		best, ok := a.BestFace()
		if !ok {
			return answer.Err(c, errs.BadRequestDirect("sin rostro"))
		}

		out, err := facedetect.CropFace(img, best.Rect, opts)
		if err != nil {
			return answer.Err(c, err)
		}
		defer out.Close()
		return blob(c, out)
	}
}

func NewSimilarityHandle(d *facedetect.Detector) echo.HandlerFunc {
	return func(c echo.Context) error {
		refContent, err := readFormImage(c, "reference")
		if err != nil {
			return answer.Err(c, err)
		}
		content, err := readFormImage(c, "image")
		if err != nil {
			return answer.Err(c, err)
		}

		refImg, refAnalysis, err := analyze(d, refContent, true)
		defer refImg.Close()
		if err != nil {
			return answer.Err(c, err)
		}
		ref, ok := refAnalysis.BestFace()
		if !ok {
			return answer.Err(c, errs.BadRequestDirect("sin rostro en la referencia"))
		}
		template, err := d.Template(refImg, ref.Rect)
		if err != nil {
			return answer.Err(c, err)
		}
		defer template.Close()

		img, a, err := analyze(d, content, false)
		defer img.Close()
		if err != nil {
			return answer.Err(c, err)
		}

		rects := make([]image.Rectangle, len(a.Faces))
		for i, f := range a.Faces {
			rects[i] = f.Rect
		}
		results := []similarityJSON{}
		if len(rects) > 0 {
			seq, err := d.Similarity(img, rects, template)
			if err != nil {
				return answer.Err(c, err)
			}
			for i, v := range seq {
				if math.IsNaN(v) {
					return answer.Err(c, errs.InternalErrorDirect("no se pudo calcular la similitud"))
				}
				results = append(results, similarityJSON{Face: toFaceJSON(a.Faces[i]), Similarity: v})
			}
		}
		return c.JSON(http.StatusOK, results)
	}
}

func blob(c echo.Context, m gocv.Mat) error {
	buf, err := gocv.IMEncode(gocv.PNGFileExt, m)
	if err != nil {
		return answer.Err(c, err)
	}
	defer buf.Close()
	bytes := make([]byte, len(buf.GetBytes()))
	copy(bytes, buf.GetBytes())
	return c.Blob(http.StatusOK, mimetype.Detect(bytes).String(), bytes)
}
