// example/main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"

	"gocv.io/x/gocv"

	"github.com/user0608/facedetect"
)

const (
	exitFaces   = 0
	exitFatal   = 1
	exitNoFaces = 2
)

func setupLogger(level string) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if os.Getenv("GO_ENV") == "production" {
		slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, opts)))
		return
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, opts)))
}

func main() {
	os.Exit(run())
}

func run() int {
	dataDir := flag.String("data-dir", "", "directorio base de los modelos (DATA_DIR)")
	profile := flag.String("profile", "", "perfil de cascada")
	biggest := flag.Bool("biggest", false, "solo el rostro más grande")
	best := flag.Bool("best", false, "solo el mejor rostro")
	center := flag.Bool("center", false, "imprimir el centro en lugar del rectángulo")
	query := flag.Bool("q", false, "solo consultar: salida 0 si hay rostros, 2 si no")
	search := flag.String("search", "", "imagen de referencia para buscar rostros similares")
	threshold := flag.Float64("threshold", facedetect.DefaultMatchThreshold, "similitud mínima para -search")
	output := flag.String("o", "", "guardar imagen anotada (solo con una entrada)")
	workers := flag.Int("workers", 0, "workers concurrentes (0 = CPUs)")
	skip := flag.Bool("skip-invalid", false, "omitir imágenes que no se pueden cargar")
	level := flag.String("log-level", "info", "debug, info, warn, error")
	flag.Parse()

	setupLogger(*level)

	paths := flag.Args()
	if len(paths) == 0 {
		fmt.Fprintln(os.Stderr, "uso: facedetect [opciones] imagen...")
		return exitFatal
	}
	if *output != "" && len(paths) != 1 {
		fmt.Fprintln(os.Stderr, "-o requiere una sola imagen")
		return exitFatal
	}

	opts, err := facedetect.OptionsFromEnv()
	if err != nil {
		slog.Error("configuración", "err", err)
		return exitFatal
	}
	if *dataDir != "" {
		opts.DataDir = *dataDir
	}
	if *profile != "" {
		opts.Profile = *profile
	}

	d, err := facedetect.New(&opts)
	if err != nil {
		slog.Error("init", "err", err)
		return exitFatal
	}
	defer d.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	bo := facedetect.BatchOptions{Workers: *workers, Biggest: *biggest, SkipInvalid: *skip}

	if *search != "" {
		matches, err := d.MatchFiles(ctx, *search, paths, *threshold, bo)
		if err != nil {
			slog.Error("búsqueda", "err", err)
			return exitFatal
		}
		for _, m := range matches {
			fmt.Printf("%s %s %.4f\n", m.Path, formatRect(m.Face, *center), m.Similarity)
		}
		if len(matches) == 0 {
			return exitNoFaces
		}
		return exitFaces
	}

	results, err := d.AnalyzeFiles(ctx, paths, bo)
	if err != nil {
		slog.Error("procesar", "err", err)
		return exitFatal
	}

	found := false
	for _, r := range results {
		if r.Err != nil {
			continue
		}
		faces := r.Analysis.Faces
		if *best {
			if f, ok := r.Analysis.BestFace(); ok {
				faces = []facedetect.Face{f}
			}
		}
		found = found || len(faces) > 0
		if *query {
			continue
		}
		for _, f := range faces {
			if len(paths) > 1 {
				fmt.Printf("%s: ", r.Path)
			}
			fmt.Println(formatRect(f, *center))
		}
	}

	if *output != "" && results[0].Err == nil {
		if err := writeAnnotated(paths[0], *output, results[0].Analysis); err != nil {
			slog.Error("guardar out", "err", err)
			return exitFatal
		}
	}

	if !found {
		return exitNoFaces
	}
	return exitFaces
}

func formatRect(f facedetect.Face, center bool) string {
	r := f.Rect
	if center {
		return fmt.Sprintf("%d %d %d", r.Min.X+r.Dx()/2, r.Min.Y+r.Dy()/2, (r.Dx()+r.Dy())/2)
	}
	return fmt.Sprintf("%d %d %d %d", r.Min.X, r.Min.Y, r.Dx(), r.Dy())
}

func writeAnnotated(in, out string, a facedetect.Analysis) error {
	img := gocv.IMRead(in, gocv.IMReadGrayScale)
	defer img.Close()
	if img.Empty() {
		return &facedetect.InputError{Path: in, Err: fmt.Errorf("decode vacío")}
	}
	annotated := facedetect.Annotate(img, a)
	defer annotated.Close()
	if !gocv.IMWrite(out, annotated) {
		return fmt.Errorf("no se pudo escribir %s", out)
	}
	return nil
}
