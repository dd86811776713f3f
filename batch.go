package facedetect

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"runtime"
	"sync"
)

// DefaultMatchThreshold is the minimum similarity reported by MatchFiles.
const DefaultMatchThreshold = 0.3

// BatchOptions control how a set of images is processed. With SkipInvalid
// an image that cannot be loaded is reported on its result and the batch
// continues; otherwise the first input error stops the batch.
type BatchOptions struct {
	Workers     int
	Biggest     bool
	SkipInvalid bool
}

type FileResult struct {
	Path     string
	Analysis Analysis
	Err      error
}

type Match struct {
	Path       string
	Face       Face
	Similarity float64
}

// AnalyzeFiles detects and ranks the faces of every path concurrently.
// Results keep the order of paths.
func (d *Detector) AnalyzeFiles(ctx context.Context, paths []string, opts BatchOptions) ([]FileResult, error) {
	results := make([]FileResult, len(paths))
	err := d.forEach(ctx, paths, opts, func(i int, path string) error {
		a, err := d.AnalyzeFile(ctx, path, opts.Biggest)
		results[i] = FileResult{Path: path, Analysis: a, Err: err}
		return err
	})
	return results, err
}

// MatchFiles takes the best face of ref as template and returns, for every
// path, the faces whose similarity to it reaches threshold.
func (d *Detector) MatchFiles(ctx context.Context, ref string, paths []string, threshold float64, opts BatchOptions) ([]Match, error) {
	refImg, refRects, err := d.DetectFile(ref, true)
	if err != nil {
		return nil, err
	}
	defer refImg.Close()
	if len(refRects) == 0 {
		return nil, fmt.Errorf("sin rostro en la referencia %s", ref)
	}
	template, err := d.Template(refImg, refRects[0])
	if err != nil {
		return nil, err
	}
	defer template.Close()

	perFile := make([][]Match, len(paths))
	err = d.forEach(ctx, paths, opts, func(i int, path string) error {
		img, rects, err := d.DetectFile(path, opts.Biggest)
		if err != nil {
			return err
		}
		defer img.Close()
		if len(rects) == 0 {
			return nil
		}

		a, err := d.rankAll(img, rects)
		if err != nil {
			return err
		}
		seq, err := d.Similarity(img, rects, template)
		if err != nil {
			return err
		}
		for j, v := range seq {
			if math.IsNaN(v) {
				return fmt.Errorf("%w: %s rostro %d", ErrSimilarity, path, j)
			}
			if v >= threshold {
				perFile[i] = append(perFile[i], Match{Path: path, Face: a.Faces[j], Similarity: v})
			}
		}
		return nil
	})

	var matches []Match
	for _, m := range perFile {
		matches = append(matches, m...)
	}
	return matches, err
}

// forEach runs fn over paths on a worker pool. Input errors are logged and
// skipped when opts.SkipInvalid is set; any other error, and any input
// error otherwise, cancels the remaining work and is returned.
func (d *Detector) forEach(ctx context.Context, paths []string, opts BatchOptions, fn func(i int, path string) error) error {
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	workers = min(workers, max(len(paths), 1))

	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	jobs := make(chan int)
	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				if ctx.Err() != nil {
					continue
				}
				err := fn(i, paths[i])
				if err == nil {
					continue
				}
				if opts.SkipInvalid && IsInputError(err) {
					slog.Warn("imagen omitida", "path", paths[i], "err", err)
					continue
				}
				cancel(err)
			}
		}()
	}

feed:
	for i := range paths {
		select {
		case jobs <- i:
		case <-ctx.Done():
			break feed
		}
	}
	close(jobs)
	wg.Wait()

	return context.Cause(ctx)
}
