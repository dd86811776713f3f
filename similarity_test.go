package facedetect

import (
	"errors"
	"image"
	"math"
	"testing"
)

func TestSimilaritySelf(t *testing.T) {
	img := noiseMat(240, 240, 11)
	defer img.Close()
	r := image.Rect(20, 30, 180, 190)

	template, err := Normalize(img, r, DefaultOptions(), true, false)
	if err != nil {
		t.Fatal(err)
	}
	defer template.Close()

	seq, err := Similarity(img, []image.Rectangle{r}, template, DefaultOptions(), DefaultSSIMParams())
	if err != nil {
		t.Fatalf("Similarity: %v", err)
	}
	n := 0
	for i, v := range seq {
		n++
		if i != 0 {
			t.Errorf("index: got %d, want 0", i)
		}
		if math.Abs(v-1) > 1e-4 {
			t.Errorf("self similarity: got %.6f, want 1", v)
		}
	}
	if n != 1 {
		t.Errorf("got %d results, want 1", n)
	}
}

func TestSimilarityBoundedAndOrdered(t *testing.T) {
	img := noiseMat(300, 300, 12)
	defer img.Close()
	other := noiseMat(300, 300, 13)
	defer other.Close()

	template, err := Normalize(other, image.Rect(50, 50, 250, 250), DefaultOptions(), true, false)
	if err != nil {
		t.Fatal(err)
	}
	defer template.Close()

	rects := []image.Rectangle{
		image.Rect(0, 0, 100, 100),
		image.Rect(100, 100, 250, 250),
		image.Rect(150, 20, 280, 120),
	}
	seq, err := Similarity(img, rects, template, DefaultOptions(), DefaultSSIMParams())
	if err != nil {
		t.Fatal(err)
	}

	next := 0
	for i, v := range seq {
		if i != next {
			t.Errorf("index: got %d, want %d", i, next)
		}
		next++
		if math.IsNaN(v) || v < -1 || v > 1 {
			t.Errorf("similarity[%d] = %v out of [-1, 1]", i, v)
		}
		// unrelated noise has no shared structure
		if v > 0.5 {
			t.Errorf("similarity[%d] = %v, expected low value for unrelated noise", i, v)
		}
	}
	if next != len(rects) {
		t.Errorf("got %d results, want %d", next, len(rects))
	}
}

func TestSimilarityEarlyStop(t *testing.T) {
	img := noiseMat(200, 200, 14)
	defer img.Close()
	template, err := Normalize(img, image.Rect(0, 0, 100, 100), DefaultOptions(), true, false)
	if err != nil {
		t.Fatal(err)
	}
	defer template.Close()

	rects := []image.Rectangle{
		image.Rect(0, 0, 100, 100),
		image.Rect(100, 100, 200, 200),
		image.Rect(50, 50, 150, 150),
	}
	seq, err := Similarity(img, rects, template, DefaultOptions(), DefaultSSIMParams())
	if err != nil {
		t.Fatal(err)
	}

	n := 0
	for range seq {
		n++
		break
	}
	if n != 1 {
		t.Errorf("consumed %d results, want 1", n)
	}

	// ranging again recomputes from the start
	first := math.NaN()
	for i, v := range seq {
		if i == 0 {
			first = v
		}
	}
	if math.Abs(first-1) > 1e-4 {
		t.Errorf("re-ranged first value: got %v, want 1", first)
	}
}

func TestSimilarityValidation(t *testing.T) {
	img := noiseMat(200, 200, 15)
	defer img.Close()
	good, err := Normalize(img, image.Rect(0, 0, 100, 100), DefaultOptions(), true, false)
	if err != nil {
		t.Fatal(err)
	}
	defer good.Close()
	small := noiseMat(50, 50, 16)
	defer small.Close()

	t.Run("template size", func(t *testing.T) {
		_, err := Similarity(img, []image.Rectangle{image.Rect(0, 0, 80, 80)}, small, DefaultOptions(), DefaultSSIMParams())
		if !errors.Is(err, ErrTemplateSize) {
			t.Errorf("got %v, want ErrTemplateSize", err)
		}
	})
	t.Run("rect outside", func(t *testing.T) {
		_, err := Similarity(img, []image.Rectangle{image.Rect(150, 150, 250, 250)}, good, DefaultOptions(), DefaultSSIMParams())
		if !errors.Is(err, ErrInvalidRect) {
			t.Errorf("got %v, want ErrInvalidRect", err)
		}
	})
	t.Run("even window", func(t *testing.T) {
		p := DefaultSSIMParams()
		p.Window = 10
		if _, err := Similarity(img, []image.Rectangle{image.Rect(0, 0, 80, 80)}, good, DefaultOptions(), p); err == nil {
			t.Error("expected error for even window")
		}
	})
}

func TestSimilarityReportsFailedCandidate(t *testing.T) {
	img := noiseMat(200, 200, 17)
	defer img.Close()
	template, err := Normalize(img, image.Rect(0, 0, 100, 100), DefaultOptions(), true, false)
	if err != nil {
		t.Fatal(err)
	}
	defer template.Close()

	rects := []image.Rectangle{
		image.Rect(0, 0, 100, 100),
		image.Rect(100, 100, 200, 200),
		image.Rect(0, 0, 100, 100),
	}
	seq, err := Similarity(img, rects, template, DefaultOptions(), DefaultSSIMParams())
	if err != nil {
		t.Fatal(err)
	}
	// rects is read lazily, so a later change reaches the sequence
	rects[1] = image.Rect(150, 150, 260, 260)

	got := map[int]float64{}
	for i, v := range seq {
		got[i] = v
	}
	if len(got) != len(rects) {
		t.Fatalf("got %d results, want %d", len(got), len(rects))
	}
	if !math.IsNaN(got[1]) {
		t.Errorf("failed candidate: got %v, want NaN", got[1])
	}
	for _, i := range []int{0, 2} {
		if math.Abs(got[i]-1) > 1e-4 {
			t.Errorf("similarity[%d] = %v, want 1", i, got[i])
		}
	}
}

func TestSimilarityCanonicalSize(t *testing.T) {
	img := noiseMat(200, 200, 18)
	defer img.Close()
	r := image.Rect(20, 20, 140, 160)

	for _, size := range []struct{ norm, margin int }{{100, 10}, {64, 6}, {48, 0}} {
		opts := DefaultOptions()
		opts.NormSize, opts.NormMargin = size.norm, size.margin

		template, err := Normalize(img, r, opts, true, false)
		if err != nil {
			t.Fatal(err)
		}

		// the widest odd window that fits the normalized face
		p := DefaultSSIMParams()
		p.Window = size.norm - 1
		seq, err := Similarity(img, []image.Rectangle{r}, template, opts, p)
		if err != nil {
			t.Errorf("NormSize %d margin %d: %v", size.norm, size.margin, err)
			template.Close()
			continue
		}
		for _, v := range seq {
			if math.Abs(v-1) > 1e-4 {
				t.Errorf("NormSize %d margin %d: self similarity %v", size.norm, size.margin, v)
			}
		}

		p.Window = size.norm + 1
		if _, err := Similarity(img, []image.Rectangle{r}, template, opts, p); err == nil {
			t.Errorf("NormSize %d: window %d larger than the face was accepted", size.norm, p.Window)
		}
		template.Close()
	}
}
