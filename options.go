package facedetect

import (
	"errors"
	"fmt"
	"os"
	"strconv"
)

type Backend int

const (
	BackendHaar Backend = iota
	BackendPigo
)

// Profile names a cascade model file relative to Options.DataDir.
type Profile struct {
	Path    string
	Backend Backend
}

var Profiles = map[string]Profile{
	"HAAR_FRONTALFACE_ALT2":    {Path: "haarcascades/haarcascade_frontalface_alt2.xml", Backend: BackendHaar},
	"HAAR_FRONTALFACE_DEFAULT": {Path: "haarcascades/haarcascade_frontalface_default.xml", Backend: BackendHaar},
	"PIGO_FACEFINDER":          {Path: "pigo/facefinder", Backend: BackendPigo},
}

type Options struct {
	DataDir        string
	Profile        string
	NormSize       int
	NormMargin     int
	MinFaceDivisor float64
	MaxFaceDivisor float64
	ScaleFactor    float64
	MinNeighbors   int
}

func DefaultOptions() Options {
	return Options{
		DataDir:        "/usr/share/opencv4/",
		Profile:        "HAAR_FRONTALFACE_ALT2",
		NormSize:       100,
		NormMargin:     10,
		MinFaceDivisor: 20,
		MaxFaceDivisor: 2,
		ScaleFactor:    1.1,
		MinNeighbors:   4,
	}
}

// OptionsFromEnv overlays DATA_DIR, CASCADE_PROFILE, NORM_SIZE and
// NORM_MARGIN on the defaults.
func OptionsFromEnv() (Options, error) {
	opts := DefaultOptions()
	opts.DataDir = getEnv("DATA_DIR", opts.DataDir)
	opts.Profile = getEnv("CASCADE_PROFILE", opts.Profile)

	var err error
	if opts.NormSize, err = getEnvInt("NORM_SIZE", opts.NormSize); err != nil {
		return opts, err
	}
	if opts.NormMargin, err = getEnvInt("NORM_MARGIN", opts.NormMargin); err != nil {
		return opts, err
	}
	return opts, opts.Validate()
}

func (o Options) Validate() error {
	if o.NormSize <= 0 || o.NormMargin < 0 {
		return errors.New("tamaño de normalización inválido")
	}
	if o.NormSize <= o.NormMargin {
		return fmt.Errorf("NORM_SIZE (%d) debe ser mayor que NORM_MARGIN (%d)", o.NormSize, o.NormMargin)
	}
	if o.MinFaceDivisor <= 0 || o.MaxFaceDivisor <= 0 || o.MaxFaceDivisor > o.MinFaceDivisor {
		return errors.New("límites de tamaño de rostro inválidos")
	}
	if o.ScaleFactor <= 1 {
		return errors.New("scale factor debe ser mayor que 1")
	}
	if o.MinNeighbors < 0 {
		return errors.New("min neighbors negativo")
	}
	if _, ok := Profiles[o.Profile]; !ok {
		return fmt.Errorf("perfil desconocido: %q", o.Profile)
	}
	return nil
}

// side is the square a face is resized to before NormMargin is trimmed
// from every edge, leaving NormSize.
func (o Options) side() int {
	return o.NormSize + 2*o.NormMargin
}

func getEnv(k, d string) string {
	if val, ok := os.LookupEnv(k); ok && val != "" {
		return val
	}
	return d
}

func getEnvInt(k string, d int) (int, error) {
	val, ok := os.LookupEnv(k)
	if !ok || val == "" {
		return d, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return d, fmt.Errorf("%s: %w", k, err)
	}
	return n, nil
}
