package facedetect

import (
	"errors"
	"fmt"
)

var (
	ErrNoCandidates = errors.New("sin rectángulos candidatos")
	ErrInvalidRect  = errors.New("rectángulo inválido")
	ErrTemplateSize = errors.New("plantilla con tamaño inválido")
	ErrEmptyImage   = errors.New("imagen vacía")
	ErrSimilarity   = errors.New("no se pudo calcular la similitud")
)

// ConfigurationError reports a cascade model that is missing or fails to
// load. It is fatal for the run.
type ConfigurationError struct {
	Profile string
	Path    string
	Err     error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("no se pudo cargar %s desde %s: %v", e.Profile, e.Path, e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// InputError reports an image that cannot be loaded or decoded.
type InputError struct {
	Path string
	Err  error
}

func (e *InputError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("no se pudo cargar la imagen: %v", e.Err)
	}
	return fmt.Sprintf("no se pudo cargar la imagen %s: %v", e.Path, e.Err)
}

func (e *InputError) Unwrap() error { return e.Err }

func IsInputError(err error) bool {
	var ie *InputError
	return errors.As(err, &ie)
}
