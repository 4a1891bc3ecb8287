package vision

import (
	"errors"
	"fmt"
)

var (
	// ErrModelNotFound means the model file is missing on disk.
	ErrModelNotFound = errors.New("model not found")
	// ErrNotPrepared means inference was requested before Prepare succeeded.
	ErrNotPrepared = errors.New("detector not prepared")
	// ErrInvalidInput means the frame or crop could not be used.
	ErrInvalidInput = errors.New("invalid input")
)

// ModelLoadError wraps a failure to load or initialize a model session.
type ModelLoadError struct {
	Path string
	Err  error
}

func (e *ModelLoadError) Error() string {
	return fmt.Sprintf("load model %s: %v", e.Path, e.Err)
}

func (e *ModelLoadError) Unwrap() error { return e.Err }

// InferenceError wraps a per-call inference failure at a named stage.
type InferenceError struct {
	Stage string
	Err   error
}

func (e *InferenceError) Error() string {
	return fmt.Sprintf("inference failed at %s: %v", e.Stage, e.Err)
}

func (e *InferenceError) Unwrap() error { return e.Err }
