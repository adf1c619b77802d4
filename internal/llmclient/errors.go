package llmclient

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrInferenceTimeout means the generation call exceeded its time bound.
	ErrInferenceTimeout = errors.New("inference timed out")
	// ErrInferenceBackend means the backend was unreachable or returned an error.
	ErrInferenceBackend = errors.New("inference backend error")
)

// InferenceError carries the provider and model of a failed generation call
// and classifies it as either ErrInferenceTimeout or ErrInferenceBackend.
type InferenceError struct {
	Provider string
	Model    string
	Kind     error
	Err      error
}

func (e *InferenceError) Error() string {
	return fmt.Sprintf("%s (%s/%s): %v", e.Kind, e.Provider, e.Model, e.Err)
}

// Unwrap exposes both the classification sentinel and the underlying cause.
func (e *InferenceError) Unwrap() []error {
	return []error{e.Kind, e.Err}
}

// classify wraps err as an InferenceError. Deadline expiry is a timeout,
// everything else a backend failure. Caller cancellation is passed through
// untouched so the orchestrator can tell it apart from a failed attempt.
func classify(ctx context.Context, provider, model string, err error) error {
	if err == nil {
		return nil
	}
	var ie *InferenceError
	if errors.As(err, &ie) {
		return err
	}
	if errors.Is(err, context.Canceled) && ctx.Err() != nil && !errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return err
	}
	kind := ErrInferenceBackend
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		kind = ErrInferenceTimeout
	}
	return &InferenceError{Provider: provider, Model: model, Kind: kind, Err: err}
}
