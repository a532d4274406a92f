package ai

import (
	"context"
	"errors"
	"fmt"
)

// ErrNoCompletion means the provider answered but the response carried no text.
var ErrNoCompletion = errors.New("completion response has no text")

// Completer sends a single prompt to a text-completion endpoint.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// StatusError is returned for non-2xx provider responses.
type StatusError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s response status %d: %s", e.Provider, e.StatusCode, e.Body)
}
