package app

import "errors"

var (
	ErrInvalidInput      = errors.New("invalid input")
	ErrEmailExists       = errors.New("email already exists")
	ErrInvalidCredential = errors.New("invalid email or password")
	ErrUnauthorized      = errors.New("unauthorized")

	ErrValidation   = errors.New("validation failed")
	ErrStorage      = errors.New("file storage failed")
	ErrEmptyContent = errors.New("no text could be extracted from PDF")
	ErrNotAThesis   = errors.New("file does not appear to be a thesis")
	ErrNotFound     = errors.New("not found")
)

// ValidationError carries a message that is safe to show to the uploader.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// NotAThesisError keeps the classifier's raw answer for diagnostics.
type NotAThesisError struct {
	AIResponse string
}

func (e *NotAThesisError) Error() string {
	return ErrNotAThesis.Error()
}

func (e *NotAThesisError) Is(target error) bool {
	return target == ErrNotAThesis
}
