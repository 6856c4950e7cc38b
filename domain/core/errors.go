package core

import (
	"errors"
	"fmt"
)

// Domain errors - centralized error definitions
var (
	// Ingestion errors
	ErrParse  = errors.New("parse error")
	ErrSchema = errors.New("schema error")

	ErrHeaderNotFound  = fmt.Errorf("%w: header marker not found", ErrParse)
	ErrNoUsableColumns = fmt.Errorf("%w: no usable columns", ErrSchema)
	ErrDuplicateInput  = fmt.Errorf("%w: participant has more than one export", ErrSchema)

	// Alignment errors
	ErrAlignment      = errors.New("alignment error")
	ErrEmptySecondary = fmt.Errorf("%w: secondary stream is empty", ErrAlignment)
	ErrEmptyPrimary   = fmt.Errorf("%w: primary stream is empty", ErrAlignment)
	ErrInvalidBin     = fmt.Errorf("%w: invalid bin width", ErrAlignment)

	// External collaborator errors
	ErrCapture = errors.New("capture error")

	ErrNotFound = errors.New("resource not found")
)

// Error constructors with context
func NewParseError(source string, err error) error {
	if err == nil {
		return fmt.Errorf("%w: %s", ErrParse, source)
	}
	return fmt.Errorf("%w: %s: %v", ErrParse, source, err)
}

func NewSchemaError(source string, reason string) error {
	return fmt.Errorf("%w: %s: %s", ErrSchema, source, reason)
}

func NewAlignmentError(reason string) error {
	return fmt.Errorf("%w: %s", ErrAlignment, reason)
}

func NewCaptureError(url string, attempts int, err error) error {
	return fmt.Errorf("%w: %s failed after %d attempts: %v", ErrCapture, url, attempts, err)
}

func NewNotFoundError(resource string, id string) error {
	return fmt.Errorf("%w: %s with id %s", ErrNotFound, resource, id)
}

// Error checking helpers
func IsParseError(err error) bool     { return errors.Is(err, ErrParse) }
func IsSchemaError(err error) bool    { return errors.Is(err, ErrSchema) }
func IsAlignmentError(err error) bool { return errors.Is(err, ErrAlignment) }
func IsCaptureError(err error) bool   { return errors.Is(err, ErrCapture) }
func IsNotFoundError(err error) bool  { return errors.Is(err, ErrNotFound) }
