package spec

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes engine errors for clearer handling and messaging.
type ErrorCode string

const (
	ParsingError              ErrorCode = "ParsingError"
	VersionError              ErrorCode = "VersionError"
	StructuralValidationError ErrorCode = "StructuralValidationError"
	ExtractionWarning         ErrorCode = "ExtractionWarning"
)

// Reason refines a ParsingError.
type Reason string

const (
	Unreadable  Reason = "Unreadable"
	TooLarge    Reason = "TooLarge"
	Undecodable Reason = "Undecodable"
)

var (
	// ErrCircularReference is reported when $ref names form a cycle.
	ErrCircularReference = errors.New("circular schema reference")
	// ErrUnresolvedReference is reported when a $ref names no known schema.
	ErrUnresolvedReference = errors.New("unresolved schema reference")
)

// SpecError is a structured error with optional location and JSON Pointer.
type SpecError struct {
	Code        ErrorCode
	Reason      Reason
	Message     string
	Location    string // file path or URL
	JSONPointer string // e.g. "#/paths/~1pets/get"
	Cause       error
}

func (e *SpecError) Error() string { return e.Message }
func (e *SpecError) Unwrap() error { return e.Cause }

// HasCode reports whether err carries a SpecError with the given code.
func HasCode(err error, code ErrorCode) bool {
	var se *SpecError
	return errors.As(err, &se) && se.Code == code
}

// HasReason reports whether err is a ParsingError with the given reason.
func HasReason(err error, reason Reason) bool {
	var se *SpecError
	return errors.As(err, &se) && se.Code == ParsingError && se.Reason == reason
}

func parsingError(reason Reason, location string, cause error, format string, args ...any) *SpecError {
	return &SpecError{
		Code:     ParsingError,
		Reason:   reason,
		Message:  fmt.Sprintf(format, args...),
		Location: location,
		Cause:    cause,
	}
}

// Diagnostic records a non-fatal failure inside one extraction section.
type Diagnostic struct {
	Code    ErrorCode
	Section string
	Message string
	Err     error
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("%s [%s]: %s", d.Code, d.Section, d.Message)
}
