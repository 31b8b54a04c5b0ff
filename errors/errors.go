// Package errors provides the typed failure kinds shared across the
// forecasting engine. Every public operation either returns a fully valid
// result or fails with one of these kinds.
package errors

import (
	stderrors "errors"
	"fmt"
)

// Kind classifies an engine failure.
type Kind int

const (
	KindUnknown Kind = iota
	// KindDataValidation covers malformed, unparseable, or empty input.
	KindDataValidation
	// KindConfiguration covers invalid or post-fit configuration mutation.
	KindConfiguration
	// KindTraining covers optimizer failure, insufficient data, and
	// cross-validation fold deficiency.
	KindTraining
	// KindPrediction covers predict-before-fit and malformed future
	// regressor frames.
	KindPrediction
	// KindPersistence covers I/O and schema-version failures on save/load.
	KindPersistence
)

func (k Kind) String() string {
	switch k {
	case KindDataValidation:
		return "data_validation"
	case KindConfiguration:
		return "configuration"
	case KindTraining:
		return "training"
	case KindPrediction:
		return "prediction"
	case KindPersistence:
		return "persistence"
	default:
		return "unknown"
	}
}

// MarshalJSON renders the kind as its string form for API payloads.
func (k Kind) MarshalJSON() ([]byte, error) {
	return []byte(`"` + k.String() + `"`), nil
}

// Error is a kinded engine error. It wraps an optional cause and works with
// the standard errors.Is/errors.As machinery.
type Error struct {
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports kind equality, so errors.Is(err, &Error{Kind: k}) matches any
// error of kind k regardless of message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// Newf builds a kinded error with a formatted message.
func Newf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrapf builds a kinded error around a cause. A nil cause is allowed and
// behaves like Newf.
func Wrapf(kind Kind, err error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// KindOf extracts the kind from anywhere in err's chain. Errors without a
// kinded layer report KindUnknown.
func KindOf(err error) Kind {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsKind reports whether err carries the given kind anywhere in its chain.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}
