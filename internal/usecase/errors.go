package usecase

import "errors"

// Error kinds surfaced to the transport layer.
var (
	ErrInvalidInput = errors.New("invalid input")
	ErrProcessing   = errors.New("processing failed")
	ErrNotFound     = errors.New("not found")
)

// Error carries a client-facing message and the kind it belongs to.
type Error struct {
	Kind    error
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the error's kind so callers can use errors.Is(err, ErrInvalidInput).
func (e *Error) Is(target error) bool {
	return target == e.Kind
}

func invalidInput(message string) error {
	return &Error{Kind: ErrInvalidInput, Message: message}
}

func processingFailed(message string, err error) error {
	return &Error{Kind: ErrProcessing, Message: message, Err: err}
}
