package llm

import (
	"errors"
	"fmt"
)

var (
	// ErrInvokeExhausted is returned once every attempt of an invocation failed.
	ErrInvokeExhausted = errors.New("llm invoke failed")
	// ErrFatalProvider marks provider errors that retrying cannot fix, such as
	// exhausted credits.
	ErrFatalProvider = errors.New("llm provider refused request")
)

// ParseError reports model output from which no JSON value could be recovered.
type ParseError struct {
	Raw string
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse model json: %v", e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }
