// Package apperr defines the error kinds surfaced by the analysis pipeline.
package apperr

import (
	"errors"
	"fmt"
)

type Kind string

const (
	// KindConfig covers a missing or malformed configuration file or key. Fatal at startup.
	KindConfig Kind = "CONFIG"
	// KindDecode covers an image that cannot be read or decoded.
	KindDecode Kind = "DECODE"
	// KindGeneration covers failures of the language model or the search tool.
	KindGeneration Kind = "GENERATION"
)

// Error is a classified pipeline error. Op names the operation that failed.
type Error struct {
	Kind    Kind
	Op      string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	msg := e.Message
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, msg, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, msg)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

func Config(op, message string, cause error) *Error {
	return &Error{Kind: KindConfig, Op: op, Message: message, Cause: cause}
}

func Decode(op, message string, cause error) *Error {
	return &Error{Kind: KindDecode, Op: op, Message: message, Cause: cause}
}

func Generation(op, message string, cause error) *Error {
	return &Error{Kind: KindGeneration, Op: op, Message: message, Cause: cause}
}

// KindOf returns the Kind of the first *Error in err's chain, or "" if none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

func IsConfig(err error) bool     { return KindOf(err) == KindConfig }
func IsDecode(err error) bool     { return KindOf(err) == KindDecode }
func IsGeneration(err error) bool { return KindOf(err) == KindGeneration }
