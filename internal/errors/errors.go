package errors

import (
	"errors"
	"fmt"
)

// Code is a stable, machine-readable error type mapped to process exit codes.
type Code int

const (
	CodeSuccess        Code = 0
	CodeInternal       Code = 1
	CodeUsage          Code = 2
	CodeValidation     Code = 10
	CodeQuote          Code = 11
	CodeRPC            Code = 12
	CodeWalletRejected Code = 13
	CodeUserDismissed  Code = 14
	CodeBlocked        Code = 15
	CodeStore          Code = 16
	CodeBackendNotify  Code = 17
)

// Error is a typed engine error carrying a stable code and a recoverability
// hint. Recoverable means the user can retry the operation (possibly after
// fixing an input); it does not mean the engine retries on its own.
type Error struct {
	Code        Code
	Message     string
	Recoverable bool
	Cause       error
}

func (e *Error) Error() string {
	if e.Cause == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Cause)
}

func (e *Error) Unwrap() error { return e.Cause }

func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message, Recoverable: recoverableByDefault(code)}
}

func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Recoverable: recoverableByDefault(code), Cause: cause}
}

func As(err error) (*Error, bool) {
	var target *Error
	if errors.As(err, &target) {
		return target, true
	}
	return nil, false
}

// Recoverable reports whether the user may retry after this failure.
// Untyped errors are treated as recoverable: a retry is harmless and the
// alternative is stranding the user on a transient fault.
func Recoverable(err error) bool {
	if err == nil {
		return false
	}
	if typed, ok := As(err); ok {
		return typed.Recoverable
	}
	return true
}

// CodeOf returns the stable code of err, or CodeInternal for untyped errors.
func CodeOf(err error) Code {
	if err == nil {
		return CodeSuccess
	}
	if typed, ok := As(err); ok {
		return typed.Code
	}
	return CodeInternal
}

func ExitCode(err error) int {
	return int(CodeOf(err))
}

func recoverableByDefault(code Code) bool {
	// Internal faults are the only failures the user cannot act on.
	return code != CodeInternal
}
