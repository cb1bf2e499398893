package domain

import (
	"errors"
	"fmt"
)

// Kind classifies a failure for callers and transports.
type Kind string

const (
	KindNotFound         Kind = "NOT_FOUND"
	KindCapacityExceeded Kind = "CAPACITY_EXCEEDED"
	KindInvalidInput     Kind = "INVALID_INPUT"
	KindInvalidState     Kind = "INVALID_STATE"
	KindConflict         Kind = "CONFLICT"
	KindTransient        Kind = "TRANSIENT"
	KindInternal         Kind = "INTERNAL"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrCapacityExceeded = errors.New("capacity exceeded")
	ErrInvalidInput     = errors.New("invalid input")
	ErrInvalidState     = errors.New("invalid state")
	ErrConflict         = errors.New("conflict")
	ErrTransient        = errors.New("transient failure")
)

var sentinels = map[Kind]error{
	KindNotFound:         ErrNotFound,
	KindCapacityExceeded: ErrCapacityExceeded,
	KindInvalidInput:     ErrInvalidInput,
	KindInvalidState:     ErrInvalidState,
	KindConflict:         ErrConflict,
	KindTransient:        ErrTransient,
}

// Error is the typed error returned by every core operation.
type Error struct {
	Kind Kind
	Op   string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" {
		if s, ok := sentinels[e.Kind]; ok {
			msg = s.Error()
		} else {
			msg = "internal error"
		}
	}
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrNotFound) and friends match on Kind.
func (e *Error) Is(target error) bool {
	s, ok := sentinels[e.Kind]
	return ok && s == target
}

func E(kind Kind, op, msg string) *Error {
	return &Error{Kind: kind, Op: op, Msg: msg}
}

func Wrap(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func NotFound(op, resource string) *Error {
	return &Error{Kind: KindNotFound, Op: op, Msg: resource + " not found"}
}

func InvalidInput(op, field, msg string) *Error {
	return &Error{Kind: KindInvalidInput, Op: op, Msg: field + ": " + msg}
}

// KindOf returns the Kind of the outermost *Error in err's chain.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	for k, s := range sentinels {
		if errors.Is(err, s) {
			return k
		}
	}
	return KindInternal
}

func IsTransient(err error) bool {
	return KindOf(err) == KindTransient
}
