package global

import (
	"errors"
	"fmt"
)

// ErrorKind is the error taxonomy exposed to the UI layer
type ErrorKind byte

const (
	KindInternal = ErrorKind(iota)
	KindConnectionFailed
	KindValidation
	KindTransactionRejected
	KindTransactionReverted
	KindMalformedResponse
	KindNotRegistered
)

var kindNames = map[ErrorKind]string{
	KindInternal:            "Internal",
	KindConnectionFailed:    "ConnectionFailed",
	KindValidation:          "ValidationError",
	KindTransactionRejected: "TransactionRejected",
	KindTransactionReverted: "TransactionReverted",
	KindMalformedResponse:   "MalformedResponse",
	KindNotRegistered:       "NotRegistered",
}

func (k ErrorKind) String() string {
	if ret, ok := kindNames[k]; ok {
		return ret
	}
	return fmt.Sprintf("ErrorKind(%d)", k)
}

// Error carries the kind of failure, the operation and the cause.
// errors.Is(err, ErrValidation) and similar sentinels match by kind
type Error struct {
	Kind ErrorKind
	Op   string
	Err  error
}

var (
	ErrConnectionFailed    = &Error{Kind: KindConnectionFailed}
	ErrValidation          = &Error{Kind: KindValidation}
	ErrTransactionRejected = &Error{Kind: KindTransactionRejected}
	ErrTransactionReverted = &Error{Kind: KindTransactionReverted}
	ErrMalformedResponse   = &Error{Kind: KindMalformedResponse}
	ErrNotRegistered       = &Error{Kind: KindNotRegistered}
)

func NewError(kind ErrorKind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func Errorf(kind ErrorKind, op string, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

func (e *Error) Error() string {
	switch {
	case e.Op != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	case e.Op != "":
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return e.Kind.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	// sentinel match: only the kind is compared
	return t.Op == "" && t.Err == nil && t.Kind == e.Kind
}

// KindOf returns the kind of the first *Error in the chain, KindInternal otherwise
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// AsError converts any error into *Error. Errors which already are *Error keep their kind,
// the operation is set when missing
func AsError(op string, err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		if e.Op == "" {
			return &Error{Kind: e.Kind, Op: op, Err: e.Err}
		}
		return e
	}
	return &Error{Kind: KindInternal, Op: op, Err: err}
}
