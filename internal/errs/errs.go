// Package errs defines the error taxonomy shared by the registry, the
// orchestrator and the upstream clients.
package errs

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies a failure for callers and the reporting layer.
type Kind string

const (
	KindUnknownNetwork         Kind = "UnknownNetwork"
	KindUnknownToken           Kind = "UnknownToken"
	KindUnsupportedBridgeToken Kind = "UnsupportedBridgeToken"
	KindInsufficientBalance    Kind = "InsufficientBalance"
	KindApprovalFailed         Kind = "ApprovalFailed"
	KindTransactionReverted    Kind = "TransactionReverted"
	KindUpstreamUnavailable    Kind = "UpstreamUnavailable"
	KindMissingParameter       Kind = "MissingParameter"
	KindInvalidParameter       Kind = "InvalidParameter"
	KindDecimalsMismatch       Kind = "DecimalsMismatch"
	KindUnsupportedPair        Kind = "UnsupportedPair"
	KindNotConfigured          Kind = "NotConfigured"
	KindInternal               Kind = "Internal"
)

// Error is the structured failure returned across component boundaries.
// Hash and ApprovalHash carry whatever transaction context was known when the
// failure happened.
type Error struct {
	Kind         Kind
	Op           string
	Message      string
	Hash         string
	ApprovalHash string
	Err          error
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(" failed: ")
	}
	b.WriteString(e.Message)
	if e.Err != nil {
		if e.Message != "" {
			b.WriteString(": ")
		}
		b.WriteString(e.Err.Error())
	}
	if e.Hash != "" {
		b.WriteString(" (tx ")
		b.WriteString(e.Hash)
		b.WriteString(")")
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error by kind so callers can write
// errors.Is(err, errs.New(errs.KindUnknownToken, "")).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// New creates an error of the given kind.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind and message to an underlying cause.
func Wrap(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// WithOp returns err scoped to an operation. Errors that already carry a kind
// keep it; anything else is classified as Internal.
func WithOp(op string, err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		c := *e
		if c.Op == "" {
			c.Op = op
		}
		return &c
	}
	return &Error{Kind: KindInternal, Op: op, Err: err}
}

// KindOf reports the kind of err, or Internal when err is not classified.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
