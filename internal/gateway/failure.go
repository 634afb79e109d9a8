package gateway

import (
	"errors"
	"fmt"
)

// FailureKind classifies a remote actor failure.
type FailureKind string

const (
	// KindTransport covers network errors, timeouts and 5xx responses.
	KindTransport FailureKind = "TRANSPORT"
	// KindInvalidCode is a rejected OTP code; recoverable in place.
	KindInvalidCode FailureKind = "INVALID_CODE"
	// KindDataIntegrity marks a structurally broken success response, e.g.
	// an account created without an id.
	KindDataIntegrity FailureKind = "DATA_INTEGRITY"
	// KindRejected covers well-formed 4xx rejections other than invalid
	// codes (bad phone format, unknown sid).
	KindRejected FailureKind = "REJECTED"
)

// Failure is a typed remote actor failure.
type Failure struct {
	Kind    FailureKind
	Op      string
	Message string
}

func (f *Failure) Error() string {
	return fmt.Sprintf("%s: %s (%s)", f.Op, f.Message, f.Kind)
}

func newFailure(kind FailureKind, op, message string) *Failure {
	return &Failure{Kind: kind, Op: op, Message: message}
}

func kindOf(err error) FailureKind {
	var f *Failure
	if errors.As(err, &f) {
		return f.Kind
	}
	return KindTransport
}

// IsTransport reports whether err is a transport-level failure. Unknown
// errors count as transport so the machine errs toward retryability.
func IsTransport(err error) bool { return kindOf(err) == KindTransport }

// IsInvalidCode reports a rejected OTP code.
func IsInvalidCode(err error) bool { return kindOf(err) == KindInvalidCode }

// IsDataIntegrity reports a broken success response.
func IsDataIntegrity(err error) bool { return kindOf(err) == KindDataIntegrity }
