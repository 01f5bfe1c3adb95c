// Package errors is the wallet's error taxonomy. Every error carries a gRPC
// code and a stable reason string, and is classified into one of three kinds:
// validation failures detected locally, network failures talking to an
// operator, and authentication failures on data received from a peer.
package errors

import (
	"errors"
	"fmt"

	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Kind classifies an error by how the caller should react to it.
type Kind int

const (
	KindUnknown Kind = iota
	// KindValidation errors are raised before or after a protocol run and are never retried.
	KindValidation
	// KindNetwork errors come from an operator RPC.
	KindNetwork
	// KindAuthentication errors mean a signature on received data did not verify.
	KindAuthentication
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNetwork:
		return "network"
	case KindAuthentication:
		return "authentication"
	default:
		return "unknown"
	}
}

// Canonical reason constants for ErrorInfo.Reason. Keep stable, UPPER_SNAKE_CASE.
const (
	ReasonInsufficientFunds     = "INSUFFICIENT_FUNDS"
	ReasonInsufficientKeyshares = "INSUFFICIENT_KEYSHARES"
	ReasonDuplicateField        = "DUPLICATE_FIELD"
	ReasonKeyshareMismatch      = "KEYSHARE_MISMATCH"
	ReasonMalformedField        = "MALFORMED_FIELD"
	ReasonMissingField          = "MISSING_FIELD"
	ReasonInvalidState          = "INVALID_STATE"
	ReasonExpired               = "EXPIRED"
	ReasonHashMismatch          = "HASH_MISMATCH"
	ReasonResponseMismatch      = "RESPONSE_MISMATCH"

	ReasonBadSignature = "BAD_SIGNATURE"

	ReasonRateLimitExceeded = "RATE_LIMIT_EXCEEDED"
)

const errorDomain = "spark.wallet"

type sparkError struct {
	kind   Kind
	code   codes.Code
	reason string
	// op and operator are only set for network errors.
	op       string
	operator string
	cause    error
}

func newError(kind Kind, code codes.Code, err error, reason string) error {
	if err == nil {
		err = errors.New(reason)
	}
	return &sparkError{kind: kind, code: code, reason: reason, cause: err}
}

func (e *sparkError) Error() string {
	if e.kind == KindNetwork {
		if e.operator != "" {
			return fmt.Sprintf("%s failed on operator %s: %v", e.op, e.operator, e.cause)
		}
		return fmt.Sprintf("%s failed: %v", e.op, e.cause)
	}
	return e.cause.Error()
}

func (e *sparkError) Unwrap() error {
	return e.cause
}

// GRPCStatus lets status.Convert and status.FromError see the code and reason.
func (e *sparkError) GRPCStatus() *status.Status {
	st := status.New(e.code, e.Error())
	if e.reason == "" {
		return st
	}
	withDetails, err := st.WithDetails(&errdetails.ErrorInfo{
		Reason:   e.reason,
		Domain:   errorDomain,
		Metadata: e.metadata(),
	})
	if err != nil {
		return st
	}
	return withDetails
}

func (e *sparkError) metadata() map[string]string {
	if e.kind != KindNetwork {
		return nil
	}
	md := map[string]string{"operation": e.op}
	if e.operator != "" {
		md["operator"] = e.operator
	}
	return md
}

func ValidationInsufficientFunds(err error) error {
	return newError(KindValidation, codes.FailedPrecondition, err, ReasonInsufficientFunds)
}

func ValidationInsufficientKeyshares(err error) error {
	return newError(KindValidation, codes.FailedPrecondition, err, ReasonInsufficientKeyshares)
}

func ValidationDuplicateField(err error) error {
	return newError(KindValidation, codes.InvalidArgument, err, ReasonDuplicateField)
}

func ValidationKeyshareMismatch(err error) error {
	return newError(KindValidation, codes.FailedPrecondition, err, ReasonKeyshareMismatch)
}

func ValidationMalformedField(err error) error {
	return newError(KindValidation, codes.InvalidArgument, err, ReasonMalformedField)
}

func ValidationMissingField(err error) error {
	return newError(KindValidation, codes.InvalidArgument, err, ReasonMissingField)
}

func ValidationInvalidState(err error) error {
	return newError(KindValidation, codes.FailedPrecondition, err, ReasonInvalidState)
}

func ValidationExpired(err error) error {
	return newError(KindValidation, codes.FailedPrecondition, err, ReasonExpired)
}

func ValidationHashMismatch(err error) error {
	return newError(KindValidation, codes.FailedPrecondition, err, ReasonHashMismatch)
}

// ValidationResponseMismatch reports operators disagreeing on the result of the same call.
func ValidationResponseMismatch(err error) error {
	return newError(KindValidation, codes.Internal, err, ReasonResponseMismatch)
}

func AuthenticationBadSignature(err error) error {
	return newError(KindAuthentication, codes.Unauthenticated, err, ReasonBadSignature)
}

func ResourceExhaustedRateLimitExceeded(err error) error {
	return newError(KindNetwork, codes.ResourceExhausted, err, ReasonRateLimitExceeded)
}

// Network wraps a failed operator RPC. The code and reason reported by the
// operator are preserved.
func Network(op string, operator string, err error) error {
	if err == nil {
		return nil
	}
	var existing *sparkError
	if errors.As(err, &existing) && existing.kind == KindNetwork && existing.op == op {
		return err
	}
	code, reason := CodeAndReasonFrom(err)
	if code == codes.OK {
		code = codes.Unknown
	}
	return &sparkError{
		kind:     KindNetwork,
		code:     code,
		reason:   reason,
		op:       op,
		operator: operator,
		cause:    err,
	}
}

// KindOf returns the kind of the outermost classified error in err's chain.
func KindOf(err error) Kind {
	var se *sparkError
	if errors.As(err, &se) {
		return se.kind
	}
	return KindUnknown
}

// ReasonOf returns the ErrorInfo reason carried by err, or the empty string.
func ReasonOf(err error) string {
	_, reason := CodeAndReasonFrom(err)
	return reason
}

// CodeAndReasonFrom extracts the gRPC code and ErrorInfo reason from err. Errors
// that are not gRPC statuses map to codes.Unknown with no reason.
func CodeAndReasonFrom(err error) (codes.Code, string) {
	if err == nil {
		return codes.OK, ""
	}
	var se *sparkError
	if errors.As(err, &se) {
		if se.reason != "" {
			return se.code, se.reason
		}
		_, reason := CodeAndReasonFrom(se.cause)
		return se.code, reason
	}
	st, ok := status.FromError(err)
	if !ok {
		return codes.Unknown, ""
	}
	for _, detail := range st.Details() {
		if info, ok := detail.(*errdetails.ErrorInfo); ok {
			return st.Code(), info.GetReason()
		}
	}
	return st.Code(), ""
}

var retryableCodes = map[codes.Code]bool{
	codes.Unavailable:       true,
	codes.DeadlineExceeded:  true,
	codes.ResourceExhausted: true,
	codes.Aborted:           true,
}

// IsRetryable reports whether err is a network error with a transient code.
// Validation and authentication errors are never retryable.
func IsRetryable(err error) bool {
	if KindOf(err) != KindNetwork {
		return false
	}
	code, _ := CodeAndReasonFrom(err)
	return retryableCodes[code]
}

// RetryableCodes lists the gRPC codes IsRetryable treats as transient.
func RetryableCodes() []codes.Code {
	return []codes.Code{codes.Unavailable, codes.DeadlineExceeded, codes.ResourceExhausted, codes.Aborted}
}

// WrapErrorWithMessage adds context to err while keeping its code, reason and kind.
func WrapErrorWithMessage(err error, msg string) error {
	if err == nil {
		return nil
	}
	var se *sparkError
	if !errors.As(err, &se) {
		return fmt.Errorf("%s: %w", msg, err)
	}
	wrapped := *se
	wrapped.cause = fmt.Errorf("%s: %w", msg, se.cause)
	if se.kind == KindNetwork {
		wrapped.op = msg + ": " + se.op
		wrapped.cause = se.cause
	}
	return &wrapped
}
