package sim

import (
	"errors"
	"fmt"
)

// ErrorKind classifies control-plane failures by how they propagate.
type ErrorKind int

const (
	// KindUnknown is reported for errors that carry no classification.
	KindUnknown ErrorKind = iota
	// KindResolution: an endpoint name is not in the topology. Rejects one request.
	KindResolution
	// KindInvalidRequest: a request violates its own parameter ranges. Rejects one request.
	KindInvalidRequest
	// KindConfiguration: a declarative flow entry or topology description is broken.
	// Aborts the whole scheduling run.
	KindConfiguration
	// KindEngineUnavailable: the scheduling engine could not be invoked or returned nothing.
	KindEngineUnavailable
	// KindEngineInfeasible: the engine ran but found no valid schedule.
	KindEngineInfeasible
	// KindDelivery: a status notification could not reach its talker. Logged and skipped.
	KindDelivery
)

// String returns the string representation of ErrorKind
func (k ErrorKind) String() string {
	switch k {
	case KindResolution:
		return "resolution"
	case KindInvalidRequest:
		return "invalid-request"
	case KindConfiguration:
		return "configuration"
	case KindEngineUnavailable:
		return "engine-unavailable"
	case KindEngineInfeasible:
		return "engine-infeasible"
	case KindDelivery:
		return "delivery"
	default:
		return "unknown"
	}
}

// Sentinel errors, one per kind. Use errors.Is against these.
var (
	ErrResolution        = errors.New("endpoint not found in topology")
	ErrInvalidRequest    = errors.New("invalid stream registration request")
	ErrConfiguration     = errors.New("invalid configuration")
	ErrEngineUnavailable = errors.New("scheduling engine unavailable")
	ErrEngineInfeasible  = errors.New("no feasible schedule")
	ErrDelivery          = errors.New("feedback delivery failed")
)

var sentinelByKind = map[ErrorKind]error{
	KindResolution:        ErrResolution,
	KindInvalidRequest:    ErrInvalidRequest,
	KindConfiguration:     ErrConfiguration,
	KindEngineUnavailable: ErrEngineUnavailable,
	KindEngineInfeasible:  ErrEngineInfeasible,
	KindDelivery:          ErrDelivery,
}

// Error is a classified control-plane error.
type Error struct {
	Kind    ErrorKind
	Op      string // operation that failed, e.g. "flow.Derive"
	Subject string // entity the failure is about: stream id, node name, flow entry
	Err     error  // underlying cause, may be nil
}

// Error implements the error interface
func (e *Error) Error() string {
	msg := e.Op
	if e.Subject != "" {
		msg += " " + e.Subject
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v: %v", msg, sentinelByKind[e.Kind], e.Err)
	}
	return fmt.Sprintf("%s: %v", msg, sentinelByKind[e.Kind])
}

// Unwrap exposes both the kind sentinel and the cause to errors.Is / errors.As.
func (e *Error) Unwrap() []error {
	errs := make([]error, 0, 2)
	if s, ok := sentinelByKind[e.Kind]; ok {
		errs = append(errs, s)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// Errorf builds a classified error whose cause is formatted from format and args.
func Errorf(kind ErrorKind, op, subject, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Subject: subject, Err: fmt.Errorf(format, args...)}
}

// Wrap classifies err. A nil err yields a nil error.
func Wrap(kind ErrorKind, op, subject string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Subject: subject, Err: err}
}

// KindOf returns the kind of the first classified error in err's chain.
func KindOf(err error) ErrorKind {
	if err == nil {
		return KindUnknown
	}
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind
	}
	for kind, sentinel := range sentinelByKind {
		if errors.Is(err, sentinel) {
			return kind
		}
	}
	return KindUnknown
}

// IsFatal reports whether err must abort the current scheduling run.
// Only configuration errors are fatal; every other kind degrades to
// per-stream rejection or a logged delivery failure.
func IsFatal(err error) bool {
	return KindOf(err) == KindConfiguration
}
