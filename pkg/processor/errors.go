package processor

import (
	"errors"
	"fmt"

	"github.com/rhuss/relais/pkg/bus"
	"github.com/rhuss/relais/pkg/ollama"
)

// FaultKind classifies a processing failure.
type FaultKind string

const (
	// FaultBackendUnreachable covers every failed facade call:
	// connection failures, timeouts, error statuses, undecodable bodies.
	FaultBackendUnreachable FaultKind = "backend_unreachable"

	// FaultProtocol covers malformed exchanges with the backend, such as
	// credentials that cannot form a valid Authorization header.
	FaultProtocol FaultKind = "protocol_error"

	// FaultOther covers everything else, adaptor translation failures
	// included.
	FaultOther FaultKind = "other"
)

// Fault is a classified processing failure. No fault is recoverable: the
// failed request is answered with an error reply and never retried.
type Fault struct {
	Kind   FaultKind
	Detail string
	Err    error
}

func (f *Fault) Error() string {
	return fmt.Sprintf("%s: %s", f.Kind, f.Detail)
}

func (f *Fault) Unwrap() error { return f.Err }

// Recoverable reports whether the failed request could be retried on the
// same processor. Always false.
func (f *Fault) Recoverable() bool { return false }

// ServiceError maps the fault onto its bus error representation. The
// mapping is total over FaultKind; unknown kinds degrade to an internal
// error.
func (f *Fault) ServiceError() *bus.ServiceError {
	switch f.Kind {
	case FaultBackendUnreachable:
		return bus.NewUnreachableError(f.Detail)
	case FaultProtocol:
		return bus.NewProtocolError(f.Detail)
	default:
		return bus.NewInternalError(f.Detail)
	}
}

// Classify wraps an error in a Fault. Facade errors count as backend
// unreachability whether the transport or the backend itself failed;
// credential derivation failures are protocol faults; anything else,
// adaptor errors included, is FaultOther.
func Classify(err error) *Fault {
	var oerr *ollama.Error
	switch {
	case errors.As(err, &oerr):
		return &Fault{Kind: FaultBackendUnreachable, Detail: err.Error(), Err: err}
	case errors.Is(err, ollama.ErrInvalidCredential):
		return &Fault{Kind: FaultProtocol, Detail: err.Error(), Err: err}
	default:
		return &Fault{Kind: FaultOther, Detail: err.Error(), Err: err}
	}
}
