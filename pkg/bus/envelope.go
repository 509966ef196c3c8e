package bus

import (
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Kind discriminates the envelope variants a processor can receive.
type Kind int

const (
	KindRequest Kind = iota
	KindResponse
	KindError
	KindCommand
	KindConfig
	KindServiceTable
	KindShutdown
)

// String returns the wire-friendly name of the kind, usable as a log attr
// or metric label.
func (k Kind) String() string {
	switch k {
	case KindRequest:
		return "request"
	case KindResponse:
		return "response"
	case KindError:
		return "error"
	case KindCommand:
		return "command"
	case KindConfig:
		return "config"
	case KindServiceTable:
		return "service_table"
	case KindShutdown:
		return "shutdown"
	}
	return "unknown"
}

// Envelope is one unit of delivery on a processor queue. Exactly the fields
// matching Kind are set: Request for KindRequest, Table for KindServiceTable.
// Detail optionally carries context for command, config, response and error
// envelopes.
type Envelope struct {
	Kind    Kind
	Request *Request
	Table   ServiceTable
	Detail  string
}

// ServiceTable is a snapshot of bus membership: service name to the number
// of processors currently listening on it. A copy is pushed to every
// registered processor whenever membership changes.
type ServiceTable map[string]int

// Request is an inbound service request paired with its delivery metadata.
// The payload is opaque to the bus; translation is the receiving processor's
// concern.
type Request struct {
	ID         string
	Service    string
	Sender     string
	Payload    []byte
	ReceivedAt time.Time

	reply   chan Reply
	replied atomic.Bool
}

// Reply is the terminal outcome of a request: a payload on success or a
// ServiceError on failure, never both.
type Reply struct {
	Payload []byte
	Err     *ServiceError
}

// NewRequest builds a request addressed to service with a fresh correlation
// ID and a single-use reply channel. The returned channel yields exactly one
// Reply once the receiving processor answers.
func NewRequest(sender, service string, payload []byte) (*Request, <-chan Reply) {
	r := &Request{
		ID:         uuid.NewString(),
		Service:    service,
		Sender:     sender,
		Payload:    payload,
		ReceivedAt: time.Now(),
		reply:      make(chan Reply, 1),
	}
	return r, r.reply
}

// ReturnToSender answers the request with a success payload. A request may
// be answered exactly once; further attempts return ErrAlreadyReplied.
func (r *Request) ReturnToSender(payload []byte) error {
	return r.respond(Reply{Payload: payload})
}

// ReturnErrorToSender answers the request with a service error. A request
// may be answered exactly once; further attempts return ErrAlreadyReplied.
func (r *Request) ReturnErrorToSender(serr *ServiceError) error {
	return r.respond(Reply{Err: serr})
}

// Replied reports whether the request has been answered.
func (r *Request) Replied() bool {
	return r.replied.Load()
}

func (r *Request) respond(rep Reply) error {
	if !r.replied.CompareAndSwap(false, true) {
		return ErrAlreadyReplied
	}
	// Buffered with capacity 1 and guarded by the CAS above, so the send
	// cannot block.
	r.reply <- rep
	return nil
}
