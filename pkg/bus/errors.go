package bus

import (
	"errors"
	"fmt"
)

// ErrorCode represents the category of a service error.
type ErrorCode string

const (
	ErrorCodeNoService   ErrorCode = "no_service"
	ErrorCodeUnreachable ErrorCode = "service_unreachable"
	ErrorCodeProtocol    ErrorCode = "protocol_error"
	ErrorCodeInternal    ErrorCode = "internal_error"
)

// ErrAlreadyReplied is returned when a second reply is attempted on a
// request that has already been answered.
var ErrAlreadyReplied = errors.New("bus: request already replied")

// ServiceError is the generic fault representation carried in error replies.
// It is what a requester sees when the addressed processor could not produce
// a regular response.
type ServiceError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// Error implements the error interface.
func (e *ServiceError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// ErrorResponse wraps a ServiceError for JSON serialization as the top-level
// error body on HTTP surfaces.
type ErrorResponse struct {
	Error *ServiceError `json:"error"`
}

// NewNoServiceError creates a ServiceError for requests addressed to a
// service no processor listens on.
func NewNoServiceError(service string) *ServiceError {
	return &ServiceError{
		Code:    ErrorCodeNoService,
		Message: fmt.Sprintf("no processor listening on service %q", service),
	}
}

// NewUnreachableError creates a ServiceError for backends that could not be
// reached or did not answer usefully.
func NewUnreachableError(message string) *ServiceError {
	return &ServiceError{
		Code:    ErrorCodeUnreachable,
		Message: message,
	}
}

// NewProtocolError creates a ServiceError for malformed credentials, headers,
// or other wire-level violations.
func NewProtocolError(message string) *ServiceError {
	return &ServiceError{
		Code:    ErrorCodeProtocol,
		Message: message,
	}
}

// NewInternalError creates a ServiceError for faults that fit no more
// specific category. The message carries the free-text detail.
func NewInternalError(message string) *ServiceError {
	return &ServiceError{
		Code:    ErrorCodeInternal,
		Message: message,
	}
}
