package apperr

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

type Kind string

const (
	KindConfiguration    Kind = "configuration"
	KindValidation       Kind = "validation"
	KindUpstreamHTTP     Kind = "upstream_http"
	KindEmptyResponse    Kind = "empty_response"
	KindMethodNotAllowed Kind = "method_not_allowed"
	KindTransport        Kind = "transport"
)

// Stage names the pipeline step an error came from.
type Stage string

const (
	StageNone          Stage = ""
	StageTranscription Stage = "transcription"
	StageAnalysis      Stage = "analysis"
	StageModels        Stage = "models"
)

type Error struct {
	Kind    Kind
	Stage   Stage
	Op      string
	Message string
	// Status and Body are set for upstream_http errors.
	Status int
	Body   string
	Cause  error
}

func (e *Error) Error() string {
	prefix := string(e.Kind)
	if e.Stage != StageNone {
		prefix = string(e.Stage) + ":" + prefix
	}
	msg := e.Message
	if e.Kind == KindUpstreamHTTP {
		msg = fmt.Sprintf("%s: %d - %s", e.Message, e.Status, e.Body)
	}
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", prefix, msg, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", prefix, msg)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

func New(kind Kind, op, message string) *Error {
	return &Error{Kind: kind, Op: op, Message: message}
}

// Wrap attaches kind and op to err. An err that already is an *Error is
// returned unchanged so the innermost classification wins.
func Wrap(kind Kind, op, message string, err error) *Error {
	if err == nil {
		return nil
	}
	var typed *Error
	if errors.As(err, &typed) {
		return typed
	}
	return &Error{Kind: kind, Op: op, Message: message, Cause: err}
}

// Upstream builds an upstream_http error for a non-2xx reply.
func Upstream(stage Stage, op, message string, status int, body string) *Error {
	return &Error{
		Kind:    KindUpstreamHTTP,
		Stage:   stage,
		Op:      op,
		Message: message,
		Status:  status,
		Body:    body,
	}
}

// Transport wraps a network failure or an expired deadline.
func Transport(stage Stage, op string, err error) *Error {
	return &Error{
		Kind:    KindTransport,
		Stage:   stage,
		Op:      op,
		Message: "upstream request failed",
		Cause:   err,
	}
}

// WithStage returns err tagged with stage unless it already carries one.
func WithStage(err error, stage Stage) error {
	var typed *Error
	if !errors.As(err, &typed) {
		return err
	}
	if typed.Stage == StageNone {
		typed.Stage = stage
	}
	return err
}

func As(err error) (*Error, bool) {
	var typed *Error
	if errors.As(err, &typed) {
		return typed, true
	}
	return nil, false
}

// IsKind checks whether any error in the chain matches the provided kind.
func IsKind(err error, kind Kind) bool {
	typed, ok := As(err)
	return ok && typed.Kind == kind
}

func StageOf(err error) Stage {
	if typed, ok := As(err); ok {
		return typed.Stage
	}
	return StageNone
}

// HTTPStatus maps an error to the status the proxy answers with.
func HTTPStatus(err error) int {
	typed, ok := As(err)
	if !ok {
		return http.StatusInternalServerError
	}
	switch typed.Kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindMethodNotAllowed:
		return http.StatusMethodNotAllowed
	case KindUpstreamHTTP:
		if typed.Status >= 400 && typed.Status <= 599 {
			return typed.Status
		}
		return http.StatusBadGateway
	case KindEmptyResponse:
		return http.StatusBadGateway
	case KindTransport:
		if errors.Is(typed.Cause, context.DeadlineExceeded) {
			return http.StatusGatewayTimeout
		}
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
