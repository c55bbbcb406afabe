package websocket

import (
	"errors"
	"fmt"

	"notify-service/internal/models"
)

var (
	ErrUnauthenticated    = errors.New("connection has no authenticated principal")
	ErrMalformedRequest   = errors.New("malformed request")
	ErrUnknownEvent       = errors.New("unknown event type")
	ErrClientDisconnected = errors.New("client disconnected")
	ErrSendBufferFull     = errors.New("send buffer full")
	ErrStoreUnavailable   = errors.New("notification store unavailable")
)

// Error codes sent to clients in error{code, message}
const (
	CodeMalformedRequest = "MALFORMED_REQUEST"
	CodeUnknownEvent     = "UNKNOWN_EVENT"
	CodeNotFound         = "NOT_FOUND"
	CodeStoreFailure     = "NOTIFICATION_STORE_ERROR"
	CodeInternal         = "INTERNAL_ERROR"
)

func missingField(field string) error {
	return fmt.Errorf("%w: %s is required", ErrMalformedRequest, field)
}

// errorCode maps a handler error to the code reported to the client.
func errorCode(err error) string {
	switch {
	case errors.Is(err, ErrMalformedRequest):
		return CodeMalformedRequest
	case errors.Is(err, ErrUnknownEvent):
		return CodeUnknownEvent
	case errors.Is(err, models.ErrNotificationNotFound):
		return CodeNotFound
	case errors.Is(err, ErrStoreUnavailable):
		return CodeStoreFailure
	default:
		return CodeInternal
	}
}

// clientMessage is the text shown to the client. Store failures are not
// echoed verbatim.
func clientMessage(err error) string {
	if errors.Is(err, models.ErrNotificationNotFound) {
		return models.ErrNotificationNotFound.Error()
	}
	if errors.Is(err, ErrStoreUnavailable) {
		return ErrStoreUnavailable.Error()
	}
	return err.Error()
}

// storeError wraps a collaborator failure. Not-found results keep their own
// identity so the client can tell them apart from an outage.
func storeError(op string, err error) error {
	if errors.Is(err, models.ErrNotificationNotFound) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%w: %s: %w", ErrStoreUnavailable, op, err)
}
