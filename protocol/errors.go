package protocol

import (
	"errors"

	"kanban-sync/domain"
)

// Error codes carried by rejected replies.
const (
	CodeIndexOutOfRange = "INDEX_OUT_OF_RANGE"
	CodeListNotFound    = "LIST_NOT_FOUND"
	CodeCardNotFound    = "CARD_NOT_FOUND"
	CodeDuplicateID     = "DUPLICATE_ID"
	CodeInvalidName     = "INVALID_NAME"
	CodeBadRequest      = "BAD_REQUEST"
	CodeInternal        = "INTERNAL"
)

// RemoteError is the coordinator's rejection of a request.
type RemoteError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *RemoteError) Error() string {
	return e.Code + ": " + e.Message
}

// Unwrap maps the code back to the domain sentinel so callers can use
// errors.Is on either side of the socket.
func (e *RemoteError) Unwrap() error {
	switch e.Code {
	case CodeIndexOutOfRange:
		return domain.ErrIndexOutOfRange
	case CodeListNotFound:
		return domain.ErrListNotFound
	case CodeCardNotFound:
		return domain.ErrCardNotFound
	case CodeDuplicateID:
		return domain.ErrDuplicateID
	case CodeInvalidName:
		return domain.ErrInvalidName
	}
	return nil
}

// ErrBadRequest marks malformed requests (unknown event, undecodable data).
var ErrBadRequest = errors.New("bad request")

// NewRemoteError classifies err into a wire error.
func NewRemoteError(err error) *RemoteError {
	if err == nil {
		return nil
	}
	var remote *RemoteError
	if errors.As(err, &remote) {
		return remote
	}
	return &RemoteError{Code: CodeFor(err), Message: err.Error()}
}

func CodeFor(err error) string {
	switch {
	case errors.Is(err, domain.ErrIndexOutOfRange):
		return CodeIndexOutOfRange
	case errors.Is(err, domain.ErrListNotFound):
		return CodeListNotFound
	case errors.Is(err, domain.ErrCardNotFound):
		return CodeCardNotFound
	case errors.Is(err, domain.ErrDuplicateID):
		return CodeDuplicateID
	case errors.Is(err, domain.ErrInvalidName):
		return CodeInvalidName
	case errors.Is(err, ErrBadRequest):
		return CodeBadRequest
	}
	return CodeInternal
}
