package protocol

import (
	"bytes"
	"fmt"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"

	"kanban-sync/domain"
)

// Socket events exchanged between clients and the coordinator.
const (
	EventGet         = "GET"
	EventUpdate      = "UPDATE"
	EventListReorder = "LIST_REORDER"
	EventListCreate  = "LIST_CREATE"
	EventListRename  = "LIST_RENAME"
	EventListDelete  = "LIST_DELETE"
	EventCardReorder = "CARD_REORDER"
	EventCardCreate  = "CARD_CREATE"
	EventCardDelete  = "CARD_DELETE"

	// EventError answers a frame that could not be decoded into a request.
	EventError = "ERROR"
)

// MaxFrameSize bounds a single websocket frame in either direction.
const MaxFrameSize = 1 << 20 // 1 MiB

// Request is a client intent. ID correlates the coordinator's reply.
type Request struct {
	ID    string                 `json:"id"`
	Event string                 `json:"event"`
	Data  sonic.NoCopyRawMessage `json:"data,omitempty"`
}

// Message is anything the coordinator sends: a reply to a request (ID set)
// or an unsolicited UPDATE broadcast. Replies always carry the full
// canonical snapshot, including rejected ones.
type Message struct {
	ID       string           `json:"id,omitempty"`
	Event    string           `json:"event"`
	Snapshot *domain.Snapshot `json:"snapshot,omitempty"`
	Error    *RemoteError     `json:"error,omitempty"`
}

type ListCreate struct {
	Name string `json:"name"`
}

type ListRename struct {
	ListID string `json:"listId"`
	Name   string `json:"name"`
}

type ListDelete struct {
	ListID string `json:"listId"`
}

type CardCreate struct {
	ListID string `json:"listId"`
	Text   string `json:"text"`
}

type CardDelete struct {
	CardID string `json:"cardId"`
}

// NewRequest builds a request with a fresh id and the encoded payload.
// A nil payload produces a request without data.
func NewRequest(event string, payload any) (Request, error) {
	req := Request{ID: uuid.NewString(), Event: event}
	if payload == nil {
		return req, nil
	}
	data, err := sonic.ConfigStd.Marshal(payload)
	if err != nil {
		return Request{}, fmt.Errorf("encode %s payload: %w", event, err)
	}
	req.Data = data
	return req, nil
}

// Bind decodes the request payload into v, rejecting unknown fields.
func (r Request) Bind(v any) error {
	if len(r.Data) == 0 {
		return fmt.Errorf("%s: missing data", r.Event)
	}
	dec := sonic.ConfigStd.NewDecoder(bytes.NewReader(r.Data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%s: %w", r.Event, err)
	}
	return nil
}

// Mutating reports whether the event changes the board.
func (r Request) Mutating() bool {
	switch r.Event {
	case EventListReorder, EventListCreate, EventListRename, EventListDelete,
		EventCardReorder, EventCardCreate, EventCardDelete:
		return true
	}
	return false
}

func Encode(v any) ([]byte, error) {
	return sonic.ConfigStd.Marshal(v)
}

func DecodeRequest(data []byte) (Request, error) {
	var req Request
	if err := sonic.ConfigStd.Unmarshal(data, &req); err != nil {
		return Request{}, fmt.Errorf("decode request: %w", err)
	}
	if req.Event == "" {
		return Request{}, fmt.Errorf("decode request: missing event")
	}
	return req, nil
}

func DecodeMessage(data []byte) (Message, error) {
	var msg Message
	if err := sonic.ConfigStd.Unmarshal(data, &msg); err != nil {
		return Message{}, fmt.Errorf("decode message: %w", err)
	}
	return msg, nil
}
