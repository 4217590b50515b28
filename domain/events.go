package domain

import "time"

// Change describes one accepted mutation of the canonical board. It is what
// the coordinator journals after a snapshot has been persisted.
type Change struct {
	BoardID   string    `json:"boardId"`
	Version   uint64    `json:"version"`
	Event     string    `json:"event"`
	RequestID string    `json:"requestId"`
	At        time.Time `json:"at"`
}
