package domain

import "errors"

var (
	// ErrIndexOutOfRange is returned when a move references a position outside
	// the bounds of the board or list it targets.
	ErrIndexOutOfRange = errors.New("index out of range")
	// ErrListNotFound means a referenced list id is not on the board.
	ErrListNotFound = errors.New("list not found")
	// ErrCardNotFound means a referenced card id is not on the board.
	ErrCardNotFound = errors.New("card not found")
	// ErrDuplicateID is returned when an identifier already exists on the board.
	ErrDuplicateID = errors.New("duplicate id")
	// ErrInvalidName rejects empty list names and card texts.
	ErrInvalidName = errors.New("invalid name")
	// ErrInvalidBoard is returned by Validate when a board breaks a structural
	// rule such as a missing id.
	ErrInvalidBoard = errors.New("invalid board")
)
