package domain

import "fmt"

// Card is a single item on the board. Its position is encoded only by its
// index inside the owning list.
type Card struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// List is an ordered column of cards.
type List struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Cards []Card `json:"cards"`
}

// Board is the ordered sequence of lists shared by every participant.
type Board struct {
	Lists []List `json:"lists"`
}

// Snapshot is a board captured by the coordinator together with the version
// it was assigned. Snapshots are replaced wholesale, never edited.
type Snapshot struct {
	Version uint64 `json:"version"`
	Board   Board  `json:"board"`
}

// Location addresses a position inside a list, as reported by a drag gesture.
type Location struct {
	ListID string `json:"listId"`
	Index  int    `json:"index"`
}

// ListMove moves the list at SourceIndex to DestinationIndex.
type ListMove struct {
	SourceIndex      int `json:"sourceIndex"`
	DestinationIndex int `json:"destinationIndex"`
}

// CardMove moves a card between (or within) lists. Indexes refer to positions
// before the move is applied.
type CardMove struct {
	SourceListID      string `json:"sourceListId"`
	DestinationListID string `json:"destinationListId"`
	SourceIndex       int    `json:"sourceIndex"`
	DestinationIndex  int    `json:"destinationIndex"`
}

func (m CardMove) Source() Location {
	return Location{ListID: m.SourceListID, Index: m.SourceIndex}
}

func (m CardMove) Destination() Location {
	return Location{ListID: m.DestinationListID, Index: m.DestinationIndex}
}

// NewCardMove builds the wire descriptor for a drag from source to destination.
func NewCardMove(source, destination Location) CardMove {
	return CardMove{
		SourceListID:      source.ListID,
		DestinationListID: destination.ListID,
		SourceIndex:       source.Index,
		DestinationIndex:  destination.Index,
	}
}

// Clone returns a deep copy that shares no slices with b.
func (b Board) Clone() Board {
	out := Board{Lists: make([]List, len(b.Lists))}
	for i, l := range b.Lists {
		out.Lists[i] = l.clone()
	}
	return out
}

func (l List) clone() List {
	cards := make([]Card, len(l.Cards))
	copy(cards, l.Cards)
	return List{ID: l.ID, Name: l.Name, Cards: cards}
}

// ListIndex returns the position of the list with the given id or -1.
func (b Board) ListIndex(id string) int {
	for i := range b.Lists {
		if b.Lists[i].ID == id {
			return i
		}
	}
	return -1
}

// FindCard returns the location of the card with the given id.
func (b Board) FindCard(id string) (Location, bool) {
	for _, l := range b.Lists {
		for j, c := range l.Cards {
			if c.ID == id {
				return Location{ListID: l.ID, Index: j}, true
			}
		}
	}
	return Location{}, false
}

// CardCount is the total number of cards across all lists.
func (b Board) CardCount() int {
	n := 0
	for _, l := range b.Lists {
		n += len(l.Cards)
	}
	return n
}

// Validate checks the structural invariants of a board: ids present, unique
// list ids and card ids unique across the whole board.
func (b Board) Validate() error {
	lists := make(map[string]struct{}, len(b.Lists))
	cards := make(map[string]struct{}, b.CardCount())
	for _, l := range b.Lists {
		if l.ID == "" {
			return fmt.Errorf("list without id: %w", ErrInvalidBoard)
		}
		if _, dup := lists[l.ID]; dup {
			return fmt.Errorf("list %s appears twice: %w", l.ID, ErrDuplicateID)
		}
		lists[l.ID] = struct{}{}
		for _, c := range l.Cards {
			if c.ID == "" {
				return fmt.Errorf("card without id in list %s: %w", l.ID, ErrInvalidBoard)
			}
			if _, dup := cards[c.ID]; dup {
				return fmt.Errorf("card %s appears twice: %w", c.ID, ErrDuplicateID)
			}
			cards[c.ID] = struct{}{}
		}
	}
	return nil
}

// Equal reports whether two boards have the same lists, cards and order.
func (b Board) Equal(other Board) bool {
	if len(b.Lists) != len(other.Lists) {
		return false
	}
	for i := range b.Lists {
		l, o := b.Lists[i], other.Lists[i]
		if l.ID != o.ID || l.Name != o.Name || len(l.Cards) != len(o.Cards) {
			return false
		}
		for j := range l.Cards {
			if l.Cards[j] != o.Cards[j] {
				return false
			}
		}
	}
	return true
}
