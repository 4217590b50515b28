package domain

import "fmt"

// ReorderLists removes the list at source and reinserts it at destination.
// The destination index is interpreted after the removal, so moving index 0
// to index 2 of [A B C] yields [B C A]. The input board is never modified.
func ReorderLists(b Board, source, destination int) (Board, error) {
	n := len(b.Lists)
	if source < 0 || source >= n {
		return Board{}, fmt.Errorf("list source %d of %d: %w", source, n, ErrIndexOutOfRange)
	}
	if destination < 0 || destination >= n {
		return Board{}, fmt.Errorf("list destination %d of %d: %w", destination, n, ErrIndexOutOfRange)
	}
	out := b.Clone()
	out.Lists = move(out.Lists, source, destination)
	return out, nil
}

// ReorderCards removes the card at source and inserts it at destination.
// Source and destination may name the same list. For a same-list move the
// destination must lie in [0, len) since the list shrinks by one before the
// insert; for a cross-list move it may equal len(destination list) to append.
func ReorderCards(b Board, source, destination Location) (Board, error) {
	si := b.ListIndex(source.ListID)
	if si < 0 {
		return Board{}, fmt.Errorf("source list %s: %w", source.ListID, ErrListNotFound)
	}
	di := b.ListIndex(destination.ListID)
	if di < 0 {
		return Board{}, fmt.Errorf("destination list %s: %w", destination.ListID, ErrListNotFound)
	}

	src := b.Lists[si].Cards
	if source.Index < 0 || source.Index >= len(src) {
		return Board{}, fmt.Errorf("card source %d of %d in %s: %w", source.Index, len(src), source.ListID, ErrIndexOutOfRange)
	}

	limit := len(b.Lists[di].Cards)
	if si == di {
		limit--
	}
	if destination.Index < 0 || destination.Index > limit {
		return Board{}, fmt.Errorf("card destination %d of %d in %s: %w", destination.Index, limit+1, destination.ListID, ErrIndexOutOfRange)
	}

	out := b.Clone()
	if si == di {
		out.Lists[si].Cards = move(out.Lists[si].Cards, source.Index, destination.Index)
		return out, nil
	}

	card := out.Lists[si].Cards[source.Index]
	out.Lists[si].Cards = remove(out.Lists[si].Cards, source.Index)
	out.Lists[di].Cards = insert(out.Lists[di].Cards, destination.Index, card)
	return out, nil
}

// ApplyListMove is ReorderLists driven by a wire descriptor.
func ApplyListMove(b Board, m ListMove) (Board, error) {
	return ReorderLists(b, m.SourceIndex, m.DestinationIndex)
}

// ApplyCardMove is ReorderCards driven by a wire descriptor.
func ApplyCardMove(b Board, m CardMove) (Board, error) {
	return ReorderCards(b, m.Source(), m.Destination())
}

func move[T any](items []T, from, to int) []T {
	if from == to {
		return items
	}
	item := items[from]
	return insert(remove(items, from), to, item)
}

func remove[T any](items []T, i int) []T {
	return append(items[:i], items[i+1:]...)
}

func insert[T any](items []T, i int, item T) []T {
	items = append(items, item)
	copy(items[i+1:], items[i:])
	items[i] = item
	return items
}
