package domain

import (
	"fmt"
	"strings"
)

// CreateList appends a new empty list. Identifiers are assigned by the
// coordinator, never by clients.
func CreateList(b Board, id, name string) (Board, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Board{}, fmt.Errorf("list name: %w", ErrInvalidName)
	}
	if id == "" || b.ListIndex(id) >= 0 {
		return Board{}, fmt.Errorf("list %q: %w", id, ErrDuplicateID)
	}
	out := b.Clone()
	out.Lists = append(out.Lists, List{ID: id, Name: name, Cards: []Card{}})
	return out, nil
}

// RenameList changes the name of the list with the given id.
func RenameList(b Board, id, name string) (Board, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Board{}, fmt.Errorf("list name: %w", ErrInvalidName)
	}
	i := b.ListIndex(id)
	if i < 0 {
		return Board{}, fmt.Errorf("list %s: %w", id, ErrListNotFound)
	}
	out := b.Clone()
	out.Lists[i].Name = name
	return out, nil
}

// DeleteList removes a list together with all of its cards.
func DeleteList(b Board, id string) (Board, error) {
	i := b.ListIndex(id)
	if i < 0 {
		return Board{}, fmt.Errorf("list %s: %w", id, ErrListNotFound)
	}
	out := b.Clone()
	out.Lists = remove(out.Lists, i)
	return out, nil
}

// CreateCard appends a card to the end of the given list.
func CreateCard(b Board, listID, id, text string) (Board, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Board{}, fmt.Errorf("card text: %w", ErrInvalidName)
	}
	i := b.ListIndex(listID)
	if i < 0 {
		return Board{}, fmt.Errorf("list %s: %w", listID, ErrListNotFound)
	}
	if _, exists := b.FindCard(id); exists || id == "" {
		return Board{}, fmt.Errorf("card %q: %w", id, ErrDuplicateID)
	}
	out := b.Clone()
	out.Lists[i].Cards = append(out.Lists[i].Cards, Card{ID: id, Text: text})
	return out, nil
}

// DeleteCard removes a card from whichever list holds it.
func DeleteCard(b Board, id string) (Board, error) {
	loc, ok := b.FindCard(id)
	if !ok {
		return Board{}, fmt.Errorf("card %s: %w", id, ErrCardNotFound)
	}
	out := b.Clone()
	i := out.ListIndex(loc.ListID)
	out.Lists[i].Cards = remove(out.Lists[i].Cards, loc.Index)
	return out, nil
}
