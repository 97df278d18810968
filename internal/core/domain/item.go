package domain

import "strings"

// Item is a single forum the account follows.
type Item struct {
	// Index is the 1-based position in the listing order.
	Index int
	ID    string
	Name  string
	Level int
	// AlreadyDone is reported by the listing endpoint before any sign-in is attempted.
	AlreadyDone bool
}

// MaskedName returns the forum name with its middle characters hidden, for logs.
func (i Item) MaskedName() string {
	return MaskName(i.Name)
}

// MaskName keeps enough of a forum name to recognise it in logs without exposing it.
//
//   - <= 2 runes: first rune + "*"
//   - <= 5 runes: first + stars + last
//   - longer:     first two + "***" + last
func MaskName(name string) string {
	r := []rune(name)
	switch {
	case len(r) == 0:
		return "unknown"
	case len(r) <= 2:
		return string(r[0]) + "*"
	case len(r) <= 5:
		return string(r[0]) + strings.Repeat("*", len(r)-2) + string(r[len(r)-1])
	default:
		return string(r[:2]) + "***" + string(r[len(r)-1])
	}
}
