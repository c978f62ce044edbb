package common

import "strings"

// PairKeySeparator joins the two canonical ids of a pair into its storage key.
// Canonical ids never contain this character: emails cannot, and alias
// resolution strips it from free-form names.
const PairKeySeparator = "|"

// Pair is an unordered pair of canonical ids. A and B are always held in
// lexicographic order so that NewPair("x", "y") and NewPair("y", "x")
// produce the same value and the same key.
type Pair struct {
	A string `json:"a"`
	B string `json:"b"`
}

// NewPair builds the canonical form of an unordered pair.
func NewPair(a, b string) Pair {
	if a > b {
		a, b = b, a
	}
	return Pair{A: a, B: b}
}

// Key returns the order-independent storage key of the pair.
func (p Pair) Key() string {
	return p.A + PairKeySeparator + p.B
}

// IsSelf reports whether both members are the same person. Self pairs are
// never stored; expansion drops them.
func (p Pair) IsSelf() bool {
	return p.A == p.B
}

// ParsePairKey splits a storage key back into its pair. Returns false if the
// key does not contain exactly one separator.
func ParsePairKey(key string) (Pair, bool) {
	parts := strings.Split(key, PairKeySeparator)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return Pair{}, false
	}
	return NewPair(parts[0], parts[1]), true
}
