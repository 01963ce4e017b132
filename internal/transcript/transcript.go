// Package transcript accumulates recognised signs into caption text.
package transcript

import "strings"

// Accumulator keeps the ordered list of accepted signs. A sign equal to the
// most recent one is dropped, so holding a pose over many frames yields a
// single word while a later repeat is still recorded.
//
// Accumulator is not safe for concurrent use.
type Accumulator struct {
	tokens []string
}

// New returns an empty Accumulator.
func New() *Accumulator {
	return &Accumulator{}
}

// Accept appends label unless it repeats the last token. It returns the
// current text and whether it changed.
func (a *Accumulator) Accept(label string) (string, bool) {
	if n := len(a.tokens); n > 0 && a.tokens[n-1] == label {
		return a.Text(), false
	}
	a.tokens = append(a.tokens, label)
	return a.Text(), true
}

// Clear empties the buffer.
func (a *Accumulator) Clear() {
	a.tokens = a.tokens[:0]
}

// Text returns the tokens joined by single spaces.
func (a *Accumulator) Text() string {
	return strings.Join(a.tokens, " ")
}

// Tokens returns a copy of the accepted tokens.
func (a *Accumulator) Tokens() []string {
	out := make([]string, len(a.tokens))
	copy(out, a.tokens)
	return out
}

// Len returns the number of tokens.
func (a *Accumulator) Len() int {
	return len(a.tokens)
}
