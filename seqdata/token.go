package seqdata

import (
	"os"
	"strings"

	"github.com/unixpickle/essentials"
)

// A TokenCodec maps whitespace-separated symbolic tokens (such as the
// note, chord and performance encodings of MIDI files) to symbol IDs.
type TokenCodec struct {
	typ   string
	vocab []string
	ids   map[string]int
}

// NewTokenCodec creates a TokenCodec of the given type over a fixed
// vocabulary.
func NewTokenCodec(typ string, vocab []string) *TokenCodec {
	return &TokenCodec{typ: typ, vocab: vocab, ids: indexVocab(vocab)}
}

// Symbols splits text into whitespace-separated tokens.
func (t *TokenCodec) Symbols(text string) []string {
	return strings.Fields(text)
}

// Encode maps tokens to their IDs.
func (t *TokenCodec) Encode(symbols []string) ([]int, error) {
	return encodeSymbols(t.ids, symbols)
}

// Decode joins tokens with single spaces.
func (t *TokenCodec) Decode(ids []int) string {
	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		if id >= 0 && id < len(t.vocab) {
			parts = append(parts, t.vocab[id])
		}
	}
	return strings.Join(parts, " ")
}

// Vocab returns the tokens in ID order.
func (t *TokenCodec) Vocab() []string {
	return t.vocab
}

// Type returns the symbolic data type the codec was created with.
func (t *TokenCodec) Type() string {
	return t.typ
}

// Write stores the sequence as a plain text file.
func (t *TokenCodec) Write(sequence, path string) error {
	if err := os.WriteFile(path, []byte(sequence), 0644); err != nil {
		return essentials.AddCtx("write sequence", err)
	}
	return nil
}

// NonSilent reports whether a symbolic sequence plays any note,
// i.e. contains at least one "n"-prefixed token.
func NonSilent(sequence string) bool {
	for _, tok := range strings.Fields(sequence) {
		if strings.HasPrefix(tok, "n") {
			return true
		}
	}
	return false
}
