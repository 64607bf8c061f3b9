package seqdata

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/unixpickle/essentials"
)

// A CharCodec maps individual characters to symbol IDs.
type CharCodec struct {
	vocab []string
	ids   map[string]int
}

// NewCharCodec creates a CharCodec over a fixed vocabulary.
func NewCharCodec(vocab []string) *CharCodec {
	return &CharCodec{vocab: vocab, ids: indexVocab(vocab)}
}

// Symbols splits text into characters.
func (c *CharCodec) Symbols(text string) []string {
	res := make([]string, 0, len(text))
	for _, r := range text {
		res = append(res, string(r))
	}
	return res
}

// Encode maps characters to their IDs.
func (c *CharCodec) Encode(symbols []string) ([]int, error) {
	return encodeSymbols(c.ids, symbols)
}

// Decode joins characters back into text.
func (c *CharCodec) Decode(ids []int) string {
	var sb strings.Builder
	for _, id := range ids {
		if id >= 0 && id < len(c.vocab) {
			sb.WriteString(c.vocab[id])
		}
	}
	return sb.String()
}

// Vocab returns the characters in ID order.
func (c *CharCodec) Vocab() []string {
	return c.vocab
}

// Type returns "txt".
func (c *CharCodec) Type() string {
	return "txt"
}

// Write stores the sequence as a plain text file.
func (c *CharCodec) Write(sequence, path string) error {
	if err := os.WriteFile(path, []byte(sequence), 0644); err != nil {
		return essentials.AddCtx("write sequence", err)
	}
	return nil
}

func indexVocab(vocab []string) map[string]int {
	ids := make(map[string]int, len(vocab))
	for i, s := range vocab {
		ids[s] = i
	}
	return ids
}

func encodeSymbols(ids map[string]int, symbols []string) ([]int, error) {
	res := make([]int, len(symbols))
	for i, s := range symbols {
		id, ok := ids[s]
		if !ok {
			return nil, fmt.Errorf("encode: symbol not in vocabulary: %q", s)
		}
		res[i] = id
	}
	return res, nil
}

func buildVocab(split func(string) []string, texts []string) []string {
	seen := map[string]bool{}
	var vocab []string
	for _, t := range texts {
		for _, s := range split(t) {
			if !seen[s] {
				seen[s] = true
				vocab = append(vocab, s)
			}
		}
	}
	sort.Strings(vocab)
	return vocab
}
