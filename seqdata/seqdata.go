// Package seqdata provides sequence codecs and shard-based datasets for
// character and symbolic-token level sequence models.
package seqdata

import "fmt"

// A Codec converts between raw sequences and integer symbol IDs.
//
// IDs are dense and start at zero, so they can be used directly as
// embedding and softmax indices.
type Codec interface {
	// Symbols splits raw text into the codec's symbol units.
	Symbols(text string) []string

	// Encode maps symbols to their integer IDs.
	// It fails on symbols outside the vocabulary.
	Encode(symbols []string) ([]int, error)

	// Decode maps IDs back to a raw sequence.
	Decode(ids []int) string

	// Vocab lists the known symbols in ID order.
	Vocab() []string

	// Type identifies the kind of data the codec handles,
	// e.g. "txt" or "midi_note".
	Type() string

	// Write stores a decoded sequence at the given path.
	Write(sequence, path string) error
}

// NewCodec creates a Codec of the given type over a fixed vocabulary.
//
// Character codecs handle the "txt" type; token codecs handle the
// symbolic "midi_note", "midi_chord" and "midi_perform" types.
func NewCodec(typ string, vocab []string) (Codec, error) {
	switch typ {
	case "txt":
		return NewCharCodec(vocab), nil
	case "midi_note", "midi_chord", "midi_perform":
		return NewTokenCodec(typ, vocab), nil
	default:
		return nil, fmt.Errorf("unknown data type: %q", typ)
	}
}

func symbolSplitter(typ string) (func(string) []string, error) {
	c, err := NewCodec(typ, nil)
	if err != nil {
		return nil, err
	}
	return c.Symbols, nil
}
