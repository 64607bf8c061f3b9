package seqdata

import (
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"testing"
)

func TestCharRoundTrip(t *testing.T) {
	text := "hello, world! héllo"
	codec := NewCharCodec(buildVocab(NewCharCodec(nil).Symbols, []string{text}))
	ids, err := codec.Encode(codec.Symbols(text))
	if err != nil {
		t.Fatal(err)
	}
	if decoded := codec.Decode(ids); decoded != text {
		t.Errorf("expected %q but got %q", text, decoded)
	}
}

func TestTokenRoundTrip(t *testing.T) {
	text := "n_60_4 w_2 n_62_4 w_2 n_60_8"
	codec := NewTokenCodec("midi_note", buildVocab(
		NewTokenCodec("midi_note", nil).Symbols, []string{text}))
	ids, err := codec.Encode(codec.Symbols(text))
	if err != nil {
		t.Fatal(err)
	}
	if decoded := codec.Decode(ids); decoded != text {
		t.Errorf("expected %q but got %q", text, decoded)
	}
}

func TestEncodeUnknown(t *testing.T) {
	codec := NewCharCodec([]string{"a", "b"})
	if _, err := codec.Encode([]string{"a", "z"}); err == nil {
		t.Error("expected an error for an out-of-vocabulary symbol")
	}
}

func TestNewCodecUnknownType(t *testing.T) {
	if _, err := NewCodec("midi", nil); err == nil {
		t.Error("expected an error for an unknown data type")
	}
}

func TestLoadDataset(t *testing.T) {
	dir := t.TempDir()
	shards := map[string]string{
		"b.txt": "banana",
		"a.txt": "apple",
	}
	for name, content := range shards {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}

	ds, err := Load(dir, "txt")
	if err != nil {
		t.Fatal(err)
	}
	if ds.Name != filepath.Base(dir) {
		t.Errorf("expected name %q but got %q", filepath.Base(dir), ds.Name)
	}
	if names := ds.ShardNames(); !reflect.DeepEqual(names, []string{"a.txt", "b.txt"}) {
		t.Errorf("unexpected shard order: %v", names)
	}

	vocab := ds.Vocab()
	if !sort.StringsAreSorted(vocab) {
		t.Errorf("vocabulary should be sorted: %v", vocab)
	}
	expected := []string{"a", "b", "e", "l", "n", "p"}
	if !reflect.DeepEqual(vocab, expected) {
		t.Errorf("expected vocab %v but got %v", expected, vocab)
	}

	content, err := ds.Read(ds.Shards[0].Path)
	if err != nil {
		t.Fatal(err)
	}
	if content != "apple" {
		t.Errorf("expected %q but got %q", "apple", content)
	}
}

func TestLoadEmpty(t *testing.T) {
	if _, err := Load(t.TempDir(), "txt"); err == nil {
		t.Error("expected an error for an empty directory")
	}
}

func TestNonSilent(t *testing.T) {
	cases := []struct {
		seq       string
		nonsilent bool
	}{
		{"n_60_4 w_2 n_62_4", true},
		{"w_2 w_4 v_80", false},
		{"", false},
	}
	for _, c := range cases {
		if NonSilent(c.seq) != c.nonsilent {
			t.Errorf("NonSilent(%q) should be %v", c.seq, c.nonsilent)
		}
	}
}

func TestWriteSequence(t *testing.T) {
	codec := NewCharCodec([]string{"a", "b"})
	path := filepath.Join(t.TempDir(), "out.txt")
	if err := codec.Write("abba", path); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "abba" {
		t.Errorf("expected %q but got %q", "abba", string(data))
	}
}
