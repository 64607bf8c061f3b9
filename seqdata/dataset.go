package seqdata

import (
	"errors"
	"os"
	"path/filepath"
	"sort"

	"github.com/unixpickle/essentials"
)

// A Shard is one file of a dataset.
// Shards are read lazily; only their paths are kept in memory.
type Shard struct {
	Path string
	Name string
}

// A Dataset is a codec plus an ordered list of shards.
type Dataset struct {
	Codec

	// Name is the base name of the dataset directory, used to name
	// persisted model artifacts.
	Name string

	Shards []Shard
}

// Load scans a directory of shard files, builds the vocabulary from
// every shard, and returns the resulting dataset.
func Load(dir, typ string) (*Dataset, error) {
	split, err := symbolSplitter(typ)
	if err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, essentials.AddCtx("load dataset", err)
	}

	var shards []Shard
	var texts []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		path := filepath.Join(dir, e.Name())
		content, err := os.ReadFile(path)
		if err != nil {
			return nil, essentials.AddCtx("load dataset", err)
		}
		shards = append(shards, Shard{Path: path, Name: e.Name()})
		texts = append(texts, string(content))
	}
	if len(shards) == 0 {
		return nil, errors.New("load dataset: no shard files")
	}
	sort.Slice(shards, func(i, j int) bool {
		return shards[i].Name < shards[j].Name
	})

	codec, err := NewCodec(typ, buildVocab(split, texts))
	if err != nil {
		return nil, err
	}
	return &Dataset{
		Codec:  codec,
		Name:   filepath.Base(filepath.Clean(dir)),
		Shards: shards,
	}, nil
}

// FromVocab reconstructs a dataset from persisted metadata.
// The shard list contains names only; Read resolves them relative to
// their original locations, so a FromVocab dataset is typically used
// for inference rather than training.
func FromVocab(name, typ string, vocab, shardNames []string) (*Dataset, error) {
	codec, err := NewCodec(typ, vocab)
	if err != nil {
		return nil, err
	}
	shards := make([]Shard, len(shardNames))
	for i, n := range shardNames {
		shards[i] = Shard{Path: n, Name: filepath.Base(n)}
	}
	return &Dataset{Codec: codec, Name: name, Shards: shards}, nil
}

// Read returns the contents of one shard file.
func (d *Dataset) Read(path string) (string, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return "", essentials.AddCtx("read shard", err)
	}
	return string(content), nil
}

// ShardNames lists the shard file names in order.
func (d *Dataset) ShardNames() []string {
	res := make([]string, len(d.Shards))
	for i, s := range d.Shards {
		res[i] = s.Name
	}
	return res
}
