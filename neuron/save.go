package neuron

import (
	"encoding/json"
	"errors"
	"log"
	"os"
	"path/filepath"

	"github.com/michaellin99999/music-sentiment-seuron/mlstm"
	"github.com/michaellin99999/music-sentiment-seuron/seqdata"
	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anynet"
	"github.com/unixpickle/anyvec/anyvecsave"
	"github.com/unixpickle/essentials"
	"github.com/unixpickle/serializer"
)

func init() {
	var n Network
	serializer.RegisterTypedDeserializer(n.SerializerType(), DeserializeNetwork)
}

// Progress is the training-progress record: where training stands and
// the current smoothed loss. It is persisted separately from the
// parameters so inference-only loads can skip it.
type Progress struct {
	Epoch int     `json:"epoch"`
	Shard int     `json:"shard"`
	Batch int     `json:"batch"`
	Loss  float64 `json:"loss"`
}

type metadata struct {
	TrainData  []string `json:"train_data"`
	TestData   string   `json:"test_data"`
	Vocab      []string `json:"vocab"`
	DataType   string   `json:"data_type"`
	InputSize  int      `json:"input_size"`
	EmbedSize  int      `json:"embed_size"`
	HiddenSize int      `json:"hidden_size"`
	OutputSize int      `json:"output_size"`
	NumLayers  int      `json:"n_layers"`
	Dropout    float64  `json:"dropout"`
}

// DeserializeNetwork deserializes a Network.
func DeserializeNetwork(d []byte) (*Network, error) {
	var inSize, embSize, hidSize, outSize serializer.Int
	var drop serializer.Float64
	var emb *anyvecsave.S
	var cellData serializer.Bytes
	var fc *anynet.FC
	err := serializer.DeserializeAny(d, &inSize, &embSize, &hidSize, &outSize,
		&drop, &emb, &cellData, &fc)
	if err != nil {
		return nil, essentials.AddCtx("deserialize Network", err)
	}
	slice, err := serializer.DeserializeSlice(cellData)
	if err != nil {
		return nil, essentials.AddCtx("deserialize Network", err)
	}
	n := &Network{
		InputSize:  int(inSize),
		EmbedSize:  int(embSize),
		HiddenSize: int(hidSize),
		OutputSize: int(outSize),
		DropProb:   float64(drop),
		Embedding:  anydiff.NewVar(emb.Vector),
		Out:        fc,
		creator:    emb.Vector.Creator(),
	}
	for _, x := range slice {
		cell, ok := x.(*mlstm.Block)
		if !ok {
			return nil, errors.New("deserialize Network: not an mlstm.Block")
		}
		n.Cells = append(n.Cells, cell)
	}
	n.NumLayers = len(n.Cells)
	n.initDropout()
	return n, nil
}

// SerializerType returns the unique ID used to serialize
// a Network with the serializer package.
func (n *Network) SerializerType() string {
	return "github.com/michaellin99999/music-sentiment-seuron/neuron.Network"
}

// Serialize serializes the Network's parameters and architecture.
func (n *Network) Serialize() ([]byte, error) {
	cellObjs := make([]serializer.Serializer, len(n.Cells))
	for i, c := range n.Cells {
		cellObjs[i] = c
	}
	cellData, err := serializer.SerializeSlice(cellObjs)
	if err != nil {
		return nil, err
	}
	return serializer.SerializeAny(
		serializer.Int(n.InputSize),
		serializer.Int(n.EmbedSize),
		serializer.Int(n.HiddenSize),
		serializer.Int(n.OutputSize),
		serializer.Float64(n.DropProb),
		&anyvecsave.S{Vector: n.Embedding.Vector},
		serializer.Bytes(cellData),
		n.Out,
	)
}

// Save persists the model as its artifact triple: the parameter and
// optimizer blob, the training-state record, and the dataset
// metadata. The prefix is a path prefix, typically dir/name.
func (n *Network) Save(ds *seqdata.Dataset, testData, prefix string) error {
	var adamData []byte
	if n.adam != nil {
		var err error
		adamData, err = n.adam.marshal(n.Parameters())
		if err != nil {
			return essentials.AddCtx("save model", err)
		}
	}
	blob, err := serializer.SerializeAny(n, serializer.Bytes(adamData))
	if err != nil {
		return essentials.AddCtx("save model", err)
	}
	if err := os.WriteFile(prefix+"_model.bin", blob, 0644); err != nil {
		return essentials.AddCtx("save model", err)
	}

	trainData, err := json.Marshal(&n.Progress)
	if err != nil {
		return essentials.AddCtx("save model", err)
	}
	if err := os.WriteFile(prefix+"_train.json", trainData, 0644); err != nil {
		return essentials.AddCtx("save model", err)
	}

	meta := &metadata{
		TrainData:  ds.ShardNames(),
		TestData:   testData,
		Vocab:      ds.Vocab(),
		DataType:   ds.Type(),
		InputSize:  n.InputSize,
		EmbedSize:  n.EmbedSize,
		HiddenSize: n.HiddenSize,
		OutputSize: n.OutputSize,
		NumLayers:  n.NumLayers,
		Dropout:    n.DropProb,
	}
	metaData, err := json.Marshal(meta)
	if err != nil {
		return essentials.AddCtx("save model", err)
	}
	if err := os.WriteFile(prefix+"_meta.json", metaData, 0644); err != nil {
		return essentials.AddCtx("save model", err)
	}

	log.Println("Saved model:", prefix+"_model.bin")
	return nil
}

// Load reconstructs a model and its codec from the artifact triple at
// the given prefix. The metadata and parameter blob are required; the
// training-state record is optional and only needed to resume
// training.
func Load(prefix string) (*Network, *seqdata.Dataset, error) {
	metaData, err := os.ReadFile(prefix + "_meta.json")
	if err != nil {
		return nil, nil, essentials.AddCtx("load model", err)
	}
	var meta metadata
	if err := json.Unmarshal(metaData, &meta); err != nil {
		return nil, nil, essentials.AddCtx("load model", err)
	}
	ds, err := seqdata.FromVocab(filepath.Base(prefix), meta.DataType,
		meta.Vocab, meta.TrainData)
	if err != nil {
		return nil, nil, essentials.AddCtx("load model", err)
	}

	blob, err := os.ReadFile(prefix + "_model.bin")
	if err != nil {
		return nil, nil, essentials.AddCtx("load model", err)
	}
	var net *Network
	var adamData serializer.Bytes
	if err := serializer.DeserializeAny(blob, &net, &adamData); err != nil {
		return nil, nil, essentials.AddCtx("load model", err)
	}
	if net.InputSize != meta.InputSize || net.HiddenSize != meta.HiddenSize ||
		net.NumLayers != meta.NumLayers {
		return nil, nil, errors.New("load model: metadata does not match parameters")
	}
	if len(adamData) > 0 {
		net.adam = &adam{}
		if err := net.adam.unmarshal(net.Parameters(), adamData); err != nil {
			return nil, nil, essentials.AddCtx("load model", err)
		}
	}

	if trainData, err := os.ReadFile(prefix + "_train.json"); err == nil {
		if err := json.Unmarshal(trainData, &net.Progress); err != nil {
			return nil, nil, essentials.AddCtx("load model", err)
		}
	}
	return net, ds, nil
}
