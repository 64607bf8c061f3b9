// Command train fits a generative sequence model on a directory of
// text or token shards.
package main

import (
	"flag"
	"log"
	"os"
	"path/filepath"

	"github.com/michaellin99999/music-sentiment-seuron/neuron"
	"github.com/michaellin99999/music-sentiment-seuron/seqdata"
	"github.com/unixpickle/anyvec/anyvec32"
	"github.com/unixpickle/essentials"
	"github.com/unixpickle/rip"
)

func main() {
	var dataPath string
	var dataType string
	var testData string
	var savePath string
	var embedSize int
	var hiddenSize int
	var numLayers int
	var dropout float64
	var epochs int
	var seqLength int
	var batchSize int
	var lr float64
	var lrDecay float64
	var gradClip float64
	var resume bool

	flag.StringVar(&dataPath, "data_path", "", "directory of training shards")
	flag.StringVar(&dataType, "data_type", "txt", "txt, midi_note, midi_chord or midi_perform")
	flag.StringVar(&testData, "test_data", "", "held-out shard (default: last shard)")
	flag.StringVar(&savePath, "save_path", "trained_models", "checkpoint directory")
	flag.IntVar(&embedSize, "embed_size", 64, "embedding size")
	flag.IntVar(&hiddenSize, "hidden_size", 128, "hidden state size")
	flag.IntVar(&numLayers, "n_layers", 1, "number of recurrent layers")
	flag.Float64Var(&dropout, "dropout", 0, "dropout probability between layers")
	flag.IntVar(&epochs, "epochs", 100, "training epochs")
	flag.IntVar(&seqLength, "seq_length", 256, "truncated backprop window")
	flag.IntVar(&batchSize, "batch_size", 128, "parallel streams per shard")
	flag.Float64Var(&lr, "lr", 5e-4, "initial learning rate")
	flag.Float64Var(&lrDecay, "lr_decay", 0.7, "accepted for compatibility; the linear schedule ignores it")
	flag.Float64Var(&gradClip, "grad_clip", 5, "gradient clip value")
	flag.BoolVar(&resume, "resume", false, "resume from the checkpoint in save_path")
	flag.Parse()

	if dataPath == "" {
		essentials.Die("Missing -data_path flag. See -help.")
	}

	creator := anyvec32.CurrentCreator()
	ds, err := seqdata.Load(dataPath, dataType)
	if err != nil {
		essentials.Die(err)
	}
	if testData == "" {
		if len(ds.Shards) < 2 {
			essentials.Die("Need at least two shards when -test_data is unset.")
		}
		testData = ds.Shards[len(ds.Shards)-1].Path
		ds.Shards = ds.Shards[:len(ds.Shards)-1]
	}
	log.Printf("Loaded %d shards with a vocabulary of %d symbols.",
		len(ds.Shards), len(ds.Vocab()))

	var net *neuron.Network
	if resume {
		net, _, err = neuron.Load(filepath.Join(savePath, ds.Name))
		if err != nil {
			essentials.Die(err)
		}
		log.Printf("Resuming at epoch %d, shard %d, batch %d.",
			net.Progress.Epoch, net.Progress.Shard, net.Progress.Batch)
	} else {
		vocab := len(ds.Vocab())
		net = neuron.New(creator, vocab, embedSize, hiddenSize, vocab,
			numLayers, dropout)
	}

	if err := os.MkdirAll(savePath, 0755); err != nil {
		essentials.Die(err)
	}

	cfg := neuron.TrainConfig{
		Epochs:    epochs,
		Window:    seqLength,
		BatchSize: batchSize,
		LR:        lr,
		GradClip:  gradClip,
		TestShard: testData,
		SavePath:  savePath,
		Resume:    resume,
	}

	log.Println("Press ctrl+c once to stop training.")
	loss, err := net.Fit(ds, cfg, rip.NewRIP().Chan())
	if err != nil {
		essentials.Die(err)
	}
	log.Println("Final held-out loss:", loss)
}
