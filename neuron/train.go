package neuron

import (
	"errors"
	"log"
	"path/filepath"

	"github.com/michaellin99999/music-sentiment-seuron/seqdata"
	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anyvec"
)

var errStopped = errors.New("training stopped")

// A TrainConfig configures Fit.
type TrainConfig struct {
	Epochs    int
	Window    int
	BatchSize int
	LR        float64
	GradClip  float64

	// EvalEvery is the number of windows between held-out
	// evaluations. Zero means 500.
	EvalEvery int

	// TestShard is the path of the held-out shard.
	TestShard string

	// SavePath, if non-empty, is the directory where the model is
	// saved after every epoch and on exit.
	SavePath string

	// Resume continues from the network's Progress record instead of
	// starting at epoch zero.
	Resume bool
}

// DecayedRate returns the linearly decayed learning rate after the
// given number of completed epochs. Resumption uses the same formula
// on the checkpointed position, so an interrupted run and an
// uninterrupted one see identical schedules.
func DecayedRate(base float64, epochs, completed int) float64 {
	return base * float64(epochs-completed) / float64(epochs)
}

// Fit trains the network with truncated back-propagation through
// time over every shard of the dataset.
//
// A receive on stop terminates training between windows; the model is
// still saved and a final held-out loss is returned, so an
// interrupted run never discards the best-known state.
func (n *Network) Fit(ds *seqdata.Dataset, cfg TrainConfig, stop <-chan struct{}) (float64, error) {
	if cfg.EvalEvery == 0 {
		cfg.EvalEvery = 500
	}
	if err := n.fitLoop(ds, cfg, stop); err != nil {
		if err != errStopped {
			return 0, err
		}
		log.Println("Exiting from training early.")
	}
	if cfg.SavePath != "" {
		if err := n.Save(ds, cfg.TestShard, filepath.Join(cfg.SavePath, ds.Name)); err != nil {
			return 0, err
		}
	}
	return n.Evaluate(ds, cfg.TestShard, cfg.Window, cfg.BatchSize)
}

func (n *Network) fitLoop(ds *seqdata.Dataset, cfg TrainConfig, stop <-chan struct{}) error {
	epochIn, shardIn, batchIn := 0, 0, 0
	lossAvg := 0.0
	if cfg.Resume {
		epochIn = n.Progress.Epoch
		shardIn = n.Progress.Shard
		batchIn = n.Progress.Batch
		lossAvg = n.Progress.Loss
	}
	if n.adam == nil {
		n.adam = &adam{}
	}

	for epoch := epochIn; epoch < cfg.Epochs; epoch++ {
		n.Progress.Epoch = epoch
		rate := DecayedRate(cfg.LR, cfg.Epochs, epoch)

		for shard := shardIn; shard < len(ds.Shards); shard++ {
			n.Progress.Shard = shard
			sh := ds.Shards[shard]
			content, err := ds.Read(sh.Path)
			if err != nil {
				return err
			}
			ids, err := ds.Encode(ds.Symbols(content))
			if err != nil {
				return err
			}
			rows := batchify(ids, cfg.BatchSize)
			nWindows := len(rows) / cfg.Window

			// States are zero at the start of each shard and carried
			// across windows within it.
			state := n.NewState(cfg.BatchSize).pack(n.creator)

			for b := batchIn; b < nWindows-1; b++ {
				select {
				case <-stop:
					return errStopped
				default:
				}
				n.Progress.Batch = b

				window := rows[b*cfg.Window : b*cfg.Window+cfg.Window+1]
				costVal := n.trainWindow(window, cfg, rate, &state)

				lossAvg = 0.99*lossAvg + 0.01*costVal/float64(cfg.Window)
				n.Progress.Loss = lossAvg

				if b%cfg.EvalEvery == 0 {
					testLoss, err := n.Evaluate(ds, cfg.TestShard, cfg.Window, cfg.BatchSize)
					if err != nil {
						return err
					}
					log.Printf("epoch %d: lr=%g shard=%s batch=%d/%d train=%f test=%f",
						epoch, rate, sh.Name, b, nWindows-1, lossAvg, testLoss)
					n.logSample(ds, content)
				}
			}
			batchIn = 0
		}
		shardIn = 0

		if cfg.SavePath != "" {
			if err := n.Save(ds, cfg.TestShard, filepath.Join(cfg.SavePath, ds.Name)); err != nil {
				return err
			}
		}
	}
	return nil
}

// trainWindow runs one truncated-BPTT window: a single forward pass,
// a single backward pass, clipping, and an Adam step. The carried
// state is replaced with the window's detached final state.
func (n *Network) trainWindow(rows [][]int, cfg TrainConfig, rate float64,
	state *anyvec.Vector) float64 {
	grad := anydiff.NewGrad(n.Parameters()...)
	var final anyvec.Vector
	cost := n.unroll(rows, 0, len(rows)-1, cfg.BatchSize,
		anydiff.NewConst(*state), true, &final)
	costVal := numToFloat(anyvec.Sum(cost.Output()))

	one := n.creator.MakeVectorData(n.creator.MakeNumericList([]float64{1}))
	cost.Propagate(one, grad)

	clipGrad(grad, cfg.GradClip)
	grad = n.adam.Transform(grad)
	grad.Scale(n.creator.MakeNumeric(-rate))
	grad.AddToVars()

	*state = final
	return costVal
}

// Evaluate computes the teacher-forced mean per-symbol cross-entropy
// over a held-out shard, with dropout disabled and no gradients.
func (n *Network) Evaluate(ds *seqdata.Dataset, shardPath string, window, batchSize int) (float64, error) {
	content, err := ds.Read(shardPath)
	if err != nil {
		return 0, err
	}
	ids, err := ds.Encode(ds.Symbols(content))
	if err != nil {
		return 0, err
	}
	rows := batchify(ids, batchSize)
	nWindows := len(rows) / window
	if nWindows < 2 {
		return 0, errors.New("evaluate: shard shorter than two windows")
	}

	state := n.NewState(batchSize).pack(n.creator)
	lossAvg := 0.0
	for b := 0; b < nWindows-1; b++ {
		rowsW := rows[b*window : b*window+window+1]
		var final anyvec.Vector
		cost := n.unroll(rowsW, 0, window, batchSize,
			anydiff.NewConst(state), false, &final)
		lossAvg += numToFloat(anyvec.Sum(cost.Output())) / float64(window)
		state = final
	}
	return lossAvg / float64(nWindows-1), nil
}

func (n *Network) logSample(ds *seqdata.Dataset, content string) {
	seed := ds.Symbols(content)
	if len(seed) > 20 {
		seed = seed[:20]
	}
	sample, _, err := n.Generate(ds, seed, 200, 1.0, nil, true)
	if err != nil {
		return
	}
	log.Printf("sample:\n----\n%s\n----", sample)
}

// batchify folds a symbol sequence into batchSize parallel streams.
// Row t holds the t-th symbol of every stream.
func batchify(seq []int, batchSize int) [][]int {
	nBatch := len(seq) / batchSize
	rows := make([][]int, nBatch)
	for t := range rows {
		row := make([]int, batchSize)
		for b := 0; b < batchSize; b++ {
			row[b] = seq[b*nBatch+t]
		}
		rows[t] = row
	}
	return rows
}

// clipGrad clamps every gradient component to [-clip, clip].
func clipGrad(g anydiff.Grad, clip float64) {
	if clip <= 0 {
		return
	}
	for _, vec := range g {
		switch data := vec.Data().(type) {
		case []float32:
			c := float32(clip)
			for i, x := range data {
				if x > c {
					data[i] = c
				} else if x < -c {
					data[i] = -c
				}
			}
			vec.SetData(data)
		case []float64:
			for i, x := range data {
				if x > clip {
					data[i] = clip
				} else if x < -clip {
					data[i] = -clip
				}
			}
			vec.SetData(data)
		}
	}
}
