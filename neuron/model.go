// Package neuron implements the generative sequence model whose cell
// state doubles as a sentiment feature space: an embedding layer, a
// stack of multiplicative LSTM cells with residual sums and dropout
// between layers, and a linear projection to vocabulary logits.
package neuron

import (
	"fmt"
	"math/rand"

	"github.com/michaellin99999/music-sentiment-seuron/mlstm"
	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anynet"
	"github.com/unixpickle/anyvec"
)

// A Network is the full generative model.
//
// Hidden and cell dimensionality are fixed at construction and never
// change. Training owns exclusive write access to the parameters; a
// Network must not be trained and sampled concurrently.
type Network struct {
	InputSize  int
	EmbedSize  int
	HiddenSize int
	OutputSize int
	NumLayers  int
	DropProb   float64

	Embedding *anydiff.Var
	Cells     []*mlstm.Block
	Out       *anynet.FC

	// Rand, if non-nil, is the source used for sampling during
	// generation. When nil the ambient math/rand source is used.
	Rand *rand.Rand

	// Progress is the mutable training record, persisted alongside
	// the parameters so an interrupted run can resume.
	Progress Progress

	creator   anyvec.Creator
	adam      *adam
	dropTrain *anynet.Dropout
	dropEval  *anynet.Dropout
}

// New creates a randomized Network.
func New(c anyvec.Creator, inputSize, embedSize, hiddenSize, outputSize,
	numLayers int, dropout float64) *Network {
	n := &Network{
		InputSize:  inputSize,
		EmbedSize:  embedSize,
		HiddenSize: hiddenSize,
		OutputSize: outputSize,
		NumLayers:  numLayers,
		DropProb:   dropout,
		Embedding:  anydiff.NewVar(c.MakeVector(inputSize * embedSize)),
		Out:        anynet.NewFC(c, hiddenSize, outputSize),
		creator:    c,
	}
	anyvec.Rand(n.Embedding.Vector, anyvec.Normal, nil)
	in := embedSize
	for i := 0; i < numLayers; i++ {
		n.Cells = append(n.Cells, mlstm.NewBlock(c, in, hiddenSize))
		in = hiddenSize
	}
	n.initDropout()
	return n
}

// initDropout precomputes one dropout per mode. Inference must never
// write shared state; Generate and Transform may run on concurrent
// goroutines.
func (n *Network) initDropout() {
	if n.DropProb <= 0 {
		return
	}
	n.dropTrain = &anynet.Dropout{KeepProb: 1 - n.DropProb, Enabled: true}
	n.dropEval = &anynet.Dropout{KeepProb: 1 - n.DropProb}
}

func (n *Network) dropout(train bool) *anynet.Dropout {
	if train {
		return n.dropTrain
	}
	return n.dropEval
}

// Parameters returns the learnable variables: the embedding, every
// cell's weights, and the output projection.
func (n *Network) Parameters() []*anydiff.Var {
	res := []*anydiff.Var{n.Embedding}
	for _, c := range n.Cells {
		res = append(res, c.Parameters()...)
	}
	res = append(res, n.Out.Parameters()...)
	return res
}

// A State holds the per-layer recurrent state for a batch.
// H is the hidden output state; C is the internal cell state used
// both for recurrence and as the feature representation.
type State struct {
	H []anyvec.Vector
	C []anyvec.Vector

	Batch int
}

// NewState creates a zero state for the given batch size.
func (n *Network) NewState(batch int) *State {
	s := &State{Batch: batch}
	for i := 0; i < n.NumLayers; i++ {
		s.H = append(s.H, n.creator.MakeVector(batch*n.HiddenSize))
		s.C = append(s.C, n.creator.MakeVector(batch*n.HiddenSize))
	}
	return s
}

// pack concatenates the state as [h0, c0, h1, c1, ...].
func (s *State) pack(c anyvec.Creator) anyvec.Vector {
	var parts []anyvec.Vector
	for i := range s.H {
		parts = append(parts, s.H[i], s.C[i])
	}
	return c.Concat(parts...)
}

func (n *Network) unpackState(vec anyvec.Vector, batch int) *State {
	s := &State{Batch: batch}
	stride := batch * n.HiddenSize
	for i := 0; i < n.NumLayers; i++ {
		s.H = append(s.H, vec.Slice(2*i*stride, (2*i+1)*stride).Copy())
		s.C = append(s.C, vec.Slice((2*i+1)*stride, (2*i+2)*stride).Copy())
	}
	return s
}

// Forward runs one timestep for a batch of symbols and returns the
// vocabulary logits (batch rows of OutputSize) and the new state.
// It is deterministic given the parameters and inputs and has no
// side effects.
func (n *Network) Forward(symbols []int, s *State) ([]float64, *State) {
	batch := len(symbols)
	if s == nil {
		s = n.NewState(batch)
	}
	if s.Batch != batch {
		panic(fmt.Sprintf("state batch size is %d, but got %d symbols",
			s.Batch, batch))
	}
	packed := anydiff.NewConst(s.pack(n.creator))
	var logits []float64
	var newState *State
	n.stepLayer(0, n.embed(symbols), packed, nil, batch, false,
		func(out, ns anydiff.Res) anydiff.Res {
			res := n.Out.Apply(out, batch)
			logits = vecData(res.Output())
			newState = n.unpackState(ns.Output(), batch)
			return res
		})
	return logits, newState
}

// stepLayer runs one timestep from the given layer onward.
// The state argument is the packed window state; gradients may flow
// through it when it is a pooled variable. The continuation receives
// the top-of-stack output and the packed new state.
//
// Intermediate cell outputs are pooled so that back-propagating the
// continuation's result traverses each cell subgraph a bounded number
// of times.
func (n *Network) stepLayer(i int, x, state anydiff.Res, newStates []anydiff.Res,
	batch int, train bool, cont func(out, newState anydiff.Res) anydiff.Res) anydiff.Res {
	if i == len(n.Cells) {
		return cont(x, anydiff.Concat(newStates...))
	}
	stride := batch * n.HiddenSize
	h := anydiff.Slice(state, 2*i*stride, (2*i+1)*stride)
	c := anydiff.Slice(state, (2*i+1)*stride, (2*i+2)*stride)
	fused := n.Cells[i].Step(x, h, c, batch)
	return anydiff.Pool(fused, func(fused anydiff.Res) anydiff.Res {
		out := anydiff.Slice(fused, 0, stride)
		if i > 0 {
			out = anydiff.Add(x, out)
		}
		if drop := n.dropout(train); drop != nil {
			out = drop.Apply(out, batch)
		}
		return n.stepLayer(i+1, out, state, append(newStates, fused), batch, train, cont)
	})
}

// unroll builds the summed cross-entropy cost over a window of
// batchified rows. rows[t] holds the inputs for step t; rows[t+1] the
// targets. The carried state is pooled at every step boundary, which
// is what makes one backward pass through the whole window feasible.
// If final is non-nil it receives the last (detached) state vector.
func (n *Network) unroll(rows [][]int, t, steps, batch int, state anydiff.Res,
	train bool, final *anyvec.Vector) anydiff.Res {
	if t == steps {
		if final != nil {
			*final = state.Output().Copy()
		}
		return anydiff.NewConst(n.creator.MakeVector(1))
	}
	return anydiff.Pool(state, func(state anydiff.Res) anydiff.Res {
		return n.stepLayer(0, n.embed(rows[t]), state, nil, batch, train,
			func(out, newState anydiff.Res) anydiff.Res {
				logits := n.Out.Apply(out, batch)
				logProbs := anynet.LogSoftmax.Apply(logits, batch)
				desired := n.oneHot(rows[t+1], n.OutputSize)
				cost := anydiff.Sum(anynet.DotCost{}.Cost(desired, logProbs, batch))
				cost = anydiff.Scale(cost, n.creator.MakeNumeric(1/float64(batch)))
				rest := n.unroll(rows, t+1, steps, batch, newState, train, final)
				return anydiff.Add(cost, rest)
			})
	})
}

// embed looks up the embedding rows for a batch of symbols.
func (n *Network) embed(symbols []int) anydiff.Res {
	oneHot := n.oneHot(symbols, n.InputSize)
	return anydiff.MatMul(false, false,
		&anydiff.Matrix{Data: oneHot, Rows: len(symbols), Cols: n.InputSize},
		&anydiff.Matrix{Data: n.Embedding, Rows: n.InputSize, Cols: n.EmbedSize},
	).Data
}

func (n *Network) oneHot(symbols []int, width int) anydiff.Res {
	data := make([]float64, len(symbols)*width)
	for i, s := range symbols {
		if s < 0 || s >= width {
			panic(fmt.Sprintf("symbol %d out of range [0, %d)", s, width))
		}
		data[i*width+s] = 1
	}
	return anydiff.NewConst(n.creator.MakeVectorData(n.creator.MakeNumericList(data)))
}

func vecData(v anyvec.Vector) []float64 {
	switch data := v.Data().(type) {
	case []float32:
		res := make([]float64, len(data))
		for i, x := range data {
			res[i] = float64(x)
		}
		return res
	case []float64:
		return append([]float64{}, data...)
	default:
		panic(fmt.Sprintf("unsupported numeric type: %T", data))
	}
}

func numToFloat(num anyvec.Numeric) float64 {
	switch num := num.(type) {
	case float32:
		return float64(num)
	case float64:
		return num
	default:
		panic(fmt.Sprintf("unsupported numeric type: %T", num))
	}
}
