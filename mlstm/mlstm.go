// Package mlstm implements a multiplicative LSTM cell, a gated
// recurrent unit whose input modulates the previous hidden state
// before the gate computations.
package mlstm

import (
	"fmt"
	"math"

	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anynet"
	"github.com/unixpickle/anyvec"
	"github.com/unixpickle/anyvec/anyvecsave"
	"github.com/unixpickle/serializer"
)

const rememberBias = 1

func init() {
	var g Gate
	serializer.RegisterTypedDeserializer(g.SerializerType(), DeserializeGate)
	var b Block
	serializer.RegisterTypedDeserializer(b.SerializerType(), DeserializeBlock)
}

// Block is a multiplicative LSTM cell.
//
// At each timestep the input is combined with the previous hidden
// state into a modulated state
//
//	m := (Wmx*x) * (Wmh*h)
//
// which then drives the standard gated update:
//
//	c' := remember(x, m)*c + in(x, m)*value(x, m)
//	h' := output(x, m) * tanh(c')
//
// The multiplicative interaction lets individual units learn
// directions that stay steerable with a simple additive bias.
type Block struct {
	InCount    int
	StateCount int

	// InputMod and StateMod produce the modulated state.
	InputMod *anydiff.Var
	StateMod *anydiff.Var

	InValue  *Gate
	In       *Gate
	Remember *Gate
	Output   *Gate
}

// DeserializeBlock deserializes a Block.
func DeserializeBlock(d []byte) (*Block, error) {
	var inCount, stateCount serializer.Int
	var inMod, stateMod *anyvecsave.S
	var value, in, rem, out *Gate
	err := serializer.DeserializeAny(d, &inCount, &stateCount, &inMod, &stateMod,
		&value, &in, &rem, &out)
	if err != nil {
		return nil, err
	}
	return &Block{
		InCount:    int(inCount),
		StateCount: int(stateCount),
		InputMod:   anydiff.NewVar(inMod.Vector),
		StateMod:   anydiff.NewVar(stateMod.Vector),
		InValue:    value,
		In:         in,
		Remember:   rem,
		Output:     out,
	}, nil
}

// NewBlock creates a new, randomized Block.
//
// Like a plain LSTM, the remember gate is initially biased to
// remember things.
func NewBlock(c anyvec.Creator, in, state int) *Block {
	res := NewBlockZero(c, in, state)
	for _, v := range []*anydiff.Var{res.InputMod, res.StateMod} {
		anyvec.Rand(v.Vector, anyvec.Normal, nil)
	}
	res.InputMod.Vector.Scale(c.MakeNumeric(1 / math.Sqrt(float64(in))))
	res.StateMod.Vector.Scale(c.MakeNumeric(1 / math.Sqrt(float64(state))))
	for _, g := range res.gates() {
		g.randomize(c, in, state)
	}
	res.Remember.Biases.Vector.AddScalar(c.MakeNumeric(rememberBias))
	return res
}

// NewBlockZero creates a new, zero'd out Block.
func NewBlockZero(c anyvec.Creator, in, state int) *Block {
	return &Block{
		InCount:    in,
		StateCount: state,
		InputMod:   anydiff.NewVar(c.MakeVector(state * in)),
		StateMod:   anydiff.NewVar(c.MakeVector(state * state)),
		InValue:    NewGateZero(c, in, state, anynet.Tanh),
		In:         NewGateZero(c, in, state, anynet.Sigmoid),
		Remember:   NewGateZero(c, in, state, anynet.Sigmoid),
		Output:     NewGateZero(c, in, state, anynet.Sigmoid),
	}
}

// Step applies the cell for a single timestep to a batch of n
// input vectors and previous states.
//
// The result packs the new hidden state followed by the new cell
// state, each n*StateCount long. The cell retains nothing between
// calls; the output is purely a function of the arguments.
func (b *Block) Step(x, h, c anydiff.Res, n int) anydiff.Res {
	if x.Output().Len() != n*b.InCount {
		panic(fmt.Sprintf("input length should be %d, but got %d",
			n*b.InCount, x.Output().Len()))
	}
	if h.Output().Len() != n*b.StateCount || c.Output().Len() != n*b.StateCount {
		panic(fmt.Sprintf("state length should be %d", n*b.StateCount))
	}
	return anydiff.Pool(x, func(x anydiff.Res) anydiff.Res {
		mod := anydiff.Mul(
			applyWeights(b.InCount, b.StateCount, b.InputMod, x),
			applyWeights(b.StateCount, b.StateCount, b.StateMod, h),
		)
		return anydiff.Pool(mod, func(mod anydiff.Res) anydiff.Res {
			newCell := anydiff.Add(
				anydiff.Mul(b.Remember.Apply(x, mod, b, n), c),
				anydiff.Mul(b.In.Apply(x, mod, b, n), b.InValue.Apply(x, mod, b, n)),
			)
			return anydiff.Pool(newCell, func(newCell anydiff.Res) anydiff.Res {
				newHidden := anydiff.Mul(b.Output.Apply(x, mod, b, n),
					anydiff.Tanh(newCell))
				return anydiff.Concat(newHidden, newCell)
			})
		})
	})
}

// Parameters returns the parameters of the block.
func (b *Block) Parameters() []*anydiff.Var {
	res := []*anydiff.Var{b.InputMod, b.StateMod}
	for _, g := range b.gates() {
		res = append(res, g.Parameters()...)
	}
	return res
}

// SerializerType returns the unique ID used to serialize
// a Block with the serializer package.
func (b *Block) SerializerType() string {
	return "github.com/michaellin99999/music-sentiment-seuron/mlstm.Block"
}

// Serialize serializes the Block.
func (b *Block) Serialize() ([]byte, error) {
	return serializer.SerializeAny(
		serializer.Int(b.InCount),
		serializer.Int(b.StateCount),
		&anyvecsave.S{Vector: b.InputMod.Vector},
		&anyvecsave.S{Vector: b.StateMod.Vector},
		b.InValue, b.In, b.Remember, b.Output,
	)
}

func (b *Block) gates() []*Gate {
	return []*Gate{b.InValue, b.In, b.Remember, b.Output}
}

// A Gate computes an activation from the input and the modulated
// state.
type Gate struct {
	InputWeights *anydiff.Var
	ModWeights   *anydiff.Var
	Biases       *anydiff.Var
	Activation   anynet.Activation
}

// DeserializeGate deserializes a Gate.
func DeserializeGate(d []byte) (*Gate, error) {
	var iw, mw, b *anyvecsave.S
	var a anynet.Activation
	if err := serializer.DeserializeAny(d, &iw, &mw, &b, &a); err != nil {
		return nil, err
	}
	return &Gate{
		InputWeights: anydiff.NewVar(iw.Vector),
		ModWeights:   anydiff.NewVar(mw.Vector),
		Biases:       anydiff.NewVar(b.Vector),
		Activation:   a,
	}, nil
}

// NewGateZero creates a zero'd Gate.
func NewGateZero(c anyvec.Creator, in, state int, activation anynet.Activation) *Gate {
	return &Gate{
		InputWeights: anydiff.NewVar(c.MakeVector(state * in)),
		ModWeights:   anydiff.NewVar(c.MakeVector(state * state)),
		Biases:       anydiff.NewVar(c.MakeVector(state)),
		Activation:   activation,
	}
}

// Apply computes the gate value for a batch of n inputs x and
// modulated states m.
func (g *Gate) Apply(x, m anydiff.Res, b *Block, n int) anydiff.Res {
	sum := anydiff.Add(
		applyWeights(b.InCount, b.StateCount, g.InputWeights, x),
		applyWeights(b.StateCount, b.StateCount, g.ModWeights, m),
	)
	return g.Activation.Apply(anydiff.AddRepeated(sum, g.Biases), n)
}

// Parameters returns the parameters of the gate.
func (g *Gate) Parameters() []*anydiff.Var {
	return []*anydiff.Var{g.InputWeights, g.ModWeights, g.Biases}
}

// SerializerType returns the unique ID used to serialize
// a Gate with the serializer package.
func (g *Gate) SerializerType() string {
	return "github.com/michaellin99999/music-sentiment-seuron/mlstm.Gate"
}

// Serialize serializes the Gate.
func (g *Gate) Serialize() ([]byte, error) {
	return serializer.SerializeAny(
		&anyvecsave.S{Vector: g.InputWeights.Vector},
		&anyvecsave.S{Vector: g.ModWeights.Vector},
		&anyvecsave.S{Vector: g.Biases.Vector},
		g.Activation,
	)
}

func (g *Gate) randomize(c anyvec.Creator, in, state int) {
	anyvec.Rand(g.InputWeights.Vector, anyvec.Normal, nil)
	anyvec.Rand(g.ModWeights.Vector, anyvec.Normal, nil)
	g.InputWeights.Vector.Scale(c.MakeNumeric(1 / math.Sqrt(float64(in))))
	g.ModWeights.Vector.Scale(c.MakeNumeric(1 / math.Sqrt(float64(state))))
}

func applyWeights(in, out int, weights anydiff.Res, batch anydiff.Res) anydiff.Res {
	weightMat := &anydiff.Matrix{Data: weights, Rows: out, Cols: in}
	inMat := &anydiff.Matrix{Data: batch, Rows: batch.Output().Len() / in, Cols: in}
	return anydiff.MatMul(false, true, inMat, weightMat).Data
}
