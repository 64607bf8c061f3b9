package neuron

import (
	"errors"
	"fmt"
	"math"
	"math/rand"

	"github.com/michaellin99999/music-sentiment-seuron/seqdata"
	"github.com/unixpickle/essentials"
)

// Generate samples a sequence from the model.
//
// The seed primes the hidden state (and is emitted when appendSeed is
// set). Each of the following length steps adds the override biases
// to the last layer's hidden vector, divides the logits by the
// temperature, and draws the next symbol from the softmax
// distribution. Temperatures below 1 sharpen the distribution;
// temperatures above 1 flatten it.
//
// It returns the decoded sequence and the final cell state, which is
// the feature vector of the generated sequence.
func (n *Network) Generate(codec seqdata.Codec, seed []string, length int,
	temperature float64, override map[int]float64, appendSeed bool) (string, []float64, error) {
	if temperature <= 0 {
		return "", nil, fmt.Errorf("generate: temperature must be positive, got %v",
			temperature)
	}
	if len(seed) == 0 {
		return "", nil, errors.New("generate: empty seed sequence")
	}
	if err := n.checkDims("generate", override); err != nil {
		return "", nil, err
	}
	ids, err := codec.Encode(seed)
	if err != nil {
		return "", nil, essentials.AddCtx("generate", err)
	}

	state := n.NewState(1)
	var out []int
	var x int
	for _, id := range ids {
		_, state = n.Forward([]int{id}, state)
		x = id
		if appendSeed {
			out = append(out, id)
		}
	}

	for t := 0; t < length; t++ {
		n.addOverride(state, override)
		var logits []float64
		logits, state = n.Forward([]int{x}, state)
		x = n.sample(logits, temperature)
		out = append(out, x)
	}

	return codec.Decode(out), vecData(state.C[len(state.C)-1]), nil
}

// Transform runs a sequence through the model once, with no sampling,
// and returns its feature vector (the final cell state of the last
// layer) along with the per-step values of the tracked hidden
// dimensions. Deterministic given the parameters and input.
func (n *Network) Transform(codec seqdata.Codec, symbols []string,
	tracked []int) ([]float64, [][]float64, error) {
	trackedMap := make(map[int]float64, len(tracked))
	for _, d := range tracked {
		trackedMap[d] = 0
	}
	if err := n.checkDims("transform", trackedMap); err != nil {
		return nil, nil, err
	}
	ids, err := codec.Encode(symbols)
	if err != nil {
		return nil, nil, essentials.AddCtx("transform", err)
	}

	state := n.NewState(1)
	traj := make([][]float64, len(tracked))
	for _, id := range ids {
		_, state = n.Forward([]int{id}, state)
		cell := vecData(state.C[len(state.C)-1])
		for i, dim := range tracked {
			traj[i] = append(traj[i], cell[dim])
		}
	}
	return vecData(state.C[len(state.C)-1]), traj, nil
}

func (n *Network) checkDims(op string, dims map[int]float64) error {
	for dim := range dims {
		if dim < 0 || dim >= n.HiddenSize {
			return fmt.Errorf("%s: dimension %d out of range [0, %d)",
				op, dim, n.HiddenSize)
		}
	}
	return nil
}

// addOverride adds the bias values to the last layer's hidden vector.
func (n *Network) addOverride(s *State, override map[int]float64) {
	if len(override) == 0 {
		return
	}
	last := s.H[len(s.H)-1]
	switch data := last.Data().(type) {
	case []float32:
		for dim, v := range override {
			data[dim] += float32(v)
		}
		last.SetData(data)
	case []float64:
		for dim, v := range override {
			data[dim] += v
		}
		last.SetData(data)
	}
}

// sample draws a symbol index from the temperature-scaled softmax of
// the logits.
func (n *Network) sample(logits []float64, temperature float64) int {
	max := math.Inf(-1)
	for _, l := range logits {
		if l/temperature > max {
			max = l / temperature
		}
	}
	probs := make([]float64, len(logits))
	var sum float64
	for i, l := range logits {
		probs[i] = math.Exp(l/temperature - max)
		sum += probs[i]
	}

	pick := n.randFloat() * sum
	var current float64
	for i, p := range probs {
		current += p
		if current > pick {
			return i
		}
	}
	return len(probs) - 1
}

func (n *Network) randFloat() float64 {
	if n.Rand != nil {
		return n.Rand.Float64()
	}
	return rand.Float64()
}
