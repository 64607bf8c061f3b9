// Package sentiment fits a linear classifier on the generative
// model's cell-state features and ranks hidden dimensions by how much
// they influence the predicted sentiment.
package sentiment

import (
	"errors"
	"fmt"
	"math"
	"math/rand"

	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anynet"
	"github.com/unixpickle/anynet/anyff"
	"github.com/unixpickle/anynet/anysgd"
	"github.com/unixpickle/anyvec"
	"github.com/unixpickle/anyvec/anyvec32"
)

// ErrNotFitted indicates that no prediction is available because the
// classifier has not been fitted.
var ErrNotFitted = errors.New("sentiment classifier not fitted")

const fitIterations = 300

// A Classifier is a softmax regression over feature vectors.
type Classifier struct {
	FC *anynet.FC
}

// DefaultCandidates returns the default regularization sweep,
// 2^-8 through 2^0.
func DefaultCandidates() []float64 {
	var res []float64
	for i := -8; i <= 0; i++ {
		res = append(res, math.Pow(2, float64(i)))
	}
	return res
}

// Fit trains one classifier per candidate regularization strength,
// keeps the strength with the best held-out accuracy, retrains at
// that strength, and returns the final classifier with its held-out
// accuracy in percent.
//
// Candidates are inverse regularization strengths: smaller values
// penalize weights harder. The candidate set may not be empty.
func Fit(trainX [][]float64, trainY []int, testX [][]float64, testY []int,
	candidates []float64, seed int64) (*Classifier, float64, error) {
	if len(candidates) == 0 {
		return nil, 0, errors.New("fit sentiment: empty candidate set")
	}
	if len(trainX) == 0 || len(testX) == 0 {
		return nil, 0, errors.New("fit sentiment: empty feature set")
	}
	numFeatures := len(trainX[0])
	numClasses := classCount(trainY, testY)

	best := 0
	bestScore := math.Inf(-1)
	for i, c := range candidates {
		fc := trainOne(trainX, trainY, numFeatures, numClasses, c, seed+int64(i))
		score := accuracy(fc, testX, testY)
		if score > bestScore {
			bestScore = score
			best = i
		}
	}

	fc := trainOne(trainX, trainY, numFeatures, numClasses, candidates[best],
		seed+int64(len(candidates)))
	res := &Classifier{FC: fc}
	return res, accuracy(fc, testX, testY) * 100, nil
}

// Predict returns the predicted class per feature vector.
// A nil or unfitted classifier yields ErrNotFitted.
func (c *Classifier) Predict(features [][]float64) ([]int, error) {
	if c == nil || c.FC == nil {
		return nil, ErrNotFitted
	}
	res := make([]int, len(features))
	for i, f := range features {
		if len(f) != c.FC.InCount {
			return nil, fmt.Errorf("predict: feature length should be %d, but got %d",
				c.FC.InCount, len(f))
		}
		res[i] = argmax(c.FC, f)
	}
	return res, nil
}

func trainOne(xs [][]float64, ys []int, numFeatures, numClasses int,
	c float64, seed int64) *anynet.FC {
	creator := anyvec32.CurrentCreator()
	rng := rand.New(rand.NewSource(seed))

	fc := anynet.NewFCZero(creator, numFeatures, numClasses)
	anyvec.Rand(fc.Weights.Vector, anyvec.Normal, rng)
	fc.Weights.Vector.Scale(creator.MakeNumeric(1 / math.Sqrt(float64(numFeatures))))

	net := anynet.Net{fc, anynet.LogSoftmax}
	t := &anyff.Trainer{
		Net: net,
		Cost: &L1Reg{
			Penalty: 1 / (c * float64(len(xs))),
			Params:  []*anydiff.Var{fc.Weights},
			Wrapped: anynet.DotCost{},
		},
		Params:  net.Parameters(),
		Average: true,
	}

	samples := make(anyff.SliceSampleList, len(xs))
	for i, x := range xs {
		out := make([]float64, numClasses)
		out[ys[i]] = 1
		samples[i] = &anyff.Sample{
			Input:  creator.MakeVectorData(creator.MakeNumericList(x)),
			Output: creator.MakeVectorData(creator.MakeNumericList(out)),
		}
	}

	var iters int
	stop := make(chan struct{})
	s := &anysgd.SGD{
		Fetcher:     t,
		Gradienter:  t,
		Transformer: &anysgd.Adam{},
		Samples:     samples,
		Rater:       anysgd.ConstRater(0.1),
		BatchSize:   32,
		StatusFunc: func(b anysgd.Batch) {
			iters++
			if iters == fitIterations {
				close(stop)
			}
		},
	}
	s.Run(stop)
	return fc
}

func accuracy(fc *anynet.FC, xs [][]float64, ys []int) float64 {
	var correct int
	for i, x := range xs {
		if argmax(fc, x) == ys[i] {
			correct++
		}
	}
	return float64(correct) / float64(len(xs))
}

func argmax(fc *anynet.FC, features []float64) int {
	c := fc.Weights.Vector.Creator()
	in := anydiff.NewConst(c.MakeVectorData(c.MakeNumericList(features)))
	out := fc.Apply(in, 1).Output()
	return anyvec.MaxIndex(out)
}

func classCount(labelSets ...[]int) int {
	max := 0
	for _, ys := range labelSets {
		for _, y := range ys {
			if y+1 > max {
				max = y + 1
			}
		}
	}
	return max
}
