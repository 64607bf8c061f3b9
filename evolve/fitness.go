package evolve

import (
	"errors"
	"fmt"

	"github.com/michaellin99999/music-sentiment-seuron/neuron"
	"github.com/michaellin99999/music-sentiment-seuron/sentiment"
	"github.com/michaellin99999/music-sentiment-seuron/seqdata"
)

// ErrNoValidSamples indicates that the generator could not produce
// enough valid samples within the attempt budget.
var ErrNoValidSamples = errors.New("no valid generated samples within attempt budget")

// An OverrideFitness scores an override vector by generating
// sequences under it, classifying them, and measuring the squared
// deviation of the predicted labels from the target.
type OverrideFitness struct {
	Net        *neuron.Network
	Codec      seqdata.Codec
	Classifier *sentiment.Classifier

	// Dims are the hidden dimensions controlled by the genes, in gene
	// order.
	Dims []int

	// Target is the label the generated sequences should be
	// classified as.
	Target float64

	Seed      []string
	GenLength int

	// Experiments is the number of valid samples to average over.
	// Default 30.
	Experiments int

	// MaxAttempts bounds the total number of generations per score,
	// including invalid ones. Default 10 times Experiments.
	MaxAttempts int

	// Valid filters generated sequences. Nil means seqdata.NonSilent.
	Valid func(sequence string) bool
}

// Fitness scores one individual. A single OverrideFitness serves
// every Search worker, as long as the network's Rand field is unset.
func (o *OverrideFitness) Fitness(ind Individual) (float64, error) {
	if len(ind) != len(o.Dims) {
		return 0, fmt.Errorf("fitness: individual has %d genes for %d dimensions",
			len(ind), len(o.Dims))
	}
	override := make(map[int]float64, len(o.Dims))
	for i, dim := range o.Dims {
		override[dim] = ind[i]
	}

	experiments := o.Experiments
	if experiments == 0 {
		experiments = 30
	}
	maxAttempts := o.MaxAttempts
	if maxAttempts == 0 {
		maxAttempts = 10 * experiments
	}
	valid := o.Valid
	if valid == nil {
		valid = seqdata.NonSilent
	}

	var total float64
	done := 0
	for attempts := 0; done < experiments; attempts++ {
		if attempts == maxAttempts {
			return 0, ErrNoValidSamples
		}
		sample, _, err := o.Net.Generate(o.Codec, o.Seed, o.GenLength, 1.0,
			override, true)
		if err != nil {
			return 0, err
		}
		if !valid(sample) {
			continue
		}
		features, _, err := o.Net.Transform(o.Codec, o.Codec.Symbols(sample), nil)
		if err != nil {
			return 0, err
		}
		labels, err := o.Classifier.Predict([][]float64{features})
		if err != nil {
			return 0, err
		}
		d := float64(labels[0]) - o.Target
		total += d * d
		done++
	}
	return total / float64(experiments), nil
}
