// Command search fits a sentiment classifier on model features, ranks
// the most sentiment-laden hidden dimensions, and runs a genetic
// search for override values that steer generation toward a target
// sentiment. The result is an override file for the generate command.
package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/michaellin99999/music-sentiment-seuron/evolve"
	"github.com/michaellin99999/music-sentiment-seuron/neuron"
	"github.com/michaellin99999/music-sentiment-seuron/sentiment"
	"github.com/michaellin99999/music-sentiment-seuron/seqdata"
	"github.com/unixpickle/essentials"
)

func main() {
	var modelPath string
	var sentTrain string
	var sentTest string
	var outPath string
	var seqInit string
	var topK int
	var target float64
	var genLength int
	var experiments int
	var popSize int
	var crossRate float64
	var mutRate float64
	var elitism int
	var generations int

	flag.StringVar(&modelPath, "model_path", "", "checkpoint prefix (dir/name)")
	flag.StringVar(&sentTrain, "sent_train", "", "labeled training sequences (label<TAB>text per line)")
	flag.StringVar(&sentTest, "sent_test", "", "labeled held-out sequences")
	flag.StringVar(&outPath, "out", "override.json", "output override file")
	flag.StringVar(&seqInit, "seq_init", ".", "seed sequence for fitness generation")
	flag.IntVar(&topK, "top_k", 5, "number of dimensions to search over")
	flag.Float64Var(&target, "target", 1, "target sentiment label")
	flag.IntVar(&genLength, "gen_length", 256, "generated length per fitness sample")
	flag.IntVar(&experiments, "experiments", 30, "valid samples per fitness score")
	flag.IntVar(&popSize, "pop_size", 100, "population size")
	flag.Float64Var(&crossRate, "cross_rate", 0.95, "crossover probability")
	flag.Float64Var(&mutRate, "mut_rate", 0.1, "per-gene mutation probability")
	flag.IntVar(&elitism, "elitism", 3, "elite count")
	flag.IntVar(&generations, "generations", 10, "generations to evolve")
	flag.Parse()

	if modelPath == "" || sentTrain == "" || sentTest == "" {
		essentials.Die("Missing -model_path, -sent_train or -sent_test flag. See -help.")
	}

	net, ds, err := neuron.Load(modelPath)
	if err != nil {
		essentials.Die(err)
	}

	trainX, trainY, err := loadLabeled(sentTrain, ds, net)
	if err != nil {
		essentials.Die(err)
	}
	testX, testY, err := loadLabeled(sentTest, ds, net)
	if err != nil {
		essentials.Die(err)
	}
	log.Printf("Extracted features for %d train and %d test sequences.",
		len(trainX), len(testX))

	clf, acc, err := sentiment.Fit(trainX, trainY, testX, testY,
		sentiment.DefaultCandidates(), 1)
	if err != nil {
		essentials.Die(err)
	}
	log.Printf("Classifier accuracy: %.2f%%", acc)

	dims, err := clf.TopK(topK)
	if err != nil {
		essentials.Die(err)
	}
	log.Println("Most salient dimensions:", dims)

	fitness := &evolve.OverrideFitness{
		Net:         net,
		Codec:       ds,
		Classifier:  clf,
		Dims:        dims,
		Target:      target,
		Seed:        ds.Symbols(seqInit),
		GenLength:   genLength,
		Experiments: experiments,
	}
	search := evolve.NewSearch(evolve.Config{
		PopulationSize: popSize,
		CrossRate:      crossRate,
		MutRate:        mutRate,
		Elitism:        elitism,
	}, len(dims), fitness.Fitness, nil)

	best, score, err := search.Evolve(generations)
	if err != nil {
		essentials.Die(err)
	}
	log.Printf("Best override scored %f.", score)

	override := make(map[string]float64, len(dims))
	for i, dim := range dims {
		override[strconv.Itoa(dim)] = best[i]
	}
	data, err := json.MarshalIndent(override, "", "  ")
	if err != nil {
		essentials.Die(err)
	}
	if err := os.WriteFile(outPath, data, 0644); err != nil {
		essentials.Die(err)
	}
	log.Println("Wrote", outPath)
}

// loadLabeled reads label<TAB>sequence lines and transforms each
// sequence into its feature vector.
func loadLabeled(path string, ds *seqdata.Dataset, net *neuron.Network) ([][]float64, []int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, essentials.AddCtx("load labeled data", err)
	}
	defer f.Close()

	var features [][]float64
	var labels []int
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 1<<20), 1<<24)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		parts := strings.SplitN(line, "\t", 2)
		if len(parts) != 2 {
			return nil, nil, fmt.Errorf("load labeled data: bad line %q", line)
		}
		label, err := strconv.Atoi(parts[0])
		if err != nil {
			return nil, nil, fmt.Errorf("load labeled data: bad label %q", parts[0])
		}
		feats, _, err := net.Transform(ds, ds.Symbols(parts[1]), nil)
		if err != nil {
			return nil, nil, essentials.AddCtx("load labeled data", err)
		}
		features = append(features, feats)
		labels = append(labels, label)
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, essentials.AddCtx("load labeled data", err)
	}
	return features, labels, nil
}
