// Command generate samples sequences from a trained model, optionally
// under a hidden-state override.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"

	"github.com/michaellin99999/music-sentiment-seuron/neuron"
	"github.com/unixpickle/essentials"
)

func main() {
	var modelPath string
	var seqInit string
	var seqLength int
	var temp float64
	var overridePath string
	var count int
	var outDir string

	flag.StringVar(&modelPath, "model_path", "", "checkpoint prefix (dir/name)")
	flag.StringVar(&seqInit, "seq_init", ".", "seed sequence")
	flag.IntVar(&seqLength, "seq_length", 256, "symbols to generate")
	flag.Float64Var(&temp, "temp", 1.0, "sampling temperature")
	flag.StringVar(&overridePath, "override", "", "JSON file of dimension overrides")
	flag.IntVar(&count, "n", 1, "number of sequences")
	flag.StringVar(&outDir, "out_dir", "output", "output directory")
	flag.Parse()

	if modelPath == "" {
		essentials.Die("Missing -model_path flag. See -help.")
	}

	net, ds, err := neuron.Load(modelPath)
	if err != nil {
		essentials.Die(err)
	}

	override, err := readOverride(overridePath)
	if err != nil {
		essentials.Die(err)
	}

	if err := os.MkdirAll(outDir, 0755); err != nil {
		essentials.Die(err)
	}

	name := filepath.Base(modelPath)
	seed := ds.Symbols(seqInit)
	for i := 0; i < count; i++ {
		sample, _, err := net.Generate(ds, seed, seqLength, temp, override, true)
		if err != nil {
			essentials.Die(err)
		}
		outPath := filepath.Join(outDir, fmt.Sprintf("%s_%d", name, i))
		if err := ds.Write(sample, outPath); err != nil {
			essentials.Die(err)
		}
		log.Println("Wrote", outPath)
	}
}

// readOverride parses a JSON object mapping dimension indices to
// bias values, e.g. {"97": 5.0}.
func readOverride(path string) (map[int]float64, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, essentials.AddCtx("read override", err)
	}
	var raw map[string]float64
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, essentials.AddCtx("read override", err)
	}
	res := make(map[int]float64, len(raw))
	for k, v := range raw {
		dim, err := strconv.Atoi(k)
		if err != nil {
			return nil, fmt.Errorf("read override: bad dimension %q", k)
		}
		res[dim] = v
	}
	return res, nil
}
