package neuron

import (
	"errors"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"reflect"
	"sync"
	"testing"

	"github.com/michaellin99999/music-sentiment-seuron/seqdata"
	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anyvec/anyvec32"
)

func testNetwork(t *testing.T, layers int) (*Network, *seqdata.Dataset) {
	t.Helper()
	ds, err := seqdata.FromVocab("test", "txt",
		[]string{" ", ".", "a", "b", "c"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	vocab := len(ds.Vocab())
	net := New(anyvec32.CurrentCreator(), vocab, 8, 16, vocab, layers, 0)
	return net, ds
}

func TestForwardDeterminism(t *testing.T) {
	net, _ := testNetwork(t, 2)
	logits1, state1 := net.Forward([]int{1}, nil)
	logits2, state2 := net.Forward([]int{1}, nil)
	if !reflect.DeepEqual(logits1, logits2) {
		t.Error("two identical forward passes produced different logits")
	}
	for i := range state1.C {
		if !reflect.DeepEqual(state1.C[i].Data(), state2.C[i].Data()) {
			t.Errorf("layer %d cell states differ", i)
		}
	}
}

func TestGenerateLengths(t *testing.T) {
	net, ds := testNetwork(t, 1)
	net.Rand = rand.New(rand.NewSource(1))
	seed := []string{"a", "b", "c"}

	withSeed, _, err := net.Generate(ds, seed, 10, 1.0, nil, true)
	if err != nil {
		t.Fatal(err)
	}
	if n := len(ds.Symbols(withSeed)); n != 13 {
		t.Errorf("expected 13 symbols but got %d", n)
	}

	withoutSeed, _, err := net.Generate(ds, seed, 10, 1.0, nil, false)
	if err != nil {
		t.Fatal(err)
	}
	if n := len(ds.Symbols(withoutSeed)); n != 10 {
		t.Errorf("expected 10 symbols but got %d", n)
	}
}

func TestGenerateSeedOnly(t *testing.T) {
	net, ds := testNetwork(t, 1)
	out, _, err := net.Generate(ds, []string{"."}, 0, 1.0, nil, true)
	if err != nil {
		t.Fatal(err)
	}
	if out != "." {
		t.Errorf("expected %q but got %q", ".", out)
	}
}

func TestGenerateErrors(t *testing.T) {
	net, ds := testNetwork(t, 1)
	if _, _, err := net.Generate(ds, []string{"."}, 5, 0, nil, true); err == nil {
		t.Error("expected an error for a zero temperature")
	}
	if _, _, err := net.Generate(ds, nil, 5, 1.0, nil, true); err == nil {
		t.Error("expected an error for an empty seed")
	}
	bad := map[int]float64{net.HiddenSize: 1}
	if _, _, err := net.Generate(ds, []string{"."}, 5, 1.0, bad, true); err == nil {
		t.Error("expected an error for an out-of-range override dimension")
	}
}

func TestGenerateFeatureLength(t *testing.T) {
	net, ds := testNetwork(t, 2)
	_, features, err := net.Generate(ds, []string{"a"}, 3, 1.0, nil, true)
	if err != nil {
		t.Fatal(err)
	}
	if len(features) != net.HiddenSize {
		t.Errorf("expected %d features but got %d", net.HiddenSize, len(features))
	}
}

func TestTemperatureEntropy(t *testing.T) {
	net, _ := testNetwork(t, 1)
	net.Rand = rand.New(rand.NewSource(7))
	logits := []float64{2, 1, 0, -1, -2}

	entropy := func(temp float64) float64 {
		const draws = 4000
		counts := make([]float64, len(logits))
		for i := 0; i < draws; i++ {
			counts[net.sample(logits, temp)]++
		}
		var h float64
		for _, c := range counts {
			if c > 0 {
				p := c / draws
				h -= p * math.Log(p)
			}
		}
		return h
	}

	cold, hot := entropy(0.2), entropy(5)
	if cold >= hot {
		t.Errorf("entropy at temperature 0.2 (%f) should be below 5 (%f)", cold, hot)
	}
}

func TestTransform(t *testing.T) {
	net, ds := testNetwork(t, 1)
	symbols := []string{"a", "b", "a", "c"}
	tracked := []int{0, 3}

	feats1, traj, err := net.Transform(ds, symbols, tracked)
	if err != nil {
		t.Fatal(err)
	}
	if len(feats1) != net.HiddenSize {
		t.Errorf("expected %d features but got %d", net.HiddenSize, len(feats1))
	}
	if len(traj) != 2 {
		t.Fatalf("expected 2 trajectories but got %d", len(traj))
	}
	for i, tr := range traj {
		if len(tr) != len(symbols) {
			t.Errorf("trajectory %d should have %d points but got %d",
				i, len(symbols), len(tr))
		}
	}

	feats2, _, err := net.Transform(ds, symbols, tracked)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(feats1, feats2) {
		t.Error("two identical transforms produced different features")
	}
}

func TestTransformConcurrentDropout(t *testing.T) {
	ds, err := seqdata.FromVocab("test", "txt",
		[]string{" ", ".", "a", "b", "c"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	vocab := len(ds.Vocab())
	net := New(anyvec32.CurrentCreator(), vocab, 8, 16, vocab, 2, 0.5)
	symbols := []string{"a", "b", "a", "c"}

	want, _, err := net.Transform(ds, symbols, nil)
	if err != nil {
		t.Fatal(err)
	}

	errChan := make(chan error, 8)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 5; j++ {
				got, _, err := net.Transform(ds, symbols, nil)
				if err != nil {
					errChan <- err
					return
				}
				if !reflect.DeepEqual(got, want) {
					errChan <- errors.New("concurrent transform diverged")
					return
				}
			}
		}()
	}
	wg.Wait()
	close(errChan)
	if err := <-errChan; err != nil {
		t.Fatal(err)
	}
}

func TestAdamSnapshot(t *testing.T) {
	c := anyvec32.CurrentCreator()
	vars := []*anydiff.Var{
		anydiff.NewVar(c.MakeVectorData(c.MakeNumericList([]float64{1, -2, 3}))),
		anydiff.NewVar(c.MakeVectorData(c.MakeNumericList([]float64{0.5, 0.5}))),
	}
	gradFor := func(scale float64) anydiff.Grad {
		return anydiff.Grad{
			vars[0]: c.MakeVectorData(c.MakeNumericList([]float64{
				scale, -scale, 2 * scale,
			})),
			vars[1]: c.MakeVectorData(c.MakeNumericList([]float64{
				scale, scale / 2,
			})),
		}
	}

	a := &adam{}
	a.Transform(gradFor(1))
	a.Transform(gradFor(0.5))

	data, err := a.marshal(vars)
	if err != nil {
		t.Fatal(err)
	}
	restored := &adam{}
	if err := restored.unmarshal(vars, data); err != nil {
		t.Fatal(err)
	}
	if restored.iteration != a.iteration {
		t.Errorf("expected iteration %f but got %f", a.iteration, restored.iteration)
	}

	expected := a.Transform(gradFor(0.25))
	actual := restored.Transform(gradFor(0.25))
	for i, v := range vars {
		if !reflect.DeepEqual(expected[v].Data(), actual[v].Data()) {
			t.Errorf("restored step differs for variable %d", i)
		}
	}
}

func TestResume(t *testing.T) {
	dir := t.TempDir()
	content := "abcabcabc abc.abc abcabc.abcabc abc."
	shard := filepath.Join(dir, "train.txt")
	if err := os.WriteFile(shard, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	ds, err := seqdata.Load(dir, "txt")
	if err != nil {
		t.Fatal(err)
	}

	vocab := len(ds.Vocab())
	net := New(anyvec32.CurrentCreator(), vocab, 4, 8, vocab, 1, 0)
	cfg := TrainConfig{
		Epochs:    1,
		Window:    2,
		BatchSize: 2,
		LR:        1e-3,
		GradClip:  5,
		TestShard: shard,
		SavePath:  t.TempDir(),
	}
	if _, err := net.Fit(ds, cfg, nil); err != nil {
		t.Fatal(err)
	}

	restored, _, err := Load(filepath.Join(cfg.SavePath, ds.Name))
	if err != nil {
		t.Fatal(err)
	}
	if restored.Progress != net.Progress {
		t.Errorf("expected progress %+v but got %+v", net.Progress, restored.Progress)
	}
	if restored.adam == nil {
		t.Fatal("optimizer state was not restored")
	}
	if restored.adam.iteration != net.adam.iteration {
		t.Errorf("expected iteration %f but got %f",
			net.adam.iteration, restored.adam.iteration)
	}
	origParams := net.Parameters()
	resParams := restored.Parameters()
	for i := range origParams {
		first := net.adam.firstMoment[origParams[i]]
		second := net.adam.secondMoment[origParams[i]]
		if !reflect.DeepEqual(first.Data(), restored.adam.firstMoment[resParams[i]].Data()) {
			t.Errorf("first moment %d differs", i)
		}
		if !reflect.DeepEqual(second.Data(), restored.adam.secondMoment[resParams[i]].Data()) {
			t.Errorf("second moment %d differs", i)
		}
	}

	cfg.Epochs = 2
	cfg.Resume = true
	loss, err := restored.Fit(ds, cfg, nil)
	if err != nil {
		t.Fatal(err)
	}
	if math.IsNaN(loss) || math.IsInf(loss, 0) {
		t.Errorf("loss should be finite but got %f", loss)
	}
	if restored.Progress.Epoch != 1 {
		t.Errorf("expected to finish in epoch 1 but got %d", restored.Progress.Epoch)
	}
}

func TestDecayedRate(t *testing.T) {
	if r := DecayedRate(1, 10, 0); r != 1 {
		t.Errorf("expected rate 1 but got %f", r)
	}
	if r := DecayedRate(1, 10, 5); r != 0.5 {
		t.Errorf("expected rate 0.5 but got %f", r)
	}
	if r := DecayedRate(1, 10, 10); r != 0 {
		t.Errorf("expected rate 0 but got %f", r)
	}
}

func TestBatchify(t *testing.T) {
	seq := []int{0, 1, 2, 3, 4, 5, 6, 7}
	rows := batchify(seq, 2)
	expected := [][]int{{0, 4}, {1, 5}, {2, 6}, {3, 7}}
	if !reflect.DeepEqual(rows, expected) {
		t.Errorf("expected %v but got %v", expected, rows)
	}
}

func TestSaveLoad(t *testing.T) {
	net, ds := testNetwork(t, 2)
	net.Progress = Progress{Epoch: 3, Shard: 1, Batch: 42, Loss: 1.25}
	prefix := filepath.Join(t.TempDir(), ds.Name)

	if err := net.Save(ds, "test.txt", prefix); err != nil {
		t.Fatal(err)
	}
	restored, rds, err := Load(prefix)
	if err != nil {
		t.Fatal(err)
	}

	if restored.HiddenSize != net.HiddenSize || restored.NumLayers != net.NumLayers {
		t.Errorf("bad sizes: %d, %d", restored.HiddenSize, restored.NumLayers)
	}
	if restored.Progress != net.Progress {
		t.Errorf("expected progress %+v but got %+v", net.Progress, restored.Progress)
	}
	if !reflect.DeepEqual(rds.Vocab(), ds.Vocab()) {
		t.Errorf("expected vocab %v but got %v", ds.Vocab(), rds.Vocab())
	}

	logits1, _ := net.Forward([]int{2}, nil)
	logits2, _ := restored.Forward([]int{2}, nil)
	if !reflect.DeepEqual(logits1, logits2) {
		t.Error("restored network computes different logits")
	}
}

func TestFitSmoke(t *testing.T) {
	dir := t.TempDir()
	content := "abcabcabc abc.abc abcabc.abcabc abc."
	shard := filepath.Join(dir, "train.txt")
	if err := os.WriteFile(shard, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	ds, err := seqdata.Load(dir, "txt")
	if err != nil {
		t.Fatal(err)
	}

	vocab := len(ds.Vocab())
	net := New(anyvec32.CurrentCreator(), vocab, 4, 8, vocab, 1, 0)
	net.Rand = rand.New(rand.NewSource(3))

	loss, err := net.Fit(ds, TrainConfig{
		Epochs:    2,
		Window:    2,
		BatchSize: 2,
		LR:        1e-3,
		GradClip:  5,
		TestShard: shard,
	}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if math.IsNaN(loss) || math.IsInf(loss, 0) {
		t.Errorf("loss should be finite but got %f", loss)
	}
}
