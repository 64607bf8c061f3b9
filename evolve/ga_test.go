package evolve

import (
	"errors"
	"math"
	"math/rand"
	"reflect"
	"testing"
)

// sphere is a synthetic landscape minimized at the origin.
func sphere(ind Individual) (float64, error) {
	var total float64
	for _, x := range ind {
		total += x * x
	}
	return total, nil
}

func TestEvaluate(t *testing.T) {
	s := NewSearch(Config{PopulationSize: 8}, 3, sphere,
		rand.New(rand.NewSource(1)))
	scores, err := s.Evaluate()
	if err != nil {
		t.Fatal(err)
	}
	if len(scores) != 8 {
		t.Fatalf("expected 8 scores but got %d", len(scores))
	}
	for i, score := range scores {
		expected, _ := sphere(s.Population[i])
		if score != expected {
			t.Errorf("score %d should be %f but got %f", i, expected, score)
		}
	}
}

func TestEvaluateError(t *testing.T) {
	failure := errors.New("bad oracle")
	s := NewSearch(Config{PopulationSize: 4}, 2,
		func(Individual) (float64, error) {
			return 0, failure
		}, rand.New(rand.NewSource(1)))
	if _, err := s.Evaluate(); err != failure {
		t.Errorf("expected the oracle error but got %v", err)
	}
}

func TestSelectElitism(t *testing.T) {
	s := NewSearch(Config{PopulationSize: 10, Elitism: 3}, 2, sphere,
		rand.New(rand.NewSource(2)))
	scores, err := s.Evaluate()
	if err != nil {
		t.Fatal(err)
	}

	order := make([]int, len(scores))
	for i := range order {
		order[i] = i
	}
	for i := range order {
		for j := i + 1; j < len(order); j++ {
			if scores[order[j]] < scores[order[i]] {
				order[i], order[j] = order[j], order[i]
			}
		}
	}

	next := s.Select(scores)
	if len(next) != 10 {
		t.Fatalf("expected 10 individuals but got %d", len(next))
	}
	for i := 0; i < 3; i++ {
		if !reflect.DeepEqual(next[i], s.Population[order[i]]) {
			t.Errorf("elite %d should be individual %d verbatim", i, order[i])
		}
	}
}

func TestSelectRouletteDirection(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	s := NewSearch(Config{PopulationSize: 50, Elitism: 1}, 1, sphere, rng)
	// One near-perfect individual among bad ones.
	for i := range s.Population {
		s.Population[i] = Individual{10}
	}
	s.Population[7] = Individual{1e-4}
	scores, err := s.Evaluate()
	if err != nil {
		t.Fatal(err)
	}

	next := s.Select(scores)
	var good int
	for _, ind := range next[1:] {
		if ind[0] == 1e-4 {
			good++
		}
	}
	if good < 40 {
		t.Errorf("inverse roulette picked the best individual only %d/49 times", good)
	}

	s.cfg.RawRoulette = true
	next = s.Select(scores)
	good = 0
	for _, ind := range next[1:] {
		if ind[0] == 1e-4 {
			good++
		}
	}
	if good > 10 {
		t.Errorf("raw roulette picked the best individual %d/49 times", good)
	}
}

func TestMutateBounds(t *testing.T) {
	s := NewSearch(Config{
		PopulationSize: 20,
		Elitism:        2,
		MutRate:        1,
		Domain:         [2]float64{-1, 1},
	}, 4, sphere, rand.New(rand.NewSource(4)))

	elites := []Individual{clone(s.Population[0]), clone(s.Population[1])}
	s.Mutate(s.Population)
	for i, elite := range elites {
		if !reflect.DeepEqual(s.Population[i], elite) {
			t.Errorf("elite %d was mutated", i)
		}
	}
	for _, ind := range s.Population[2:] {
		for _, g := range ind {
			if g < -1 || g > 1 {
				t.Fatalf("gene %f escaped the domain", g)
			}
		}
	}
}

func TestCross(t *testing.T) {
	s := NewSearch(Config{PopulationSize: 4, Elitism: 1, CrossRate: 1}, 2,
		sphere, rand.New(rand.NewSource(5)))
	s.Population = []Individual{{9, 9}, {0, 2}, {4, 6}, {1, 1}}
	s.Cross(s.Population)
	if !reflect.DeepEqual(s.Population[0], Individual{9, 9}) {
		t.Error("elite was crossed")
	}
	if !reflect.DeepEqual(s.Population[1], Individual{2, 4}) {
		t.Errorf("expected {2, 4} but got %v", s.Population[1])
	}
}

func TestEvolveConverges(t *testing.T) {
	s := NewSearch(Config{
		PopulationSize: 40,
		Elitism:        3,
		Domain:         [2]float64{-5, 5},
	}, 3, sphere, rand.New(rand.NewSource(6)))

	// The elites survive selection, crossover and mutation verbatim,
	// so the best score may never worsen from one generation to the
	// next.
	prevBest := math.Inf(1)
	for g := 0; g < 30; g++ {
		scores, err := s.Evaluate()
		if err != nil {
			t.Fatal(err)
		}
		best := scores[argmin(scores)]
		if best > prevBest {
			t.Fatalf("generation %d: best score %f worsened from %f",
				g, best, prevBest)
		}
		prevBest = best

		next := s.Select(scores)
		s.Cross(next)
		s.Mutate(next)
		s.Population = next
	}

	scores, err := s.Evaluate()
	if err != nil {
		t.Fatal(err)
	}
	if final := scores[argmin(scores)]; final > prevBest {
		t.Errorf("final best %f worsened from %f", final, prevBest)
	}
}

func TestEvolveReportsBest(t *testing.T) {
	s := NewSearch(Config{
		PopulationSize: 20,
		Elitism:        3,
		Domain:         [2]float64{-5, 5},
	}, 2, sphere, rand.New(rand.NewSource(7)))

	best, score, err := s.Evolve(5)
	if err != nil {
		t.Fatal(err)
	}
	if actual, _ := sphere(best); math.Abs(actual-score) > 1e-12 {
		t.Errorf("reported score %f does not match the individual (%f)", score, actual)
	}
	for _, ind := range s.Population {
		if other, _ := sphere(ind); other < score {
			t.Errorf("individual with score %f beats the reported best %f",
				other, score)
		}
	}
}
