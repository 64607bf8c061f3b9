// Package evolve implements a small genetic algorithm over real
// vectors, used to search for hidden-state override values that steer
// a generative model toward a target sentiment.
package evolve

import (
	"errors"
	"log"
	"math/rand"
	"runtime"
	"sort"
	"sync"
)

// An Individual is a candidate override vector, one gene per
// controlled dimension.
type Individual []float64

// A Fitness scores an Individual. Lower is better.
type Fitness func(ind Individual) (float64, error)

// A Config holds the search hyperparameters. Zero fields take the
// defaults documented on each field.
type Config struct {
	// PopulationSize is the number of individuals. Default 100.
	PopulationSize int

	// CrossRate is the per-individual crossover probability.
	// Default 0.95.
	CrossRate float64

	// MutRate is the per-gene mutation probability. Default 0.1.
	MutRate float64

	// Elitism is the number of best individuals copied into the next
	// generation untouched. Default 3.
	Elitism int

	// Domain is the inclusive gene range. Default [-10, 10].
	Domain [2]float64

	// RawRoulette weights selection by raw scores, which favors the
	// worst individuals since lower scores are better. The default
	// weights by inverse score instead.
	RawRoulette bool

	// Workers caps concurrent fitness evaluations.
	// Default runtime.GOMAXPROCS(0).
	Workers int
}

func (c *Config) fillDefaults() {
	if c.PopulationSize == 0 {
		c.PopulationSize = 100
	}
	if c.CrossRate == 0 {
		c.CrossRate = 0.95
	}
	if c.MutRate == 0 {
		c.MutRate = 0.1
	}
	if c.Elitism == 0 {
		c.Elitism = 3
	}
	if c.Domain == [2]float64{} {
		c.Domain = [2]float64{-10, 10}
	}
	if c.Workers == 0 {
		c.Workers = runtime.GOMAXPROCS(0)
	}
}

// A Search is a population undergoing selection.
type Search struct {
	Population []Individual

	cfg     Config
	fitness Fitness
	rng     *rand.Rand
}

// NewSearch creates a search with a uniformly random population of
// dim-gene individuals. A nil rng gets a fresh source.
func NewSearch(cfg Config, dim int, fitness Fitness, rng *rand.Rand) *Search {
	cfg.fillDefaults()
	if rng == nil {
		rng = rand.New(rand.NewSource(rand.Int63()))
	}
	s := &Search{cfg: cfg, fitness: fitness, rng: rng}
	for i := 0; i < cfg.PopulationSize; i++ {
		ind := make(Individual, dim)
		for j := range ind {
			ind[j] = s.randGene()
		}
		s.Population = append(s.Population, ind)
	}
	return s
}

// Evaluate scores the whole population concurrently and returns the
// scores in population order.
func (s *Search) Evaluate() ([]float64, error) {
	scores := make([]float64, len(s.Population))
	idxChan := make(chan int, len(s.Population))
	for i := range s.Population {
		idxChan <- i
	}
	close(idxChan)

	errChan := make(chan error, s.cfg.Workers)
	var wg sync.WaitGroup
	for i := 0; i < s.cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range idxChan {
				score, err := s.fitness(s.Population[idx])
				if err != nil {
					errChan <- err
					return
				}
				scores[idx] = score
			}
		}()
	}
	wg.Wait()
	close(errChan)
	if err := <-errChan; err != nil {
		return nil, err
	}
	return scores, nil
}

// Select builds the next population: the Elitism best individuals
// verbatim in score order, then roulette-wheel draws for the rest.
func (s *Search) Select(scores []float64) []Individual {
	order := make([]int, len(s.Population))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return scores[order[a]] < scores[order[b]]
	})

	weights := make([]float64, len(order))
	var total float64
	for i, idx := range order {
		if s.cfg.RawRoulette {
			weights[i] = scores[idx]
		} else {
			weights[i] = 1 / (scores[idx] + 1e-8)
		}
		total += weights[i]
	}

	next := make([]Individual, len(s.Population))
	for i := range next {
		if i < s.cfg.Elitism {
			next[i] = clone(s.Population[order[i]])
			continue
		}
		next[i] = clone(s.Population[order[s.spin(weights, total)]])
	}
	return next
}

// Cross averages each non-elite individual with its successor, with
// probability CrossRate.
func (s *Search) Cross(pop []Individual) {
	for i := s.cfg.Elitism; i < len(pop)-1; i++ {
		if s.rng.Float64() >= s.cfg.CrossRate {
			continue
		}
		child := make(Individual, len(pop[i]))
		for j := range child {
			child[j] = (pop[i][j] + pop[i+1][j]) / 2
		}
		pop[i] = child
	}
}

// Mutate redraws each non-elite gene uniformly from the domain, with
// probability MutRate.
func (s *Search) Mutate(pop []Individual) {
	for i := s.cfg.Elitism; i < len(pop); i++ {
		for j := range pop[i] {
			if s.rng.Float64() < s.cfg.MutRate {
				pop[i][j] = s.randGene()
			}
		}
	}
}

// Evolve runs the given number of generations and returns the best
// individual of the final population with its score.
func (s *Search) Evolve(generations int) (Individual, float64, error) {
	if len(s.Population) == 0 {
		return nil, 0, errors.New("evolve: empty population")
	}
	for g := 0; g < generations; g++ {
		scores, err := s.Evaluate()
		if err != nil {
			return nil, 0, err
		}
		best := argmin(scores)
		log.Printf("generation %d: best=%f mean=%f", g, scores[best], mean(scores))

		next := s.Select(scores)
		s.Cross(next)
		s.Mutate(next)
		s.Population = next
	}

	scores, err := s.Evaluate()
	if err != nil {
		return nil, 0, err
	}
	best := argmin(scores)
	return clone(s.Population[best]), scores[best], nil
}

// spin draws an index into the weights by roulette wheel. A
// degenerate wheel falls back to a uniform draw.
func (s *Search) spin(weights []float64, total float64) int {
	if total <= 0 {
		return s.rng.Intn(len(weights))
	}
	pick := s.rng.Float64() * total
	var current float64
	for i, w := range weights {
		current += w
		if current > pick {
			return i
		}
	}
	return len(weights) - 1
}

func (s *Search) randGene() float64 {
	lo, hi := s.cfg.Domain[0], s.cfg.Domain[1]
	return lo + s.rng.Float64()*(hi-lo)
}

func clone(ind Individual) Individual {
	return append(Individual{}, ind...)
}

func argmin(scores []float64) int {
	best := 0
	for i, s := range scores {
		if s < scores[best] {
			best = i
		}
	}
	return best
}

func mean(scores []float64) float64 {
	var total float64
	for _, s := range scores {
		total += s
	}
	return total / float64(len(scores))
}
