package sentiment

import (
	"container/heap"
	"fmt"
	"math"
	"sort"
)

// TopK returns the indices of the k most salient feature dimensions,
// ordered from most to least salient. Salience of a dimension is the
// summed absolute weight of its classifier column across classes.
// Ties break toward the lower index.
//
// k must be between 1 and the number of feature dimensions.
func (c *Classifier) TopK(k int) ([]int, error) {
	if c == nil || c.FC == nil {
		return nil, ErrNotFitted
	}
	n := c.FC.InCount
	if k < 1 || k > n {
		return nil, fmt.Errorf("top-k: k must be in [1, %d], got %d", n, k)
	}
	sal := c.salience()
	if k == 1 {
		best := 0
		for i, s := range sal {
			if s > sal[best] {
				best = i
			}
		}
		return []int{best}, nil
	}
	if float64(k) < math.Log2(float64(n)) {
		return topKHeap(sal, k), nil
	}
	return topKSort(sal, k), nil
}

func (c *Classifier) salience() []float64 {
	in := c.FC.InCount
	weights := floats(c.FC.Weights.Vector)
	sal := make([]float64, in)
	for i, w := range weights {
		sal[i%in] += math.Abs(w)
	}
	return sal
}

// topKSort ranks every dimension and keeps the first k.
func topKSort(sal []float64, k int) []int {
	idx := make([]int, len(sal))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		if sal[idx[a]] == sal[idx[b]] {
			return idx[a] < idx[b]
		}
		return sal[idx[a]] > sal[idx[b]]
	})
	return idx[:k]
}

// topKHeap keeps the k best dimensions in a min-heap while scanning
// once, for small k. The heap's root is always the weakest keeper.
func topKHeap(sal []float64, k int) []int {
	h := &dimHeap{sal: sal}
	for i := range sal {
		if h.Len() < k {
			heap.Push(h, i)
		} else if h.weaker(h.idx[0], i) {
			h.idx[0] = i
			heap.Fix(h, 0)
		}
	}
	res := make([]int, k)
	for i := k - 1; i >= 0; i-- {
		res[i] = heap.Pop(h).(int)
	}
	return res
}

type dimHeap struct {
	idx []int
	sal []float64
}

// weaker reports whether dimension a ranks below dimension b.
func (d *dimHeap) weaker(a, b int) bool {
	if d.sal[a] == d.sal[b] {
		return a > b
	}
	return d.sal[a] < d.sal[b]
}

func (d *dimHeap) Len() int           { return len(d.idx) }
func (d *dimHeap) Less(i, j int) bool { return d.weaker(d.idx[i], d.idx[j]) }
func (d *dimHeap) Swap(i, j int)      { d.idx[i], d.idx[j] = d.idx[j], d.idx[i] }

func (d *dimHeap) Push(x interface{}) {
	d.idx = append(d.idx, x.(int))
}

func (d *dimHeap) Pop() interface{} {
	last := d.idx[len(d.idx)-1]
	d.idx = d.idx[:len(d.idx)-1]
	return last
}
