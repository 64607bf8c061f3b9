package sentiment

import (
	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anynet"
	"github.com/unixpickle/anyvec"
)

// L1Reg wraps a Cost and adds the scaled L1 norm of some parameters
// to it. An L1 penalty drives most weights to exactly zero, so the
// surviving columns point at the dimensions that matter.
type L1Reg struct {
	Penalty float64
	Params  []*anydiff.Var
	Wrapped anynet.Cost
}

// Cost computes the wrapped cost and adds Penalty times the L1 norm
// of the parameters to every component.
func (l *L1Reg) Cost(desired, output anydiff.Res, n int) anydiff.Res {
	wrapped := l.Wrapped.Cost(desired, output, n)
	if l.Penalty == 0 || len(l.Params) == 0 {
		return wrapped
	}
	return anydiff.AddRepeated(wrapped, l.penalty())
}

func (l *L1Reg) penalty() anydiff.Res {
	c := l.Params[0].Vector.Creator()
	var total float64
	vars := anydiff.VarSet{}
	for _, p := range l.Params {
		abs := p.Vector.Copy()
		abs.Mul(signOf(p.Vector))
		total += toFloat(anyvec.Sum(abs))
		vars.Add(p)
	}
	return &l1Res{
		Scale:  l.Penalty,
		Params: l.Params,
		OutVec: c.MakeVectorData(c.MakeNumericList([]float64{total * l.Penalty})),
		V:      vars,
	}
}

// l1Res is the L1 norm of a parameter set as a scalar result. The
// gradient of |w| is sign(w), taken as 0 at w=0.
type l1Res struct {
	Scale  float64
	Params []*anydiff.Var
	OutVec anyvec.Vector
	V      anydiff.VarSet
}

func (l *l1Res) Output() anyvec.Vector {
	return l.OutVec
}

func (l *l1Res) Vars() anydiff.VarSet {
	return l.V
}

func (l *l1Res) Propagate(u anyvec.Vector, g anydiff.Grad) {
	scale := toFloat(anyvec.Sum(u)) * l.Scale
	for _, p := range l.Params {
		if dest, ok := g[p]; ok {
			sign := signOf(p.Vector)
			sign.Scale(sign.Creator().MakeNumeric(scale))
			dest.Add(sign)
		}
	}
}

func signOf(v anyvec.Vector) anyvec.Vector {
	zero := v.Creator().MakeNumeric(0)
	pos := v.Copy()
	anyvec.GreaterThan(pos, zero)
	neg := v.Copy()
	anyvec.LessThan(neg, zero)
	pos.Sub(neg)
	return pos
}

func floats(v anyvec.Vector) []float64 {
	switch data := v.Data().(type) {
	case []float32:
		res := make([]float64, len(data))
		for i, x := range data {
			res[i] = float64(x)
		}
		return res
	case []float64:
		return data
	}
	panic("unsupported numeric type")
}

func toFloat(n anyvec.Numeric) float64 {
	switch n := n.(type) {
	case float32:
		return float64(n)
	case float64:
		return n
	}
	panic("unsupported numeric type")
}
