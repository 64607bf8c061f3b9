package neuron

import (
	"errors"
	"math"

	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anyvec"
	"github.com/unixpickle/anyvec/anyvecsave"
	"github.com/unixpickle/serializer"
)

const (
	adamDecayRate1 = 0.7
	adamDecayRate2 = 0.999
	adamDamping    = 1e-8
)

// adam implements the adaptive moments gradient transformation with a
// persistable state, so a resumed training run continues with the
// same optimizer moments it was interrupted with. Moment vectors are
// marshaled in the network's parameter order.
type adam struct {
	firstMoment  anydiff.Grad
	secondMoment anydiff.Grad
	iteration    float64
}

func (a *adam) Transform(realGrad anydiff.Grad) anydiff.Grad {
	a.updateMoments(realGrad)

	a.iteration++
	scalingFactor := math.Sqrt(1-math.Pow(adamDecayRate2, a.iteration)) /
		(1 - math.Pow(adamDecayRate1, a.iteration))
	for variable, vec := range realGrad {
		firstVec := a.firstMoment[variable]
		secondVec := a.secondMoment[variable]

		vec.Set(firstVec)
		vec.Scale(vec.Creator().MakeNumeric(scalingFactor))

		divisor := secondVec.Copy()
		divisor.AddScalar(divisor.Creator().MakeNumeric(adamDamping))
		anyvec.Pow(divisor, divisor.Creator().MakeNumeric(0.5))
		vec.Div(divisor)
	}

	return realGrad
}

func (a *adam) updateMoments(grad anydiff.Grad) {
	if a.firstMoment == nil {
		a.firstMoment = copyGrad(grad)
		scaleGrad(a.firstMoment, 1-adamDecayRate1)
	} else {
		scaleGrad(a.firstMoment, adamDecayRate1)
		for variable, vec := range grad {
			v := vec.Copy()
			v.Scale(vec.Creator().MakeNumeric(1 - adamDecayRate1))
			a.firstMoment[variable].Add(v)
		}
	}

	if a.secondMoment == nil {
		a.secondMoment = copyGrad(grad)
		for _, v := range a.secondMoment {
			anyvec.Pow(v, v.Creator().MakeNumeric(2))
		}
		scaleGrad(a.secondMoment, 1-adamDecayRate2)
	} else {
		scaleGrad(a.secondMoment, adamDecayRate2)
		for variable, vec := range grad {
			v := vec.Copy()
			anyvec.Pow(v, v.Creator().MakeNumeric(2))
			v.Scale(v.Creator().MakeNumeric(1 - adamDecayRate2))
			a.secondMoment[variable].Add(v)
		}
	}
}

// marshal snapshots the optimizer state relative to the given
// parameter order. A fresh optimizer marshals to an empty snapshot.
func (a *adam) marshal(vars []*anydiff.Var) ([]byte, error) {
	if a.firstMoment == nil {
		return []byte{}, nil
	}
	objs := []interface{}{serializer.Float64(a.iteration)}
	for _, moment := range []anydiff.Grad{a.firstMoment, a.secondMoment} {
		if len(moment) != len(vars) {
			return nil, errors.New("marshal optimizer: variable list mismatch")
		}
		for _, v := range vars {
			vec, ok := moment[v]
			if !ok {
				return nil, errors.New("marshal optimizer: variable list mismatch")
			}
			objs = append(objs, &anyvecsave.S{Vector: vec})
		}
	}
	return serializer.SerializeAny(objs...)
}

// unmarshal restores a snapshot produced by marshal with the same
// parameter order.
func (a *adam) unmarshal(vars []*anydiff.Var, data []byte) error {
	if len(data) == 0 {
		a.firstMoment = nil
		a.secondMoment = nil
		a.iteration = 0
		return nil
	}
	var iteration serializer.Float64
	dests := []interface{}{&iteration}
	for i := 0; i < 2*len(vars); i++ {
		dests = append(dests, new(*anyvecsave.S))
	}
	if err := serializer.DeserializeAny(data, dests...); err != nil {
		return err
	}
	moments := []anydiff.Grad{{}, {}}
	for mi, moment := range moments {
		for vi, v := range vars {
			vec := (*dests[1+mi*len(vars)+vi].(**anyvecsave.S)).Vector
			if vec.Len() != v.Vector.Len() {
				return errors.New("unmarshal optimizer: bad vector length")
			}
			moment[v] = vec
		}
	}
	a.iteration = float64(iteration)
	a.firstMoment = moments[0]
	a.secondMoment = moments[1]
	return nil
}

func copyGrad(g anydiff.Grad) anydiff.Grad {
	res := anydiff.Grad{}
	for v, vec := range g {
		res[v] = vec.Copy()
	}
	return res
}

func scaleGrad(g anydiff.Grad, s float64) {
	for _, vec := range g {
		vec.Scale(vec.Creator().MakeNumeric(s))
	}
}
