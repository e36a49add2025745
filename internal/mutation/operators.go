package mutation

import (
	"math"

	"progevo/internal/model"
	"progevo/internal/random"
)

const floatSigma = 0.1

// MutateValue applies the default perturbation in place. Integer lanes move
// by round(N(0,1)*v) and saturate at the lane width; float lanes move by
// N(0, 0.1). Non-numeric values are left unchanged.
func MutateValue(r *random.Rand, v *model.Value) {
	switch {
	case v.Kind.IsInt():
		for i := range v.Ints {
			current := float64(v.Ints[i])
			delta := math.Round(r.Normal(0, 1) * current)
			v.Ints[i] = model.SaturateInt(v.Kind, current+delta)
		}
	case v.Kind.IsFloat():
		for i := range v.Floats {
			v.Floats[i] = model.RoundFloat(v.Kind, v.Floats[i]+r.Normal(0, floatSigma))
		}
	}
}
