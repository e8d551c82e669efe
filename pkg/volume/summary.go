package volume

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"tissuesynth/pkg/tissue"
)

// Summary describes the value distribution of one volume. Statistics are
// taken over the finite voxels only.
type Summary struct {
	Field     tissue.Property
	Min, Max  float64
	Mean      float64
	StdDev    float64
	Undefined int // NaN or infinite voxels
}

// Summarize computes a Summary for every volume of the set in schema order.
func Summarize(set *VolumeSet) []Summary {
	fields := set.Fields()
	out := make([]Summary, 0, len(fields))
	for _, prop := range fields {
		data := set.Volumes[prop].Data
		finite := make([]float64, 0, len(data))
		for _, v := range data {
			if !math.IsNaN(v) && !math.IsInf(v, 0) {
				finite = append(finite, v)
			}
		}

		s := Summary{Field: prop, Undefined: len(data) - len(finite)}
		if len(finite) == 0 {
			s.Min, s.Max, s.Mean, s.StdDev = math.NaN(), math.NaN(), math.NaN(), math.NaN()
		} else {
			s.Min, s.Max = floats.Min(finite), floats.Max(finite)
			s.Mean, s.StdDev = stat.MeanStdDev(finite, nil)
			if len(finite) == 1 {
				s.StdDev = 0
			}
		}
		out = append(out, s)
	}
	return out
}
