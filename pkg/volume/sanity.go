package volume

import (
	"errors"
	"fmt"
	"math"

	"tissuesynth/internal/models"
	"tissuesynth/pkg/tissue"
)

// CheckVolumes verifies that every volume of the set has the shape of geom
// and that every field except oxygenation is finite everywhere. All
// violations are reported together.
func CheckVolumes(set *VolumeSet, geom models.VolumeGeometry) error {
	if set == nil || len(set.Volumes) == 0 {
		return errors.New("no volumes to check")
	}

	var errs []error
	for _, prop := range set.Fields() {
		vol := set.Volumes[prop]
		if vol.Dims() != geom.Dims() || len(vol.Data) != geom.Len() {
			errs = append(errs, fmt.Errorf("volume %q has shape %v (%d values), expected %v",
				prop, vol.Dims(), len(vol.Data), geom.Dims()))
			continue
		}
		if prop.MayBeUndefined() {
			continue
		}
		if err := checkFinite(prop, vol.Data); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func checkFinite(prop tissue.Property, data []float64) error {
	count, first := 0, -1
	for i, v := range data {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			if first < 0 {
				first = i
			}
			count++
		}
	}
	if count == 0 {
		return nil
	}
	return &models.NumericalValidityError{Field: prop.String(), Count: count, FirstIndex: first}
}
