package volume

import (
	"fmt"
	"math"
	"sort"
	"strconv"

	"tissuesynth/internal/models"
	"tissuesynth/pkg/tissue"
)

// FromSegmentation fills every voxel with the properties of the composition
// mapped to its label. The label volume must match geom along every axis and
// every label present must be mapped.
func FromSegmentation(geom models.VolumeGeometry, labels *models.Volume, mapping map[int]*tissue.Composition,
	wavelengthNM float64, opts Options) (*VolumeSet, error) {
	opts = opts.withDefaults()
	if labels == nil {
		return nil, &models.ConfigurationError{Component: "segmentation", Reason: "no label volume"}
	}

	want, got := geom.Dims(), labels.Dims()
	for axis := range want {
		if want[axis] != got[axis] {
			return nil, &models.DimensionMismatchError{
				Axis:         models.AxisName(axis),
				Volume:       want[axis],
				Segmentation: got[axis],
			}
		}
	}
	if len(labels.Data) != geom.Len() {
		return nil, &models.ConfigurationError{
			Component: "segmentation",
			Reason:    fmt.Sprintf("label volume holds %d values, expected %d", len(labels.Data), geom.Len()),
		}
	}

	// resolve each distinct label once
	resolved := make(map[int]tissue.Properties)
	index := make([]int, len(labels.Data))
	for i, value := range labels.Data {
		label := int(math.Round(value))
		if math.IsNaN(value) || float64(label) != value {
			return nil, &models.ConfigurationError{
				Component: "segmentation",
				Reason:    fmt.Sprintf("label %g at flat index %d is not an integer", value, i),
			}
		}
		index[i] = label
		if _, ok := resolved[label]; ok {
			continue
		}

		comp, ok := mapping[label]
		if !ok || comp == nil {
			return nil, &models.LookupError{Kind: "segmentation label", Key: strconv.Itoa(label), Valid: mappedLabels(mapping)}
		}
		props, err := comp.PropertiesAt(opts.Library, wavelengthNM)
		if err != nil {
			return nil, fmt.Errorf("segmentation label %d: %w", label, err)
		}
		resolved[label] = props
	}

	set := &VolumeSet{WavelengthNM: wavelengthNM, Volumes: make(map[tissue.Property]*models.Volume)}
	for _, prop := range tissue.AllProperties {
		vol := models.NewVolume(geom)
		for i, label := range index {
			vol.Data[i] = resolved[label].Get(prop)
		}
		set.Volumes[prop] = vol
	}
	opts.Logger.Debug("created volumes from segmentation", "labels", len(resolved), "wavelength_nm", wavelengthNM)

	if !opts.IgnoreQA {
		if err := CheckVolumes(set, geom); err != nil {
			return nil, fmt.Errorf("segmentation volumes failed the sanity check: %w", err)
		}
	}
	return set, nil
}

func mappedLabels(mapping map[int]*tissue.Composition) []string {
	keys := make([]int, 0, len(mapping))
	for k, comp := range mapping {
		if comp != nil {
			keys = append(keys, k)
		}
	}
	sort.Ints(keys)
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = strconv.Itoa(k)
	}
	return out
}
