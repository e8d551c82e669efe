package volume

import (
	"errors"
	"math"
	"strings"
	"testing"

	"tissuesynth/internal/models"
	"tissuesynth/pkg/tissue"
)

func labelVolume(t *testing.T, x, y, z int, fill func(x, y, z int) float64) *models.Volume {
	t.Helper()
	vol := models.NewVolume(models.VolumeGeometry{SpacingMM: 1, NX: x, NY: y, NZ: z})
	for k := 0; k < z; k++ {
		for j := 0; j < y; j++ {
			for i := 0; i < x; i++ {
				vol.Set(i, j, k, fill(i, j, k))
			}
		}
	}
	return vol
}

func TestFromSegmentation(t *testing.T) {
	must := mustComposition(t)
	geom := models.VolumeGeometry{SpacingMM: 1, NX: 4, NY: 3, NZ: 2}
	mapping := map[int]*tissue.Composition{
		1: must(tissue.Muscle(tissue.DefaultMuscleOxygenation, tissue.DefaultMuscleBloodFraction)),
		3: must(tissue.Blood(1)),
	}
	labels := labelVolume(t, 4, 3, 2, func(x, _, _ int) float64 {
		if x < 2 {
			return 1
		}
		return 3
	})

	set, err := FromSegmentation(geom, labels, mapping, 800, Options{})
	if err != nil {
		t.Fatalf("Failed to create volumes: %v", err)
	}
	if len(set.Volumes) != len(tissue.AllProperties) {
		t.Errorf("Expected %d fields, got %d", len(tissue.AllProperties), len(set.Volumes))
	}

	blood, err := mapping[3].PropertiesAt(nil, 800)
	if err != nil {
		t.Fatalf("Failed to resolve blood: %v", err)
	}
	if got := set.Get(tissue.Absorption).At(3, 2, 1); got != blood.Absorption {
		t.Errorf("Expected blood absorption %g, got %g", blood.Absorption, got)
	}
	if got := set.Get(tissue.Segmentation).At(0, 0, 0); got != float64(tissue.MuscleClass) {
		t.Errorf("Expected muscle label, got %g", got)
	}
	if got := set.Get(tissue.Oxygenation).At(2, 0, 0); math.Abs(got-1) > 1e-12 {
		t.Errorf("Expected oxygenation 1 in blood, got %g", got)
	}
}

func TestSegmentationDimensionMismatch(t *testing.T) {
	must := mustComposition(t)
	geom := models.VolumeGeometry{SpacingMM: 1, NX: 4, NY: 3, NZ: 2}
	mapping := map[int]*tissue.Composition{0: must(tissue.Water())}
	zero := func(_, _, _ int) float64 { return 0 }

	tests := []struct {
		name    string
		x, y, z int
		axis    string
	}{
		{"x", 5, 3, 2, "x"},
		{"y", 4, 2, 2, "y"},
		{"z", 4, 3, 3, "z"},
		{"x before z", 3, 3, 1, "x"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := FromSegmentation(geom, labelVolume(t, tt.x, tt.y, tt.z, zero), mapping, 800, Options{})
			var dimErr *models.DimensionMismatchError
			if !errors.As(err, &dimErr) {
				t.Fatalf("Expected DimensionMismatchError, got %v", err)
			}
			if dimErr.Axis != tt.axis {
				t.Errorf("Expected axis %s, got %s", tt.axis, dimErr.Axis)
			}
			if !strings.HasPrefix(err.Error(), tt.axis+"_dim") {
				t.Errorf("Expected the message to name %s_dim, got %q", tt.axis, err.Error())
			}
		})
	}
}

func TestSegmentationMissingLabel(t *testing.T) {
	must := mustComposition(t)
	geom := models.VolumeGeometry{SpacingMM: 1, NX: 2, NY: 2, NZ: 2}
	mapping := map[int]*tissue.Composition{
		8: must(tissue.Water()),
		1: must(tissue.Muscle(tissue.DefaultMuscleOxygenation, tissue.DefaultMuscleBloodFraction)),
	}
	labels := labelVolume(t, 2, 2, 2, func(x, y, z int) float64 {
		if x == 1 && y == 1 && z == 1 {
			return 6
		}
		return 8
	})

	_, err := FromSegmentation(geom, labels, mapping, 800, Options{})
	var lookupErr *models.LookupError
	if !errors.As(err, &lookupErr) {
		t.Fatalf("Expected LookupError, got %v", err)
	}
	if lookupErr.Key != "6" {
		t.Errorf("Expected missing label 6, got %q", lookupErr.Key)
	}
	if strings.Join(lookupErr.Valid, ",") != "1,8" {
		t.Errorf("Expected mapped labels [1 8], got %v", lookupErr.Valid)
	}

	labels.Set(0, 0, 0, 0.5)
	var cfgErr *models.ConfigurationError
	if _, err := FromSegmentation(geom, labels, mapping, 800, Options{}); !errors.As(err, &cfgErr) {
		t.Errorf("Expected ConfigurationError for a fractional label, got %v", err)
	}
}
