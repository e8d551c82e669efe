package volume

import (
	"errors"
	"math"
	"testing"

	"gonum.org/v1/gonum/spatial/r3"

	"tissuesynth/internal/models"
	"tissuesynth/pkg/structure"
	"tissuesynth/pkg/tissue"
)

func testGeometry(t *testing.T) models.VolumeGeometry {
	t.Helper()
	geom, err := models.NewVolumeGeometry(1, 10, 10, 10)
	if err != nil {
		t.Fatalf("Failed to create geometry: %v", err)
	}
	return geom
}

func mustComposition(t *testing.T) func(*tissue.Composition, error) *tissue.Composition {
	return func(c *tissue.Composition, err error) *tissue.Composition {
		t.Helper()
		if err != nil {
			t.Fatalf("Failed to create composition: %v", err)
		}
		return c
	}
}

func sphere(t *testing.T, name string, priority float64, center r3.Vec, comp *tissue.Composition, partial bool) *structure.Structure {
	t.Helper()
	st, err := structure.New(structure.Params{Name: name, Priority: priority, PartialVolume: partial},
		structure.Sphere{Center: center, Radius: 3}, comp)
	if err != nil {
		t.Fatalf("Failed to create structure %s: %v", name, err)
	}
	return st
}

func create(t *testing.T, structures []*structure.Structure, background *tissue.Composition, wavelength float64) *VolumeSet {
	t.Helper()
	set, err := CreateVolumes(testGeometry(t), structures, background, nil, wavelength, Options{NumCores: 2})
	if err != nil {
		t.Fatalf("Failed to create volumes: %v", err)
	}
	return set
}

func TestHigherPriorityWins(t *testing.T) {
	must := mustComposition(t)
	fat := must(tissue.Fat())
	blood := must(tissue.Blood(1))
	water := must(tissue.Water())
	geom := testGeometry(t)

	high := sphere(t, "fat", 8, r3.Vec{X: 5, Y: 5, Z: 5}, fat, false)
	low := sphere(t, "blood", 3, r3.Vec{X: 6, Y: 5, Z: 5}, blood, false)

	orders := map[string][]*structure.Structure{
		"HighFirst": {high, low},
		"LowFirst":  {low, high},
	}
	for name, structures := range orders {
		t.Run(name, func(t *testing.T) {
			set := create(t, structures, water, 800)
			seg := set.Get(tissue.Segmentation)

			// inside both spheres
			if got := seg.At(5, 5, 5); got != float64(tissue.FatClass) {
				t.Errorf("Expected overlap labelled %v, got %g", tissue.FatClass, got)
			}
			// only inside the blood sphere
			if got := seg.At(8, 5, 5); got != float64(tissue.BloodClass) {
				t.Errorf("Expected blood label outside the fat sphere, got %g", got)
			}
			if got := seg.At(0, 0, 0); got != float64(tissue.WaterClass) {
				t.Errorf("Expected background label in the corner, got %g", got)
			}

			wantDensity := fat.WavelengthIndependent().Density
			if got := set.Get(tissue.Density).Data[geom.Index(5, 5, 5)]; math.Abs(got-wantDensity) > 1e-9 {
				t.Errorf("Expected density %g in the overlap, got %g", wantDensity, got)
			}
		})
	}
}

func TestEqualPriorityKeepsDeclarationOrder(t *testing.T) {
	must := mustComposition(t)
	fat := must(tissue.Fat())
	blood := must(tissue.Blood(1))
	water := must(tissue.Water())

	first := sphere(t, "fat", 5, r3.Vec{X: 5, Y: 5, Z: 5}, fat, false)
	second := sphere(t, "blood", 5, r3.Vec{X: 6, Y: 5, Z: 5}, blood, false)

	set := create(t, []*structure.Structure{first, second}, water, 800)
	if got := set.Get(tissue.Segmentation).At(5, 5, 5); got != float64(tissue.FatClass) {
		t.Errorf("Expected the first declared structure to win, got label %g", got)
	}

	set = create(t, []*structure.Structure{second, first}, water, 800)
	if got := set.Get(tissue.Segmentation).At(5, 5, 5); got != float64(tissue.BloodClass) {
		t.Errorf("Expected the first declared structure to win, got label %g", got)
	}
}

func TestPartialVolumeMixingIsConvex(t *testing.T) {
	must := mustComposition(t)
	comps := []*tissue.Composition{
		must(tissue.Fat()),
		must(tissue.Blood(0.7)),
		must(tissue.Water()),
	}
	structures := []*structure.Structure{
		sphere(t, "fat", 2, r3.Vec{X: 4.2, Y: 5, Z: 5.3}, comps[0], true),
		sphere(t, "blood", 1, r3.Vec{X: 6.1, Y: 4.7, Z: 5}, comps[1], true),
	}

	c, err := NewCreator(testGeometry(t), structures, comps[2], nil, Options{NumCores: 3})
	if err != nil {
		t.Fatalf("Failed to create creator: %v", err)
	}
	plan, err := c.Plan()
	if err != nil {
		t.Fatalf("Failed to plan: %v", err)
	}

	var total float64
	for _, share := range plan.Coverage() {
		total += share
	}
	if math.Abs(total-1) > 1e-9 {
		t.Errorf("Expected claims to cover the volume exactly once, got %g", total)
	}

	set, err := plan.Volumes(750)
	if err != nil {
		t.Fatalf("Failed to create volumes: %v", err)
	}

	for _, prop := range []tissue.Property{tissue.Density, tissue.SpeedOfSound, tissue.Absorption, tissue.Scattering, tissue.Anisotropy} {
		lo, hi := math.Inf(1), math.Inf(-1)
		for _, comp := range comps {
			p, err := comp.PropertiesAt(nil, 750)
			if err != nil {
				t.Fatalf("Failed to resolve %s: %v", comp.Name(), err)
			}
			lo, hi = math.Min(lo, p.Get(prop)), math.Max(hi, p.Get(prop))
		}
		for i, v := range set.Get(prop).Data {
			if v < lo-1e-9 || v > hi+1e-9 {
				t.Fatalf("%s at voxel %d is %g, outside [%g, %g]", prop, i, v, lo, hi)
			}
		}
	}
}

func TestOxygenationIsWeightedByBlood(t *testing.T) {
	must := mustComposition(t)
	blood := must(tissue.Blood(0.6))
	muscle := must(tissue.Muscle(0.9, 0.05))
	water := must(tissue.Water())

	set := create(t, []*structure.Structure{
		sphere(t, "blood", 2, r3.Vec{X: 5, Y: 5, Z: 5}, blood, false),
		sphere(t, "muscle", 1, r3.Vec{X: 5, Y: 5, Z: 5}, muscle, false),
	}, water, 800)

	oxy := set.Get(tissue.Oxygenation)
	if got := oxy.At(5, 5, 5); math.Abs(got-0.6) > 1e-9 {
		t.Errorf("Expected oxygenation 0.6 inside the vessel, got %g", got)
	}
	if got := oxy.At(0, 0, 0); !math.IsNaN(got) {
		t.Errorf("Expected undefined oxygenation without blood, got %g", got)
	}
	if err := CheckVolumes(set, testGeometry(t)); err != nil {
		t.Errorf("Expected NaN oxygenation to pass the sanity check, got %v", err)
	}
}

func TestPlanReusesIndependentFields(t *testing.T) {
	must := mustComposition(t)
	c, err := NewCreator(testGeometry(t),
		[]*structure.Structure{sphere(t, "blood", 1, r3.Vec{X: 5, Y: 5, Z: 5}, must(tissue.Blood(1)), true)},
		must(tissue.Water()), nil, Options{})
	if err != nil {
		t.Fatalf("Failed to create creator: %v", err)
	}
	plan, err := c.Plan()
	if err != nil {
		t.Fatalf("Failed to plan: %v", err)
	}

	a, err := plan.Volumes(700)
	if err != nil {
		t.Fatalf("Failed to create volumes at 700 nm: %v", err)
	}
	b, err := plan.Volumes(900)
	if err != nil {
		t.Fatalf("Failed to create volumes at 900 nm: %v", err)
	}

	if len(a.Volumes) != len(tissue.AllProperties) {
		t.Errorf("Expected %d fields, got %d", len(tissue.AllProperties), len(a.Volumes))
	}
	density := a.Get(tissue.Density).Data
	for i, v := range b.Get(tissue.Density).Data {
		if v != density[i] {
			t.Fatalf("Density differs between wavelengths at voxel %d", i)
		}
	}
	if a.Get(tissue.Absorption).At(5, 5, 5) == b.Get(tissue.Absorption).At(5, 5, 5) {
		t.Errorf("Expected blood absorption to differ between 700 and 900 nm")
	}

	// volumes handed out must not alias the plan
	a.Get(tissue.Density).Fill(-1)
	if plan.Independent().Get(tissue.Density).At(0, 0, 0) == -1 {
		t.Errorf("Expected returned volumes to be copies")
	}

	b.DropWavelengthIndependent()
	dependent, err := plan.WavelengthDependent(900)
	if err != nil {
		t.Fatalf("Failed to resolve wavelength-dependent fields: %v", err)
	}
	if len(b.Volumes) != len(dependent.Volumes) {
		t.Fatalf("Expected %d fields after dropping, got %v", len(dependent.Volumes), b.Fields())
	}
	for _, prop := range b.Fields() {
		if prop.WavelengthIndependent() {
			t.Errorf("Expected %s to be dropped", prop)
		}
		want := dependent.Get(prop).Data
		for i, v := range b.Get(prop).Data {
			if v != want[i] {
				t.Fatalf("%s differs from the wavelength-dependent set at voxel %d", prop, i)
			}
		}
	}
}

func TestCreatorRejectsInvalidInput(t *testing.T) {
	must := mustComposition(t)
	water := must(tissue.Water())
	geom := testGeometry(t)

	var cfgErr *models.ConfigurationError
	if _, err := NewCreator(geom, nil, nil, nil, Options{}); !errors.As(err, &cfgErr) {
		t.Errorf("Expected ConfigurationError without background, got %v", err)
	}
	if _, err := NewCreator(geom, []*structure.Structure{nil}, water, nil, Options{}); !errors.As(err, &cfgErr) {
		t.Errorf("Expected ConfigurationError for a nil structure, got %v", err)
	}

	// background only
	set, err := CreateVolumes(geom, nil, water, nil, 800, Options{})
	if err != nil {
		t.Fatalf("Failed to create background-only volumes: %v", err)
	}
	for _, v := range set.Get(tissue.Segmentation).Data {
		if v != float64(tissue.WaterClass) {
			t.Fatalf("Expected every voxel to be background, got label %g", v)
		}
	}
}

func TestWavelengthOutsideSpectrum(t *testing.T) {
	must := mustComposition(t)
	_, err := CreateVolumes(testGeometry(t), nil, must(tissue.Blood(1)), nil, 5000, Options{})
	var lookupErr *models.LookupError
	if !errors.As(err, &lookupErr) {
		t.Errorf("Expected LookupError for a wavelength outside the tabulated range, got %v", err)
	}
}

func TestSanityCheck(t *testing.T) {
	geom := testGeometry(t)
	set := &VolumeSet{WavelengthNM: 800, Volumes: map[tissue.Property]*models.Volume{
		tissue.Absorption:  models.NewVolume(geom),
		tissue.Oxygenation: models.NewVolume(geom),
	}}
	set.Get(tissue.Oxygenation).Fill(math.NaN())
	if err := CheckVolumes(set, geom); err != nil {
		t.Fatalf("Expected valid volumes to pass, got %v", err)
	}

	set.Get(tissue.Absorption).Data[7] = math.Inf(1)
	set.Get(tissue.Absorption).Data[9] = math.NaN()
	err := CheckVolumes(set, geom)
	var numErr *models.NumericalValidityError
	if !errors.As(err, &numErr) {
		t.Fatalf("Expected NumericalValidityError, got %v", err)
	}
	if numErr.Field != "mua" || numErr.Count != 2 || numErr.FirstIndex != 7 {
		t.Errorf("Expected mua with 2 values from index 7, got %+v", numErr)
	}

	small, _ := models.NewVolumeGeometry(1, 2, 2, 2)
	set.Volumes[tissue.Scattering] = models.NewVolume(small)
	if err := CheckVolumes(set, geom); err == nil {
		t.Errorf("Expected a shape mismatch to be reported")
	}
}
