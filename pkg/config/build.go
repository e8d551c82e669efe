package config

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"tissuesynth/internal/models"
	"tissuesynth/pkg/structure"
	"tissuesynth/pkg/tissue"
)

// Scene is a validated configuration converted into library types.
type Scene struct {
	Geometry    models.VolumeGeometry
	Wavelengths []float64
	Structures  []*structure.Structure
	Background  *tissue.Composition

	// Deformation is nil when no structure is deformed
	Deformation structure.Deformation

	// SegmentationFile and Labels are set for label-volume scenes
	SegmentationFile string
	Labels           map[int]*tissue.Composition

	NumCores int
	IgnoreQA bool
}

// Build validates the configuration and constructs the geometry, the
// compositions, the structures and the deformation it describes. All
// structure errors are reported together.
func (c *Config) Build() (*Scene, error) {
	geom, err := models.NewVolumeGeometry(c.Volume.SpacingMM, c.Volume.XMM, c.Volume.YMM, c.Volume.ZMM)
	if err != nil {
		return nil, err
	}
	if len(c.Wavelengths) == 0 {
		return nil, &models.ConfigurationError{Component: "wavelengths", Reason: "at least one wavelength is required"}
	}
	for _, wl := range c.Wavelengths {
		if !(wl > 0) || math.IsInf(wl, 0) {
			return nil, &models.ConfigurationError{Component: "wavelengths", Reason: fmt.Sprintf("invalid wavelength %g nm", wl)}
		}
	}

	opts := []tissue.Option{tissue.WithMediumTemperature(c.MediumTemperatureCelsius)}
	background, err := tissue.ByName(c.Background.Name, c.Background.Params(), opts...)
	if err != nil {
		return nil, fmt.Errorf("background: %w", err)
	}

	deformation, err := c.Deformation.build(geom, c.RandomSeed)
	if err != nil {
		return nil, err
	}

	var errs []error
	structures := make([]*structure.Structure, 0, len(c.Structures))
	for i, sc := range c.Structures {
		st, err := sc.build(i, c.RandomSeed, opts)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		structures = append(structures, st)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	scene := &Scene{
		Geometry:    geom,
		Wavelengths: append([]float64(nil), c.Wavelengths...),
		Structures:  structures,
		Background:  background,
		Deformation: deformation,
		NumCores:    c.Processing.NumCores,
		IgnoreQA:    c.IgnoreQAAssertions,
	}
	if c.Segmentation.File != "" {
		labels, err := c.Segmentation.build(opts)
		if err != nil {
			return nil, err
		}
		scene.SegmentationFile = c.Segmentation.File
		scene.Labels = labels
	}
	return scene, nil
}

func (s SegmentationConfig) build(opts []tissue.Option) (map[int]*tissue.Composition, error) {
	if len(s.Labels) == 0 {
		return nil, &models.ConfigurationError{Component: "segmentation", Reason: "no labels are mapped"}
	}
	labels := make(map[int]*tissue.Composition, len(s.Labels))
	for label, tc := range s.Labels {
		comp, err := tissue.ByName(tc.Name, tc.Params(), opts...)
		if err != nil {
			return nil, fmt.Errorf("segmentation label %d: %w", label, err)
		}
		labels[label] = comp
	}
	return labels, nil
}

func (d DeformationConfig) build(geom models.VolumeGeometry, seed uint64) (structure.Deformation, error) {
	switch d.Type {
	case "", DeformationNone:
		return nil, nil
	case DeformationRandom:
		extent := geom.ExtentMM()
		params := structure.DefaultRandomDeformationParams(extent[0], extent[1])
		params.Seed = seed
		if d.MaxElevationMM > 0 {
			params.MaxElevationMM = d.MaxElevationMM
		}
		if d.Nodes > 0 {
			params.Nodes = d.Nodes
		}
		if d.CutoffCycles > 0 {
			params.CutoffCycles = d.CutoffCycles
		}
		mesh, err := structure.GenerateRandomDeformation(params)
		if err != nil {
			return nil, err
		}
		return mesh, nil
	case DeformationMesh:
		mesh, err := structure.NewMeshDeformation(d.XS, d.YS, d.Elevations)
		if err != nil {
			return nil, err
		}
		return mesh, nil
	case DeformationScattered:
		samples := make([]structure.ElevationSample, len(d.Samples))
		for i, s := range d.Samples {
			samples[i] = structure.ElevationSample{X: s.X, Y: s.Y, Elevation: s.Elevation}
		}
		scattered, err := structure.NewScatteredDeformation(samples, d.Neighbors)
		if err != nil {
			return nil, err
		}
		return scattered, nil
	default:
		return nil, &models.LookupError{
			Kind:  "deformation type",
			Key:   d.Type,
			Valid: []string{DeformationNone, DeformationRandom, DeformationMesh, DeformationScattered},
		}
	}
}

func (s StructureConfig) build(index int, seed uint64, opts []tissue.Option) (*structure.Structure, error) {
	name := s.Name
	if name == "" {
		name = fmt.Sprintf("structure %d", index)
	}
	component := fmt.Sprintf("structure %q", name)

	tissueOpts := append(append([]tissue.Option(nil), opts...), tissue.WithName(name))
	comp, err := tissue.ByName(s.Tissue.Name, s.Tissue.Params(), tissueOpts...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", component, err)
	}
	shape, err := s.shape(component, index, seed)
	if err != nil {
		return nil, err
	}

	return structure.New(structure.Params{
		Name:                 name,
		Priority:             s.Priority,
		PartialVolume:        s.PartialVolume,
		AdheresToDeformation: s.AdheresToDeformation,
	}, shape, comp)
}

func (s StructureConfig) shape(component string, index int, seed uint64) (structure.Shape, error) {
	var missing []string
	point := func(field string, v *Vec) r3.Vec {
		if v == nil {
			missing = append(missing, field)
			return r3.Vec{}
		}
		return r3.Vec{X: v[0], Y: v[1], Z: v[2]}
	}

	var shape structure.Shape
	switch s.Type {
	case TypeLayer:
		shape = structure.Layer{StartZ: s.StartZ, EndZ: s.EndZ}
	case TypeCircularTube:
		shape = structure.CircularTube{
			Start: point("start", s.Start), End: point("end", s.End), Radius: s.Radius, Bounded: s.Bounded,
		}
	case TypeEllipticalTube:
		shape = structure.EllipticalTube{
			Start: point("start", s.Start), End: point("end", s.End), Radius: s.Radius,
			Eccentricity: s.Eccentricity, Bounded: s.Bounded,
		}
	case TypeSphere:
		shape = structure.Sphere{Center: point("center", s.Center), Radius: s.Radius}
	case TypeCuboid:
		shape = structure.Cuboid{Start: point("start", s.Start), Extent: point("extent", s.Extent)}
	case TypeParallelepiped:
		if len(s.Edges) != 3 {
			return nil, &models.ConfigurationError{
				Component: component,
				Reason:    fmt.Sprintf("parallelepiped needs 3 edges, got %d", len(s.Edges)),
			}
		}
		p := structure.Parallelepiped{Origin: point("start", s.Start)}
		for i := range p.Edges {
			p.Edges[i] = point("edges", &s.Edges[i])
		}
		shape = p
	case TypeVesselTree:
		v := structure.VesselTree{
			Start:                 point("start", s.Start),
			Direction:             point("direction", s.Direction),
			Radius:                s.Radius,
			BifurcationLength:     s.BifurcationLength,
			CurvatureFactor:       s.CurvatureFactor,
			RadiusVariationFactor: s.RadiusVariationFactor,
			BifurcationAngleDeg:   s.BifurcationAngleDeg,
			MaxBifurcationDepth:   structure.DefaultMaxBifurcationDepth,
			Seed:                  seed + uint64(index),
		}
		if v.BifurcationAngleDeg == 0 {
			v.BifurcationAngleDeg = structure.DefaultBifurcationAngleDeg
		}
		if s.MaxBifurcationDepth != nil {
			v.MaxBifurcationDepth = *s.MaxBifurcationDepth
		}
		if s.Seed != nil {
			v.Seed = *s.Seed
		}
		shape = v
	default:
		return nil, &models.LookupError{
			Kind: "structure type",
			Key:  s.Type,
			Valid: []string{TypeLayer, TypeCircularTube, TypeEllipticalTube, TypeSphere,
				TypeParallelepiped, TypeCuboid, TypeVesselTree},
		}
	}

	if len(missing) > 0 {
		return nil, &models.ConfigurationError{
			Component: component,
			Reason:    fmt.Sprintf("%s requires %v", s.Type, missing),
		}
	}
	return shape, nil
}
