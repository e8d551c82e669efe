// Package structure describes parametric anatomical shapes and rasterizes them
// into fractional voxel occupancy.
package structure

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"

	"tissuesynth/internal/models"
	"tissuesynth/pkg/tissue"
)

// Shape is one of the closed set of geometries a structure can take: Layer,
// CircularTube, EllipticalTube, Sphere, Parallelepiped, Cuboid or VesselTree.
type Shape interface {
	// Kind names the shape in logs and errors
	Kind() string

	validate() error
}

// Layer is the slab between two z planes, infinite in x and y.
type Layer struct {
	StartZ, EndZ float64 // mm
}

func (Layer) Kind() string { return "layer" }

func (l Layer) validate() error {
	if !finite(l.StartZ, l.EndZ) {
		return errors.New("layer bounds must be finite")
	}
	if l.EndZ <= l.StartZ {
		return fmt.Errorf("layer end %g mm must be deeper than start %g mm", l.EndZ, l.StartZ)
	}
	return nil
}

// CircularTube is a cylinder of the given radius around the axis through
// Start and End. It is infinite along the axis unless Bounded, in which case
// it is a capsule around the segment.
type CircularTube struct {
	Start, End r3.Vec // mm
	Radius     float64
	Bounded    bool
}

func (CircularTube) Kind() string { return "circular tube" }

func (c CircularTube) validate() error {
	return validateTube(c.Start, c.End, c.Radius)
}

// EllipticalTube is a tube with an elliptical cross-section. The major
// semi-axis equals Radius, the minor semi-axis is Radius*sqrt(1-e²) and lies
// in the plane spanned by the tube axis and z. A bounded tube is cut flat at
// Start and End.
type EllipticalTube struct {
	Start, End   r3.Vec
	Radius       float64
	Eccentricity float64
	Bounded      bool
}

func (EllipticalTube) Kind() string { return "elliptical tube" }

func (e EllipticalTube) validate() error {
	if err := validateTube(e.Start, e.End, e.Radius); err != nil {
		return err
	}
	if !(e.Eccentricity >= 0 && e.Eccentricity < 1) {
		return fmt.Errorf("eccentricity %g outside [0, 1)", e.Eccentricity)
	}
	return nil
}

// SemiAxes returns the major and minor semi-axes in mm.
func (e EllipticalTube) SemiAxes() (float64, float64) {
	return e.Radius, e.Radius * math.Sqrt(1-e.Eccentricity*e.Eccentricity)
}

func validateTube(start, end r3.Vec, radius float64) error {
	if !finite(start.X, start.Y, start.Z, end.X, end.Y, end.Z, radius) {
		return errors.New("tube parameters must be finite")
	}
	if radius <= 0 {
		return fmt.Errorf("radius %g mm must be positive", radius)
	}
	if r3.Norm(r3.Sub(end, start)) == 0 {
		return errors.New("start and end points coincide")
	}
	return nil
}

// Sphere is a ball around Center.
type Sphere struct {
	Center r3.Vec
	Radius float64
}

func (Sphere) Kind() string { return "sphere" }

func (s Sphere) validate() error {
	if !finite(s.Center.X, s.Center.Y, s.Center.Z, s.Radius) {
		return errors.New("sphere parameters must be finite")
	}
	if s.Radius <= 0 {
		return fmt.Errorf("radius %g mm must be positive", s.Radius)
	}
	return nil
}

// Parallelepiped is spanned by three edge vectors from Origin.
type Parallelepiped struct {
	Origin r3.Vec
	Edges  [3]r3.Vec
}

func (Parallelepiped) Kind() string { return "parallelepiped" }

// degenerateDeterminant is the smallest edge-matrix determinant in mm³ of a
// parallelepiped with volume.
const degenerateDeterminant = 1e-12

func (p Parallelepiped) validate() error {
	for _, e := range append([]r3.Vec{p.Origin}, p.Edges[:]...) {
		if !finite(e.X, e.Y, e.Z) {
			return errors.New("parallelepiped parameters must be finite")
		}
	}
	if det := mat.Det(p.edgeMatrix()); math.Abs(det) < degenerateDeterminant {
		return fmt.Errorf("edge vectors are linearly dependent (det %g)", det)
	}
	return nil
}

// edgeMatrix holds the edge vectors as columns.
func (p Parallelepiped) edgeMatrix() *mat.Dense {
	m := mat.NewDense(3, 3, nil)
	for j, e := range p.Edges {
		m.Set(0, j, e.X)
		m.Set(1, j, e.Y)
		m.Set(2, j, e.Z)
	}
	return m
}

// Cuboid is an axis-aligned box from Start with signed extents along x, y, z.
type Cuboid struct {
	Start  r3.Vec
	Extent r3.Vec
}

func (Cuboid) Kind() string { return "cuboid" }

func (c Cuboid) validate() error {
	if !finite(c.Start.X, c.Start.Y, c.Start.Z, c.Extent.X, c.Extent.Y, c.Extent.Z) {
		return errors.New("cuboid parameters must be finite")
	}
	if c.Extent.X == 0 || c.Extent.Y == 0 || c.Extent.Z == 0 {
		return fmt.Errorf("extent %v has a zero component", c.Extent)
	}
	return nil
}

// bounds returns the lower and upper corners.
func (c Cuboid) bounds() (r3.Vec, r3.Vec) {
	end := r3.Add(c.Start, c.Extent)
	lo := r3.Vec{X: math.Min(c.Start.X, end.X), Y: math.Min(c.Start.Y, end.Y), Z: math.Min(c.Start.Z, end.Z)}
	hi := r3.Vec{X: math.Max(c.Start.X, end.X), Y: math.Max(c.Start.Y, end.Y), Z: math.Max(c.Start.Z, end.Z)}
	return lo, hi
}

// Structure is a shape filled with a tissue composition.
type Structure struct {
	Name        string
	Priority    float64
	Composition *tissue.Composition

	// PartialVolume enables fractional occupancy at the boundary
	PartialVolume bool

	// AdheresToDeformation makes the structure follow the deformation field
	AdheresToDeformation bool

	Shape Shape
}

// Params holds the settings shared by every structure.
type Params struct {
	Name                 string
	Priority             float64
	PartialVolume        bool
	AdheresToDeformation bool
}

// New validates the shape and composition and returns the structure.
// Invalid input yields a *models.ConfigurationError naming the structure.
func New(params Params, shape Shape, comp *tissue.Composition) (*Structure, error) {
	component := fmt.Sprintf("structure %q", params.Name)
	if shape == nil {
		return nil, &models.ConfigurationError{Component: component, Reason: "no shape"}
	}
	component = fmt.Sprintf("structure %q (%s)", params.Name, shape.Kind())
	if comp == nil {
		return nil, &models.ConfigurationError{Component: component, Reason: "no composition"}
	}
	if !finite(params.Priority) {
		return nil, &models.ConfigurationError{Component: component, Reason: "priority must be finite"}
	}
	if err := shape.validate(); err != nil {
		return nil, &models.ConfigurationError{Component: component, Reason: err.Error()}
	}

	return &Structure{
		Name:                 params.Name,
		Priority:             params.Priority,
		Composition:          comp,
		PartialVolume:        params.PartialVolume,
		AdheresToDeformation: params.AdheresToDeformation,
		Shape:                shape,
	}, nil
}

func finite(values ...float64) bool {
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
