package structure

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"

	"tissuesynth/internal/models"
)

// Rasterize computes the fractional occupancy of every voxel of geom by the
// structure's shape. The result is a flat array in the layout of
// models.VolumeGeometry.Index with values in [0, 1]; without partial volume
// every value is exactly 0 or 1.
//
// When the structure adheres to deformation and def is not nil, each voxel is
// evaluated at z − def.ElevationAt(x, y).
func Rasterize(st *Structure, geom models.VolumeGeometry, def Deformation) ([]float64, error) {
	if err := st.Shape.validate(); err != nil {
		return nil, &models.ConfigurationError{
			Component: fmt.Sprintf("structure %q (%s)", st.Name, st.Shape.Kind()),
			Reason:    err.Error(),
		}
	}

	r := newRasterizer(geom, st.PartialVolume)
	if st.AdheresToDeformation && def != nil {
		r.applyDeformation(def)
	}

	switch s := st.Shape.(type) {
	case Layer:
		return r.layer(s), nil
	case Cuboid:
		return r.cuboid(s), nil
	case Sphere:
		return r.sphere(s), nil
	case CircularTube:
		return r.signedDistance(circularTubeDistance(s)), nil
	case EllipticalTube:
		return r.signedDistance(ellipticalTubeDistance(s)), nil
	case Parallelepiped:
		sd, err := parallelepipedDistance(s)
		if err != nil {
			return nil, fmt.Errorf("structure %q: %w", st.Name, err)
		}
		return r.signedDistance(sd), nil
	case VesselTree:
		return r.vesselTree(s), nil
	default:
		return nil, fmt.Errorf("structure %q: unsupported shape %T", st.Name, st.Shape)
	}
}

// Occupancy maps a signed distance in mm (negative inside) onto a voxel
// fraction. Without partial volume a voxel is filled iff its centre lies
// strictly inside. With partial volume the fraction falls linearly from 1 at
// half a voxel inside to 0 at half a voxel outside.
func Occupancy(sd, spacingMM float64, partialVolume bool) float64 {
	if !partialVolume {
		if sd < 0 {
			return 1
		}
		return 0
	}
	return math.Max(0, math.Min(1, 0.5-sd/spacingMM))
}

type rasterizer struct {
	geom    models.VolumeGeometry
	partial bool

	// shift holds the elevation of each (x, y) column, nil without deformation
	shift              []float64
	minShift, maxShift float64
}

func newRasterizer(geom models.VolumeGeometry, partial bool) *rasterizer {
	return &rasterizer{geom: geom, partial: partial}
}

func (r *rasterizer) applyDeformation(def Deformation) {
	g := r.geom
	r.shift = make([]float64, g.NX*g.NY)
	r.minShift, r.maxShift = math.Inf(1), math.Inf(-1)
	for y := 0; y < g.NY; y++ {
		for x := 0; x < g.NX; x++ {
			cx, cy, _ := g.VoxelCenterMM(x, y, 0)
			e := def.ElevationAt(cx, cy)
			r.shift[y*g.NX+x] = e
			r.minShift = math.Min(r.minShift, e)
			r.maxShift = math.Max(r.maxShift, e)
		}
	}
}

func (r *rasterizer) columnShift(x, y int) float64 {
	if r.shift == nil {
		return 0
	}
	return r.shift[y*r.geom.NX+x]
}

// center returns the evaluation point of a voxel, deformation included.
func (r *rasterizer) center(x, y, z int) r3.Vec {
	cx, cy, cz := r.geom.VoxelCenterMM(x, y, z)
	return r3.Vec{X: cx, Y: cy, Z: cz - r.columnShift(x, y)}
}

func (r *rasterizer) signedDistance(sd func(r3.Vec) float64) []float64 {
	g := r.geom
	out := make([]float64, g.Len())
	for z := 0; z < g.NZ; z++ {
		for y := 0; y < g.NY; y++ {
			for x := 0; x < g.NX; x++ {
				out[g.Index(x, y, z)] = Occupancy(sd(r.center(x, y, z)), g.SpacingMM, r.partial)
			}
		}
	}
	return out
}

func (r *rasterizer) sphere(s Sphere) []float64 {
	out := r.signedDistance(func(p r3.Vec) float64 { return r3.Norm(r3.Sub(p, s.Center)) - s.Radius })
	if !r.partial {
		return out
	}
	// A sphere inside a single voxel may miss every centre; it then occupies
	// its volume fraction of that voxel.
	if idx, ok := r.enclosingVoxel(s.Center, s.Radius); ok {
		spacing := r.geom.SpacingMM
		out[idx] = math.Min(1, 4.0/3.0*math.Pi*math.Pow(s.Radius/spacing, 3))
	}
	return out
}

// enclosingVoxel returns the index of the voxel containing the whole ball of
// the given radius, deformation included.
func (r *rasterizer) enclosingVoxel(center r3.Vec, radius float64) (int, bool) {
	g := r.geom
	cell := func(c float64, n int) (int, bool) {
		lo := math.Floor((c - radius) / g.SpacingMM)
		hi := math.Floor((c + radius) / g.SpacingMM)
		i := int(lo)
		return i, lo == hi && i >= 0 && i < n
	}

	x, okX := cell(center.X, g.NX)
	y, okY := cell(center.Y, g.NY)
	if !okX || !okY {
		return 0, false
	}
	z, okZ := cell(center.Z+r.columnShift(x, y), g.NZ)
	if !okZ {
		return 0, false
	}
	return g.Index(x, y, z), true
}

// overlap returns the fraction of the voxel interval [lo, lo+s) covered by
// [a, b).
func overlap(lo, s, a, b float64) float64 {
	covered := math.Min(lo+s, b) - math.Max(lo, a)
	return math.Max(0, math.Min(1, covered/s))
}

// inside reports whether a voxel centre lies strictly within (a, b).
func inside(center, a, b float64) bool { return center > a && center < b }

// axisFraction is the occupancy of voxel i along one axis of an interval.
func (r *rasterizer) axisFraction(i int, shift, a, b float64) float64 {
	s := r.geom.SpacingMM
	lo := float64(i)*s - shift
	if r.partial {
		return overlap(lo, s, a, b)
	}
	if inside(lo+0.5*s, a, b) {
		return 1
	}
	return 0
}

func (r *rasterizer) layer(l Layer) []float64 {
	g := r.geom
	out := make([]float64, g.Len())
	for z := 0; z < g.NZ; z++ {
		for y := 0; y < g.NY; y++ {
			for x := 0; x < g.NX; x++ {
				out[g.Index(x, y, z)] = r.axisFraction(z, r.columnShift(x, y), l.StartZ, l.EndZ)
			}
		}
	}
	return out
}

func (r *rasterizer) cuboid(c Cuboid) []float64 {
	g := r.geom
	lo, hi := c.bounds()

	fx := make([]float64, g.NX)
	for x := range fx {
		fx[x] = r.axisFraction(x, 0, lo.X, hi.X)
	}
	fy := make([]float64, g.NY)
	for y := range fy {
		fy[y] = r.axisFraction(y, 0, lo.Y, hi.Y)
	}

	out := make([]float64, g.Len())
	for z := 0; z < g.NZ; z++ {
		for y := 0; y < g.NY; y++ {
			if fy[y] == 0 {
				continue
			}
			for x := 0; x < g.NX; x++ {
				if fx[x] == 0 {
					continue
				}
				out[g.Index(x, y, z)] = fx[x] * fy[y] * r.axisFraction(z, r.columnShift(x, y), lo.Z, hi.Z)
			}
		}
	}
	return out
}

func circularTubeDistance(c CircularTube) func(r3.Vec) float64 {
	axis := r3.Sub(c.End, c.Start)
	length := r3.Norm(axis)
	unit := r3.Scale(1/length, axis)
	return func(p r3.Vec) float64 {
		v := r3.Sub(p, c.Start)
		t := r3.Dot(v, unit)
		if c.Bounded {
			t = math.Max(0, math.Min(length, t))
		}
		return r3.Norm(r3.Sub(v, r3.Scale(t, unit))) - c.Radius
	}
}

// crossSectionBasis returns unit vectors u and v perpendicular to axis, with
// v in the plane spanned by axis and z.
func crossSectionBasis(axis r3.Vec) (r3.Vec, r3.Vec) {
	u := r3.Cross(axis, r3.Vec{Z: 1})
	if r3.Norm(u) < 1e-9 {
		u = r3.Vec{X: 1}
	}
	u = r3.Unit(u)
	return u, r3.Cross(axis, u)
}

func ellipticalTubeDistance(e EllipticalTube) func(r3.Vec) float64 {
	axis := r3.Sub(e.End, e.Start)
	length := r3.Norm(axis)
	unit := r3.Scale(1/length, axis)
	u, v := crossSectionBasis(unit)
	a, b := e.SemiAxes()

	return func(p r3.Vec) float64 {
		w := r3.Sub(p, e.Start)
		t := r3.Dot(w, unit)
		pu, pv := r3.Dot(w, u), r3.Dot(w, v)

		var sd float64
		rho := math.Hypot(pu/a, pv/b)
		if rho == 0 {
			sd = -b
		} else {
			grad := math.Hypot(pu/(a*a), pv/(b*b)) / rho
			sd = (rho - 1) / grad
		}
		if e.Bounded {
			sd = math.Max(sd, math.Max(-t, t-length))
		}
		return sd
	}
}

func parallelepipedDistance(p Parallelepiped) (func(r3.Vec) float64, error) {
	m := p.edgeMatrix()
	var inv mat.Dense
	if err := inv.Inverse(m); err != nil {
		return nil, fmt.Errorf("inverting parallelepiped edges: %w", err)
	}

	var rows [3]r3.Vec
	for i := range rows {
		rows[i] = r3.Vec{X: inv.At(i, 0), Y: inv.At(i, 1), Z: inv.At(i, 2)}
	}

	// distance between the two faces spanned by the other edges
	det := math.Abs(mat.Det(m))
	var heights [3]float64
	for i := range heights {
		heights[i] = det / r3.Norm(r3.Cross(p.Edges[(i+1)%3], p.Edges[(i+2)%3]))
	}

	return func(q r3.Vec) float64 {
		w := r3.Sub(q, p.Origin)
		sd := math.Inf(-1)
		for i := range rows {
			c := r3.Dot(rows[i], w)
			sd = math.Max(sd, math.Max(-c, c-1)*heights[i])
		}
		return sd
	}, nil
}
