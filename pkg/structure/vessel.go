package structure

import (
	"errors"
	"fmt"
	"math"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/spatial/r3"
	"gonum.org/v1/gonum/stat/distuv"

	"tissuesynth/internal/models"
)

// Vessel tree defaults.
const (
	DefaultBifurcationAngleDeg = 30.0
	DefaultMaxBifurcationDepth = 3

	// maxVesselSegments bounds the growth of a single tree
	maxVesselSegments = 1 << 20
)

// VesselTree is a randomly grown, bifurcating vessel. Growth is fully
// determined by the parameters and Seed.
type VesselTree struct {
	Start     r3.Vec
	Direction r3.Vec
	Radius    float64 // mm

	// BifurcationLength is the length a branch grows before it splits, in mm
	BifurcationLength float64

	// CurvatureFactor scales the directional noise per step
	CurvatureFactor float64

	// RadiusVariationFactor scales the multiplicative radius noise per step
	RadiusVariationFactor float64

	BifurcationAngleDeg float64
	MaxBifurcationDepth int

	Seed uint64
}

func (VesselTree) Kind() string { return "vessel tree" }

func (v VesselTree) validate() error {
	if !finite(v.Start.X, v.Start.Y, v.Start.Z, v.Direction.X, v.Direction.Y, v.Direction.Z,
		v.Radius, v.BifurcationLength, v.CurvatureFactor, v.RadiusVariationFactor, v.BifurcationAngleDeg) {
		return errors.New("vessel parameters must be finite")
	}
	if v.Radius <= 0 {
		return fmt.Errorf("radius %g mm must be positive", v.Radius)
	}
	if r3.Norm(v.Direction) == 0 {
		return errors.New("direction must not be zero")
	}
	if v.BifurcationLength <= 0 {
		return fmt.Errorf("bifurcation length %g mm must be positive", v.BifurcationLength)
	}
	if v.CurvatureFactor < 0 || v.RadiusVariationFactor < 0 {
		return errors.New("curvature and radius variation factors must not be negative")
	}
	if v.MaxBifurcationDepth < 0 {
		return fmt.Errorf("maximum bifurcation depth %d must not be negative", v.MaxBifurcationDepth)
	}
	return nil
}

// Segment is one growth step of a vessel, rasterized as a capsule.
type Segment struct {
	A, B   r3.Vec
	Radius float64
}

// Distance returns the signed distance from p to the capsule surface.
func (s Segment) Distance(p r3.Vec) float64 {
	ab := r3.Sub(s.B, s.A)
	t := 0.0
	if l2 := r3.Dot(ab, ab); l2 > 0 {
		t = math.Max(0, math.Min(1, r3.Dot(r3.Sub(p, s.A), ab)/l2))
	}
	return r3.Norm(r3.Sub(p, r3.Add(s.A, r3.Scale(t, ab)))) - s.Radius
}

type branch struct {
	position  r3.Vec
	direction r3.Vec
	radius    float64
	depth     int
}

// Segments grows the tree inside geom and returns its capsules in growth
// order. Branches are grown depth-first.
func (v VesselTree) Segments(geom models.VolumeGeometry) []Segment {
	rng := rand.New(rand.NewSource(v.Seed))
	noise := distuv.Normal{Mu: 0, Sigma: 1, Src: rng}

	step := math.Min(geom.SpacingMM, v.BifurcationLength)
	minRadius := geom.SpacingMM / 4
	extent := geom.ExtentMM()
	angle := v.BifurcationAngleDeg * math.Pi / 180

	contains := func(p r3.Vec) bool {
		return p.X >= 0 && p.X <= extent[0] && p.Y >= 0 && p.Y <= extent[1] && p.Z >= 0 && p.Z <= extent[2]
	}

	var segments []Segment
	stack := []branch{{position: v.Start, direction: r3.Unit(v.Direction), radius: v.Radius}}
	for len(stack) > 0 && len(segments) < maxVesselSegments {
		b := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		pos, dir := b.position, b.direction
		terminated := false
		for travelled := 0.0; travelled < v.BifurcationLength; travelled += step {
			jitter := r3.Vec{X: noise.Rand(), Y: noise.Rand(), Z: noise.Rand()}
			if next := r3.Add(dir, r3.Scale(v.CurvatureFactor, jitter)); r3.Norm(next) > 0 {
				dir = r3.Unit(next)
			}
			r := b.radius * (1 + v.RadiusVariationFactor*noise.Rand())
			r = math.Max(0.5*b.radius, math.Min(1.5*b.radius, r))

			next := r3.Add(pos, r3.Scale(step, dir))
			segments = append(segments, Segment{A: pos, B: next, Radius: r})
			pos = next

			if !contains(pos) || r < minRadius || len(segments) >= maxVesselSegments {
				terminated = true
				break
			}
		}
		if terminated || b.depth >= v.MaxBifurcationDepth {
			continue
		}

		childRadius := b.radius * math.Pow(2, -1.0/3)
		if childRadius < minRadius {
			continue
		}
		axis := perpendicular(dir, r3.Vec{X: noise.Rand(), Y: noise.Rand(), Z: noise.Rand()})
		// pushed in reverse so the first child grows first
		stack = append(stack,
			branch{position: pos, direction: r3.Rotate(dir, -angle, axis), radius: childRadius, depth: b.depth + 1},
			branch{position: pos, direction: r3.Rotate(dir, angle, axis), radius: childRadius, depth: b.depth + 1},
		)
	}
	return segments
}

// perpendicular returns a unit vector perpendicular to dir, preferring the
// component of hint perpendicular to dir.
func perpendicular(dir, hint r3.Vec) r3.Vec {
	p := r3.Cross(dir, hint)
	if r3.Norm(p) < 1e-9 {
		p = r3.Cross(dir, r3.Vec{X: 1})
		if r3.Norm(p) < 1e-9 {
			p = r3.Cross(dir, r3.Vec{Y: 1})
		}
	}
	return r3.Unit(p)
}

// vesselTree unions the capsules of the tree by maximum occupancy, visiting
// only the voxels around each capsule.
func (r *rasterizer) vesselTree(v VesselTree) []float64 {
	g := r.geom
	s := g.SpacingMM
	out := make([]float64, g.Len())

	zLoShift, zHiShift := 0.0, 0.0
	if r.shift != nil {
		zLoShift, zHiShift = r.minShift, r.maxShift
	}

	voxelRange := func(lo, hi float64, n int) (int, int) {
		first := int(math.Floor(lo/s - 0.5))
		last := int(math.Ceil(hi/s - 0.5))
		return max(first, 0), min(last, n-1)
	}

	for _, seg := range v.Segments(g) {
		margin := seg.Radius + s
		x0, x1 := voxelRange(math.Min(seg.A.X, seg.B.X)-margin, math.Max(seg.A.X, seg.B.X)+margin, g.NX)
		y0, y1 := voxelRange(math.Min(seg.A.Y, seg.B.Y)-margin, math.Max(seg.A.Y, seg.B.Y)+margin, g.NY)
		// voxel centres are shifted up by the elevation before evaluation
		z0, z1 := voxelRange(math.Min(seg.A.Z, seg.B.Z)-margin+zLoShift, math.Max(seg.A.Z, seg.B.Z)+margin+zHiShift, g.NZ)

		for z := z0; z <= z1; z++ {
			for y := y0; y <= y1; y++ {
				for x := x0; x <= x1; x++ {
					occ := Occupancy(seg.Distance(r.center(x, y, z)), s, r.partial)
					if idx := g.Index(x, y, z); occ > out[idx] {
						out[idx] = occ
					}
				}
			}
		}
	}
	return out
}
