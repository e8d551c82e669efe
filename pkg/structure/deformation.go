package structure

import (
	"fmt"
	"math"
	"sort"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/spatial/kdtree"
	"gonum.org/v1/gonum/stat/distuv"

	"tissuesynth/internal/models"
)

// Deformation displaces adhering structures along z. A positive elevation
// moves the structure deeper.
type Deformation interface {
	ElevationAt(xMM, yMM float64) float64
}

// MeshDeformation interpolates elevations given on a regular x/y grid
// bilinearly. Positions outside the grid take the value of the nearest edge.
type MeshDeformation struct {
	xs, ys    []float64
	elevation []float64 // len(xs)*len(ys), x fastest
}

// NewMeshDeformation creates a mesh deformation from strictly increasing grid
// coordinates in mm and the elevations at each node.
func NewMeshDeformation(xsMM, ysMM, elevationMM []float64) (*MeshDeformation, error) {
	if len(xsMM) < 2 || len(ysMM) < 2 {
		return nil, &models.ConfigurationError{Component: "deformation mesh", Reason: "at least 2x2 nodes are required"}
	}
	if len(elevationMM) != len(xsMM)*len(ysMM) {
		return nil, &models.ConfigurationError{
			Component: "deformation mesh",
			Reason:    fmt.Sprintf("got %d elevations for a %dx%d grid", len(elevationMM), len(xsMM), len(ysMM)),
		}
	}
	for _, axis := range [][]float64{xsMM, ysMM} {
		for i := 1; i < len(axis); i++ {
			if !(axis[i] > axis[i-1]) {
				return nil, &models.ConfigurationError{Component: "deformation mesh", Reason: "grid coordinates must be strictly increasing"}
			}
		}
	}
	if floats.HasNaN(elevationMM) {
		return nil, &models.ConfigurationError{Component: "deformation mesh", Reason: "elevations contain NaN"}
	}

	return &MeshDeformation{
		xs:        append([]float64(nil), xsMM...),
		ys:        append([]float64(nil), ysMM...),
		elevation: append([]float64(nil), elevationMM...),
	}, nil
}

// cell locates v within axis and returns the lower node and the fractional
// offset towards the next node.
func cell(axis []float64, v float64) (int, float64) {
	if v <= axis[0] {
		return 0, 0
	}
	last := len(axis) - 1
	if v >= axis[last] {
		return last - 1, 1
	}
	i := sort.SearchFloat64s(axis, v) - 1
	return i, (v - axis[i]) / (axis[i+1] - axis[i])
}

func (m *MeshDeformation) ElevationAt(xMM, yMM float64) float64 {
	i, tx := cell(m.xs, xMM)
	j, ty := cell(m.ys, yMM)
	nx := len(m.xs)

	e00 := m.elevation[j*nx+i]
	e10 := m.elevation[j*nx+i+1]
	e01 := m.elevation[(j+1)*nx+i]
	e11 := m.elevation[(j+1)*nx+i+1]
	return (1-ty)*((1-tx)*e00+tx*e10) + ty*((1-tx)*e01+tx*e11)
}

// MaxElevation returns the largest node elevation.
func (m *MeshDeformation) MaxElevation() float64 { return floats.Max(m.elevation) }

// ElevationSample is a scattered elevation measurement.
type ElevationSample struct {
	X, Y      float64 // mm
	Elevation float64 // mm
}

// Compare implements kdtree.Comparable over the x/y plane
func (s ElevationSample) Compare(c kdtree.Comparable, d kdtree.Dim) float64 {
	q := c.(ElevationSample)
	switch d {
	case 0:
		return s.X - q.X
	case 1:
		return s.Y - q.Y
	default:
		panic("illegal dimension")
	}
}

func (s ElevationSample) Dims() int { return 2 }

// Distance returns the squared planar distance
func (s ElevationSample) Distance(c kdtree.Comparable) float64 {
	q := c.(ElevationSample)
	dx, dy := s.X-q.X, s.Y-q.Y
	return dx*dx + dy*dy
}

type elevationSamples []ElevationSample

func (p elevationSamples) Index(i int) kdtree.Comparable         { return p[i] }
func (p elevationSamples) Len() int                              { return len(p) }
func (p elevationSamples) Slice(start, end int) kdtree.Interface { return p[start:end] }

func (p elevationSamples) Pivot(d kdtree.Dim) int {
	plane := samplePlane{elevationSamples: p, Dim: d}
	return kdtree.Partition(plane, kdtree.MedianOfRandoms(plane, 100))
}

type samplePlane struct {
	elevationSamples
	kdtree.Dim
}

func (p samplePlane) Less(i, j int) bool {
	switch p.Dim {
	case 0:
		return p.elevationSamples[i].X < p.elevationSamples[j].X
	case 1:
		return p.elevationSamples[i].Y < p.elevationSamples[j].Y
	default:
		panic("illegal dimension")
	}
}

func (p samplePlane) Slice(start, end int) kdtree.SortSlicer {
	return samplePlane{elevationSamples: p.elevationSamples[start:end], Dim: p.Dim}
}

func (p samplePlane) Swap(i, j int) {
	p.elevationSamples[i], p.elevationSamples[j] = p.elevationSamples[j], p.elevationSamples[i]
}

// DefaultNeighbors is the number of samples ScatteredDeformation blends.
const DefaultNeighbors = 4

// ScatteredDeformation interpolates scattered elevation samples by inverse
// squared distance weighting of the k nearest samples.
type ScatteredDeformation struct {
	tree      *kdtree.Tree
	neighbors int
}

// NewScatteredDeformation indexes the samples in a k-d tree.
func NewScatteredDeformation(samples []ElevationSample, neighbors int) (*ScatteredDeformation, error) {
	if len(samples) == 0 {
		return nil, &models.ConfigurationError{Component: "scattered deformation", Reason: "no samples"}
	}
	if neighbors < 1 {
		neighbors = DefaultNeighbors
	}
	for _, s := range samples {
		if !finite(s.X, s.Y, s.Elevation) {
			return nil, &models.ConfigurationError{Component: "scattered deformation", Reason: "samples must be finite"}
		}
	}

	pts := append(elevationSamples(nil), samples...)
	return &ScatteredDeformation{tree: kdtree.New(pts, false), neighbors: neighbors}, nil
}

func (d *ScatteredDeformation) ElevationAt(xMM, yMM float64) float64 {
	keeper := kdtree.NewNKeeper(d.neighbors)
	d.tree.NearestSet(keeper, ElevationSample{X: xMM, Y: yMM})

	var weighted, total float64
	for _, c := range keeper.Heap {
		if c.Comparable == nil {
			continue
		}
		s := c.Comparable.(ElevationSample)
		if c.Dist == 0 {
			return s.Elevation
		}
		w := 1 / c.Dist
		weighted += w * s.Elevation
		total += w
	}
	if total == 0 {
		return 0
	}
	return weighted / total
}

// RandomDeformationParams configures GenerateRandomDeformation.
type RandomDeformationParams struct {
	// XMM and YMM are the extent covered by the mesh
	XMM, YMM float64

	// Nodes is the number of mesh nodes per axis
	Nodes int

	// MaxElevationMM is the peak displacement; elevations span [0, MaxElevationMM]
	MaxElevationMM float64

	// CutoffCycles is the highest spatial frequency kept, in cycles per extent
	CutoffCycles int

	Seed uint64
}

// DefaultRandomDeformationParams returns a gently undulating surface.
func DefaultRandomDeformationParams(xMM, yMM float64) RandomDeformationParams {
	return RandomDeformationParams{XMM: xMM, YMM: yMM, Nodes: 32, MaxElevationMM: 2, CutoffCycles: 3}
}

// GenerateRandomDeformation draws white noise on a square mesh, removes all
// spatial frequencies above the cutoff and rescales the result into
// [0, MaxElevationMM]. The same seed yields the same mesh.
func GenerateRandomDeformation(params RandomDeformationParams) (*MeshDeformation, error) {
	n := params.Nodes
	if n < 2 || !(params.XMM > 0) || !(params.YMM > 0) || params.MaxElevationMM < 0 || params.CutoffCycles < 1 {
		return nil, &models.ConfigurationError{
			Component: "random deformation",
			Reason:    fmt.Sprintf("invalid parameters %+v", params),
		}
	}

	noise := distuv.Normal{Mu: 0, Sigma: 1, Src: rand.New(rand.NewSource(params.Seed))}
	grid := make([]complex128, n*n)
	for i := range grid {
		grid[i] = complex(noise.Rand(), 0)
	}

	fft := fourier.NewCmplxFFT(n)
	transform2D(fft, grid, n, fft.Coefficients)
	cutoff := float64(params.CutoffCycles) + 1e-9
	for j := 0; j < n; j++ {
		for i := 0; i < n; i++ {
			// Freq is in cycles per sample
			if math.Abs(fft.Freq(i))*float64(n) > cutoff || math.Abs(fft.Freq(j))*float64(n) > cutoff {
				grid[j*n+i] = 0
			}
		}
	}
	transform2D(fft, grid, n, fft.Sequence)

	elevation := make([]float64, n*n)
	for i, c := range grid {
		elevation[i] = real(c)
	}
	lo, hi := floats.Min(elevation), floats.Max(elevation)
	for i := range elevation {
		if hi > lo {
			elevation[i] = (elevation[i] - lo) / (hi - lo) * params.MaxElevationMM
		} else {
			elevation[i] = 0
		}
	}

	xs := make([]float64, n)
	ys := make([]float64, n)
	floats.Span(xs, 0, params.XMM)
	floats.Span(ys, 0, params.YMM)
	return NewMeshDeformation(xs, ys, elevation)
}

// transform2D applies a 1D transform to every row and then every column of
// an n×n grid in place.
func transform2D(fft *fourier.CmplxFFT, grid []complex128, n int, apply func(dst, src []complex128) []complex128) {
	line := make([]complex128, n)
	for j := 0; j < n; j++ {
		row := grid[j*n : (j+1)*n]
		apply(line, row)
		copy(row, line)
	}
	col := make([]complex128, n)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			col[j] = grid[j*n+i]
		}
		apply(line, col)
		for j := 0; j < n; j++ {
			grid[j*n+i] = line[j]
		}
	}
}
