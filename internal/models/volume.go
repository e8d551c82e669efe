package models

import (
	"fmt"
	"math"
)

// VolumeGeometry describes the voxel grid shared by every structure of one
// simulated volume. Voxel (i, j, k) spans [i*s, (i+1)*s) along x (and likewise
// along y and z) where s is the isotropic spacing.
type VolumeGeometry struct {
	// SpacingMM is the edge length of a voxel in mm
	SpacingMM float64

	// NX, NY, NZ are the voxel counts along each axis
	NX, NY, NZ int
}

// NewVolumeGeometry derives the voxel counts from physical extents in mm.
// Extents are rounded to the nearest whole number of voxels.
func NewVolumeGeometry(spacingMM, xMM, yMM, zMM float64) (VolumeGeometry, error) {
	if !(spacingMM > 0) || math.IsInf(spacingMM, 0) {
		return VolumeGeometry{}, &ConfigurationError{
			Component: "volume geometry",
			Reason:    fmt.Sprintf("spacing must be a positive finite value, got %g", spacingMM),
		}
	}

	dims := [3]int{}
	for i, extent := range [3]float64{xMM, yMM, zMM} {
		n := int(math.Round(extent / spacingMM))
		if n < 1 {
			return VolumeGeometry{}, &ConfigurationError{
				Component: "volume geometry",
				Reason: fmt.Sprintf("%s extent %g mm is smaller than one voxel of %g mm",
					AxisName(i), extent, spacingMM),
			}
		}
		dims[i] = n
	}

	return VolumeGeometry{SpacingMM: spacingMM, NX: dims[0], NY: dims[1], NZ: dims[2]}, nil
}

// Len returns the total number of voxels.
func (g VolumeGeometry) Len() int { return g.NX * g.NY * g.NZ }

// Dims returns the voxel counts as (x, y, z).
func (g VolumeGeometry) Dims() [3]int { return [3]int{g.NX, g.NY, g.NZ} }

// ExtentMM returns the physical extent (count × spacing) of each axis.
func (g VolumeGeometry) ExtentMM() [3]float64 {
	return [3]float64{
		float64(g.NX) * g.SpacingMM,
		float64(g.NY) * g.SpacingMM,
		float64(g.NZ) * g.SpacingMM,
	}
}

// Index maps voxel coordinates onto the flat row-major layout (x fastest).
func (g VolumeGeometry) Index(x, y, z int) int {
	return z*g.NX*g.NY + y*g.NX + x
}

// Coords is the inverse of Index.
func (g VolumeGeometry) Coords(idx int) (x, y, z int) {
	plane := g.NX * g.NY
	z = idx / plane
	rem := idx - z*plane
	y = rem / g.NX
	x = rem - y*g.NX
	return x, y, z
}

// VoxelCenterMM returns the physical position of a voxel centre.
func (g VolumeGeometry) VoxelCenterMM(x, y, z int) (float64, float64, float64) {
	s := g.SpacingMM
	return (float64(x) + 0.5) * s, (float64(y) + 0.5) * s, (float64(z) + 0.5) * s
}

// Volume is a dense scalar field laid out as a 1D array in row-major order
// (x fastest, then y, then z).
type Volume struct {
	// Data holds Width*Height*Depth values
	Data []float64

	// Width, Height and Depth are the voxel counts along x, y and z
	Width, Height, Depth int

	// Spacing is the physical size of each voxel in mm
	Spacing float64
}

// NewVolume allocates a zero-filled volume for the given geometry.
func NewVolume(g VolumeGeometry) *Volume {
	return &Volume{
		Data:    make([]float64, g.Len()),
		Width:   g.NX,
		Height:  g.NY,
		Depth:   g.NZ,
		Spacing: g.SpacingMM,
	}
}

// Geometry reconstructs the voxel geometry of the volume.
func (v *Volume) Geometry() VolumeGeometry {
	return VolumeGeometry{SpacingMM: v.Spacing, NX: v.Width, NY: v.Height, NZ: v.Depth}
}

// Dims returns the voxel counts as (x, y, z).
func (v *Volume) Dims() [3]int { return [3]int{v.Width, v.Height, v.Depth} }

// At returns the value at voxel (x, y, z).
func (v *Volume) At(x, y, z int) float64 {
	return v.Data[z*v.Width*v.Height+y*v.Width+x]
}

// Set stores a value at voxel (x, y, z).
func (v *Volume) Set(x, y, z int, value float64) {
	v.Data[z*v.Width*v.Height+y*v.Width+x] = value
}

// Fill sets every voxel to value.
func (v *Volume) Fill(value float64) {
	for i := range v.Data {
		v.Data[i] = value
	}
}

// AxisName returns "x", "y" or "z" for axis 0, 1 or 2.
func AxisName(axis int) string {
	switch axis {
	case 0:
		return "x"
	case 1:
		return "y"
	case 2:
		return "z"
	default:
		return fmt.Sprintf("axis%d", axis)
	}
}
