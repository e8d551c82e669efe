// Package visualization renders slices of property volumes as grayscale
// images.
package visualization

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"
	"os"
	"path/filepath"

	"gonum.org/v1/gonum/floats"

	"tissuesynth/internal/models"
	"tissuesynth/pkg/volume"
)

// Viewer extracts slices of one volume. Values are mapped linearly from the
// finite range of the whole volume onto 16-bit gray; undefined voxels are
// black.
type Viewer struct {
	volume *models.Volume

	// lo and hi span the finite values of the volume
	lo, hi float64
}

// NewViewer creates a viewer for vol.
func NewViewer(vol *models.Volume) *Viewer {
	finite := make([]float64, 0, len(vol.Data))
	for _, x := range vol.Data {
		if !math.IsNaN(x) && !math.IsInf(x, 0) {
			finite = append(finite, x)
		}
	}
	v := &Viewer{volume: vol}
	if len(finite) > 0 {
		v.lo, v.hi = floats.Min(finite), floats.Max(finite)
	}
	return v
}

// Range returns the values mapped to black and white.
func (v *Viewer) Range() (float64, float64) { return v.lo, v.hi }

func (v *Viewer) gray(x float64) color.Gray16 {
	if math.IsNaN(x) || math.IsInf(x, 0) || v.hi <= v.lo {
		return color.Gray16{}
	}
	return color.Gray16{Y: uint16(math.Round((x - v.lo) / (v.hi - v.lo) * 65535))}
}

// ExtractSlice extracts a 2D slice perpendicular to axis. An x slice is
// depth wide and height tall, a y slice is width wide and depth tall, a z
// slice is width wide and height tall.
func (v *Viewer) ExtractSlice(axis string, position int) (*image.Gray16, error) {
	vol := v.volume
	if position < 0 {
		return nil, fmt.Errorf("position must be non-negative")
	}

	var img *image.Gray16
	switch axis {
	case "x", "X":
		if position >= vol.Width {
			return nil, fmt.Errorf("position %d exceeds width %d", position, vol.Width)
		}
		img = image.NewGray16(image.Rect(0, 0, vol.Depth, vol.Height))
		for y := 0; y < vol.Height; y++ {
			for z := 0; z < vol.Depth; z++ {
				img.SetGray16(z, y, v.gray(vol.At(position, y, z)))
			}
		}

	case "y", "Y":
		if position >= vol.Height {
			return nil, fmt.Errorf("position %d exceeds height %d", position, vol.Height)
		}
		img = image.NewGray16(image.Rect(0, 0, vol.Width, vol.Depth))
		for z := 0; z < vol.Depth; z++ {
			for x := 0; x < vol.Width; x++ {
				img.SetGray16(x, z, v.gray(vol.At(x, position, z)))
			}
		}

	case "z", "Z":
		if position >= vol.Depth {
			return nil, fmt.Errorf("position %d exceeds depth %d", position, vol.Depth)
		}
		img = image.NewGray16(image.Rect(0, 0, vol.Width, vol.Height))
		for y := 0; y < vol.Height; y++ {
			for x := 0; x < vol.Width; x++ {
				img.SetGray16(x, y, v.gray(vol.At(x, y, position)))
			}
		}

	default:
		return nil, fmt.Errorf("invalid axis: %s (must be x, y, or z)", axis)
	}

	return img, nil
}

// ExtractRegion copies a box of voxels into a new volume.
func (v *Viewer) ExtractRegion(startX, startY, startZ, sizeX, sizeY, sizeZ int) (*models.Volume, error) {
	vol := v.volume
	if startX < 0 || startY < 0 || startZ < 0 {
		return nil, fmt.Errorf("start coordinates must be non-negative")
	}
	if sizeX <= 0 || sizeY <= 0 || sizeZ <= 0 {
		return nil, fmt.Errorf("size dimensions must be positive")
	}
	if startX+sizeX > vol.Width || startY+sizeY > vol.Height || startZ+sizeZ > vol.Depth {
		return nil, fmt.Errorf("region extends beyond volume boundaries")
	}

	region := models.NewVolume(models.VolumeGeometry{SpacingMM: vol.Spacing, NX: sizeX, NY: sizeY, NZ: sizeZ})
	for z := 0; z < sizeZ; z++ {
		for y := 0; y < sizeY; y++ {
			for x := 0; x < sizeX; x++ {
				region.Set(x, y, z, vol.At(startX+x, startY+y, startZ+z))
			}
		}
	}
	return region, nil
}

// SaveSlice saves an extracted slice as a PNG image
func SaveSlice(img image.Image, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	if err := png.Encode(file, img); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

func (v *Viewer) axisLength(axis string) (int, error) {
	switch axis {
	case "x", "X":
		return v.volume.Width, nil
	case "y", "Y":
		return v.volume.Height, nil
	case "z", "Z":
		return v.volume.Depth, nil
	default:
		return 0, fmt.Errorf("invalid axis: %s (must be x, y, or z)", axis)
	}
}

// SaveSliceSequence saves every slice along axis as <prefix>_<axis>_NNN.png.
func (v *Viewer) SaveSliceSequence(axis, outputDir, prefix string) error {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return err
	}
	n, err := v.axisLength(axis)
	if err != nil {
		return err
	}

	for pos := 0; pos < n; pos++ {
		img, err := v.ExtractSlice(axis, pos)
		if err != nil {
			return err
		}
		filename := filepath.Join(outputDir, fmt.Sprintf("%s_%s_%03d.png", prefix, axis, pos))
		if err := SaveSlice(img, filename); err != nil {
			return err
		}
	}
	return nil
}

// SaveCentralSlices saves the central slice along each axis of every volume
// in the set as <field>[_<λ>nm]_<axis>.png and returns the written paths.
func SaveCentralSlices(set *volume.VolumeSet, outputDir string) ([]string, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, err
	}

	var written []string
	for _, prop := range set.Fields() {
		v := NewViewer(set.Get(prop))
		base := volume.RawFileName(prop, set.WavelengthNM)
		base = base[:len(base)-len(filepath.Ext(base))]

		for _, axis := range []string{"x", "y", "z"} {
			n, _ := v.axisLength(axis)
			img, err := v.ExtractSlice(axis, n/2)
			if err != nil {
				return written, fmt.Errorf("%s: %w", prop, err)
			}
			path := filepath.Join(outputDir, fmt.Sprintf("%s_%s.png", base, axis))
			if err := SaveSlice(img, path); err != nil {
				return written, fmt.Errorf("failed to save %s: %w", path, err)
			}
			written = append(written, path)
		}
	}
	return written, nil
}
