package visualization

import (
	"fmt"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"testing"

	"tissuesynth/internal/models"
	"tissuesynth/pkg/tissue"
	"tissuesynth/pkg/volume"
)

func testVolume(width, height, depth int, fill func(x, y, z int) float64) *models.Volume {
	vol := models.NewVolume(models.VolumeGeometry{SpacingMM: 0.5, NX: width, NY: height, NZ: depth})
	for z := 0; z < depth; z++ {
		for y := 0; y < height; y++ {
			for x := 0; x < width; x++ {
				vol.Set(x, y, z, fill(x, y, z))
			}
		}
	}
	return vol
}

// TestNewViewer verifies that the gray range spans the finite values only
func TestNewViewer(t *testing.T) {
	vol := testVolume(4, 3, 2, func(x, y, z int) float64 { return float64(x + y + z) })
	vol.Set(0, 0, 0, math.NaN())
	vol.Set(1, 0, 0, math.Inf(1))

	viewer := NewViewer(vol)
	lo, hi := viewer.Range()
	if lo != 1 || hi != 6 {
		t.Errorf("Expected range [1, 6], got [%g, %g]", lo, hi)
	}
}

// TestExtractSlice verifies that slices are correctly extracted from the volume
func TestExtractSlice(t *testing.T) {
	width, height, depth := 10, 8, 5

	// each slice along z has a unique value
	vol := testVolume(width, height, depth, func(_, _, z int) float64 { return float64(z) })
	viewer := NewViewer(vol)

	for z := 0; z < depth; z++ {
		img, err := viewer.ExtractSlice("z", z)
		if err != nil {
			t.Fatalf("Failed to extract Z slice at position %d: %v", z, err)
		}

		bounds := img.Bounds()
		if bounds.Dx() != width || bounds.Dy() != height {
			t.Errorf("Expected Z slice dimensions %dx%d, got %dx%d", width, height, bounds.Dx(), bounds.Dy())
		}

		expected := uint16(math.Round(float64(z) / float64(depth-1) * 65535))
		if got := img.Gray16At(width/2, height/2).Y; got != expected {
			t.Errorf("Expected Z slice value %d at center, got %d", expected, got)
		}
	}

	imgX, err := viewer.ExtractSlice("x", width/2)
	if err != nil {
		t.Fatalf("Failed to extract X slice: %v", err)
	}
	if b := imgX.Bounds(); b.Dx() != depth || b.Dy() != height {
		t.Errorf("Expected X slice dimensions %dx%d, got %dx%d", depth, height, b.Dx(), b.Dy())
	}
	if got := imgX.Gray16At(depth-1, 0).Y; got != 65535 {
		t.Errorf("Expected the deepest voxel to be white, got %d", got)
	}

	imgY, err := viewer.ExtractSlice("y", height/2)
	if err != nil {
		t.Fatalf("Failed to extract Y slice: %v", err)
	}
	if b := imgY.Bounds(); b.Dx() != width || b.Dy() != depth {
		t.Errorf("Expected Y slice dimensions %dx%d, got %dx%d", width, depth, b.Dx(), b.Dy())
	}

	if _, err := viewer.ExtractSlice("invalid", 0); err == nil {
		t.Error("Expected error for invalid axis, got nil")
	}
	if _, err := viewer.ExtractSlice("z", depth); err == nil {
		t.Error("Expected error for out of bounds position, got nil")
	}
}

// TestUniformAndUndefinedVoxels verifies that flat volumes and NaN render black
func TestUniformAndUndefinedVoxels(t *testing.T) {
	vol := testVolume(3, 3, 3, func(_, _, _ int) float64 { return 0.7 })
	vol.Set(1, 1, 1, math.NaN())

	img, err := NewViewer(vol).ExtractSlice("z", 1)
	if err != nil {
		t.Fatalf("Failed to extract slice: %v", err)
	}
	for y := 0; y < 3; y++ {
		for x := 0; x < 3; x++ {
			if got := img.Gray16At(x, y).Y; got != 0 {
				t.Errorf("Expected black at (%d,%d), got %d", x, y, got)
			}
		}
	}
}

// TestExtractRegion verifies that 3D regions are correctly extracted
func TestExtractRegion(t *testing.T) {
	width, height, depth := 10, 10, 5
	vol := testVolume(width, height, depth, func(x, y, z int) float64 {
		return float64(x)/float64(width) + float64(y)/float64(height) + float64(z)/float64(depth)
	})
	viewer := NewViewer(vol)

	startX, startY, startZ := 2, 3, 1
	sizeX, sizeY, sizeZ := 4, 3, 2
	region, err := viewer.ExtractRegion(startX, startY, startZ, sizeX, sizeY, sizeZ)
	if err != nil {
		t.Fatalf("Failed to extract region: %v", err)
	}

	if region.Dims() != [3]int{sizeX, sizeY, sizeZ} || region.Spacing != vol.Spacing {
		t.Errorf("Expected a %dx%dx%d region at %g mm, got %v at %g mm",
			sizeX, sizeY, sizeZ, vol.Spacing, region.Dims(), region.Spacing)
	}
	for z := 0; z < sizeZ; z++ {
		for y := 0; y < sizeY; y++ {
			for x := 0; x < sizeX; x++ {
				if region.At(x, y, z) != vol.At(startX+x, startY+y, startZ+z) {
					t.Errorf("Region value mismatch at (%d,%d,%d): expected %f, got %f",
						x, y, z, vol.At(startX+x, startY+y, startZ+z), region.At(x, y, z))
				}
			}
		}
	}

	if _, err := viewer.ExtractRegion(-1, 0, 0, 1, 1, 1); err == nil {
		t.Error("Expected error for negative start coordinate, got nil")
	}
	if _, err := viewer.ExtractRegion(0, 0, 0, 0, 1, 1); err == nil {
		t.Error("Expected error for zero size, got nil")
	}
	if _, err := viewer.ExtractRegion(width-1, 0, 0, 2, 1, 1); err == nil {
		t.Error("Expected error for region extending beyond volume, got nil")
	}
}

// TestSaveSliceSequence verifies that a sequence of slices can be saved
func TestSaveSliceSequence(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping file I/O test in short mode")
	}

	width, height, depth := 5, 5, 3
	viewer := NewViewer(testVolume(width, height, depth, func(x, _, _ int) float64 { return float64(x) }))

	outputDir := filepath.Join(t.TempDir(), "slices")
	if err := viewer.SaveSliceSequence("z", outputDir, "mua"); err != nil {
		t.Fatalf("Failed to save slice sequence: %v", err)
	}

	for z := 0; z < depth; z++ {
		filename := filepath.Join(outputDir, fmt.Sprintf("mua_z_%03d.png", z))
		f, err := os.Open(filename)
		if err != nil {
			t.Fatalf("Expected slice file %s: %v", filename, err)
		}
		img, err := png.Decode(f)
		f.Close()
		if err != nil {
			t.Fatalf("Failed to decode %s: %v", filename, err)
		}
		if b := img.Bounds(); b.Dx() != width || b.Dy() != height {
			t.Errorf("Expected %dx%d image, got %dx%d", width, height, b.Dx(), b.Dy())
		}
	}

	if err := viewer.SaveSliceSequence("invalid", outputDir, "mua"); err == nil {
		t.Error("Expected error for invalid axis, got nil")
	}
}

// TestSaveCentralSlices verifies that every field of a set is rendered
func TestSaveCentralSlices(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping file I/O test in short mode")
	}

	geom, err := models.NewVolumeGeometry(1, 4, 4, 4)
	if err != nil {
		t.Fatalf("Failed to create geometry: %v", err)
	}
	water, err := tissue.Water()
	if err != nil {
		t.Fatalf("Failed to create composition: %v", err)
	}
	set, err := volume.CreateVolumes(geom, nil, water, nil, 800, volume.Options{})
	if err != nil {
		t.Fatalf("Failed to create volumes: %v", err)
	}

	dir := t.TempDir()
	written, err := SaveCentralSlices(set, dir)
	if err != nil {
		t.Fatalf("Failed to save slices: %v", err)
	}
	if len(written) != 3*len(set.Volumes) {
		t.Errorf("Expected %d images, got %d", 3*len(set.Volumes), len(written))
	}
	for _, name := range []string{"mua_800nm_z.png", "sos_x.png", "seg_y.png"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Errorf("Expected %s to be written: %v", name, err)
		}
	}
}
