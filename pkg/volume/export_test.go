package volume

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"gopkg.in/yaml.v3"

	"tissuesynth/pkg/tissue"
)

func TestSaveAndLoadRaw(t *testing.T) {
	must := mustComposition(t)
	set := create(t, nil, must(tissue.Blood(0.8)), 797.5)
	dir := t.TempDir()

	headerPath, err := SaveRaw(set, dir)
	if err != nil {
		t.Fatalf("Failed to save volumes: %v", err)
	}
	if filepath.Base(headerPath) != "volumes_797.5nm.yaml" {
		t.Errorf("Expected header volumes_797.5nm.yaml, got %s", filepath.Base(headerPath))
	}

	for _, name := range []string{"mua_797.5nm.raw", "g_797.5nm.raw", "density.raw", "seg.raw"} {
		info, err := os.Stat(filepath.Join(dir, name))
		if err != nil {
			t.Fatalf("Expected %s to be written: %v", name, err)
		}
		if info.Size() != int64(8*testGeometry(t).Len()) {
			t.Errorf("Expected %s to hold %d bytes, got %d", name, 8*testGeometry(t).Len(), info.Size())
		}
	}

	data, err := os.ReadFile(headerPath)
	if err != nil {
		t.Fatalf("Failed to read header: %v", err)
	}
	var header RawHeader
	if err := yaml.Unmarshal(data, &header); err != nil {
		t.Fatalf("Failed to parse header: %v", err)
	}
	if header.Shape != [3]int{10, 10, 10} || header.WavelengthNM == nil || *header.WavelengthNM != 797.5 {
		t.Errorf("Unexpected header %+v", header)
	}

	loaded, err := LoadRaw(headerPath)
	if err != nil {
		t.Fatalf("Failed to load volumes: %v", err)
	}
	if loaded.WavelengthNM != 797.5 || len(loaded.Volumes) != len(set.Volumes) {
		t.Fatalf("Expected %d fields at 797.5 nm, got %d at %g", len(set.Volumes), len(loaded.Volumes), loaded.WavelengthNM)
	}
	for prop, vol := range set.Volumes {
		got := loaded.Get(prop)
		for i, v := range vol.Data {
			if math.Float64bits(v) != math.Float64bits(got.Data[i]) {
				t.Fatalf("%s differs at voxel %d: saved %g, loaded %g", prop, i, v, got.Data[i])
			}
		}
	}
}

func TestIndependentSetFileNames(t *testing.T) {
	must := mustComposition(t)
	c, err := NewCreator(testGeometry(t), nil, must(tissue.Water()), nil, Options{})
	if err != nil {
		t.Fatalf("Failed to create creator: %v", err)
	}
	plan, err := c.Plan()
	if err != nil {
		t.Fatalf("Failed to plan: %v", err)
	}

	set := plan.Independent()
	if HeaderFileName(set) != "volumes.yaml" {
		t.Errorf("Expected volumes.yaml for wavelength-independent fields, got %s", HeaderFileName(set))
	}
	if name := RawFileName(tissue.Absorption, 700); name != "mua_700nm.raw" {
		t.Errorf("Expected mua_700nm.raw, got %s", name)
	}
	if name := RawFileName(tissue.SpeedOfSound, 700); name != "sos.raw" {
		t.Errorf("Expected sos.raw, got %s", name)
	}

	path, err := SaveRaw(set, t.TempDir())
	if err != nil {
		t.Fatalf("Failed to save volumes: %v", err)
	}
	loaded, err := LoadRaw(path)
	if err != nil {
		t.Fatalf("Failed to load volumes: %v", err)
	}
	if !math.IsNaN(loaded.WavelengthNM) {
		t.Errorf("Expected no wavelength, got %g", loaded.WavelengthNM)
	}
}

func TestSummarize(t *testing.T) {
	must := mustComposition(t)
	water := must(tissue.Water())
	set := create(t, nil, water, 800)

	for _, s := range Summarize(set) {
		switch s.Field {
		case tissue.SpeedOfSound:
			want := water.WavelengthIndependent().SpeedOfSound
			if math.Abs(s.Mean-want) > 1e-9 || s.StdDev > 1e-9 || s.Min != s.Max {
				t.Errorf("Expected a uniform speed of sound %g, got %+v", want, s)
			}
		case tissue.Oxygenation:
			if s.Undefined != testGeometry(t).Len() || !math.IsNaN(s.Mean) {
				t.Errorf("Expected oxygenation to be undefined everywhere, got %+v", s)
			}
		}
	}
}
