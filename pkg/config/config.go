// Package config provides configuration loading and management for tissuesynth.
// It handles loading scene descriptions from YAML files and provides default values.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"gopkg.in/yaml.v3"

	"tissuesynth/pkg/tissue"
)

// Config represents a scene description loaded from YAML
type Config struct {
	// Volume describes the voxel grid
	Volume struct {
		// SpacingMM is the isotropic voxel edge length in mm
		SpacingMM float64 `yaml:"spacingMm"`

		// Extents of the volume in mm
		XMM float64 `yaml:"xMm"`
		YMM float64 `yaml:"yMm"`
		ZMM float64 `yaml:"zMm"`
	} `yaml:"volume"`

	// Wavelengths in nm at which volumes are created
	Wavelengths []float64 `yaml:"wavelengths"`

	// RandomSeed seeds the random deformation and vessel trees without an
	// explicit seed
	RandomSeed uint64 `yaml:"randomSeed"`

	// MediumTemperatureCelsius derives Grüneisen parameters of every tissue
	MediumTemperatureCelsius float64 `yaml:"mediumTemperatureCelsius"`

	// IgnoreQAAssertions skips the sanity check of the created volumes
	IgnoreQAAssertions bool `yaml:"ignoreQaAssertions"`

	// Processing parameters
	Processing struct {
		// NumCores specifies how many structures are rasterized concurrently
		NumCores int `yaml:"numCores"`
	} `yaml:"processing"`

	// Output parameters
	Output struct {
		// Directory receives the raw volumes
		Directory string `yaml:"directory"`

		// ExtractSlices saves PNG slices of every created volume
		ExtractSlices bool `yaml:"extractSlices"`

		// Verbose controls the level of logging output
		Verbose bool `yaml:"verbose"`
	} `yaml:"output"`

	Deformation DeformationConfig `yaml:"deformation"`

	// Background fills every voxel not claimed by a structure
	Background TissueConfig `yaml:"background"`

	Structures []StructureConfig `yaml:"structures"`

	// Segmentation replaces the structures by a label volume when File is set
	Segmentation SegmentationConfig `yaml:"segmentation,omitempty"`
}

// SegmentationConfig maps the labels of a raw float64 label volume, shaped
// like the configured volume, onto tissues.
type SegmentationConfig struct {
	File   string               `yaml:"file,omitempty"`
	Labels map[int]TissueConfig `yaml:"labels,omitempty"`
}

// Deformation types.
const (
	DeformationNone      = "none"
	DeformationRandom    = "random"
	DeformationMesh      = "mesh"
	DeformationScattered = "scattered"
)

// DeformationConfig selects the surface deformation applied to adhering
// structures.
type DeformationConfig struct {
	// Type is one of none, random, mesh or scattered
	Type string `yaml:"type"`

	// Random deformation parameters
	MaxElevationMM float64 `yaml:"maxElevationMm,omitempty"`
	Nodes          int     `yaml:"nodes,omitempty"`
	CutoffCycles   int     `yaml:"cutoffCycles,omitempty"`

	// Mesh deformation nodes; Elevations is x fastest
	XS         []float64 `yaml:"xs,omitempty"`
	YS         []float64 `yaml:"ys,omitempty"`
	Elevations []float64 `yaml:"elevations,omitempty"`

	// Scattered deformation samples
	Samples   []SampleConfig `yaml:"samples,omitempty"`
	Neighbors int            `yaml:"neighbors,omitempty"`
}

// SampleConfig is one scattered elevation measurement in mm.
type SampleConfig struct {
	X         float64 `yaml:"x"`
	Y         float64 `yaml:"y"`
	Elevation float64 `yaml:"elevation"`
}

// TissueConfig names a tissue from the built-in library. Unset parameters
// take the tissue's default.
type TissueConfig struct {
	Name string `yaml:"name"`

	Oxygenation         *float64 `yaml:"oxygenation,omitempty"`
	BloodVolumeFraction *float64 `yaml:"bloodVolumeFraction,omitempty"`
	MelaninFraction     *float64 `yaml:"melaninFraction,omitempty"`
	AgentFraction       *float64 `yaml:"agentFraction,omitempty"`

	// Optical properties of the constant tissue, in 1/cm
	Absorption float64 `yaml:"absorption,omitempty"`
	Scattering float64 `yaml:"scattering,omitempty"`
	Anisotropy float64 `yaml:"anisotropy,omitempty"`
}

// Params converts the configuration into library parameters.
func (t TissueConfig) Params() tissue.TissueParams {
	return tissue.TissueParams{
		Oxygenation:         t.Oxygenation,
		BloodVolumeFraction: t.BloodVolumeFraction,
		MelaninFraction:     t.MelaninFraction,
		AgentFraction:       t.AgentFraction,
		Absorption:          t.Absorption,
		Scattering:          t.Scattering,
		Anisotropy:          t.Anisotropy,
	}
}

// Vec is a point or direction in mm.
type Vec [3]float64

// Structure types.
const (
	TypeLayer          = "layer"
	TypeCircularTube   = "circularTube"
	TypeEllipticalTube = "ellipticalTube"
	TypeSphere         = "sphere"
	TypeParallelepiped = "parallelepiped"
	TypeCuboid         = "cuboid"
	TypeVesselTree     = "vesselTree"
)

// StructureConfig describes one structure. Which geometry fields are read
// depends on Type.
type StructureConfig struct {
	Name                 string       `yaml:"name"`
	Type                 string       `yaml:"type"`
	Priority             float64      `yaml:"priority"`
	PartialVolume        bool         `yaml:"partialVolume"`
	AdheresToDeformation bool         `yaml:"adheresToDeformation"`
	Tissue               TissueConfig `yaml:"tissue"`

	// layer
	StartZ float64 `yaml:"startZ,omitempty"`
	EndZ   float64 `yaml:"endZ,omitempty"`

	// tubes, cuboid, parallelepiped and vessel tree
	Start *Vec `yaml:"start,omitempty"`
	End   *Vec `yaml:"end,omitempty"`

	Radius       float64 `yaml:"radius,omitempty"`
	Eccentricity float64 `yaml:"eccentricity,omitempty"`
	Bounded      bool    `yaml:"bounded,omitempty"`

	// sphere
	Center *Vec `yaml:"center,omitempty"`

	// cuboid
	Extent *Vec `yaml:"extent,omitempty"`

	// parallelepiped
	Edges []Vec `yaml:"edges,omitempty"`

	// vessel tree
	Direction             *Vec    `yaml:"direction,omitempty"`
	BifurcationLength     float64 `yaml:"bifurcationLength,omitempty"`
	CurvatureFactor       float64 `yaml:"curvatureFactor,omitempty"`
	RadiusVariationFactor float64 `yaml:"radiusVariationFactor,omitempty"`
	BifurcationAngleDeg   float64 `yaml:"bifurcationAngleDeg,omitempty"`
	MaxBifurcationDepth   *int    `yaml:"maxBifurcationDepth,omitempty"`
	Seed                  *uint64 `yaml:"seed,omitempty"`
}

func vec(x, y, z float64) *Vec { return &Vec{x, y, z} }

func ptr[T any](v T) *T { return &v }

// DefaultConfig returns a configuration with default values: a forearm-like
// scene with skin, muscle and two vessels.
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Volume.SpacingMM = 0.5
	cfg.Volume.XMM = 20
	cfg.Volume.YMM = 20
	cfg.Volume.ZMM = 20

	cfg.Wavelengths = []float64{700, 800, 900}
	cfg.RandomSeed = 4711
	cfg.MediumTemperatureCelsius = tissue.DefaultMediumTemperatureCelsius

	cfg.Processing.NumCores = runtime.NumCPU() // Use all available cores by default

	cfg.Output.Directory = "volumes"
	cfg.Output.ExtractSlices = false
	cfg.Output.Verbose = true

	cfg.Deformation = DeformationConfig{Type: DeformationNone}

	cfg.Background = TissueConfig{Name: "heavy_water"}

	cfg.Structures = []StructureConfig{
		{
			Name: "muscle", Type: TypeLayer, Priority: 1, PartialVolume: true, AdheresToDeformation: true,
			Tissue: TissueConfig{Name: "muscle"},
			StartZ: 2, EndZ: 20,
		},
		{
			Name: "epidermis", Type: TypeLayer, Priority: 8, PartialVolume: true, AdheresToDeformation: true,
			Tissue: TissueConfig{Name: "epidermis", MelaninFraction: ptr(0.014)},
			StartZ: 2, EndZ: 2.1,
		},
		{
			Name: "artery", Type: TypeCircularTube, Priority: 3, PartialVolume: true, AdheresToDeformation: true,
			Tissue: TissueConfig{Name: "blood", Oxygenation: ptr(0.98)},
			Start:  vec(0, 10, 10), End: vec(20, 10, 10), Radius: 1.5,
		},
		{
			Name: "vein", Type: TypeCircularTube, Priority: 3, PartialVolume: true, AdheresToDeformation: true,
			Tissue: TissueConfig{Name: "blood", Oxygenation: ptr(0.6)},
			Start:  vec(0, 14, 12), End: vec(20, 14, 12), Radius: 1,
		},
	}

	return cfg
}

// LoadConfig loads configuration from a YAML file
// If the file doesn't exist, it returns the default configuration
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	// Check if config file exists
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	// Parse YAML over the defaults; lists in the file replace the default lists
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	return cfg, nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(cfg *Config, configPath string) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}

	return nil
}

// CreateDefaultConfigFile creates a default configuration file at the specified path
func CreateDefaultConfigFile(configPath string) error {
	cfg := DefaultConfig()
	return SaveConfig(cfg, configPath)
}
