package volume

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"

	"tissuesynth/internal/models"
	"tissuesynth/pkg/tissue"
)

// RawHeader describes the files written by SaveRaw.
type RawHeader struct {
	// WavelengthNM is omitted for sets without wavelength-dependent fields
	WavelengthNM *float64 `yaml:"wavelengthNm,omitempty"`

	// Shape is the voxel count along x, y and z
	Shape     [3]int  `yaml:"shape"`
	SpacingMM float64 `yaml:"spacingMm"`

	// Order and DType describe the binary layout of every file
	Order string `yaml:"order"`
	DType string `yaml:"dtype"`

	Fields []RawField `yaml:"fields"`
}

// RawField names one binary volume file.
type RawField struct {
	Name string `yaml:"name"`
	File string `yaml:"file"`
	Unit string `yaml:"unit,omitempty"`
}

const (
	rawOrder = "x-fastest"
	rawDType = "float64le"
)

// RawFileName returns the file a field is written to. Wavelength-dependent
// fields carry the wavelength in their name.
func RawFileName(prop tissue.Property, wavelengthNM float64) string {
	if prop.WavelengthIndependent() || math.IsNaN(wavelengthNM) {
		return prop.String() + ".raw"
	}
	return fmt.Sprintf("%s_%snm.raw", prop, formatWavelength(wavelengthNM))
}

// HeaderFileName returns the name of the header SaveRaw writes for a set.
func HeaderFileName(set *VolumeSet) string {
	if !hasDependent(set) {
		return "volumes.yaml"
	}
	return fmt.Sprintf("volumes_%snm.yaml", formatWavelength(set.WavelengthNM))
}

func formatWavelength(wavelengthNM float64) string {
	return strconv.FormatFloat(wavelengthNM, 'f', -1, 64)
}

func hasDependent(set *VolumeSet) bool {
	for prop := range set.Volumes {
		if !prop.WavelengthIndependent() {
			return !math.IsNaN(set.WavelengthNM)
		}
	}
	return false
}

// SaveRaw writes every volume of the set to dir as little-endian float64
// values in x-fastest order, plus a YAML header. It returns the header path.
func SaveRaw(set *VolumeSet, dir string) (string, error) {
	fields := set.Fields()
	if len(fields) == 0 {
		return "", fmt.Errorf("no volumes to save")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}

	first := set.Volumes[fields[0]]
	header := RawHeader{
		Shape:     first.Dims(),
		SpacingMM: first.Spacing,
		Order:     rawOrder,
		DType:     rawDType,
	}
	if hasDependent(set) {
		wl := set.WavelengthNM
		header.WavelengthNM = &wl
	}

	for _, prop := range fields {
		vol := set.Volumes[prop]
		if vol.Dims() != header.Shape {
			return "", fmt.Errorf("volume %q has shape %v, expected %v", prop, vol.Dims(), header.Shape)
		}
		name := RawFileName(prop, set.WavelengthNM)
		if err := writeRaw(filepath.Join(dir, name), vol.Data); err != nil {
			return "", fmt.Errorf("failed to write %s: %w", name, err)
		}
		header.Fields = append(header.Fields, RawField{Name: prop.String(), File: name, Unit: prop.Unit()})
	}

	data, err := yaml.Marshal(&header)
	if err != nil {
		return "", fmt.Errorf("error marshaling header: %w", err)
	}
	path := filepath.Join(dir, HeaderFileName(set))
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("error writing header: %w", err)
	}
	return path, nil
}

func writeRaw(path string, data []float64) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(f)
	if err := binary.Write(w, binary.LittleEndian, data); err != nil {
		f.Close()
		return err
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// LoadRaw reads a set written by SaveRaw from its header file.
func LoadRaw(headerPath string) (*VolumeSet, error) {
	data, err := os.ReadFile(headerPath)
	if err != nil {
		return nil, fmt.Errorf("error reading header: %w", err)
	}
	var header RawHeader
	if err := yaml.Unmarshal(data, &header); err != nil {
		return nil, fmt.Errorf("error parsing header: %w", err)
	}
	if header.Order != rawOrder || header.DType != rawDType {
		return nil, fmt.Errorf("unsupported layout %s/%s", header.Order, header.DType)
	}

	geom := models.VolumeGeometry{
		SpacingMM: header.SpacingMM,
		NX:        header.Shape[0],
		NY:        header.Shape[1],
		NZ:        header.Shape[2],
	}
	set := &VolumeSet{WavelengthNM: math.NaN(), Volumes: make(map[tissue.Property]*models.Volume)}
	if header.WavelengthNM != nil {
		set.WavelengthNM = *header.WavelengthNM
	}

	dir := filepath.Dir(headerPath)
	for _, field := range header.Fields {
		prop, ok := tissue.ParseProperty(field.Name)
		if !ok {
			return nil, &models.LookupError{Kind: "property", Key: field.Name}
		}
		vol, err := ReadRawVolume(filepath.Join(dir, field.File), geom)
		if err != nil {
			return nil, err
		}
		set.Volumes[prop] = vol
	}
	return set, nil
}

// ReadRawVolume reads one little-endian float64 volume of the given geometry.
func ReadRawVolume(path string, geom models.VolumeGeometry) (*models.Volume, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("error opening volume: %w", err)
	}
	defer f.Close()

	vol := models.NewVolume(geom)
	if err := binary.Read(bufio.NewReader(f), binary.LittleEndian, vol.Data); err != nil {
		if err == io.ErrUnexpectedEOF || err == io.EOF {
			return nil, fmt.Errorf("volume %s is shorter than %d voxels", path, geom.Len())
		}
		return nil, fmt.Errorf("error reading volume %s: %w", path, err)
	}
	return vol, nil
}
