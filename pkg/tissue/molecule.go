package tissue

import (
	"fmt"
	"math"

	"tissuesynth/internal/models"
	"tissuesynth/pkg/spectrum"
)

// HemoglobinKind marks molecules that count towards the blood volume fraction.
type HemoglobinKind int

const (
	NotHemoglobin HemoglobinKind = iota
	OxygenatedHemoglobin
	DeoxygenatedHemoglobin
)

// SpectrumRef points a molecule at a spectrum, either by library name or by
// an inline spectrum that bypasses the library.
type SpectrumRef struct {
	Name     string
	Spectrum spectrum.Spectrum
}

// Named references a library spectrum.
func Named(name string) SpectrumRef { return SpectrumRef{Name: name} }

// Inline references a spectrum that is not part of any library.
func Inline(s spectrum.Spectrum) SpectrumRef { return SpectrumRef{Name: s.Name(), Spectrum: s} }

func (r SpectrumRef) resolve(lib *spectrum.Library, kind spectrum.Kind) (spectrum.Spectrum, error) {
	if r.Spectrum != nil {
		return r.Spectrum, nil
	}
	return lib.Get(kind, r.Name)
}

// Molecule is one constituent of a composition.
type Molecule struct {
	Name string

	// VolumeFraction in [0, 1]
	VolumeFraction float64

	Absorption SpectrumRef
	Scattering SpectrumRef
	Anisotropy SpectrumRef

	// SpeedOfSound in m/s
	SpeedOfSound float64

	// Density in kg/m³
	Density float64

	// AlphaCoeff is the acoustic attenuation in dB/cm/MHz
	AlphaCoeff float64

	// GruneisenParameter, or NaN to derive it from the medium temperature
	GruneisenParameter float64

	Hemoglobin HemoglobinKind
}

// WithAcoustics returns a copy carrying the given acoustic constants.
func (m Molecule) WithAcoustics(a Acoustics) Molecule {
	m.SpeedOfSound = a.SpeedOfSound
	m.Density = a.Density
	m.AlphaCoeff = a.AlphaCoeff
	return m
}

// WithScattering returns a copy using other scattering and anisotropy spectra.
func (m Molecule) WithScattering(scattering, anisotropy SpectrumRef) Molecule {
	m.Scattering = scattering
	m.Anisotropy = anisotropy
	return m
}

func (m Molecule) validate() error {
	component := fmt.Sprintf("molecule %q", m.Name)
	if m.VolumeFraction < 0 || m.VolumeFraction > 1 || math.IsNaN(m.VolumeFraction) {
		return &models.ConfigurationError{
			Component: component,
			Reason:    fmt.Sprintf("volume fraction %g outside [0, 1]", m.VolumeFraction),
		}
	}
	for _, ref := range []SpectrumRef{m.Absorption, m.Scattering, m.Anisotropy} {
		if ref.Name == "" && ref.Spectrum == nil {
			return &models.ConfigurationError{Component: component, Reason: "missing spectrum reference"}
		}
	}
	acoustic := []struct {
		name  string
		value float64
	}{
		{"speed of sound", m.SpeedOfSound},
		{"density", m.Density},
		{"alpha coeff", m.AlphaCoeff},
	}
	for _, a := range acoustic {
		if a.value < 0 || math.IsNaN(a.value) || math.IsInf(a.value, 0) {
			return &models.ConfigurationError{
				Component: component,
				Reason:    fmt.Sprintf("%s %g is not a finite non-negative number", a.name, a.value),
			}
		}
	}
	if math.IsInf(m.GruneisenParameter, 0) {
		return &models.ConfigurationError{Component: component, Reason: "infinite Grüneisen parameter"}
	}
	return nil
}

// Acoustics groups the acoustic constants shared by the molecules of a tissue.
type Acoustics struct {
	SpeedOfSound float64
	Density      float64
	AlphaCoeff   float64
}

// GruneisenFromTemperature returns the Grüneisen parameter of water-based
// tissue at the given temperature in °C.
func GruneisenFromTemperature(celsius float64) float64 {
	return 0.0043 + 0.0053*celsius
}
