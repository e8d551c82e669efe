package tissue

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"tissuesynth/internal/models"
	"tissuesynth/pkg/spectrum"
)

const (
	// FractionTolerance is the allowed deviation of the summed volume
	// fractions of a composition from 1.
	FractionTolerance = 1e-3

	// DefaultMediumTemperatureCelsius is used to derive Grüneisen parameters
	// when a composition does not set a temperature.
	DefaultMediumTemperatureCelsius = 37.0
)

// Option configures a Composition.
type Option func(*Composition)

// WithMediumTemperature sets the temperature in °C used for molecules without
// an explicit Grüneisen parameter.
func WithMediumTemperature(celsius float64) Option {
	return func(c *Composition) { c.temperature = celsius }
}

// WithName labels the composition in errors and logs.
func WithName(name string) Option {
	return func(c *Composition) { c.name = name }
}

// Composition is an immutable mixture of molecules whose volume fractions sum
// to one. It resolves into bulk Properties at a wavelength.
type Composition struct {
	name         string
	segmentation SegmentationClass
	temperature  float64
	molecules    []Molecule
	fractions    []float64

	// wavelength-independent fields, computed once
	constant Properties
}

// NewComposition validates the molecules and precomputes the fields that do
// not depend on wavelength.
func NewComposition(segmentation SegmentationClass, molecules []Molecule, opts ...Option) (*Composition, error) {
	c := &Composition{
		name:         segmentation.String(),
		segmentation: segmentation,
		temperature:  DefaultMediumTemperatureCelsius,
	}
	for _, opt := range opts {
		opt(c)
	}

	component := fmt.Sprintf("composition %q", c.name)
	if len(molecules) == 0 {
		return nil, &models.ConfigurationError{Component: component, Reason: "no molecules"}
	}
	if math.IsNaN(c.temperature) || math.IsInf(c.temperature, 0) {
		return nil, &models.ConfigurationError{Component: component, Reason: "medium temperature must be finite"}
	}

	c.molecules = append([]Molecule(nil), molecules...)
	c.fractions = make([]float64, len(molecules))
	for i, m := range c.molecules {
		if err := m.validate(); err != nil {
			return nil, fmt.Errorf("%s: %w", component, err)
		}
		c.fractions[i] = m.VolumeFraction
	}

	if sum := floats.Sum(c.fractions); math.Abs(sum-1) > FractionTolerance {
		return nil, &models.ConfigurationError{
			Component: component,
			Reason:    fmt.Sprintf("volume fractions sum to %g instead of 1", sum),
		}
	}

	c.constant = c.wavelengthIndependent()
	return c, nil
}

func (c *Composition) wavelengthIndependent() Properties {
	n := len(c.molecules)
	sos := make([]float64, n)
	density := make([]float64, n)
	alpha := make([]float64, n)
	gamma := make([]float64, n)
	var bvf, oxy float64

	derived := GruneisenFromTemperature(c.temperature)
	for i, m := range c.molecules {
		sos[i] = m.SpeedOfSound
		density[i] = m.Density
		alpha[i] = m.AlphaCoeff
		gamma[i] = m.GruneisenParameter
		if math.IsNaN(gamma[i]) {
			gamma[i] = derived
		}
		switch m.Hemoglobin {
		case OxygenatedHemoglobin:
			oxy += m.VolumeFraction
			bvf += m.VolumeFraction
		case DeoxygenatedHemoglobin:
			bvf += m.VolumeFraction
		}
	}

	oxygenation := math.NaN()
	if bvf > 0 {
		oxygenation = oxy / bvf
	}

	return Properties{
		Oxygenation:         oxygenation,
		Segmentation:        float64(c.segmentation),
		GruneisenParameter:  floats.Dot(c.fractions, gamma),
		SpeedOfSound:        floats.Dot(c.fractions, sos),
		Density:             floats.Dot(c.fractions, density),
		AlphaCoeff:          floats.Dot(c.fractions, alpha),
		BloodVolumeFraction: bvf,
	}
}

// Name returns the label of the composition.
func (c *Composition) Name() string { return c.name }

// Segmentation returns the segmentation class of the composition.
func (c *Composition) Segmentation() SegmentationClass { return c.segmentation }

// MediumTemperature returns the temperature in °C.
func (c *Composition) MediumTemperature() float64 { return c.temperature }

// Molecules returns a copy of the constituents.
func (c *Composition) Molecules() []Molecule {
	return append([]Molecule(nil), c.molecules...)
}

// WavelengthIndependent returns the fields that do not depend on wavelength.
// Absorption, scattering and anisotropy are zero.
func (c *Composition) WavelengthIndependent() Properties { return c.constant }

// PropertiesAt resolves the composition at a wavelength. A nil library uses
// spectrum.Default().
func (c *Composition) PropertiesAt(lib *spectrum.Library, wavelengthNM float64) (Properties, error) {
	if lib == nil {
		lib = spectrum.Default()
	}

	n := len(c.molecules)
	mua := make([]float64, n)
	mus := make([]float64, n)
	g := make([]float64, n)
	for i, m := range c.molecules {
		var err error
		if mua[i], err = evaluate(lib, spectrum.Absorption, m.Absorption, wavelengthNM); err != nil {
			return Properties{}, fmt.Errorf("composition %q, molecule %q: %w", c.name, m.Name, err)
		}
		if mus[i], err = evaluate(lib, spectrum.Scattering, m.Scattering, wavelengthNM); err != nil {
			return Properties{}, fmt.Errorf("composition %q, molecule %q: %w", c.name, m.Name, err)
		}
		if g[i], err = evaluate(lib, spectrum.Anisotropy, m.Anisotropy, wavelengthNM); err != nil {
			return Properties{}, fmt.Errorf("composition %q, molecule %q: %w", c.name, m.Name, err)
		}
	}

	p := c.constant
	p.Absorption = floats.Dot(c.fractions, mua)
	p.Scattering = floats.Dot(c.fractions, mus)
	if p.Scattering > 0 {
		weighted := make([]float64, n)
		floats.MulTo(weighted, mus, g)
		p.Anisotropy = floats.Dot(c.fractions, weighted) / p.Scattering
	} else {
		p.Anisotropy = floats.Dot(c.fractions, g)
	}
	return p, nil
}

func evaluate(lib *spectrum.Library, kind spectrum.Kind, ref SpectrumRef, wavelengthNM float64) (float64, error) {
	s, err := ref.resolve(lib, kind)
	if err != nil {
		return 0, err
	}
	return s.ValueAt(wavelengthNM)
}
