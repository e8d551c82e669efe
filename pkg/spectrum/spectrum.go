// Package spectrum provides wavelength-dependent optical spectra (absorption,
// scattering and anisotropy) and a library resolving them by name.
package spectrum

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/interp"

	"tissuesynth/internal/models"
)

// Spectrum maps a wavelength in nm onto a non-negative value.
type Spectrum interface {
	// Name is the canonical library name of the spectrum
	Name() string

	// ValueAt evaluates the spectrum. It fails with a *models.LookupError when
	// the wavelength lies outside the range the spectrum is defined for.
	ValueAt(wavelengthNM float64) (float64, error)
}

// Tabulated is a spectrum sampled at discrete wavelengths and linearly
// interpolated in between. It is undefined outside the sampled range.
type Tabulated struct {
	name        string
	wavelengths []float64
	values      []float64
	fit         interp.PiecewiseLinear
}

// NewTabulated fits a piecewise linear spectrum to the given samples.
// Wavelengths must be strictly increasing and values non-negative.
func NewTabulated(name string, wavelengthsNM, values []float64) (*Tabulated, error) {
	if len(wavelengthsNM) != len(values) {
		return nil, &models.ConfigurationError{
			Component: "spectrum " + name,
			Reason:    fmt.Sprintf("got %d wavelengths but %d values", len(wavelengthsNM), len(values)),
		}
	}
	if len(wavelengthsNM) < 2 {
		return nil, &models.ConfigurationError{
			Component: "spectrum " + name,
			Reason:    "at least two samples are required",
		}
	}
	if !sort.Float64sAreSorted(wavelengthsNM) {
		return nil, &models.ConfigurationError{
			Component: "spectrum " + name,
			Reason:    "wavelengths must be increasing",
		}
	}
	for i, v := range values {
		if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, &models.ConfigurationError{
				Component: "spectrum " + name,
				Reason:    fmt.Sprintf("value %g at %g nm is not a finite non-negative number", v, wavelengthsNM[i]),
			}
		}
	}

	t := &Tabulated{
		name:        name,
		wavelengths: append([]float64(nil), wavelengthsNM...),
		values:      append([]float64(nil), values...),
	}
	if err := t.fit.Fit(t.wavelengths, t.values); err != nil {
		return nil, &models.ConfigurationError{
			Component: "spectrum " + name,
			Reason:    err.Error(),
		}
	}
	return t, nil
}

func (t *Tabulated) Name() string { return t.name }

// Range returns the first and last sampled wavelength.
func (t *Tabulated) Range() (float64, float64) {
	return t.wavelengths[0], t.wavelengths[len(t.wavelengths)-1]
}

func (t *Tabulated) ValueAt(wavelengthNM float64) (float64, error) {
	if err := checkWavelength(wavelengthNM); err != nil {
		return 0, err
	}
	lo, hi := t.Range()
	if wavelengthNM < lo || wavelengthNM > hi {
		return 0, &models.LookupError{
			Kind:  "spectrum sample",
			Key:   fmt.Sprintf("%s at %g nm", t.name, wavelengthNM),
			Valid: []string{fmt.Sprintf("%g-%g nm", lo, hi)},
		}
	}
	v := t.fit.Predict(wavelengthNM)
	if v < 0 {
		v = 0
	}
	return v, nil
}

// PowerLaw is a spectrum of the form A * (λ / ReferenceNM)^(-B).
type PowerLaw struct {
	name        string
	A           float64
	B           float64
	ReferenceNM float64
}

// NewPowerLaw creates a power-law spectrum. A must be non-negative and the
// reference wavelength positive.
func NewPowerLaw(name string, a, b, referenceNM float64) (*PowerLaw, error) {
	if a < 0 || !(referenceNM > 0) {
		return nil, &models.ConfigurationError{
			Component: "spectrum " + name,
			Reason:    fmt.Sprintf("invalid power law a=%g reference=%g nm", a, referenceNM),
		}
	}
	return &PowerLaw{name: name, A: a, B: b, ReferenceNM: referenceNM}, nil
}

func (p *PowerLaw) Name() string { return p.name }

func (p *PowerLaw) ValueAt(wavelengthNM float64) (float64, error) {
	if err := checkWavelength(wavelengthNM); err != nil {
		return 0, err
	}
	return p.A * math.Pow(wavelengthNM/p.ReferenceNM, -p.B), nil
}

// Constant is a wavelength-independent spectrum.
type Constant struct {
	name  string
	Value float64
}

// NewConstant creates a constant spectrum.
func NewConstant(name string, value float64) (*Constant, error) {
	if value < 0 || math.IsNaN(value) || math.IsInf(value, 0) {
		return nil, &models.ConfigurationError{
			Component: "spectrum " + name,
			Reason:    fmt.Sprintf("constant value %g is not a finite non-negative number", value),
		}
	}
	return &Constant{name: name, Value: value}, nil
}

func (c *Constant) Name() string { return c.name }

func (c *Constant) ValueAt(wavelengthNM float64) (float64, error) {
	if err := checkWavelength(wavelengthNM); err != nil {
		return 0, err
	}
	return c.Value, nil
}

// Func adapts an analytic expression into a spectrum.
type Func struct {
	name string
	f    func(wavelengthNM float64) float64
}

// NewFunc wraps f, which must be non-negative for positive wavelengths.
func NewFunc(name string, f func(wavelengthNM float64) float64) *Func {
	return &Func{name: name, f: f}
}

func (f *Func) Name() string { return f.name }

func (f *Func) ValueAt(wavelengthNM float64) (float64, error) {
	if err := checkWavelength(wavelengthNM); err != nil {
		return 0, err
	}
	return math.Max(0, f.f(wavelengthNM)), nil
}

func checkWavelength(wavelengthNM float64) error {
	if !(wavelengthNM > 0) || math.IsInf(wavelengthNM, 0) {
		return &models.ConfigurationError{
			Component: "wavelength",
			Reason:    fmt.Sprintf("wavelength must be a positive finite number of nm, got %g", wavelengthNM),
		}
	}
	return nil
}
