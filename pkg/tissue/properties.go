// Package tissue resolves molecular compositions into bulk tissue properties
// at a given wavelength.
package tissue

import (
	"fmt"
	"math"
)

// Property identifies one field of the fixed tissue property schema. Each
// property is written to its own output volume.
type Property int

const (
	Absorption Property = iota
	Scattering
	Anisotropy
	Oxygenation
	Segmentation
	GruneisenParameter
	SpeedOfSound
	Density
	AlphaCoeff
	BloodVolumeFraction
	SensorMask
	DirectivityAngle
)

// AllProperties lists the schema in output order.
var AllProperties = []Property{
	Absorption, Scattering, Anisotropy, Oxygenation, Segmentation, GruneisenParameter,
	SpeedOfSound, Density, AlphaCoeff, BloodVolumeFraction, SensorMask, DirectivityAngle,
}

var propertyNames = map[Property]string{
	Absorption:          "mua",
	Scattering:          "mus",
	Anisotropy:          "g",
	Oxygenation:         "oxy",
	Segmentation:        "seg",
	GruneisenParameter:  "gamma",
	SpeedOfSound:        "sos",
	Density:             "density",
	AlphaCoeff:          "alpha_coeff",
	BloodVolumeFraction: "bvf",
	SensorMask:          "sensor_mask",
	DirectivityAngle:    "directivity_angle",
}

var propertyUnits = map[Property]string{
	Absorption:          "1/cm",
	Scattering:          "1/cm",
	Anisotropy:          "",
	Oxygenation:         "",
	Segmentation:        "",
	GruneisenParameter:  "",
	SpeedOfSound:        "m/s",
	Density:             "kg/m^3",
	AlphaCoeff:          "dB/cm/MHz",
	BloodVolumeFraction: "",
	SensorMask:          "",
	DirectivityAngle:    "rad",
}

// String returns the canonical field name used for output volumes.
func (p Property) String() string {
	if name, ok := propertyNames[p]; ok {
		return name
	}
	return fmt.Sprintf("property(%d)", int(p))
}

// Unit returns the physical unit of the property, empty for dimensionless fields.
func (p Property) Unit() string { return propertyUnits[p] }

// WavelengthIndependent reports whether the property is constant across
// wavelengths and therefore only computed once per run.
func (p Property) WavelengthIndependent() bool {
	switch p {
	case Absorption, Scattering, Anisotropy:
		return false
	default:
		return true
	}
}

// MayBeUndefined reports whether NaN is a legitimate value of the property.
func (p Property) MayBeUndefined() bool { return p == Oxygenation }

// ParseProperty maps a canonical field name back onto a Property.
func ParseProperty(name string) (Property, bool) {
	for p, n := range propertyNames {
		if n == name {
			return p, true
		}
	}
	return 0, false
}

// Properties holds one scalar per property of the schema. Oxygenation is NaN
// for tissue without hemoglobin.
type Properties struct {
	Absorption          float64
	Scattering          float64
	Anisotropy          float64
	Oxygenation         float64
	Segmentation        float64
	GruneisenParameter  float64
	SpeedOfSound        float64
	Density             float64
	AlphaCoeff          float64
	BloodVolumeFraction float64
	SensorMask          float64
	DirectivityAngle    float64
}

// Get returns the value of one property.
func (p Properties) Get(prop Property) float64 {
	switch prop {
	case Absorption:
		return p.Absorption
	case Scattering:
		return p.Scattering
	case Anisotropy:
		return p.Anisotropy
	case Oxygenation:
		return p.Oxygenation
	case Segmentation:
		return p.Segmentation
	case GruneisenParameter:
		return p.GruneisenParameter
	case SpeedOfSound:
		return p.SpeedOfSound
	case Density:
		return p.Density
	case AlphaCoeff:
		return p.AlphaCoeff
	case BloodVolumeFraction:
		return p.BloodVolumeFraction
	case SensorMask:
		return p.SensorMask
	case DirectivityAngle:
		return p.DirectivityAngle
	default:
		return math.NaN()
	}
}

// With returns a copy of p with one property replaced.
func (p Properties) With(prop Property, value float64) Properties {
	switch prop {
	case Absorption:
		p.Absorption = value
	case Scattering:
		p.Scattering = value
	case Anisotropy:
		p.Anisotropy = value
	case Oxygenation:
		p.Oxygenation = value
	case Segmentation:
		p.Segmentation = value
	case GruneisenParameter:
		p.GruneisenParameter = value
	case SpeedOfSound:
		p.SpeedOfSound = value
	case Density:
		p.Density = value
	case AlphaCoeff:
		p.AlphaCoeff = value
	case BloodVolumeFraction:
		p.BloodVolumeFraction = value
	case SensorMask:
		p.SensorMask = value
	case DirectivityAngle:
		p.DirectivityAngle = value
	}
	return p
}

// Unset returns a Properties value with every field NaN, used by reference
// tables to mark fields that are not checked.
func Unset() Properties {
	nan := math.NaN()
	return Properties{
		Absorption: nan, Scattering: nan, Anisotropy: nan, Oxygenation: nan,
		Segmentation: nan, GruneisenParameter: nan, SpeedOfSound: nan, Density: nan,
		AlphaCoeff: nan, BloodVolumeFraction: nan, SensorMask: nan, DirectivityAngle: nan,
	}
}
