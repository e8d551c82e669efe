package tissue

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"tissuesynth/pkg/spectrum"
)

// DefaultReferenceTolerance is the relative deviation accepted by
// CompareAgainstReference.
const DefaultReferenceTolerance = 0.1

// Reference maps a wavelength in nm onto the expected properties. NaN fields
// are not checked.
type Reference map[float64]Properties

// Wavelengths returns the sorted wavelengths of the reference.
func (r Reference) Wavelengths() []float64 {
	wls := make([]float64, 0, len(r))
	for wl := range r {
		wls = append(wls, wl)
	}
	sort.Float64s(wls)
	return wls
}

// CompareAgainstReference resolves comp at every reference wavelength and
// reports each field whose relative deviation exceeds tolerance. Expected
// zeros are compared absolutely.
func CompareAgainstReference(comp *Composition, lib *spectrum.Library, ref Reference, tolerance float64) error {
	if len(ref) == 0 {
		return fmt.Errorf("reference for %q has no wavelengths", comp.Name())
	}

	var errs []error
	for _, wl := range ref.Wavelengths() {
		actual, err := comp.PropertiesAt(lib, wl)
		if err != nil {
			return fmt.Errorf("resolving %q at %g nm: %w", comp.Name(), wl, err)
		}
		expected := ref[wl]
		for _, prop := range AllProperties {
			want := expected.Get(prop)
			if math.IsNaN(want) {
				continue
			}
			got := actual.Get(prop)
			deviation := math.Abs(got - want)
			if want != 0 {
				deviation /= math.Abs(want)
			}
			if math.IsNaN(got) || deviation > tolerance {
				errs = append(errs, fmt.Errorf("%s of %q at %g nm was %g, expected %g within %g%%",
					prop, comp.Name(), wl, got, want, tolerance*100))
			}
		}
	}
	return errors.Join(errs...)
}

// tissueReference expands a per-wavelength table of (mua, mus, g) into a
// Reference sharing the constant fields.
func tissueReference(constant Properties, rows [][4]float64) Reference {
	ref := make(Reference, len(rows))
	for _, row := range rows {
		p := constant
		p.Absorption, p.Scattering, p.Anisotropy = row[1], row[2], row[3]
		ref[row[0]] = p
	}
	return ref
}

func referenceConstants(class SegmentationClass, oxygenation float64, a Acoustics) Properties {
	p := Unset()
	p.Segmentation = float64(class)
	p.Oxygenation = oxygenation
	p.GruneisenParameter = GruneisenFromTemperature(DefaultMediumTemperatureCelsius)
	p.SpeedOfSound = a.SpeedOfSound
	p.Density = a.Density
	p.AlphaCoeff = a.AlphaCoeff
	return p
}

// OxygenatedBloodReference holds literature values of fully oxygenated whole blood.
func OxygenatedBloodReference() Reference {
	return tissueReference(referenceConstants(BloodClass, 1, BloodAcoustics), [][4]float64{
		{450, 336, 772, 0.9447},
		{500, 112, 868.3, 0.9761},
		{550, 230, 714.9, 0.9642},
		{600, 17, 868.8, 0.9794},
		{650, 2, 880.1, 0.9825},
		{700, 1.6, 857.0, 0.9836},
		{750, 2.8, 802.2, 0.9837},
		{800, 4.4, 767.3, 0.9833},
		{850, 5.7, 742.0, 0.9832},
		{900, 6.4, 688.6, 0.9824},
		{950, 6.4, 652.1, 0.9808},
	})
}

// DeoxygenatedBloodReference holds literature values of fully deoxygenated whole blood.
func DeoxygenatedBloodReference() Reference {
	return tissueReference(referenceConstants(BloodClass, 0, BloodAcoustics), [][4]float64{
		{450, 553, 772, 0.9447},
		{500, 112, 868.3, 0.9761},
		{550, 286, 714.9, 0.9642},
		{600, 79, 868.8, 0.9794},
		{650, 20.1, 880.1, 0.9825},
		{700, 9.6, 857.0, 0.9836},
		{750, 7.5, 802.2, 0.9837},
		{800, 4.1, 767.3, 0.9833},
		{850, 3.7, 742.0, 0.9832},
		{900, 4.1, 688.6, 0.9824},
		{950, 3.2, 652.1, 0.9808},
	})
}

// EpidermisReference follows Bashkatov et al. (2011).
func EpidermisReference() Reference {
	return tissueReference(referenceConstants(EpidermisClass, math.NaN(), SkinAcoustics), [][4]float64{
		{450, 13.5, 121.6, 0.728},
		{500, 9.77, 93.01, 0.745},
		{550, 6.85, 74.7, 0.759},
		{600, 5.22, 63.76, 0.774},
		{650, 3.68, 55.48, 0.7887},
		{700, 3.07, 54.66, 0.804},
	})
}

func DermisReference() Reference {
	return tissueReference(referenceConstants(DermisClass, 0.5, SkinAcoustics), [][4]float64{
		{450, 2.105749981, 244.6, 0.715},
		{500, 0.924812913, 175.0, 0.715},
		{550, 0.974386604, 131.1, 0.715},
		{600, 0.440476363, 101.9, 0.715},
		{650, 0.313052704, 81.7, 0.715},
		{700, 0.277003236, 67.1, 0.715},
		{750, 0.264286111, 56.3, 0.715},
		{800, 0.256933531, 48.1, 0.715},
		{850, 0.255224508, 41.8, 0.715},
		{900, 0.254198591, 36.7, 0.715},
		{950, 0.254522563, 32.6, 0.715},
	})
}

func MuscleReference() Reference {
	return tissueReference(referenceConstants(MuscleClass, 0.175, MuscleAcoustics), [][4]float64{
		{650, 1.04, 87.5, 0.9},
		{700, 0.48, 81.8, 0.9},
		{750, 0.41, 77.1, 0.9},
		{800, 0.28, 70.4, 0.9},
		{850, 0.3, 66.7, 0.9},
		{900, 0.32, 62.1, 0.9},
		{950, 0.46, 59.0, 0.9},
	})
}

// LymphNodeReference only constrains the acoustic fields and oxygenation.
func LymphNodeReference() Reference {
	ref := make(Reference)
	for wl := 450.0; wl <= 950; wl += 50 {
		ref[wl] = referenceConstants(LymphNodeClass, 0.73, LymphNodeAcoustics)
	}
	return ref
}

// References returns the built-in reference tables keyed by tissue name.
func References() map[string]Reference {
	return map[string]Reference{
		"oxygenated_blood":   OxygenatedBloodReference(),
		"deoxygenated_blood": DeoxygenatedBloodReference(),
		"epidermis":          EpidermisReference(),
		"dermis":             DermisReference(),
		"muscle":             MuscleReference(),
		"lymph_node":         LymphNodeReference(),
	}
}

// ReferenceComposition builds the library composition a reference table
// describes.
func ReferenceComposition(name string) (*Composition, error) {
	switch name {
	case "oxygenated_blood":
		return Blood(1)
	case "deoxygenated_blood":
		return Blood(0)
	case "epidermis":
		return Epidermis(DefaultMelaninFraction)
	case "dermis":
		return Dermis(DefaultDermisOxygenation, DefaultDermisBloodFraction)
	case "muscle":
		return Muscle(DefaultMuscleOxygenation, DefaultMuscleBloodFraction)
	case "lymph_node":
		return LymphNode(DefaultLymphNodeOxygenation, DefaultLymphNodeBloodFraction)
	}
	return nil, fmt.Errorf("no reference composition named %q", name)
}
