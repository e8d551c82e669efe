package tissue

import (
	"math"

	"tissuesynth/pkg/spectrum"
)

// Acoustic constants of the reference tissue classes (IT'IS tissue database).
var (
	BloodAcoustics      = Acoustics{SpeedOfSound: 1578.2, Density: 1049.75, AlphaCoeff: 0.2}
	SkinAcoustics       = Acoustics{SpeedOfSound: 1624, Density: 1109, AlphaCoeff: 0.35}
	MuscleAcoustics     = Acoustics{SpeedOfSound: 1588.4, Density: 1090.4, AlphaCoeff: 1.09}
	FatAcoustics        = Acoustics{SpeedOfSound: 1440.2, Density: 911, AlphaCoeff: 0.48}
	BoneAcoustics       = Acoustics{SpeedOfSound: 3514.9, Density: 1908, AlphaCoeff: 3.54}
	WaterAcoustics      = Acoustics{SpeedOfSound: 1482.3, Density: 997, AlphaCoeff: 0.0022}
	HeavyWaterAcoustics = Acoustics{SpeedOfSound: 1388, Density: 1107, AlphaCoeff: 0.0022}
	GelAcoustics        = Acoustics{SpeedOfSound: 1580, Density: 1060, AlphaCoeff: 0.1}
	LymphNodeAcoustics  = Acoustics{SpeedOfSound: 1586, Density: 1035, AlphaCoeff: 2.50}
	SoftTissueAcoustics = Acoustics{SpeedOfSound: 1540, Density: 1045, AlphaCoeff: 0.5}
	AirAcoustics        = Acoustics{SpeedOfSound: 343, Density: 1.2, AlphaCoeff: 1.6}
)

func molecule(name string, fraction float64, absorption, scattering, anisotropy string, a Acoustics) Molecule {
	return Molecule{
		Name:               name,
		VolumeFraction:     fraction,
		Absorption:         Named(absorption),
		Scattering:         Named(scattering),
		Anisotropy:         Named(anisotropy),
		GruneisenParameter: math.NaN(),
	}.WithAcoustics(a)
}

func Oxyhemoglobin(fraction float64) Molecule {
	m := molecule("oxyhemoglobin", fraction, "Oxyhemoglobin", "blood_scattering", "Blood_Anisotropy", BloodAcoustics)
	m.Hemoglobin = OxygenatedHemoglobin
	return m
}

func Deoxyhemoglobin(fraction float64) Molecule {
	m := molecule("deoxyhemoglobin", fraction, "Deoxyhemoglobin", "blood_scattering", "Blood_Anisotropy", BloodAcoustics)
	m.Hemoglobin = DeoxygenatedHemoglobin
	return m
}

func WaterMolecule(fraction float64) Molecule {
	return molecule("water", fraction, "Water", "low_scattering", "Constant_Anisotropy_0.9", WaterAcoustics)
}

// HeavyWaterMolecule is D₂O, a coupling medium with negligible absorption.
func HeavyWaterMolecule(fraction float64) Molecule {
	return molecule("heavy_water", fraction, "Constant_Absorber_0", "low_scattering", "Constant_Anisotropy_0.9", HeavyWaterAcoustics)
}

func Melanin(fraction float64) Molecule {
	return molecule("melanin", fraction, "Melanin", "epidermis_scattering", "Epidermis_Anisotropy", SkinAcoustics)
}

// SkinBaseline is the bloodless background absorber of skin.
func SkinBaseline(fraction float64) Molecule {
	return molecule("skin_baseline", fraction, "Skin_Baseline", "dermis_scattering", "Dermis_Anisotropy", SkinAcoustics)
}

func MuscleBaseline(fraction float64) Molecule {
	return molecule("muscle_baseline", fraction, "Muscle_Baseline", "muscle_scattering", "Constant_Anisotropy_0.9", MuscleAcoustics)
}

func FatMolecule(fraction float64) Molecule {
	return molecule("fat", fraction, "Fat", "fat_scattering", "Constant_Anisotropy_0.9", FatAcoustics)
}

func BoneMolecule(fraction float64) Molecule {
	return molecule("bone", fraction, "Muscle_Baseline", "bone_scattering", "Constant_Anisotropy_0.9", BoneAcoustics)
}

func CopperSulphide(fraction float64) Molecule {
	return molecule("copper_sulphide", fraction, "Copper_Sulphide", "low_scattering", "Constant_Anisotropy_0.9", WaterAcoustics)
}

func NickelSulphide(fraction float64) Molecule {
	return molecule("nickel_sulphide", fraction, "Nickel_Sulphide", "low_scattering", "Constant_Anisotropy_0.9", WaterAcoustics)
}

func AirMolecule(fraction float64) Molecule {
	return molecule("air", fraction, "Constant_Absorber_0", "low_scattering", "Constant_Anisotropy_0", AirAcoustics)
}

// ConstantMolecule has wavelength-independent optical properties that are not
// part of any spectrum library.
func ConstantMolecule(name string, fraction, mua, mus, g float64, a Acoustics) (Molecule, error) {
	absorption, err := spectrum.NewConstant(name+"_absorption", mua)
	if err != nil {
		return Molecule{}, err
	}
	scattering, err := spectrum.NewConstant(name+"_scattering", mus)
	if err != nil {
		return Molecule{}, err
	}
	anisotropy, err := spectrum.NewConstant(name+"_anisotropy", g)
	if err != nil {
		return Molecule{}, err
	}
	return Molecule{
		Name:               name,
		VolumeFraction:     fraction,
		Absorption:         Inline(absorption),
		Scattering:         Inline(scattering),
		Anisotropy:         Inline(anisotropy),
		GruneisenParameter: math.NaN(),
	}.WithAcoustics(a), nil
}
