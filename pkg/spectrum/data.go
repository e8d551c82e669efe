package spectrum

import "math"

// Whole-blood hemoglobin concentration in g/L and the molar mass of
// hemoglobin in g/mol, used to turn molar extinction into absorption.
const (
	HemoglobinConcentrationGPerL = 150.0
	HemoglobinMolarMassGPerMol   = 64500.0
)

// hemoglobinWavelengths are the sample points of the molar extinction tables
// (S. Prahl, tabulated molar extinction coefficient for hemoglobin in water).
var hemoglobinWavelengths = []float64{
	400, 410, 420, 430, 440, 450, 460, 470, 480, 490,
	500, 510, 520, 530, 540, 550, 560, 570, 580, 590,
	600, 610, 620, 630, 640, 650, 660, 670, 680, 690,
	700, 710, 720, 730, 740, 750, 760, 770, 780, 790,
	800, 810, 820, 830, 840, 850, 860, 870, 880, 890,
	900, 910, 920, 930, 940, 950, 960, 970, 980, 990,
	1000,
}

// Molar extinction in cm⁻¹/M.
var oxyhemoglobinExtinction = []float64{
	266232, 466840, 480360, 390280, 150360, 62816, 44480, 33209.2, 26629.2, 23684.4,
	20932.8, 20035.2, 24202.4, 39956.8, 53236, 43016, 32613.2, 44496, 50104, 14400.8,
	3200, 1506, 942, 610, 442, 368, 319.6, 294, 277.6, 276,
	290, 314, 348, 390, 446, 518, 586, 650, 710, 756,
	816, 864, 916, 974, 1022, 1058, 1092, 1128, 1154, 1178,
	1198, 1214, 1224, 1222, 1214, 1204, 1186, 1162, 1128, 1080,
	1024,
}

var deoxyhemoglobinExtinction = []float64{
	223296, 303956, 407560, 528600, 413280, 103292, 23388.8, 16156.4, 14550, 16684,
	20862, 25773.6, 31589.6, 39036.4, 46592, 53788, 53412, 45072, 37020, 28324.4,
	14677.2, 9443.6, 6509.6, 5148.8, 4345.2, 3750.12, 3226.56, 2795.12, 2407.92, 2051.96,
	1794.28, 1540.48, 1325.88, 1102.2, 1115.88, 1405.24, 1548.52, 1311.88, 1075.44, 882.76,
	761.72, 693.44, 693.76, 692.36, 692.36, 691.32, 694.32, 705.84, 726.44, 743.6,
	761.84, 774.56, 777.36, 763.84, 693.44, 602.24, 525.56, 429.32, 359.656, 283.22,
	206.784,
}

// extinctionToAbsorption converts molar extinction (cm⁻¹/M, decadic) into the
// absorption coefficient of whole blood in cm⁻¹.
func extinctionToAbsorption(extinction []float64) []float64 {
	out := make([]float64, len(extinction))
	for i, e := range extinction {
		out[i] = math.Ln10 * e * HemoglobinConcentrationGPerL / HemoglobinMolarMassGPerMol
	}
	return out
}

// Water absorption in cm⁻¹ (Hale & Querry).
var (
	waterWavelengths = []float64{400, 450, 500, 550, 600, 650, 700, 750, 800, 850, 900, 950, 1000}
	waterAbsorption  = []float64{0.00058, 0.00015, 0.00025, 0.00057, 0.0023, 0.0032, 0.006, 0.0261, 0.0196, 0.0433, 0.0678, 0.39, 0.36}
)

// Fat absorption in cm⁻¹ (van Veen et al.).
var (
	fatWavelengths = []float64{400, 450, 500, 550, 600, 650, 700, 750, 800, 850, 900, 930, 950, 1000}
	fatAbsorption  = []float64{0.25, 0.11, 0.07, 0.055, 0.05, 0.045, 0.04, 0.06, 0.045, 0.06, 0.11, 1.1, 0.6, 0.1}
)

// Contrast agent absorption per unit volume fraction in cm⁻¹.
var (
	sulphideWavelengths = []float64{400, 500, 600, 700, 800, 900, 1000}
	copperSulphide      = []float64{3.0, 1.5, 1.5, 3.2, 6.0, 8.5, 10.0}
	nickelSulphide      = []float64{8.0, 6.5, 5.8, 5.5, 5.3, 5.1, 5.0}
)

// Scattering coefficients in cm⁻¹ for the tissue classes that are tabulated
// rather than described by a power law.
var (
	bloodWavelengths = []float64{400, 450, 500, 550, 600, 650, 700, 750, 800, 850, 900, 950, 1000}
	bloodScattering  = []float64{700, 772, 868.3, 714.9, 868.8, 880.1, 857.0, 802.2, 767.3, 742.0, 688.6, 652.1, 617}
	bloodAnisotropy  = []float64{0.93, 0.9447, 0.9761, 0.9642, 0.9794, 0.9825, 0.9836, 0.9837, 0.9833, 0.9832, 0.9824, 0.9808, 0.979}

	skinWavelengths     = []float64{400, 450, 500, 550, 600, 650, 700, 750, 800, 850, 900, 950, 1000}
	epidermisScattering = []float64{150, 121.6, 93.01, 74.7, 63.76, 55.48, 54.66, 50.9, 47.6, 44.7, 42.2, 40.0, 38.0}
	epidermisAnisotropy = []float64{0.71, 0.728, 0.745, 0.759, 0.774, 0.7887, 0.804, 0.818, 0.83, 0.84, 0.85, 0.86, 0.87}
	dermisScattering    = []float64{330, 244.6, 175.0, 131.1, 101.9, 81.7, 67.1, 56.3, 48.1, 41.8, 36.7, 32.6, 29.3}
	muscleScattering    = []float64{145, 128.7, 114.8, 103.6, 95.3, 87.5, 81.8, 77.1, 70.4, 66.7, 62.1, 59.0, 56.0}
)

func tabulated(name string, wavelengths, values []float64) Builder {
	return func() (Spectrum, error) { return NewTabulated(name, wavelengths, values) }
}

func constant(name string, value float64) Builder {
	return func() (Spectrum, error) { return NewConstant(name, value) }
}

func powerLaw(name string, a, b, reference float64) Builder {
	return func() (Spectrum, error) { return NewPowerLaw(name, a, b, reference) }
}

func registerBuiltins(l *Library) {
	l.Register(Absorption, "Oxyhemoglobin", func() (Spectrum, error) {
		return NewTabulated("Oxyhemoglobin", hemoglobinWavelengths, extinctionToAbsorption(oxyhemoglobinExtinction))
	})
	l.Register(Absorption, "Deoxyhemoglobin", func() (Spectrum, error) {
		return NewTabulated("Deoxyhemoglobin", hemoglobinWavelengths, extinctionToAbsorption(deoxyhemoglobinExtinction))
	})
	l.Register(Absorption, "Water", tabulated("Water", waterWavelengths, waterAbsorption))
	l.Register(Absorption, "Fat", tabulated("Fat", fatWavelengths, fatAbsorption))
	l.Register(Absorption, "Copper_Sulphide", tabulated("Copper_Sulphide", sulphideWavelengths, copperSulphide))
	l.Register(Absorption, "Nickel_Sulphide", tabulated("Nickel_Sulphide", sulphideWavelengths, nickelSulphide))

	// Jacques, "Optical properties of biological tissues: a review" (2013).
	l.Register(Absorption, "Melanin", func() (Spectrum, error) {
		return NewFunc("Melanin", func(wl float64) float64 {
			return 519 * math.Pow(wl/500, -3.5)
		}), nil
	})
	l.Register(Absorption, "Skin_Baseline", func() (Spectrum, error) {
		return NewFunc("Skin_Baseline", func(wl float64) float64 {
			return 0.244 + 85.3*math.Exp(-(wl-154)/66.2)
		}), nil
	})

	l.Register(Absorption, "Muscle_Baseline", constant("Muscle_Baseline", 0.1))
	l.Register(Absorption, "Constant_Absorber_0", constant("Constant_Absorber_0", 0))
	l.Register(Absorption, "Constant_Absorber_1", constant("Constant_Absorber_1", 1))
	l.Register(Absorption, "Constant_Absorber_10", constant("Constant_Absorber_10", 10))

	l.Register(Scattering, "background_scattering", constant("background_scattering", 100))
	l.Register(Scattering, "low_scattering", constant("low_scattering", 0.1))
	l.Register(Scattering, "blood_scattering", tabulated("blood_scattering", bloodWavelengths, bloodScattering))
	l.Register(Scattering, "epidermis_scattering", tabulated("epidermis_scattering", skinWavelengths, epidermisScattering))
	l.Register(Scattering, "dermis_scattering", tabulated("dermis_scattering", skinWavelengths, dermisScattering))
	l.Register(Scattering, "muscle_scattering", tabulated("muscle_scattering", skinWavelengths, muscleScattering))
	// Reduced scattering a'·(λ/500)^-b divided by (1-g) with g = 0.9.
	l.Register(Scattering, "fat_scattering", powerLaw("fat_scattering", 184, 0.672, 500))
	l.Register(Scattering, "bone_scattering", powerLaw("bone_scattering", 229, 0.716, 500))

	l.Register(Anisotropy, "Epidermis_Anisotropy", tabulated("Epidermis_Anisotropy", skinWavelengths, epidermisAnisotropy))
	l.Register(Anisotropy, "Blood_Anisotropy", tabulated("Blood_Anisotropy", bloodWavelengths, bloodAnisotropy))
	l.Register(Anisotropy, "Dermis_Anisotropy", constant("Dermis_Anisotropy", 0.715))
	l.Register(Anisotropy, "Constant_Anisotropy_0.9", constant("Constant_Anisotropy_0.9", 0.9))
	l.Register(Anisotropy, "Constant_Anisotropy_0", constant("Constant_Anisotropy_0", 0))
}
