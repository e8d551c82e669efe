package tissue

import (
	"fmt"
	"math"
	"sort"

	"tissuesynth/internal/models"
)

// Default tissue parameters.
const (
	DefaultMelaninFraction         = 0.0176
	DefaultDermisOxygenation       = 0.5
	DefaultDermisBloodFraction     = 0.002
	DefaultMuscleOxygenation       = 0.175
	DefaultMuscleBloodFraction     = 0.055
	DefaultSoftTissueOxygenation   = 0.7
	DefaultSoftTissueBloodFraction = 0.03
	DefaultLymphNodeOxygenation    = 0.73
	DefaultLymphNodeBloodFraction  = 0.06
	DefaultContrastAgentFraction   = 0.01
	muscleWaterFraction            = 0.5
	fatLipidFraction               = 0.7
	boneMineralFraction            = 0.81
)

// profile overrides the scattering and acoustic behaviour of every molecule
// of a tissue with the values measured for the bulk tissue.
type profile struct {
	scattering SpectrumRef
	anisotropy SpectrumRef
	acoustics  Acoustics
}

func (p profile) apply(molecules ...Molecule) []Molecule {
	out := make([]Molecule, len(molecules))
	for i, m := range molecules {
		out[i] = m.WithScattering(p.scattering, p.anisotropy).WithAcoustics(p.acoustics)
	}
	return out
}

var (
	bloodProfile      = profile{Named("blood_scattering"), Named("Blood_Anisotropy"), BloodAcoustics}
	epidermisProfile  = profile{Named("epidermis_scattering"), Named("Epidermis_Anisotropy"), SkinAcoustics}
	dermisProfile     = profile{Named("dermis_scattering"), Named("Dermis_Anisotropy"), SkinAcoustics}
	muscleProfile     = profile{Named("muscle_scattering"), Named("Constant_Anisotropy_0.9"), MuscleAcoustics}
	softTissueProfile = profile{Named("muscle_scattering"), Named("Constant_Anisotropy_0.9"), SoftTissueAcoustics}
	lymphNodeProfile  = profile{Named("muscle_scattering"), Named("Constant_Anisotropy_0.9"), LymphNodeAcoustics}
	fatProfile        = profile{Named("fat_scattering"), Named("Constant_Anisotropy_0.9"), FatAcoustics}
	boneProfile       = profile{Named("bone_scattering"), Named("Constant_Anisotropy_0.9"), BoneAcoustics}
	waterProfile      = profile{Named("low_scattering"), Named("Constant_Anisotropy_0.9"), WaterAcoustics}
	gelProfile        = profile{Named("low_scattering"), Named("Constant_Anisotropy_0.9"), GelAcoustics}
)

func checkFraction(tissue, name string, v float64) error {
	if v < 0 || v > 1 || math.IsNaN(v) {
		return &models.ConfigurationError{
			Component: "tissue " + tissue,
			Reason:    fmt.Sprintf("%s %g outside [0, 1]", name, v),
		}
	}
	return nil
}

// bloodMolecules splits a blood volume fraction into oxy- and deoxyhemoglobin.
func bloodMolecules(oxygenation, bloodFraction float64) []Molecule {
	return []Molecule{
		Oxyhemoglobin(oxygenation * bloodFraction),
		Deoxyhemoglobin((1 - oxygenation) * bloodFraction),
	}
}

// perfused builds a blood-perfused tissue whose remaining volume is split
// between water and a baseline absorber.
func perfused(name string, class SegmentationClass, p profile, oxygenation, bloodFraction float64, baseline func(float64) Molecule, opts []Option) (*Composition, error) {
	if err := checkFraction(name, "oxygenation", oxygenation); err != nil {
		return nil, err
	}
	if err := checkFraction(name, "blood volume fraction", bloodFraction); err != nil {
		return nil, err
	}
	if bloodFraction > 1-muscleWaterFraction {
		return nil, &models.ConfigurationError{
			Component: "tissue " + name,
			Reason:    fmt.Sprintf("blood volume fraction %g exceeds %g", bloodFraction, 1-muscleWaterFraction),
		}
	}
	molecules := append(bloodMolecules(oxygenation, bloodFraction),
		WaterMolecule(muscleWaterFraction),
		baseline(1-muscleWaterFraction-bloodFraction))
	return NewComposition(class, p.apply(molecules...), append([]Option{WithName(name)}, opts...)...)
}

// Blood is whole blood at the given oxygenation.
func Blood(oxygenation float64, opts ...Option) (*Composition, error) {
	if err := checkFraction("blood", "oxygenation", oxygenation); err != nil {
		return nil, err
	}
	return NewComposition(BloodClass, bloodProfile.apply(bloodMolecules(oxygenation, 1)...),
		append([]Option{WithName("blood")}, opts...)...)
}

// Epidermis is melanin in a bloodless skin baseline.
func Epidermis(melaninFraction float64, opts ...Option) (*Composition, error) {
	if err := checkFraction("epidermis", "melanin fraction", melaninFraction); err != nil {
		return nil, err
	}
	return NewComposition(EpidermisClass,
		epidermisProfile.apply(Melanin(melaninFraction), SkinBaseline(1-melaninFraction)),
		append([]Option{WithName("epidermis")}, opts...)...)
}

// Dermis is a sparsely perfused skin baseline.
func Dermis(oxygenation, bloodFraction float64, opts ...Option) (*Composition, error) {
	if err := checkFraction("dermis", "oxygenation", oxygenation); err != nil {
		return nil, err
	}
	if err := checkFraction("dermis", "blood volume fraction", bloodFraction); err != nil {
		return nil, err
	}
	molecules := append(bloodMolecules(oxygenation, bloodFraction), SkinBaseline(1-bloodFraction))
	return NewComposition(DermisClass, dermisProfile.apply(molecules...),
		append([]Option{WithName("dermis")}, opts...)...)
}

func Muscle(oxygenation, bloodFraction float64, opts ...Option) (*Composition, error) {
	return perfused("muscle", MuscleClass, muscleProfile, oxygenation, bloodFraction, MuscleBaseline, opts)
}

// SoftTissue is a generic perfused background tissue.
func SoftTissue(oxygenation, bloodFraction float64, opts ...Option) (*Composition, error) {
	return perfused("soft_tissue", SoftTissueClass, softTissueProfile, oxygenation, bloodFraction, MuscleBaseline, opts)
}

func LymphNode(oxygenation, bloodFraction float64, opts ...Option) (*Composition, error) {
	return perfused("lymph_node", LymphNodeClass, lymphNodeProfile, oxygenation, bloodFraction, MuscleBaseline, opts)
}

func Fat(opts ...Option) (*Composition, error) {
	return NewComposition(FatClass,
		fatProfile.apply(FatMolecule(fatLipidFraction), WaterMolecule(1-fatLipidFraction)),
		append([]Option{WithName("fat")}, opts...)...)
}

func Bone(opts ...Option) (*Composition, error) {
	return NewComposition(BoneClass,
		boneProfile.apply(BoneMolecule(boneMineralFraction), WaterMolecule(1-boneMineralFraction)),
		append([]Option{WithName("bone")}, opts...)...)
}

func Water(opts ...Option) (*Composition, error) {
	return NewComposition(WaterClass, waterProfile.apply(WaterMolecule(1)),
		append([]Option{WithName("water")}, opts...)...)
}

func HeavyWater(opts ...Option) (*Composition, error) {
	return NewComposition(HeavyWaterClass, []Molecule{HeavyWaterMolecule(1)},
		append([]Option{WithName("heavy_water")}, opts...)...)
}

func Gel(opts ...Option) (*Composition, error) {
	return NewComposition(UltrasoundGel, gelProfile.apply(WaterMolecule(1)),
		append([]Option{WithName("ultrasound_gel")}, opts...)...)
}

func AirTissue(opts ...Option) (*Composition, error) {
	return NewComposition(Air, []Molecule{AirMolecule(1)},
		append([]Option{WithName("air")}, opts...)...)
}

// ContrastAgent suspends a sulphide nanoparticle absorber in water.
func ContrastAgent(agent func(float64) Molecule, fraction float64, opts ...Option) (*Composition, error) {
	if err := checkFraction("contrast agent", "agent fraction", fraction); err != nil {
		return nil, err
	}
	return NewComposition(Generic, []Molecule{agent(fraction), WaterMolecule(1 - fraction)},
		append([]Option{WithName("contrast_agent")}, opts...)...)
}

// Constant is a tissue with wavelength-independent optical properties and
// soft-tissue acoustics.
func Constant(mua, mus, g float64, opts ...Option) (*Composition, error) {
	m, err := ConstantMolecule("constant", 1, mua, mus, g, SoftTissueAcoustics)
	if err != nil {
		return nil, err
	}
	return NewComposition(Generic, []Molecule{m}, append([]Option{WithName("constant")}, opts...)...)
}

// TissueParams carries the optional parameters of a named tissue. Nil fields
// take the tissue's default.
type TissueParams struct {
	Oxygenation         *float64
	BloodVolumeFraction *float64
	MelaninFraction     *float64
	AgentFraction       *float64

	// Absorption, Scattering and Anisotropy are used by the constant tissue
	Absorption, Scattering, Anisotropy float64
}

func orDefault(v *float64, def float64) float64 {
	if v == nil {
		return def
	}
	return *v
}

var tissueBuilders = map[string]func(TissueParams, []Option) (*Composition, error){
	"blood": func(p TissueParams, o []Option) (*Composition, error) {
		return Blood(orDefault(p.Oxygenation, 1), o...)
	},
	"epidermis": func(p TissueParams, o []Option) (*Composition, error) {
		return Epidermis(orDefault(p.MelaninFraction, DefaultMelaninFraction), o...)
	},
	"dermis": func(p TissueParams, o []Option) (*Composition, error) {
		return Dermis(orDefault(p.Oxygenation, DefaultDermisOxygenation),
			orDefault(p.BloodVolumeFraction, DefaultDermisBloodFraction), o...)
	},
	"muscle": func(p TissueParams, o []Option) (*Composition, error) {
		return Muscle(orDefault(p.Oxygenation, DefaultMuscleOxygenation),
			orDefault(p.BloodVolumeFraction, DefaultMuscleBloodFraction), o...)
	},
	"soft_tissue": func(p TissueParams, o []Option) (*Composition, error) {
		return SoftTissue(orDefault(p.Oxygenation, DefaultSoftTissueOxygenation),
			orDefault(p.BloodVolumeFraction, DefaultSoftTissueBloodFraction), o...)
	},
	"lymph_node": func(p TissueParams, o []Option) (*Composition, error) {
		return LymphNode(orDefault(p.Oxygenation, DefaultLymphNodeOxygenation),
			orDefault(p.BloodVolumeFraction, DefaultLymphNodeBloodFraction), o...)
	},
	"fat":            func(_ TissueParams, o []Option) (*Composition, error) { return Fat(o...) },
	"bone":           func(_ TissueParams, o []Option) (*Composition, error) { return Bone(o...) },
	"water":          func(_ TissueParams, o []Option) (*Composition, error) { return Water(o...) },
	"heavy_water":    func(_ TissueParams, o []Option) (*Composition, error) { return HeavyWater(o...) },
	"ultrasound_gel": func(_ TissueParams, o []Option) (*Composition, error) { return Gel(o...) },
	"air":            func(_ TissueParams, o []Option) (*Composition, error) { return AirTissue(o...) },
	"copper_sulphide": func(p TissueParams, o []Option) (*Composition, error) {
		return ContrastAgent(CopperSulphide, orDefault(p.AgentFraction, DefaultContrastAgentFraction), o...)
	},
	"nickel_sulphide": func(p TissueParams, o []Option) (*Composition, error) {
		return ContrastAgent(NickelSulphide, orDefault(p.AgentFraction, DefaultContrastAgentFraction), o...)
	},
	"constant": func(p TissueParams, o []Option) (*Composition, error) {
		return Constant(p.Absorption, p.Scattering, p.Anisotropy, o...)
	},
}

// TissueNames returns the sorted names accepted by ByName.
func TissueNames() []string {
	names := make([]string, 0, len(tissueBuilders))
	for name := range tissueBuilders {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ByName builds a library tissue. Unknown names yield a *models.LookupError.
func ByName(name string, params TissueParams, opts ...Option) (*Composition, error) {
	build, ok := tissueBuilders[name]
	if !ok {
		return nil, &models.LookupError{Kind: "tissue", Key: name, Valid: TissueNames()}
	}
	return build(params, opts)
}
