package tissue

import (
	"fmt"
	"sort"

	"tissuesynth/internal/models"
)

// SegmentationClass labels the dominant tissue type of a voxel.
type SegmentationClass int

const (
	Generic          SegmentationClass = -1
	Air              SegmentationClass = 0
	MuscleClass      SegmentationClass = 1
	BoneClass        SegmentationClass = 2
	BloodClass       SegmentationClass = 3
	EpidermisClass   SegmentationClass = 4
	DermisClass      SegmentationClass = 5
	FatClass         SegmentationClass = 6
	UltrasoundGel    SegmentationClass = 7
	WaterClass       SegmentationClass = 8
	HeavyWaterClass  SegmentationClass = 9
	CouplingArtifact SegmentationClass = 10
	SoftTissueClass  SegmentationClass = 12
	LymphNodeClass   SegmentationClass = 13
)

var segmentationNames = map[SegmentationClass]string{
	Generic:          "generic",
	Air:              "air",
	MuscleClass:      "muscle",
	BoneClass:        "bone",
	BloodClass:       "blood",
	EpidermisClass:   "epidermis",
	DermisClass:      "dermis",
	FatClass:         "fat",
	UltrasoundGel:    "ultrasound_gel",
	WaterClass:       "water",
	HeavyWaterClass:  "heavy_water",
	CouplingArtifact: "coupling_artifact",
	SoftTissueClass:  "soft_tissue",
	LymphNodeClass:   "lymph_node",
}

func (s SegmentationClass) String() string {
	if name, ok := segmentationNames[s]; ok {
		return name
	}
	return fmt.Sprintf("segmentation(%d)", int(s))
}

// ParseSegmentationClass maps a class name onto its label.
func ParseSegmentationClass(name string) (SegmentationClass, error) {
	for class, n := range segmentationNames {
		if n == name {
			return class, nil
		}
	}
	valid := make([]string, 0, len(segmentationNames))
	for _, n := range segmentationNames {
		valid = append(valid, n)
	}
	sort.Strings(valid)
	return 0, &models.LookupError{Kind: "segmentation class", Key: name, Valid: valid}
}
