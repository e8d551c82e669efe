package models

import (
	"fmt"
	"strings"
)

// ConfigurationError reports malformed structure, composition or volume
// parameters. It is raised at construction time and is not recoverable for
// the offending component.
type ConfigurationError struct {
	Component string
	Reason    string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error in %s: %s", e.Component, e.Reason)
}

// LookupError reports a missing spectrum, molecule, tissue or label mapping.
// Valid lists the keys that would have been accepted, when known.
type LookupError struct {
	Kind  string
	Key   string
	Valid []string
}

func (e *LookupError) Error() string {
	if len(e.Valid) == 0 {
		return fmt.Sprintf("%s %q not found", e.Kind, e.Key)
	}
	return fmt.Sprintf("%s %q not found; valid names are: %s", e.Kind, e.Key, strings.Join(e.Valid, ", "))
}

// DimensionMismatchError reports a segmentation volume whose shape differs from
// the configured voxel geometry along one axis.
type DimensionMismatchError struct {
	Axis         string
	Volume       int
	Segmentation int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("%s_dim of volumes and segmentation must perfectly match but was %d and %d",
		e.Axis, e.Volume, e.Segmentation)
}

// NumericalValidityError reports non-finite values in a composited property
// volume that must be finite everywhere.
type NumericalValidityError struct {
	Field string
	Count int
	// FirstIndex is the flat index of the first offending voxel
	FirstIndex int
}

func (e *NumericalValidityError) Error() string {
	return fmt.Sprintf("volume %q contains %d non-finite values (first at flat index %d)",
		e.Field, e.Count, e.FirstIndex)
}
