package spectrum

import (
	"errors"
	"math"
	"strings"
	"sync"
	"testing"

	"tissuesynth/internal/models"
)

// TestBuiltinSpectraCanBeFound verifies every built-in name resolves to a
// spectrum carrying the same name
func TestBuiltinSpectraCanBeFound(t *testing.T) {
	tests := []struct {
		kind  Kind
		names []string
	}{
		{Absorption, []string{"Constant_Absorber_0", "Constant_Absorber_1", "Constant_Absorber_10",
			"Copper_Sulphide", "Deoxyhemoglobin", "Fat", "Melanin", "Nickel_Sulphide",
			"Oxyhemoglobin", "Skin_Baseline", "Water", "Muscle_Baseline"}},
		{Scattering, []string{"background_scattering", "blood_scattering", "bone_scattering",
			"fat_scattering", "muscle_scattering", "epidermis_scattering", "dermis_scattering"}},
		{Anisotropy, []string{"Epidermis_Anisotropy", "Blood_Anisotropy", "Dermis_Anisotropy"}},
	}

	lib := Default()
	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			for _, name := range tt.names {
				s, err := lib.Get(tt.kind, name)
				if err != nil {
					t.Fatalf("Failed to find %s spectrum %q: %v", tt.kind, name, err)
				}
				if s.Name() != name {
					t.Errorf("Expected spectrum name %q, got %q", name, s.Name())
				}
				v, err := s.ValueAt(700)
				if err != nil {
					t.Errorf("Failed to evaluate %q at 700 nm: %v", name, err)
				}
				if v < 0 || math.IsNaN(v) {
					t.Errorf("Expected a non-negative value for %q, got %g", name, v)
				}
			}
		})
	}
}

// TestMissingSpectrum verifies a lookup miss names the key and lists valid names
func TestMissingSpectrum(t *testing.T) {
	for _, kind := range []Kind{Absorption, Scattering, Anisotropy} {
		_, err := Default().Get(kind, "This does not exist")
		var lookupErr *models.LookupError
		if !errors.As(err, &lookupErr) {
			t.Fatalf("Expected LookupError for %s, got %v", kind, err)
		}
		if lookupErr.Key != "This does not exist" {
			t.Errorf("Expected key in error, got %q", lookupErr.Key)
		}
		if len(lookupErr.Valid) == 0 {
			t.Errorf("Expected valid %s names to be listed", kind)
		}
		if !strings.Contains(err.Error(), "This does not exist") {
			t.Errorf("Expected error message to name the spectrum, got %q", err.Error())
		}
	}
}

// TestHemoglobinAbsorption checks the extinction conversion against
// literature absorption of whole blood
func TestHemoglobinAbsorption(t *testing.T) {
	tests := []struct {
		name       string
		wavelength float64
		expected   float64
	}{
		{"Oxyhemoglobin", 450, 336},
		{"Oxyhemoglobin", 700, 1.6},
		{"Oxyhemoglobin", 800, 4.4},
		{"Deoxyhemoglobin", 700, 9.6},
		{"Deoxyhemoglobin", 850, 3.7},
	}

	for _, tt := range tests {
		v, err := Default().ValueAt(Absorption, tt.name, tt.wavelength)
		if err != nil {
			t.Fatalf("Failed to evaluate %s: %v", tt.name, err)
		}
		if math.Abs(v-tt.expected)/tt.expected > 0.05 {
			t.Errorf("%s at %g nm: expected ~%g, got %g", tt.name, tt.wavelength, tt.expected, v)
		}
	}
}

func TestTabulatedInterpolation(t *testing.T) {
	s, err := NewTabulated("ramp", []float64{500, 600, 700}, []float64{1, 3, 2})
	if err != nil {
		t.Fatalf("Failed to create spectrum: %v", err)
	}

	cases := map[float64]float64{500: 1, 550: 2, 600: 3, 650: 2.5, 700: 2}
	for wl, expected := range cases {
		v, err := s.ValueAt(wl)
		if err != nil {
			t.Fatalf("Unexpected error at %g nm: %v", wl, err)
		}
		if math.Abs(v-expected) > 1e-12 {
			t.Errorf("At %g nm expected %g, got %g", wl, expected, v)
		}
	}

	t.Run("OutOfRange", func(t *testing.T) {
		_, err := s.ValueAt(800)
		var lookupErr *models.LookupError
		if !errors.As(err, &lookupErr) {
			t.Fatalf("Expected LookupError outside the sampled range, got %v", err)
		}
		if !strings.Contains(lookupErr.Key, "ramp") {
			t.Errorf("Expected the spectrum name in the key, got %q", lookupErr.Key)
		}
	})

	t.Run("InvalidWavelength", func(t *testing.T) {
		var cfgErr *models.ConfigurationError
		if _, err := s.ValueAt(-5); !errors.As(err, &cfgErr) {
			t.Errorf("Expected ConfigurationError for a negative wavelength, got %v", err)
		}
	})
}

func TestInvalidSpectra(t *testing.T) {
	tests := []struct {
		name  string
		build func() error
	}{
		{"length mismatch", func() error {
			_, err := NewTabulated("a", []float64{1, 2}, []float64{1})
			return err
		}},
		{"single sample", func() error {
			_, err := NewTabulated("a", []float64{1}, []float64{1})
			return err
		}},
		{"unsorted", func() error {
			_, err := NewTabulated("a", []float64{2, 1}, []float64{1, 1})
			return err
		}},
		{"duplicate wavelength", func() error {
			_, err := NewTabulated("a", []float64{1, 1, 2}, []float64{1, 1, 1})
			return err
		}},
		{"negative value", func() error {
			_, err := NewTabulated("a", []float64{1, 2}, []float64{1, -1})
			return err
		}},
		{"negative constant", func() error {
			_, err := NewConstant("a", -1)
			return err
		}},
		{"zero reference", func() error {
			_, err := NewPowerLaw("a", 1, 1, 0)
			return err
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var cfgErr *models.ConfigurationError
			if err := tt.build(); !errors.As(err, &cfgErr) {
				t.Errorf("Expected ConfigurationError, got %v", err)
			}
		})
	}
}

func TestPowerLaw(t *testing.T) {
	p, err := NewPowerLaw("p", 100, 1, 500)
	if err != nil {
		t.Fatalf("Failed to create power law: %v", err)
	}
	v, _ := p.ValueAt(1000)
	if math.Abs(v-50) > 1e-9 {
		t.Errorf("Expected 50 at 1000 nm, got %g", v)
	}
}

// TestLibraryRegisterAndConcurrentGet verifies lazy construction happens once
// and concurrent lookups observe the same spectrum
func TestLibraryRegisterAndConcurrentGet(t *testing.T) {
	lib := NewLibrary()
	builds := 0
	var mu sync.Mutex
	lib.Register(Absorption, "Custom", func() (Spectrum, error) {
		mu.Lock()
		builds++
		mu.Unlock()
		return NewConstant("Custom", 2)
	})

	var wg sync.WaitGroup
	results := make([]Spectrum, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s, err := lib.Get(Absorption, "Custom")
			if err != nil {
				t.Errorf("Unexpected error: %v", err)
			}
			results[i] = s
		}(i)
	}
	wg.Wait()

	if builds != 1 {
		t.Errorf("Expected one lazy build, got %d", builds)
	}
	for _, s := range results[1:] {
		if s != results[0] {
			t.Errorf("Expected the cached spectrum to be shared")
		}
	}

	if names := lib.Names(Absorption); len(names) != 1 || names[0] != "Custom" {
		t.Errorf("Unexpected names %v", names)
	}
}
