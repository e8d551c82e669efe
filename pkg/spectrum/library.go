package spectrum

import (
	"fmt"
	"sort"
	"sync"

	"tissuesynth/internal/models"
)

// Kind distinguishes the three spectrum families of a library.
type Kind int

const (
	Absorption Kind = iota
	Scattering
	Anisotropy
)

func (k Kind) String() string {
	switch k {
	case Absorption:
		return "absorption"
	case Scattering:
		return "scattering"
	case Anisotropy:
		return "anisotropy"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Builder constructs a spectrum on first use.
type Builder func() (Spectrum, error)

// Library resolves spectra by exact name. Entries are registered as builders
// and constructed the first time they are requested; the result (or the build
// error) is cached. A Library is safe for concurrent use.
type Library struct {
	mu       sync.Mutex
	builders map[Kind]map[string]Builder
	resolved map[Kind]map[string]Spectrum
}

// NewLibrary returns an empty library.
func NewLibrary() *Library {
	return &Library{
		builders: make(map[Kind]map[string]Builder),
		resolved: make(map[Kind]map[string]Spectrum),
	}
}

// Register adds a lazily built spectrum, replacing any entry of the same name.
func (l *Library) Register(kind Kind, name string, build Builder) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.builders[kind] == nil {
		l.builders[kind] = make(map[string]Builder)
	}
	l.builders[kind][name] = build
	if l.resolved[kind] != nil {
		delete(l.resolved[kind], name)
	}
}

// Add registers an already constructed spectrum under its own name.
func (l *Library) Add(kind Kind, s Spectrum) {
	l.Register(kind, s.Name(), func() (Spectrum, error) { return s, nil })
}

// Get returns the spectrum registered under name. A miss yields a
// *models.LookupError listing every valid name of that kind.
func (l *Library) Get(kind Kind, name string) (Spectrum, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if s, ok := l.resolved[kind][name]; ok {
		return s, nil
	}

	build, ok := l.builders[kind][name]
	if !ok {
		return nil, &models.LookupError{
			Kind:  kind.String() + " spectrum",
			Key:   name,
			Valid: l.namesLocked(kind),
		}
	}

	s, err := build()
	if err != nil {
		return nil, fmt.Errorf("building %s spectrum %q: %w", kind, name, err)
	}
	if l.resolved[kind] == nil {
		l.resolved[kind] = make(map[string]Spectrum)
	}
	l.resolved[kind][name] = s
	return s, nil
}

// ValueAt looks up a spectrum and evaluates it at the given wavelength.
func (l *Library) ValueAt(kind Kind, name string, wavelengthNM float64) (float64, error) {
	s, err := l.Get(kind, name)
	if err != nil {
		return 0, err
	}
	return s.ValueAt(wavelengthNM)
}

// Names returns the sorted names registered for a kind.
func (l *Library) Names(kind Kind) []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.namesLocked(kind)
}

func (l *Library) namesLocked(kind Kind) []string {
	names := make([]string, 0, len(l.builders[kind]))
	for name := range l.builders[kind] {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

var (
	defaultOnce    sync.Once
	defaultLibrary *Library
)

// Default returns the built-in library of tissue spectra. It is created on
// first call and must not be modified; use NewBuiltinLibrary for a private,
// extensible copy.
func Default() *Library {
	defaultOnce.Do(func() {
		defaultLibrary = NewBuiltinLibrary()
	})
	return defaultLibrary
}

// NewBuiltinLibrary returns a new library pre-registered with every built-in
// spectrum.
func NewBuiltinLibrary() *Library {
	l := NewLibrary()
	registerBuiltins(l)
	return l
}
