// Package volume composites rasterized structures into dense property
// volumes.
//
// The pipeline runs in two phases. A Plan rasterizes every structure once on
// a bounded worker pool and resolves, per voxel, how much of the voxel each
// structure claims. The plan is then evaluated at any number of wavelengths;
// only absorption, scattering and anisotropy are recomputed per wavelength.
package volume

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"runtime"
	"sort"
	"sync"
	"time"

	"gonum.org/v1/gonum/floats"

	"tissuesynth/internal/models"
	"tissuesynth/pkg/spectrum"
	"tissuesynth/pkg/structure"
	"tissuesynth/pkg/tissue"
)

// Options control how volumes are created.
type Options struct {
	// NumCores bounds the number of structures rasterized concurrently.
	// Values below 1 use runtime.NumCPU().
	NumCores int

	// IgnoreQA skips the sanity check of the composited volumes
	IgnoreQA bool

	// Logger receives progress messages. Nil discards them.
	Logger *slog.Logger

	// Library resolves spectra. Nil uses spectrum.Default().
	Library *spectrum.Library
}

func (o Options) withDefaults() Options {
	if o.NumCores < 1 {
		o.NumCores = runtime.NumCPU()
	}
	if o.Logger == nil {
		o.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if o.Library == nil {
		o.Library = spectrum.Default()
	}
	return o
}

// VolumeSet holds one volume per property, all created for one wavelength.
type VolumeSet struct {
	WavelengthNM float64
	Volumes      map[tissue.Property]*models.Volume
}

// Get returns the volume of a property, nil if the set does not hold it.
func (s *VolumeSet) Get(p tissue.Property) *models.Volume { return s.Volumes[p] }

// Fields returns the properties held by the set in schema order.
func (s *VolumeSet) Fields() []tissue.Property {
	var fields []tissue.Property
	for _, p := range tissue.AllProperties {
		if _, ok := s.Volumes[p]; ok {
			fields = append(fields, p)
		}
	}
	return fields
}

// DropWavelengthIndependent removes the fields that are identical at every
// wavelength, leaving mua, mus and g.
func (s *VolumeSet) DropWavelengthIndependent() {
	for p := range s.Volumes {
		if p.WavelengthIndependent() {
			delete(s.Volumes, p)
		}
	}
}

// Creator turns an ordered list of structures and a background composition
// into property volumes.
type Creator struct {
	geom        models.VolumeGeometry
	structures  []*structure.Structure
	background  *tissue.Composition
	deformation structure.Deformation
	opts        Options
}

// NewCreator validates its inputs. The deformation may be nil.
func NewCreator(geom models.VolumeGeometry, structures []*structure.Structure, background *tissue.Composition,
	deformation structure.Deformation, opts Options) (*Creator, error) {
	if geom.Len() == 0 || !(geom.SpacingMM > 0) {
		return nil, &models.ConfigurationError{Component: "volume creator", Reason: "empty volume geometry"}
	}
	if background == nil {
		return nil, &models.ConfigurationError{Component: "volume creator", Reason: "no background composition"}
	}
	for i, st := range structures {
		if st == nil || st.Composition == nil || st.Shape == nil {
			return nil, &models.ConfigurationError{
				Component: "volume creator",
				Reason:    fmt.Sprintf("structure %d is incomplete", i),
			}
		}
	}

	return &Creator{
		geom:        geom,
		structures:  append([]*structure.Structure(nil), structures...),
		background:  background,
		deformation: deformation,
		opts:        opts.withDefaults(),
	}, nil
}

// layer is one structure's share of the volume after priority resolution.
type layer struct {
	name        string
	composition *tissue.Composition
	claim       []float64 // nil when the structure claims nothing
}

// Plan is the wavelength-independent result of compositing. It is safe for
// concurrent use.
type Plan struct {
	geom   models.VolumeGeometry
	layers []layer // descending priority, background last
	opts   Options

	// wavelength-independent fields, computed once
	constant map[tissue.Property]*models.Volume
}

type rasterResult struct {
	index     int
	occupancy []float64
	err       error
}

// rasterizeAll rasterizes every structure on a pool of NumCores workers and
// returns the occupancies in input order.
func (c *Creator) rasterizeAll(ordered []*structure.Structure) ([][]float64, error) {
	jobs := make(chan int)
	results := make(chan rasterResult)

	var wg sync.WaitGroup
	for w, n := 0, min(c.opts.NumCores, max(len(ordered), 1)); w < n; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				occ, err := structure.Rasterize(ordered[i], c.geom, c.deformation)
				results <- rasterResult{index: i, occupancy: occ, err: err}
			}
		}()
	}
	go func() {
		for i := range ordered {
			jobs <- i
		}
		close(jobs)
		wg.Wait()
		close(results)
	}()

	occupancies := make([][]float64, len(ordered))
	var errs []error
	completed := 0
	for res := range results {
		completed++
		if res.err != nil {
			errs = append(errs, fmt.Errorf("rasterizing structure %q: %w", ordered[res.index].Name, res.err))
			continue
		}
		occupancies[res.index] = res.occupancy
		c.opts.Logger.Debug("rasterized structure",
			"structure", ordered[res.index].Name,
			"kind", ordered[res.index].Shape.Kind(),
			"progress", fmt.Sprintf("%d/%d", completed, len(ordered)))
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return occupancies, nil
}

// Plan rasterizes all structures and resolves their claims by priority.
// Structures of equal priority keep their declaration order.
func (c *Creator) Plan() (*Plan, error) {
	start := time.Now()
	ordered := append([]*structure.Structure(nil), c.structures...)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Priority > ordered[j].Priority })

	occupancies, err := c.rasterizeAll(ordered)
	if err != nil {
		return nil, err
	}

	n := c.geom.Len()
	claimed := make([]float64, n)
	layers := make([]layer, 0, len(ordered)+1)
	for i, st := range ordered {
		var claim []float64
		for v, occ := range occupancies[i] {
			take := math.Min(occ, 1-claimed[v])
			if take <= 0 {
				continue
			}
			if claim == nil {
				claim = make([]float64, n)
			}
			claim[v] = take
			claimed[v] += take
		}
		occupancies[i] = nil
		if claim == nil {
			c.opts.Logger.Warn("structure is fully covered or outside the volume", "structure", st.Name)
		}
		layers = append(layers, layer{name: st.Name, composition: st.Composition, claim: claim})
	}

	rest := make([]float64, n)
	for v, cl := range claimed {
		rest[v] = math.Max(0, 1-cl)
	}
	layers = append(layers, layer{name: "background", composition: c.background, claim: rest})

	p := &Plan{geom: c.geom, layers: layers, opts: c.opts}
	p.constant = p.compositeIndependent()

	c.opts.Logger.Info("composited structures",
		"structures", len(ordered),
		"voxels", n,
		"elapsed", time.Since(start))
	return p, nil
}

// Geometry returns the voxel geometry of the plan.
func (p *Plan) Geometry() models.VolumeGeometry { return p.geom }

// Coverage returns the claimed volume fraction of each structure, keyed by
// name, background included.
func (p *Plan) Coverage() map[string]float64 {
	out := make(map[string]float64, len(p.layers))
	for _, l := range p.layers {
		var share float64
		if l.claim != nil {
			share = floats.Sum(l.claim) / float64(p.geom.Len())
		}
		out[l.name] += share
	}
	return out
}

// compositeIndependent builds every wavelength-independent field.
func (p *Plan) compositeIndependent() map[tissue.Property]*models.Volume {
	out := make(map[tissue.Property]*models.Volume)
	var weighted []tissue.Property
	for _, prop := range tissue.AllProperties {
		if !prop.WavelengthIndependent() {
			continue
		}
		out[prop] = models.NewVolume(p.geom)
		if prop != tissue.Oxygenation && prop != tissue.Segmentation {
			weighted = append(weighted, prop)
		}
	}

	for _, l := range p.layers {
		if l.claim == nil {
			continue
		}
		props := l.composition.WavelengthIndependent()
		for _, prop := range weighted {
			value := props.Get(prop)
			if value == 0 {
				continue
			}
			floats.AddScaled(out[prop].Data, value, l.claim)
		}
	}

	p.compositeSegmentation(out[tissue.Segmentation])
	p.compositeOxygenation(out[tissue.Oxygenation])
	return out
}

// compositeSegmentation labels each voxel with the class of its largest
// claim. The first claimant keeps ties.
func (p *Plan) compositeSegmentation(seg *models.Volume) {
	best := make([]float64, p.geom.Len())
	for _, l := range p.layers {
		if l.claim == nil {
			continue
		}
		label := float64(l.composition.Segmentation())
		for v, cl := range l.claim {
			if cl > best[v] {
				best[v] = cl
				seg.Data[v] = label
			}
		}
	}
}

// compositeOxygenation weights each layer's oxygenation by its blood content.
// Voxels without blood are NaN.
func (p *Plan) compositeOxygenation(oxy *models.Volume) {
	blood := make([]float64, p.geom.Len())
	for _, l := range p.layers {
		props := l.composition.WavelengthIndependent()
		if l.claim == nil || !(props.BloodVolumeFraction > 0) {
			continue
		}
		for v, cl := range l.claim {
			if cl == 0 {
				continue
			}
			w := cl * props.BloodVolumeFraction
			blood[v] += w
			oxy.Data[v] += w * props.Oxygenation
		}
	}
	for v, b := range blood {
		if b > 0 {
			oxy.Data[v] /= b
		} else {
			oxy.Data[v] = math.NaN()
		}
	}
}

// Independent returns copies of the wavelength-independent volumes.
func (p *Plan) Independent() *VolumeSet {
	set := &VolumeSet{WavelengthNM: math.NaN(), Volumes: make(map[tissue.Property]*models.Volume, len(p.constant))}
	for prop, vol := range p.constant {
		set.Volumes[prop] = cloneVolume(vol)
	}
	return set
}

// WavelengthDependent composites absorption, scattering and anisotropy at one
// wavelength.
func (p *Plan) WavelengthDependent(wavelengthNM float64) (*VolumeSet, error) {
	set := &VolumeSet{
		WavelengthNM: wavelengthNM,
		Volumes: map[tissue.Property]*models.Volume{
			tissue.Absorption: models.NewVolume(p.geom),
			tissue.Scattering: models.NewVolume(p.geom),
			tissue.Anisotropy: models.NewVolume(p.geom),
		},
	}

	for _, l := range p.layers {
		if l.claim == nil {
			continue
		}
		props, err := l.composition.PropertiesAt(p.opts.Library, wavelengthNM)
		if err != nil {
			return nil, fmt.Errorf("structure %q at %g nm: %w", l.name, wavelengthNM, err)
		}
		for prop, vol := range set.Volumes {
			floats.AddScaled(vol.Data, props.Get(prop), l.claim)
		}
	}
	return set, nil
}

// Volumes composites every field at one wavelength and runs the sanity check
// unless Options.IgnoreQA is set.
func (p *Plan) Volumes(wavelengthNM float64) (*VolumeSet, error) {
	set, err := p.WavelengthDependent(wavelengthNM)
	if err != nil {
		return nil, err
	}
	for prop, vol := range p.constant {
		set.Volumes[prop] = cloneVolume(vol)
	}

	if !p.opts.IgnoreQA {
		if err := CheckVolumes(set, p.geom); err != nil {
			return nil, fmt.Errorf("volumes at %g nm failed the sanity check: %w", wavelengthNM, err)
		}
	}
	p.opts.Logger.Debug("created volumes", "wavelength_nm", wavelengthNM, "fields", len(set.Volumes))
	return set, nil
}

// CreateVolumes plans and composites the structures at a single wavelength.
func CreateVolumes(geom models.VolumeGeometry, structures []*structure.Structure, background *tissue.Composition,
	deformation structure.Deformation, wavelengthNM float64, opts Options) (*VolumeSet, error) {
	c, err := NewCreator(geom, structures, background, deformation, opts)
	if err != nil {
		return nil, err
	}
	plan, err := c.Plan()
	if err != nil {
		return nil, err
	}
	return plan.Volumes(wavelengthNM)
}

func cloneVolume(v *models.Volume) *models.Volume {
	c := *v
	c.Data = append([]float64(nil), v.Data...)
	return &c
}
