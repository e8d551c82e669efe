package main

import (
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"tissuesynth/pkg/config"
	"tissuesynth/pkg/spectrum"
	"tissuesynth/pkg/tissue"
	"tissuesynth/pkg/visualization"
	"tissuesynth/pkg/volume"
)

func main() {
	configPath := flag.String("config", "tissuesynth.yaml", "Scene description in YAML")
	outputDir := flag.String("output", "", "Directory for the raw volumes (overrides the config)")
	numCores := flag.Int("cores", 0, "Number of structures rasterized concurrently (overrides the config)")
	extractSlices := flag.Bool("extract-slices", false, "Save the central slices of every volume as PNG")
	checkLibrary := flag.Bool("check-library", false, "Compare the built-in tissues against reference values and exit")
	initConfig := flag.Bool("init-config", false, "Write the default scene description to -config and exit")
	flag.Parse()

	if *initConfig {
		if err := config.CreateDefaultConfigFile(*configPath); err != nil {
			log.Fatalf("Failed to write default config: %v", err)
		}
		fmt.Printf("Default configuration written to %s\n", *configPath)
		return
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *outputDir != "" {
		cfg.Output.Directory = *outputDir
	}
	if *numCores > 0 {
		cfg.Processing.NumCores = *numCores
	}
	if *extractSlices {
		cfg.Output.ExtractSlices = true
	}

	level := slog.LevelInfo
	if cfg.Output.Verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	if *checkLibrary {
		if !runLibraryCheck(logger) {
			os.Exit(1)
		}
		return
	}

	scene, err := cfg.Build()
	if err != nil {
		log.Fatalf("Invalid scene: %v", err)
	}
	logger.Info("scene built",
		"structures", len(scene.Structures),
		"background", scene.Background.Name(),
		"medium_temperature_c", scene.Background.MediumTemperature(),
		"wavelengths", len(scene.Wavelengths))

	opts := volume.Options{
		NumCores: scene.NumCores,
		IgnoreQA: scene.IgnoreQA,
		Logger:   logger,
		Library:  spectrum.Default(),
	}

	start := time.Now()
	if scene.SegmentationFile != "" {
		err = runSegmentation(scene, cfg, opts, logger)
	} else {
		err = runStructures(scene, cfg, opts, logger)
	}
	if err != nil {
		log.Fatalf("Volume creation failed: %v", err)
	}
	logger.Info("volume creation completed", "elapsed", time.Since(start), "output", cfg.Output.Directory)
}

func runStructures(scene *config.Scene, cfg *config.Config, opts volume.Options, logger *slog.Logger) error {
	creator, err := volume.NewCreator(scene.Geometry, scene.Structures, scene.Background, scene.Deformation, opts)
	if err != nil {
		return err
	}
	plan, err := creator.Plan()
	if err != nil {
		return err
	}

	coverage := plan.Coverage()
	names := make([]string, 0, len(coverage))
	for name := range coverage {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		logger.Info("structure coverage", "structure", name, "fraction", coverage[name])
	}

	independent := plan.Independent()
	if err := export(independent, cfg, logger); err != nil {
		return err
	}

	for _, wl := range scene.Wavelengths {
		set, err := plan.Volumes(wl)
		if err != nil {
			return err
		}
		set.DropWavelengthIndependent()
		if err := export(set, cfg, logger); err != nil {
			return err
		}
	}
	return nil
}

func runSegmentation(scene *config.Scene, cfg *config.Config, opts volume.Options, logger *slog.Logger) error {
	labels, err := volume.ReadRawVolume(scene.SegmentationFile, scene.Geometry)
	if err != nil {
		return err
	}
	for i, wl := range scene.Wavelengths {
		set, err := volume.FromSegmentation(scene.Geometry, labels, scene.Labels, wl, opts)
		if err != nil {
			return err
		}
		if i > 0 {
			set.DropWavelengthIndependent()
		}
		if err := export(set, cfg, logger); err != nil {
			return err
		}
	}
	return nil
}

func export(set *volume.VolumeSet, cfg *config.Config, logger *slog.Logger) error {
	header, err := volume.SaveRaw(set, cfg.Output.Directory)
	if err != nil {
		return err
	}
	logger.Info("saved volumes", "header", header, "fields", len(set.Volumes))

	for _, s := range volume.Summarize(set) {
		logger.Debug("volume summary",
			"field", s.Field.String(),
			"min", s.Min,
			"max", s.Max,
			"mean", s.Mean,
			"std", s.StdDev,
			"undefined", s.Undefined)
	}

	if cfg.Output.ExtractSlices {
		written, err := visualization.SaveCentralSlices(set, filepath.Join(cfg.Output.Directory, "slices"))
		if err != nil {
			logger.Warn("failed to save slices", "error", err)
		} else {
			logger.Info("saved slices", "images", len(written))
		}
	}
	return nil
}

func runLibraryCheck(logger *slog.Logger) bool {
	refs := tissue.References()
	names := make([]string, 0, len(refs))
	for name := range refs {
		names = append(names, name)
	}
	sort.Strings(names)

	ok := true
	for _, name := range names {
		comp, err := tissue.ReferenceComposition(name)
		if err != nil {
			logger.Error("failed to build reference tissue", "tissue", name, "error", err)
			ok = false
			continue
		}
		if err := tissue.CompareAgainstReference(comp, spectrum.Default(), refs[name], tissue.DefaultReferenceTolerance); err != nil {
			logger.Error("tissue deviates from reference", "tissue", name, "error", err)
			ok = false
			continue
		}
		logger.Info("tissue matches reference", "tissue", name, "wavelengths", len(refs[name]))
	}
	return ok
}
