package odb

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/meridian-obs/meridian-core/internal/engine"
)

// StepDefinition is one step of an observation as written in the file.
type StepDefinition struct {
	// Exposure is the dataset exposure time in seconds.
	Exposure float64 `yaml:"exposure"`

	// Configs maps subsystem resources to their demanded settings for
	// this step. Keys must be valid resource names.
	Configs map[string]map[string]any `yaml:"configs"`

	// Breakpoint pauses the sequence before this step executes.
	Breakpoint bool `yaml:"breakpoint"`

	// Skip excludes this step from execution.
	Skip bool `yaml:"skip"`
}

// ObservationDefinition is a fully parsed and validated observation file.
type ObservationDefinition struct {
	ID         string           `yaml:"id"`
	Title      string           `yaml:"title"`
	Instrument string           `yaml:"instrument"`
	Observer   string           `yaml:"observer"`
	Steps      []StepDefinition `yaml:"steps"`
}

// Summary is the listing entry for one available observation.
type Summary struct {
	ID         string `json:"id"`
	Title      string `json:"title"`
	Instrument string `json:"instrument"`
	Steps      int    `json:"steps"`
}

// Source loads observation definitions from a directory of YAML files.
// Files are named <obs-id>.yaml; the id inside the file must match.
type Source struct {
	dir string
}

// NewSource creates a source reading from the given directory.
func NewSource(dir string) *Source {
	return &Source{dir: dir}
}

// Load reads and validates the definition for one observation.
//
// Returns ErrNotFound if no file exists, ErrInvalidDefinition (wrapped
// with detail) if the file fails validation.
func (s *Source) Load(obsID string) (*ObservationDefinition, error) {
	path := filepath.Join(s.dir, obsID+".yaml")
	data, err := os.ReadFile(path) //nolint:gosec // path is rooted in the configured sequences dir
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, obsID)
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	var def ObservationDefinition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("%w: parsing %s: %w", ErrInvalidDefinition, path, err)
	}

	if def.ID != obsID {
		return nil, fmt.Errorf("%w: file %s declares id %q", ErrInvalidDefinition, path, def.ID)
	}

	if err := def.Validate(); err != nil {
		return nil, err
	}

	return &def, nil
}

// List returns summaries for every definition in the directory, sorted
// by observation id. Files that fail to parse are skipped.
func (s *Source) List() ([]Summary, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("reading sequences dir: %w", err)
	}

	summaries := []Summary{}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".yaml") {
			continue
		}
		obsID := strings.TrimSuffix(entry.Name(), ".yaml")
		def, err := s.Load(obsID)
		if err != nil {
			continue
		}
		summaries = append(summaries, Summary{
			ID:         def.ID,
			Title:      def.Title,
			Instrument: def.Instrument,
			Steps:      len(def.Steps),
		})
	}

	sort.Slice(summaries, func(i, j int) bool { return summaries[i].ID < summaries[j].ID })
	return summaries, nil
}

// Validate checks structural constraints on the definition.
func (d *ObservationDefinition) Validate() error {
	if d.ID == "" {
		return fmt.Errorf("%w: missing id", ErrInvalidDefinition)
	}
	if !engine.ValidResource(engine.Resource(d.Instrument)) {
		return fmt.Errorf("%w: %s: unknown instrument %q", ErrInvalidDefinition, d.ID, d.Instrument)
	}
	if len(d.Steps) == 0 {
		return fmt.Errorf("%w: %s has no steps", ErrInvalidDefinition, d.ID)
	}
	for i, step := range d.Steps {
		if step.Exposure <= 0 {
			return fmt.Errorf("%w: %s step %d: exposure must be positive", ErrInvalidDefinition, d.ID, i)
		}
		for name := range step.Configs {
			if !engine.ValidResource(engine.Resource(name)) {
				return fmt.Errorf("%w: %s step %d: unknown resource %q", ErrInvalidDefinition, d.ID, i, name)
			}
		}
	}
	return nil
}
