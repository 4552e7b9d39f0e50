package eval

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Suite is a collection of evaluation cases loaded from a file.
type Suite struct {
	// Name identifies this suite.
	Name string `json:"name" yaml:"name"`

	// Version tracks the suite version for reproducibility.
	Version string `json:"version,omitempty" yaml:"version,omitempty"`

	// Cases are the individual test scenarios.
	Cases []Case `json:"cases" yaml:"cases"`

	// Metadata stores additional suite information.
	Metadata map[string]any `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// LoadSuite loads a suite from a file. The format is detected by
// extension (.json, .yaml, .yml). Structural validation runs here;
// evaluator types are checked separately with Validate once a registry
// exists.
func LoadSuite(path string) (*Suite, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read suite file: %w", err)
	}

	var suite Suite
	switch ext := filepath.Ext(path); ext {
	case ".json":
		if err := json.Unmarshal(data, &suite); err != nil {
			return nil, fmt.Errorf("parse JSON suite: %w", err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &suite); err != nil {
			return nil, fmt.Errorf("parse YAML suite: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported suite format %q (supported: .json, .yaml, .yml)", ext)
	}

	if err := suite.validateStructure(); err != nil {
		return nil, err
	}
	return &suite, nil
}

// validateStructure checks case IDs and per-case evaluator names.
func (s *Suite) validateStructure() error {
	seen := make(map[string]bool, len(s.Cases))
	for i := range s.Cases {
		c := &s.Cases[i]
		if c.ID == "" {
			return configErrorf("", "case at index %d is missing required field 'id'", i)
		}
		if seen[c.ID] {
			return configErrorf("", "duplicate case ID %q", c.ID)
		}
		seen[c.ID] = true

		if len(c.Evaluators) == 0 {
			return configErrorf("", "case %q has no evaluators", c.ID)
		}
		if err := ValidateEvaluatorNames(c.Evaluators); err != nil {
			return fmt.Errorf("case %q: %w", c.ID, err)
		}
	}
	return nil
}

// Validate checks the whole suite against a registry: every evaluator
// config (including nested composite children) must name a registered
// type. An unrecognized type aborts before any case executes, never
// mid-run.
func (s *Suite) Validate(r *Registry) error {
	if err := s.validateStructure(); err != nil {
		return err
	}
	for i := range s.Cases {
		for j := range s.Cases[i].Evaluators {
			if err := validateTypes(&s.Cases[i].Evaluators[j], r); err != nil {
				return fmt.Errorf("case %q: %w", s.Cases[i].ID, err)
			}
		}
	}
	return nil
}

func validateTypes(cfg *EvaluatorConfig, r *Registry) error {
	if !r.Has(cfg.Type) {
		return configErrorf(cfg.Name, "unknown evaluator type %q (registered types: %s)",
			cfg.Type, strings.Join(r.Types(), ", "))
	}
	for i := range cfg.Children {
		if err := validateTypes(&cfg.Children[i], r); err != nil {
			return err
		}
	}
	return nil
}

// FilterByTags returns a new suite containing only cases carrying all of
// the given tags. Empty tags returns a shallow copy of the whole suite.
func (s *Suite) FilterByTags(tags []string) *Suite {
	filtered := &Suite{
		Name:     s.Name,
		Version:  s.Version,
		Metadata: s.Metadata,
	}
	if len(tags) == 0 {
		filtered.Cases = append([]Case{}, s.Cases...)
		return filtered
	}

	for _, c := range s.Cases {
		if hasAllTags(c.Tags, tags) {
			filtered.Cases = append(filtered.Cases, c)
		}
	}
	return filtered
}

func hasAllTags(caseTags, required []string) bool {
	tagSet := make(map[string]bool, len(caseTags))
	for _, tag := range caseTags {
		tagSet[tag] = true
	}
	for _, tag := range required {
		if !tagSet[tag] {
			return false
		}
	}
	return true
}
