package graph

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-yaml"

	"scenarioflow/pkg/models"
)

// Parser loads scenario definitions from YAML or JSON files. The file shape
// mirrors the persisted scenario document, so anything the parser accepts
// round-trips through the validator and compiler unchanged.
type Parser struct {
	validator *Validator
}

// NewParser creates a new scenario definition parser
func NewParser() *Parser {
	return &Parser{validator: NewValidator()}
}

// scenarioFile is the on-disk scenario definition
type scenarioFile struct {
	ID       string        `json:"id" yaml:"id"`
	Name     string        `json:"name" yaml:"name"`
	Schedule string        `json:"schedule" yaml:"schedule"`
	IsActive bool          `json:"is_active" yaml:"is_active"`
	Nodes    []models.Node `json:"nodes" yaml:"nodes"`
	Edges    []models.Edge `json:"edges" yaml:"edges"`
}

// ParseFile parses a scenario definition, choosing the format from the
// file extension (.yaml/.yml or .json).
func (p *Parser) ParseFile(path string) (*models.Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return p.ParseYAML(data)
	case ".json":
		return p.ParseJSON(data)
	default:
		return nil, fmt.Errorf("unsupported definition format: %s", filepath.Ext(path))
	}
}

// ParseYAML parses a scenario definition from YAML bytes
func (p *Parser) ParseYAML(data []byte) (*models.Scenario, error) {
	var sf scenarioFile
	if err := yaml.Unmarshal(data, &sf); err != nil {
		return nil, fmt.Errorf("failed to unmarshal YAML: %w", err)
	}
	return p.convert(&sf)
}

// ParseJSON parses a scenario definition from JSON bytes
func (p *Parser) ParseJSON(data []byte) (*models.Scenario, error) {
	var sf scenarioFile
	if err := json.Unmarshal(data, &sf); err != nil {
		return nil, fmt.Errorf("failed to unmarshal JSON: %w", err)
	}
	return p.convert(&sf)
}

// convert builds the scenario and runs structural validation, so a bad
// definition file fails at load time, not at first trigger.
func (p *Parser) convert(sf *scenarioFile) (*models.Scenario, error) {
	if sf.Name == "" {
		return nil, fmt.Errorf("scenario definition must have a name")
	}

	s := &models.Scenario{
		ID:       sf.ID,
		Name:     sf.Name,
		IsActive: sf.IsActive,
		Nodes:    sf.Nodes,
		Edges:    sf.Edges,
	}

	if sf.Schedule != "" {
		spec, err := models.ParseCron(sf.Schedule)
		if err != nil {
			return nil, fmt.Errorf("invalid schedule %q: %w", sf.Schedule, err)
		}
		s.Schedule = spec
	}

	if errs := p.validator.Validate(s); len(errs) > 0 {
		return nil, fmt.Errorf("scenario %q is invalid: %s (%d problems)", sf.Name, errs[0].Error(), len(errs))
	}

	return s, nil
}
