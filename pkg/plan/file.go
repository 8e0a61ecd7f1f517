package plan

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// DefaultFanout is used when a parallel plan omits its fanout.
const DefaultFanout = 2

// DefaultMaxIterations is the per-step attempt budget when a plan omits it.
// Matches the default retry policy's total attempts (max_retries + 1).
const DefaultMaxIterations = 3

// Load reads a YAML plan document from disk, applies defaults, and validates it.
func Load(path string) (*Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read plan file: %w", err)
	}
	return Parse(data)
}

// Parse decodes a YAML plan document, applies defaults, and validates it.
func Parse(data []byte) (*Plan, error) {
	var p Plan
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to parse plan file: %w", err)
	}

	p.ApplyDefaults()

	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("invalid plan: %w", err)
	}
	return &p, nil
}

// ApplyDefaults fills zero values with their documented defaults.
func (p *Plan) ApplyDefaults() {
	if p.Mode == "" {
		p.Mode = ModeSequential
	}
	if p.Mode == ModeParallel && p.Fanout == 0 {
		p.Fanout = DefaultFanout
	}
	for i := range p.Steps {
		if p.Steps[i].MaxIterations == 0 {
			p.Steps[i].MaxIterations = DefaultMaxIterations
		}
	}
}
