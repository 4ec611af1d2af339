package pipeline

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/ralphorchestrator/ralph/internal/config"
)

// LoadConfig reads and schema-validates a pipeline configuration file at
// path (spec.md §6).
func LoadConfig(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("pipeline: reading %s: %w", path, err)
	}
	if err := config.ValidatePipelineConfigJSON(raw); err != nil {
		return nil, fmt.Errorf("pipeline: validating %s: %w", path, err)
	}
	var cfg Config
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("pipeline: decoding %s: %w", path, err)
	}
	return &cfg, nil
}
