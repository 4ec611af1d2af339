package lifecycle

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/ralphorchestrator/ralph/internal/config"
)

// LoadSpecFile reads and decodes a lifecycle spec JSON file (§6), first
// validating it against the bundled JSON Schema, then decoding into a
// Spec and filling in each State's Name from its map key.
func LoadSpecFile(path string) (*Spec, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("lifecycle: reading spec %s: %w", path, err)
	}

	if err := config.ValidateLifecycleSpecJSON(raw); err != nil {
		return nil, fmt.Errorf("lifecycle: spec %s failed schema validation: %w", path, err)
	}

	var spec Spec
	if err := json.Unmarshal(raw, &spec); err != nil {
		return nil, fmt.Errorf("lifecycle: decoding spec %s: %w", path, err)
	}
	for name, st := range spec.States {
		st.Name = name
		spec.States[name] = st
	}
	return &spec, nil
}
