package config

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

//go:embed schemas/lifecycle_schema.json
var lifecycleSchemaJSON string

//go:embed schemas/pipeline_schema.json
var pipelineSchemaJSON string

//go:embed schemas/agents_schema.json
var agentsSchemaJSON string

var (
	compileOnce   sync.Once
	compiledLife  *jsonschema.Schema
	compiledPipe  *jsonschema.Schema
	compiledAgent *jsonschema.Schema
	compileErr    error
)

func compileAll() {
	compiledLife, compileErr = compileSchema(lifecycleSchemaJSON, "lifecycle.json")
	if compileErr != nil {
		return
	}
	compiledPipe, compileErr = compileSchema(pipelineSchemaJSON, "pipeline.json")
	if compileErr != nil {
		return
	}
	compiledAgent, compileErr = compileSchema(agentsSchemaJSON, "agents.json")
}

func compileSchema(schemaJSON, resourceName string) (*jsonschema.Schema, error) {
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(schemaJSON))
	if err != nil {
		return nil, fmt.Errorf("config: parsing embedded schema %s: %w", resourceName, err)
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource(resourceName, doc); err != nil {
		return nil, fmt.Errorf("config: adding schema resource %s: %w", resourceName, err)
	}
	schema, err := c.Compile(resourceName)
	if err != nil {
		return nil, fmt.Errorf("config: compiling schema %s: %w", resourceName, err)
	}
	return schema, nil
}

// ValidateLifecycleSpecJSON validates raw JSON bytes against the lifecycle
// spec schema, returning a descriptive error on any mismatch.
func ValidateLifecycleSpecJSON(raw []byte) error {
	return validateAgainst(raw, func() (*jsonschema.Schema, error) {
		compileOnce.Do(compileAll)
		return compiledLife, compileErr
	})
}

// ValidatePipelineConfigJSON validates raw JSON bytes against the pipeline
// configuration schema.
func ValidatePipelineConfigJSON(raw []byte) error {
	return validateAgainst(raw, func() (*jsonschema.Schema, error) {
		compileOnce.Do(compileAll)
		return compiledPipe, compileErr
	})
}

// ValidateAgentRegistryJSON validates raw JSON bytes against the agent
// registry schema.
func ValidateAgentRegistryJSON(raw []byte) error {
	return validateAgainst(raw, func() (*jsonschema.Schema, error) {
		compileOnce.Do(compileAll)
		return compiledAgent, compileErr
	})
}

func validateAgainst(raw []byte, resolve func() (*jsonschema.Schema, error)) error {
	schema, err := resolve()
	if err != nil {
		return err
	}
	var instance any
	if err := json.Unmarshal(raw, &instance); err != nil {
		return fmt.Errorf("config: parsing JSON for schema validation: %w", err)
	}
	if err := schema.Validate(instance); err != nil {
		return fmt.Errorf("config: schema validation failed: %w", err)
	}
	return nil
}
