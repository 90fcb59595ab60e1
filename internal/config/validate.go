package config

import (
	_ "embed"
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueyaml "cuelang.org/go/encoding/yaml"
)

//go:embed schema.cue
var embeddedSchema []byte

// ValidateWithCue checks YAML config bytes against the #Config definition
// in schema. name is only used in error positions.
func ValidateWithCue(name string, yamlBytes, schema []byte) error {
	ctx := cuecontext.New()

	schemaVal := ctx.CompileBytes(schema)
	if err := schemaVal.Err(); err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}
	def := schemaVal.LookupPath(cue.ParsePath("#Config"))
	if !def.Exists() {
		return fmt.Errorf("schema has no #Config definition")
	}

	f, err := cueyaml.Extract(name, yamlBytes)
	if err != nil {
		return fmt.Errorf("parse YAML config: %w", err)
	}
	configVal := ctx.BuildFile(f)
	if err := configVal.Err(); err != nil {
		return fmt.Errorf("build config value: %w", err)
	}

	final := def.Unify(configVal)
	if err := final.Err(); err != nil {
		return fmt.Errorf("schema unify failed: %w", err)
	}
	if err := final.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("schema validation failed: %w", err)
	}
	return nil
}
