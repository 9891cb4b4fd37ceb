package tests

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

//go:embed tests.schema.json
var schemaData []byte

var (
	batchSchema *jsonschema.Schema
	compileOnce sync.Once
	compileErr  error
)

func compileSchema() error {
	compileOnce.Do(func() {
		doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(schemaData))
		if err != nil {
			compileErr = fmt.Errorf("unmarshal tests schema: %w", err)
			return
		}

		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("tests.schema.json", doc); err != nil {
			compileErr = fmt.Errorf("add tests schema resource: %w", err)
			return
		}

		batchSchema, err = compiler.Compile("tests.schema.json")
		if err != nil {
			compileErr = fmt.Errorf("compile tests schema: %w", err)
		}
	})
	return compileErr
}

// validateSchema checks a decoded document against the batch schema.
// YAML values are round-tripped through JSON so the validator only sees JSON types.
func validateSchema(doc any) error {
	if err := compileSchema(); err != nil {
		return err
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("tests document is not JSON compatible: %w", err)
	}
	v, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}

	if err := batchSchema.Validate(v); err != nil {
		return fmt.Errorf("tests validation failed: %w", err)
	}
	return nil
}
