// Package tests loads the batch of tests to schedule.
package tests

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/tupyy/browser-runner/internal/models"
)

type file struct {
	Tests []models.Test `yaml:"tests"`
}

// Load reads a YAML (or JSON) file holding either a list of tests or a
// document with a "tests" key.
func Load(path string) ([]models.Test, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read tests file: %w", err)
	}
	return Parse(data)
}

func Parse(data []byte) ([]models.Test, error) {
	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return nil, fmt.Errorf("failed to parse tests: %w", err)
	}
	if len(node.Content) == 0 {
		return nil, nil
	}

	root := node.Content[0]
	var doc any
	if err := root.Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to decode tests: %w", err)
	}
	if root.Kind == yaml.SequenceNode || root.Kind == yaml.MappingNode {
		if err := validateSchema(doc); err != nil {
			return nil, err
		}
	}

	var tests []models.Test
	switch root.Kind {
	case yaml.SequenceNode:
		if err := root.Decode(&tests); err != nil {
			return nil, fmt.Errorf("failed to decode tests: %w", err)
		}
	case yaml.MappingNode:
		var f file
		if err := root.Decode(&f); err != nil {
			return nil, fmt.Errorf("failed to decode tests: %w", err)
		}
		tests = f.Tests
	default:
		return nil, errors.New("tests must be a list or a document with a 'tests' list")
	}

	if err := Validate(tests); err != nil {
		return nil, err
	}
	return tests, nil
}

// Validate checks that every test has a unique, non-empty id.
func Validate(tests []models.Test) error {
	seen := make(map[string]struct{}, len(tests))
	for i, t := range tests {
		if t.ID == "" {
			return fmt.Errorf("test #%d has no id", i)
		}
		if _, ok := seen[t.ID]; ok {
			return fmt.Errorf("duplicate test id %q", t.ID)
		}
		seen[t.ID] = struct{}{}
	}
	return nil
}
