package workflow

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// DefaultDefinitionDir is the conventional location of task definition files
// inside the project directory.
const DefaultDefinitionDir = "tasks"

// ParseDefinitionYAML decodes a definition set, applies its defaults to every
// task and validates the result. Unknown keys are rejected.
func ParseDefinitionYAML(data []byte) (DefinitionSet, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return DefinitionSet{}, fmt.Errorf("workflow: definition payload is empty")
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var set DefinitionSet
	if err := dec.Decode(&set); err != nil && !errors.Is(err, io.EOF) {
		return DefinitionSet{}, fmt.Errorf("workflow: decode definition: %w", err)
	}
	return set.Resolved()
}

// Resolved merges the set's defaults into each task, normalizes and validates
// them. A task's non-zero fields win over the defaults; logic config maps are
// merged key by key.
func (set DefinitionSet) Resolved() (DefinitionSet, error) {
	if strings.TrimSpace(set.Defaults.Name) != "" {
		return DefinitionSet{}, &DefinitionError{Reason: "defaults must not set a name"}
	}
	if len(set.Tasks) == 0 {
		return DefinitionSet{}, &DefinitionError{Reason: "at least one task is required"}
	}
	out := DefinitionSet{Tasks: make([]TaskDefinition, 0, len(set.Tasks))}
	seen := map[string]struct{}{}
	for idx, def := range set.Tasks {
		merged, err := ApplyDefaults(set.Defaults, def)
		if err != nil {
			return DefinitionSet{}, fmt.Errorf("workflow: tasks[%d]: %w", idx, err)
		}
		merged = merged.Normalized()
		if err := merged.Validate(); err != nil {
			return DefinitionSet{}, err
		}
		if _, dup := seen[merged.Name]; dup {
			return DefinitionSet{}, &DefinitionError{Task: merged.Name, Reason: "declared more than once"}
		}
		seen[merged.Name] = struct{}{}
		out.Tasks = append(out.Tasks, merged)
	}
	return out, nil
}

// ApplyDefaults returns def with every zero field taken from defaults.
func ApplyDefaults(defaults, def TaskDefinition) (TaskDefinition, error) {
	merged := defaults.Clone()
	if err := mergo.Merge(&merged, def.Clone(), mergo.WithOverride); err != nil {
		return TaskDefinition{}, fmt.Errorf("merge defaults: %w", err)
	}
	// mergo skips zero values, so an explicit enabled: false needs copying.
	if def.Enabled != nil {
		enabled := *def.Enabled
		merged.Enabled = &enabled
	}
	return merged, nil
}

// LoadDefinitionReader reads a definition set from r.
func LoadDefinitionReader(r io.Reader) (DefinitionSet, error) {
	content, err := io.ReadAll(r)
	if err != nil {
		return DefinitionSet{}, fmt.Errorf("workflow: read definition: %w", err)
	}
	return ParseDefinitionYAML(content)
}

// LoadDefinitionFile loads a definition set from an explicit file path.
func LoadDefinitionFile(path string) (DefinitionSet, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return DefinitionSet{}, fmt.Errorf("workflow: read %s: %w", path, err)
	}
	set, parseErr := ParseDefinitionYAML(content)
	if parseErr != nil {
		return DefinitionSet{}, fmt.Errorf("workflow: %s: %w", path, parseErr)
	}
	return set, nil
}

// LoadDefinitionRelative loads a definition set from the definitions
// directory (or baseDir if provided).
func LoadDefinitionRelative(baseDir, name string) (DefinitionSet, error) {
	if baseDir == "" {
		baseDir = DefaultDefinitionDir
	}
	return LoadDefinitionFile(filepath.Join(baseDir, name))
}
