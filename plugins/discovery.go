package plugins

import (
	"fmt"

	"github.com/kingrea/warden/internal/config"
	"github.com/kingrea/warden/internal/task"
	"github.com/kingrea/warden/internal/workflow"
)

// Registrar accepts built tasks. The orchestrator satisfies it.
type Registrar interface {
	Register(t *task.Task) error
}

// RegisterTasks discovers YAML and Go task definitions under the configured
// definitions directory, builds them against logics and registers them. It
// returns the registered task names in load order.
func RegisterTasks(reg Registrar, logics *task.Registry, cfg *config.Config) ([]string, error) {
	if reg == nil || cfg == nil {
		return nil, nil
	}
	defs, err := LoadAll(cfg.DefinitionsDir())
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(defs))
	for _, file := range defs {
		built, err := workflow.Build(file.Definition, logics)
		if err != nil {
			return nil, fmt.Errorf("plugin: %s: %w", file.Path, err)
		}
		if err := reg.Register(built); err != nil {
			return nil, fmt.Errorf("plugin: register %s from %s: %w", built.Name, file.Path, err)
		}
		names = append(names, built.Name)
	}
	return names, nil
}

// LoadAll reads every YAML and Go definition in dir and rejects task names
// declared in more than one place.
func LoadAll(dir string) ([]DefinitionFile, error) {
	yamlDefs, err := LoadDefinitionDir(dir)
	if err != nil {
		return nil, err
	}
	goDefs, err := LoadGoDefinitionDir(dir)
	if err != nil {
		return nil, err
	}
	all := append(yamlDefs, goDefs...)
	seen := make(map[string]string, len(all))
	for _, file := range all {
		name := file.Definition.Name
		if existing, ok := seen[name]; ok {
			return nil, fmt.Errorf("plugin: duplicate task %s (%s and %s)", name, existing, file.Path)
		}
		seen[name] = file.Path
	}
	return all, nil
}
