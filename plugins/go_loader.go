package plugins

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strings"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"
	"gopkg.in/yaml.v3"

	"github.com/kingrea/warden/internal/workflow"
)

const (
	goDefinitionFuncName = "TaskDefinitions"
	goDefaultsFuncName   = "TaskDefaults"
)

// LoadGoDefinitionDir evaluates every .go file in dir and collects the task
// definitions returned by its TaskDefinitions() function. A file may also
// declare TaskDefaults() map[string]any, applied like a YAML set's defaults.
func LoadGoDefinitionDir(dir string) ([]DefinitionFile, error) {
	trimmed := strings.TrimSpace(dir)
	if trimmed == "" {
		return nil, nil
	}
	entries, err := os.ReadDir(trimmed)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("plugin: read %s: %w", trimmed, err)
	}
	var defs []DefinitionFile
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".go" {
			continue
		}
		fileDefs, err := loadGoDefinitionFile(filepath.Join(trimmed, entry.Name()))
		if err != nil {
			return nil, err
		}
		defs = append(defs, fileDefs...)
	}
	if len(defs) == 0 {
		return nil, nil
	}
	sort.SliceStable(defs, func(i, j int) bool { return defs[i].Path < defs[j].Path })
	return defs, nil
}

func loadGoDefinitionFile(path string) ([]DefinitionFile, error) {
	code, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("plugin: read %s: %w", path, err)
	}
	if len(strings.TrimSpace(string(code))) == 0 {
		return nil, fmt.Errorf("plugin: %s is empty", path)
	}
	i := interp.New(interp.Options{})
	if err := i.Use(stdlib.Symbols); err != nil {
		return nil, fmt.Errorf("plugin: load stdlib symbols: %w", err)
	}
	if _, err := i.EvalPath(path); err != nil {
		return nil, fmt.Errorf("plugin: interpret %s: %w", path, err)
	}
	fnValue, err := i.Eval(goDefinitionFuncName)
	if err != nil {
		return nil, fmt.Errorf("plugin: %s must define %s() ([]map[string]any, error): %w", path, goDefinitionFuncName, err)
	}
	tasks, err := invokeDefinitionFunc(fnValue)
	if err != nil {
		return nil, fmt.Errorf("plugin: %s: %w", path, err)
	}
	raw := map[string]any{"tasks": tasks}
	if defaultsValue, err := i.Eval(goDefaultsFuncName); err == nil {
		defaults, err := invokeDefaultsFunc(defaultsValue)
		if err != nil {
			return nil, fmt.Errorf("plugin: %s: %w", path, err)
		}
		raw["defaults"] = defaults
	}
	payload, err := yaml.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("plugin: %s: encode definitions: %w", path, err)
	}
	set, err := workflow.ParseDefinitionYAML(payload)
	if err != nil {
		return nil, fmt.Errorf("plugin: %s: %w", path, err)
	}
	return filesFromSet(set, filepath.Clean(path)), nil
}

func invokeDefinitionFunc(value reflect.Value) ([]map[string]any, error) {
	if !value.IsValid() {
		return nil, fmt.Errorf("missing %s function", goDefinitionFuncName)
	}
	if value.Kind() != reflect.Func {
		return nil, fmt.Errorf("%s is not a function", goDefinitionFuncName)
	}
	results := value.Call(nil)
	if len(results) == 0 || len(results) > 2 {
		return nil, fmt.Errorf("%s must return ([]map[string]any[, error])", goDefinitionFuncName)
	}
	if err := resultError(goDefinitionFuncName, results); err != nil {
		return nil, err
	}
	defsVal := results[0]
	if defs, ok := defsVal.Interface().([]map[string]any); ok {
		return defs, nil
	}
	if defsVal.Kind() != reflect.Slice {
		return nil, fmt.Errorf("%s must return []map[string]any", goDefinitionFuncName)
	}
	defs := make([]map[string]any, defsVal.Len())
	for i := 0; i < defsVal.Len(); i++ {
		m, ok := defsVal.Index(i).Interface().(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%s[%d] is not map[string]any", goDefinitionFuncName, i)
		}
		defs[i] = m
	}
	return defs, nil
}

func invokeDefaultsFunc(value reflect.Value) (map[string]any, error) {
	if value.Kind() != reflect.Func {
		return nil, fmt.Errorf("%s is not a function", goDefaultsFuncName)
	}
	results := value.Call(nil)
	if len(results) == 0 || len(results) > 2 {
		return nil, fmt.Errorf("%s must return (map[string]any[, error])", goDefaultsFuncName)
	}
	if err := resultError(goDefaultsFuncName, results); err != nil {
		return nil, err
	}
	defaults, ok := results[0].Interface().(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%s must return map[string]any", goDefaultsFuncName)
	}
	return defaults, nil
}

func resultError(name string, results []reflect.Value) error {
	if len(results) != 2 || results[1].IsNil() {
		return nil
	}
	if e, ok := results[1].Interface().(error); ok && e != nil {
		return e
	}
	return fmt.Errorf("%s returned non-error second value", name)
}
