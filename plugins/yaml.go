package plugins

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/kingrea/warden/internal/workflow"
)

// DefinitionFile pairs a resolved task definition with the file it came
// from.
type DefinitionFile struct {
	Definition workflow.TaskDefinition
	Path       string
}

// LoadDefinitionFile reads one YAML definition set and returns its tasks with
// the set's defaults applied.
func LoadDefinitionFile(path string) ([]DefinitionFile, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("plugin: stat %s: %w", path, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("plugin: %s is a directory", path)
	}
	set, err := workflow.LoadDefinitionFile(path)
	if err != nil {
		return nil, fmt.Errorf("plugin: %w", err)
	}
	return filesFromSet(set, filepath.Clean(path)), nil
}

// LoadDefinitionDir scans a directory for *.yaml definition sets. Missing
// directories are treated as "no definitions" to simplify startup.
func LoadDefinitionDir(dir string) ([]DefinitionFile, error) {
	trimmed := strings.TrimSpace(dir)
	if trimmed == "" {
		return nil, nil
	}
	entries, err := os.ReadDir(trimmed)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("plugin: read %s: %w", trimmed, err)
	}
	var defs []DefinitionFile
	for _, entry := range entries {
		if entry.IsDir() || !isYAMLFile(entry.Name()) {
			continue
		}
		files, err := LoadDefinitionFile(filepath.Join(trimmed, entry.Name()))
		if err != nil {
			return nil, err
		}
		defs = append(defs, files...)
	}
	if len(defs) == 0 {
		return nil, nil
	}
	sort.SliceStable(defs, func(i, j int) bool { return defs[i].Path < defs[j].Path })
	return defs, nil
}

func filesFromSet(set workflow.DefinitionSet, source string) []DefinitionFile {
	files := make([]DefinitionFile, 0, len(set.Tasks))
	for _, def := range set.Tasks {
		files = append(files, DefinitionFile{Definition: def, Path: source + "#" + def.Name})
	}
	return files
}

func isYAMLFile(name string) bool {
	lower := strings.ToLower(strings.TrimSpace(name))
	return strings.HasSuffix(lower, ".yaml") || strings.HasSuffix(lower, ".yml")
}
