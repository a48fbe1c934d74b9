// Package agentdefs loads agent type definitions: a built-in set plus
// user-supplied YAML files that can shadow the builtins.
package agentdefs

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/harun/coda/pkg/agentrunner"
)

// Registry resolves agent type names to specs. It implements
// agentrunner.SpecSource.
type Registry struct {
	builtin map[string]agentrunner.Spec
	custom  map[string]agentrunner.Spec
	dir     string
	logger  zerolog.Logger
	mu      sync.RWMutex
}

// NewRegistry creates a registry seeded with the built-in agent types.
// A non-empty dir is scanned for *.yaml definitions on Load.
func NewRegistry(dir string, logger zerolog.Logger) *Registry {
	return &Registry{
		builtin: builtinSpecs(),
		custom:  make(map[string]agentrunner.Spec),
		dir:     dir,
		logger:  logger,
	}
}

// Load scans the definitions directory. Individual bad files are logged
// and skipped; a missing directory is not an error.
func (r *Registry) Load() error {
	if r.dir == "" {
		return nil
	}

	entries, err := os.ReadDir(r.dir)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read agent definitions directory: %w", err)
	}

	loaded := make(map[string]agentrunner.Spec)
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || (!strings.HasSuffix(name, ".yaml") && !strings.HasSuffix(name, ".yml")) {
			continue
		}

		spec, err := loadSpecFile(filepath.Join(r.dir, name))
		if err != nil {
			r.logger.Warn().Str("file", name).Err(err).Msg("Skipping invalid agent definition")
			continue
		}
		loaded[spec.Name] = spec
	}

	r.mu.Lock()
	r.custom = loaded
	r.mu.Unlock()

	r.logger.Info().Int("custom", len(loaded)).Msg("Agent definitions loaded")
	return nil
}

func loadSpecFile(path string) (agentrunner.Spec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return agentrunner.Spec{}, err
	}

	var spec agentrunner.Spec
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return agentrunner.Spec{}, fmt.Errorf("failed to parse yaml: %w", err)
	}
	if err := validateSpec(spec); err != nil {
		return agentrunner.Spec{}, err
	}
	return spec, nil
}

func validateSpec(spec agentrunner.Spec) error {
	if spec.Name == "" {
		return fmt.Errorf("agent name is required")
	}
	if strings.ContainsAny(spec.Name, " /\\") {
		return fmt.Errorf("agent name %q contains invalid characters", spec.Name)
	}
	if spec.Instructions == "" {
		return fmt.Errorf("agent %s has no instructions", spec.Name)
	}
	return nil
}

// Lookup resolves an agent type. Custom definitions shadow builtins.
func (r *Registry) Lookup(name string) (agentrunner.Spec, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if spec, ok := r.custom[name]; ok {
		return spec, true
	}
	spec, ok := r.builtin[name]
	return spec, ok
}

// Names returns all known agent type names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]bool)
	names := []string{}
	for name := range r.builtin {
		if !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}
	for name := range r.custom {
		if !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}
