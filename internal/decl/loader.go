package decl

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/stackdock-io/stackdock/internal/ir"
)

// DefaultFile is the declaration file looked for when none is given.
const DefaultFile = "stack.yaml"

// ValidationError reports a declaration that failed static validation. It is
// a configuration-time error and maps to the config exit code.
type ValidationError struct {
	Path    string
	Problem string
}

func (e *ValidationError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("invalid declaration: %s", e.Problem)
	}
	return fmt.Sprintf("invalid declaration %s: %s", e.Path, e.Problem)
}

// Load reads a stack declaration from path, dispatching on the file
// extension. YAML is the primary format; Pkl declarations are evaluated
// through the Pkl runtime.
func Load(ctx context.Context, path string) (*ir.Config, error) {
	var (
		cfg *ir.Config
		err error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		cfg, err = loadYAML(path)
	case ".pkl":
		cfg, err = loadPkl(ctx, path)
	default:
		return nil, &ValidationError{Path: path, Problem: "unsupported declaration format (expected .yaml, .yml or .pkl)"}
	}
	if err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadYAML(path string) (*ir.Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read declaration %s: %w", path, err)
	}

	var cfg ir.Config
	dec := yaml.NewDecoder(strings.NewReader(string(raw)))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return nil, &ValidationError{Path: path, Problem: err.Error()}
	}
	return &cfg, nil
}

// Validate checks a declaration for problems detectable without touching any
// provider: duplicate addresses, missing identifiers, unknown resource types.
func Validate(cfg *ir.Config) error {
	if cfg == nil {
		return &ValidationError{Problem: "empty declaration"}
	}

	seen := make(map[string]bool, len(cfg.Resources))
	for i, res := range cfg.Resources {
		if res == nil {
			return &ValidationError{Problem: fmt.Sprintf("resource at index %d is empty", i)}
		}
		if res.Type == "" {
			return &ValidationError{Problem: fmt.Sprintf("resource at index %d has no type", i)}
		}
		if res.Name == "" {
			return &ValidationError{Problem: fmt.Sprintf("resource of type %s has no name", res.Type)}
		}
		addr := res.Address()
		if seen[addr] {
			return &ValidationError{Problem: fmt.Sprintf("duplicate resource address %s", addr)}
		}
		seen[addr] = true

		if res.Provider == "" {
			res.Provider = InferProvider(res.Type)
		}
		if res.Provider == "" {
			return &ValidationError{Problem: fmt.Sprintf("cannot infer provider for resource type %s", res.Type)}
		}
		if res.Count > 0 && len(res.ForEach) > 0 {
			return &ValidationError{Problem: fmt.Sprintf("%s declares both count and for_each", addr)}
		}
	}
	return nil
}

// InferProvider maps a resource type to its provider by naming convention.
func InferProvider(resourceType string) string {
	switch {
	case strings.HasPrefix(resourceType, "docker_"):
		return "docker"
	case strings.HasPrefix(resourceType, "random_"):
		return "random"
	case resourceType == "null_resource":
		return "null"
	default:
		return ""
	}
}
