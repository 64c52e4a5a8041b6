package decl

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/apple/pkl-go/pkl"

	"github.com/stackdock-io/stackdock/internal/ir"
)

// loadPkl evaluates a Pkl declaration into the stack config. Declarations
// written in Pkl get amends/imports and typed templates for free; the
// evaluated module must produce the same shape the YAML loader does.
func loadPkl(ctx context.Context, path string) (*ir.Config, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve declaration path %s: %w", path, err)
	}

	evaluator, err := pkl.NewEvaluator(ctx, pkl.PreconfiguredOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to create Pkl evaluator: %w", err)
	}
	defer evaluator.Close()

	var cfg ir.Config
	if err := evaluator.EvaluateModule(ctx, pkl.FileSource(abs), &cfg); err != nil {
		return nil, &ValidationError{Path: path, Problem: err.Error()}
	}
	return &cfg, nil
}
