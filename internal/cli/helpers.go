package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/stackdock-io/stackdock/internal/decl"
	"github.com/stackdock-io/stackdock/internal/engine"
	"github.com/stackdock-io/stackdock/internal/ir"
	"github.com/stackdock-io/stackdock/internal/provider"
	"github.com/stackdock-io/stackdock/internal/state"
)

// defaultStatePath is the local state file relative to the declaration.
func defaultStatePath(declPath string) string {
	return filepath.Join(filepath.Dir(declPath), ".stackdock", "state.json")
}

// resolveDeclPath turns the optional positional argument into a declaration
// file path, falling back to stack.yaml in the working directory.
func resolveDeclPath(args []string) (string, error) {
	if len(args) == 0 {
		return decl.DefaultFile, nil
	}

	path := args[0]
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("failed to stat path %s: %w", path, err)
	}
	if info.IsDir() {
		return filepath.Join(path, decl.DefaultFile), nil
	}
	return path, nil
}

// loadStack loads the declaration and opens its state backend.
func loadStack(ctx context.Context, args []string) (*ir.Config, state.Backend, error) {
	declPath, err := resolveDeclPath(args)
	if err != nil {
		return nil, nil, err
	}

	cfg, err := decl.Load(ctx, declPath)
	if err != nil {
		return nil, nil, err
	}

	backend, err := state.NewBackend(cfg.Backend, defaultStatePath(declPath))
	if err != nil {
		return nil, nil, err
	}
	return cfg, backend, nil
}

// loadRequiredProviders auto-loads all providers referenced by declared resources.
func loadRequiredProviders(registry *provider.Registry, cfg *ir.Config) error {
	seen := make(map[string]bool)
	for _, res := range cfg.Resources {
		if res.Provider != "" && !seen[res.Provider] {
			seen[res.Provider] = true
			if err := registry.LoadProvider(res.Provider); err != nil {
				return fmt.Errorf("failed to load provider %s: %w", res.Provider, err)
			}
		}
	}
	return nil
}

// loadStateProviders auto-loads all providers referenced by state resources (needed for DELETE).
func loadStateProviders(registry *provider.Registry, s *ir.State) error {
	seen := make(map[string]bool)
	for _, res := range s.Resources {
		if res.Provider != "" && !seen[res.Provider] {
			seen[res.Provider] = true
			if err := registry.LoadProvider(res.Provider); err != nil {
				return fmt.Errorf("failed to load provider %s: %w", res.Provider, err)
			}
		}
	}
	return nil
}

// confirm prompts for interactive approval.
func confirm(prompt string) bool {
	fmt.Printf("\n%s (y/n): ", prompt)
	var response string
	fmt.Scanln(&response)
	return response == "y" || response == "yes"
}

// renderPlanChanges prints the detailed change list for a plan.
func renderPlanChanges(plan *ir.Plan) {
	for _, change := range plan.Changes {
		symbol := "~"
		switch change.Action {
		case ir.ActionCreate:
			symbol = "+"
		case ir.ActionDelete:
			symbol = "-"
		case ir.ActionReplace:
			symbol = "-/+"
		case ir.ActionNoop:
			symbol = " "
		}

		color := "\033[0m"
		switch change.Action {
		case ir.ActionCreate:
			color = "\033[32m"
		case ir.ActionDelete:
			color = "\033[31m"
		case ir.ActionUpdate, ir.ActionReplace:
			color = "\033[33m"
		}

		var resourceType, resourceName string
		if change.Desired != nil {
			resourceType = change.Desired.Type
			resourceName = change.Desired.Name
		} else if change.Prior != nil {
			resourceType = change.Prior.Type
			resourceName = change.Prior.Name
		}

		fmt.Printf("\n%s  # %s will be %s%s\n", color, change.Address, change.Action, "\033[0m")
		fmt.Printf("%s  %s resource \"%s\" \"%s\" {\n", color, symbol, resourceType, resourceName)

		if len(change.Diff) > 0 {
			renderPropertyDiff(change, color)
		} else {
			fmt.Printf("%s      ...\n", color)
		}
		fmt.Printf("%s    }%s\n", color, "\033[0m")
	}
}

// renderPropertyDiff prints structured property diffs, masking sensitive values.
func renderPropertyDiff(change *ir.ResourceChange, color string) {
	for key, diff := range change.Diff {
		before := formatDiffValue(diff.Before, diff.Sensitive)
		after := formatDiffValue(diff.After, diff.Sensitive)

		suffix := ""
		if diff.ForcesReplacement {
			suffix = " # forces replacement"
		}

		switch diff.Action {
		case "create":
			fmt.Printf("\033[32m      + %s = %s%s\033[0m\n", key, after, suffix)
		case "delete":
			fmt.Printf("\033[31m      - %s = %s%s\033[0m\n", key, before, suffix)
		case "update":
			fmt.Printf("\033[33m      ~ %s = %s -> %s%s\033[0m\n", key, before, after, suffix)
		default:
			fmt.Printf("%s        %s = %s\n", color, key, after)
		}
	}
}

func formatDiffValue(v any, sensitive bool) string {
	if sensitive {
		return "(sensitive value)"
	}
	return formatValue(v)
}

// formatValue returns a human-readable representation of a value.
func formatValue(v any) string {
	if v == nil {
		return "null"
	}
	switch val := v.(type) {
	case string:
		return fmt.Sprintf("%q", val)
	default:
		return fmt.Sprintf("%v", val)
	}
}

// renderPlanSummary prints the plan summary counts.
func renderPlanSummary(plan *ir.Plan) {
	fmt.Println("\nPlan Summary:")
	fmt.Printf("  Create:  %d\n", plan.Summary.Create)
	fmt.Printf("  Update:  %d\n", plan.Summary.Update)
	fmt.Printf("  Delete:  %d\n", plan.Summary.Delete)
	fmt.Printf("  Replace: %d\n", plan.Summary.Replace)
	fmt.Printf("  NoOp:    %d\n", plan.Summary.NoOp)
}

// renderApplyResult prints the per-resource outcome of an apply run.
func renderApplyResult(result *engine.ApplyResult) {
	fmt.Printf("\nRun summary: %d succeeded, %d failed, %d skipped.\n",
		len(result.Succeeded), len(result.Failed), len(result.Skipped))
	for _, addr := range result.Failed {
		fmt.Printf("  \033[31mfailed:  %s\033[0m\n", addr)
	}
	for _, addr := range result.Skipped {
		fmt.Printf("  \033[33mskipped: %s\033[0m\n", addr)
	}
}

// applyCallback streams per-resource progress to the terminal.
func applyCallback(event engine.ApplyEvent) {
	switch event.Status {
	case "started":
		fmt.Printf("  %s: %s...\n", event.Address, event.Action)
	case "completed":
		fmt.Printf("  \033[32m%s: %s complete (%.1fs)\033[0m\n", event.Address, event.Action, event.Duration.Seconds())
	case "failed":
		fmt.Printf("  \033[31m%s: %s failed: %v\033[0m\n", event.Address, event.Action, event.Error)
	case "skipped":
		fmt.Printf("  \033[33m%s: skipped\033[0m\n", event.Address)
	}
}
