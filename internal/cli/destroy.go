package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/stackdock-io/stackdock/internal/engine"
	"github.com/stackdock-io/stackdock/internal/ir"
	"github.com/stackdock-io/stackdock/internal/provider"
)

var destroyAutoApprove bool

var destroyCmd = &cobra.Command{
	Use:   "destroy [stack-file]",
	Short: "Destroy all resources in the stack",
	Long: `Deletes every resource recorded in state, dependents strictly before
their dependencies.`,
	RunE: runDestroy,
}

func init() {
	destroyCmd.Flags().BoolVar(&destroyAutoApprove, "auto-approve", false, "Skip interactive approval before destroying")
}

func runDestroy(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	_, backend, err := loadStack(ctx, args)
	if err != nil {
		return err
	}

	if err := backend.Lock(); err != nil {
		return err
	}
	defer backend.Unlock()

	currentState, err := backend.Read(ctx)
	if err != nil {
		return fmt.Errorf("failed to read state: %w", err)
	}

	if len(currentState.Resources) == 0 {
		fmt.Println("No resources to destroy.")
		return nil
	}

	registry := provider.NewRegistry()
	if err := loadStateProviders(registry, currentState); err != nil {
		return err
	}

	eng := engine.NewEngine(registry)

	plan, err := eng.CreateDestroyPlan(ctx, currentState)
	if err != nil {
		return err
	}

	fmt.Println("Stackdock will destroy the following resources:")
	renderPlanChanges(plan)
	renderPlanSummary(plan)

	if !destroyAutoApprove {
		if !confirm("Do you really want to destroy all resources?") {
			fmt.Println("Destroy cancelled.")
			return nil
		}
	}

	fmt.Printf("\nDestroying %d resources...\n", len(plan.Changes))

	opts := engine.ApplyOptions{
		Callback: applyCallback,
		Checkpoint: func(s *ir.State) error {
			return backend.Write(ctx, s)
		},
	}

	newState, result, applyErr := eng.ApplyPlanWithOptions(ctx, plan, currentState, opts)

	if err := backend.Write(ctx, newState); err != nil {
		return fmt.Errorf("failed to write state: %w", err)
	}

	renderApplyResult(result)

	if applyErr != nil {
		return applyErr
	}

	fmt.Printf("\nDestroy complete! %d resources destroyed.\n", len(result.Succeeded))
	return nil
}
