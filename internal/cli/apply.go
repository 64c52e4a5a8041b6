package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/stackdock-io/stackdock/internal/engine"
	"github.com/stackdock-io/stackdock/internal/ir"
	"github.com/stackdock-io/stackdock/internal/provider"
)

var (
	applyAutoApprove bool
	applyParallelism int
)

var applyCmd = &cobra.Command{
	Use:   "apply [stack-file]",
	Short: "Apply a stack declaration",
	Long:  `Creates or updates resources so the running stack matches the declaration.`,
	RunE:  runApply,
}

func init() {
	applyCmd.Flags().BoolVar(&applyAutoApprove, "auto-approve", false, "Skip interactive approval of plan before applying")
	applyCmd.Flags().IntVar(&applyParallelism, "parallelism", engine.DefaultParallelism, "Maximum number of concurrent resource operations")
}

func runApply(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, backend, err := loadStack(ctx, args)
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

	registry := provider.NewRegistry()
	if err := loadRequiredProviders(registry, cfg); err != nil {
		return err
	}
	if err := loadStateProviders(registry, currentState); err != nil {
		return err
	}

	eng := engine.NewEngine(registry)
	eng.Parallelism = applyParallelism

	fmt.Print("Calculating plan... ")
	plan, err := eng.CreatePlan(ctx, cfg, currentState)
	if err != nil {
		fmt.Println("FAILED")
		return err
	}
	fmt.Println("OK")

	if plan.IsEmpty() {
		fmt.Println("No changes. Stack is up-to-date.")
		return nil
	}

	fmt.Println("\nStackdock will perform the following actions:")
	renderPlanChanges(plan)
	renderPlanSummary(plan)

	if !applyAutoApprove {
		if !confirm("Do you want to perform these actions?") {
			fmt.Println("Apply cancelled.")
			return nil
		}
	}

	fmt.Printf("\nApplying %d changes...\n", len(plan.Changes))

	// Every committed change is flushed to the backend immediately, so an
	// interrupted run leaves a consistent partial record.
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

	fmt.Println("\nApply complete! Resources: " +
		fmt.Sprintf("%d added, %d changed, %d destroyed.", plan.Summary.Create, plan.Summary.Update+plan.Summary.Replace, plan.Summary.Delete))

	if len(newState.Outputs) > 0 {
		fmt.Println("\nOutputs:")
		for k, v := range newState.Outputs {
			fmt.Printf("  %s = %v\n", k, v)
		}
	}

	return nil
}
