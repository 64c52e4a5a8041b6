package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/stackdock-io/stackdock/internal/provider"
	api "github.com/stackdock-io/stackdock/pkg/provider"
)

var refreshCmd = &cobra.Command{
	Use:   "refresh [stack-file]",
	Short: "Update state to match the running stack",
	Long: `Inspects every managed resource through its provider and updates the
state file to reflect what actually exists.

This detects drift between the recorded state and the live stack.`,
	RunE: runRefresh,
}

func runRefresh(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	_, backend, err := loadStack(ctx, args)
	if err != nil {
		return err
	}

	if err := backend.Lock(); err != nil {
		return err
	}
	defer backend.Unlock()

	fmt.Print("Reading state... ")
	currentState, err := backend.Read(ctx)
	if err != nil {
		fmt.Println("FAILED")
		return fmt.Errorf("failed to read state: %w", err)
	}
	fmt.Println("OK")

	if len(currentState.Resources) == 0 {
		fmt.Println("No resources to refresh.")
		return nil
	}

	registry := provider.NewRegistry()
	if err := loadStateProviders(registry, currentState); err != nil {
		return err
	}

	fmt.Printf("Refreshing %d resource(s)...\n\n", len(currentState.Resources))

	drifted := 0
	deleted := 0

	for _, res := range currentState.Resources {
		addr := res.Address()
		prov, err := registry.Get(res.Provider)
		if err != nil {
			fmt.Printf("  %s: SKIP (provider %s not available)\n", addr, res.Provider)
			continue
		}

		var outputsJSON []byte
		if res.Outputs != nil {
			outputsJSON, _ = json.Marshal(res.Outputs)
		}

		resp, err := prov.Read(ctx, &api.ReadRequest{
			Type:        res.Type,
			Name:        res.Name,
			OutputsJSON: outputsJSON,
		})
		if err != nil {
			fmt.Printf("  %s: ERROR (%v)\n", addr, err)
			continue
		}

		if !resp.Exists {
			fmt.Printf("  \033[31m%s: DELETED (no longer exists)\033[0m\n", addr)
			deleted++
			continue
		}

		if len(resp.OutputsJSON) > 0 {
			var newOutputs map[string]any
			if err := json.Unmarshal(resp.OutputsJSON, &newOutputs); err == nil {
				if fmt.Sprintf("%v", newOutputs) != fmt.Sprintf("%v", res.Outputs) {
					fmt.Printf("  \033[33m%s: DRIFTED (state updated)\033[0m\n", addr)
					res.Outputs = newOutputs
					drifted++
					continue
				}
			}
		}
		fmt.Printf("  %s: OK\n", addr)
	}

	if drifted > 0 || deleted > 0 {
		currentState.Serial++
		if err := backend.Write(ctx, currentState); err != nil {
			return fmt.Errorf("failed to write state: %w", err)
		}
	}

	fmt.Printf("\nRefresh complete. %d drifted, %d deleted.\n", drifted, deleted)
	return nil
}
