package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/stackdock-io/stackdock/internal/decl"
	"github.com/stackdock-io/stackdock/internal/engine"
)

var validateCmd = &cobra.Command{
	Use:   "validate [stack-file]",
	Short: "Validate the stack declaration",
	Long: `Checks the declaration for static problems: syntax errors, duplicate
addresses, unknown providers, unresolvable references and dependency cycles.
No provider is contacted and no state is touched.`,
	RunE: runValidate,
}

func runValidate(cmd *cobra.Command, args []string) error {
	declPath, err := resolveDeclPath(args)
	if err != nil {
		return err
	}

	cfg, err := decl.Load(cmd.Context(), declPath)
	if err != nil {
		return err
	}

	// Reference and cycle problems surface from graph construction.
	if _, err := engine.Build(engine.ExpandResources(cfg.Resources)); err != nil {
		return err
	}

	fmt.Printf("Success! Declaration %s is valid. %d resource(s).\n", declPath, len(cfg.Resources))
	return nil
}
