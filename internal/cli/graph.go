package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/stackdock-io/stackdock/internal/decl"
	"github.com/stackdock-io/stackdock/internal/engine"
)

var graphCmd = &cobra.Command{
	Use:   "graph [stack-file]",
	Short: "Output the dependency graph in DOT format",
	Long: `Generates a visual representation of the resource dependency graph
in Graphviz DOT format. Pipe the output to 'dot' to generate an image:

  stackdock graph | dot -Tpng > graph.png`,
	RunE: runGraph,
}

func runGraph(cmd *cobra.Command, args []string) error {
	declPath, err := resolveDeclPath(args)
	if err != nil {
		return err
	}

	cfg, err := decl.Load(cmd.Context(), declPath)
	if err != nil {
		return err
	}

	resources := engine.ExpandResources(cfg.Resources)
	graph, err := engine.Build(resources)
	if err != nil {
		return err
	}

	fmt.Println("digraph stackdock {")
	fmt.Println("  rankdir = \"BT\";")
	fmt.Println("  node [shape = rect];")
	fmt.Println()

	for _, res := range resources {
		fmt.Printf("  %q;\n", res.Address())
	}
	fmt.Println()

	for _, res := range resources {
		for _, dep := range graph.Dependencies(res.Address()) {
			fmt.Printf("  %q -> %q;\n", res.Address(), dep)
		}
	}

	fmt.Println("}")
	return nil
}
