package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/stackdock-io/stackdock/internal/decl"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a new stack",
	Long:  `Creates a starter stack declaration in the current directory.`,
	RunE:  runInit,
}

func runInit(cmd *cobra.Command, args []string) error {
	if err := os.MkdirAll(".stackdock", 0o755); err != nil {
		return fmt.Errorf("failed to create .stackdock directory: %w", err)
	}

	if _, err := os.Stat(decl.DefaultFile); os.IsNotExist(err) {
		content := `# Stackdock stack declaration
# See: https://github.com/stackdock-io/stackdock

name: my-stack

resources:
  - type: docker_network
    name: app
    properties:
      name: app

  - type: docker_container
    name: web
    properties:
      name: web
      image: nginx:1.27
      networks:
        - "ref://docker_network.app/name"
      ports:
        "8080": 80
      restart: unless-stopped

outputs:
  web_url: http://localhost:8080
`
		if err := os.WriteFile(decl.DefaultFile, []byte(content), 0o644); err != nil {
			return fmt.Errorf("failed to create %s: %w", decl.DefaultFile, err)
		}
		fmt.Printf("Created %s\n", decl.DefaultFile)
	}

	fmt.Println("\nStackdock initialized successfully!")
	fmt.Println("Next steps:")
	fmt.Println("  1. Edit stack.yaml to describe your stack")
	fmt.Println("  2. Run 'stackdock plan' to see what will be created")
	fmt.Println("  3. Run 'stackdock apply' to bring the stack up")

	return nil
}
