package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"alice/container"
	"alice/persistence"
)

var execCmd = &cobra.Command{
	Use:   "exec <container-id> -- <command> [args...]",
	Short: "Execute an additional process inside a running container",
	Args:  cobra.MinimumNArgs(2),
	RunE:  runExec,
}

func init() {
	rootCmd.AddCommand(execCmd)
}

func runExec(cmd *cobra.Command, args []string) error {
	id := args[0]
	argv := args[1:]

	hook := persistence.NewFileHook(GetStateRoot())
	c, err := container.Load(id, hook)
	if err != nil {
		return fmt.Errorf("exec: %w", err)
	}

	status, err := c.Exec(argv, nil)
	if err != nil {
		return fmt.Errorf("exec: %w", err)
	}
	os.Exit(status)
	return nil
}
