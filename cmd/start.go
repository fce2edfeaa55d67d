package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"alice/container"
	"alice/persistence"
)

var startCmd = &cobra.Command{
	Use:   "start <container-id> -- <command> [args...]",
	Short: "Start a created container",
	Args:  cobra.MinimumNArgs(2),
	RunE:  runStart,
}

func init() {
	rootCmd.AddCommand(startCmd)
}

func runStart(cmd *cobra.Command, args []string) error {
	id := args[0]
	argv := args[1:]

	hook := persistence.NewFileHook(GetStateRoot())
	c, err := container.Load(id, hook)
	if err != nil {
		return fmt.Errorf("start container: %w", err)
	}

	if err := c.Start(argv, nil); err != nil {
		return fmt.Errorf("start container: %w", err)
	}
	return nil
}
