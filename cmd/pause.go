package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"alice/container"
	"alice/persistence"
)

var pauseCmd = &cobra.Command{
	Use:   "pause <container-id>",
	Short: "Freeze all processes inside a running container",
	Args:  cobra.ExactArgs(1),
	RunE:  runPause,
}

func init() {
	rootCmd.AddCommand(pauseCmd)
}

func runPause(cmd *cobra.Command, args []string) error {
	hook := persistence.NewFileHook(GetStateRoot())
	c, err := container.Load(args[0], hook)
	if err != nil {
		return fmt.Errorf("pause: %w", err)
	}
	if err := c.Pause(); err != nil {
		return fmt.Errorf("pause: %w", err)
	}
	return nil
}
