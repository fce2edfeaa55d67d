package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"alice/container"
	"alice/persistence"
)

var stopGraceMs int

var stopCmd = &cobra.Command{
	Use:   "stop <container-id>",
	Short: "Stop a container, SIGTERM then SIGKILL after a grace period",
	Args:  cobra.ExactArgs(1),
	RunE:  runStop,
}

func init() {
	rootCmd.AddCommand(stopCmd)
	stopCmd.Flags().IntVar(&stopGraceMs, "grace-ms", 1000, "milliseconds to wait after SIGTERM before SIGKILL")
}

func runStop(cmd *cobra.Command, args []string) error {
	hook := persistence.NewFileHook(GetStateRoot())
	c, err := container.Load(args[0], hook)
	if err != nil {
		return fmt.Errorf("stop: %w", err)
	}
	if err := c.Stop(stopGraceMs); err != nil {
		return fmt.Errorf("stop: %w", err)
	}
	return nil
}
