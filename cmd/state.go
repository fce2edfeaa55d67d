package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"alice/container"
	"alice/persistence"
)

var stateCmd = &cobra.Command{
	Use:   "state <container-id>",
	Short: "Print a container's current lifecycle state",
	Args:  cobra.ExactArgs(1),
	RunE:  runState,
}

func init() {
	rootCmd.AddCommand(stateCmd)
}

func runState(cmd *cobra.Command, args []string) error {
	hook := persistence.NewFileHook(GetStateRoot())
	c, err := container.Load(args[0], hook)
	if err != nil {
		return fmt.Errorf("state: %w", err)
	}
	fmt.Println(c.State())
	return nil
}
