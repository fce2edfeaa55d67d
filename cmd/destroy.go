package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"alice/container"
	"alice/persistence"
)

var destroyCmd = &cobra.Command{
	Use:   "destroy <container-id>",
	Short: "Tear down a container's scheduler, rootfs, and cgroup",
	Args:  cobra.ExactArgs(1),
	RunE:  runDestroy,
}

func init() {
	rootCmd.AddCommand(destroyCmd)
}

func runDestroy(cmd *cobra.Command, args []string) error {
	id := args[0]
	hook := persistence.NewFileHook(GetStateRoot())
	c, err := container.Load(id, hook)
	if err != nil {
		return fmt.Errorf("destroy: %w", err)
	}
	if err := c.Destroy(); err != nil {
		return fmt.Errorf("destroy: %w", err)
	}
	return hook.Delete(id)
}
