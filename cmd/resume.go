package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"alice/container"
	"alice/persistence"
)

var resumeCmd = &cobra.Command{
	Use:   "resume <container-id>",
	Short: "Thaw a paused container",
	Args:  cobra.ExactArgs(1),
	RunE:  runResume,
}

func init() {
	rootCmd.AddCommand(resumeCmd)
}

func runResume(cmd *cobra.Command, args []string) error {
	hook := persistence.NewFileHook(GetStateRoot())
	c, err := container.Load(args[0], hook)
	if err != nil {
		return fmt.Errorf("resume: %w", err)
	}
	if err := c.Resume(); err != nil {
		return fmt.Errorf("resume: %w", err)
	}
	return nil
}
