package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"alice/persistence"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List all known containers and their state",
	Args:  cobra.NoArgs,
	RunE:  runList,
}

func init() {
	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	hook := persistence.NewFileHook(GetStateRoot())
	snaps, err := hook.List()
	if err != nil {
		return fmt.Errorf("list: %w", err)
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTATE\tPID")
	for _, s := range snaps {
		fmt.Fprintf(w, "%s\t%s\t%d\n", s.ID, s.State, s.PID)
	}
	return w.Flush()
}
