package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"alice/container"
	"alice/persistence"
	"alice/telemetry"
)

var createCmd = &cobra.Command{
	Use:   "create <container-id>",
	Short: "Create a container",
	Long: `Create a container from a rootfs directory.
The container is left in the "created" state, waiting for 'start'.`,
	Args: cobra.ExactArgs(1),
	RunE: runCreate,
}

var (
	createRootfs   string
	createHostname string
	createCPUPct   int
	createMemMax   int64
)

func init() {
	rootCmd.AddCommand(createCmd)

	createCmd.Flags().StringVarP(&createRootfs, "rootfs", "r", "", "path to the root filesystem to bind-mount (required)")
	createCmd.Flags().StringVar(&createHostname, "hostname", "", "hostname to set inside the container")
	createCmd.Flags().IntVar(&createCPUPct, "cpu-pct", 0, "CPU quota as a percentage of one core period (1-100, 0 = unlimited)")
	createCmd.Flags().Int64Var(&createMemMax, "memory-max", 0, "memory limit in bytes (0 = unlimited)")
	createCmd.MarkFlagRequired("rootfs")
}

func runCreate(cmd *cobra.Command, args []string) error {
	id := args[0]

	cfg := container.Config{
		RootfsSource: createRootfs,
		Hostname:     createHostname,
		CpuPct:       createCPUPct,
		Telemetry:    telemetry.NewFanout(telemetry.NewLogHook(nil)),
		Persistence:  persistence.NewFileHook(GetStateRoot()),
	}
	if createMemMax > 0 {
		cfg.MemoryMax = uint64(createMemMax)
	}

	c, err := container.Create(id, cfg)
	if err != nil {
		return fmt.Errorf("create container: %w", err)
	}

	fmt.Println(c.ID())
	return nil
}
