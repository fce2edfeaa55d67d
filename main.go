// alice is a minimal Linux container runtime: cgroup v2, namespaces, a
// pivoted root filesystem, and a CPU scheduler that reacts to cgroup
// telemetry or PSI pressure events.
package main

import (
	"fmt"
	"os"

	"alice/cmd"
	"alice/spawn"
)

func main() {
	if spawn.IsInitRequest(os.Args) {
		if err := spawn.RunInit(); err != nil {
			fmt.Fprintln(os.Stderr, "alice init:", err)
			os.Exit(1)
		}
		return
	}

	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
