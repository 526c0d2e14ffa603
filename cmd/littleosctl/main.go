// Command littleosctl is a host-runnable demo/ops driver for the littleOS
// kernel core: it boots the simulated dual-core system (memory manager,
// scheduler, filesystem, supervisor, config store, eval bridge) over an
// in-memory block device and exposes inspection and operational
// subcommands, standing in for the real firmware's main() and shell.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var cfgFile string

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "littleosctl",
		Short: "Boot and operate a simulated littleOS kernel core",
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "", "boot configuration YAML file (defaults to built-in constants)")

	root.AddCommand(newFormatCmd())
	root.AddCommand(newRunDemoCmd())
	root.AddCommand(newPsCmd())
	root.AddCommand(newDfCmd())
	root.AddCommand(newSupervisorStatusCmd())
	root.AddCommand(newServeMetricsCmd())
	root.AddCommand(newInfoCmd())
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
