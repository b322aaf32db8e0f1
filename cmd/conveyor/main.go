// Command conveyor runs a pipeline definition against the local toolchain.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/conveyorci/conveyor/pipeline/util"
)

func main() {
	// glog registers on the standard flag set; parse it empty so logging
	// works before any flag handling
	_ = flag.CommandLine.Parse([]string{})
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		if util.IsConfiguration(err) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "conveyor",
		Short:         "conveyor executes declarative build-and-delivery pipelines",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newRunCmd(), newLintCmd())
	return root
}
