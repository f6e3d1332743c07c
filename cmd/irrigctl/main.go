// Command irrigctl is the operator CLI for the irrigation daemon: a thin
// HTTP client onto irrigatord's command surface, for use from a shell or a
// cron line on the controller itself.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var addr string

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "irrigctl",
	Short:         "Operator CLI for the irrigation daemon",
	SilenceUsage:  true,
	SilenceErrors: true,
	Long: `irrigctl talks to a running irrigatord over HTTP.

  irrigctl status                    # zones + program state
  irrigctl zone start <id> <minutes> # run one zone manually
  irrigctl zone stop <id>            # stop one zone
  irrigctl program run <id>          # run a stored program now`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&addr, "addr", "http://localhost:8080", "irrigatord base URL")

	rootCmd.AddCommand(
		newStatusCmd(),
		newZoneCmd(),
		newProgramCmd(),
	)
}
