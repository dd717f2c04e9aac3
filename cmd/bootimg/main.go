// Command bootimg is the CLI front end for the boot-image codec engine:
// info, unpack, and repack, generalized from the teacher's single-purpose
// TWRP ramdisk patcher (cmd/tipatch) into a general-purpose tool driven by
// the format/android reader and format/mtk writer adapters.
package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var log = logrus.New()

func main() {
	root := &cobra.Command{
		Use:   "bootimg",
		Short: "Inspect, unpack, and repack Android-family boot images",
	}

	var verbose bool
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	cobra.OnInitialize(func() {
		if verbose {
			log.SetLevel(logrus.DebugLevel)
		}
	})

	root.AddCommand(newInfoCmd())
	root.AddCommand(newUnpackCmd())
	root.AddCommand(newRepackCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
