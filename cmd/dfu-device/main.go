package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/go-usb/virtualdfu/util"
)

var verbose bool

var rootCmd = &cobra.Command{
	Use:   "dfu-device",
	Short: "Run and inspect a virtual USB DFU device",
	Long:  `dfu-device attaches a virtual DFU 1.1 device over USB/IP and inspects DFU image/vault files`,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(imageCmd)
	rootCmd.AddCommand(vaultCmd)
}

func setupLogging() {
	util.SetLogOutput(os.Stdout)
	if verbose {
		util.SetLogLevel(util.LogLevelTrace)
	} else {
		util.SetLogLevel(util.LogLevelEnabled)
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
