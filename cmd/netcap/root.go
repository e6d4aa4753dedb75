package main

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:           "netcap",
	Short:         "Build, inject and capture raw frames outside the live netstackd",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.AddCommand(injectCmd())
	rootCmd.AddCommand(captureCmd())
	rootCmd.AddCommand(listCmd())
}
