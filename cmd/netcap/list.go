package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/soypat/netstack/internal"
	"github.com/soypat/netstack/internal/device"
)

func listCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List capture-capable network interfaces visible to libpcap",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			devs, err := device.ListDevices()
			if err != nil {
				return err
			}
			for _, d := range devs {
				// Drop any empty address strings before printing;
				// ListDevices itself records only addresses that carry an
				// IP.
				addrs := internal.DeleteZeroed(d.Addresses)
				fmt.Printf("%-16s %-30s %v\n", d.Name, d.Description, addrs)
			}
			return nil
		},
	}
}
