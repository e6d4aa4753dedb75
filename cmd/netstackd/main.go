// Command netstackd runs the user-space IPv4 stack as a standalone daemon,
// bridging a host network interface to the ARP, IPv4, ICMP and UDP
// implementations in this module.
package main

import "os"

func main() {
	os.Exit(run())
}

func run() int {
	if err := rootCmd.Execute(); err != nil {
		return 1
	}
	return 0
}
