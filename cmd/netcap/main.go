// Command netcap is a small offline companion to netstackd: it builds and
// injects one-off Ethernet/ARP/ICMP/UDP frames, and captures and decodes
// frames off a live interface. It never touches netstackd's shared ARP,
// pending-queue or socket tables; every frame it builds or parses is a
// throwaway view constructed for the duration of a single command.
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
