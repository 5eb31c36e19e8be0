// Command duesctl runs the dues sweeps and admin tasks against a dues
// database from the command line.
//
//	duesctl seed seed/demo.yaml
//	duesctl generate --as-of 2025-03-15
//	duesctl generate --club club-runners --period 2025-04
//	duesctl overdue --as-of 2025-03-26
//	duesctl remind --as-of 2025-03-22
//	duesctl charges club-runners --status unpaid
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
