// Command etherfuse-arb arbitrages Etherfuse stablebonds between the
// stablebond program and the Jupiter aggregator. It also exposes the
// individual building blocks (pricing, quoting, purchase, redemption and
// swaps) as one-shot subcommands.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newCLI().rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
