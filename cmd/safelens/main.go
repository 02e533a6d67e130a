// Command safelens is the SafeLens CLI: it drives the local
// verification core against evidence packages. It does not fetch
// packages; its analyze command only reports that no evidence
// generator is included.
package main

import (
	"fmt"
	"os"

	"github.com/safelens/safelens/cmd/safelens/cmd"
)

func main() {
	if err := cmd.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
