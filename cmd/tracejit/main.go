// Command tracejit compiles, runs and inspects loop traces on the portable
// trace-JIT backend.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/tracejit/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
