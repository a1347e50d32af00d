// Command colflow lowers columnar operator graphs and runs vectorized
// pipelines.
package main

import (
	"fmt"
	"os"

	"github.com/paveg/colflow/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
