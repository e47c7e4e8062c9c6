// streamctl runs a stream node and follows streams as a client.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/streamcore/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
