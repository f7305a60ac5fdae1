// Command bylines backfills author terms for content records.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/roach88/bylines/internal/cli"
)

func main() {
	cmd := cli.NewRootCommand()
	if err := cmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
