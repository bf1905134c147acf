// Command twola imports tweets from a remote source and serves them.
//
// @title       twola API
// @version     1.0
// @description Read-only JSON API over tweets imported from the remote tweet source.
// @license.name MIT
// @BasePath    /api/v1
package main

import (
	"fmt"
	"os"

	"github.com/tbourn/twola/internal/cli"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := cli.NewRootCommand(version).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
