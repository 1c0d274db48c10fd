package main

import (
	"fmt"
	"os"

	"github.com/emandor/lemme_search/internal/cli"
)

// set via ldflags
var version = "dev"

func main() {
	if err := cli.NewRootCmd(version).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
