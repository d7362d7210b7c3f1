package main

import (
	"os"

	"github.com/rxledger/pharmacache/internal/cli"
)

// version is injected at build time via -ldflags.
var version = "dev"

func main() {
	os.Exit(cli.Execute(version))
}
