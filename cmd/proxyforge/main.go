// Package main is the entry point for proxyforge.
package main

import (
	"os"

	"github.com/proxyforge/proxyforge/cmd/proxyforge/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
