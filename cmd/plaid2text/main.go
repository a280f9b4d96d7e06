// Package main is the entry point for the plaid2text CLI.
package main

import (
	"os"

	"github.com/pigeonworks-llc/plaid2text/cmd/plaid2text/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
