// Package main is the entry point for the Sunray control-plane server.
package main

import (
	"fmt"
	"os"

	"github.com/sunrayhq/control-plane/cmd/sunray-server/app"
)

func main() {
	if err := app.NewRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "there was an error: %v\n", err)
		os.Exit(1)
	}
}
