// Package main provides the entry point for the coffee web app.
package main

import (
	"fmt"
	"os"

	"github.com/quincarter/coffee-app-sub000/internal/cli"
)

func main() {
	app := cli.App()

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
