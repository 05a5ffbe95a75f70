// Package main is the entry point for the lazystage application.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/chmouel/lazystage/internal/bootstrap"
	"github.com/chmouel/lazystage/internal/buildinfo"
	"github.com/chmouel/lazystage/internal/credentials"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
	builtBy = "unknown"
)

func main() {
	buildinfo.Set(version, commit, date, builtBy)
	buildinfo.Enrich()

	// one cache for the whole process so a password typed once is reused
	cache, err := credentials.NewCache()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if err := bootstrap.Run(context.Background(), os.Args, cache, credentials.NewTerminalPrompter()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
