// Package main is the entry point for the sonido-insect CLI.
//
// Usage:
//
//	sonido-insect [flags] <command> [args]
//
// Commands:
//
//	classify  - Classify one or more recordings
//	extract   - Print the feature vector of a recording
//	clean     - Write the cleaned waveform of a recording
//	inspect   - Report on the loaded model artifacts
//	batch     - Classify every recording under a directory
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/RyanBlaney/sonido-insect/cmd/sonido-insect/commands"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := commands.NewRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}
