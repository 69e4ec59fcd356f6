package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	_ "time/tzdata"

	"github.com/jgoulah/espisync/internal/pipeline"
)

// Version information, set at build time via ldflags
var version = "dev"

// Process exit codes
const (
	exitOK      = 0
	exitFailure = 1 // config, usage or anything unexpected
	exitFetch   = 2
	exitParse   = 3
	exitWrite   = 4
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	err := rootCmd.ExecuteContext(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	cancel()
	os.Exit(exitCode(err))
}

// exitCode maps an error to the process exit status
func exitCode(err error) int {
	if err == nil {
		return exitOK
	}
	switch pipeline.StageOf(err) {
	case pipeline.StageFetch:
		return exitFetch
	case pipeline.StageParse:
		return exitParse
	case pipeline.StageWrite:
		return exitWrite
	}
	return exitFailure
}
