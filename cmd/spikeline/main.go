package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func main() {
	var root = &cobra.Command{
		Use:   "spikeline",
		Short: "Post-sorting pipeline: drift correction, isolation, rasters, stitching",
	}

	root.AddCommand(runCMD(), stitchCMD(), migrateCMD(), workerCMD(), enqueueCMD(), opsCMD())
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// signalContext cancels on SIGINT/SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func newLogger(prefix string) *log.Logger {
	return log.New(os.Stdout, prefix, log.LstdFlags)
}
