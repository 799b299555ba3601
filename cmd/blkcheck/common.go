package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/coreos/blkcheck"
	"github.com/coreos/blkcheck/disk"

	// Register all the drivers.
	_ "github.com/coreos/blkcheck/storage"
)

// errCorrupt is returned by actions that completed but found corruption.
var errCorrupt = errors.New("corruption found")

func die(why string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, why+"\n", args...)
	os.Exit(1)
}

// run adapts an action to a cobra Run function. Usage errors print the
// usage, corruption exits with status 2 and anything else dies.
func run(action func(cmd *cobra.Command, args []string) error) func(*cobra.Command, []string) {
	return func(cmd *cobra.Command, args []string) {
		err := action(cmd, args)
		writeMetrics()
		switch {
		case err == nil:
		case errors.Is(err, blkcheck.ErrUsage):
			cmd.Usage()
			os.Exit(1)
		case err == errCorrupt:
			os.Exit(2)
		default:
			die("%v", err)
		}
	}
}

func writeMetrics() {
	if metricsFile == "" {
		return
	}
	if err := prometheus.WriteToTextfile(metricsFile, prometheus.DefaultGatherer); err != nil {
		fmt.Fprintf(os.Stderr, "couldn't write metrics to %s: %v\n", metricsFile, err)
	}
}

// signalContext returns a context cancelled on the first interrupt.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, os.Interrupt)
	go func() {
		select {
		case <-signalChan:
			fmt.Fprintln(os.Stderr, "\nReceived an interrupt, stopping after the current cluster...")
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(signalChan)
	}()
	return ctx, cancel
}

func newDisk() *disk.Disk {
	return disk.New(cfg)
}

func parseUint(name, s string) (uint64, error) {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid %s %q", blkcheck.ErrUsage, name, s)
	}
	return v, nil
}

func bytesOrIbytes(s uint64, si bool) string {
	if si {
		return humanize.Bytes(s)
	}
	return humanize.IBytes(s)
}
