package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/coreos/blkcheck"
	"github.com/coreos/blkcheck/internal/nbd"
)

var nbdCommand = &cobra.Command{
	Use:   "nbd [NBD_DEVICE]",
	Short: "expose the device through the kernel NBD layer until interrupted",
	Long:  "Attach the configured device, usually an mfile image, to /dev/nbdN so fill and check can be run against the kernel NBD path.",
	Run:   run(nbdAction),
}

func init() {
	rootCommand.AddCommand(nbdCommand)
}

func nbdAction(cmd *cobra.Command, args []string) error {
	if len(args) > 1 {
		return blkcheck.ErrUsage
	}
	var target string
	if len(args) == 1 {
		target = args[0]
	}

	dev, err := blkcheck.OpenDevice(cfg)
	if err != nil {
		return fmt.Errorf("couldn't open %s: %w", cfg.DevicePath, err)
	}
	defer dev.Close()

	export := nbd.NewExport(dev)
	if err := export.Connect(target); err != nil {
		return fmt.Errorf("couldn't attach %s: %w", cfg.DevicePath, err)
	}
	defer export.Close()
	fmt.Printf("serving %s on %s\n", cfg.DevicePath, export.Path())

	ctx, cancel := signalContext()
	defer cancel()
	return export.Serve(ctx)
}
