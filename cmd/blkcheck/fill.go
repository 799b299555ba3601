package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/coreos/blkcheck"
)

var fillCluster int64

var fillCommand = &cobra.Command{
	Use:   "fill",
	Short: "write fresh sector records to the whole device or one cluster",
	Run:   run(fillAction),
}

func init() {
	fillCommand.Flags().Int64VarP(&fillCluster, "cluster", "c", -1, "only fill this cluster")
}

func fillAction(cmd *cobra.Command, args []string) error {
	if len(args) != 0 {
		return blkcheck.ErrUsage
	}
	ctx, cancel := signalContext()
	defer cancel()

	d := newDisk()
	if fillCluster >= 0 {
		if err := d.FillDisk(ctx, uint64(fillCluster)); err != nil {
			return fmt.Errorf("couldn't fill cluster %d: %w", fillCluster, err)
		}
		fmt.Printf("filled cluster %d of %s\n", fillCluster, cfg.DevicePath)
		return nil
	}
	if err := d.FillWholeDisk(ctx); err != nil {
		return fmt.Errorf("couldn't fill %s: %w", cfg.DevicePath, err)
	}
	fmt.Printf("filled %s\n", cfg.DevicePath)
	return nil
}
