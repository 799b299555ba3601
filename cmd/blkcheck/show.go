package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/coreos/blkcheck"
	"github.com/coreos/blkcheck/sector"
)

var showCommand = &cobra.Command{
	Use:   "show CLUSTER SECTOR",
	Short: "decode one sector record as it is on the device",
	Run:   run(showAction),
}

func showAction(cmd *cobra.Command, args []string) error {
	if len(args) != 2 {
		return blkcheck.ErrUsage
	}
	cid, err := parseUint("cluster", args[0])
	if err != nil {
		return err
	}
	sid, err := parseUint("sector", args[1])
	if err != nil {
		return err
	}
	rec, err := newDisk().ShowSector(cid, sid)
	if err != nil {
		return fmt.Errorf("couldn't read sector %d:%d: %w", cid, sid, err)
	}
	printRecord(rec)
	return nil
}

func printRecord(r *sector.Record) {
	fmt.Printf("Magic:        %#x\n", r.Magic)
	fmt.Printf("Version:      %d\n", r.Version)
	fmt.Printf("Flags:        %#x\n", r.Flags)
	fmt.Printf("Cluster:      %d\n", r.ClusterID)
	fmt.Printf("Sector:       %d\n", r.SectorID)
	fmt.Printf("Disk size:    %d (%s)\n", r.DiskSize, bytesOrIbytes(r.DiskSize, outputAsSI))
	fmt.Printf("Cluster size: %d\n", r.ClusterSize)
	fmt.Printf("Sector size:  %d\n", r.SectorSize)
	fmt.Printf("Written:      %s\n", r.LocalTime)
	fmt.Printf("Checksum:     %s\n", r.Checksum)
}
