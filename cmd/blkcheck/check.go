package main

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/coreos/blkcheck"
	"github.com/coreos/blkcheck/disk"
)

var (
	checkCluster int64
	outputAsCSV  bool
)

var checkCommand = &cobra.Command{
	Use:   "check",
	Short: "verify the whole device or one cluster",
	Long:  "Verify the sector records on the device and list every corrupted sector. Exits with status 2 when corruption is found.",
	Run:   run(checkAction),
}

func init() {
	checkCommand.Flags().Int64VarP(&checkCluster, "cluster", "c", -1, "only check this cluster")
	checkCommand.Flags().BoolVarP(&outputAsCSV, "csv", "", false, "output corruptions as CSV")
}

func checkAction(cmd *cobra.Command, args []string) error {
	if len(args) != 0 {
		return blkcheck.ErrUsage
	}
	ctx, cancel := signalContext()
	defer cancel()

	d := newDisk()
	var w *csv.Writer
	if outputAsCSV {
		w = csv.NewWriter(os.Stdout)
		d.OnCorruption(func(c disk.Corruption) {
			w.Write(corruptionRow(c))
		})
	}
	var (
		report *disk.Report
		err    error
	)
	if checkCluster >= 0 {
		report, err = d.CheckDisk(ctx, uint64(checkCluster))
	} else {
		report, err = d.CheckWholeDisk(ctx)
	}
	if w != nil {
		w.Flush()
	} else if report != nil {
		printReport(report)
	}
	if err != nil {
		return fmt.Errorf("couldn't check %s: %w", cfg.DevicePath, err)
	}
	if !report.Clean() {
		return errCorrupt
	}
	return nil
}

func corruptionRow(c disk.Corruption) []string {
	claims, written := "unreadable", ""
	if c.Claimed != nil {
		claims = fmt.Sprintf("%d:%d", c.Claimed.ClusterID, c.Claimed.SectorID)
		written = c.Claimed.LocalTime
	}
	return []string{
		strconv.FormatUint(c.ClusterID, 10),
		strconv.FormatUint(c.SectorID, 10),
		claims,
		written,
	}
}

func printReport(r *disk.Report) {
	fmt.Printf("Run: %s\nDevice: %s (%s)\n", r.RunID, r.Device, bytesOrIbytes(r.DiskSize, outputAsSI))
	if !r.Clean() {
		table := tablewriter.NewWriter(os.Stdout)
		table.SetHeader([]string{"Cluster", "Sector", "Claims", "Written"})
		for _, c := range r.Corruptions() {
			table.Append(corruptionRow(c))
		}
		table.Render()
		if n := r.Omitted(); n > 0 {
			fmt.Printf("%d more corrupted sectors not listed; use --csv to list them all\n", n)
		}
	}
	fmt.Println(r)
}
