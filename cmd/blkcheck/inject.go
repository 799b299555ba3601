package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/coreos/blkcheck"
)

var injectCommand = &cobra.Command{
	Use:   "inject-fault CLUSTER",
	Short: "corrupt a random byte range of one sector in a cluster",
	Run:   run(injectAction),
}

func injectAction(cmd *cobra.Command, args []string) error {
	if len(args) != 1 {
		return blkcheck.ErrUsage
	}
	id, err := parseUint("cluster", args[0])
	if err != nil {
		return err
	}
	ctx, cancel := signalContext()
	defer cancel()

	ok, err := newDisk().InjectClusterError(ctx, id)
	if err != nil {
		return fmt.Errorf("couldn't inject a fault into cluster %d: %w", id, err)
	}
	fmt.Printf("inject: %v\n", ok)
	return nil
}
