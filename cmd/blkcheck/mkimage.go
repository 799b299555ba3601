package main

import (
	"fmt"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/ricochet2200/go-disk-usage/du"
	"github.com/spf13/cobra"

	"github.com/coreos/blkcheck"
	"github.com/coreos/blkcheck/storage"
)

var mkimageYes bool

var mkimageCommand = &cobra.Command{
	Use:   "mkimage PATH SIZE",
	Short: "create an image file for the mfile driver",
	Run:   run(mkimageAction),
}

func init() {
	mkimageCommand.Flags().BoolVarP(&mkimageYes, "yes", "y", false, "create the image even if the filesystem lacks the space to back it")
}

func mkimageAction(cmd *cobra.Command, args []string) error {
	if len(args) != 2 {
		return blkcheck.ErrUsage
	}
	path := args[0]
	size, err := humanize.ParseBytes(args[1])
	if err != nil {
		return fmt.Errorf("%w: error parsing size: %v", blkcheck.ErrUsage, err)
	}
	dir, err := filepath.Abs(filepath.Dir(path))
	if err != nil {
		return err
	}
	avail := du.NewDiskUsage(dir).Available()
	if size > avail && !mkimageYes {
		return fmt.Errorf("%s has only %s available for a %s image; use --yes to create it anyway",
			dir, bytesOrIbytes(avail, outputAsSI), bytesOrIbytes(size, outputAsSI))
	}
	if err := storage.CreateImage(path, size); err != nil {
		return fmt.Errorf("couldn't create image: %w", err)
	}
	fmt.Printf("created %s image %s\n", bytesOrIbytes(size, outputAsSI), path)
	return nil
}
