package main

import (
	"fmt"
	"io"
	"os"
	"path"
	"time"

	"github.com/coreos/pkg/progressutil"
	"github.com/spf13/cobra"

	"github.com/coreos/blkcheck"
)

var progress bool

var dumpCommand = &cobra.Command{
	Use:   "dump OUTPUT_FILE",
	Short: "copy the contents of the device to a file, or - for stdout",
	Run:   run(dumpAction),
}

func init() {
	dumpCommand.Flags().BoolVarP(&progress, "progress", "p", false, "show progress")
}

func dumpAction(cmd *cobra.Command, args []string) error {
	if len(args) != 1 {
		return blkcheck.ErrUsage
	}
	dev, err := blkcheck.OpenDevice(cfg)
	if err != nil {
		return fmt.Errorf("couldn't open %s: %w", cfg.DevicePath, err)
	}
	defer dev.Close()

	output, err := getWriterFromArg(args[0])
	if err != nil {
		return fmt.Errorf("couldn't open output: %v", err)
	}
	defer output.Close()

	size := int64(dev.Size())
	input := io.NewSectionReader(dev, 0, size)
	if progress {
		pb := progressutil.NewCopyProgressPrinter()
		if err := pb.AddCopy(input, path.Base(dev.Path()), size, output); err != nil {
			return fmt.Errorf("couldn't copy: %v", err)
		}
		if err := pb.PrintAndWait(os.Stderr, 500*time.Millisecond, nil); err != nil {
			return fmt.Errorf("couldn't copy: %v", err)
		}
	} else {
		n, err := io.Copy(output, input)
		if err != nil {
			return fmt.Errorf("couldn't copy: %v", err)
		}
		if n != size {
			return fmt.Errorf("short read of %q", dev.Path())
		}
	}
	fmt.Fprintf(os.Stderr, "copied %d bytes\n", size)
	return nil
}

func getWriterFromArg(arg string) (io.WriteCloser, error) {
	if arg == "-" {
		return os.Stdout, nil
	}
	return os.Create(arg)
}
