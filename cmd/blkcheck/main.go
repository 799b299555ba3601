package main

import (
	"fmt"
	"os"

	"github.com/coreos/pkg/capnslog"
	"github.com/spf13/cobra"

	"github.com/coreos/blkcheck"
	"github.com/coreos/blkcheck/internal/flagconfig"
)

var (
	debug       bool
	logpkg      string
	metricsFile string
	outputAsSI  bool

	cfg blkcheck.Config
)

var rootCommand = &cobra.Command{
	Use:              "blkcheck",
	Short:            "Verify the integrity of a block device",
	Long:             `Fill a block device with checksummed, self-describing sector records, verify them later and inject faults to exercise detection.`,
	PersistentPreRun: configure,
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Usage()
		os.Exit(1)
	},
}

var versionCommand = &cobra.Command{
	Use:   "version",
	Short: "print version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("blkcheck\nVersion: %s\n", blkcheck.Version)
		os.Exit(0)
	},
}

func init() {
	rootCommand.PersistentFlags().BoolVarP(&debug, "debug", "", false, "Turn on debug output")
	rootCommand.PersistentFlags().StringVarP(&logpkg, "logpkg", "", "", "Specific package logging")
	rootCommand.PersistentFlags().StringVarP(&metricsFile, "metrics-file", "", "", "Write the run's metrics to this file in the Prometheus text format")
	rootCommand.PersistentFlags().BoolVarP(&outputAsSI, "si", "", false, "output sizes in powers of 1000")
	flagconfig.AddConfigFlags(rootCommand.PersistentFlags())

	rootCommand.AddCommand(fillCommand)
	rootCommand.AddCommand(checkCommand)
	rootCommand.AddCommand(injectCommand)
	rootCommand.AddCommand(showCommand)
	rootCommand.AddCommand(mkimageCommand)
	rootCommand.AddCommand(dumpCommand)
	rootCommand.AddCommand(versionCommand)
}

func main() {
	if err := rootCommand.Execute(); err != nil {
		die("%v", err)
	}
}

func configure(cmd *cobra.Command, args []string) {
	switch {
	case debug:
		capnslog.SetGlobalLogLevel(capnslog.DEBUG)
	default:
		capnslog.SetGlobalLogLevel(capnslog.INFO)
	}
	if logpkg != "" {
		capnslog.SetGlobalLogLevel(capnslog.NOTICE)
		rl := capnslog.MustRepoLogger("github.com/coreos/blkcheck")
		llc, err := rl.ParseLogLevelConfig(logpkg)
		if err != nil {
			die("error parsing logpkg: %s", err)
		}
		rl.SetLogLevel(llc)
	}

	var err error
	cfg, err = flagconfig.BuildConfigFromFlags()
	if err != nil {
		die("%v", err)
	}
}
