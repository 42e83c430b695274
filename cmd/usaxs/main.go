// Command usaxs runs command files, tunes and serves the USAXS instrument
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/APS-USAXS/ipython-usaxs/config"
)

// Version is the version number.  Typically injected via ldflags with git build
var Version = "1"

var (
	verbose bool
	cfgFile string

	logger *zap.Logger
	cfg    config.Config
)

var rootCmd = &cobra.Command{
	Use:   "usaxs",
	Short: "USAXS instrument control",
	Long: `usaxs drives the APS USAXS/SAXS/WAXS instrument.

It runs command files (text or Excel), tunes the optics, translates SPEC
configurations and exposes motors, shutters and the Linkam heater over HTTP.
Configuration is read from usaxs.yml; see "usaxs mkconf".`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zc := zap.NewProductionConfig()
		if verbose {
			zc.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zc.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		cfg, err = config.Read(cfgFile)
		if err != nil {
			return fmt.Errorf("error loading config: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", config.FileName, "configuration file")
	rootCmd.AddCommand(runCmd, summarizeCmd, tuneCmd, spec2ophydCmd, serveCmd,
		linkamCmd, mkconfCmd, confCmd, versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
