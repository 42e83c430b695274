package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"github.com/theckman/yacspin"
	"go.uber.org/zap"

	"github.com/APS-USAXS/ipython-usaxs/commandlist"
	"github.com/APS-USAXS/ipython-usaxs/config"
	"github.com/APS-USAXS/ipython-usaxs/linkam"
	"github.com/APS-USAXS/ipython-usaxs/metadata"
	"github.com/APS-USAXS/ipython-usaxs/plans"
	"github.com/APS-USAXS/ipython-usaxs/specconfig"
)

// interruptible is cancelled by ctrl-C
func interruptible() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt)
}

var runCmd = &cobra.Command{
	Use:   "run <file>",
	Short: "Run a command file (text or Excel)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := newSession(cfg, logger)
		if err != nil {
			return err
		}
		ctx, cancel := interruptible()
		defer cancel()
		ex := s.inst.Executor(cfg.Options())
		return spinner("running "+args[0], func(*yacspin.Spinner) error {
			return ex.RunCommandFile(ctx, args[0], nil)
		})
	},
}

var summarizeCmd = &cobra.Command{
	Use:   "summarize <file>",
	Short: "Print the commands of a command file as a table",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return commandlist.Summarize(cmd.OutOrStdout(), args[0])
	},
}

var tuneCmd = &cobra.Command{
	Use:   "tune <axis>...",
	Short: "Tune optics axes: mr, m2rp, ar, a2rp, msr, asr",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := newSession(cfg, logger)
		if err != nil {
			return err
		}
		ctx, cancel := interruptible()
		defer cancel()
		err = spinner("tuning", func(*yacspin.Spinner) error {
			return s.t.TuneAxes(ctx, args...)
		})
		if err != nil {
			return err
		}
		for _, name := range args {
			ax, _ := s.t.Axis(name)
			fmt.Fprintf(cmd.OutOrStdout(), "%s\tok=%v\tcenter=%g\n", name, ax.TuneOK, ax.Center)
		}
		return nil
	},
}

var spec2yaml bool

var spec2ophydCmd = &cobra.Command{
	Use:   "spec2ophyd <config>",
	Short: "Translate a SPEC config file to ophyd setup, or a YAML registry with --yaml",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := specconfig.ParseFile(args[0])
		if err != nil {
			return err
		}
		for _, line := range c.Unhandled {
			logger.Debug("unhandled SPEC config line", zap.String("line", line))
		}
		if spec2yaml {
			return specconfig.WriteYAML(cmd.OutOrStdout(), c)
		}
		return specconfig.WriteOphyd(cmd.OutOrStdout(), c)
	},
}

var linkamCmd = &cobra.Command{
	Use:   "linkam",
	Short: "Control the Linkam heater",
}

var (
	linkamRate    float64
	linkamTimeout time.Duration
)

var linkamSetCmd = &cobra.Command{
	Use:   "set <degC>",
	Short: "Set the Linkam temperature and wait for it to settle",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		target, err := strconv.ParseFloat(args[0], 64)
		if err != nil {
			return err
		}
		s, err := newSession(cfg, logger)
		if err != nil {
			return err
		}
		h, err := s.heater(cfg, logger)
		if err != nil {
			return err
		}
		ctx, cancel := interruptible()
		defer cancel()
		if linkamRate > 0 {
			if err := h.SetRate(ctx, linkamRate); err != nil {
				return err
			}
		}
		if err := h.SetTarget(ctx, target, false, 0, false); err != nil {
			return err
		}
		return spinner(fmt.Sprintf("heating to %.2fC", target), func(sp *yacspin.Spinner) error {
			return waitLinkam(ctx, h, target, linkamTimeout, sp)
		})
	},
}

// waitLinkam polls the heater once a second until it settles
func waitLinkam(ctx context.Context, h plans.Heater, target float64, timeout time.Duration, sp *yacspin.Spinner) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	tick := time.NewTicker(time.Second)
	defer tick.Stop()
	for {
		ok, err := h.Settled(ctx)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		if t, err := h.Temperature(ctx); err == nil {
			progress(sp, fmt.Sprintf("heating to %.2fC, now %.2fC", target, t))
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-tick.C:
		}
	}
}

var linkamStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print the status of a serial Linkam",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c := linkam.NewController(cfg.Linkam.Port)
		st, err := c.Status(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s %.1fC\n", st.StateName(), st.Temperature)
		return nil
	},
}

var series plans.LinkamSeries

var linkamSeriesCmd = &cobra.Command{
	Use:   "series <title>",
	Short: "Collect USAXS, SAXS and WAXS through a two step temperature profile",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := newSession(cfg, logger)
		if err != nil {
			return err
		}
		h, err := s.heater(cfg, logger)
		if err != nil {
			return err
		}
		ctx, cancel := interruptible()
		defer cancel()
		ls := series
		ls.Sample.Title = args[0]
		err = s.inst.RunLinkamSeries(ctx, s.inst.Executor(cfg.Options()), h, ls, metadata.MD{"plan_name": "linkam_series"})
		if errors.Is(err, plans.ErrStopRequested) {
			logger.Info("series stopped by request")
			return nil
		}
		return err
	},
}

func init() {
	spec2ophydCmd.Flags().BoolVar(&spec2yaml, "yaml", false, "write a YAML registry instead of python")

	linkamSetCmd.Flags().Float64Var(&linkamRate, "rate", 0, "ramp rate in C/min, unchanged if 0")
	linkamSetCmd.Flags().DurationVar(&linkamTimeout, "timeout", 0, "give up after this long, 0 waits forever")

	f := linkamSeriesCmd.Flags()
	f.Float64Var(&series.Sample.X, "sx", 0, "sample x")
	f.Float64Var(&series.Sample.Y, "sy", 0, "sample y")
	f.Float64Var(&series.Sample.Thickness, "thickness", 1, "sample thickness")
	f.Float64Var(&series.Temp1, "temp1", 120, "first temperature, C")
	f.Float64Var(&series.Rate1, "rate1", 100, "ramp rate to temp1, C/min")
	f.DurationVar(&series.Hold, "hold", 30*time.Minute, "time to collect at temp1")
	f.Float64Var(&series.Temp2, "temp2", 40, "second temperature, C")
	f.Float64Var(&series.Rate2, "rate2", 10, "ramp rate to temp2, C/min")
	f.DurationVar(&series.Timeout, "timeout", 0, "bound on the wait for temp1, 0 waits forever")

	linkamCmd.AddCommand(linkamSetCmd, linkamStatusCmd, linkamSeriesCmd)
}

var mkconfCmd = &cobra.Command{
	Use:   "mkconf",
	Short: "Write the effective configuration to the config file",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return config.WriteFile(cfgFile, cfg)
	},
}

var confCmd = &cobra.Command{
	Use:   "conf",
	Short: "Print the effective configuration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return config.Write(cmd.OutOrStdout(), cfg)
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "usaxs version %v\n", Version)
	},
}
