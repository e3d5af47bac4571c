// Command mutarget-sim simulates muon production and stopping in a target
// setup and scores the stopped muons.
//
// Usage:
//
//	mutarget-sim run [--config f] [--events n] [--workers n] [--geometry v] [-o file]
//	mutarget-sim geometry [--geometry v]
//	mutarget-sim plot [-i muon_output.root] [-d outdir] [--format pdf]
//	mutarget-sim config [--write f]
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/sbinet/mutarget/config"
	"github.com/sbinet/mutarget/detector"
	"github.com/sbinet/mutarget/metrics"
	"github.com/sbinet/mutarget/plot"
	"github.com/sbinet/mutarget/sim"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd := newRootCmd(os.Stdout)
	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type cli struct {
	stdout io.Writer

	fconfig  string
	logLevel string
	logger   *zap.Logger
	cfg      *config.Config
}

func newRootCmd(stdout io.Writer) *cobra.Command {
	c := &cli{stdout: stdout}
	root := &cobra.Command{
		Use:           "mutarget-sim",
		Short:         "Muon production and stopping simulation",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(c.fconfig)
			if err != nil {
				return err
			}
			if c.logLevel != "" {
				cfg.Logging.Level = c.logLevel
			}
			c.logger, err = cfg.Logger()
			if err != nil {
				return err
			}
			c.cfg = cfg
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if c.logger != nil {
				_ = c.logger.Sync()
			}
		},
	}
	root.SetOut(stdout)
	root.PersistentFlags().StringVarP(&c.fconfig, "config", "c", "mutarget.yaml", "path to the YAML configuration")
	root.PersistentFlags().StringVar(&c.logLevel, "log-level", "", "log level (debug, info, warn, error)")

	root.AddCommand(
		c.runCmd(),
		c.geometryCmd(),
		c.plotCmd(),
		c.configCmd(),
	)
	return root
}

func (c *cli) runCmd() *cobra.Command {
	var (
		fprof  string
		ftrace string
		maddr  string
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Simulate a run and write the histograms",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if err := c.applyRunFlags(cmd); err != nil {
				return err
			}
			if maddr == "" {
				maddr = c.cfg.Metrics.Addr
			}

			opts := []sim.Option{
				sim.WithLogger(c.logger),
				sim.WithCPUProfile(fprof),
				sim.WithTrace(ftrace),
			}
			if maddr != "" {
				rec := metrics.New()
				mctx, cancel := context.WithCancel(ctx)
				defer cancel()
				if _, err := sim.ServeMetrics(mctx, maddr, rec, c.logger); err != nil {
					return err
				}
				opts = append(opts, sim.WithMetrics(rec))
			}

			app, err := sim.New(c.cfg, opts...)
			if err != nil {
				return err
			}
			sum, err := app.Run(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(c.stdout, "run %s: %d events, %d kept, %d muons stopped (%d unresolved)\n",
				sum.Run.ID, sum.Run.Events, sum.Kept, sum.Stats.Stopped, sum.Stats.Unresolved,
			)
			return nil
		},
	}
	flags := cmd.Flags()
	flags.Int("events", 0, "number of events to simulate")
	flags.Int("first", 0, "first event number")
	flags.Int("workers", 0, "number of concurrent workers (0: number of CPUs)")
	flags.Int64("seed", 0, "random seed")
	flags.String("geometry", "", fmt.Sprintf("detector setup %v", detector.Variants()))
	flags.StringSlice("output", nil, "output drivers (root, yoda, sql, memory)")
	flags.StringP("path", "o", "", "path to the ROOT output file")
	flags.String("trajectories", "", "path to the JSON lines file of kept trajectories")
	flags.String("stop-z", "", "stop-z tracking path (shared, separate, off)")
	flags.String("edge-policy", "", "out-of-range histogram fills (outflow, clip)")
	flags.StringVar(&maddr, "metrics-addr", "", "address of the prometheus metrics endpoint")
	flags.StringVar(&fprof, "cpu-profile", "", "enable CPU profiling")
	flags.StringVar(&ftrace, "trace", "", "enable tracing")
	return cmd
}

// applyRunFlags overrides the configuration with the flags set on the
// command line.
func (c *cli) applyRunFlags(cmd *cobra.Command) error {
	var (
		flags = cmd.Flags()
		cfg   = c.cfg
		err   error
	)
	set := func(name string, f func() error) {
		if err != nil || !flags.Changed(name) {
			return
		}
		err = f()
	}
	set("events", func() (err error) { cfg.Run.Events, err = flags.GetInt("events"); return })
	set("first", func() (err error) { cfg.Run.First, err = flags.GetInt("first"); return })
	set("workers", func() (err error) { cfg.Run.Workers, err = flags.GetInt("workers"); return })
	set("seed", func() (err error) { cfg.Run.Seed, err = flags.GetInt64("seed"); return })
	set("geometry", func() (err error) { cfg.Geometry, err = flags.GetString("geometry"); return })
	set("output", func() (err error) { cfg.Output.Drivers, err = flags.GetStringSlice("output"); return })
	set("path", func() (err error) { cfg.Output.Path, err = flags.GetString("path"); return })
	set("trajectories", func() (err error) { cfg.Run.Trajectories, err = flags.GetString("trajectories"); return })
	set("stop-z", func() (err error) { cfg.Histograms.StopZ, err = flags.GetString("stop-z"); return })
	set("edge-policy", func() (err error) { cfg.Histograms.EdgePolicy, err = flags.GetString("edge-policy"); return })
	return err
}

func (c *cli) geometryCmd() *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "geometry",
		Short: "Print the target layers of a detector setup",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if name == "" {
				name = c.cfg.Geometry
			}
			setup, err := detector.Build(name, c.logger)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(c.stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintf(w, "setup: %s\n", setup.Name)
			fmt.Fprintf(w, "layer\tname\tlabel\tz [mm]\tmaterial\tspecial\n")
			for _, t := range setup.Targets() {
				fmt.Fprintf(w, "%d\t%s\t%s\t%g\t%s\t%v\n", t.Layer, t.Name, t.Label, t.Z, t.Material, t.Special)
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVar(&name, "geometry", "", fmt.Sprintf("detector setup %v", detector.Variants()))
	return cmd
}

func (c *cli) plotCmd() *cobra.Command {
	var (
		input  string
		outdir string
		format string
	)
	cmd := &cobra.Command{
		Use:   "plot",
		Short: "Render the histograms of a ROOT output file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := os.MkdirAll(outdir, 0755); err != nil {
				return fmt.Errorf("could not create output directory: %w", err)
			}
			hs, err := plot.LoadROOT(input)
			if err != nil {
				return err
			}
			files, err := plot.RenderAll(hs, outdir, plot.Options{Format: format})
			if err != nil {
				return err
			}
			for _, f := range files {
				c.logger.Info("plot written", zap.String("file", f))
				fmt.Fprintln(c.stdout, f)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&input, "input", "i", "muon_output.root", "input ROOT file")
	cmd.Flags().StringVarP(&outdir, "dir", "d", ".", "output directory")
	cmd.Flags().StringVar(&format, "format", "pdf", "image format (pdf, png, svg)")
	return cmd
}

func (c *cli) configCmd() *cobra.Command {
	var fname string
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Print or write the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if fname != "" {
				return c.cfg.Save(fname)
			}
			data, err := c.cfg.Marshal()
			if err != nil {
				return err
			}
			_, err = c.stdout.Write(data)
			return err
		},
	}
	cmd.Flags().StringVar(&fname, "write", "", "write the configuration to this file")
	return cmd
}
