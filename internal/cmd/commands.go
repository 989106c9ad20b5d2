package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"text/tabwriter"

	"github.com/danielorbach/go-component"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/go-digitaltwin/cabintwin"
	"github.com/go-digitaltwin/cabintwin/anomaly"
	"github.com/go-digitaltwin/cabintwin/dashboard"
	"github.com/go-digitaltwin/cabintwin/dataset"
	"github.com/go-digitaltwin/cabintwin/fea"
	"github.com/go-digitaltwin/cabintwin/lifemodel"
	"github.com/go-digitaltwin/cabintwin/synth"
	"github.com/go-digitaltwin/cabintwin/twin"
)

func (a *app) newGenerateCmd() *cobra.Command {
	var samples int
	var seed uint64
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate the simulated sensor dataset",
		Long: `Generate writes a synthetic sensor dataset of the sun visor, with an impact,
an overheating episode and a stuck sensor injected at fixed positions.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg := a.cfg.SynthConfig()
			if cmd.Flags().Changed("samples") {
				cfg.Samples = samples
			}
			if cmd.Flags().Changed("seed") {
				cfg.Seed = seed
			}

			store, err := a.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			readings := synth.Generate(cfg)
			if err := store.SaveReadings(ctx, readings); err != nil {
				return err
			}
			for _, inj := range synth.Injections(cfg.Samples) {
				component.Logger(ctx).Debug("Injected anomaly", "kind", inj.Kind, "from", inj.From, "to", inj.To)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Generated %d readings in %s\n", len(readings), filepath.Join(a.cfg.DataDir, dataset.ReadingsKey))
			return nil
		},
	}
	cmd.Flags().IntVar(&samples, "samples", 0, "number of readings (default from configuration)")
	cmd.Flags().Uint64Var(&seed, "seed", 0, "random seed (default from configuration)")
	return cmd
}

func (a *app) newLifeCmd() *cobra.Command {
	var tail int
	cmd := &cobra.Command{
		Use:   "life",
		Short: "Estimate the life consumed by the component",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if tail < 0 {
				return fmt.Errorf("--tail must not be negative, got %d", tail)
			}
			ctx := cmd.Context()
			store, err := a.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			readings, err := store.LoadReadings(ctx)
			if err != nil {
				return err
			}
			points := a.cfg.LifeParams().Estimate(readings)
			if err := store.SaveLife(ctx, points); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Life estimate saved in %s\n", filepath.Join(a.cfg.DataDir, dataset.LifeKey))
			if len(points) == 0 {
				return nil
			}
			if tail > 0 {
				fmt.Fprintf(out, "\nLast %d entries:\n", min(tail, len(points)))
				if err := writeLifeTable(out, points[max(len(points)-tail, 0):]); err != nil {
					return err
				}
			}

			graph, closeGraph, err := a.openGraph(ctx)
			if err != nil {
				return err
			}
			defer closeGraph()
			if graph != nil {
				return graph.RecordLife(ctx, a.visor(), points[len(points)-1])
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&tail, "tail", 5, "number of final entries to print")
	return cmd
}

func (a *app) newDetectCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "detect",
		Short: "Detect anomalies in the sensor dataset",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			store, err := a.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			readings, err := store.LoadReadings(ctx)
			if err != nil {
				return err
			}
			events := anomaly.Detect(readings, a.cfg.DetectOptions())

			h, err := a.openHistory(ctx)
			if err != nil {
				return err
			}
			defer h.Close()
			if err := h.RecordAnomalies(ctx, events); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			counts := anomaly.CountByChannel(events)
			fmt.Fprintf(out, "%d anomalies in %d readings\n", len(events), len(readings))
			for _, c := range cabintwin.Channels() {
				fmt.Fprintf(out, "  %-20s %d\n", c, counts[c])
			}
			if limit > 0 && len(events) > 0 {
				fmt.Fprintln(out)
				return writeEventTable(out, events[:min(limit, len(events))])
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "number of events to list")
	return cmd
}

func (a *app) newFEACmd() *cobra.Command {
	var fromDataset bool
	cmd := &cobra.Command{
		Use:   "fea",
		Short: "Run the mock FEA solver",
		Long: `FEA solves the load case stored in fea/input_fea.json and writes the result to
fea/output_fea.json. By default the load case is first derived from the sensor
dataset (mean temperature, peak vibration).`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			store, err := a.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			if fromDataset {
				readings, err := store.LoadReadings(ctx)
				if err != nil {
					return err
				}
				if err := store.WriteJSON(ctx, fea.InputKey, fea.LoadCaseFrom(readings)); err != nil {
					return err
				}
			}
			solver := fea.Solver{Delay: a.cfg.FEA.Delay}
			in, out, err := solver.RunFiles(ctx, store)
			if err != nil {
				return err
			}

			h, err := a.openHistory(ctx)
			if err != nil {
				return err
			}
			defer h.Close()
			id, err := h.RecordFEARun(ctx, in, out)
			if err != nil {
				return err
			}
			component.Logger(ctx).Debug("FEA run recorded", "id", id)

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "    ")
			return enc.Encode(out)
		},
	}
	cmd.Flags().BoolVar(&fromDataset, "from-dataset", true, "derive the load case from the sensor dataset")
	return cmd
}

func (a *app) newReplayCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Stream the dataset through the runtime twin",
		Long: `Replay publishes the dataset on an in-memory topic and feeds it to the twin
runtime, the way a deployed twin receives live readings. Anomalies raised by the
streaming detector are recorded in the history database.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			store, err := a.openStore()
			if err != nil {
				return err
			}
			defer store.Close()
			readings, err := store.LoadReadings(ctx)
			if err != nil {
				return err
			}

			h, err := a.openHistory(ctx)
			if err != nil {
				return err
			}
			defer h.Close()

			t, err := twin.New(a.cfg.TwinOptions())
			if err != nil {
				return err
			}
			snap, err := t.Replay(ctx, readings, func(ctx context.Context, events []anomaly.Event) error {
				return h.RecordAnomalies(ctx, events)
			})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Readings:        %d\n", snap.Readings)
			fmt.Fprintf(out, "Life used:       %.4f%%\n", snap.Life.LifeUsedPercent)
			fmt.Fprintf(out, "Life remaining:  %.4f%%\n", snap.Life.LifeRemainingPercent)
			fmt.Fprintf(out, "Anomalies:       %d\n", snap.TotalAnomalies)

			graph, closeGraph, err := a.openGraph(ctx)
			if err != nil {
				return err
			}
			defer closeGraph()
			if graph != nil {
				// readings may be digested out of order; the life is as of the newest one
				life := snap.Life
				life.Timestamp = snap.Latest.Timestamp
				return graph.RecordLife(ctx, a.visor(), life)
			}
			return nil
		},
	}
	return cmd
}

func (a *app) newServeCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the dashboard",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if addr == "" {
				addr = a.cfg.HTTP.Addr
			}
			store, err := a.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			src := dashboard.NewSource(store, a.cfg.LifeParams(), a.cfg.DetectOptions())
			if err := src.Load(ctx); err != nil {
				if errors.Is(err, dataset.ErrNotFound) {
					return fmt.Errorf("no dataset in %s: %w", a.cfg.DataDir, err)
				}
				return err
			}

			h, err := a.openHistory(ctx)
			if err != nil {
				return err
			}
			defer h.Close()

			srv := dashboard.NewServer(src, store, dashboard.Options{
				Solver:  fea.Solver{Delay: a.cfg.FEA.Delay},
				History: h,
			})
			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error { return srv.Run(gctx, addr) })
			g.Go(func() error { return dashboard.Watch(gctx, a.cfg.DataDir, src, dashboard.DefaultSettle) })
			return g.Wait()
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from configuration, 127.0.0.1:8501)")
	return cmd
}

func (a *app) newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		// no configuration is needed to print the version
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "cabintwin version %s\n", a.version)
		},
	}
}

func writeLifeTable(w io.Writer, points []lifemodel.Point) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "timestamp\tdamage_increment\tdamage_cumulative\tlife_used_percent\tlife_remaining_percent\t")
	for _, p := range points {
		fmt.Fprintf(tw, "%s\t%.4f\t%.4f\t%.6f\t%.6f\t\n",
			p.Timestamp.Format(dataset.TimestampLayout), p.DamageIncrement, p.DamageCumulative,
			p.LifeUsedPercent, p.LifeRemainingPercent)
	}
	return tw.Flush()
}

func writeEventTable(w io.Writer, events []anomaly.Event) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "timestamp\tchannel\tvalue\tscore\tdetector")
	for _, e := range events {
		fmt.Fprintf(tw, "%s\t%s\t%.3f\t%.2f\t%s\n",
			e.Timestamp.Format(dataset.TimestampLayout), e.Channel, e.Value, e.Score, e.Kind)
	}
	return tw.Flush()
}
