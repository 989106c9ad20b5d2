// Package cmd implements the cabintwin command line.
package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/danielorbach/go-component"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/spf13/cobra"

	"github.com/go-digitaltwin/cabintwin"
	"github.com/go-digitaltwin/cabintwin/dataset"
	"github.com/go-digitaltwin/cabintwin/history"
	"github.com/go-digitaltwin/cabintwin/internal/config"
	"github.com/go-digitaltwin/cabintwin/internal/logging"
	"github.com/go-digitaltwin/cabintwin/internal/otelsetup"
	"github.com/go-digitaltwin/cabintwin/neo4jstore"
)

// app is the state shared by the subcommands, prepared before any of them
// runs.
type app struct {
	version string

	configPath string
	dataDir    string
	logLevel   string

	cfg      config.Config
	logger   *slog.Logger
	shutdown func(context.Context) error
}

// NewRootCmd returns the cabintwin command with every subcommand attached.
func NewRootCmd(version string) *cobra.Command {
	a := &app{version: version}
	root := &cobra.Command{
		Use:   "cabintwin",
		Short: "Digital twin of a truck cabin sun visor",
		Long: `cabintwin simulates the sensors of a truck cabin sun visor, estimates the
fatigue life the component consumed, detects anomalies in its readings, runs a
mock FEA solver, and serves a dashboard over the results.

Start with 'cabintwin generate', then 'cabintwin serve'.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			if a.shutdown == nil {
				return nil
			}
			return a.shutdown(context.WithoutCancel(cmd.Context()))
		},
	}
	root.PersistentFlags().StringVar(&a.configPath, "config", "", "YAML configuration file")
	root.PersistentFlags().StringVar(&a.dataDir, "data-dir", "", "directory of the dataset (default ~/digital_twin_mvp)")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "trace, debug, info, warn or error")

	root.AddCommand(
		a.newGenerateCmd(),
		a.newLifeCmd(),
		a.newDetectCmd(),
		a.newFEACmd(),
		a.newReplayCmd(),
		a.newServeCmd(),
		a.newVersionCmd(),
	)
	return root
}

// Execute runs the command line with the given arguments.
func Execute(ctx context.Context, version string, args []string) error {
	root := NewRootCmd(version)
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}

func (a *app) setup(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(a.configPath, nil)
	if err != nil {
		return err
	}
	if a.dataDir != "" {
		cfg.DataDir = a.dataDir
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	a.cfg = cfg

	a.logger = logging.NewLogger(cfg.Log.Level, cfg.Log.JSON, cmd.ErrOrStderr())
	ctx := component.InjectLogger(cmd.Context(), a.logger)

	a.shutdown, err = otelsetup.Setup(ctx, "cabintwin", a.version, cfg.Telemetry.Endpoint)
	if err != nil {
		return fmt.Errorf("set up telemetry: %w", err)
	}
	cmd.SetContext(ctx)
	return nil
}

func (a *app) openStore() (*dataset.Store, error) {
	return dataset.OpenDir(a.cfg.DataDir)
}

func (a *app) openHistory(ctx context.Context) (*history.DB, error) {
	h, err := history.Open(ctx, a.cfg.HistoryPath())
	if err != nil {
		return nil, fmt.Errorf("open history: %w", err)
	}
	return h, nil
}

// openGraph connects to Neo4j and saves the asset graph of the configured
// truck. It returns a nil store when no Neo4j URI is configured.
func (a *app) openGraph(ctx context.Context) (*neo4jstore.Store, func(), error) {
	c := a.cfg.Neo4j
	if c.URI == "" {
		return nil, func() {}, nil
	}
	logger := component.Logger(ctx).With("neo4j.uri", c.URI, "neo4j.database", c.Database)

	driver, err := neo4j.NewDriverWithContext(c.URI, neo4j.BasicAuth(c.User, c.Password, ""))
	if err != nil {
		return nil, nil, fmt.Errorf("open neo4j driver: %w", err)
	}
	closeDriver := func() {
		if err := driver.Close(context.WithoutCancel(ctx)); err != nil {
			logger.Error("Failed to close neo4j driver", "error", err)
		}
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		closeDriver()
		return nil, nil, fmt.Errorf("connect to neo4j: %w", err)
	}
	if err := neo4jstore.BootstrapDatabase(ctx, driver, c.Database); err != nil {
		closeDriver()
		return nil, nil, fmt.Errorf("bootstrap neo4j: %w", err)
	}

	g := neo4jstore.New(driver, c.Database)
	if err := g.SaveAssembly(ctx, cabintwin.CabinAssembly(a.cfg.VIN)); err != nil {
		closeDriver()
		return nil, nil, fmt.Errorf("save asset graph: %w", err)
	}
	logger.Info("Asset graph saved", "vin", a.cfg.VIN)
	return g, closeDriver, nil
}

// visor returns the monitored part of the configured truck.
func (a *app) visor() cabintwin.Part {
	return cabintwin.PartsOf(cabintwin.CabinAssembly(a.cfg.VIN))[0]
}
