package main

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/Skryldev/lead-manager/config"
	"github.com/Skryldev/lead-manager/db"
	"github.com/Skryldev/lead-manager/export"
	"github.com/Skryldev/lead-manager/leads"
	"github.com/Skryldev/lead-manager/metrics"
	"github.com/Skryldev/lead-manager/repo"
)

// app carries what every subcommand needs once the root pre-run has loaded
// the configuration and opened the store.
type app struct {
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer

	cfg      config.Config
	logger   *slog.Logger
	db       *db.DB
	metrics  *metrics.Metrics
	leads    *leads.Service
	workflow *export.Workflow
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "leadmanager",
		Short: "Track sales leads and hand them off as CSV or XLSX",
		Long: `leadmanager keeps a single table of sales leads.

Available subcommands:
  serve      - Serve the JSON API and /metrics
  add        - Record a new lead
  list       - List leads, optionally filtered by status
  set-status - Change the status of a lead
  summary    - Show lead counts per status
  export     - Export every lead, optionally erasing them afterwards`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
	}
	root.AddCommand(
		newServeCmd(a),
		newAddCmd(a),
		newListCmd(a),
		newSetStatusCmd(a),
		newSummaryCmd(a),
		newExportCmd(a),
	)
	return root
}

// setup loads the configuration, opens the store and makes sure the leads
// table exists.
func (a *app) setup(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.logger = cfg.Logger(a.stderr)
	slog.SetDefault(a.logger)

	a.metrics = metrics.New()
	database, err := cfg.OpenDB(a.logger, a.metrics)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	a.db = database

	if err := repo.NewLeadRepo(database).EnsureSchema(cmd.Context()); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}

	a.leads = leads.NewService(database,
		leads.WithLogger(a.logger),
		leads.WithRecorder(a.metrics),
		leads.WithPhoneRegion(cfg.PhoneRegion),
	)
	a.workflow = export.NewWorkflow(database,
		export.WithLogger(a.logger),
		export.WithRecorder(a.metrics),
	)
	return nil
}

func (a *app) close() {
	if a.db == nil {
		return
	}
	if err := a.db.Close(); err != nil {
		a.logger.Warn("close database", slog.Any("error", err))
	}
	a.db = nil
}
