package cmd

import (
	"context"
	"log/slog"

	"github.com/shunichi-ikebuchi/bookkeeping-engine/pkg/audit"
	"github.com/shunichi-ikebuchi/bookkeeping-engine/pkg/config"
	"github.com/shunichi-ikebuchi/bookkeeping-engine/pkg/consensus"
	"github.com/shunichi-ikebuchi/bookkeeping-engine/pkg/db"
	"github.com/shunichi-ikebuchi/bookkeeping-engine/pkg/incident"
	"github.com/shunichi-ikebuchi/bookkeeping-engine/pkg/ledger"
	"github.com/shunichi-ikebuchi/bookkeeping-engine/pkg/reconcile"
	"github.com/shunichi-ikebuchi/bookkeeping-engine/pkg/rules"
)

// app holds the components shared by the commands.
type app struct {
	cfg       *config.Config
	conn      *db.Connection
	store     *ledger.Store
	history   *db.SweepHistory
	rules     *rules.Holder
	incidents *incident.Log
}

// openApp loads configuration and opens the ledger. It exits on failure.
func openApp(ctx context.Context) *app {
	slog.Debug("Loading configuration")

	cfg, err := config.Load(getConfigFile())
	exitOnError(err, "failed to load configuration")
	exitOnError(cfg.Validate(), "invalid configuration")
	if cfg.Debug {
		setupLogger(true)
	}
	logger := slog.Default()

	paths := cfg.Paths()

	rulesPath := paths.GetRulesPath()
	slog.Debug("Loading audit rules", "path", rulesPath)
	holder, err := rules.NewHolder(rulesPath, logger)
	exitOnError(err, "failed to load audit rules")

	dbPath := paths.GetDatabasePath()
	slog.Debug("Opening database", "path", dbPath)
	conn, err := db.Open(dbPath, db.WithRetryPolicy(cfg.RetryPolicy()), db.WithLogger(logger))
	exitOnError(err, "failed to open database")

	store := ledger.NewStore(conn, ledger.WithLogger(logger))
	if err := store.SeedChart(ctx, holder.Current().Chart.Accounts()); err != nil {
		conn.Close()
		exitOnError(err, "failed to seed chart of accounts")
	}

	incidents, err := incident.NewLog(paths.GetIncidentLogPath(), logger)
	if err != nil {
		conn.Close()
		exitOnError(err, "failed to open incident log")
	}

	return &app{
		cfg:       cfg,
		conn:      conn,
		store:     store,
		history:   db.NewSweepHistory(conn),
		rules:     holder,
		incidents: incidents,
	}
}

func (a *app) Close() {
	if err := a.incidents.Close(); err != nil {
		slog.Warn("Failed to close incident log", "error", err)
	}
	if err := a.conn.Close(); err != nil {
		slog.Warn("Failed to close database", "error", err)
	}
}

func (a *app) auditEngine(strategy string) *audit.Engine {
	opts := []audit.Option{
		audit.WithReporter(a.incidents),
		audit.WithLogger(slog.Default()),
	}
	if strategy == "" {
		strategy = a.cfg.ConsensusStrategy
	}
	if strategy != "" {
		s, err := consensus.ParseStrategy(strategy)
		exitOnError(err, "invalid consensus strategy")
		opts = append(opts, audit.WithStrategy(s))
	}

	engine, err := audit.NewEngine(a.store, a.rules, opts...)
	exitOnError(err, "failed to create audit engine")
	return engine
}

func (a *app) reconcileEngine() *reconcile.Engine {
	return reconcile.NewEngine(a.store, a.cfg.ReconcileConfig(),
		reconcile.WithHistory(a.history),
		reconcile.WithLogger(slog.Default()),
	)
}
