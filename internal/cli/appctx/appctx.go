// Package appctx provides a shared bootstrap helper for CLI commands.
// It centralizes config loading, logger setup, table loading and ledger
// opening to reduce boilerplate across commands.
package appctx

import (
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/lherron/gnosmerge/internal/config"
	"github.com/lherron/gnosmerge/internal/db"
	"github.com/lherron/gnosmerge/internal/logging"
	"github.com/lherron/gnosmerge/internal/policy"
	"github.com/lherron/gnosmerge/internal/render"
	"github.com/lherron/gnosmerge/internal/repos"
	"github.com/lherron/gnosmerge/internal/store"
)

// App holds the shared application context for commands.
type App struct {
	// Config is the loaded configuration, with flag overrides applied.
	Config *config.Config

	// Log is the process-wide logger. Donor runs derive children from it.
	Log zerolog.Logger

	Policies *policy.Table
	Repos    *repos.Table

	// DB and Store are nil unless Options.NeedsLedger is set.
	DB    *db.DB
	Store *store.Store

	Format render.Format
}

// Close releases resources held by the App.
// Safe to call multiple times.
func (a *App) Close() {
	if a.DB != nil {
		a.DB.Close()
		a.DB = nil
		a.Store = nil
	}
}

// Renderer returns a renderer for the selected output format.
func (a *App) Renderer(w io.Writer) *render.Renderer {
	return render.NewRenderer(w, render.Options{Format: a.Format})
}

// Options configures the bootstrap behavior.
type Options struct {
	// NeedsLedger opens the run ledger and checks it is migrated.
	NeedsLedger bool
}

// RunFunc is the signature for command run functions.
type RunFunc func(app *App, cmd *cobra.Command, args []string) error

// WithApp wraps a command's run function with shared bootstrap logic.
// The ledger is closed automatically when the wrapped function returns.
func WithApp(opts Options, fn RunFunc) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		app, err := Bootstrap(cmd, opts)
		if err != nil {
			return err
		}
		defer app.Close()

		return fn(app, cmd, args)
	}
}

// Bootstrap initializes the App according to the given options.
// Callers are responsible for calling App.Close() when done.
func Bootstrap(cmd *cobra.Command, opts Options) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := applyFlags(cmd, cfg); err != nil {
		return nil, err
	}

	app := &App{Config: cfg}

	app.Format, err = render.ParseFormat(cfg.Output)
	if err != nil {
		return nil, err
	}

	app.Log = logging.New(cmd.ErrOrStderr(), logging.Config{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
	})

	app.Policies, err = policy.Load(cfg.PolicyFile)
	if err != nil {
		return nil, err
	}
	app.Repos, err = repos.Load(cfg.ReposFile)
	if err != nil {
		return nil, err
	}

	if opts.NeedsLedger {
		database, err := db.Open(cfg.LedgerPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open ledger: %w", err)
		}
		if err := database.RequiresMigrationError(); err != nil {
			database.Close()
			return nil, err
		}
		app.DB = database
		app.Store = store.New(database)
	}

	return app, nil
}

// applyFlags copies persistent flag overrides onto cfg. Flags win over
// every other configuration source.
func applyFlags(cmd *cobra.Command, cfg *config.Config) error {
	str := func(name string, dst *string) {
		if f := cmd.Flag(name); f != nil && f.Changed {
			*dst = f.Value.String()
		}
	}
	str("work-dir", &cfg.WorkDir)
	str("upload-dir", &cfg.UploadDir)
	str("ledger", &cfg.LedgerPath)
	str("policy-file", &cfg.PolicyFile)
	str("repos-file", &cfg.ReposFile)
	str("log-level", &cfg.LogLevel)
	str("log-format", &cfg.LogFormat)
	str("output", &cfg.Output)

	if f := cmd.Flag("fetch-timeout"); f != nil && f.Changed {
		d, err := time.ParseDuration(f.Value.String())
		if err != nil {
			return fmt.Errorf("invalid --fetch-timeout: %w", err)
		}
		cfg.FetchTimeout = d
	}

	return nil
}
