package appctx

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"

	"github.com/lherron/gnosmerge/internal/db"
	"github.com/lherron/gnosmerge/internal/render"
)

func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	for _, k := range []string{
		"GNOSMERGE_WORK_DIR", "GNOSMERGE_UPLOAD_DIR", "GNOSMERGE_LEDGER_PATH",
		"GNOSMERGE_LEDGER_PATH_FILE", "GNOSMERGE_POLICY_FILE", "GNOSMERGE_REPOS_FILE",
		"GNOSMERGE_OUTPUT", "GNOSMERGE_LOG_LEVEL", "GNOSMERGE_LOG_FORMAT",
	} {
		t.Setenv(k, "")
	}
	t.Chdir(home)
	return home
}

func testCommand() *cobra.Command {
	cmd := &cobra.Command{}
	f := cmd.Flags()
	f.String("work-dir", "", "")
	f.String("upload-dir", "", "")
	f.String("ledger", "", "")
	f.String("policy-file", "", "")
	f.String("repos-file", "", "")
	f.String("log-level", "", "")
	f.String("log-format", "", "")
	f.String("fetch-timeout", "", "")
	f.StringP("output", "o", "", "")
	return cmd
}

func TestBootstrap_NoLedger(t *testing.T) {
	isolate(t)

	app, err := Bootstrap(testCommand(), Options{})
	if err != nil {
		t.Fatalf("Bootstrap failed: %v", err)
	}
	defer app.Close()

	if app.Config == nil {
		t.Error("Config should not be nil")
	}
	if app.DB != nil || app.Store != nil {
		t.Error("ledger should not be opened when NeedsLedger is false")
	}
	if app.Policies == nil || app.Repos == nil {
		t.Error("built-in tables should be loaded")
	}
	if app.Format != render.FormatTable {
		t.Errorf("Format = %q, want table", app.Format)
	}
}

func TestBootstrap_FlagOverrides(t *testing.T) {
	isolate(t)
	work := t.TempDir()

	cmd := testCommand()
	for name, value := range map[string]string{
		"work-dir":      work,
		"output":        "json",
		"fetch-timeout": "5s",
	} {
		if err := cmd.Flags().Set(name, value); err != nil {
			t.Fatal(err)
		}
	}

	app, err := Bootstrap(cmd, Options{})
	if err != nil {
		t.Fatalf("Bootstrap failed: %v", err)
	}
	defer app.Close()

	if app.Config.WorkDir != work {
		t.Errorf("WorkDir = %q, want %q", app.Config.WorkDir, work)
	}
	if app.Config.UploadRoot() != filepath.Join(work, "upload") {
		t.Errorf("UploadDir = %q, want it under the work dir", app.Config.UploadRoot())
	}
	if app.Format != render.FormatJSON {
		t.Errorf("Format = %q, want json", app.Format)
	}
	if app.Config.FetchTimeout.String() != "5s" {
		t.Errorf("FetchTimeout = %v", app.Config.FetchTimeout)
	}
}

func TestBootstrap_BadOutput(t *testing.T) {
	isolate(t)

	cmd := testCommand()
	cmd.Flags().Set("output", "xml")
	if _, err := Bootstrap(cmd, Options{}); err == nil {
		t.Error("expected error for unknown output format")
	}
}

func TestBootstrap_LedgerRequiresMigration(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "ledger.db")

	cmd := testCommand()
	cmd.Flags().Set("ledger", path)

	_, err := Bootstrap(cmd, Options{NeedsLedger: true})
	if err == nil || !strings.Contains(err.Error(), "gnosmerge migrate") {
		t.Fatalf("expected migration error, got %v", err)
	}

	database, err := db.Open(path)
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	if err := database.Migrate(); err != nil {
		t.Fatalf("Failed to run migrations: %v", err)
	}
	database.Close()

	app, err := Bootstrap(cmd, Options{NeedsLedger: true})
	if err != nil {
		t.Fatalf("Bootstrap failed: %v", err)
	}
	defer app.Close()
	if app.Store == nil {
		t.Error("Store should be set when NeedsLedger is true")
	}
}
