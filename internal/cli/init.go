package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ppiankov/approvedrevs/internal/config"
	"github.com/ppiankov/approvedrevs/internal/engine"
	"github.com/ppiankov/approvedrevs/internal/policy"
)

var (
	initAdmin string
	initForce bool
)

func init() {
	initCmd.Flags().StringVar(&initAdmin, "admin", "", "Register this user in the sysop group")
	initCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite existing config files")
	rootCmd.AddCommand(initCmd)
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Bootstrap approvedrevs settings, policy and database",
	Long: `Creates ~/.approvedrevs/ with config.yaml, a commented default policy.yaml,
the SQLite database and an empty approval log.

With --admin: registers a user in the sysop group, which the default
policy allows to approve every approvable page.`,
	RunE: runInit,
}

func runInit(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	var created []string

	settingsPath := cfgFile
	if settingsPath == "" {
		settingsPath = config.File()
	}
	cfg := config.Default()
	if _, err := os.Stat(settingsPath); err == nil && !initForce {
		if cfg, err = loadSettings(); err != nil {
			return err
		}
	} else {
		if policyPath != "" {
			cfg.Policy = policyPath
		}
		if dbPath != "" {
			cfg.Database = dbPath
		}
		if err := config.Write(settingsPath, cfg); err != nil {
			return err
		}
		created = append(created, settingsPath)
	}

	if wrote, err := writeIfMissing(cfg.Policy, policy.DefaultConfigYAML()); err != nil {
		return err
	} else if wrote {
		created = append(created, cfg.Policy)
	}

	ctx := context.Background()
	log, logs, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = logs.Close() }()
	e, err := engine.Open(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() { _ = e.Close() }()

	if initAdmin != "" {
		if err := e.Wiki().AddUser(ctx, initAdmin, "sysop"); err != nil {
			return err
		}
	}

	fmt.Fprintln(out, "approvedrevs init complete.")
	fmt.Fprintln(out)
	if len(created) > 0 {
		fmt.Fprintln(out, "Created:")
		for _, path := range created {
			fmt.Fprintf(out, "  %s\n", path)
		}
	} else {
		fmt.Fprintln(out, "All files already exist (use --force to overwrite).")
	}
	fmt.Fprintf(out, "Database: %s\n", cfg.Database)
	fmt.Fprintf(out, "Approval log: %s\n", cfg.AuditLog)
	if initAdmin != "" {
		fmt.Fprintf(out, "Admin: %s (sysop)\n", initAdmin)
	}
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Next:")
	fmt.Fprintln(out, "  approvedrevs page save Main_Page --as <user> --text '...'")
	fmt.Fprintln(out, "  approvedrevs approve Main_Page --as <admin>")
	return nil
}

// writeIfMissing writes content to path if it doesn't exist or --force is set.
// Returns true if the file was written.
func writeIfMissing(path, content string) (bool, error) {
	if !initForce {
		if _, err := os.Stat(path); err == nil {
			return false, nil
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return false, fmt.Errorf("create directory for %s: %w", path, err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return false, fmt.Errorf("write %s: %w", path, err)
	}
	return true, nil
}
