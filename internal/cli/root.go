package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ppiankov/approvedrevs/internal/approval"
	"github.com/ppiankov/approvedrevs/internal/config"
	"github.com/ppiankov/approvedrevs/internal/engine"
	"github.com/ppiankov/approvedrevs/internal/logging"
)

var (
	cfgFile    string
	asUser     string
	policyPath string
	dbPath     string
)

var rootCmd = &cobra.Command{
	Use:   "approvedrevs",
	Short: "Approval workflow for wiki page revisions and file uploads",
	Long: "Decides which pages and files take part in approval, who may approve them,\n" +
		"and which revision or upload readers see. Every change is written to a hash-chained audit log.",
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Settings file (default ~/.approvedrevs/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&asUser, "as", "", "Wiki user to act as (default anonymous)")
	rootCmd.PersistentFlags().StringVar(&policyPath, "policy", "", "Policy file (overrides settings)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "SQLite database (overrides settings)")
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadSettings reads settings and applies the global flag overrides.
func loadSettings() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	if policyPath != "" {
		cfg.Policy = policyPath
	}
	if dbPath != "" {
		cfg.Database = dbPath
	}
	return cfg, nil
}

// newLogger logs to the configured file, or to stderr in console form.
func newLogger(cfg *config.Config) (zerolog.Logger, io.Closer, error) {
	if cfg.Logging.File != "" {
		f, err := logging.Open(cfg.Logging.File, cfg.Logging.Level)
		if err != nil {
			return zerolog.Logger{}, nil, err
		}
		return f.Logger, f, nil
	}
	console := zerolog.ConsoleWriter{Out: os.Stderr, NoColor: true}
	return logging.New(console, cfg.Logging.Level), nopCloser{}, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

type session struct {
	cfg    *config.Config
	engine *engine.Engine
	log    zerolog.Logger
	logs   io.Closer
}

func (s *session) Close() {
	_ = s.engine.Close()
	_ = s.logs.Close()
}

func openSession(ctx context.Context) (*session, error) {
	cfg, err := loadSettings()
	if err != nil {
		return nil, err
	}
	log, logs, err := newLogger(cfg)
	if err != nil {
		return nil, err
	}
	e, err := engine.Open(ctx, cfg, log)
	if err != nil {
		_ = logs.Close()
		return nil, err
	}
	return &session{cfg: cfg, engine: e, log: log, logs: logs}, nil
}

// withRequest opens the engine and runs fn in one request as --as.
func withRequest(cmd *cobra.Command, fn func(ctx context.Context, s *session, r *engine.Request) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	s, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	r, err := s.engine.RequestAs(ctx, asUser)
	if err != nil {
		return err
	}
	return fn(ctx, s, r)
}

// committed reports a stored change whose follow-up steps failed. The
// change itself stands, so the command succeeds with a warning.
func committed(cmd *cobra.Command, err error) error {
	var sideErr *approval.SideEffectError
	if errors.As(err, &sideErr) {
		fmt.Fprintf(cmd.ErrOrStderr(), "WARNING: %v\n", sideErr)
		return nil
	}
	return err
}

func actorName(r *engine.Request) string {
	if r.Actor().IsAnonymous() {
		return "anonymous"
	}
	return r.Actor().Name
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
