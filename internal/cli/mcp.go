package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ppiankov/approvedrevs/internal/mcp"
)

var mcpNoWatch bool

func init() {
	rootCmd.AddCommand(mcpCmd)
	mcpCmd.Flags().BoolVar(&mcpNoWatch, "no-watch", false, "Do not reload the policy file when it changes")
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start MCP tool server for agent integration",
	Long: "Runs approvedrevs as an MCP (Model Context Protocol) server over stdio.\n" +
		"Every tool call runs as the --as user. Exposes status, can_approve, approve, unapprove and list.",
	RunE: runMCP,
}

func runMCP(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	srv := mcp.New(s.engine, mcp.Config{
		Actor:       asUser,
		Version:     version,
		WatchPolicy: !mcpNoWatch,
	}, s.log)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
			fmt.Fprintln(os.Stderr, "\nShutting down MCP server...")
			cancel()
		case <-ctx.Done():
		}
	}()

	who := asUser
	if who == "" {
		who = "anonymous"
	}
	fmt.Fprintf(os.Stderr, "approvedrevs MCP server running on stdio as %s\n", who)

	if err := srv.Run(ctx); err != nil && ctx.Err() == nil {
		return fmt.Errorf("mcp server: %w", err)
	}
	return nil
}
