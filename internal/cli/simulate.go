package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ppiankov/approvedrevs/internal/engine"
	"github.com/ppiankov/approvedrevs/internal/sim"
)

var (
	simTrace  string
	simFormat string
)

func init() {
	rootCmd.AddCommand(simulateCmd)
	simulateCmd.Flags().StringVar(&simTrace, "trace", "", "Path to approval log (default from settings)")
	simulateCmd.Flags().StringVarP(&simFormat, "format", "f", "text", "Output format (text|json)")
}

var simulateCmd = &cobra.Command{
	Use:   "simulate <candidate-policy.yaml>",
	Short: "Replay the approval log against a candidate policy",
	Long: "Reads the approval log, replays each recorded approval and unapproval\n" +
		"with an alternate policy file, and shows which ones it would refuse.\n\n" +
		"Use this to preview policy changes before deploying them.",
	Args: cobra.ExactArgs(1),
	RunE: runSimulate,
}

func runSimulate(cmd *cobra.Command, args []string) error {
	return withRequest(cmd, func(ctx context.Context, s *session, _ *engine.Request) error {
		trace := simTrace
		if trace == "" {
			trace = s.cfg.AuditLog
		}
		result, err := sim.Simulate(ctx, s.engine, trace, args[0])
		if err != nil {
			return err
		}

		switch simFormat {
		case "json":
			out, err := sim.FormatJSON(result)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), out)
		default:
			fmt.Fprint(cmd.OutOrStdout(), sim.FormatText(result))
		}
		return nil
	})
}
