package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ppiankov/approvedrevs/internal/policy"
	"github.com/ppiankov/approvedrevs/internal/policydiff"
)

var (
	diffFormat   string
	diffExitCode bool
)

var errPoliciesDiffer = errors.New("policies differ")

func init() {
	rootCmd.AddCommand(diffCmd)
	diffCmd.Flags().StringVarP(&diffFormat, "format", "f", "text", "Output format (text|json)")
	diffCmd.Flags().BoolVar(&diffExitCode, "exit-code", false, "Fail when the policies differ")
}

var diffCmd = &cobra.Command{
	Use:   "diff [old.yaml] <new.yaml>",
	Short: "Show how a policy file changes who can approve what",
	Long: `Compares the zone entries of two policy files: namespaces, categories and
pages added or removed, and approver lists that got wider or narrower.
With one argument the active policy is the old side.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runDiff,
}

func loadRegistry(path string) (*policy.Registry, error) {
	cfg, hash, err := policy.LoadConfigWithHash(path)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	return policy.NewRegistry(cfg, hash), nil
}

func runDiff(cmd *cobra.Command, args []string) error {
	oldPath, newPath := "", args[len(args)-1]
	if len(args) == 2 {
		oldPath = args[0]
	} else {
		cfg, err := loadSettings()
		if err != nil {
			return err
		}
		oldPath = policy.NewProvider(cfg.Policy).Path()
	}

	oldReg, err := loadRegistry(oldPath)
	if err != nil {
		return err
	}
	newReg, err := loadRegistry(newPath)
	if err != nil {
		return err
	}

	result := policydiff.Diff(oldReg, newReg)
	result.OldPath, result.NewPath = oldPath, newPath

	if diffFormat == "json" {
		out, err := policydiff.FormatJSON(result)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), out)
	} else {
		fmt.Fprint(cmd.OutOrStdout(), policydiff.FormatText(result))
	}

	if diffExitCode && result.HasChanges {
		return errPoliciesDiffer
	}
	return nil
}
