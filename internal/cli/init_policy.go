package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ppiankov/approvedrevs/internal/policy"
)

var (
	initPolicyForce  bool
	initPolicyStdout bool
)

func init() {
	rootCmd.AddCommand(initPolicyCmd)
	initPolicyCmd.Flags().BoolVar(&initPolicyForce, "force", false, "Overwrite an existing policy file")
	initPolicyCmd.Flags().BoolVar(&initPolicyStdout, "stdout", false, "Print the policy instead of writing it")
}

var initPolicyCmd = &cobra.Command{
	Use:   "init-policy",
	Short: "Write the default approval policy",
	Long: `Writes the commented default policy to the configured policy path.
The default policy covers the standard content namespaces and lets sysops
approve everything.`,
	RunE: runInitPolicy,
}

func runInitPolicy(cmd *cobra.Command, args []string) error {
	text := policy.DefaultConfigYAML()
	if initPolicyStdout {
		fmt.Fprint(cmd.OutOrStdout(), text)
		return nil
	}

	cfg, err := loadSettings()
	if err != nil {
		return err
	}
	path := policy.NewProvider(cfg.Policy).Path()

	if !initPolicyForce {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s exists; pass --force to replace it", path)
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create policy directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(text), 0o600); err != nil {
		return fmt.Errorf("write policy: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Wrote default policy to %s\n", path)
	return nil
}
