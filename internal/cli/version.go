package cli

import (
	"fmt"
	"runtime"
	"runtime/debug"

	"github.com/spf13/cobra"
)

const version = "0.3.0"

var versionJSON bool

// versionInfo reports the release and the storage and policy engines the
// binary was linked against.
type versionInfo struct {
	Name      string `json:"name"`
	Version   string `json:"version"`
	GoVersion string `json:"go_version"`
	SQLite    string `json:"sqlite_driver,omitempty"`
	MCP       string `json:"mcp_sdk,omitempty"`
}

func init() {
	rootCmd.AddCommand(versionCmd)
	versionCmd.Flags().BoolVar(&versionJSON, "json", false, "Output as JSON")
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	RunE: func(cmd *cobra.Command, args []string) error {
		info := buildVersionInfo()
		if versionJSON {
			return printJSON(cmd, info)
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%s %s (%s)\n", info.Name, info.Version, info.GoVersion)
		if info.SQLite != "" {
			fmt.Fprintf(out, "  sqlite driver  %s\n", info.SQLite)
		}
		if info.MCP != "" {
			fmt.Fprintf(out, "  mcp sdk        %s\n", info.MCP)
		}
		return nil
	},
}

func buildVersionInfo() versionInfo {
	info := versionInfo{Name: "approvedrevs", Version: version, GoVersion: runtime.Version()}
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return info
	}
	for _, dep := range bi.Deps {
		switch dep.Path {
		case "modernc.org/sqlite":
			info.SQLite = dep.Version
		case "github.com/modelcontextprotocol/go-sdk":
			info.MCP = dep.Version
		}
	}
	return info
}
