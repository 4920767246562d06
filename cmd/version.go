package cmd

import (
	"encoding/json"
	"fmt"
	"runtime"
	"runtime/debug"

	"github.com/spf13/cobra"
)

const mcpSDKModule = "github.com/modelcontextprotocol/go-sdk"

var (
	commit    = ""
	buildTime = ""
)

// SetBuildInfo overrides the commit and build time embedded by the toolchain
func SetBuildInfo(c, bt string) {
	commit = c
	buildTime = bt
}

// buildInfo is what the version command reports
type buildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	Built     string `json:"built"`
	Modified  bool   `json:"modified"`
	MCPSDK    string `json:"mcpSdk"`
	GoVersion string `json:"goVersion"`
	Platform  string `json:"platform"`
}

// currentBuildInfo prefers ldflags values and falls back to the VCS stamp in the binary
func currentBuildInfo() buildInfo {
	info := buildInfo{
		Version:   version,
		Commit:    commit,
		Built:     buildTime,
		MCPSDK:    "unknown",
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}

	if bi, ok := debug.ReadBuildInfo(); ok {
		if info.Version == "dev" && bi.Main.Version != "" && bi.Main.Version != "(devel)" {
			info.Version = bi.Main.Version
		}
		for _, s := range bi.Settings {
			switch s.Key {
			case "vcs.revision":
				if info.Commit == "" {
					info.Commit = s.Value
				}
			case "vcs.time":
				if info.Built == "" {
					info.Built = s.Value
				}
			case "vcs.modified":
				info.Modified = s.Value == "true"
			}
		}
		for _, dep := range bi.Deps {
			if dep.Path == mcpSDKModule {
				info.MCPSDK = dep.Version
			}
		}
	}

	if info.Commit == "" {
		info.Commit = "unknown"
	}
	if info.Built == "" {
		info.Built = "unknown"
	}
	return info
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Print the server version, the source revision it was built from and the MCP SDK it speaks through.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		short, _ := cmd.Flags().GetBool("short")
		jsonOutput, _ := cmd.Flags().GetBool("json")
		info := currentBuildInfo()
		w := cmd.OutOrStdout()

		switch {
		case short:
			fmt.Fprintln(w, info.Version)
			return nil
		case jsonOutput:
			enc := json.NewEncoder(w)
			enc.SetIndent("", "  ")
			return enc.Encode(info)
		}

		revision := info.Commit
		if info.Modified {
			revision += " (modified)"
		}
		fmt.Fprintf(w, "mindbody-mcp %s\n", info.Version)
		fmt.Fprintf(w, "  revision:   %s\n", revision)
		fmt.Fprintf(w, "  built:      %s\n", info.Built)
		fmt.Fprintf(w, "  mcp sdk:    %s\n", info.MCPSDK)
		fmt.Fprintf(w, "  go version: %s\n", info.GoVersion)
		fmt.Fprintf(w, "  platform:   %s\n", info.Platform)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)

	versionCmd.Flags().Bool("short", false, "print the version string only")
	versionCmd.Flags().Bool("json", false, "output as JSON")
}
