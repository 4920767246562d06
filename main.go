// Package main is the entry point for the mindbody-mcp server and CLI
package main

import (
	"os"

	"mindbody-mcp/cmd"
)

// Set at build time via -ldflags "-X main.version=... -X main.commit=... -X main.buildTime=..."
var (
	version   = "dev"
	commit    = ""
	buildTime = ""
)

func main() {
	cmd.SetVersion(version)
	cmd.SetBuildInfo(commit, buildTime)
	if err := cmd.Execute(); err != nil {
		os.Stderr.WriteString("Error: " + err.Error() + "\n")
		os.Exit(1)
	}
}
