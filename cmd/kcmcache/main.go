package main

import (
	"os"

	"github.com/paulscherrerinstitute/pam-single-kcm-cache/cmd/kcmcache/commands"
	"github.com/paulscherrerinstitute/pam-single-kcm-cache/internal/logger"
)

// Build-time variables injected via ldflags
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	commands.Version, commands.Commit, commands.Date = version, commit, date

	err := commands.Execute()
	_ = logger.Close()
	if err != nil {
		commands.PrintErr("Error: %v", err)
		os.Exit(1)
	}
}
