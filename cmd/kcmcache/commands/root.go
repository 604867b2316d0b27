// Package commands implements the kcmcache command line.
package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/paulscherrerinstitute/pam-single-kcm-cache/internal/cli/output"
	"github.com/paulscherrerinstitute/pam-single-kcm-cache/internal/logger"
	"github.com/paulscherrerinstitute/pam-single-kcm-cache/pkg/config"
)

var (
	// Version information injected at build time.
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// globalFlags are the persistent flags shared by all subcommands.
type globalFlags struct {
	configPath string
	output     string
	logLevel   string
	debug      bool
	noColor    bool
}

// NewRootCmd builds the kcmcache command tree.
func NewRootCmd() *cobra.Command {
	flags := &globalFlags{}

	root := &cobra.Command{
		Use:   "kcmcache",
		Short: "Consolidate Kerberos credential caches into one fixed cache",
		Long: `kcmcache runs the logic of the pam_single_kcm_cache module from the
command line.

It scans the user's credential cache collection (KCM daemon or ccache
directory), picks the youngest valid TGT, and places it into a cache with
a fixed name that can be exported as KRB5CCNAME.

Use "kcmcache [command] --help" for more information about a command.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "", "Path to config file (default: "+config.DefaultConfigPath+")")
	root.PersistentFlags().StringVarP(&flags.output, "output", "o", "table", "Output format (table|json|yaml)")
	root.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "Log level (DEBUG|INFO|WARN|ERROR)")
	root.PersistentFlags().BoolVar(&flags.debug, "debug", false, "Enable debug logging")
	root.PersistentFlags().Bool("no-color", false, "Disable colored output")

	root.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		flags.noColor, _ = cmd.Flags().GetBool("no-color")
	}

	root.AddCommand(newConsolidateCmd(flags))
	root.AddCommand(newListCmd(flags))
	root.AddCommand(newConfigCmd(flags))
	root.AddCommand(newVersionCmd())

	root.CompletionOptions.DisableDefaultCmd = true
	return root
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}

// PrintErr prints an error message to stderr.
func PrintErr(format string, args ...any) {
	_, _ = fmt.Fprintf(os.Stderr, format+"\n", args...)
}

// loadConfig loads the configuration, applies the global flags, and
// initializes logging.
func (f *globalFlags) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return nil, err
	}

	if f.logLevel != "" {
		cfg.Logging.Level = f.logLevel
	}
	if f.debug {
		cfg.Debug = true
		cfg.Logging.Level = "DEBUG"
	}
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}

	if err := logger.Init(cfg.LoggerConfig()); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (f *globalFlags) printer(cmd *cobra.Command) (*output.Printer, error) {
	format, err := output.ParseFormat(f.output)
	if err != nil {
		return nil, err
	}
	return output.NewPrinter(cmd.OutOrStdout(), format, !f.noColor), nil
}
