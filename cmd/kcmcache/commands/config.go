package commands

import (
	"github.com/spf13/cobra"

	"github.com/paulscherrerinstitute/pam-single-kcm-cache/internal/cli/output"
	"github.com/paulscherrerinstitute/pam-single-kcm-cache/pkg/config"
)

func newConfigCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
		Long: `Inspect the pam_single_kcm_cache configuration.

Subcommands:
  show      Display the effective configuration
  validate  Validate the configuration file`,
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Display the effective configuration",
		Long: `Display the configuration after defaults and KCMCACHE_* environment
overrides are applied. The output is a valid configuration file.

Examples:
  kcmcache config show > /etc/security/pam_single_kcm_cache.yaml
  kcmcache config show -o json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.loadConfig()
			if err != nil {
				return err
			}
			format, err := output.ParseFormat(flags.output)
			if err != nil {
				return err
			}
			if format == output.FormatJSON {
				return output.PrintJSON(cmd.OutOrStdout(), cfg)
			}
			return output.PrintYAML(cmd.OutOrStdout(), cfg)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := flags.configPath
			if path == "" {
				path = config.GetDefaultConfigPath()
			}
			if _, err := config.MustLoad(path); err != nil {
				return err
			}
			p, err := flags.printer(cmd)
			if err != nil {
				return err
			}
			p.Printf("Configuration %s is valid\n", path)
			return nil
		},
	})

	return cmd
}
