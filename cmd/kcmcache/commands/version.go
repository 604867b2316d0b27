package commands

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/paulscherrerinstitute/pam-single-kcm-cache/internal/cli/output"
)

func newVersionCmd() *cobra.Command {
	var short bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Long:  `Display the kcmcache version, build information, and system details.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if short {
				_, err := fmt.Fprintln(cmd.OutOrStdout(), Version)
				return err
			}

			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "kcmcache %s\n", Version)
			return output.SimpleTable(cmd.OutOrStdout(), [][2]string{
				{"Commit", Commit},
				{"Built", Date},
				{"Go version", runtime.Version()},
				{"OS/Arch", runtime.GOOS + "/" + runtime.GOARCH},
			})
		},
	}

	cmd.Flags().BoolVar(&short, "short", false, "Show only version number")
	return cmd
}
