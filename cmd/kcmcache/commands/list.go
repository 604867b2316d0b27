package commands

import (
	"github.com/spf13/cobra"

	"github.com/paulscherrerinstitute/pam-single-kcm-cache/internal/cli/output"
	"github.com/paulscherrerinstitute/pam-single-kcm-cache/internal/logger"
	"github.com/paulscherrerinstitute/pam-single-kcm-cache/pkg/ccache"
	"github.com/paulscherrerinstitute/pam-single-kcm-cache/pkg/session"
)

func newListCmd(flags *globalFlags) *cobra.Command {
	var userName, backendName string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "Show how the user's credential caches rank",
		Long: `List every credential cache of the collection with the verdict the
ranking gave it. Nothing is modified.

The winner, the cache consolidate would copy from, is marked with '*'.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.loadConfig()
			if err != nil {
				return err
			}
			if backendName != "" {
				cfg.Cache.Backend = backendName
			}

			name, err := loginName(userName)
			if err != nil {
				return err
			}

			p, err := flags.printer(cmd)
			if err != nil {
				return err
			}

			s, err := session.New(cfg, nil)
			if err != nil {
				return err
			}

			ctx := logger.WithContext(cmd.Context(), logger.NewLogContext("kcmcache", "list", name))
			rep, err := s.Inspect(ctx, name)
			if err != nil {
				return err
			}
			return p.Print(newCandidateList(rep))
		},
	}

	cmd.Flags().StringVarP(&userName, "user", "u", "", "Login user (default: current user)")
	cmd.Flags().StringVar(&backendName, "backend", "", "Cache collection backend (kcm|dir)")

	return cmd
}

// candidateList is the printable form of a session.Report.
type candidateList struct {
	User       string          `json:"user" yaml:"user"`
	UID        int             `json:"uid" yaml:"uid"`
	Backend    string          `json:"backend" yaml:"backend"`
	Winner     string          `json:"winner,omitempty" yaml:"winner,omitempty"`
	Candidates []candidateInfo `json:"candidates" yaml:"candidates"`
}

type candidateInfo struct {
	Cache     string `json:"cache" yaml:"cache"`
	Principal string `json:"principal,omitempty" yaml:"principal,omitempty"`
	Verdict   string `json:"verdict" yaml:"verdict"`
	Issued    string `json:"issued,omitempty" yaml:"issued,omitempty"`
	Expires   string `json:"expires,omitempty" yaml:"expires,omitempty"`
	Flags     string `json:"flags,omitempty" yaml:"flags,omitempty"`
	Error     string `json:"error,omitempty" yaml:"error,omitempty"`
}

func newCandidateList(rep *session.Report) *candidateList {
	l := &candidateList{
		User:       rep.User,
		UID:        rep.UID,
		Backend:    rep.Backend,
		Winner:     rep.Winner,
		Candidates: make([]candidateInfo, 0, len(rep.Candidates)),
	}
	for _, c := range rep.Candidates {
		info := candidateInfo{
			Cache:     c.CacheName,
			Principal: c.Principal,
			Verdict:   c.Verdict.String(),
			Flags:     c.Flags,
		}
		if !c.Freshness.IsZero() {
			info.Issued = c.Freshness.String()
		}
		if !c.EndTime.IsZero() {
			info.Expires = c.EndTime.String()
		}
		if c.Err != nil {
			info.Error = c.Err.Error()
		}
		l.Candidates = append(l.Candidates, info)
	}
	return l
}

// Headers implements output.TableRenderer.
func (l *candidateList) Headers() []string {
	return []string{"", "CACHE", "PRINCIPAL", "VERDICT", "ISSUED", "EXPIRES", "FLAGS"}
}

// Rows implements output.TableRenderer.
func (l *candidateList) Rows() [][]string {
	rows := make([][]string, 0, len(l.Candidates))
	for _, c := range l.Candidates {
		mark := ""
		if c.Cache == l.Winner {
			mark = "*"
		}
		verdict := c.Verdict
		if c.Error != "" {
			verdict += " (" + c.Error + ")"
		}
		rows = append(rows, []string{mark, c.Cache, c.Principal, verdict, c.Issued, c.Expires, c.Flags})
	}
	return rows
}

// RowStyle implements output.RowStyler: the winner stands out, caches that
// were rejected are dimmed.
func (l *candidateList) RowStyle(i int) output.RowStyle {
	c := l.Candidates[i]
	switch {
	case c.Cache == l.Winner:
		return output.RowSelected
	case c.Verdict == ccache.VerdictAccepted.String():
		return output.RowPlain
	default:
		return output.RowRejected
	}
}
