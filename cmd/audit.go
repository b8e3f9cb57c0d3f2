package cmd

import (
	"fmt"
	"time"

	"github.com/illarion/fincrypt/internal/audit"
	"github.com/illarion/fincrypt/internal/logging"
	"github.com/spf13/cobra"
)

func (a *app) auditCmd() *cobra.Command {
	var (
		limit  int
		action string
		failed bool
		since  time.Duration
	)

	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Show recent audit events",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			w := out(cmd)
			if !a.cfg.Audit.Enabled {
				fmt.Fprintf(w, "Audit logging is disabled; enable it with %s or audit.enabled in the config file\n", logging.Code.Sprint("--audit"))
				return nil
			}

			opts := audit.QueryOptions{Action: action, Limit: limit}
			if failed {
				f := false
				opts.Success = &f
			}
			if since > 0 {
				t := time.Now().Add(-since)
				opts.Since = &t
			}

			events, err := a.audit.Query(opts)
			if err != nil {
				return err
			}
			for _, e := range events {
				outcome := logging.Success.Sprint("ok")
				if !e.Success {
					outcome = logging.Error.Sprint("failed")
				}
				line := fmt.Sprintf("%s  %-6s %s", e.Timestamp.Local().Format(time.RFC3339), e.Action, outcome)
				if p, ok := e.Metadata["path"].(string); ok {
					line += "  " + p
				}
				if e.Error != "" {
					line += "  " + logging.Muted.Sprint(e.Error)
				}
				fmt.Fprintln(w, line)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "show at most this many events (0 for all)")
	cmd.Flags().StringVar(&action, "action", "", "only show this action (create, open, save, close, rekey, abort)")
	cmd.Flags().BoolVar(&failed, "failed", false, "only show failed events")
	cmd.Flags().DurationVar(&since, "since", 0, "only show events newer than this")
	return cmd
}
