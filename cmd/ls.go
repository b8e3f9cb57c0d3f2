package cmd

import (
	"fmt"
	"time"

	"github.com/illarion/fincrypt/internal/logging"
	"github.com/illarion/fincrypt/internal/storage"
	"github.com/illarion/fincrypt/internal/store"
	"github.com/spf13/cobra"
)

func (a *app) lsCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "ls",
		Aliases: []string{"list"},
		Short:   "List records",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.session(cmd.Context(), func(_ *store.Store, db *storage.Storage) error {
				entries, err := db.List()
				if err != nil {
					return err
				}

				created, err := db.GetCreated()
				if err != nil {
					return err
				}
				modified, err := db.GetModified()
				if err != nil {
					return err
				}

				w := out(cmd)
				summary := logging.Muted.Sprintf("%d records, created %s, modified %s",
					len(entries), created.Local().Format(time.RFC3339), modified.Local().Format(time.RFC3339))
				if len(entries) == 0 {
					fmt.Fprintln(w, summary)
					return nil
				}

				width := len("KEY")
				for _, e := range entries {
					width = max(width, len(e.Key))
				}
				fmt.Fprintf(w, "%-*s  %10s  %s\n", width, "KEY", "SIZE", "MODIFIED")
				for _, e := range entries {
					fmt.Fprintf(w, "%-*s  %10s  %s\n", width, e.Key, formatSize(e.Size), e.Modified.Local().Format(time.RFC3339))
				}
				fmt.Fprintln(w, summary)
				return nil
			})
		},
	}
}
