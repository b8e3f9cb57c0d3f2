package cmd

import (
	"fmt"
	"os"

	"github.com/illarion/fincrypt/internal/logging"
	"github.com/illarion/fincrypt/internal/storage"
	"github.com/illarion/fincrypt/internal/store"
	"github.com/spf13/cobra"
)

func (a *app) compactCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "compact",
		Short: "Reclaim space left by removed records",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.session(cmd.Context(), func(_ *store.Store, db *storage.Storage) error {
				before, err := os.Stat(db.Path())
				if err != nil {
					return err
				}
				if err := db.Compact(); err != nil {
					return err
				}
				after, err := os.Stat(db.Path())
				if err != nil {
					return err
				}

				fmt.Fprintf(out(cmd), "%s Compacted %s %s\n", logging.Success.Sprint("✓"),
					logging.Path.Sprint(a.cfg.Store.Path),
					logging.Muted.Sprintf("%s -> %s", formatSize(before.Size()), formatSize(after.Size())))
				return nil
			})
		},
	}
}
