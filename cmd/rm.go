package cmd

import (
	"errors"
	"fmt"

	"github.com/illarion/fincrypt/internal/logging"
	"github.com/illarion/fincrypt/internal/storage"
	"github.com/illarion/fincrypt/internal/store"
	"github.com/spf13/cobra"
)

func (a *app) rmCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rm <key>...",
		Short: "Remove records",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.session(cmd.Context(), func(_ *store.Store, db *storage.Storage) error {
				var missing []string
				for _, key := range args {
					err := db.Delete(key)
					switch {
					case errors.Is(err, storage.ErrRecordNotFound):
						a.log.Warnf("%s is not in the container", key)
						missing = append(missing, key)
					case err != nil:
						return err
					default:
						fmt.Fprintf(out(cmd), "%s Removed %s\n", logging.Success.Sprint("✓"), logging.Highlight.Sprint(key))
					}
				}
				if len(missing) == len(args) {
					return fmt.Errorf("%w: nothing removed", storage.ErrRecordNotFound)
				}
				return nil
			})
		},
	}
}
