package cmd

import (
	"errors"
	"fmt"

	"github.com/illarion/fincrypt/internal/logging"
	"github.com/illarion/fincrypt/internal/secmem"
	"github.com/illarion/fincrypt/internal/storage"
	"github.com/illarion/fincrypt/internal/store"
	"github.com/spf13/cobra"
)

func (a *app) diffCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "diff <key> <file|->",
		Short: "Compare a stored record with a local file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := args[0]

			local, err := readInput(cmd.InOrStdin(), args[1])
			if err != nil {
				return err
			}
			defer secmem.Wipe(local)

			return a.session(cmd.Context(), func(_ *store.Store, db *storage.Storage) error {
				stored, err := db.Get(key)
				if errors.Is(err, storage.ErrRecordNotFound) {
					stored = nil
				} else if err != nil {
					return err
				}
				defer secmem.Wipe(stored)

				if diff := storage.DiffText(key, stored, local); diff != "" {
					fmt.Fprint(out(cmd), diff)
				} else {
					fmt.Fprintln(out(cmd), logging.Muted.Sprint("no differences"))
				}
				return nil
			})
		},
	}
}
