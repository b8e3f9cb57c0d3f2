package cmd

import (
	"fmt"

	"github.com/illarion/fincrypt/internal/logging"
	"github.com/illarion/fincrypt/internal/passphrase"
	"github.com/illarion/fincrypt/internal/secmem"
	"github.com/illarion/fincrypt/internal/storage"
	"github.com/illarion/fincrypt/internal/store"
	"github.com/spf13/cobra"
)

func (a *app) initCmd() *cobra.Command {
	var saveKeyring bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a new encrypted container",
		Long: `Create a new, empty encrypted container at the configured path.

The passphrase is taken from FINCRYPT_PASSPHRASE or prompted for twice.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := a.cfg.Store.Path

			pw, _, err := a.resolver.ResolveNew()
			if err != nil {
				return err
			}
			var keep *secmem.Buffer
			if saveKeyring {
				keep = pw.Clone()
				defer keep.Destroy()
			}

			stop := a.startSpinner("Creating " + path)
			defer stop()

			err = store.WithNewSession(cmd.Context(), path, pw, a.storeOptions(), func(s *store.Store) error {
				stop()
				return a.withDatabase(s, func(*store.Store, *storage.Storage) error { return nil })
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(out(cmd), "%s Created %s\n", logging.Success.Sprint("✓"), logging.Path.Sprint(path))

			if saveKeyring {
				if err := passphrase.SaveToKeyring(path, keep); err != nil {
					a.log.Warnf("%v", err)
				} else {
					fmt.Fprintln(out(cmd), "Passphrase saved to keyring")
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&saveKeyring, "save-keyring", false, "store the passphrase in the OS keyring")
	return cmd
}
