package cmd

import (
	"fmt"

	"github.com/illarion/fincrypt/internal/logging"
	"github.com/illarion/fincrypt/internal/passphrase"
	"github.com/illarion/fincrypt/internal/storage"
	"github.com/illarion/fincrypt/internal/store"
	"github.com/spf13/cobra"
)

func (a *app) passwdCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "passwd",
		Short: "Change the container passphrase",
		Long: `Re-encrypt the container under a new passphrase and a new salt.

The new passphrase is taken from FINCRYPT_NEW_PASSPHRASE or prompted for
twice. If the old passphrase was stored in the OS keyring, the entry is updated.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := a.cfg.Store.Path
			inKeyring := a.cfg.Keyring.Enabled && passphrase.InKeyring(path)

			return a.session(cmd.Context(), func(s *store.Store, _ *storage.Storage) error {
				newPass, _, err := a.resolver.ResolveReplacement()
				if err != nil {
					return err
				}
				keep := newPass.Clone()
				defer keep.Destroy()

				stop := a.startSpinner("Re-encrypting " + path)
				err = s.Rekey(newPass)
				stop()
				if err != nil {
					return err
				}

				if inKeyring {
					if err := passphrase.SaveToKeyring(path, keep); err != nil {
						a.log.Warnf("failed to update keyring: %v", err)
					} else {
						fmt.Fprintln(out(cmd), "Keyring updated with new passphrase")
					}
				}

				fmt.Fprintf(out(cmd), "%s Passphrase changed\n", logging.Success.Sprint("✓"))
				return nil
			})
		},
	}
}
