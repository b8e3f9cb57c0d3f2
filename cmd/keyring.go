package cmd

import (
	"errors"
	"fmt"

	"github.com/illarion/fincrypt/internal/passphrase"
	"github.com/illarion/fincrypt/internal/store"
	"github.com/spf13/cobra"
)

func (a *app) keyringCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keyring",
		Short: "Manage the passphrase stored in the OS keyring",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "save",
		Short: "Verify the passphrase and store it in the keyring",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := a.cfg.Store.Path

			pw := passphrase.FromEnv()
			if pw == nil {
				var err error
				if pw, err = a.resolver.Prompter.Prompt("Enter passphrase: "); err != nil {
					return err
				}
			}
			keep := pw.Clone()
			defer keep.Destroy()

			stop := a.startSpinner("Verifying " + path)
			err := store.VerifyPassphrase(cmd.Context(), path, pw, a.cfg.KDFParams())
			stop()
			if err != nil {
				return err
			}

			if err := passphrase.SaveToKeyring(path, keep); err != nil {
				return err
			}
			fmt.Fprintln(out(cmd), "Passphrase saved to keyring")
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "delete",
		Short: "Remove the stored passphrase",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			err := passphrase.DeleteFromKeyring(a.cfg.Store.Path)
			if errors.Is(err, passphrase.ErrNotInKeyring) {
				fmt.Fprintln(out(cmd), "No passphrase stored in keyring")
				return nil
			}
			if err != nil {
				return err
			}
			fmt.Fprintln(out(cmd), "Passphrase removed from keyring")
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Report whether a passphrase is stored",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if passphrase.InKeyring(a.cfg.Store.Path) {
				fmt.Fprintln(out(cmd), "Passphrase is stored in keyring")
			} else {
				fmt.Fprintln(out(cmd), "No passphrase stored in keyring")
			}
			return nil
		},
	})
	return cmd
}
