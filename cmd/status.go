package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/illarion/fincrypt/internal/logging"
	"github.com/illarion/fincrypt/internal/passphrase"
	"github.com/illarion/fincrypt/internal/store"
	"github.com/spf13/cobra"
)

func (a *app) statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show container information without a passphrase",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := a.cfg.Store.Path
			w := out(cmd)

			info, err := store.Inspect(path)
			if errors.Is(err, store.ErrNotFound) {
				fmt.Fprintf(w, "No container at %s\n", logging.Path.Sprint(path))
				fmt.Fprintf(w, "Run %s to create one\n", logging.Code.Sprint("fincrypt init"))
				return nil
			}
			if err != nil {
				return err
			}

			fmt.Fprintf(w, "Container: %s\n", logging.Path.Sprint(info.Path))
			fmt.Fprintf(w, "Format:    version %d\n", info.Header.Version)
			fmt.Fprintf(w, "Size:      %s %s\n", formatSize(info.Size), logging.Muted.Sprintf("%s payload", formatSize(info.PayloadSize())))
			fmt.Fprintf(w, "Modified:  %s\n", info.ModTime.Local().Format(time.RFC3339))

			state := "not in use"
			if info.Locked {
				state = logging.Warning.Sprint("in use by another session")
			}
			fmt.Fprintf(w, "State:     %s\n", state)

			if a.cfg.Keyring.Enabled {
				keyring := "not stored"
				if passphrase.InKeyring(path) {
					keyring = "stored"
				}
				fmt.Fprintf(w, "Keyring:   %s\n", keyring)
			}
			return nil
		},
	}
}
