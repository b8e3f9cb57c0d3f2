package cmd

import (
	"fmt"

	"github.com/illarion/fincrypt/internal/logging"
	"github.com/illarion/fincrypt/internal/store"
	"github.com/spf13/cobra"
)

func (a *app) verifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Check the passphrase without opening a session",
		Long: `Decrypt the container in memory to check the passphrase and the
container's integrity. No working copy is written.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := a.cfg.Store.Path

			pw, src, err := a.resolver.Resolve(path)
			if err != nil {
				return err
			}
			a.log.Debugf("passphrase from %s", src)

			stop := a.startSpinner("Verifying " + path)
			err = store.VerifyPassphrase(cmd.Context(), path, pw, a.cfg.KDFParams())
			stop()
			if err != nil {
				return err
			}

			fmt.Fprintf(out(cmd), "%s Passphrase is correct and the container is intact\n", logging.Success.Sprint("✓"))
			return nil
		},
	}
}
