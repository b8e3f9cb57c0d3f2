package cmd

import (
	"fmt"
	"os"

	"github.com/illarion/fincrypt/internal/secmem"
	"github.com/illarion/fincrypt/internal/storage"
	"github.com/illarion/fincrypt/internal/store"
	"github.com/spf13/cobra"
)

func (a *app) getCmd() *cobra.Command {
	var output string
	var force bool

	cmd := &cobra.Command{
		Use:   "get <key>",
		Short: "Print a record",
		Long:  `Write the value stored under key to standard output or to --output.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.session(cmd.Context(), func(_ *store.Store, db *storage.Storage) error {
				value, err := db.Get(args[0])
				if err != nil {
					return err
				}
				defer secmem.Wipe(value)

				if output == "" {
					_, err := out(cmd).Write(value)
					return err
				}
				return writeSecret(output, value, force)
			})
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "write the value to this file (mode 0600)")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing output file")
	return cmd
}

func writeSecret(path string, data []byte, force bool) error {
	flags := os.O_WRONLY | os.O_CREATE | os.O_EXCL
	if force {
		flags = os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	}
	f, err := os.OpenFile(path, flags, 0600)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return f.Close()
}
