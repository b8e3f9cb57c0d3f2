package cmd

import (
	"fmt"

	"github.com/illarion/fincrypt/internal/logging"
	"github.com/illarion/fincrypt/internal/secmem"
	"github.com/illarion/fincrypt/internal/storage"
	"github.com/illarion/fincrypt/internal/store"
	"github.com/spf13/cobra"
)

func (a *app) putCmd() *cobra.Command {
	var value string

	cmd := &cobra.Command{
		Use:   "put <key> [file|-]",
		Short: "Store a record",
		Long: `Store a record under key. The value is read from file, from --value, or
from standard input when neither is given or file is "-".`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := args[0]

			var data []byte
			if cmd.Flags().Changed("value") {
				if len(args) > 1 {
					return fmt.Errorf("--value and a file argument are mutually exclusive")
				}
				data = []byte(value)
			} else {
				src := ""
				if len(args) > 1 {
					src = args[1]
				}
				var err error
				if data, err = readInput(cmd.InOrStdin(), src); err != nil {
					return err
				}
			}
			defer secmem.Wipe(data)

			return a.session(cmd.Context(), func(_ *store.Store, db *storage.Storage) error {
				if err := db.Put(key, data); err != nil {
					return err
				}
				fmt.Fprintf(out(cmd), "%s Stored %s %s\n", logging.Success.Sprint("✓"),
					logging.Highlight.Sprint(key), logging.Muted.Sprint(formatSize(int64(len(data)))))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&value, "value", "", "record value (visible in shell history; prefer stdin)")
	return cmd
}
