package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/illarion/fincrypt/internal/config"
	"github.com/illarion/fincrypt/internal/logging"
	"github.com/spf13/cobra"
)

func (a *app) configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage fincrypt configuration",
	}

	cmd.AddCommand(&cobra.Command{
		Use:         "init [path]",
		Short:       "Write a default config file",
		Long:        `Write the default configuration to path, or to $HOME/.fincrypt.yaml. An existing file is left alone.`,
		Args:        cobra.MaximumNArgs(1),
		Annotations: map[string]string{skipSetup: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			path := a.cfgFile
			if len(args) > 0 {
				path = args[0]
			}
			if path == "" {
				home, err := os.UserHomeDir()
				if err != nil {
					return fmt.Errorf("failed to find home directory: %w", err)
				}
				path = filepath.Join(home, config.ConfigName+"."+config.ConfigType)
			}

			if err := config.WriteDefault(path); err != nil {
				return err
			}
			fmt.Fprintf(out(cmd), "%s Wrote %s\n", logging.Success.Sprint("✓"), logging.Path.Sprint(path))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "view",
		Short: "Show the effective configuration",
		Long:  `Display the configuration merged from the config file, FINCRYPT_* environment variables and flags.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			data, err := config.Marshal(a.cfg)
			if err != nil {
				return err
			}
			if used := a.v.ConfigFileUsed(); used != "" {
				fmt.Fprintf(out(cmd), "# %s\n", used)
			}
			_, err = out(cmd).Write(data)
			return err
		},
	})
	return cmd
}
