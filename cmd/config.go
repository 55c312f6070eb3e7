package cmd

import (
	"fmt"

	"github.com/lkarlslund/vertex-openai-proxy/pkg/config"
	"github.com/lkarlslund/vertex-openai-proxy/pkg/wizard"
	"github.com/spf13/cobra"
)

func init() {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Run the configuration wizard and write the config file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Read(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			return wizard.RunServerWizard(cmd.InOrStdin(), cmd.OutOrStdout(), configPath, cfg)
		},
	}
	rootCmd.AddCommand(configCmd)
}
