package cmd

import (
	"fmt"
	"time"

	"github.com/lkarlslund/vertex-openai-proxy/pkg/config"
	"github.com/lkarlslund/vertex-openai-proxy/pkg/credential"
	"github.com/lkarlslund/vertex-openai-proxy/pkg/logutil"
	"github.com/spf13/cobra"
)

var tokenPrint bool

func init() {
	tokenCmd := &cobra.Command{
		Use:   "token",
		Short: "Exchange the configured service-account key once and report the result",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Read(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if err := logutil.Configure(cfg.LogLevel, cfg.LogFormat); err != nil {
				return err
			}
			material, err := cfg.CredentialMaterial()
			if err != nil {
				return err
			}
			creds := credential.NewManager(credential.Options{
				Material:  material,
				Exchanger: credential.NewGoogleExchanger(cfg.TokenURL, cfg.UpstreamTimeout()),
			})
			tok, err := creds.ValidToken(cmd.Context())
			if err != nil {
				return err
			}
			st := creds.Status()
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "project:      %s\n", st.ProjectID)
			fmt.Fprintf(out, "client_email: %s\n", st.ClientEmail)
			fmt.Fprintf(out, "expires_at:   %s (in %s)\n", tok.ExpiresAt.Format(time.RFC3339), time.Until(tok.ExpiresAt).Round(time.Second))
			if tokenPrint {
				fmt.Fprintf(out, "access_token: %s\n", tok.Value)
			}
			return nil
		},
	}
	tokenCmd.Flags().BoolVar(&tokenPrint, "print", false, "Also print the access token")
	rootCmd.AddCommand(tokenCmd)
}
