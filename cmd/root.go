package cmd

import (
	"fmt"
	"os"

	"github.com/lkarlslund/vertex-openai-proxy/pkg/config"
	"github.com/lkarlslund/vertex-openai-proxy/pkg/version"
	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   version.Component,
	Short: "OpenAI-compatible proxy for Vertex AI Gemini",
	Long:  "Serves the OpenAI chat-completions API and forwards each request to a Gemini model on Vertex AI using a service-account credential.",
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.SetOut(os.Stdout)
	rootCmd.SetErr(os.Stderr)
	rootCmd.SilenceUsage = true
	rootCmd.PersistentFlags().StringVar(&configPath, "config", config.DefaultConfigPath(), "Config TOML path (optional; environment variables override it)")
	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		if os.Geteuid() == 0 {
			fmt.Fprintln(cmd.ErrOrStderr(), "warning: running as root")
		}
		return nil
	}
}
