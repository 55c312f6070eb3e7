package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	log "github.com/charmbracelet/log"
	"github.com/lkarlslund/vertex-openai-proxy/pkg/config"
	"github.com/lkarlslund/vertex-openai-proxy/pkg/credential"
	"github.com/lkarlslund/vertex-openai-proxy/pkg/logstore"
	"github.com/lkarlslund/vertex-openai-proxy/pkg/logutil"
	"github.com/lkarlslund/vertex-openai-proxy/pkg/proxy"
	"github.com/lkarlslund/vertex-openai-proxy/pkg/vertex"
	"github.com/lkarlslund/vertex-openai-proxy/pkg/version"
	"github.com/spf13/cobra"
)

var serveListenAddrOverride string

func init() {
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the proxy server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if cmd.Flags().Changed("listen-addr") {
				cfg.ListenAddr = serveListenAddrOverride
			}
			if err := logutil.Configure(cfg.LogLevel, cfg.LogFormat); err != nil {
				return err
			}
			log.Info("starting", "version", version.String(), "region", cfg.Region, "model", cfg.Model)

			material, err := cfg.CredentialMaterial()
			if err != nil {
				return err
			}
			logs := logstore.NewStore(logstore.Settings{MaxEntries: cfg.Logs.MaxEntries})
			creds := credential.NewManager(credential.Options{
				Material:  material,
				Exchanger: credential.NewGoogleExchanger(cfg.TokenURL, cfg.UpstreamTimeout()),
				Recorder:  logs,
			})

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			// A failed first exchange is not fatal: requests retry on first use
			// and the admin update endpoint can supply new credentials.
			if _, err := creds.Reload(ctx); err != nil {
				log.Warn("initial credential load failed", "err", err)
			}

			srv, err := proxy.NewServer(proxy.Options{
				Config:   cfg,
				Creds:    creds,
				Logs:     logs,
				Upstream: vertex.NewClient(cfg.UpstreamTimeout()),
			})
			if err != nil {
				return fmt.Errorf("create server: %w", err)
			}
			return srv.Run(ctx)
		},
	}
	serveCmd.Flags().StringVar(&serveListenAddrOverride, "listen-addr", "", "Override listen address from config (e.g. 127.0.0.1:8080)")
	rootCmd.AddCommand(serveCmd)
}
