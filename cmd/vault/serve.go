package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"vault-go/internal/app"

	"github.com/spf13/cobra"
)

// serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the upload API and metrics over HTTP",
	RunE: run("serve", func(a *app.VaultApp, cmd *cobra.Command, args []string) error {
		if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
			a.Config().Server.Addr = addr
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return a.Serve(ctx)
	}),
}

func init() {
	serveCmd.Flags().String("addr", "", "Listen address (default: [server] addr)")
	rootCmd.AddCommand(serveCmd)
}
