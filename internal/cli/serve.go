package cli

import (
	"github.com/spf13/cobra"

	"github.com/mithrel/whtreader/internal/server"
)

func newServeCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve cached entries over HTTP for previewing in a browser",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := getApp(cmd)
			if err != nil {
				return err
			}
			if addr != "" {
				app.Cfg.Set("serve.addr", addr)
			}
			srv := server.New(app.Cfg, app.Syncer, app.Events, app.Log.With("component", "server"))
			return srv.Run(cmd.Context())
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from serve.addr)")
	return cmd
}
