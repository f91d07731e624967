package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/mithrel/whtreader/internal/config"
	"github.com/mithrel/whtreader/internal/wire"
)

type ctxKey string

const (
	appKey ctxKey = "app"
	cfgKey ctxKey = "cfg"
)

// skipAppAnnotation marks commands that only need configuration, not the cache.
const skipAppAnnotation = "whtreader/skip-app"

// Execute builds the root command, runs it and releases the app afterwards.
func Execute(ctx context.Context) error {
	cmd, closeApp := newRootCmd()
	defer closeApp()
	return cmd.ExecuteContext(ctx)
}

// NewRootCmd constructs the Cobra root command. The app it builds lives
// until the process exits; use Execute to have it closed.
func NewRootCmd() *cobra.Command {
	cmd, _ := newRootCmd()
	return cmd
}

func newRootCmd() (*cobra.Command, func()) {
	var cfgPath string
	var app *wire.App

	cmd := &cobra.Command{
		Use:           "whtreader",
		Short:         "whtreader: a local cache and reader for WhiteWind blogs",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			v, err := loadConfig(cmd.Context(), cfgPath)
			if err != nil {
				return err
			}
			ctx := context.WithValue(cmd.Context(), cfgKey, v)
			if !skipsApp(cmd) {
				app, err = wire.BuildAppWithLog(ctx, v, cmd.ErrOrStderr())
				if err != nil {
					return err
				}
				ctx = context.WithValue(ctx, appKey, app)
			}
			cmd.SetContext(ctx)
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&cfgPath, "config", "", "path to config file (yaml|toml)")

	cmd.AddCommand(newAuthorCmd())
	cmd.AddCommand(newEntryCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newCompletionCmd())

	cmd.Run = func(cmd *cobra.Command, args []string) { _ = cmd.Help() }

	closeApp := func() {
		if app != nil {
			_ = app.Close()
			app = nil
		}
	}
	return cmd, closeApp
}

func loadConfig(ctx context.Context, path string) (*viper.Viper, error) {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	}
	if err := config.Load(ctx, v); err != nil {
		return nil, err
	}
	return v, nil
}

func skipsApp(cmd *cobra.Command) bool {
	switch cmd.Name() {
	case "help", cobra.ShellCompRequestCmd, cobra.ShellCompNoDescRequestCmd:
		return true
	}
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations[skipAppAnnotation] == "true" {
			return true
		}
	}
	return false
}

func getApp(cmd *cobra.Command) (*wire.App, error) {
	app, ok := cmd.Context().Value(appKey).(*wire.App)
	if !ok || app == nil {
		return nil, fmt.Errorf("internal error: app not initialized")
	}
	return app, nil
}

func getConfig(cmd *cobra.Command) (*viper.Viper, error) {
	v, ok := cmd.Context().Value(cfgKey).(*viper.Viper)
	if !ok || v == nil {
		return nil, fmt.Errorf("internal error: config not loaded")
	}
	return v, nil
}

func printf(w io.Writer, format string, args ...any) {
	_, _ = fmt.Fprintf(w, format, args...)
}
