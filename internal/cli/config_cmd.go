package cli

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/mithrel/whtreader/internal/config"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:         "config",
		Short:       "Manage configuration",
		Annotations: map[string]string{skipAppAnnotation: "true"},
	}
	cmd.AddCommand(newConfigGenerateCmd())
	cmd.AddCommand(newConfigCheckCmd())
	cmd.AddCommand(newConfigPathCmd())
	return cmd
}

func newConfigCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Validate the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := getConfig(cmd)
			if err != nil {
				return err
			}
			if err := config.CheckConfigValidity(v); err != nil {
				return err
			}
			source := v.ConfigFileUsed()
			if source == "" {
				source = "defaults"
			}
			printf(cmd.OutOrStdout(), "Config OK (%s)\n", source)
			return nil
		},
	}
}

func newConfigPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the config file and cache database paths",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := getConfig(cmd)
			if err != nil {
				return err
			}
			printf(cmd.OutOrStdout(), "config\t%s\n", v.ConfigFileUsed())
			printf(cmd.OutOrStdout(), "database\t%s\n", config.ResolveDBPath(v))
			return nil
		},
	}
}

type generateMode int

const (
	generateCreate generateMode = iota
	generateOverwrite
	generateUpdate
)

func newConfigGenerateCmd() *cobra.Command {
	var out string
	var overwrite bool
	var update bool
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate a default config.toml",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if out == "" {
				out = config.DefaultConfigPath()
			}
			mode := generateCreate
			switch {
			case overwrite && update:
				return fmt.Errorf("choose either --overwrite or --update")
			case overwrite:
				mode = generateOverwrite
			case update:
				mode = generateUpdate
			}
			return generateConfig(cmd.OutOrStdout(), out, mode)
		},
	}
	cmd.Flags().StringVarP(&out, "output", "o", "", "output path for config.toml")
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "overwrite existing config (creates a backup)")
	cmd.Flags().BoolVar(&update, "update", false, "merge defaults into existing config (creates a backup)")
	return cmd
}

// generateConfig writes the default config to path. An existing file is only
// touched in overwrite or update mode, and is backed up first.
func generateConfig(w io.Writer, path string, mode generateMode) error {
	current, err := os.ReadFile(path)
	exists := err == nil
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}

	content := config.RenderDefaultTOML()
	switch {
	case !exists:
	case mode == generateCreate:
		return fmt.Errorf("config already exists at %s; use --overwrite to replace it or --update to merge new defaults", path)
	case mode == generateUpdate:
		updated, changed := config.UpdateTOML(string(current))
		if !changed {
			printf(w, "Config already up to date: %s\n", path)
			return nil
		}
		content = updated
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	var backup string
	if exists {
		if backup, err = backupConfig(path, current); err != nil {
			return err
		}
	}
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		return err
	}
	printf(w, "Wrote %s\n", path)
	if backup != "" {
		printf(w, "Backup: %s\n", backup)
	}
	return nil
}

// backupConfig saves data next to path as .bak, or with a timestamp suffix
// when a .bak already exists.
func backupConfig(path string, data []byte) (string, error) {
	backup := path + ".bak"
	if _, err := os.Stat(backup); err == nil {
		backup = path + ".bak-" + time.Now().Format("20060102-150405")
	}
	if err := os.WriteFile(backup, data, 0o600); err != nil {
		return "", err
	}
	return backup, nil
}
