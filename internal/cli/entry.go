package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/mithrel/whtreader/internal/present"
	"github.com/mithrel/whtreader/internal/present/format"
	synsvc "github.com/mithrel/whtreader/internal/sync"
)

func newEntryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "entry",
		Aliases: []string{"entries"},
		Short:   "Read and sync blog entries",
	}
	cmd.AddCommand(newEntryListCmd())
	cmd.AddCommand(newEntrySyncCmd())
	cmd.AddCommand(newEntryShowCmd())
	cmd.AddCommand(newEntryRenderCmd())
	return cmd
}

func newEntryListCmd() *cobra.Command {
	var outputMode string
	var visibility string
	var noHeaders bool
	cmd := &cobra.Command{
		Use:               "list <handle|did>",
		Short:             "List an author's cached entries, newest first",
		Args:              cobra.ExactArgs(1),
		ValidArgsFunction: completeAuthors,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := getApp(cmd)
			if err != nil {
				return err
			}
			opts, err := presentOptions(cmd.OutOrStdout(), outputMode, !noHeaders, "plain", "json", "pretty")
			if err != nil {
				return err
			}
			author, err := app.Syncer.Lookup(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			entries, err := app.Syncer.Entries(cmd.Context(), author.ID, visibility)
			if err != nil {
				return err
			}
			return withPager(cmd.Context(), cmd.OutOrStdout(), cmd.ErrOrStderr(), func(w io.Writer) error {
				return present.RenderEntries(w, entries, opts)
			})
		},
	}
	outputFlag(cmd, &outputMode, "plain", "plain", "json", "pretty")
	cmd.Flags().StringVar(&visibility, "visibility", "", fmt.Sprintf("visibility filter (default from entries.visibility; %q disables)", synsvc.AllVisibilities))
	cmd.Flags().BoolVar(&noHeaders, "noheaders", false, "hide column headers (plain)")
	return cmd
}

func newEntrySyncCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:               "sync <handle|did>",
		Short:             "Replace an author's cached entries with the remote set",
		Args:              cobra.ExactArgs(1),
		ValidArgsFunction: completeAuthors,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := getApp(cmd)
			if err != nil {
				return err
			}
			author, err := app.Syncer.Lookup(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			report, err := app.Syncer.ResyncEntries(cmd.Context(), author.ID)
			if err != nil {
				return err
			}
			if asJSON {
				return format.WriteJSONValue(cmd.OutOrStdout(), report, false)
			}
			printf(cmd.OutOrStdout(), "%s: %s\n", author.Label(), report)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the sync report as JSON")
	return cmd
}

func newEntryShowCmd() *cobra.Command {
	var outputMode string
	cmd := &cobra.Command{
		Use:   "show <at-uri>",
		Short: "Show one cached entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := getApp(cmd)
			if err != nil {
				return err
			}
			opts, err := presentOptions(cmd.OutOrStdout(), outputMode, true, "html", "markdown", "pretty", "json")
			if err != nil {
				return err
			}
			entry, err := app.Syncer.Entry(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if opts.Mode != present.ModePretty {
				return present.RenderEntry(cmd.OutOrStdout(), entry, opts)
			}
			return withPager(cmd.Context(), cmd.OutOrStdout(), cmd.ErrOrStderr(), func(w io.Writer) error {
				return present.RenderEntry(w, entry, opts)
			})
		},
	}
	outputFlag(cmd, &outputMode, "pretty", "html", "markdown", "pretty", "json")
	return cmd
}

func newEntryRenderCmd() *cobra.Command {
	var inlineImages bool
	var fragment bool
	cmd := &cobra.Command{
		Use:   "render <file|->",
		Short: "Render a local markdown file to display HTML",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := getApp(cmd)
			if err != nil {
				return err
			}
			markup, err := readInput(cmd.InOrStdin(), args[0])
			if err != nil {
				return err
			}
			inline := app.Cfg.GetBool("render.inline_images")
			if cmd.Flags().Changed("inline-images") {
				inline = inlineImages
			}
			render := app.Renderer.Render
			if fragment {
				render = app.Renderer.Fragment
			}
			html, err := render(cmd.Context(), markup, inline)
			if err != nil {
				return err
			}
			_, err = io.WriteString(cmd.OutOrStdout(), html)
			return err
		},
	}
	cmd.Flags().BoolVar(&inlineImages, "inline-images", false, "embed remote images as data URIs (default from render.inline_images)")
	cmd.Flags().BoolVar(&fragment, "fragment", false, "emit the sanitized fragment without the page template")
	return cmd
}

func readInput(stdin io.Reader, path string) (string, error) {
	if path == "-" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		return string(data), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
