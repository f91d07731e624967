package cli

import (
	"context"
	"io"
	"strings"

	"github.com/sahilm/fuzzy"
	"github.com/spf13/cobra"

	"github.com/mithrel/whtreader/internal/wire"
	"github.com/mithrel/whtreader/pkg/api"
)

const completionLimit = 20

func newCompletionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:         "completion",
		Short:       "Generate shell completion scripts",
		Annotations: map[string]string{skipAppAnnotation: "true"},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "bash",
		Short: "Generate Bash completions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Root().GenBashCompletion(cmd.OutOrStdout())
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "zsh",
		Short: "Generate Zsh completions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Root().GenZshCompletion(cmd.OutOrStdout())
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "fish",
		Short: "Generate Fish completions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Root().GenFishCompletion(cmd.OutOrStdout(), true)
		},
	})

	return cmd
}

// completeAuthors completes the first positional argument with cached
// handles. Completion runs without the persistent hooks, so it opens its
// own app from the --config flag.
func completeAuthors(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	if len(args) > 0 {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	cfgPath := ""
	if f := cmd.Flag("config"); f != nil {
		cfgPath = f.Value.String()
	}
	v, err := loadConfig(ctx, cfgPath)
	if err != nil {
		return nil, cobra.ShellCompDirectiveError
	}
	app, err := wire.BuildAppWithLog(ctx, v, io.Discard)
	if err != nil {
		return nil, cobra.ShellCompDirectiveError
	}
	defer app.Close()

	authors, err := app.Syncer.Authors(ctx)
	if err != nil {
		return nil, cobra.ShellCompDirectiveError
	}
	return rankAuthors(strings.TrimPrefix(toComplete, "@"), authors, completionLimit), cobra.ShellCompDirectiveNoFileComp
}

// rankAuthors returns handles (or DIDs for handle-less authors) ordered by
// fuzzy match quality against query. An empty query keeps cache order.
func rankAuthors(query string, authors []api.Author, n int) []string {
	keys := make([]string, len(authors))
	for i, a := range authors {
		keys[i] = a.Handle
		if keys[i] == "" {
			keys[i] = a.ID
		}
	}
	if query == "" {
		if n > 0 && len(keys) > n {
			keys = keys[:n]
		}
		return keys
	}
	matches := fuzzy.Find(query, keys)
	limit := n
	if n <= 0 || len(matches) < limit {
		limit = len(matches)
	}
	out := make([]string, limit)
	for i := 0; i < limit; i++ {
		out[i] = matches[i].Str
	}
	return out
}
