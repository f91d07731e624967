package cli

import (
	"errors"
	"io"
	"strings"

	"github.com/sahilm/fuzzy"
	"github.com/spf13/cobra"

	"github.com/mithrel/whtreader/internal/present"
	synsvc "github.com/mithrel/whtreader/internal/sync"
	"github.com/mithrel/whtreader/pkg/api"
)

func newAuthorCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "author",
		Aliases: []string{"authors"},
		Short:   "Manage followed authors",
	}
	cmd.AddCommand(newAuthorAddCmd())
	cmd.AddCommand(newAuthorListCmd())
	cmd.AddCommand(newAuthorRefreshCmd())
	cmd.AddCommand(newAuthorRemoveCmd())
	cmd.AddCommand(newAuthorFavCmd())
	cmd.AddCommand(newAuthorFindCmd())
	return cmd
}

func newAuthorAddCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "add <handle|did>",
		Short: "Add an author and fetch their entries",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := getApp(cmd)
			if err != nil {
				return err
			}
			author, err := app.Syncer.Onboard(cmd.Context(), args[0])
			if author.ID != "" {
				printf(cmd.OutOrStdout(), "Added %s (%s)\n", author.Label(), author.ID)
			}
			return err
		},
	}
}

func newAuthorListCmd() *cobra.Command {
	var outputMode string
	var noHeaders bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List cached authors",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := getApp(cmd)
			if err != nil {
				return err
			}
			opts, err := presentOptions(cmd.OutOrStdout(), outputMode, !noHeaders, "plain", "json", "pretty")
			if err != nil {
				return err
			}
			authors, err := app.Syncer.Authors(cmd.Context())
			if err != nil {
				return err
			}
			return withPager(cmd.Context(), cmd.OutOrStdout(), cmd.ErrOrStderr(), func(w io.Writer) error {
				return present.RenderAuthors(w, authors, opts)
			})
		},
	}
	outputFlag(cmd, &outputMode, "plain", "plain", "json", "pretty")
	cmd.Flags().BoolVar(&noHeaders, "noheaders", false, "hide column headers (plain)")
	return cmd
}

func newAuthorRefreshCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Re-fetch every cached author's profile",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := getApp(cmd)
			if err != nil {
				return err
			}
			authors, err := app.Syncer.RefreshAll(cmd.Context())
			var partial *synsvc.RefreshError
			if err != nil && !errors.As(err, &partial) {
				return err
			}
			printf(cmd.OutOrStdout(), "Refreshed %d authors\n", len(authors)-failureCount(partial))
			return err
		},
	}
}

func failureCount(err *synsvc.RefreshError) int {
	if err == nil {
		return 0
	}
	return len(err.Failures)
}

func newAuthorRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:               "rm <handle|did>",
		Aliases:           []string{"delete"},
		Short:             "Remove an author and their cached entries",
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
			removed, err := app.Syncer.Delete(cmd.Context(), author.ID)
			if err != nil {
				return err
			}
			printf(cmd.OutOrStdout(), "Removed %s (%s)\n", removed.Label(), removed.ID)
			return nil
		},
	}
}

func newAuthorFavCmd() *cobra.Command {
	var off bool
	cmd := &cobra.Command{
		Use:               "fav <handle|did>",
		Short:             "Mark an author as favorite",
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
			if err := app.Syncer.SetFavorite(cmd.Context(), author.ID, !off); err != nil {
				return err
			}
			state := "Favorited"
			if off {
				state = "Unfavorited"
			}
			printf(cmd.OutOrStdout(), "%s %s\n", state, author.Label())
			return nil
		},
	}
	cmd.Flags().BoolVar(&off, "off", false, "clear the favorite mark instead")
	return cmd
}

func newAuthorFindCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "find <query>",
		Short: "Fuzzy search cached authors by handle or display name",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := getApp(cmd)
			if err != nil {
				return err
			}
			authors, err := app.Syncer.Authors(cmd.Context())
			if err != nil {
				return err
			}
			for _, a := range findAuthors(args[0], authors, limit) {
				printf(cmd.OutOrStdout(), "%s\t%s\t%s\n", a.ID, a.Handle, a.DisplayName)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", completionLimit, "maximum number of matches")
	return cmd
}

// authorSource exposes "handle display name" strings to fuzzy.FindFrom.
type authorSource []api.Author

func (s authorSource) String(i int) string {
	return strings.TrimSpace(s[i].Handle + " " + s[i].DisplayName)
}

func (s authorSource) Len() int { return len(s) }

func findAuthors(query string, authors []api.Author, n int) []api.Author {
	matches := fuzzy.FindFrom(strings.TrimPrefix(query, "@"), authorSource(authors))
	limit := n
	if n <= 0 || len(matches) < limit {
		limit = len(matches)
	}
	out := make([]api.Author, limit)
	for i := 0; i < limit; i++ {
		out[i] = authors[matches[i].Index]
	}
	return out
}
