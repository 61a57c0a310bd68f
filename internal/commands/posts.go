package commands

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/renix-codex/feedsync/internal/models"
)

const maxTitleWidth = 60

var (
	postsAll   bool
	postsLimit int
)

var postsCmd = &cobra.Command{
	Use:   "posts",
	Short: "Inspect and like posts in the local store",
}

var postsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List posts from the local store",
	Long: `List the first page of posts from the local store, or every post with
--all. No network access is performed.`,
	Args: cobra.NoArgs,
	RunE: runPostsList,
}

var postsLikeCmd = &cobra.Command{
	Use:   "like <id>",
	Short: "Toggle the liked flag of a post",
	Args:  cobra.ExactArgs(1),
	RunE:  runPostsLike,
}

func init() {
	postsListCmd.Flags().BoolVar(&postsAll, "all", false, "list every post instead of the first page")
	postsListCmd.Flags().IntVar(&postsLimit, "limit", 0, "maximum number of posts to print (0 = no limit)")

	postsCmd.AddCommand(postsListCmd)
	postsCmd.AddCommand(postsLikeCmd)
}

func runPostsList(cmd *cobra.Command, args []string) error {
	if postsLimit < 0 {
		return fmt.Errorf("--limit must not be negative")
	}
	ctx := cmd.Context()
	a, err := startApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	var items []models.FeedItem
	if postsAll {
		for _, p := range a.engine.All() {
			items = append(items, models.FeedItem{Post: p, Liked: a.engine.IsLiked(ctx, p.ID)})
		}
	} else {
		items = a.engine.Items(ctx)
	}
	if postsLimit > 0 && len(items) > postsLimit {
		items = items[:postsLimit]
	}

	out := cmd.OutOrStdout()
	if len(items) == 0 {
		fmt.Fprintln(out, "No posts stored. Run 'feedsync sync' first.")
		return nil
	}
	printPosts(out, items)
	fmt.Fprintf(out, "\n%d of %d posts\n", len(items), len(a.engine.All()))
	return nil
}

func printPosts(w io.Writer, items []models.FeedItem) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"ID", "User", "Title", "Liked"})
	table.SetAutoWrapText(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("  ")
	table.SetNoWhiteSpace(true)

	for _, it := range items {
		liked := ""
		if it.Liked {
			liked = "yes"
		}
		table.Append([]string{
			strconv.Itoa(it.ID),
			strconv.Itoa(it.UserID),
			truncate(it.Title, maxTitleWidth),
			liked,
		})
	}
	table.Render()
}

func truncate(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}

func runPostsLike(cmd *cobra.Command, args []string) error {
	id, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("invalid post id %q", args[0])
	}
	ctx := cmd.Context()
	a, err := startApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	liked, err := a.api.ToggleLike(ctx, id)
	if err != nil {
		return fmt.Errorf("post %d: %w", id, err)
	}
	state := "unliked"
	if liked {
		state = "liked"
	}
	fmt.Fprintf(cmd.OutOrStdout(), "post %d %s\n", id, state)
	return nil
}
