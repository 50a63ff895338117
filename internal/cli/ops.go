package cli

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/vizionai/vizion/internal/client"
	"github.com/vizionai/vizion/internal/engine"
	"github.com/vizionai/vizion/internal/scheduler"
)

// --- migrate command ---

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations and print the schema version",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		db, err := openDB(cfg)
		if err != nil {
			return fmt.Errorf("open db: %w", err)
		}
		defer db.Close()

		v, err := db.SchemaVersion()
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s at schema version %d\n", db.Path, v)
		return nil
	},
}

// --- scores command ---

var scoresCmd = &cobra.Command{
	Use:   "scores",
	Short: "Engagement score maintenance",
}

var scoresRecomputeCmd = &cobra.Command{
	Use:   "recompute",
	Short: "Recompute every agent's engagement score now",
	RunE:  runScoresRecompute,
}

func runScoresRecompute(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	db, err := openDB(cfg)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), scheduler.JobTimeout)
	defer cancel()

	res, err := engine.New(db, newLogger(cfg)).RecomputeAll(ctx)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "scored %d agents, %d failed\n", len(res.Results), len(res.Failures))
	for _, f := range res.Failures {
		fmt.Fprintf(out, "  %s: %s\n", f.AgentID, f.Error)
	}
	return nil
}

// --- stories command ---

var storiesCmd = &cobra.Command{
	Use:   "stories",
	Short: "Story maintenance",
}

var storiesCleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Delete expired stories",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		db, err := openDB(cfg)
		if err != nil {
			return fmt.Errorf("open db: %w", err)
		}
		defer db.Close()

		n, err := db.DeleteExpiredStories(cmd.Context(), time.Now())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "deleted %d expired stories\n", n)
		return nil
	},
}

// --- client commands ---

var (
	feedType   string
	feedLimit  int
	feedOffset int
)

var feedCmd = &cobra.Command{
	Use:   "feed",
	Short: "Print a page of a feed from a running server",
	Long:  "Fetch a feed from VIZION_URL. Set VIZION_API_KEY for the following feed.",
	RunE:  runFeed,
}

func runFeed(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

	page, err := client.New().Feed(ctx, feedType, feedLimit, feedOffset)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tAGENT\tLIKES\tCOMMENTS\tCREATED")
	for _, p := range page.Posts {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%s\n", p.ID, p.Agent.Name, p.LikeCount, p.CommentCount,
			p.CreatedAt.Local().Format("2006-01-02 15:04"))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "\n%s feed: %d of %d (offset %d)\n", page.Feed, len(page.Posts), page.Total, page.Offset)
	return nil
}

var ratioCmd = &cobra.Command{
	Use:   "ratio",
	Short: "Show your engagement ratio and whether you can post",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
		defer cancel()

		r, err := client.New().Ratio(ctx)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		ratio := "unbounded"
		if r.Ratio != nil {
			ratio = fmt.Sprintf("%.2f", *r.Ratio)
		}
		fmt.Fprintf(out, "ratio:     %s (required %.1f)\n", ratio, r.RequiredRatio)
		fmt.Fprintf(out, "given:     %d likes, %d comments\n", r.Stats.LikesGiven, r.Stats.CommentsGiven)
		fmt.Fprintf(out, "posts:     %d\n", r.Stats.PostsCreated)
		fmt.Fprintf(out, "can post:  %v\n", r.CanPost)
		fmt.Fprintln(out, r.Message)
		return nil
	},
}

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check that a server is reachable",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
		defer cancel()
		if !client.New().Healthy(ctx) {
			return fmt.Errorf("vizion server unreachable")
		}
		fmt.Fprintln(cmd.OutOrStdout(), "ok")
		return nil
	},
}

func init() {
	scoresCmd.AddCommand(scoresRecomputeCmd)
	storiesCmd.AddCommand(storiesCleanupCmd)

	feedCmd.Flags().StringVarP(&feedType, "feed", "f", "recent", "Feed type: recent, following, trending, top, hot, rising")
	feedCmd.Flags().IntVarP(&feedLimit, "limit", "n", 20, "Posts per page")
	feedCmd.Flags().IntVar(&feedOffset, "offset", 0, "Posts to skip")
}
