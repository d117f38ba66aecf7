package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/bryan-buckman/rssagg/internal/model"
	"github.com/bryan-buckman/rssagg/internal/rss"
	"github.com/bryan-buckman/rssagg/internal/validate"
	"github.com/spf13/cobra"
)

// fetchCmd represents the fetch command
var fetchCmd = &cobra.Command{
	Use:   "fetch <url>",
	Short: "Fetch a feed and print its posts",
	Long: `Fetches a feed through the configured proxy, parses it and prints the
channel and its items. Nothing is stored.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		proxy := cfg.Proxy.URL
		if cfg.Proxy.Direct {
			proxy = ""
		}
		f := rss.NewFetcher(rss.FetcherConfig{ProxyURL: proxy, UserAgent: cfg.Fetch.UserAgent})

		ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Fetch.SubmitTimeout)
		defer cancel()
		return runFetch(ctx, cmd.OutOrStdout(), f, args[0])
	},
}

func init() {
	rootCmd.AddCommand(fetchCmd)
}

func runFetch(ctx context.Context, out io.Writer, f *rss.Fetcher, feedURL string) error {
	if kind := validate.URL(feedURL, nil); kind != model.ErrorNone {
		return fmt.Errorf("invalid url %q: %s", feedURL, kind)
	}
	ch, err := f.FetchChannel(ctx, feedURL)
	if err != nil {
		return fmt.Errorf("%s: %w", rss.Classify(err), err)
	}

	fmt.Fprintf(out, "%s\n", ch.Title)
	if ch.Description != "" {
		fmt.Fprintf(out, "%s\n", ch.Description)
	}
	fmt.Fprintf(out, "\n%d items\n", len(ch.Items))
	for _, it := range ch.Items {
		fmt.Fprintf(out, "- %s\n  %s\n", it.Title, it.Link)
	}
	return nil
}
