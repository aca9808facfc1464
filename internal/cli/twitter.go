package cli

import (
	"strings"

	"github.com/spf13/cobra"
	"github.com/yapper-space/core/internal/client"
)

func newSearchCommand(app *App) *cobra.Command {
	var maxResults int

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search recent tweets",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tweets, err := app.API.Search(cmd.Context(), strings.Join(args, " "), maxResults)
			if err != nil {
				return err
			}
			if len(tweets) == 0 {
				app.printf("No tweets found.\n")
				return nil
			}
			for _, t := range tweets {
				printTweet(app, t)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&maxResults, "max", 10, "number of results (10-100)")
	return cmd
}

func printTweet(app *App, t client.Tweet) {
	app.printf("[%s] %s: %s\n", t.ID, t.Handle, oneLine(t.Content))
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func newGenerateTweetCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "generate-tweet <prompt>",
		Short: "Draft tweets with AI",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := app.API.GenerateTweets(cmd.Context(), strings.Join(args, " "))
			if err != nil {
				return err
			}
			app.printf("%s\n", strings.TrimSpace(text))
			return nil
		},
	}
}

func newTwitterTokenCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "twitter-token <token>",
		Short: "Store the Twitter user token used for posting",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.API.SetTwitterToken(args[0]); err != nil {
				return err
			}
			app.printf("Twitter token saved.\n")
			return nil
		},
	}
}
