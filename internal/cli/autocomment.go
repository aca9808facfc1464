package cli

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/spf13/cobra"
	engine "github.com/yapper-space/core/internal/autocomment"
)

type autoCommentFlags struct {
	tone  string
	delay int
	max   int
	yes   bool
}

func newAutoCommentCommand(app *App) *cobra.Command {
	var flags autoCommentFlags

	cmd := &cobra.Command{
		Use:   "auto-comment <query>",
		Short: "Reply to matching tweets one by one with AI comments",
		Long: "Searches recent tweets, asks for confirmation, then generates and posts a reply to each\n" +
			"tweet in order, waiting --delay seconds after every successful post. Ctrl-C stops the\n" +
			"batch; tweets not reached are reported as cancelled.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAutoComment(cmd.Context(), app, strings.Join(args, " "), flags)
		},
	}

	f := cmd.Flags()
	f.StringVar(&flags.tone, "tone", string(engine.ToneFriendly), "friendly, professional, casual or supportive")
	f.IntVar(&flags.delay, "delay", 30, "seconds to wait after each posted comment")
	f.IntVar(&flags.max, "max", 10, "number of tweets to fetch (10-100)")
	f.BoolVarP(&flags.yes, "yes", "y", false, "skip the confirmation prompt")
	return cmd
}

func runAutoComment(ctx context.Context, app *App, query string, flags autoCommentFlags) error {
	tone, err := engine.ParseTone(flags.tone)
	if err != nil {
		return err
	}
	found, err := app.API.Search(ctx, query, flags.max)
	if err != nil {
		return err
	}
	if len(found) == 0 {
		app.printf("No tweets found.\n")
		return nil
	}

	tweets := make([]engine.Tweet, 0, len(found))
	for _, t := range found {
		tweets = append(tweets, engine.Tweet{ID: t.ID, Content: t.Content})
	}
	settings := &engine.Settings{Tone: tone, DelaySeconds: flags.delay}

	total := len(tweets)
	orch := engine.New(app.API, app.API,
		engine.WithSleeper(app.Sleep),
		engine.WithLogger(app.Logger),
		engine.WithProgress(func(ev engine.Event) {
			if ev.Result == nil {
				return
			}
			if ev.Result.Outcome == engine.StateDone {
				app.printf("Posted %d/%d  [%s] %s\n", ev.SuccessCount, total, ev.TweetID, oneLine(ev.Result.Comment))
				return
			}
			if ev.Result.Reason != engine.ReasonCancelled {
				app.printf("Failed [%s] %s: %s\n", ev.TweetID, ev.Result.Reason, ev.Result.Error)
			}
		}),
	)

	var confirm engine.ConfirmFunc
	if !flags.yes {
		confirm = func(ctx context.Context, count int, estimate time.Duration) (bool, error) {
			return app.confirm(confirmQuestion(count, estimate))
		}
	}

	report, err := orch.RunConfirmed(ctx, tweets, settings, confirm)
	if errors.Is(err, engine.ErrNotConfirmed) {
		app.printf("Aborted.\n")
		return nil
	}
	if err != nil {
		return err
	}

	if report.Cancelled {
		app.printf("Cancelled. ")
	}
	app.printf("Posted %d/%d comments.\n", report.SuccessCount, report.TotalCount)
	return nil
}

func confirmQuestion(count int, estimate time.Duration) string {
	minutes := int(math.Ceil(estimate.Minutes()))
	return fmt.Sprintf("Are you sure you want to auto-comment on %d tweets? This may take %d minutes.", count, minutes)
}
