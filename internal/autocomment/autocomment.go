// Package autocomment runs a batch of tweets through "generate a comment,
// post it, wait" strictly one item at a time. Item failures are recorded and
// the batch moves on; only pre-flight problems fail the run.
package autocomment

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/yapper-space/core/internal/pkg/apperr"
	"github.com/yapper-space/core/internal/pkg/metrics"
	"go.uber.org/zap"
)

// Tone is the voice requested from the comment generator.
type Tone string

const (
	ToneFriendly     Tone = "friendly"
	ToneProfessional Tone = "professional"
	ToneCasual       Tone = "casual"
	ToneSupportive   Tone = "supportive"
)

// Tones lists the accepted tones in display order.
var Tones = []Tone{ToneFriendly, ToneProfessional, ToneCasual, ToneSupportive}

func (t Tone) Valid() bool {
	for _, v := range Tones {
		if t == v {
			return true
		}
	}
	return false
}

// ParseTone accepts a tone name case-insensitively. Empty means friendly.
func ParseTone(s string) (Tone, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return ToneFriendly, nil
	}
	if t := Tone(s); t.Valid() {
		return t, nil
	}
	return "", ErrInvalidTone
}

// Tweet is one target of a batch.
type Tweet struct {
	ID      string `json:"tweetId"`
	Content string `json:"content"`
}

// Settings apply to a whole run.
type Settings struct {
	Tone         Tone `json:"tone"`
	DelaySeconds int  `json:"delaySeconds"`
	// CallTimeout bounds each generate and post call. Zero leaves calls bounded
	// only by the collaborator itself.
	CallTimeout time.Duration `json:"-"`
}

func (s Settings) Delay() time.Duration {
	return time.Duration(s.DelaySeconds) * time.Second
}

// State is the per-item lifecycle.
type State string

const (
	StatePending    State = "pending"
	StateGenerating State = "generating"
	StatePosting    State = "posting"
	StateDone       State = "done"
	StateFailed     State = "failed"
)

// Reason explains a failed item.
type Reason string

const (
	ReasonGeneration Reason = "generation-error"
	ReasonPost       Reason = "post-error"
	ReasonTimeout    Reason = "timeout"
	ReasonCancelled  Reason = "cancelled"
)

// ItemResult is the final outcome of one tweet. Outcome is StateDone or StateFailed.
type ItemResult struct {
	TweetID string `json:"tweetId"`
	Outcome State  `json:"outcome"`
	Reason  Reason `json:"reason,omitempty"`
	Comment string `json:"comment,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Report summarises a run. Items are in input order.
type Report struct {
	SuccessCount int          `json:"successCount"`
	TotalCount   int          `json:"totalCount"`
	Items        []ItemResult `json:"items"`
	Cancelled    bool         `json:"cancelled,omitempty"`
}

// Generator produces a comment for a tweet.
type Generator interface {
	GenerateComment(ctx context.Context, content string, tone Tone) (string, error)
}

// Poster publishes a comment as a reply to a tweet.
type Poster interface {
	PostComment(ctx context.Context, tweetID, comment string) error
}

type GeneratorFunc func(ctx context.Context, content string, tone Tone) (string, error)

func (f GeneratorFunc) GenerateComment(ctx context.Context, content string, tone Tone) (string, error) {
	return f(ctx, content, tone)
}

type PosterFunc func(ctx context.Context, tweetID, comment string) error

func (f PosterFunc) PostComment(ctx context.Context, tweetID, comment string) error {
	return f(ctx, tweetID, comment)
}

// Sleeper waits for d or until ctx is done, whichever is first.
type Sleeper func(ctx context.Context, d time.Duration) error

// SleepContext is the default Sleeper.
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Event reports a state change while a batch runs.
type Event struct {
	Index        int
	Total        int
	TweetID      string
	State        State
	SuccessCount int
	// Result is set once the item reached StateDone or StateFailed.
	Result *ItemResult
}

var (
	ErrEmptyBatch      = apperr.Validation("No tweets to comment on")
	ErrMissingSettings = apperr.Validation("Auto-comment settings are required")
	ErrInvalidTone     = apperr.Validation("Tone must be one of friendly, professional, casual, supportive")
	ErrNegativeDelay   = apperr.Validation("Delay must be zero or more seconds")
	ErrMissingTweetID  = apperr.Validation("Every tweet needs an id")
	ErrNotConfirmed    = errors.New("auto-comment not confirmed")

	errEmptyComment = apperr.Upstream(0, "Comment generator returned an empty comment", nil)
)

type Orchestrator struct {
	gen      Generator
	post     Poster
	sleep    Sleeper
	progress func(Event)
	logger   *zap.Logger
}

type Option func(*Orchestrator)

func WithSleeper(s Sleeper) Option {
	return func(o *Orchestrator) { o.sleep = s }
}

// WithProgress registers a callback invoked synchronously on every state change.
func WithProgress(fn func(Event)) Option {
	return func(o *Orchestrator) { o.progress = fn }
}

func WithLogger(l *zap.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

func New(gen Generator, post Poster, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		gen:    gen,
		post:   post,
		sleep:  SleepContext,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Validate checks a batch before anything is sent upstream.
func Validate(tweets []Tweet, settings *Settings) error {
	if len(tweets) == 0 {
		return ErrEmptyBatch
	}
	if settings == nil {
		return ErrMissingSettings
	}
	if !settings.Tone.Valid() {
		return ErrInvalidTone
	}
	if settings.DelaySeconds < 0 {
		return ErrNegativeDelay
	}
	for _, t := range tweets {
		if strings.TrimSpace(t.ID) == "" {
			return ErrMissingTweetID
		}
	}
	return nil
}

// EstimateDuration is the figure shown at the confirmation gate: one delay per tweet.
func EstimateDuration(n int, settings Settings) time.Duration {
	return time.Duration(n) * settings.Delay()
}

// ConfirmFunc is asked once before a batch starts.
type ConfirmFunc func(ctx context.Context, count int, estimate time.Duration) (bool, error)

// RunConfirmed validates, asks confirm, and runs the batch only on a yes.
func (o *Orchestrator) RunConfirmed(ctx context.Context, tweets []Tweet, settings *Settings, confirm ConfirmFunc) (*Report, error) {
	if err := Validate(tweets, settings); err != nil {
		return nil, err
	}
	if confirm != nil {
		ok, err := confirm(ctx, len(tweets), EstimateDuration(len(tweets), *settings))
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, ErrNotConfirmed
		}
	}
	return o.Run(ctx, tweets, settings)
}

// Run processes tweets in order. Cancelling ctx stops the batch before the
// next item or during a delay; unprocessed items are reported as cancelled.
func (o *Orchestrator) Run(ctx context.Context, tweets []Tweet, settings *Settings) (*Report, error) {
	if err := Validate(tweets, settings); err != nil {
		return nil, err
	}

	report := &Report{
		TotalCount: len(tweets),
		Items:      make([]ItemResult, 0, len(tweets)),
	}
	last := len(tweets) - 1

	for i, tweet := range tweets {
		if ctx.Err() != nil {
			o.cancelRest(report, tweets[i:], i)
			break
		}

		res := o.process(ctx, i, len(tweets), tweet, *settings, report.SuccessCount)
		if res.Outcome == StateDone {
			report.SuccessCount++
		}
		report.Items = append(report.Items, res)
		o.emit(Event{Index: i, Total: len(tweets), TweetID: tweet.ID, State: res.Outcome, SuccessCount: report.SuccessCount, Result: &res})
		metrics.AutoCommentItems.WithLabelValues(string(res.Outcome), string(res.Reason)).Inc()

		if res.Reason == ReasonCancelled {
			o.cancelRest(report, tweets[i+1:], i+1)
			break
		}
		if res.Outcome != StateDone || i == last {
			continue
		}
		if err := o.sleep(ctx, settings.Delay()); err != nil {
			o.cancelRest(report, tweets[i+1:], i+1)
			break
		}
	}

	o.logger.Info("auto-comment batch finished",
		zap.Int("success", report.SuccessCount),
		zap.Int("total", report.TotalCount),
		zap.Bool("cancelled", report.Cancelled),
	)
	return report, nil
}

func (o *Orchestrator) process(ctx context.Context, index, total int, tweet Tweet, settings Settings, successSoFar int) ItemResult {
	res := ItemResult{TweetID: tweet.ID}

	o.emit(Event{Index: index, Total: total, TweetID: tweet.ID, State: StateGenerating, SuccessCount: successSoFar})
	comment, err := o.generate(ctx, tweet.Content, settings)
	if err == nil && strings.TrimSpace(comment) == "" {
		err = errEmptyComment
	}
	if err != nil {
		return o.fail(ctx, res, ReasonGeneration, err)
	}
	res.Comment = strings.TrimSpace(comment)

	o.emit(Event{Index: index, Total: total, TweetID: tweet.ID, State: StatePosting, SuccessCount: successSoFar})
	if err := o.postComment(ctx, tweet.ID, res.Comment, settings); err != nil {
		return o.fail(ctx, res, ReasonPost, err)
	}

	res.Outcome = StateDone
	return res
}

func (o *Orchestrator) generate(ctx context.Context, content string, settings Settings) (string, error) {
	callCtx, cancel := withCallTimeout(ctx, settings.CallTimeout)
	defer cancel()
	return o.gen.GenerateComment(callCtx, content, settings.Tone)
}

func (o *Orchestrator) postComment(ctx context.Context, tweetID, comment string, settings Settings) error {
	callCtx, cancel := withCallTimeout(ctx, settings.CallTimeout)
	defer cancel()
	return o.post.PostComment(callCtx, tweetID, comment)
}

func withCallTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

func (o *Orchestrator) fail(ctx context.Context, res ItemResult, reason Reason, err error) ItemResult {
	switch {
	case ctx.Err() != nil:
		reason = ReasonCancelled
	case apperr.Is(err, apperr.KindTimeout) || errors.Is(err, context.DeadlineExceeded):
		reason = ReasonTimeout
	}
	res.Outcome = StateFailed
	res.Reason = reason
	res.Error = apperr.PublicMessage(err)
	o.logger.Warn("auto-comment item failed",
		zap.String("tweet_id", res.TweetID),
		zap.String("reason", string(reason)),
		zap.Error(err),
	)
	return res
}

func (o *Orchestrator) cancelRest(report *Report, rest []Tweet, offset int) {
	report.Cancelled = true
	for j, t := range rest {
		res := ItemResult{TweetID: t.ID, Outcome: StateFailed, Reason: ReasonCancelled}
		report.Items = append(report.Items, res)
		o.emit(Event{Index: offset + j, Total: report.TotalCount, TweetID: t.ID, State: StateFailed, SuccessCount: report.SuccessCount, Result: &res})
		metrics.AutoCommentItems.WithLabelValues(string(StateFailed), string(ReasonCancelled)).Inc()
	}
}

func (o *Orchestrator) emit(e Event) {
	if o.progress != nil {
		o.progress(e)
	}
}
