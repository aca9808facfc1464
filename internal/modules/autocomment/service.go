// Package autocomment runs auto-comment batches on the server as background
// tasks stored in Redis.
package autocomment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	engine "github.com/yapper-space/core/internal/autocomment"
	"github.com/yapper-space/core/internal/models"
	"github.com/yapper-space/core/internal/pkg/apperr"
	"github.com/yapper-space/core/internal/pkg/pagination"
	"github.com/yapper-space/core/internal/pkg/taskqueue"
	"github.com/yapper-space/core/internal/session"
	"go.uber.org/zap"
)

const (
	TaskType = "auto-comment"

	// Retention is how long finished tasks are kept before cleanup.
	Retention = 7 * 24 * time.Hour
)

var (
	ErrTaskNotFound = apperr.NotFound("Task not found")
	ErrTaskFinished = apperr.Conflict("Task already finished")
)

// CommentPoster publishes a reply with a user's Twitter token.
type CommentPoster interface {
	PostComment(ctx context.Context, userToken, tweetID, comment string) (json.RawMessage, error)
}

// ActivityLogger records audit entries.
type ActivityLogger interface {
	LogActivity(ctx context.Context, userID, activityType, description string, meta session.Meta, extra map[string]interface{})
}

// Payload is what a task stores about its batch.
type Payload struct {
	Tweets   []engine.Tweet  `json:"tweets"`
	Settings engine.Settings `json:"settings"`
}

// Progress is the live snapshot kept on a running task.
type Progress struct {
	Processed    int          `json:"processed"`
	SuccessCount int          `json:"successCount"`
	TotalCount   int          `json:"totalCount"`
	TweetID      string       `json:"tweetId"`
	State        engine.State `json:"state"`
}

// Batch is one start request.
type Batch struct {
	OwnerID      string
	TwitterToken string
	Tweets       []engine.Tweet
	Settings     engine.Settings
	Meta         session.Meta
}

type Service struct {
	tasks       *taskqueue.Service
	gen         engine.Generator
	poster      CommentPoster
	activity    ActivityLogger
	maxBatch    int
	callTimeout time.Duration
	sleep       engine.Sleeper
	logger      *zap.Logger
	now         func() time.Time

	baseCtx  context.Context
	stop     context.CancelFunc
	wg       sync.WaitGroup
	mu       sync.Mutex
	inFlight map[string]context.CancelFunc
}

type Option func(*Service)

func WithMaxBatch(n int) Option {
	return func(s *Service) { s.maxBatch = n }
}

// WithCallTimeout bounds each generate and post call of a batch.
func WithCallTimeout(d time.Duration) Option {
	return func(s *Service) { s.callTimeout = d }
}

func WithSleeper(sl engine.Sleeper) Option {
	return func(s *Service) { s.sleep = sl }
}

func WithLogger(l *zap.Logger) Option {
	return func(s *Service) { s.logger = l }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(tasks *taskqueue.Service, gen engine.Generator, poster CommentPoster, activity ActivityLogger, opts ...Option) *Service {
	ctx, stop := context.WithCancel(context.Background())
	s := &Service{
		tasks:    tasks,
		gen:      gen,
		poster:   poster,
		activity: activity,
		maxBatch: 50,
		sleep:    engine.SleepContext,
		logger:   zap.NewNop(),
		now:      time.Now,
		baseCtx:  ctx,
		stop:     stop,
		inFlight: make(map[string]context.CancelFunc),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Start validates the batch, stores it as a pending task and runs it in the
// background. It returns the task and the estimated duration.
func (s *Service) Start(ctx context.Context, b Batch) (*taskqueue.Task, time.Duration, error) {
	if err := engine.Validate(b.Tweets, &b.Settings); err != nil {
		return nil, 0, err
	}
	if s.maxBatch > 0 && len(b.Tweets) > s.maxBatch {
		return nil, 0, apperr.Validation(fmt.Sprintf("At most %d tweets per batch", s.maxBatch))
	}

	task, err := s.tasks.Enqueue(ctx, TaskType, b.OwnerID, Payload{Tweets: b.Tweets, Settings: b.Settings})
	if err != nil {
		return nil, 0, apperr.Internal(err)
	}

	runCtx, cancel := context.WithCancel(s.baseCtx)
	s.mu.Lock()
	s.inFlight[task.ID] = cancel
	s.mu.Unlock()

	s.wg.Add(1)
	go s.run(runCtx, task.ID, b)

	return task, engine.EstimateDuration(len(b.Tweets), b.Settings), nil
}

func (s *Service) run(ctx context.Context, taskID string, b Batch) {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		if cancel, ok := s.inFlight[taskID]; ok {
			cancel()
			delete(s.inFlight, taskID)
		}
		s.mu.Unlock()
	}()

	// Task bookkeeping must survive the batch being cancelled.
	store := context.WithoutCancel(ctx)
	log := s.logger.With(zap.String("task_id", taskID), zap.String("user_id", b.OwnerID))

	if err := s.tasks.UpdateStatus(store, taskID, taskqueue.TaskRunning, nil, ""); err != nil {
		log.Warn("mark task running failed", zap.Error(err))
	}

	poster := engine.PosterFunc(func(ctx context.Context, tweetID, comment string) error {
		_, err := s.poster.PostComment(ctx, b.TwitterToken, tweetID, comment)
		return err
	})
	processed := 0
	orch := engine.New(s.gen, poster,
		engine.WithSleeper(s.sleep),
		engine.WithLogger(log),
		engine.WithProgress(func(ev engine.Event) {
			if ev.Result != nil {
				processed++
			}
			p := Progress{
				Processed:    processed,
				SuccessCount: ev.SuccessCount,
				TotalCount:   ev.Total,
				TweetID:      ev.TweetID,
				State:        ev.State,
			}
			if err := s.tasks.SetProgress(store, taskID, p); err != nil {
				log.Debug("store progress failed", zap.Error(err))
			}
		}),
	)

	settings := b.Settings
	settings.CallTimeout = s.callTimeout
	report, err := orch.Run(ctx, b.Tweets, &settings)
	if err != nil {
		log.Warn("auto-comment batch rejected", zap.Error(err))
		if err := s.tasks.UpdateStatus(store, taskID, taskqueue.TaskFailed, nil, apperr.PublicMessage(err)); err != nil {
			log.Warn("mark rejected batch failed", zap.Error(err))
		}
		return
	}

	status := taskqueue.TaskCompleted
	if report.Cancelled {
		status = taskqueue.TaskCancelled
	}
	if err := s.tasks.UpdateStatus(store, taskID, status, report, ""); err != nil {
		log.Error("store task report failed", zap.Error(err))
	}

	s.activity.LogActivity(store, b.OwnerID, models.ActivityAutoComment, "User ran an auto-comment batch", b.Meta,
		map[string]interface{}{
			"method":        "auto_comment_task",
			"task_id":       taskID,
			"tone":          string(b.Settings.Tone),
			"success_count": report.SuccessCount,
			"total_count":   report.TotalCount,
			"cancelled":     report.Cancelled,
		})
}

// Get returns a task owned by ownerID. Other users' tasks look missing.
func (s *Service) Get(ctx context.Context, ownerID, taskID string) (*taskqueue.Task, error) {
	task, err := s.tasks.GetByID(ctx, taskID)
	if errors.Is(err, taskqueue.ErrNotFound) {
		return nil, ErrTaskNotFound
	}
	if err != nil {
		return nil, apperr.Internal(err)
	}
	if task.OwnerID != ownerID || task.Type != TaskType {
		return nil, ErrTaskNotFound
	}
	return task, nil
}

// List returns one page of the owner's tasks, newest first.
func (s *Service) List(ctx context.Context, ownerID string, q pagination.Query) ([]*taskqueue.Task, pagination.Meta, error) {
	q = pagination.Normalize(q)
	tasks, total, err := s.tasks.PageByOwner(ctx, ownerID, q.Offset(), q.Size)
	if err != nil {
		return nil, pagination.Meta{}, apperr.Internal(err)
	}
	return tasks, pagination.NewMeta(q, total), nil
}

// Cancel stops a running batch. The batch settles as cancelled with the items
// it did not reach reported as cancelled. A task left pending by a previous
// process is marked cancelled directly.
func (s *Service) Cancel(ctx context.Context, ownerID, taskID string) (*taskqueue.Task, error) {
	task, err := s.Get(ctx, ownerID, taskID)
	if err != nil {
		return nil, err
	}
	if task.Status.Finished() {
		return nil, ErrTaskFinished
	}

	s.mu.Lock()
	cancel, running := s.inFlight[taskID]
	s.mu.Unlock()
	if running {
		cancel()
		return task, nil
	}

	if err := s.tasks.UpdateStatus(ctx, taskID, taskqueue.TaskCancelled, nil, "cancelled by user"); err != nil {
		return nil, apperr.Internal(err)
	}
	return s.Get(ctx, ownerID, taskID)
}

// Cleanup drops finished tasks older than Retention.
func (s *Service) Cleanup(ctx context.Context) (int, error) {
	return s.tasks.DeleteFinished(ctx, s.now().Add(-Retention))
}

// Shutdown cancels running batches and waits for them to record their reports.
func (s *Service) Shutdown(ctx context.Context) error {
	s.stop()
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
