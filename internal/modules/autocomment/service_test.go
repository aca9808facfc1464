package autocomment

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	engine "github.com/yapper-space/core/internal/autocomment"
	"github.com/yapper-space/core/internal/models"
	"github.com/yapper-space/core/internal/modules/twitter"
	"github.com/yapper-space/core/internal/pkg/apperr"
	"github.com/yapper-space/core/internal/pkg/pagination"
	redisc "github.com/yapper-space/core/internal/pkg/redis"
	"github.com/yapper-space/core/internal/pkg/taskqueue"
	"github.com/yapper-space/core/internal/session"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakePoster struct {
	mu    sync.Mutex
	posts []string
	token string
	fail  map[string]bool
	block chan struct{}
}

func (p *fakePoster) PostComment(ctx context.Context, token, tweetID, comment string) (json.RawMessage, error) {
	if p.block != nil {
		select {
		case <-p.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.token = token
	if p.fail[tweetID] {
		return nil, apperr.Upstream(http.StatusForbidden, "Forbidden", nil)
	}
	p.posts = append(p.posts, tweetID+":"+comment)
	return json.RawMessage(`{}`), nil
}

func (p *fakePoster) snapshot() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.posts...)
}

type fakeActivity struct {
	mu      sync.Mutex
	entries []map[string]interface{}
	types   []string
}

func (a *fakeActivity) LogActivity(_ context.Context, _, activityType, _ string, _ session.Meta, extra map[string]interface{}) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.types = append(a.types, activityType)
	a.entries = append(a.entries, extra)
}

func (a *fakeActivity) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.entries)
}

func (a *fakeActivity) first() (string, map[string]interface{}) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.types[0], a.entries[0]
}

var echoGen = engine.GeneratorFunc(func(_ context.Context, content string, tone engine.Tone) (string, error) {
	return string(tone) + " reply to " + content, nil
})

func noSleep(ctx context.Context, _ time.Duration) error { return ctx.Err() }

func newService(t *testing.T, poster *fakePoster, opts ...Option) (*Service, *fakeActivity, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	activity := &fakeActivity{}
	opts = append([]Option{WithSleeper(noSleep), WithMaxBatch(3)}, opts...)
	svc := NewService(taskqueue.NewService(redisc.Wrap(rdb)), echoGen, poster, activity, opts...)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = svc.Shutdown(ctx)
	})
	return svc, activity, mr
}

func waitFinished(t *testing.T, svc *Service, owner, id string) *taskqueue.Task {
	t.Helper()
	var task *taskqueue.Task
	require.Eventually(t, func() bool {
		var err error
		task, err = svc.Get(context.Background(), owner, id)
		return err == nil && task.Status.Finished()
	}, 2*time.Second, 5*time.Millisecond)
	return task
}

func batch(ids ...string) Batch {
	tweets := make([]engine.Tweet, 0, len(ids))
	for _, id := range ids {
		tweets = append(tweets, engine.Tweet{ID: id, Content: "tweet " + id})
	}
	return Batch{
		OwnerID:      "u1",
		TwitterToken: "tw-token",
		Tweets:       tweets,
		Settings:     engine.Settings{Tone: engine.ToneCasual, DelaySeconds: 30},
	}
}

func TestStartRunsBatch(t *testing.T) {
	poster := &fakePoster{fail: map[string]bool{"2": true}}
	svc, activity, _ := newService(t, poster)

	task, estimate, err := svc.Start(context.Background(), batch("1", "2", "3"))
	require.NoError(t, err)
	assert.Equal(t, 90*time.Second, estimate)
	assert.Equal(t, taskqueue.TaskPending, task.Status)

	done := waitFinished(t, svc, "u1", task.ID)
	assert.Equal(t, taskqueue.TaskCompleted, done.Status)

	var report engine.Report
	require.NoError(t, json.Unmarshal(done.Result, &report))
	assert.Equal(t, 2, report.SuccessCount)
	assert.Equal(t, 3, report.TotalCount)
	assert.Equal(t, engine.ReasonPost, report.Items[1].Reason)

	var progress Progress
	require.NoError(t, json.Unmarshal(done.Progress, &progress))
	assert.Equal(t, 3, progress.Processed)
	assert.Equal(t, 2, progress.SuccessCount)

	assert.Equal(t, []string{"1:casual reply to tweet 1", "3:casual reply to tweet 3"}, poster.snapshot())
	assert.Equal(t, "tw-token", poster.token)

	require.Eventually(t, func() bool { return activity.count() == 1 }, time.Second, 5*time.Millisecond)
	kind, extra := activity.first()
	assert.Equal(t, models.ActivityAutoComment, kind)
	assert.Equal(t, 2, extra["success_count"])
}

func TestStartValidation(t *testing.T) {
	svc, _, _ := newService(t, &fakePoster{})
	ctx := context.Background()

	_, _, err := svc.Start(ctx, batch())
	assert.ErrorIs(t, err, engine.ErrEmptyBatch)

	_, _, err = svc.Start(ctx, batch("1", "2", "3", "4"))
	require.Error(t, err)
	assert.Equal(t, "At most 3 tweets per batch", apperr.PublicMessage(err))

	b := batch("1")
	b.Settings.DelaySeconds = -1
	_, _, err = svc.Start(ctx, b)
	assert.ErrorIs(t, err, engine.ErrNegativeDelay)
}

func TestCancelRunningBatch(t *testing.T) {
	poster := &fakePoster{block: make(chan struct{})}
	svc, _, _ := newService(t, poster)

	task, _, err := svc.Start(context.Background(), batch("1", "2", "3"))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		got, err := svc.Get(context.Background(), "u1", task.ID)
		return err == nil && got.Status == taskqueue.TaskRunning
	}, time.Second, 5*time.Millisecond)

	_, err = svc.Cancel(context.Background(), "u1", task.ID)
	require.NoError(t, err)

	done := waitFinished(t, svc, "u1", task.ID)
	assert.Equal(t, taskqueue.TaskCancelled, done.Status)

	var report engine.Report
	require.NoError(t, json.Unmarshal(done.Result, &report))
	assert.True(t, report.Cancelled)
	assert.Zero(t, report.SuccessCount)
	require.Len(t, report.Items, 3)
	for _, item := range report.Items {
		assert.Equal(t, engine.StateFailed, item.Outcome)
		assert.Equal(t, engine.ReasonCancelled, item.Reason)
	}

	_, err = svc.Cancel(context.Background(), "u1", task.ID)
	assert.ErrorIs(t, err, ErrTaskFinished)
}

func TestCancelOrphanedTask(t *testing.T) {
	svc, _, _ := newService(t, &fakePoster{})
	ctx := context.Background()

	task, err := svc.tasks.Enqueue(ctx, TaskType, "u1", Payload{})
	require.NoError(t, err)

	got, err := svc.Cancel(ctx, "u1", task.ID)
	require.NoError(t, err)
	assert.Equal(t, taskqueue.TaskCancelled, got.Status)
}

func TestOwnerIsolation(t *testing.T) {
	svc, _, _ := newService(t, &fakePoster{})
	task, _, err := svc.Start(context.Background(), batch("1"))
	require.NoError(t, err)
	waitFinished(t, svc, "u1", task.ID)

	_, err = svc.Get(context.Background(), "intruder", task.ID)
	assert.ErrorIs(t, err, ErrTaskNotFound)
	_, err = svc.Cancel(context.Background(), "intruder", task.ID)
	assert.ErrorIs(t, err, ErrTaskNotFound)
	_, err = svc.Get(context.Background(), "u1", "missing")
	assert.ErrorIs(t, err, ErrTaskNotFound)

	tasks, meta, err := svc.List(context.Background(), "intruder", pagination.Query{})
	require.NoError(t, err)
	assert.Empty(t, tasks)
	assert.Zero(t, meta.Total)

	tasks, meta, err = svc.List(context.Background(), "u1", pagination.Query{Page: 1, Size: 10})
	require.NoError(t, err)
	assert.Len(t, tasks, 1)
	assert.EqualValues(t, 1, meta.Total)
}

func TestCleanup(t *testing.T) {
	now := time.Now()
	svc, _, _ := newService(t, &fakePoster{}, WithClock(func() time.Time { return now }))
	task, _, err := svc.Start(context.Background(), batch("1"))
	require.NoError(t, err)
	waitFinished(t, svc, "u1", task.ID)

	n, err := svc.Cleanup(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)

	now = now.Add(Retention + time.Hour)
	n, err = svc.Cleanup(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = svc.Get(context.Background(), "u1", task.ID)
	assert.ErrorIs(t, err, ErrTaskNotFound)
}

func TestShutdownCancelsBatches(t *testing.T) {
	poster := &fakePoster{block: make(chan struct{})}
	svc, _, _ := newService(t, poster)
	task, _, err := svc.Start(context.Background(), batch("1", "2"))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, svc.Shutdown(ctx))

	got, err := svc.Get(context.Background(), "u1", task.ID)
	require.NoError(t, err)
	assert.Equal(t, taskqueue.TaskCancelled, got.Status)
}

func TestHandler(t *testing.T) {
	svc, _, _ := newService(t, &fakePoster{})
	r := gin.New()
	auth := func(c *gin.Context) {
		c.Set("user_id", c.GetHeader("X-User"))
		c.Next()
	}
	NewHandler(svc, 15).RegisterRoutes(r.Group("/api/v1"), auth)

	send := func(method, path, user, twitterToken string, body interface{}) (int, map[string]interface{}) {
		var buf bytes.Buffer
		if body != nil {
			require.NoError(t, json.NewEncoder(&buf).Encode(body))
		}
		req := httptest.NewRequest(method, path, &buf)
		req.Header.Set("X-User", user)
		if twitterToken != "" {
			req.Header.Set(twitter.HeaderToken, twitterToken)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		var out map[string]interface{}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
		return w.Code, out
	}

	payload := gin.H{
		"tweets":   []gin.H{{"tweetId": "1", "content": "gm"}, {"tweetId": "2", "content": "gn"}},
		"settings": gin.H{"tone": "supportive"},
	}

	code, body := send(http.MethodPost, "/api/v1/auto-comment/tasks", "u1", "", payload)
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "Twitter access token not found. Please login again.", body["error"])

	code, body = send(http.MethodPost, "/api/v1/auto-comment/tasks", "u1", "tw", gin.H{"tweets": payload["tweets"]})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "Auto-comment settings are required", body["error"])

	code, _ = send(http.MethodPost, "/api/v1/auto-comment/tasks", "u1", "tw", gin.H{"tweets": payload["tweets"], "settings": gin.H{"tone": "rude"}})
	assert.Equal(t, http.StatusBadRequest, code)

	code, body = send(http.MethodPost, "/api/v1/auto-comment/tasks", "u1", "tw", payload)
	require.Equal(t, http.StatusAccepted, code)
	assert.EqualValues(t, 30, body["estimatedSeconds"])
	id := body["task"].(map[string]interface{})["id"].(string)

	waitFinished(t, svc, "u1", id)
	code, body = send(http.MethodGet, "/api/v1/auto-comment/tasks/"+id, "u1", "", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "completed", body["status"])

	code, _ = send(http.MethodGet, "/api/v1/auto-comment/tasks/"+id, "u2", "", nil)
	assert.Equal(t, http.StatusNotFound, code)

	code, body = send(http.MethodGet, "/api/v1/auto-comment/tasks", "u1", "", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, body["data"], 1)
	assert.EqualValues(t, 1, body["pagination"].(map[string]interface{})["total"])

	code, _ = send(http.MethodPost, "/api/v1/auto-comment/tasks/"+id+"/cancel", "u1", "", nil)
	assert.Equal(t, http.StatusConflict, code)
}
