package taskqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	redisc "github.com/yapper-space/core/internal/pkg/redis"
)

// TaskStatus represents the lifecycle state of a task.
type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskRunning   TaskStatus = "running"
	TaskCompleted TaskStatus = "completed"
	TaskFailed    TaskStatus = "failed"
	TaskCancelled TaskStatus = "cancelled"
)

// Finished reports whether the status is terminal.
func (s TaskStatus) Finished() bool {
	return s == TaskCompleted || s == TaskFailed || s == TaskCancelled
}

// ErrNotFound is returned when a task ID is unknown or has expired.
var ErrNotFound = errors.New("task not found")

// Task is a unit of background work stored in Redis.
type Task struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	OwnerID   string          `json:"ownerId"`
	Payload   json.RawMessage `json:"payload"`
	Status    TaskStatus      `json:"status"`
	Progress  json.RawMessage `json:"progress,omitempty"`
	Result    json.RawMessage `json:"result,omitempty"`
	Error     string          `json:"error,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

const (
	keyPrefix   = "yapper:task:"
	keyIndex    = "yapper:tasks:index" // sorted set: score=created_at, member=task_id
	keyOwner    = "yapper:tasks:owner:"
	taskTTL     = 7 * 24 * time.Hour
	maxListSize = 100
)

// Service manages the Redis-backed task store.
type Service struct {
	rc  *redisc.Client
	now func() time.Time
}

type Option func(*Service)

// WithClock overrides time.Now for timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(rc *redisc.Client, opts ...Option) *Service {
	s := &Service{rc: rc, now: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Service) taskKey(id string) string { return keyPrefix + id }

// Enqueue creates a pending task owned by ownerID.
func (s *Service) Enqueue(ctx context.Context, taskType, ownerID string, payload interface{}) (*Task, error) {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	now := s.now()
	task := &Task{
		ID:        uuid.New().String(),
		Type:      taskType,
		OwnerID:   ownerID,
		Payload:   payloadBytes,
		Status:    TaskPending,
		CreatedAt: now,
		UpdatedAt: now,
	}

	data, err := json.Marshal(task)
	if err != nil {
		return nil, err
	}

	score := float64(now.UnixMilli())
	pipe := s.rc.Raw().TxPipeline()
	pipe.Set(ctx, s.taskKey(task.ID), data, taskTTL)
	pipe.ZAdd(ctx, keyIndex, redis.Z{Score: score, Member: task.ID})
	pipe.ZAdd(ctx, keyOwner+ownerID, redis.Z{Score: score, Member: task.ID})
	pipe.Expire(ctx, keyOwner+ownerID, taskTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("enqueue task: %w", err)
	}
	return task, nil
}

// GetByID retrieves a task by its ID.
func (s *Service) GetByID(ctx context.Context, id string) (*Task, error) {
	data, err := s.rc.Raw().Get(ctx, s.taskKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var task Task
	if err := json.Unmarshal(data, &task); err != nil {
		return nil, fmt.Errorf("decode task %s: %w", id, err)
	}
	return &task, nil
}

func (s *Service) save(ctx context.Context, task *Task) error {
	task.UpdatedAt = s.now()
	data, err := json.Marshal(task)
	if err != nil {
		return err
	}
	return s.rc.Raw().Set(ctx, s.taskKey(task.ID), data, taskTTL).Err()
}

// UpdateStatus sets a task's status and optional result/error. A task that
// already reached a terminal status is left alone.
func (s *Service) UpdateStatus(ctx context.Context, id string, status TaskStatus, result interface{}, errMsg string) error {
	task, err := s.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if task.Status.Finished() {
		return nil
	}

	task.Status = status
	task.Error = errMsg
	if result != nil {
		if task.Result, err = json.Marshal(result); err != nil {
			return err
		}
	}
	return s.save(ctx, task)
}

// SetProgress stores the latest progress snapshot of a running task.
func (s *Service) SetProgress(ctx context.Context, id string, progress interface{}) error {
	task, err := s.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if task.Progress, err = json.Marshal(progress); err != nil {
		return err
	}
	return s.save(ctx, task)
}

// ListByOwner returns the newest tasks of one owner.
func (s *Service) ListByOwner(ctx context.Context, ownerID string, limit int) ([]*Task, error) {
	tasks, _, err := s.PageByOwner(ctx, ownerID, 0, limit)
	return tasks, err
}

// PageByOwner returns up to limit of the owner's tasks, newest first,
// skipping offset, plus the owner's total task count.
func (s *Service) PageByOwner(ctx context.Context, ownerID string, offset, limit int) ([]*Task, int64, error) {
	if limit <= 0 || limit > maxListSize {
		limit = maxListSize
	}
	if offset < 0 {
		offset = 0
	}
	key := keyOwner + ownerID
	total, err := s.rc.Raw().ZCard(ctx, key).Result()
	if err != nil {
		return nil, 0, err
	}
	ids, err := s.rc.Raw().ZRevRange(ctx, key, int64(offset), int64(offset+limit-1)).Result()
	if err != nil {
		return nil, 0, err
	}

	tasks := make([]*Task, 0, len(ids))
	for _, id := range ids {
		task, err := s.GetByID(ctx, id)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, 0, err
		}
		tasks = append(tasks, task)
	}
	return tasks, total, nil
}

// DeleteFinished removes terminal tasks created before the cutoff, together
// with index entries whose task already expired. It returns the number of
// index entries dropped.
func (s *Service) DeleteFinished(ctx context.Context, before time.Time) (int, error) {
	ids, err := s.rc.Raw().ZRangeByScore(ctx, keyIndex, &redis.ZRangeBy{
		Min: "-inf",
		Max: fmt.Sprintf("(%d", before.UnixMilli()),
	}).Result()
	if err != nil {
		return 0, err
	}

	removed := 0
	pipe := s.rc.Raw().TxPipeline()
	for _, id := range ids {
		task, err := s.GetByID(ctx, id)
		switch {
		case errors.Is(err, ErrNotFound):
			pipe.ZRem(ctx, keyIndex, id)
		case err != nil:
			return 0, err
		case !task.Status.Finished():
			continue
		default:
			pipe.Del(ctx, s.taskKey(id))
			pipe.ZRem(ctx, keyIndex, id)
			pipe.ZRem(ctx, keyOwner+task.OwnerID, id)
		}
		removed++
	}
	if removed == 0 {
		return 0, nil
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return removed, nil
}
