package cron

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunRecordsOutcome(t *testing.T) {
	s := New(nil)
	fail := true
	s.Register(Job{Name: "cleanup", Interval: time.Hour, Fn: func(context.Context) error {
		if fail {
			return errors.New("redis down")
		}
		return nil
	}})

	require.Error(t, s.Run(context.Background(), "cleanup"))
	items := s.List()
	require.Len(t, items, 1)
	assert.Equal(t, StatusReject, items[0].Status)
	assert.Equal(t, "redis down", items[0].Message)
	require.NotNil(t, items[0].LastRunAt)

	fail = false
	require.NoError(t, s.Run(context.Background(), "cleanup"))
	assert.Equal(t, StatusFulfill, s.List()[0].Status)
	assert.Empty(t, s.List()[0].Message)
}

func TestRunUnknownJob(t *testing.T) {
	s := New(nil)
	err := s.Run(context.Background(), "nope")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nope")
}

func TestStartRunsOnInterval(t *testing.T) {
	s := New(nil)
	var runs atomic.Int32
	s.Register(Job{Name: "tick", Interval: 10 * time.Millisecond, Fn: func(context.Context) error {
		runs.Add(1)
		return nil
	}})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)

	assert.Eventually(t, func() bool { return runs.Load() >= 2 }, time.Second, 5*time.Millisecond)
}

func TestListSorted(t *testing.T) {
	s := New(nil)
	noop := func(context.Context) error { return nil }
	s.Register(Job{Name: "b", Interval: time.Hour, Fn: noop})
	s.Register(Job{Name: "a", Interval: time.Hour, Fn: noop})

	items := s.List()
	require.Len(t, items, 2)
	assert.Equal(t, "a", items[0].Name)
	assert.Equal(t, StatusIdle, items[1].Status)
}
