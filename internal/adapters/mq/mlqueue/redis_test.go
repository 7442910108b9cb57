package mlqueue_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/bytedance/sonic"
	"github.com/okian/civicflow/internal/adapters/mq/mlqueue"
	"github.com/redis/rueidis"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRedis(t *testing.T) (*mlqueue.RedisQueue, *miniredis.Miniredis, func()) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)

	client, err := rueidis.NewClient(rueidis.ClientOption{
		InitAddress:  []string{mr.Addr()},
		DisableCache: true,
	})
	require.NoError(t, err)

	return mlqueue.NewRedisQueue(client, ""), mr, func() {
		client.Close()
		mr.Close()
	}
}

func TestRedisQueuePush(t *testing.T) {
	t.Parallel()
	q, mr, cleanup := setupRedis(t)
	defer cleanup()

	ctx := context.Background()
	job := mlqueue.Job{
		ReportID:    "r1",
		Description: "garbage pile near park",
		ImageURL:    "https://img/1.jpg",
		Title:       "Processing...",
		Timestamp:   time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC),
	}
	require.NoError(t, q.Push(ctx, job))
	require.NoError(t, q.Push(ctx, mlqueue.Job{ReportID: "r2"}))

	n, err := q.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.Equal(t, mlqueue.ModeRedis, q.Mode())

	// LPUSH puts the newest at the head; the oldest is at the tail.
	items, err := mr.List(mlqueue.DefaultKey)
	require.NoError(t, err)
	require.Len(t, items, 2)

	var got mlqueue.Job
	require.NoError(t, sonic.UnmarshalString(items[1], &got))
	assert.Equal(t, job.ReportID, got.ReportID)
	assert.Equal(t, job.ImageURL, got.ImageURL)
	assert.True(t, job.Timestamp.Equal(got.Timestamp))
}

func TestRedisQueueUnavailable(t *testing.T) {
	t.Parallel()
	q, mr, cleanup := setupRedis(t)
	defer cleanup()

	mr.SetError("READONLY replica")
	err := q.Push(context.Background(), mlqueue.Job{ReportID: "r1"})
	assert.Error(t, err)
}

func TestMemoryAndDisabled(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	mem := mlqueue.NewMemoryQueue()
	require.NoError(t, mem.Push(ctx, mlqueue.Job{ReportID: "r1"}))
	n, _ := mem.Len(ctx)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, "r1", mem.Jobs()[0].ReportID)

	var off mlqueue.Disabled
	assert.True(t, errors.Is(off.Push(ctx, mlqueue.Job{}), mlqueue.ErrDisabled))
	assert.Equal(t, mlqueue.ModeDisabled, off.Mode())
}
