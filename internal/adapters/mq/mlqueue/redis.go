package mlqueue

import (
	"context"
	"fmt"

	"github.com/bytedance/sonic"
	"github.com/redis/rueidis"
)

// RedisQueue pushes jobs onto a Redis list with LPUSH; the classifier pops
// from the other end.
type RedisQueue struct {
	client rueidis.Client
	key    string
}

// NewRedisQueue wraps an existing client. An empty key uses DefaultKey.
func NewRedisQueue(client rueidis.Client, key string) *RedisQueue {
	if key == "" {
		key = DefaultKey
	}
	return &RedisQueue{client: client, key: key}
}

// Dial opens a client for addr.
func Dial(addr, password string) (rueidis.Client, error) {
	client, err := rueidis.NewClient(rueidis.ClientOption{
		InitAddress:  []string{addr},
		Password:     password,
		DisableCache: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Redis client: %w", err)
	}
	return client, nil
}

func (q *RedisQueue) Push(ctx context.Context, job Job) error {
	payload, err := sonic.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal classification job: %w", err)
	}
	if err := q.client.Do(ctx, q.client.B().Lpush().Key(q.key).Element(string(payload)).Build()).Error(); err != nil {
		return fmt.Errorf("lpush %s: %w", q.key, err)
	}
	return nil
}

func (q *RedisQueue) Len(ctx context.Context) (int64, error) {
	n, err := q.client.Do(ctx, q.client.B().Llen().Key(q.key).Build()).ToInt64()
	if err != nil {
		return 0, fmt.Errorf("llen %s: %w", q.key, err)
	}
	return n, nil
}

func (q *RedisQueue) Mode() string { return ModeRedis }
