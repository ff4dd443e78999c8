package scoring

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"rtoshield/internal/metrics"
)

const (
	queueKey     = "score:queue"
	dlqKey       = "score:dlq"
	seqKey       = "score:seq"
	dedupKey     = "score:seen:%d:%d"
	dedupTTL     = 10 * time.Minute
	priorityBand = 1e12
)

// Queue is the scoring work queue: priority-ordered, deduplicating on
// enqueue, with a dead-letter side channel.
type Queue interface {
	// Enqueue adds a job unless one for the same order was queued
	// recently. Returns false when deduplicated.
	Enqueue(ctx context.Context, job Job) (bool, error)
	// Dequeue pops the highest-priority job, FIFO within a priority
	// band. Returns nil when the queue is empty.
	Dequeue(ctx context.Context) (*Job, error)
	// Depth returns the number of queued jobs.
	Depth(ctx context.Context) (int64, error)

	PushDeadLetter(ctx context.Context, dl DeadLetter) error
	DeadLetters(ctx context.Context, limit int64) ([]DeadLetter, error)
	// ReplayOldest moves the oldest dead letter back onto the queue,
	// bypassing dedup. Returns false when the DLQ is empty.
	ReplayOldest(ctx context.Context) (bool, error)
}

type redisQueue struct {
	client  *redis.Client
	metrics metrics.Collector
	logger  *zap.Logger
}

// NewRedisQueue creates the production queue on top of Redis: a sorted
// set ordered by (priority band, arrival sequence), a set-if-absent
// dedup marker per order, and a list for the dead letters.
func NewRedisQueue(client *redis.Client, collector metrics.Collector, logger *zap.Logger) Queue {
	if client == nil {
		panic("redis client is required")
	}
	if collector == nil {
		collector = metrics.Noop{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &redisQueue{client: client, metrics: collector, logger: logger}
}

func (q *redisQueue) Enqueue(ctx context.Context, job Job) (bool, error) {
	marker := fmt.Sprintf(dedupKey, job.TenantID, job.OrderID)
	set, err := q.client.SetNX(ctx, marker, "1", dedupTTL).Result()
	if err != nil {
		// Dedup is advisory. The recovery sweep catches any duplicate
		// drops, so a cache outage must not stop ingestion.
		q.logger.Warn("enqueue dedup check failed, proceeding", zap.Error(err))
	} else if !set {
		return false, nil
	}
	return true, q.push(ctx, job)
}

func (q *redisQueue) push(ctx context.Context, job Job) error {
	if job.EnqueuedAt.IsZero() {
		job.EnqueuedAt = time.Now()
	}
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encode job: %w", err)
	}
	seq, err := q.client.Incr(ctx, seqKey).Result()
	if err != nil {
		return fmt.Errorf("allocate queue sequence: %w", err)
	}
	score := float64(job.Priority)*priorityBand + float64(seq)
	if err := q.client.ZAdd(ctx, queueKey, redis.Z{Score: score, Member: payload}).Err(); err != nil {
		return fmt.Errorf("enqueue job for order %d: %w", job.OrderID, err)
	}
	if depth, err := q.Depth(ctx); err == nil {
		q.metrics.RecordQueueDepth(depth)
	}
	return nil
}

func (q *redisQueue) Dequeue(ctx context.Context) (*Job, error) {
	members, err := q.client.ZPopMin(ctx, queueKey, 1).Result()
	if err != nil {
		return nil, fmt.Errorf("dequeue: %w", err)
	}
	if len(members) == 0 {
		return nil, nil
	}
	var job Job
	raw, ok := members[0].Member.(string)
	if !ok {
		return nil, fmt.Errorf("dequeue: unexpected member type %T", members[0].Member)
	}
	if err := json.Unmarshal([]byte(raw), &job); err != nil {
		return nil, fmt.Errorf("decode job: %w", err)
	}
	return &job, nil
}

func (q *redisQueue) Depth(ctx context.Context) (int64, error) {
	return q.client.ZCard(ctx, queueKey).Result()
}

func (q *redisQueue) PushDeadLetter(ctx context.Context, dl DeadLetter) error {
	if dl.FailedAt.IsZero() {
		dl.FailedAt = time.Now()
	}
	payload, err := json.Marshal(dl)
	if err != nil {
		return fmt.Errorf("encode dead letter: %w", err)
	}
	if err := q.client.LPush(ctx, dlqKey, payload).Err(); err != nil {
		return fmt.Errorf("push dead letter for order %d: %w", dl.Job.OrderID, err)
	}
	q.metrics.RecordDeadLetter()
	return nil
}

func (q *redisQueue) DeadLetters(ctx context.Context, limit int64) ([]DeadLetter, error) {
	if limit <= 0 {
		limit = 100
	}
	raw, err := q.client.LRange(ctx, dlqKey, 0, limit-1).Result()
	if err != nil {
		return nil, fmt.Errorf("list dead letters: %w", err)
	}
	out := make([]DeadLetter, 0, len(raw))
	for _, item := range raw {
		var dl DeadLetter
		if err := json.Unmarshal([]byte(item), &dl); err != nil {
			q.logger.Warn("skipping malformed dead letter", zap.Error(err))
			continue
		}
		out = append(out, dl)
	}
	return out, nil
}

func (q *redisQueue) ReplayOldest(ctx context.Context) (bool, error) {
	raw, err := q.client.RPop(ctx, dlqKey).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("pop dead letter: %w", err)
	}
	var dl DeadLetter
	if err := json.Unmarshal([]byte(raw), &dl); err != nil {
		return false, fmt.Errorf("decode dead letter: %w", err)
	}
	return true, q.push(ctx, dl.Job)
}
