package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/therealutkarshpriyadarshi/vedit/internal/config"
	"github.com/therealutkarshpriyadarshi/vedit/internal/logging"
	"github.com/therealutkarshpriyadarshi/vedit/internal/metrics"
	"github.com/therealutkarshpriyadarshi/vedit/pkg/models"
)

const (
	jobsKey        = "vedit:jobs"
	observeTimeout = 2 * time.Second
)

func jobKey(id string) string      { return fmt.Sprintf("vedit:job:%s", id) }
func progressKey(id string) string { return fmt.Sprintf("vedit:job:progress:%s", id) }

// Cache mirrors export jobs and their progress into Redis so UIs running
// in other processes can read queue state.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
	logger *logging.Logger
}

// NewCache creates a new cache instance
func NewCache(cfg config.RedisConfig, logger *logging.Logger) (*Cache, error) {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &Cache{client: client, ttl: cfg.JobTTL, logger: logger}, nil
}

// Close closes the Redis connection
func (c *Cache) Close() error {
	return c.client.Close()
}

// Ping checks the connection
func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// SetJob stores a job record and indexes it by creation time
func (c *Cache) SetJob(ctx context.Context, job *models.ExportJob) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}

	pipe := c.client.TxPipeline()
	pipe.Set(ctx, jobKey(job.ID), data, c.ttl)
	pipe.ZAdd(ctx, jobsKey, redis.Z{Score: float64(job.CreatedAt.UnixNano()), Member: job.ID})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to store job: %w", err)
	}
	return nil
}

// GetJob retrieves a job record. A miss returns nil, nil.
func (c *Cache) GetJob(ctx context.Context, jobID string) (*models.ExportJob, error) {
	data, err := c.client.Get(ctx, jobKey(jobID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			metrics.RecordCacheAccess("job", false)
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get job from cache: %w", err)
	}
	metrics.RecordCacheAccess("job", true)

	var job models.ExportJob
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job: %w", err)
	}
	return &job, nil
}

// ListJobIDs returns mirrored job ids, oldest first. Ids whose record has
// expired are pruned from the index.
func (c *Cache) ListJobIDs(ctx context.Context) ([]string, error) {
	ids, err := c.client.ZRange(ctx, jobsKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}

	live := ids[:0]
	var stale []interface{}
	for _, id := range ids {
		n, err := c.client.Exists(ctx, jobKey(id)).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to check job %s: %w", id, err)
		}
		if n == 0 {
			stale = append(stale, id)
			continue
		}
		live = append(live, id)
	}
	if len(stale) > 0 {
		if err := c.client.ZRem(ctx, jobsKey, stale...).Err(); err != nil {
			return nil, fmt.Errorf("failed to prune job index: %w", err)
		}
	}
	return live, nil
}

// DeleteJob removes a job and its progress
func (c *Cache) DeleteJob(ctx context.Context, jobID string) error {
	pipe := c.client.TxPipeline()
	pipe.Del(ctx, jobKey(jobID), progressKey(jobID))
	pipe.ZRem(ctx, jobsKey, jobID)
	_, err := pipe.Exec(ctx)
	return err
}

// SetJobProgress caches the latest progress event of a job
func (c *Cache) SetJobProgress(ctx context.Context, ev models.ProgressEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal progress: %w", err)
	}
	return c.client.Set(ctx, progressKey(ev.JobID), data, c.ttl).Err()
}

// GetJobProgress retrieves the latest progress of a job. A miss returns
// nil, nil.
func (c *Cache) GetJobProgress(ctx context.Context, jobID string) (*models.ProgressEvent, error) {
	data, err := c.client.Get(ctx, progressKey(jobID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			metrics.RecordCacheAccess("progress", false)
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get progress from cache: %w", err)
	}
	metrics.RecordCacheAccess("progress", true)

	var ev models.ProgressEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, fmt.Errorf("failed to unmarshal progress: %w", err)
	}
	return &ev, nil
}

// JobUpdated mirrors a job change. Failures are logged, never returned:
// the mirror must not disturb the export queue.
func (c *Cache) JobUpdated(job *models.ExportJob) {
	ctx, cancel := context.WithTimeout(context.Background(), observeTimeout)
	defer cancel()
	if err := c.SetJob(ctx, job); err != nil {
		metrics.RecordError("cache", "set_job")
		c.logger.WithJobID(job.ID).WarnWithErr("Failed to mirror job", err)
	}
}

// OnProgress mirrors a progress event. Register it with the
// orchestrator's Subscribe.
func (c *Cache) OnProgress(ev models.ProgressEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), observeTimeout)
	defer cancel()
	if err := c.SetJobProgress(ctx, ev); err != nil {
		metrics.RecordError("cache", "set_progress")
		c.logger.WithJobID(ev.JobID).WarnWithErr("Failed to mirror progress", err)
	}
}
