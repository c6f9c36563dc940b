package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Handler processes one task. Returning an error leaves the entry pending so it is delivered again.
type Handler func(ctx context.Context, task Task) error

type ConsumerOptions struct {
	Group     string
	Name      string        // consumer name, unique per worker process
	Block     time.Duration // how long XREADGROUP waits for new entries; negative means do not block
	Count     int64
	ClaimIdle time.Duration // pending entries idle longer than this are reclaimed
}

// Consumer reads tasks from partition streams through a consumer group and acks them after handling.
type Consumer struct {
	client redis.Cmdable
	opts   ConsumerOptions
	log    *slog.Logger
}

func NewConsumer(client redis.Cmdable, opts ConsumerOptions, log *slog.Logger) *Consumer {
	if opts.Count <= 0 {
		opts.Count = 10
	}
	if opts.Block == 0 {
		opts.Block = 5 * time.Second
	}
	if log == nil {
		log = slog.Default()
	}
	return &Consumer{client: client, opts: opts, log: log.With("consumer", opts.Name, "group", opts.Group)}
}

// EnsureGroups creates the consumer group on every stream, creating streams as needed.
func (c *Consumer) EnsureGroups(ctx context.Context, streams []string) error {
	for _, stream := range streams {
		err := c.client.XGroupCreateMkStream(ctx, stream, c.opts.Group, "0").Err()
		if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
			return fmt.Errorf("create group %s on %s: %w", c.opts.Group, stream, err)
		}
	}
	return nil
}

// Run polls one stream until ctx is cancelled.
func (c *Consumer) Run(ctx context.Context, stream string, handle Handler) error {
	c.log.Info("consumer_started", "stream", stream)
	backoff := 100 * time.Millisecond

	for {
		if ctx.Err() != nil {
			c.log.Info("consumer_stopped", "stream", stream)
			return nil
		}

		_, err := c.Poll(ctx, stream, handle)
		if err == nil {
			backoff = 100 * time.Millisecond
			continue
		}
		if ctx.Err() != nil {
			continue
		}

		c.log.Error("stream_read_failed", "stream", stream, "error", err, "retry_in", backoff)
		select {
		case <-ctx.Done():
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, 10*time.Second)
	}
}

// Poll reads at most one batch of new entries and handles them. It returns how many were acked.
func (c *Consumer) Poll(ctx context.Context, stream string, handle Handler) (int, error) {
	res, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    c.opts.Group,
		Consumer: c.opts.Name,
		Streams:  []string{stream, ">"},
		Count:    c.opts.Count,
		Block:    c.opts.Block,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	acked := 0
	for _, s := range res {
		for _, msg := range s.Messages {
			if c.process(ctx, s.Stream, msg, handle) {
				acked++
			}
		}
	}
	return acked, nil
}

// ReclaimStale takes over entries another consumer left pending for longer than ClaimIdle
// and handles them here.
func (c *Consumer) ReclaimStale(ctx context.Context, streams []string, handle Handler) (int, error) {
	claimed := 0
	for _, stream := range streams {
		start := "0-0"
		// bounded so one huge backlog cannot monopolise the scheduler tick
		for range 20 {
			msgs, next, err := c.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
				Stream:   stream,
				Group:    c.opts.Group,
				Consumer: c.opts.Name,
				MinIdle:  c.opts.ClaimIdle,
				Start:    start,
				Count:    c.opts.Count,
			}).Result()
			if err != nil {
				return claimed, fmt.Errorf("reclaim on %s: %w", stream, err)
			}
			for _, msg := range msgs {
				claimed++
				c.process(ctx, stream, msg, handle)
			}
			if next == "0-0" || next == "" || len(msgs) == 0 {
				break
			}
			start = next
		}
	}
	if claimed > 0 {
		c.log.Info("stale_tasks_reclaimed", "count", claimed)
	}
	return claimed, nil
}

// Pending reports the number of delivered but unacknowledged entries per stream.
func (c *Consumer) Pending(ctx context.Context, streams []string) (map[string]int64, error) {
	out := make(map[string]int64, len(streams))
	for _, stream := range streams {
		p, err := c.client.XPending(ctx, stream, c.opts.Group).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) || strings.HasPrefix(err.Error(), "NOGROUP") {
				out[stream] = 0
				continue
			}
			return nil, err
		}
		out[stream] = p.Count
	}
	return out, nil
}

// process runs the handler for one entry and acks it unless the handler failed.
func (c *Consumer) process(ctx context.Context, stream string, msg redis.XMessage, handle Handler) bool {
	task, err := decodeTask(msg.Values)
	if err != nil {
		// undecodable entries would be redelivered forever
		c.log.Error("poison_task_dropped", "stream", stream, "entry_id", msg.ID, "error", err)
		c.ack(ctx, stream, msg.ID)
		return true
	}

	if err := handle(ctx, task); err != nil {
		c.log.Warn("task_left_pending",
			"stream", stream,
			"entry_id", msg.ID,
			"task_id", task.TaskID,
			"source_message_id", task.SourceMessageID,
			"error", err,
		)
		return false
	}

	c.ack(ctx, stream, msg.ID)
	return true
}

func (c *Consumer) ack(ctx context.Context, stream, id string) {
	if err := c.client.XAck(ctx, stream, c.opts.Group, id).Err(); err != nil {
		c.log.Error("task_ack_failed", "stream", stream, "entry_id", id, "error", err)
	}
}
