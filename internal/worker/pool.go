package worker

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sourcegraph/conc"

	"geminichat/internal/dispatch"
	"geminichat/internal/metrics"
)

// Pool runs one consumer loop per partition stream. A chatroom maps to a single
// partition, so within one worker process its tasks are handled in order.
type Pool struct {
	consumer *dispatch.Consumer
	streams  []string
	handle   dispatch.Handler
	log      *slog.Logger
}

func NewPool(consumer *dispatch.Consumer, streams []string, handle dispatch.Handler, log *slog.Logger) *Pool {
	if log == nil {
		log = slog.Default()
	}
	return &Pool{consumer: consumer, streams: streams, handle: handle, log: log}
}

// Run blocks until ctx is cancelled and every loop has returned.
func (p *Pool) Run(ctx context.Context) error {
	if err := p.consumer.EnsureGroups(ctx, p.streams); err != nil {
		return err
	}

	wg := conc.NewWaitGroup()
	for _, stream := range p.streams {
		wg.Go(func() {
			if err := p.consumer.Run(ctx, stream, p.handle); err != nil {
				p.log.Error("consumer_loop_exited", "stream", stream, "error", err)
			}
		})
	}
	p.log.Info("worker_pool_started", "loops", len(p.streams))

	if r := wg.WaitAndRecover(); r != nil {
		return fmt.Errorf("consumer loop panicked: %v", r.Value)
	}
	p.log.Info("worker_pool_stopped")
	return nil
}

// Reclaim hands entries abandoned by crashed workers to this process.
func (p *Pool) Reclaim(ctx context.Context) error {
	n, err := p.consumer.ReclaimStale(ctx, p.streams, p.handle)
	if err != nil {
		return err
	}
	metrics.ReclaimedTasks.Add(float64(n))
	return nil
}
