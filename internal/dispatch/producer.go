package dispatch

import (
	"context"
	"fmt"
	"hash/fnv"
	"os"
	"strconv"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/redis/go-redis/v9"

	"geminichat/internal/shared"
)

// Dispatcher hands generation tasks to the worker pool without waiting for them to run.
type Dispatcher interface {
	Enqueue(ctx context.Context, task Task) error
}

type Options struct {
	Stream     string // stream name prefix; partitions are "<Stream>:<n>"
	Partitions int
	MaxLen     int64
	NodeID     int64 // snowflake node for task ids; AutoNodeID derives one from host and pid
}

// AutoNodeID asks NewStreamDispatcher to pick a node id for this process.
const AutoNodeID int64 = -1

// NodeIDFor maps a host and process id onto the snowflake node range.
func NodeIDFor(host string, pid int) int64 {
	h := fnv.New32a()
	h.Write([]byte(host))
	h.Write([]byte{0})
	h.Write([]byte(strconv.Itoa(pid)))
	nodes := int64(1) << snowflake.NodeBits
	return int64(h.Sum32()) % nodes
}

func processNodeID() int64 {
	host, err := os.Hostname()
	if err != nil {
		host = "localhost"
	}
	return NodeIDFor(host, os.Getpid())
}

// StreamDispatcher appends tasks to Redis Streams, one stream per partition.
// A chatroom always maps to the same partition so its tasks keep their relative order.
type StreamDispatcher struct {
	client redis.Cmdable
	opts   Options
	ids    *snowflake.Node
	now    func() time.Time
}

func NewStreamDispatcher(client redis.Cmdable, opts Options) (*StreamDispatcher, error) {
	if opts.Partitions < 1 {
		opts.Partitions = 1
	}
	if opts.NodeID < 0 {
		opts.NodeID = processNodeID()
	}
	node, err := snowflake.NewNode(opts.NodeID)
	if err != nil {
		return nil, fmt.Errorf("task id generator: %w", err)
	}
	return &StreamDispatcher{client: client, opts: opts, ids: node, now: time.Now}, nil
}

// StreamFor returns the partition stream a chatroom's tasks are written to.
func (d *StreamDispatcher) StreamFor(chatroomID int64) string {
	return PartitionStream(d.opts.Stream, d.opts.Partitions, chatroomID)
}

// Streams lists every partition stream.
func (d *StreamDispatcher) Streams() []string {
	return PartitionStreams(d.opts.Stream, d.opts.Partitions)
}

func (d *StreamDispatcher) Enqueue(ctx context.Context, task Task) error {
	if task.TaskID == "" {
		task.TaskID = d.ids.Generate().String()
	}
	if task.EnqueuedAt.IsZero() {
		task.EnqueuedAt = d.now().UTC()
	}

	payload, err := task.encode()
	if err != nil {
		return fmt.Errorf("%w: %w", shared.ErrDispatchUnavailable, err)
	}

	args := &redis.XAddArgs{
		Stream: d.StreamFor(task.ChatroomID),
		Values: map[string]any{payloadField: payload},
	}
	if d.opts.MaxLen > 0 {
		args.MaxLen = d.opts.MaxLen
		args.Approx = true
	}
	if err := d.client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("%w: %w", shared.ErrDispatchUnavailable, err)
	}
	return nil
}

func PartitionStream(prefix string, partitions int, chatroomID int64) string {
	if partitions < 1 {
		partitions = 1
	}
	n := chatroomID % int64(partitions)
	if n < 0 {
		n = -n
	}
	return fmt.Sprintf("%s:%d", prefix, n)
}

func PartitionStreams(prefix string, partitions int) []string {
	if partitions < 1 {
		partitions = 1
	}
	streams := make([]string, partitions)
	for i := range streams {
		streams[i] = fmt.Sprintf("%s:%d", prefix, i)
	}
	return streams
}
