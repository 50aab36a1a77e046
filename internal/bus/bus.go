// Package bus publishes change notifications over Redis pub/sub so that
// API clients can watch builds progress without polling the database. Publication is best-effort: a broken Redis
// connection is logged and swallowed, never propagated as a build failure.
package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

// Bus is the publish/subscribe surface every worker depends on. Workers
// only ever publish; no package in this repository subscribes.
type Bus interface {
	PublishBuildUpdate(ctx context.Context, repoID, buildID int64)
	PublishRunUpdate(ctx context.Context, buildID, runID int64)
	PublishLogLineUpdate(ctx context.Context, runID, logLineID int64)

	// Subscribe opens a pub/sub subscription to topic and returns a channel
	// of decoded {"id": ...} payloads; it closes when ctx is cancelled.
	Subscribe(ctx context.Context, topic string) (<-chan int64, error)

	Close() error
}

// idPayload mirrors the wire format every topic publishes: {"id": <n>}.
type idPayload struct {
	ID int64 `json:"id"`
}

// RedisBus implements Bus over a single go-redis client.
type RedisBus struct {
	client *redis.Client
}

// New connects to addr (host:port), selecting db and authenticating with
// password if set.
func New(addr, password string, db int) *RedisBus {
	return &RedisBus{client: redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})}
}

// NewFromClient wraps an already-configured client; used by tests against a
// miniredis instance.
func NewFromClient(client *redis.Client) *RedisBus {
	return &RedisBus{client: client}
}

func buildTopic(repoID int64) string  { return fmt.Sprintf("repo:%d:build", repoID) }
func runTopic(buildID int64) string   { return fmt.Sprintf("build:%d:run", buildID) }
func logLineTopic(runID int64) string { return fmt.Sprintf("run:%d:log_line", runID) }

// PublishBuildUpdate notifies watchers of repo:<repoID>:build that buildID changed.
func (b *RedisBus) PublishBuildUpdate(ctx context.Context, repoID, buildID int64) {
	b.publish(ctx, buildTopic(repoID), buildID)
}

// PublishRunUpdate notifies watchers of build:<buildID>:run that runID changed.
func (b *RedisBus) PublishRunUpdate(ctx context.Context, buildID, runID int64) {
	b.publish(ctx, runTopic(buildID), runID)
}

// PublishLogLineUpdate notifies watchers of run:<runID>:log_line that logLineID was appended.
func (b *RedisBus) PublishLogLineUpdate(ctx context.Context, runID, logLineID int64) {
	b.publish(ctx, logLineTopic(runID), logLineID)
}

func (b *RedisBus) publish(ctx context.Context, topic string, id int64) {
	data, err := json.Marshal(idPayload{ID: id})
	if err != nil {
		slog.Error("Marshalling bus payload", "topic", topic, "error", err)
		return
	}
	if err := b.client.Publish(ctx, topic, data).Err(); err != nil {
		slog.Error("Publishing bus update", "topic", topic, "error", err)
	}
}

// Subscribe opens a pub/sub subscription and decodes each message's id.
func (b *RedisBus) Subscribe(ctx context.Context, topic string) (<-chan int64, error) {
	pubsub := b.client.Subscribe(ctx, topic)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("subscribing to %s: %w", topic, err)
	}

	out := make(chan int64)
	go func() {
		defer close(out)
		defer pubsub.Close()
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var payload idPayload
				if err := json.Unmarshal([]byte(msg.Payload), &payload); err != nil {
					slog.Error("Decoding bus message", "topic", topic, "error", err)
					continue
				}
				select {
				case out <- payload.ID:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// Close releases the underlying Redis connection pool.
func (b *RedisBus) Close() error {
	return b.client.Close()
}
