package bus

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestBus(t *testing.T) (*RedisBus, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("starting miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewFromClient(client), mr
}

func TestPublishBuildUpdateDeliversToSubscriber(t *testing.T) {
	b, _ := newTestBus(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	ids, err := b.Subscribe(ctx, buildTopic(42))
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	b.PublishBuildUpdate(ctx, 42, 7)

	select {
	case id := <-ids:
		if id != 7 {
			t.Fatalf("got id %d, want 7", id)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for build update")
	}
}

func TestPublishRunUpdateUsesBuildScopedTopic(t *testing.T) {
	b, _ := newTestBus(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	ids, err := b.Subscribe(ctx, runTopic(3))
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	b.PublishRunUpdate(ctx, 3, 99)

	select {
	case id := <-ids:
		if id != 99 {
			t.Fatalf("got id %d, want 99", id)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for run update")
	}
}

func TestPublishLogLineUpdateUsesRunScopedTopic(t *testing.T) {
	b, _ := newTestBus(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	ids, err := b.Subscribe(ctx, logLineTopic(11))
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	b.PublishLogLineUpdate(ctx, 11, 555)

	select {
	case id := <-ids:
		if id != 555 {
			t.Fatalf("got id %d, want 555", id)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for log line update")
	}
}

func TestPublishOnUnreachableRedisDoesNotPanic(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"})
	b := NewFromClient(client)
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	// Publishing against a connection that can never succeed must be a
	// logged no-op, not a panic or blocking call.
	b.PublishBuildUpdate(ctx, 1, 1)
}
