package stream

import (
	"context"
	"fmt"
	"log"

	"github.com/redis/go-redis/v9"
)

// Change-notification topics. A write to a collection publishes its topic;
// the hub refreshes every live subscription scoped to that collection.
const (
	TopicProjects = "renowix.projects.changed"
	TopicProfiles = "renowix.profiles.changed"
)

// Notifier is the change fan-out capability behind the hub. Publish
// broadcasts a collection-changed topic to every listening hub instance;
// Listen yields the stream of topics until the returned stop func is called.
type Notifier interface {
	Publish(ctx context.Context, topic string) error
	Listen(ctx context.Context) (<-chan string, func(), error)
}

// RedisNotifier fans change notifications out over Redis pub/sub so that
// every API replica refreshes its own subscribers.
type RedisNotifier struct {
	client *redis.Client
}

// NewRedisNotifier creates a notifier on the given Redis client.
func NewRedisNotifier(client *redis.Client) *RedisNotifier {
	return &RedisNotifier{client: client}
}

// Publish broadcasts a changed topic.
func (n *RedisNotifier) Publish(ctx context.Context, topic string) error {
	if err := n.client.Publish(ctx, topic, "1").Err(); err != nil {
		return fmt.Errorf("failed to publish change notification: %w", err)
	}
	return nil
}

// Listen subscribes to both change topics and forwards topic names until
// stopped. Messages arriving after stop are discarded.
func (n *RedisNotifier) Listen(ctx context.Context) (<-chan string, func(), error) {
	pubsub := n.client.Subscribe(ctx, TopicProjects, TopicProfiles)

	// Force the subscription to be established before we report success.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, nil, fmt.Errorf("failed to subscribe to change topics: %w", err)
	}

	out := make(chan string)
	done := make(chan struct{})

	go func() {
		defer close(out)
		ch := pubsub.Channel()
		for {
			select {
			case <-done:
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				select {
				case out <- msg.Channel:
				case <-done:
					return
				}
			}
		}
	}()

	var stopped bool
	stop := func() {
		if stopped {
			return
		}
		stopped = true
		close(done)
		if err := pubsub.Close(); err != nil {
			log.Printf("warning: failed to close redis pubsub: %v", err)
		}
	}

	return out, stop, nil
}
