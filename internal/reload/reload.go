// Package reload notifies a needle process (and, optionally, a pool of
// sibling processes behind a load balancer) that the configuration
// directory has changed and should be reloaded. Local reload is triggered
// by SIGHUP; the original needle implementation never reloads at all, so
// this is a supplemental component for operability.
package reload

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
)

// Change is one reload notification: a new configuration fingerprint.
type Change struct {
	Fingerprint string
}

// Notifier fans out Change events to anyone watching, both from local
// SIGHUP delivery and (if a Redis client is configured) from a pub/sub
// channel shared with sibling processes.
type Notifier struct {
	channel string
	redis   *redis.Client
	logger  *slog.Logger

	watchers []chan Change
}

// New constructs a Notifier. redisClient may be nil, in which case reload
// is local-only (SIGHUP-triggered).
func New(redisClient *redis.Client, channel string, logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{channel: channel, redis: redisClient, logger: logger}
}

// Watch registers a channel that receives the Changes this Notifier
// observes, whether raised locally or received from Redis. The channel
// buffers one Change; a Change arriving while that buffer is still full is
// dropped for this watcher.
func (n *Notifier) Watch() <-chan Change {
	ch := make(chan Change, 1)
	n.watchers = append(n.watchers, ch)
	return ch
}

// Run blocks, listening for SIGHUP and (if configured) Redis pub/sub
// messages, until ctx is canceled. Each observed change is published to
// every watcher. A SIGHUP-raised change is also published to the Redis
// channel, if configured, so sibling processes receive the same
// fingerprint; changes received from Redis are not re-published.
func (n *Notifier) Run(ctx context.Context, fingerprint func() (string, error)) {
	sighup := make(chan os.Signal, 1)
	signal.Notify(sighup, syscall.SIGHUP)
	defer signal.Stop(sighup)

	var sub *redis.PubSub
	var remote <-chan *redis.Message
	if n.redis != nil {
		sub = n.redis.Subscribe(ctx, n.channel)
		remote = sub.Channel()
		defer sub.Close()
	}

	for {
		select {
		case <-ctx.Done():
			return

		case <-sighup:
			n.publishLocal(ctx, fingerprint)

		case msg := <-remote:
			if msg == nil {
				continue
			}
			n.broadcast(Change{Fingerprint: msg.Payload})
		}
	}
}

func (n *Notifier) publishLocal(ctx context.Context, fingerprint func() (string, error)) {
	fp, err := fingerprint()
	if err != nil {
		n.logger.ErrorContext(ctx, "reload fingerprint failed", slog.String("err", err.Error()))
		return
	}

	n.broadcast(Change{Fingerprint: fp})

	if n.redis != nil {
		if err := n.redis.Publish(ctx, n.channel, fp).Err(); err != nil {
			n.logger.ErrorContext(ctx, "reload publish failed", slog.String("err", err.Error()))
		}
	}
}

func (n *Notifier) broadcast(c Change) {
	for _, ch := range n.watchers {
		select {
		case ch <- c:
		default:
		}
	}
}
