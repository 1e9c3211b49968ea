package docstore

import (
	"context"
	"log/slog"
	"strings"

	"github.com/redis/go-redis/v9"
)

const redisChannelPrefix = "docstore:changes:"

// RedisBroker publishes change signals on Redis pub/sub so subscriptions in
// every server process sharing the database wake up. With a nil client it
// degrades to a LocalBroker.
type RedisBroker struct {
	rdb   *redis.Client
	local *LocalBroker
	log   *slog.Logger
}

// NewRedisBroker creates a broker on rdb. Call Start to begin relaying.
func NewRedisBroker(rdb *redis.Client, log *slog.Logger) *RedisBroker {
	if log == nil {
		log = slog.Default()
	}
	return &RedisBroker{rdb: rdb, local: NewLocalBroker(), log: log}
}

// Publish implements Broker.
func (b *RedisBroker) Publish(ctx context.Context, collection string) error {
	if b.rdb == nil {
		return b.local.Publish(ctx, collection)
	}
	return b.rdb.Publish(ctx, redisChannelPrefix+collection, collection).Err()
}

// Subscribe implements Broker.
func (b *RedisBroker) Subscribe(collection string) (<-chan struct{}, func()) {
	return b.local.Subscribe(collection)
}

// Start subscribes to the change channels and relays messages to local
// subscribers until ctx is done.
func (b *RedisBroker) Start(ctx context.Context) error {
	if b.rdb == nil {
		return nil
	}
	sub := b.rdb.PSubscribe(ctx, redisChannelPrefix+"*")
	if _, err := sub.Receive(ctx); err != nil {
		sub.Close()
		return err
	}
	ch := sub.Channel()
	go func() {
		defer sub.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					b.log.Warn("docstore: redis change channel closed")
					return
				}
				b.local.notify(strings.TrimPrefix(msg.Channel, redisChannelPrefix))
			}
		}
	}()
	return nil
}
