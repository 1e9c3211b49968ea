package docstore

import (
	"context"
	"sync"
)

// Broker carries "collection changed" signals from writers to subscriptions.
type Broker interface {
	Publish(ctx context.Context, collection string) error
	// Subscribe returns a channel that receives a value after changes to
	// collection, and a func that stops delivery. Signals coalesce: a slow
	// reader sees one pending signal, not one per write.
	Subscribe(collection string) (<-chan struct{}, func())
}

// LocalBroker fans changes out to subscribers in the same process.
type LocalBroker struct {
	mu   sync.Mutex
	subs map[string]map[chan struct{}]struct{}
}

// NewLocalBroker creates an empty LocalBroker.
func NewLocalBroker() *LocalBroker {
	return &LocalBroker{subs: make(map[string]map[chan struct{}]struct{})}
}

// Publish implements Broker.
func (b *LocalBroker) Publish(_ context.Context, collection string) error {
	b.notify(collection)
	return nil
}

func (b *LocalBroker) notify(collection string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs[collection] {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// Subscribe implements Broker.
func (b *LocalBroker) Subscribe(collection string) (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)
	b.mu.Lock()
	set := b.subs[collection]
	if set == nil {
		set = make(map[chan struct{}]struct{})
		b.subs[collection] = set
	}
	set[ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs[collection], ch)
			if len(b.subs[collection]) == 0 {
				delete(b.subs, collection)
			}
			b.mu.Unlock()
		})
	}
}

// Subscribers returns the number of live subscriptions on collection.
func (b *LocalBroker) Subscribers(collection string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[collection])
}
