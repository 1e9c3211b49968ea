package docstore

import "context"

// Snapshot is the full ordered result of a subscribed query at one point in time.
type Snapshot struct {
	Docs []Doc
	Err  error
}

// Subscription delivers a Snapshot on start and again after every change to
// the watched collection. Close stops it and closes C.
type Subscription struct {
	c      chan Snapshot
	cancel context.CancelFunc
	done   chan struct{}
}

func newSubscription(parent context.Context, changes <-chan struct{}, unsubscribe func(), load func(context.Context) ([]Doc, error)) *Subscription {
	ctx, cancel := context.WithCancel(parent)
	s := &Subscription{
		c:      make(chan Snapshot, 1),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go s.run(ctx, changes, unsubscribe, load)
	return s
}

func (s *Subscription) run(ctx context.Context, changes <-chan struct{}, unsubscribe func(), load func(context.Context) ([]Doc, error)) {
	defer close(s.done)
	defer close(s.c)
	defer unsubscribe()
	for {
		docs, err := load(ctx)
		if ctx.Err() != nil {
			return
		}
		select {
		case s.c <- Snapshot{Docs: docs, Err: err}:
		case <-ctx.Done():
			return
		}
		select {
		case <-changes:
		case <-ctx.Done():
			return
		}
	}
}

// C returns the snapshot channel.
func (s *Subscription) C() <-chan Snapshot { return s.c }

// Close stops the subscription and waits for its goroutine to exit.
func (s *Subscription) Close() {
	s.cancel()
	<-s.done
}
