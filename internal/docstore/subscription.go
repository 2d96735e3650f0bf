package docstore

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
)

// Subscription is the handle returned by Store.Subscribe. Close releases the
// underlying change feed and waits until no further snapshot is delivered.
type Subscription struct {
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

func (s *Subscription) Close() error {
	s.once.Do(func() {
		s.cancel()
		<-s.done
	})
	return nil
}

// Done is closed once the feed has stopped, whether by Close or because the
// subscription context ended.
func (s *Subscription) Done() <-chan struct{} { return s.done }

// signal performs a non-blocking send so bursts of writes coalesce into one
// pending refresh.
func signal(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}

// startFeed runs the snapshot loop shared by all backends: deliver the
// initial result, then re-run the query and deliver the full result on every
// change notification. Snapshot errors are logged and the feed keeps going.
func startFeed(
	ctx context.Context,
	log zerolog.Logger,
	coll string,
	changes <-chan struct{},
	stop func(),
	query func(context.Context) ([]Document, error),
	fn func([]Document),
) *Subscription {
	ctx, cancel := context.WithCancel(ctx)
	sub := &Subscription{cancel: cancel, done: make(chan struct{})}

	go func() {
		defer close(sub.done)
		defer stop()

		deliver := func() {
			docs, err := query(ctx)
			if err != nil {
				if ctx.Err() == nil {
					log.Warn().Err(err).Str("collection", coll).Msg("snapshot query failed")
				}
				return
			}
			if ctx.Err() != nil {
				return
			}
			fn(docs)
		}

		deliver()
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-changes:
				if !ok {
					return
				}
				deliver()
			}
		}
	}()
	return sub
}
