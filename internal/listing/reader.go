// Package listing implements the read path every listing screen goes
// through: a server-sorted query with a client-sorted fallback, one silent
// retry for transient failures, and a fail-open bounded wait.
package listing

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog"

	"github.com/MikeMC777/campus-market/internal/apperr"
	"github.com/MikeMC777/campus-market/internal/docstore"
)

// Listable is implemented by every document type that can be listed. The
// key is the timestamp the listing orders by; the id breaks ties.
type Listable interface {
	SortKey() (time.Time, string)
}

const (
	maxAttempts       = 2
	defaultRetryDelay = 150 * time.Millisecond
)

type Reader struct {
	store      docstore.Store
	log        zerolog.Logger
	retryDelay time.Duration
}

type Option func(*Reader)

// WithRetryDelay sets the pause before the single retry.
func WithRetryDelay(d time.Duration) Option {
	return func(r *Reader) { r.retryDelay = d }
}

func NewReader(store docstore.Store, log zerolog.Logger, opts ...Option) *Reader {
	r := &Reader{store: store, log: log, retryDelay: defaultRetryDelay}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Store exposes the underlying document store.
func (r *Reader) Store() docstore.Store { return r.store }

// Newest lists q newest first by sortField.
func Newest[T Listable](ctx context.Context, r *Reader, coll string, q docstore.Query, sortField string) ([]T, error) {
	return List[T](ctx, r, coll, q, sortField, true)
}

// Oldest lists q oldest first by sortField.
func Oldest[T Listable](ctx context.Context, r *Reader, coll string, q docstore.Query, sortField string) ([]T, error) {
	return List[T](ctx, r, coll, q, sortField, false)
}

// List runs q sorted by sortField. If the store cannot serve the sort, the
// unsorted query runs instead and the result is ordered here. Both paths go
// through the same comparator so the output order does not depend on which
// one ran.
func List[T Listable](ctx context.Context, r *Reader, coll string, q docstore.Query, sortField string, desc bool) ([]T, error) {
	sorted := q.OrderBy(sortField, desc)
	limit := q.Limit

	op := func() ([]T, error) {
		docs, err := r.store.Find(ctx, coll, sorted)
		if errors.Is(err, docstore.ErrIndexUnavailable) {
			r.log.Debug().Err(err).Str("collection", coll).Str("sort", sortField).Msg("sorted query unavailable, sorting client-side")
			docs, err = r.store.Find(ctx, coll, sorted.Unsorted())
		}
		if err != nil {
			if !retryable(ctx, err) {
				return nil, backoff.Permanent(err)
			}
			return nil, err
		}
		out, err := docstore.DecodeAll[T](docs)
		if err != nil {
			return nil, backoff.Permanent(err)
		}
		Sort(out, desc)
		if limit > 0 && len(out) > limit {
			out = out[:limit]
		}
		return out, nil
	}

	return backoff.Retry(ctx, op,
		backoff.WithBackOff(backoff.NewConstantBackOff(r.retryDelay)),
		backoff.WithMaxTries(maxAttempts),
		backoff.WithNotify(func(err error, d time.Duration) {
			r.log.Debug().Err(err).Str("collection", coll).Dur("after", d).Msg("retrying listing")
		}),
	)
}

func retryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return apperr.Transient(err)
}

// Sort orders items by sort key (descending when desc is set) with the id
// ascending as tie break.
func Sort[T Listable](items []T, desc bool) {
	sort.SliceStable(items, func(i, j int) bool {
		ki, idi := items[i].SortKey()
		kj, idj := items[j].SortKey()
		if !ki.Equal(kj) {
			if desc {
				return ki.After(kj)
			}
			return ki.Before(kj)
		}
		return idi < idj
	})
}

// FailOpen runs fn with a bounded wait. When the wait runs out the result is
// empty and only a warning is logged; other errors pass through.
func FailOpen[T any](ctx context.Context, log zerolog.Logger, timeout time.Duration, fn func(context.Context) ([]T, error)) ([]T, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		items []T
		err   error
	}
	ch := make(chan result, 1)
	go func() {
		items, err := fn(ctx)
		ch <- result{items, err}
	}()

	select {
	case res := <-ch:
		if res.err != nil && errors.Is(res.err, context.DeadlineExceeded) && ctx.Err() != nil {
			log.Warn().Dur("timeout", timeout).Msg("listing timed out, returning empty result")
			return []T{}, nil
		}
		return res.items, res.err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			log.Warn().Dur("timeout", timeout).Msg("listing timed out, returning empty result")
			return []T{}, nil
		}
		return nil, ctx.Err()
	}
}
