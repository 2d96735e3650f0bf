// Package docstore is the document-store layer every data-access wrapper in
// the marketplace goes through. It covers create/read/update/delete by id,
// filtered queries with a single sort key, atomic counters and snapshot
// subscriptions, with memory, MongoDB and PostgreSQL backends.
package docstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/MikeMC777/campus-market/internal/apperr"
)

// Collection names.
const (
	Users              = "users"
	Products           = "products"
	Orders             = "orders"
	Chats              = "chats"
	Messages           = "messages"
	SellerApplications = "sellerApplications"
	Notifications      = "notifications"
)

var (
	ErrNotFound      = fmt.Errorf("document %w", apperr.ErrNotFound)
	ErrAlreadyExists = fmt.Errorf("document already exists: %w", apperr.ErrConflict)
	// ErrIndexUnavailable is returned by Find when the backend cannot serve
	// the requested sort, typically because a supporting index is missing.
	ErrIndexUnavailable = errors.New("index unavailable for sorted query")
	// ErrConditionFailed is returned by the conditional writes when the
	// document exists but does not satisfy the guard.
	ErrConditionFailed = fmt.Errorf("document precondition failed: %w", apperr.ErrConflict)
)

// Document is a stored document that can be decoded into a Go value.
type Document interface {
	ID() string
	Decode(v any) error
}

// Store is implemented by every backend.
type Store interface {
	Create(ctx context.Context, coll, id string, doc any) error
	Get(ctx context.Context, coll, id string) (Document, error)
	// Update merges fields into the document. Keys may use dots to address
	// nested map entries ("unreadCount.u1"). Last write wins per field.
	Update(ctx context.Context, coll, id string, fields map[string]any) error
	// Increment atomically adds delta to a numeric field.
	Increment(ctx context.Context, coll, id, field string, delta int64) error
	// IncrementIfAtLeast adds delta to field only while its current value is
	// at least min, in one atomic step.
	IncrementIfAtLeast(ctx context.Context, coll, id, field string, delta, min int64) error
	// UpdateIf merges fields only when field currently equals want.
	UpdateIf(ctx context.Context, coll, id, field string, want any, fields map[string]any) error
	Delete(ctx context.Context, coll, id string) error
	Find(ctx context.Context, coll string, q Query) ([]Document, error)
	// Subscribe calls fn with the full result of q now and after every
	// change to coll until the subscription is closed or ctx ends.
	Subscribe(ctx context.Context, coll string, q Query, fn func([]Document)) (*Subscription, error)
	Close(ctx context.Context) error
}

// GetAs loads one document and decodes it into a new T.
func GetAs[T any](ctx context.Context, s Store, coll, id string) (*T, error) {
	doc, err := s.Get(ctx, coll, id)
	if err != nil {
		return nil, err
	}
	var v T
	if err := doc.Decode(&v); err != nil {
		return nil, fmt.Errorf("decode %s/%s: %w", coll, id, err)
	}
	return &v, nil
}

// FindAs runs q and decodes every result into T.
func FindAs[T any](ctx context.Context, s Store, coll string, q Query) ([]T, error) {
	docs, err := s.Find(ctx, coll, q)
	if err != nil {
		return nil, err
	}
	return DecodeAll[T](docs)
}

// DecodeAll decodes docs into a slice of T, preserving order.
func DecodeAll[T any](docs []Document) ([]T, error) {
	out := make([]T, 0, len(docs))
	for _, d := range docs {
		var v T
		if err := d.Decode(&v); err != nil {
			return nil, fmt.Errorf("decode %s: %w", d.ID(), err)
		}
		out = append(out, v)
	}
	return out, nil
}
