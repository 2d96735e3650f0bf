// Package user provides the users collection, role lookups and the
// per-user session that replaces a global current-user.
package user

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MikeMC777/campus-market/internal/apperr"
	"github.com/MikeMC777/campus-market/internal/docstore"
	"github.com/MikeMC777/campus-market/internal/listing"
)

var (
	ErrNotFound     = fmt.Errorf("user %w", apperr.ErrNotFound)
	ErrAlreadyExist = fmt.Errorf("user already exists: %w", apperr.ErrConflict)
)

// Lookup resolves a user id to the stored user.
type Lookup interface {
	GetUser(ctx context.Context, id string) (*User, error)
}

type Repository interface {
	Lookup
	Create(ctx context.Context, u *User) error
	Update(ctx context.Context, id string, fields map[string]any) error
	List(ctx context.Context) ([]User, error)
}

type DocRepo struct {
	store  docstore.Store
	reader *listing.Reader
}

func NewDocRepo(reader *listing.Reader) *DocRepo {
	return &DocRepo{store: reader.Store(), reader: reader}
}

func (r *DocRepo) Create(ctx context.Context, u *User) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := r.store.Create(ctx, docstore.Users, u.ID, u); err != nil {
		if errors.Is(err, docstore.ErrAlreadyExists) {
			return ErrAlreadyExist
		}
		return err
	}
	return nil
}

func (r *DocRepo) GetUser(ctx context.Context, id string) (*User, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	u, err := docstore.GetAs[User](ctx, r.store, docstore.Users, id)
	if errors.Is(err, docstore.ErrNotFound) {
		return nil, ErrNotFound
	}
	return u, err
}

func (r *DocRepo) Update(ctx context.Context, id string, fields map[string]any) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	fields["updatedAt"] = time.Now().UTC()
	err := r.store.Update(ctx, docstore.Users, id, fields)
	if errors.Is(err, docstore.ErrNotFound) {
		return ErrNotFound
	}
	return err
}

func (r *DocRepo) List(ctx context.Context) ([]User, error) {
	return listing.Newest[User](ctx, r.reader, docstore.Users, docstore.NewQuery(), "createdAt")
}
