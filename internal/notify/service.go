// Package notify stores in-app notifications, publishes side-effect events
// and renders and sends order receipts. Everything here is best effort:
// failures are logged and never reach the caller's primary operation.
package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/MikeMC777/campus-market/internal/apperr"
	"github.com/MikeMC777/campus-market/internal/docstore"
	"github.com/MikeMC777/campus-market/internal/listing"
)

type Kind string

const (
	KindNewOrder          Kind = "new_order"
	KindOrderStatus       Kind = "order_status"
	KindProductApproved   Kind = "product_approved"
	KindProductRejected   Kind = "product_rejected"
	KindApplicationResult Kind = "seller_application"
	KindChatMessage       Kind = "chat_message"
)

type Notification struct {
	ID        string    `json:"id"                bson:"_id"`
	UserID    string    `json:"userId"            bson:"userId"`
	Kind      Kind      `json:"kind"              bson:"kind"`
	Title     string    `json:"title"             bson:"title"`
	Body      string    `json:"body"              bson:"body"`
	OrderID   string    `json:"orderId,omitempty" bson:"orderId,omitempty"`
	Read      bool      `json:"read"              bson:"read"`
	CreatedAt time.Time `json:"createdAt"         bson:"createdAt"`
}

func (n Notification) SortKey() (time.Time, string) { return n.CreatedAt, n.ID }

type Service struct {
	store  docstore.Store
	reader *listing.Reader
	pub    Publisher
	log    zerolog.Logger
}

func NewService(reader *listing.Reader, pub Publisher, log zerolog.Logger) *Service {
	return &Service{store: reader.Store(), reader: reader, pub: pub, log: log}
}

// Notify stores n for its recipient and publishes it. It never fails.
func (s *Service) Notify(ctx context.Context, n Notification) {
	if n.UserID == "" {
		s.log.Warn().Str("kind", string(n.Kind)).Msg("notification without recipient dropped")
		return
	}
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}

	if err := s.store.Create(ctx, docstore.Notifications, n.ID, n); err != nil {
		s.log.Warn().Err(err).Str("user", n.UserID).Str("kind", string(n.Kind)).Msg("failed to store notification")
	}
	s.Publish(ctx, EventNotification, n.UserID, n)
}

// Publish wraps payload in an event and publishes it, logging failures.
func (s *Service) Publish(ctx context.Context, typ, key string, payload any) {
	ev, err := NewEvent(typ, key, payload)
	if err != nil {
		s.log.Warn().Err(err).Str("type", typ).Msg("failed to build event")
		return
	}
	if err := s.pub.Publish(ctx, ev); err != nil {
		s.log.Warn().Err(err).Str("type", typ).Str("key", key).Msg("failed to publish event")
	}
}

func (s *Service) ListMine(ctx context.Context, userID string) ([]Notification, error) {
	q := docstore.NewQuery().Where("userId", docstore.Eq, userID)
	return listing.Newest[Notification](ctx, s.reader, docstore.Notifications, q, "createdAt")
}

func (s *Service) MarkRead(ctx context.Context, userID, id string) error {
	n, err := docstore.GetAs[Notification](ctx, s.store, docstore.Notifications, id)
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return fmt.Errorf("notification %w", apperr.ErrNotFound)
		}
		return err
	}
	if n.UserID != userID {
		return fmt.Errorf("%w: not your notification", apperr.ErrForbidden)
	}
	if n.Read {
		return nil
	}
	return s.store.Update(ctx, docstore.Notifications, id, map[string]any{"read": true})
}
