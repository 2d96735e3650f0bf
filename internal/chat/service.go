// Package chat provides one-to-one conversations between marketplace users.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/MikeMC777/campus-market/internal/apperr"
	"github.com/MikeMC777/campus-market/internal/docstore"
	"github.com/MikeMC777/campus-market/internal/listing"
	"github.com/MikeMC777/campus-market/internal/notify"
	"github.com/MikeMC777/campus-market/internal/user"
)

var ErrNotFound = fmt.Errorf("chat %w", apperr.ErrNotFound)

// DefaultListTimeout bounds the chat list fetch.
const DefaultListTimeout = 8 * time.Second

type Notifier interface {
	Notify(ctx context.Context, n notify.Notification)
}

var validate = validator.New()

type Service struct {
	store       docstore.Store
	reader      *listing.Reader
	users       user.Lookup
	notifier    Notifier
	listTimeout time.Duration
	log         zerolog.Logger
}

func NewService(reader *listing.Reader, users user.Lookup, notifier Notifier, listTimeout time.Duration, log zerolog.Logger) *Service {
	if listTimeout <= 0 {
		listTimeout = DefaultListTimeout
	}
	return &Service{
		store:       reader.Store(),
		reader:      reader,
		users:       users,
		notifier:    notifier,
		listTimeout: listTimeout,
		log:         log,
	}
}

func (s *Service) load(ctx context.Context, actor user.User, chatID string) (*Chat, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	c, err := docstore.GetAs[Chat](ctx, s.store, docstore.Chats, chatID)
	if errors.Is(err, docstore.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if !c.HasParticipant(actor.ID) {
		return nil, fmt.Errorf("%w: not a participant", apperr.ErrForbidden)
	}
	return c, nil
}

// Open returns the chat between actor and peer, creating it on first use.
func (s *Service) Open(ctx context.Context, actor user.User, req OpenRequest) (*Chat, error) {
	if err := validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", apperr.ErrInvalidInput, err)
	}
	if req.PeerID == actor.ID {
		return nil, fmt.Errorf("%w: cannot chat with yourself", apperr.ErrInvalidInput)
	}
	id := ID(actor.ID, req.PeerID)
	if c, err := s.load(ctx, actor, id); err == nil || !errors.Is(err, ErrNotFound) {
		return c, err
	}

	peer, err := s.users.GetUser(ctx, req.PeerID)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	c := &Chat{
		ID:               id,
		Participants:     []string{actor.ID, peer.ID},
		ParticipantNames: map[string]string{actor.ID: actor.Name, peer.ID: peer.Name},
		UnreadCount:      map[string]int{actor.ID: 0, peer.ID: 0},
		ProductID:        req.ProductID,
		LastMessageAt:    now,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	err = s.store.Create(ctx, docstore.Chats, id, c)
	if errors.Is(err, docstore.ErrAlreadyExists) {
		return s.load(ctx, actor, id)
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (s *Service) Get(ctx context.Context, actor user.User, chatID string) (*Chat, error) {
	return s.load(ctx, actor, chatID)
}

// Send stores a message, updates the chat summary and bumps the peer's
// unread counter.
func (s *Service) Send(ctx context.Context, actor user.User, chatID string, req SendRequest) (*Message, error) {
	req.Text = strings.TrimSpace(req.Text)
	if err := validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", apperr.ErrInvalidInput, err)
	}
	c, err := s.load(ctx, actor, chatID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	m := &Message{
		ID:        uuid.Must(uuid.NewV7()).String(),
		ChatID:    c.ID,
		SenderID:  actor.ID,
		Text:      req.Text,
		CreatedAt: now,
	}
	if err := s.store.Create(ctx, docstore.Messages, m.ID, m); err != nil {
		return nil, err
	}

	peer := c.Peer(actor.ID)
	if err := s.store.Update(ctx, docstore.Chats, c.ID, map[string]any{
		"lastMessage":   preview(m.Text),
		"lastSenderId":  actor.ID,
		"lastMessageAt": now,
		"updatedAt":     now,
	}); err != nil {
		return nil, err
	}
	if err := s.store.Increment(ctx, docstore.Chats, c.ID, "unreadCount."+peer, 1); err != nil {
		return nil, err
	}

	s.notifier.Notify(ctx, notify.Notification{
		UserID: peer,
		Kind:   notify.KindChatMessage,
		Title:  "New message from " + c.ParticipantNames[actor.ID],
		Body:   preview(m.Text),
	})
	return m, nil
}

func preview(text string) string {
	const limit = 120
	r := []rune(text)
	if len(r) <= limit {
		return text
	}
	return string(r[:limit-1]) + "…"
}

// MarkRead clears the actor's unread counter and flags the peer's messages
// as read.
func (s *Service) MarkRead(ctx context.Context, actor user.User, chatID string) error {
	c, err := s.load(ctx, actor, chatID)
	if err != nil {
		return err
	}
	if err := s.store.Update(ctx, docstore.Chats, c.ID, map[string]any{"unreadCount." + actor.ID: 0}); err != nil {
		return err
	}

	q := docstore.NewQuery().
		Where("chatId", docstore.Eq, c.ID).
		Where("senderId", docstore.Eq, c.Peer(actor.ID)).
		Where("read", docstore.Eq, false)
	docs, err := s.store.Find(ctx, docstore.Messages, q)
	if err != nil {
		return err
	}
	for _, d := range docs {
		if err := s.store.Update(ctx, docstore.Messages, d.ID(), map[string]any{"read": true}); err != nil {
			return err
		}
	}
	return nil
}

func chatsOf(userID string) docstore.Query {
	return docstore.NewQuery().Where("participants", docstore.Contains, userID)
}

// ListChats returns the actor's chats, latest activity first. A slow store
// yields an empty list rather than an error.
func (s *Service) ListChats(ctx context.Context, actor user.User) ([]Chat, error) {
	return listing.FailOpen(ctx, s.log, s.listTimeout, func(ctx context.Context) ([]Chat, error) {
		return listing.Newest[Chat](ctx, s.reader, docstore.Chats, chatsOf(actor.ID), "lastMessageAt")
	})
}

// Messages returns the chat's messages, oldest first.
func (s *Service) Messages(ctx context.Context, actor user.User, chatID string) ([]Message, error) {
	c, err := s.load(ctx, actor, chatID)
	if err != nil {
		return nil, err
	}
	q := docstore.NewQuery().Where("chatId", docstore.Eq, c.ID)
	return listing.Oldest[Message](ctx, s.reader, docstore.Messages, q, "createdAt")
}

// SubscribeChats streams the actor's chat list. Call the returned func to
// release the subscription.
func (s *Service) SubscribeChats(ctx context.Context, actor user.User, fn func([]Chat)) (func(), error) {
	sub, err := s.store.Subscribe(ctx, docstore.Chats, chatsOf(actor.ID), func(docs []docstore.Document) {
		chats, err := docstore.DecodeAll[Chat](docs)
		if err != nil {
			s.log.Warn().Err(err).Msg("dropping undecodable chat snapshot")
			return
		}
		listing.Sort(chats, true)
		fn(chats)
	})
	if err != nil {
		return nil, err
	}
	return func() { _ = sub.Close() }, nil
}

// SubscribeMessages streams one chat's messages, oldest first.
func (s *Service) SubscribeMessages(ctx context.Context, actor user.User, chatID string, fn func([]Message)) (func(), error) {
	c, err := s.load(ctx, actor, chatID)
	if err != nil {
		return nil, err
	}
	q := docstore.NewQuery().Where("chatId", docstore.Eq, c.ID)
	sub, err := s.store.Subscribe(ctx, docstore.Messages, q, func(docs []docstore.Document) {
		msgs, err := docstore.DecodeAll[Message](docs)
		if err != nil {
			s.log.Warn().Err(err).Str("chat", c.ID).Msg("dropping undecodable message snapshot")
			return
		}
		listing.Sort(msgs, false)
		fn(msgs)
	})
	if err != nil {
		return nil, err
	}
	return func() { _ = sub.Close() }, nil
}
