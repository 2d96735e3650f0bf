package chat

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MikeMC777/campus-market/internal/apperr"
	"github.com/MikeMC777/campus-market/internal/docstore"
	"github.com/MikeMC777/campus-market/internal/listing"
	"github.com/MikeMC777/campus-market/internal/notify"
	"github.com/MikeMC777/campus-market/internal/user"
)

type users map[string]user.User

func (u users) GetUser(_ context.Context, id string) (*user.User, error) {
	found, ok := u[id]
	if !ok {
		return nil, user.ErrNotFound
	}
	return &found, nil
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []notify.Notification
}

func (r *recordingNotifier) Notify(_ context.Context, n notify.Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, n)
}

// slowStore blocks every query until the caller gives up.
type slowStore struct{ docstore.Store }

func (slowStore) Find(ctx context.Context, _ string, _ docstore.Query) ([]docstore.Document, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

var (
	ana = user.User{ID: "ana", Name: "Ana", Role: user.RoleCustomer, Active: true}
	sam = user.User{ID: "sam", Name: "Sam", Role: user.RoleSeller, Active: true}
	eve = user.User{ID: "eve", Name: "Eve", Role: user.RoleCustomer, Active: true}
)

func newTestService(t *testing.T) (*Service, *docstore.MemoryStore, *recordingNotifier) {
	t.Helper()
	store := docstore.NewMemoryStore()
	n := &recordingNotifier{}
	dir := users{"ana": ana, "sam": sam, "eve": eve}
	return NewService(listing.NewReader(store, zerolog.Nop()), dir, n, time.Second, zerolog.Nop()), store, n
}

func TestID_OrderIndependent(t *testing.T) {
	assert.Equal(t, ID("ana", "sam"), ID("sam", "ana"))
	assert.Equal(t, "ana_sam", ID("sam", "ana"))
}

func TestOpen(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newTestService(t)

	c, err := s.Open(ctx, ana, OpenRequest{PeerID: "sam", ProductID: "p1"})
	require.NoError(t, err)
	assert.Equal(t, "ana_sam", c.ID)
	assert.Equal(t, "Sam", c.ParticipantNames["sam"])
	assert.Equal(t, 0, c.UnreadCount["ana"])

	again, err := s.Open(ctx, sam, OpenRequest{PeerID: "ana"})
	require.NoError(t, err)
	assert.Equal(t, c.ID, again.ID, "the pair shares one chat")
	assert.Equal(t, "p1", again.ProductID)

	_, err = s.Open(ctx, ana, OpenRequest{PeerID: "ana"})
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)
	_, err = s.Open(ctx, ana, OpenRequest{PeerID: "ghost"})
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	_, err = s.Open(ctx, ana, OpenRequest{})
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)
}

func TestSendAndMarkRead(t *testing.T) {
	ctx := context.Background()
	s, _, n := newTestService(t)
	c, err := s.Open(ctx, ana, OpenRequest{PeerID: "sam"})
	require.NoError(t, err)

	for _, text := range []string{"Hi!", "Is the calculator still available?"} {
		_, err := s.Send(ctx, ana, c.ID, SendRequest{Text: text})
		require.NoError(t, err)
	}
	_, err = s.Send(ctx, sam, c.ID, SendRequest{Text: "Yes, it is."})
	require.NoError(t, err)

	got, err := s.Get(ctx, sam, c.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.UnreadCount["sam"])
	assert.Equal(t, 1, got.UnreadCount["ana"])
	assert.Equal(t, "Yes, it is.", got.LastMessage)
	assert.Equal(t, "sam", got.LastSenderID)

	msgs, err := s.Messages(ctx, ana, c.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, "Hi!", msgs[0].Text, "oldest first")
	assert.Equal(t, "Yes, it is.", msgs[2].Text)

	require.NoError(t, s.MarkRead(ctx, sam, c.ID))
	got, err = s.Get(ctx, sam, c.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.UnreadCount["sam"])
	assert.Equal(t, 1, got.UnreadCount["ana"], "the other counter is untouched")

	msgs, err = s.Messages(ctx, sam, c.ID)
	require.NoError(t, err)
	for _, m := range msgs {
		assert.Equal(t, m.SenderID == "ana", m.Read, m.Text)
	}

	require.Len(t, n.sent, 3)
	assert.Equal(t, "sam", n.sent[0].UserID)
	assert.Equal(t, notify.KindChatMessage, n.sent[0].Kind)
	assert.Equal(t, "ana", n.sent[2].UserID)
}

func TestSend_Rejects(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newTestService(t)
	c, err := s.Open(ctx, ana, OpenRequest{PeerID: "sam"})
	require.NoError(t, err)

	_, err = s.Send(ctx, ana, c.ID, SendRequest{Text: "   "})
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)
	_, err = s.Send(ctx, ana, c.ID, SendRequest{Text: strings.Repeat("x", 2001)})
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)
	_, err = s.Send(ctx, eve, c.ID, SendRequest{Text: "hello"})
	assert.ErrorIs(t, err, apperr.ErrForbidden)
	_, err = s.Send(ctx, ana, "ana_nobody", SendRequest{Text: "hello"})
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = s.Messages(ctx, eve, c.ID)
	assert.ErrorIs(t, err, apperr.ErrForbidden)
	assert.ErrorIs(t, s.MarkRead(ctx, eve, c.ID), apperr.ErrForbidden)
}

func TestPreview(t *testing.T) {
	assert.Equal(t, "short", preview("short"))
	long := preview(strings.Repeat("é", 300))
	assert.Len(t, []rune(long), 120)
	assert.True(t, strings.HasSuffix(long, "…"))
}

func TestListChats_LatestActivityFirst(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newTestService(t)

	withSam, err := s.Open(ctx, ana, OpenRequest{PeerID: "sam"})
	require.NoError(t, err)
	withEve, err := s.Open(ctx, ana, OpenRequest{PeerID: "eve"})
	require.NoError(t, err)
	_, err = s.Open(ctx, sam, OpenRequest{PeerID: "eve"})
	require.NoError(t, err)

	time.Sleep(2 * time.Millisecond)
	_, err = s.Send(ctx, sam, withSam.ID, SendRequest{Text: "ping"})
	require.NoError(t, err)

	chats, err := s.ListChats(ctx, ana)
	require.NoError(t, err)
	require.Len(t, chats, 2)
	assert.Equal(t, withSam.ID, chats[0].ID)
	assert.Equal(t, withEve.ID, chats[1].ID)
}

func TestListChats_FailsOpen(t *testing.T) {
	store := slowStore{Store: docstore.NewMemoryStore()}
	s := NewService(listing.NewReader(store, zerolog.Nop()), users{}, &recordingNotifier{}, 50*time.Millisecond, zerolog.Nop())

	start := time.Now()
	chats, err := s.ListChats(context.Background(), ana)
	require.NoError(t, err)
	assert.Empty(t, chats)
	assert.Less(t, time.Since(start), time.Second)
}

func TestSubscriptions(t *testing.T) {
	ctx := context.Background()
	s, store, _ := newTestService(t)
	c, err := s.Open(ctx, ana, OpenRequest{PeerID: "sam"})
	require.NoError(t, err)

	msgs := make(chan []Message, 8)
	release, err := s.SubscribeMessages(ctx, sam, c.ID, func(m []Message) { msgs <- m })
	require.NoError(t, err)

	chats := make(chan []Chat, 8)
	releaseChats, err := s.SubscribeChats(ctx, sam, func(c []Chat) { chats <- c })
	require.NoError(t, err)

	wait := func() []Message {
		select {
		case m := <-msgs:
			return m
		case <-time.After(2 * time.Second):
			t.Fatal("no snapshot")
			return nil
		}
	}
	assert.Empty(t, wait())

	_, err = s.Send(ctx, ana, c.ID, SendRequest{Text: "one"})
	require.NoError(t, err)
	_, err = s.Send(ctx, ana, c.ID, SendRequest{Text: "two"})
	require.NoError(t, err)

	latest := wait()
	for len(latest) < 2 {
		latest = wait()
	}
	assert.Equal(t, []string{"one", "two"}, []string{latest[0].Text, latest[1].Text})

	select {
	case list := <-chats:
		require.Len(t, list, 1)
		assert.Equal(t, c.ID, list[0].ID)
	case <-time.After(2 * time.Second):
		t.Fatal("no chat list snapshot")
	}

	assert.Equal(t, 1, store.Watchers(docstore.Messages))
	release()
	releaseChats()
	assert.Equal(t, 0, store.Watchers(docstore.Messages))
	assert.Equal(t, 0, store.Watchers(docstore.Chats))

	_, err = s.SubscribeMessages(ctx, eve, c.ID, func([]Message) {})
	assert.ErrorIs(t, err, apperr.ErrForbidden)
}
