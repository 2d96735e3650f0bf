package seller

import (
	"context"
	"fmt"
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

type recordingNotifier struct {
	mu   sync.Mutex
	sent []notify.Notification
}

func (r *recordingNotifier) Notify(_ context.Context, n notify.Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, n)
}

type env struct {
	svc      *Service
	repo     *DocRepo
	users    *user.Service
	notifier *recordingNotifier
	changed  []string
}

func newEnv(t *testing.T) *env {
	t.Helper()
	reader := listing.NewReader(docstore.NewMemoryStore(), zerolog.Nop())
	e := &env{
		repo:     NewDocRepo(reader),
		users:    user.NewService(user.NewDocRepo(reader), []string{"admin"}, zerolog.Nop()),
		notifier: &recordingNotifier{},
	}
	e.users.OnChange(func(_ context.Context, id string) { e.changed = append(e.changed, id) })
	e.svc = NewService(e.repo, e.users, e.notifier, zerolog.Nop())
	return e
}

func (e *env) register(t *testing.T, id string) user.User {
	t.Helper()
	u, err := e.users.Register(context.Background(), id, user.ProfileRequest{Email: id + "@campus.edu", Name: "User " + id})
	require.NoError(t, err)
	return *u
}

var apply = SubmitRequest{StoreName: "Ana's Notes", Justification: "I sell reviewers."}

func TestSubmit(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	ana := e.register(t, "ana")

	a, err := e.svc.Submit(ctx, ana, apply)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, a.Status)
	assert.Equal(t, "ana@campus.edu", a.UserEmail)

	_, err = e.svc.Submit(ctx, ana, apply)
	assert.ErrorIs(t, err, apperr.ErrConflict, "one pending application at a time")

	_, err = e.svc.Submit(ctx, e.register(t, "bob"), SubmitRequest{StoreName: "Bob", Justification: "   "})
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)

	_, err = e.svc.Submit(ctx, e.register(t, "admin"), apply)
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	mine, err := e.svc.ListMine(ctx, ana)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, a.ID, mine[0].ID)
}

func TestReview_Approve(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	ana := e.register(t, "ana")
	admin := e.register(t, "admin")

	a, err := e.svc.Submit(ctx, ana, apply)
	require.NoError(t, err)

	_, err = e.svc.Review(ctx, ana, a.ID, ReviewRequest{Approve: true})
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	reviewed, err := e.svc.Review(ctx, admin, a.ID, ReviewRequest{Approve: true, Note: "Welcome"})
	require.NoError(t, err)
	assert.Equal(t, StatusApproved, reviewed.Status)
	assert.Equal(t, "admin", reviewed.ReviewedBy)
	require.NotNil(t, reviewed.ReviewedAt)

	u, err := e.users.Get(ctx, "ana")
	require.NoError(t, err)
	assert.Equal(t, user.RoleSeller, u.Role)
	assert.Equal(t, []string{"ana"}, e.changed, "role change reaches the cache and session hooks")

	stored, err := e.repo.GetByID(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusApproved, stored.Status)
	assert.Equal(t, "Welcome", stored.ReviewNote)

	require.Len(t, e.notifier.sent, 1)
	assert.Equal(t, notify.KindApplicationResult, e.notifier.sent[0].Kind)
	assert.Equal(t, "ana", e.notifier.sent[0].UserID)

	_, err = e.svc.Review(ctx, admin, a.ID, ReviewRequest{Approve: false})
	assert.ErrorIs(t, err, apperr.ErrConflict, "already reviewed")
}

func TestReview_Reject(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	ana := e.register(t, "ana")
	admin := e.register(t, "admin")

	a, err := e.svc.Submit(ctx, ana, apply)
	require.NoError(t, err)
	_, err = e.svc.Review(ctx, admin, a.ID, ReviewRequest{Note: "Needs a student id"})
	require.NoError(t, err)

	u, err := e.users.Get(ctx, "ana")
	require.NoError(t, err)
	assert.Equal(t, user.RoleCustomer, u.Role)
	assert.Empty(t, e.changed)
	require.Len(t, e.notifier.sent, 1)
	assert.Contains(t, e.notifier.sent[0].Body, "Needs a student id")

	again, err := e.svc.Submit(ctx, ana, apply)
	require.NoError(t, err, "a rejected applicant may apply again")
	assert.Equal(t, StatusPending, again.Status)

	_, err = e.svc.Review(ctx, admin, "missing", ReviewRequest{})
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestListPending_NewestFirst(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	admin := e.register(t, "admin")

	base := time.Date(2026, 9, 1, 8, 0, 0, 0, time.UTC)
	for i, minutes := range []int{3, 9, 1} {
		at := base.Add(time.Duration(minutes) * time.Minute)
		require.NoError(t, e.repo.Create(ctx, &Application{
			ID: fmt.Sprintf("app%d", i), UserID: fmt.Sprintf("u%d", i), Status: StatusPending,
			CreatedAt: at, UpdatedAt: at,
		}))
	}
	require.NoError(t, e.repo.Create(ctx, &Application{ID: "done", UserID: "u9", Status: StatusApproved, CreatedAt: base}))

	pending, err := e.svc.ListPending(ctx, admin)
	require.NoError(t, err)
	var ids []string
	for _, a := range pending {
		ids = append(ids, a.ID)
	}
	assert.Equal(t, []string{"app1", "app0", "app2"}, ids)

	_, err = e.svc.ListPending(ctx, e.register(t, "ana"))
	assert.ErrorIs(t, err, apperr.ErrForbidden)
}
