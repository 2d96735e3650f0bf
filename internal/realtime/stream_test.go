package realtime

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MikeMC777/campus-market/internal/docstore"
)

type item struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

type snapshot struct {
	Type  string `json:"type"`
	Items []item `json:"items"`
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	return conn
}

func read(t *testing.T, conn *websocket.Conn) snapshot {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var s snapshot
	require.NoError(t, conn.ReadJSON(&s))
	return s
}

func TestStream_PushesStoreSnapshots(t *testing.T) {
	store := docstore.NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, store.Create(ctx, docstore.Products, "p1", item{ID: "p1", Title: "Calculator"}))

	streamer := NewStreamer(zerolog.Nop())
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		err := Stream(streamer, w, r, func(ctx context.Context, push func([]item)) (func(), error) {
			sub, err := store.Subscribe(ctx, docstore.Products, docstore.NewQuery(), func(docs []docstore.Document) {
				items, err := docstore.DecodeAll[item](docs)
				if err == nil {
					push(items)
				}
			})
			if err != nil {
				return nil, err
			}
			return func() { _ = sub.Close() }, nil
		})
		assert.NoError(t, err)
	}))
	defer srv.Close()

	conn := dial(t, srv)
	first := read(t, conn)
	assert.Equal(t, FrameSnapshot, first.Type)
	require.Len(t, first.Items, 1)
	assert.Equal(t, "Calculator", first.Items[0].Title)

	require.NoError(t, store.Create(ctx, docstore.Products, "p2", item{ID: "p2", Title: "Lab coat"}))
	next := read(t, conn)
	for len(next.Items) < 2 {
		next = read(t, conn)
	}
	assert.Len(t, next.Items, 2)
	assert.Equal(t, 1, store.Watchers(docstore.Products))

	require.NoError(t, conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))
	conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for store.Watchers(docstore.Products) != 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	assert.Equal(t, 0, store.Watchers(docstore.Products), "closing the socket releases the subscription")
}

func TestStream_EmptySnapshotIsAnArray(t *testing.T) {
	streamer := NewStreamer(zerolog.Nop())
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = Stream(streamer, w, r, func(_ context.Context, push func([]item)) (func(), error) {
			push(nil)
			return func() {}, nil
		})
	}))
	defer srv.Close()

	conn := dial(t, srv)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"snapshot","items":[]}`, string(raw))
}

func TestStream_LatestSnapshotWins(t *testing.T) {
	streamer := NewStreamer(zerolog.Nop())
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = Stream(streamer, w, r, func(_ context.Context, push func([]item)) (func(), error) {
			// Both land before the writer starts; only the second survives.
			push([]item{{ID: "old"}})
			push([]item{{ID: "new"}})
			return func() {}, nil
		})
	}))
	defer srv.Close()

	conn := dial(t, srv)
	defer conn.Close()
	got := read(t, conn)
	require.Len(t, got.Items, 1)
	assert.Equal(t, "new", got.Items[0].ID)
}

func TestStream_SubscribeErrorSkipsUpgrade(t *testing.T) {
	var released atomic.Bool
	streamer := NewStreamer(zerolog.Nop())
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		err := Stream(streamer, w, r, func(context.Context, func([]item)) (func(), error) {
			return func() { released.Store(true) }, errors.New("not a participant")
		})
		if err != nil {
			http.Error(w, err.Error(), http.StatusForbidden)
		}
	}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.False(t, released.Load())
}

func TestStream_PingsKeepIdleClientsAlive(t *testing.T) {
	streamer := NewStreamer(zerolog.Nop(), WithKeepAlive(200*time.Millisecond))
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = Stream(streamer, w, r, func(context.Context, func([]item)) (func(), error) {
			return func() {}, nil
		})
	}))
	defer srv.Close()

	conn := dial(t, srv)
	defer conn.Close()

	var pings atomic.Int32
	conn.SetPingHandler(func(data string) error {
		pings.Add(1)
		return conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(time.Second))
	})
	// Control frames are handled inside ReadMessage.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	time.Sleep(500 * time.Millisecond)
	assert.GreaterOrEqual(t, pings.Load(), int32(2))
}

func TestWithOrigins(t *testing.T) {
	streamer := NewStreamer(zerolog.Nop(), WithOrigins("https://market.campus.edu"))
	check := streamer.upgrader.CheckOrigin

	r := httptest.NewRequest(http.MethodGet, "/ws", nil)
	assert.True(t, check(r), "no Origin header")
	r.Header.Set("Origin", "https://market.campus.edu")
	assert.True(t, check(r))
	r.Header.Set("Origin", "https://evil.example")
	assert.False(t, check(r))
}
