package notify

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeReader struct {
	mu        sync.Mutex
	msgs      []kafka.Message
	committed []int64
	closed    bool
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.msgs) == 0 {
		return kafka.Message{}, context.Canceled
	}
	m := r.msgs[0]
	r.msgs = r.msgs[1:]
	return m, nil
}

func (r *fakeReader) CommitMessages(ctx context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error {
	r.closed = true
	return nil
}

type fakeMailbox struct {
	receipts []Receipt
	updates  []StatusUpdate
	failures int
}

func (m *fakeMailbox) SendReceipt(ctx context.Context, r Receipt) error {
	if m.failures > 0 {
		m.failures--
		return errors.New("smtp: 421 try again later")
	}
	m.receipts = append(m.receipts, r)
	return nil
}

func (m *fakeMailbox) SendStatusUpdate(ctx context.Context, u StatusUpdate) error {
	m.updates = append(m.updates, u)
	return nil
}

func message(t *testing.T, offset int64, typ, key string, payload any) kafka.Message {
	t.Helper()
	ev, err := NewEvent(typ, key, payload)
	require.NoError(t, err)
	b, err := json.Marshal(ev)
	require.NoError(t, err)
	return kafka.Message{Offset: offset, Key: []byte(key), Value: b}
}

func TestConsumer_DeliversMailEvents(t *testing.T) {
	r := &fakeReader{msgs: []kafka.Message{
		message(t, 1, EventOrderReceipt, "c1", sampleReceipt()),
		message(t, 2, EventNotification, "c1", Notification{UserID: "c1", Title: "hi"}),
		message(t, 3, EventOrderStatus, "c1", StatusUpdate{OrderID: "o1", RecipientID: "c1", RecipientEmail: "ana@campus.edu", Status: "confirmed"}),
		message(t, 4, EventOrderStatus, "s1", StatusUpdate{OrderID: "o1", RecipientID: "s1", Status: "cancelled"}),
		{Offset: 5, Value: []byte("not json")},
	}}
	mb := &fakeMailbox{failures: 1}
	c := newConsumer(r, mb, zerolog.Nop())
	c.delay = 0

	require.NoError(t, c.Run(context.Background()))

	require.Len(t, mb.receipts, 1, "receipt retried after a transient failure")
	assert.Equal(t, "o1", mb.receipts[0].Orders[0].OrderID)
	require.Len(t, mb.updates, 1, "updates without an address are skipped")
	assert.Equal(t, "confirmed", mb.updates[0].Status)
	assert.Equal(t, []int64{1, 2, 3, 4, 5}, r.committed)

	require.NoError(t, c.Close())
	assert.True(t, r.closed)
}

func TestConsumer_GivesUpAfterRetries(t *testing.T) {
	r := &fakeReader{msgs: []kafka.Message{message(t, 7, EventOrderReceipt, "c1", sampleReceipt())}}
	mb := &fakeMailbox{failures: 10}
	c := newConsumer(r, mb, zerolog.Nop())
	c.delay = 0

	require.NoError(t, c.Run(context.Background()))
	assert.Empty(t, mb.receipts)
	assert.Equal(t, 7, mb.failures)
	assert.Equal(t, []int64{7}, r.committed)
}
