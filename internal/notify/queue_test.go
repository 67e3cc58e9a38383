package notify

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingNotifier struct {
	mu   sync.Mutex
	sent []string
	err  error
}

func (n *recordingNotifier) SendVerification(ctx context.Context, email, _ string) error {
	if _, ok := ctx.Deadline(); !ok {
		return errors.New("no deadline on background send")
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, email)
	return n.err
}

func (n *recordingNotifier) emails() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.sent...)
}

func discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func TestQueue_DeliversInBackground(t *testing.T) {
	rec := &recordingNotifier{}
	q := NewQueue(rec, QueueConfig{Size: 10, Workers: 2}, discard())
	q.Start()
	defer q.Stop()

	for _, email := range []string{"a@x.com", "b@x.com", "c@x.com"} {
		require.NoError(t, q.SendVerification(context.Background(), email, "link"))
	}

	require.Eventually(t, func() bool { return len(rec.emails()) == 3 }, 2*time.Second, 10*time.Millisecond)
	assert.ElementsMatch(t, []string{"a@x.com", "b@x.com", "c@x.com"}, rec.emails())
}

func TestQueue_FullBufferRejects(t *testing.T) {
	rec := &recordingNotifier{}
	// Not started: nothing drains the buffer.
	q := NewQueue(rec, QueueConfig{Size: 1, Workers: 1}, discard())

	require.NoError(t, q.SendVerification(context.Background(), "a@x.com", "link"))
	err := q.SendVerification(context.Background(), "b@x.com", "link")
	assert.ErrorIs(t, err, ErrQueueFull)

	q.Stop()
	assert.Equal(t, []string{"a@x.com"}, rec.emails())
}

func TestQueue_StopDrainsAndRejects(t *testing.T) {
	rec := &recordingNotifier{}
	q := NewQueue(rec, QueueConfig{Size: 5, Workers: 1}, discard())

	require.NoError(t, q.SendVerification(context.Background(), "a@x.com", "link"))
	require.NoError(t, q.SendVerification(context.Background(), "b@x.com", "link"))

	q.Start()
	q.Stop()
	q.Stop() // idempotent

	assert.ElementsMatch(t, []string{"a@x.com", "b@x.com"}, rec.emails())
	assert.ErrorIs(t, q.SendVerification(context.Background(), "c@x.com", "link"), ErrQueueStopped)
}

func TestQueue_SendFailureIsLoggedNotFatal(t *testing.T) {
	rec := &recordingNotifier{err: errors.New("provider down")}
	q := NewQueue(rec, QueueConfig{Size: 2, Workers: 1}, discard())
	q.Start()

	require.NoError(t, q.SendVerification(context.Background(), "a@x.com", "link"))
	require.NoError(t, q.SendVerification(context.Background(), "b@x.com", "link"))
	q.Stop()

	assert.Len(t, rec.emails(), 2)
}

func TestNewQueue_Defaults(t *testing.T) {
	q := NewQueue(&recordingNotifier{}, QueueConfig{}, discard())

	assert.Equal(t, DefaultQueueConfig().Size, cap(q.messages))
	assert.Equal(t, 1, q.config.Workers)
	assert.Equal(t, DefaultQueueConfig().SendTimeout, q.config.SendTimeout)
}
