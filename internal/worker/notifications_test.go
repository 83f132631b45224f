package worker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jmehdipour/realestate-billing/internal/kafka"
	"github.com/jmehdipour/realestate-billing/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type chanSource struct {
	ch        chan kafka.Message
	mu        sync.Mutex
	committed []int64
}

func (s *chanSource) Fetch(ctx context.Context) (kafka.Message, error) {
	select {
	case m := <-s.ch:
		return m, nil
	case <-ctx.Done():
		return kafka.Message{}, ctx.Err()
	}
}

func (s *chanSource) Commit(_ context.Context, m kafka.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.committed = append(s.committed, m.Offset)
	return nil
}

func (s *chanSource) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.committed)
}

type flakyDeliverer struct {
	mu   sync.Mutex
	seen []string
	fail string
}

func (d *flakyDeliverer) Deliver(_ context.Context, n model.Notification) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.seen = append(d.seen, n.ID)
	if n.ID == d.fail {
		return errors.New("endpoint down")
	}
	return nil
}

func envelope(t *testing.T, offset int64, id string) kafka.Message {
	t.Helper()
	b, err := json.Marshal(model.Notification{ID: id, UserID: "u1", Type: model.NotificationTrialExpired})
	require.NoError(t, err)
	return kafka.Message{Offset: offset, Value: b}
}

func TestNotificationsWorkerCommitsEveryMessage(t *testing.T) {
	src := &chanSource{ch: make(chan kafka.Message, 4)}
	src.ch <- envelope(t, 1, "a")
	src.ch <- kafka.Message{Offset: 2, Value: []byte("{not json")}
	src.ch <- envelope(t, 3, "b")
	src.ch <- envelope(t, 4, "c")

	d := &flakyDeliverer{fail: "b"}
	w := NewNotificationsWorker(src, d, zap.NewNop())
	w.Workers = 2

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	require.Eventually(t, func() bool { return src.count() == 4 }, 2*time.Second, 10*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	assert.ElementsMatch(t, []string{"a", "b", "c"}, d.seen)
	assert.ElementsMatch(t, []int64{1, 2, 3, 4}, src.committed)
}

func TestRunEveryOnceReturnsError(t *testing.T) {
	boom := errors.New("boom")
	err := RunEvery(context.Background(), 0, "x", zap.NewNop(), func(context.Context) error { return boom })
	assert.ErrorIs(t, err, boom)
}

func TestRunEveryRepeatsUntilCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var mu sync.Mutex
	runs := 0
	done := make(chan error, 1)
	go func() {
		done <- RunEvery(ctx, 5*time.Millisecond, "x", zap.NewNop(), func(context.Context) error {
			mu.Lock()
			runs++
			mu.Unlock()
			return errors.New("keeps going")
		})
	}()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return runs >= 3
	}, time.Second, time.Millisecond)
	cancel()
	assert.NoError(t, <-done)
}
