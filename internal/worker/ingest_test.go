package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"github.com/jmehdipour/payroll-projector/internal/kafka"
	"github.com/jmehdipour/payroll-projector/internal/projection"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeConsumer struct {
	msgs chan kafka.Message

	mu        sync.Mutex
	committed []kafka.Message
	fetchErrs int
}

func newFakeConsumer(msgs ...kafka.Message) *fakeConsumer {
	c := &fakeConsumer{msgs: make(chan kafka.Message, len(msgs))}
	for _, m := range msgs {
		c.msgs <- m
	}
	return c
}

func (c *fakeConsumer) Fetch(ctx context.Context) (kafka.Message, error) {
	c.mu.Lock()
	if c.fetchErrs > 0 {
		c.fetchErrs--
		c.mu.Unlock()
		return kafka.Message{}, errors.New("leader not available")
	}
	c.mu.Unlock()

	select {
	case <-ctx.Done():
		return kafka.Message{}, ctx.Err()
	case m := <-c.msgs:
		return m, nil
	}
}

func (c *fakeConsumer) Commit(_ context.Context, m kafka.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.committed = append(c.committed, m)
	return nil
}

func (c *fakeConsumer) commits() []kafka.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]kafka.Message(nil), c.committed...)
}

func msg(partition int, offset int64) kafka.Message {
	return kafka.Message{Partition: partition, Offset: offset, Value: []byte(fmt.Sprintf("p%d-o%d", partition, offset))}
}

func runWorker(t *testing.T, w *IngestKafka, until func() bool) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	require.Eventually(t, until, 5*time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not stop")
	}
}

func newWorker(t *testing.T, c Consumer, h HandlerFunc) *IngestKafka {
	w := NewIngestKafka(c, "employee", h, zaptest.NewLogger(t))
	w.Workers = 2
	w.RetryInitial = time.Millisecond
	w.RetryMax = 5 * time.Millisecond
	return w
}

func TestCommitsAcknowledgedMessagesInPartitionOrder(t *testing.T) {
	c := newFakeConsumer(msg(0, 1), msg(1, 1), msg(0, 2), msg(1, 2), msg(0, 3))
	w := newWorker(t, c, func(context.Context, []byte) error { return nil })

	runWorker(t, w, func() bool { return len(c.commits()) == 5 })

	last := map[int]int64{}
	for _, m := range c.commits() {
		assert.Greater(t, m.Offset, last[m.Partition], "partition %d committed out of order", m.Partition)
		last[m.Partition] = m.Offset
	}
}

func TestRetriesStoreFailuresInPlace(t *testing.T) {
	c := newFakeConsumer(msg(0, 1), msg(0, 2))
	var calls atomic.Int32
	w := newWorker(t, c, func(_ context.Context, v []byte) error {
		if string(v) == "p0-o1" && calls.Add(1) < 3 {
			return errors.New("deadlock found")
		}
		return nil
	})

	runWorker(t, w, func() bool { return len(c.commits()) == 2 })

	commits := c.commits()
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, int64(1), commits[0].Offset, "the failing record is committed first")
	assert.Equal(t, int64(2), commits[1].Offset)
}

func TestPublishFailureIsCommitted(t *testing.T) {
	c := newFakeConsumer(msg(0, 1))
	var calls atomic.Int32
	w := newWorker(t, c, func(context.Context, []byte) error {
		calls.Add(1)
		return fmt.Errorf("%w: redis down", projection.ErrPublish)
	})

	runWorker(t, w, func() bool { return len(c.commits()) == 1 })
	assert.Equal(t, int32(1), calls.Load())
}

func TestShutdownLeavesFailingMessageUncommitted(t *testing.T) {
	c := newFakeConsumer(msg(0, 1))
	var calls atomic.Int32
	w := newWorker(t, c, func(context.Context, []byte) error {
		calls.Add(1)
		return errors.New("mysql unavailable")
	})

	runWorker(t, w, func() bool { return calls.Load() >= 3 })
	assert.Empty(t, c.commits())
}

func TestFetchErrorsAreRetried(t *testing.T) {
	c := newFakeConsumer(msg(3, 9))
	c.fetchErrs = 2
	w := newWorker(t, c, func(context.Context, []byte) error { return nil })

	runWorker(t, w, func() bool { return len(c.commits()) == 1 })
}

func TestRunRequiresConsumerAndHandler(t *testing.T) {
	err := (&IngestKafka{}).Run(context.Background())
	assert.Error(t, err)
}
