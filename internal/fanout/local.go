package fanout

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/jmehdipour/payroll-projector/internal/model"
)

const localBuffer = 64

// LocalBus is the in-process counterpart of RedisPublisher, used when the
// service runs without Redis. A subscriber that falls a full buffer behind
// misses notifications instead of blocking the projection.
type LocalBus struct {
	mu     sync.RWMutex
	subs   map[int]chan model.ChangeNotification
	nextID int
	log    *zap.Logger
}

func NewLocalBus(log *zap.Logger) *LocalBus {
	if log == nil {
		log = zap.NewNop()
	}
	return &LocalBus{subs: make(map[int]chan model.ChangeNotification), log: log}
}

func (b *LocalBus) Publish(_ context.Context, n model.ChangeNotification) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for id, ch := range b.subs {
		select {
		case ch <- n:
		default:
			b.log.Warn("slow subscriber dropped change notification",
				zap.Int("subscriber", id),
				zap.String("notification_id", n.ID),
			)
		}
	}
	return nil
}

// Subscribe registers a subscriber until ctx is done; the returned channel
// is closed then.
func (b *LocalBus) Subscribe(ctx context.Context) (<-chan model.ChangeNotification, error) {
	ch := make(chan model.ChangeNotification, localBuffer)

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		delete(b.subs, id)
		close(ch)
		b.mu.Unlock()
	}()
	return ch, nil
}

func (b *LocalBus) subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
