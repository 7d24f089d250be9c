package fanout

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/jmehdipour/payroll-projector/internal/model"
)

const DefaultChannel = "employee-changes"

// RedisPublisher is the live fan-out bus: one PUBLISH per notification on a
// single channel, guarded by a breaker so a dead Redis fails fast.
type RedisPublisher struct {
	rdb     *redis.Client
	channel string
	breaker *Breaker
	log     *zap.Logger
}

func NewRedisPublisher(rdb *redis.Client, channel string, breaker *Breaker, log *zap.Logger) *RedisPublisher {
	if channel == "" {
		channel = DefaultChannel
	}
	if breaker == nil {
		breaker = NewBreaker(5, 0)
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &RedisPublisher{rdb: rdb, channel: channel, breaker: breaker, log: log}
}

func (p *RedisPublisher) Channel() string { return p.channel }

func (p *RedisPublisher) Publish(ctx context.Context, n model.ChangeNotification) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	if !p.breaker.TryAcquire() {
		return ErrBreakerOpen
	}
	if err := p.rdb.Publish(ctx, p.channel, payload).Err(); err != nil {
		p.breaker.OnFailure()
		return fmt.Errorf("redis publish %s: %w", p.channel, err)
	}
	p.breaker.OnSuccess()
	return nil
}

// Subscribe streams notifications published after the subscription is
// confirmed. The channel closes when ctx is done or the connection drops.
// There is no replay.
func (p *RedisPublisher) Subscribe(ctx context.Context) (<-chan model.ChangeNotification, error) {
	ps := p.rdb.Subscribe(ctx, p.channel)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("redis subscribe %s: %w", p.channel, err)
	}

	out := make(chan model.ChangeNotification)
	go func() {
		defer close(out)
		defer func() { _ = ps.Close() }()

		msgs := ps.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case m, ok := <-msgs:
				if !ok {
					return
				}
				var n model.ChangeNotification
				if err := json.Unmarshal([]byte(m.Payload), &n); err != nil {
					p.log.Warn("dropping undecodable change notification", zap.Error(err))
					continue
				}
				select {
				case out <- n:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}
