package waitlist

import (
	"context"
	"fmt"
	"sync"
	"time"

	"evently-waitlist/internal/shared/constants"
	"evently-waitlist/pkg/logger"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// EventLocker serializes work on one event's queue
type EventLocker interface {
	Lock(ctx context.Context, eventID uuid.UUID) (unlock func(), err error)
}

// localLocker is a per-event mutex for a single process. Slots are channels so
// waiting honours context cancellation.
type localLocker struct {
	mu    sync.Mutex
	slots map[uuid.UUID]*lockSlot
}

type lockSlot struct {
	ch   chan struct{}
	refs int
}

func NewLocalLocker() EventLocker {
	return &localLocker{slots: make(map[uuid.UUID]*lockSlot)}
}

func (l *localLocker) Lock(ctx context.Context, eventID uuid.UUID) (func(), error) {
	l.mu.Lock()
	slot, ok := l.slots[eventID]
	if !ok {
		slot = &lockSlot{ch: make(chan struct{}, 1)}
		l.slots[eventID] = slot
	}
	slot.refs++
	l.mu.Unlock()

	select {
	case slot.ch <- struct{}{}:
		return func() {
			<-slot.ch
			l.release(eventID, slot)
		}, nil
	case <-ctx.Done():
		l.release(eventID, slot)
		return nil, fmt.Errorf("waiting for event lock %s: %w", eventID, ctx.Err())
	}
}

func (l *localLocker) release(eventID uuid.UUID, slot *lockSlot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	slot.refs--
	if slot.refs == 0 {
		delete(l.slots, eventID)
	}
}

// releaseScript deletes the lock only if this holder still owns it
var releaseScript = redis.NewScript(`
	if redis.call("GET", KEYS[1]) == ARGV[1] then
		return redis.call("DEL", KEYS[1])
	end
	return 0
`)

// redisLocker extends the local lock across processes with a SET NX token.
// The TTL bounds how long a crashed holder can block an event.
type redisLocker struct {
	local  EventLocker
	client *redis.Client
	ttl    time.Duration
	wait   time.Duration
	poll   time.Duration
	logger *logger.Logger
}

// NewRedisLocker builds a cross-process locker. log may be nil.
func NewRedisLocker(client *redis.Client, ttl, wait time.Duration, log *logger.Logger) EventLocker {
	return &redisLocker{
		local:  NewLocalLocker(),
		client: client,
		ttl:    ttl,
		wait:   wait,
		poll:   50 * time.Millisecond,
		logger: logger.OrDefault(log).WithComponent("locker"),
	}
}

func (l *redisLocker) Lock(ctx context.Context, eventID uuid.UUID) (func(), error) {
	unlockLocal, err := l.local.Lock(ctx, eventID)
	if err != nil {
		return nil, err
	}

	key := constants.BuildWaitlistLockKey(eventID.String())
	token := uuid.NewString()
	deadline := time.Now().Add(l.wait)

	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			unlockLocal()
			return nil, fmt.Errorf("failed to acquire lock for event %s: %w", eventID, err)
		}
		if ok {
			return func() {
				// use a fresh context so a cancelled caller still releases
				releaseCtx, cancel := context.WithTimeout(context.Background(), time.Second)
				defer cancel()
				l.releaseRemote(releaseCtx, eventID, key, token)
				unlockLocal()
			}, nil
		}
		if time.Now().After(deadline) {
			unlockLocal()
			return nil, fmt.Errorf("could not acquire lock for event %s", eventID)
		}

		select {
		case <-ctx.Done():
			unlockLocal()
			return nil, ctx.Err()
		case <-time.After(l.poll):
		}
	}
}

// releaseRemote drops the Redis key. A failed release leaves the key until
// its TTL runs out, so other instances wait that long for the event.
func (l *redisLocker) releaseRemote(ctx context.Context, eventID uuid.UUID, key, token string) {
	deleted, err := releaseScript.Run(ctx, l.client, []string{key}, token).Int()
	if err != nil {
		l.logger.ErrorWithContext(ctx, "Failed to release event lock", err, map[string]interface{}{
			"event_id": eventID.String(),
			"key":      key,
			"ttl":      l.ttl.String(),
		})
		return
	}
	if deleted == 0 {
		l.logger.WarnContext(ctx, "Event lock expired before release",
			"event_id", eventID.String(),
			"key", key,
		)
	}
}
