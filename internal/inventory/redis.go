package inventory

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/Domenick1991/railbooking/internal/domain"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	redisMissing  = -2
	redisNoSpace  = -1
	redisStale    = -3
	redisKeyspace = "inv"

	releasedTokensTTL = 30 * 24 * time.Hour
)

// Each script runs atomically on the Redis server, so check and increment are one step.
var (
	ensureScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then return 0 end
redis.call('HSET', KEYS[1], 'total', ARGV[1], 'held', 0)
return 1`)

	reserveScript = redis.NewScript(`
local total = redis.call('HGET', KEYS[1], 'total')
if not total then return -2 end
local held = tonumber(redis.call('HGET', KEYS[1], 'held') or '0')
local n = tonumber(ARGV[1])
if tonumber(total) - held < n then return -1 end
redis.call('HINCRBY', KEYS[1], 'version', 1)
return redis.call('HINCRBY', KEYS[1], 'held', n)`)

	releaseScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then return -2 end
local held = tonumber(redis.call('HGET', KEYS[1], 'held') or '0') - tonumber(ARGV[1])
if held < 0 then held = 0 end
redis.call('HSET', KEYS[1], 'held', held)
redis.call('HINCRBY', KEYS[1], 'version', 1)
return held`)

	// KEYS[2] is the set of applied tokens; it shares the hash tag of KEYS[1].
	releaseOnceScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then return -2 end
if redis.call('SADD', KEYS[2], ARGV[2]) == 0 then return 0 end
redis.call('PEXPIRE', KEYS[2], ARGV[3])
local held = tonumber(redis.call('HGET', KEYS[1], 'held') or '0') - tonumber(ARGV[1])
if held < 0 then held = 0 end
redis.call('HSET', KEYS[1], 'held', held)
redis.call('HINCRBY', KEYS[1], 'version', 1)
return 1`)

	reconcileScript = redis.NewScript(`
local total = redis.call('HGET', KEYS[1], 'total')
if not total then return -2 end
if tonumber(redis.call('HGET', KEYS[1], 'version') or '0') ~= tonumber(ARGV[2]) then return -3 end
local held = tonumber(ARGV[1])
if held < 0 then held = 0 end
if held > tonumber(total) then held = tonumber(total) end
redis.call('HSET', KEYS[1], 'held', held)
redis.call('HINCRBY', KEYS[1], 'version', 1)
return held`)
)

// RedisStore keeps each counter in a hash {total, held, version}.
type RedisStore struct {
	client  redis.Scripter
	timeout time.Duration
}

func NewRedisStore(client redis.Scripter, timeout time.Duration) *RedisStore {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &RedisStore{client: client, timeout: timeout}
}

func (s *RedisStore) Ensure(ctx context.Context, key domain.InventoryKey, totalSeats int) error {
	if totalSeats < 0 {
		return domain.InvalidInput("inventory.Ensure", "totalSeats", "must not be negative")
	}
	_, err := s.run(ctx, "inventory.Ensure", ensureScript, key, totalSeats)
	return err
}

func (s *RedisStore) TryReserve(ctx context.Context, key domain.InventoryKey, count int) (Reservation, error) {
	const op = "inventory.TryReserve"
	if err := validateCount(op, count); err != nil {
		return Reservation{}, err
	}
	res, err := s.run(ctx, op, reserveScript, key, count)
	if err != nil {
		return Reservation{}, err
	}
	if res == redisNoSpace {
		return Reservation{}, domain.E(domain.KindCapacityExceeded, op, "not enough seats available")
	}
	return Reservation{Key: key, Count: count, Token: uuid.NewString()}, nil
}

func (s *RedisStore) Release(ctx context.Context, key domain.InventoryKey, count int) error {
	const op = "inventory.Release"
	if err := validateCount(op, count); err != nil {
		return err
	}
	_, err := s.run(ctx, op, releaseScript, key, count)
	return err
}

func (s *RedisStore) ReleaseOnce(ctx context.Context, key domain.InventoryKey, count int, token string) (bool, error) {
	const op = "inventory.ReleaseOnce"
	if err := validateCount(op, count); err != nil {
		return false, err
	}
	if err := validateToken(op, token); err != nil {
		return false, err
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	res, err := releaseOnceScript.Run(ctx, s.client, []string{redisKey(key), releasedKey(key)},
		count, token, releasedTokensTTL.Milliseconds()).Int64()
	if err != nil {
		return false, classifyRedis(op, err)
	}
	if res == redisMissing {
		return false, domain.NotFound(op, "inventory")
	}
	return res == 1, nil
}

func (s *RedisStore) CapacityOf(ctx context.Context, key domain.InventoryKey) (int, int, error) {
	inv, err := s.read(ctx, "inventory.CapacityOf", key)
	if err != nil {
		return 0, 0, err
	}
	return inv.TotalSeats, inv.HeldSeats, nil
}

func (s *RedisStore) Snapshot(ctx context.Context, key domain.InventoryKey) (domain.SeatClassInventory, error) {
	return s.read(ctx, "inventory.Snapshot", key)
}

func (s *RedisStore) read(ctx context.Context, op string, key domain.InventoryKey) (domain.SeatClassInventory, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	client, ok := s.client.(redis.Cmdable)
	if !ok {
		return domain.SeatClassInventory{}, domain.E(domain.KindInternal, op, "redis client does not support HMGET")
	}
	vals, err := client.HMGet(ctx, redisKey(key), "total", "held", "version").Result()
	if err != nil {
		return domain.SeatClassInventory{}, classifyRedis(op, err)
	}
	if len(vals) != 3 || vals[0] == nil {
		return domain.SeatClassInventory{}, domain.NotFound(op, "inventory")
	}
	inv := domain.SeatClassInventory{Key: key}
	if _, err := fmt.Sscan(fmt.Sprint(vals[0]), &inv.TotalSeats); err != nil {
		return domain.SeatClassInventory{}, domain.Wrap(domain.KindInternal, op, err)
	}
	if vals[1] != nil {
		if _, err := fmt.Sscan(fmt.Sprint(vals[1]), &inv.HeldSeats); err != nil {
			return domain.SeatClassInventory{}, domain.Wrap(domain.KindInternal, op, err)
		}
	}
	if vals[2] != nil {
		if _, err := fmt.Sscan(fmt.Sprint(vals[2]), &inv.Version); err != nil {
			return domain.SeatClassInventory{}, domain.Wrap(domain.KindInternal, op, err)
		}
	}
	return inv, nil
}

func (s *RedisStore) Reconcile(ctx context.Context, key domain.InventoryKey, expectedVersion int64, held int) error {
	res, err := s.run(ctx, "inventory.Reconcile", reconcileScript, key, held, expectedVersion)
	if err != nil {
		return err
	}
	if res == redisStale {
		return ErrStaleInventory
	}
	return nil
}

func (s *RedisStore) run(ctx context.Context, op string, script *redis.Script, key domain.InventoryKey, args ...any) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	res, err := script.Run(ctx, s.client, []string{redisKey(key)}, args...).Int64()
	if err != nil {
		return 0, classifyRedis(op, err)
	}
	if res == redisMissing {
		return 0, domain.NotFound(op, "inventory")
	}
	return res, nil
}

func redisKey(key domain.InventoryKey) string {
	return fmt.Sprintf("%s:{%d:%s}:%s", redisKeyspace, key.TrainID, key.ClassID, domain.FormatDate(key.JourneyDate))
}

func releasedKey(key domain.InventoryKey) string {
	return redisKey(key) + ":released"
}

func classifyRedis(op string, err error) error {
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return domain.Wrap(domain.KindTransient, op, err)
	case errors.As(err, &netErr):
		return domain.Wrap(domain.KindTransient, op, err)
	case errors.Is(err, redis.ErrClosed):
		return domain.Wrap(domain.KindTransient, op, err)
	}
	return domain.Wrap(domain.KindInternal, op, err)
}

var _ Store = (*RedisStore)(nil)
