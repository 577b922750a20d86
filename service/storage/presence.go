package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	redis2 "PSession/service/storage/redis"

	"github.com/redis/go-redis/v9"
)

// PresenceConfig drives the Redis-side mirror of live connections. The
// document store stays authoritative; the mirror only answers "is this
// connection still heartbeating" and lets a dead gateway's entries expire
// on their own.
type PresenceConfig struct {
	NodeID      string        // gateway node id, part of every key
	TTL         time.Duration // connection key TTL, renewed on heartbeat
	ChannelName string        // pub/sub channel for offline notifications
}

// Removes a single connection key and drops it from the node index.
// KEYS[1] = node index, ARGV[1] = connection key.
// Returns 1 if the key existed, 0 otherwise (idempotent).
const luaOfflineOne = `
local nodeZ = KEYS[1]
local kConn = ARGV[1]
local existed = redis.call("DEL", kConn)
redis.call("ZREM", nodeZ, kConn)
return existed
`

// Drops every connection whose score (expiry) is in the past.
// KEYS[1] = node index, ARGV[1] = nowUnix.
// Returns the removed connection keys.
const luaSweepExpired = `
local nodeZ = KEYS[1]
local now   = tonumber(ARGV[1])
local victims = redis.call("ZRANGEBYSCORE", nodeZ, "-inf", now)
for _, v in ipairs(victims) do
  redis.call("ZREM", nodeZ, v)
  redis.call("DEL", v)
end
if redis.call("ZCARD", nodeZ) > 0 then
  redis.call("EXPIRE", nodeZ, 3600)
end
return victims
`

type PresenceStore struct {
	conf       PresenceConfig
	luaOffline *redis.Script
	luaSweep   *redis.Script
}

func NewPresenceStore(conf PresenceConfig) *PresenceStore {
	if conf.TTL <= 0 {
		conf.TTL = 2 * time.Minute
	}
	return &PresenceStore{
		conf:       conf,
		luaOffline: redis.NewScript(luaOfflineOne),
		luaSweep:   redis.NewScript(luaSweepExpired),
	}
}

func (p *PresenceStore) connKey(connID string) string {
	return fmt.Sprintf("sess:%s:id:%s", p.conf.NodeID, connID)
}

func (p *PresenceStore) nodeIndexKey() string {
	return fmt.Sprintf("sessidx:%s", p.conf.NodeID)
}

// Connect registers a connection in the mirror.
func (p *PresenceStore) Connect(ctx context.Context, connID string) error {
	kConn := p.connKey(connID)
	zNode := p.nodeIndexKey()
	expAt := time.Now().Add(p.conf.TTL).Unix()

	pipe := redis2.GetRedis().TxPipeline()
	pipe.SetEx(ctx, kConn, "1", p.conf.TTL)
	pipe.ZAdd(ctx, zNode, redis.Z{Score: float64(expAt), Member: kConn})
	pipe.Expire(ctx, zNode, p.conf.TTL*2)
	_, err := pipe.Exec(ctx)
	return err
}

// Heartbeat renews a connection's TTL; call it from the pong handler.
func (p *PresenceStore) Heartbeat(ctx context.Context, connID string) error {
	kConn := p.connKey(connID)
	zNode := p.nodeIndexKey()
	expAt := time.Now().Add(p.conf.TTL).Unix()

	pipe := redis2.GetRedis().TxPipeline()
	pipe.Expire(ctx, kConn, p.conf.TTL)
	pipe.ZAdd(ctx, zNode, redis.Z{Score: float64(expAt), Member: kConn})
	_, err := pipe.Exec(ctx)
	return err
}

// Offline removes a single connection (idempotent). Optionally publishes
// an OFFLINE event so sibling nodes can drop any cached state.
func (p *PresenceStore) Offline(ctx context.Context, connID string, publish bool, reason string) (bool, error) {
	kConn := p.connKey(connID)
	zNode := p.nodeIndexKey()

	rc, err := p.luaOffline.Run(ctx, redis2.GetRedis(), []string{zNode}, kConn).Int64()
	if err != nil {
		return false, err
	}
	ok := rc == 1
	if publish && ok && p.conf.ChannelName != "" {
		msg := fmt.Sprintf("OFFLINE:%s:%s", kConn, reason)
		_ = redis2.GetRedis().Publish(ctx, p.conf.ChannelName, msg).Err()
	}
	return ok, nil
}

// SweepExpired removes all connections whose heartbeat lapsed and returns
// their connection ids.
func (p *PresenceStore) SweepExpired(ctx context.Context) ([]string, error) {
	zNode := p.nodeIndexKey()
	now := time.Now().Unix()

	victims, err := p.luaSweep.Run(ctx, redis2.GetRedis(), []string{zNode}, now).StringSlice()
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(victims))
	for _, k := range victims {
		if idx := strings.LastIndex(k, ":id:"); idx >= 0 {
			out = append(out, k[idx+4:])
		}
	}
	return out, nil
}
