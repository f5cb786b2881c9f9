package session

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	replaceStatusNotFound int64 = 0
	replaceStatusMismatch int64 = 1
	replaceStatusSwapped  int64 = 2
)

// replaceScript performs the compare-and-swap at the store so two racing
// rotations for the same session cannot both win. KEYS[1] is the record hash,
// KEYS[2] the subject index. ARGV: old id, new id, rotated-at millis,
// session id, ttl millis.
const replaceScript = `
local current = redis.call("HGET", KEYS[1], "token_id")
if not current then
  return 0
end
if current ~= ARGV[1] then
  return 1
end
redis.call("HSET", KEYS[1], "token_id", ARGV[2], "rotated_at", ARGV[3])
redis.call("PEXPIRE", KEYS[1], ARGV[5])
redis.call("SADD", KEYS[2], ARGV[4])
return 2
`

var replaceLua = redis.NewScript(replaceScript)

// RedisRegistry is a Registry backed by a shared Redis instance. Atomicity of
// Replace comes from Lua script execution; no client-side locking is used.
type RedisRegistry struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisRegistry creates a RedisRegistry. prefix namespaces every key so
// several deployments can share one Redis.
func NewRedisRegistry(client redis.UniversalClient, prefix string) *RedisRegistry {
	if prefix == "" {
		prefix = "ac"
	}
	return &RedisRegistry{client: client, prefix: prefix}
}

func (r *RedisRegistry) recordKey(subjectID, sessionID string) string {
	return r.prefix + ":s:" + subjectID + ":" + sessionID
}

func (r *RedisRegistry) indexKey(subjectID string) string {
	return r.prefix + ":u:" + subjectID
}

// Register stores rec and adds the session to the subject index in one
// transaction.
func (r *RedisRegistry) Register(ctx context.Context, rec Record, ttl time.Duration) error {
	if rec.SubjectID == "" || rec.SessionID == "" || rec.TokenID == "" {
		return errors.New("session: incomplete record")
	}
	if ttl <= 0 {
		return errors.New("session: non-positive ttl")
	}

	key := r.recordKey(rec.SubjectID, rec.SessionID)
	idx := r.indexKey(rec.SubjectID)

	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key,
			"token_id", rec.TokenID,
			"issued_at", strconv.FormatInt(rec.IssuedAt.UnixMilli(), 10),
			"rotated_at", strconv.FormatInt(rec.LastRotatedAt.UnixMilli(), 10),
		)
		pipe.PExpire(ctx, key, ttl)
		pipe.SAdd(ctx, idx, rec.SessionID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// IsCurrent reads the record's current identifier. Expired and revoked
// sessions read as not current.
func (r *RedisRegistry) IsCurrent(ctx context.Context, subjectID, sessionID, tokenID string) (bool, error) {
	current, err := r.client.HGet(ctx, r.recordKey(subjectID, sessionID), "token_id").Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return current == tokenID, nil
}

// Replace swaps oldID for newID via the CAS script and restarts the ttl
// window for the rotated session.
func (r *RedisRegistry) Replace(ctx context.Context, subjectID, sessionID, oldID, newID string, ttl time.Duration) error {
	keys := []string{r.recordKey(subjectID, sessionID), r.indexKey(subjectID)}
	argv := []interface{}{
		oldID,
		newID,
		strconv.FormatInt(time.Now().UnixMilli(), 10),
		sessionID,
		strconv.FormatInt(ttl.Milliseconds(), 10),
	}

	status, err := replaceLua.Run(ctx, r.client, keys, argv...).Int64()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	switch status {
	case replaceStatusSwapped:
		return nil
	case replaceStatusMismatch:
		return ErrNotCurrent
	default:
		return ErrNotFound
	}
}

// Revoke deletes the record and its index entry. Deleting an absent session
// succeeds.
func (r *RedisRegistry) Revoke(ctx context.Context, subjectID, sessionID string) error {
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, r.recordKey(subjectID, sessionID))
		pipe.SRem(ctx, r.indexKey(subjectID), sessionID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// RevokeAll reads the subject index and deletes every session it names.
// The read and the deletes are separate commands: a session registered
// between them survives this call. That is acceptable, since it was created
// by a login that committed after the revocation began.
func (r *RedisRegistry) RevokeAll(ctx context.Context, subjectID string) (int, error) {
	idx := r.indexKey(subjectID)
	sessionIDs, err := r.client.SMembers(ctx, idx).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if len(sessionIDs) == 0 {
		return 0, nil
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, sid := range sessionIDs {
			pipe.Del(ctx, r.recordKey(subjectID, sid))
		}
		pipe.Del(ctx, idx)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return len(sessionIDs), nil
}

var _ Registry = (*RedisRegistry)(nil)
