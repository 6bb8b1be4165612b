package cache

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	redis "github.com/redis/go-redis/v9"

	"composer/backend/internal/doc"
)

type PresenceCache interface {
	AddMember(ctx context.Context, docID string, userID uint64, username string, ttl time.Duration) error
	GetAliveMembersWithNames(ctx context.Context, docID string) ([]PresenceMember, error)
	SetCaret(ctx context.Context, docID string, userID uint64, caret doc.TextRange, ttl time.Duration) error
	// GetCaret returns false when the user has no live caret.
	GetCaret(ctx context.Context, docID string, userID uint64) (doc.TextRange, bool, error)
}

type redisPresence struct {
	rdb redis.UniversalClient
}

type PresenceMember struct {
	UserID   uint64 `json:"userId"`
	Username string `json:"username,omitempty"`
}

func NewRedisPresence(rdb redis.UniversalClient) PresenceCache {
	return &redisPresence{rdb: rdb}
}

// AddMember also refreshes the member's TTL.
func (p *redisPresence) AddMember(ctx context.Context, docID string, userID uint64, username string, ttl time.Duration) error {
	tx := p.rdb.TxPipeline()
	// score = expireAt (unix seconds), a logical per-member TTL
	expireAt := time.Now().Add(ttl).Unix()
	tx.ZAdd(ctx, roomKey(docID), redis.Z{Score: float64(expireAt), Member: userID})
	tx.HSet(ctx, namesKey(docID), userID, username)
	_, err := tx.Exec(ctx)
	return err
}

func (p *redisPresence) SetCaret(ctx context.Context, docID string, userID uint64, caret doc.TextRange, ttl time.Duration) error {
	b, err := json.Marshal(caret)
	if err != nil {
		return err
	}
	return p.rdb.Set(ctx, caretKey(docID, userID), b, ttl).Err()
}

func (p *redisPresence) GetCaret(ctx context.Context, docID string, userID uint64) (doc.TextRange, bool, error) {
	b, err := p.rdb.Get(ctx, caretKey(docID, userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return doc.TextRange{}, false, nil
	}
	if err != nil {
		return doc.TextRange{}, false, err
	}
	var caret doc.TextRange
	if err := json.Unmarshal(b, &caret); err != nil {
		return doc.TextRange{}, false, err
	}
	return caret, true, nil
}

var pruneExpired = redis.NewScript(`
-- KEYS[1] = roomKey(docID)
-- KEYS[2] = namesKey(docID)
-- ARGV[1] = now (unix seconds)

local expired = redis.call("ZRANGEBYSCORE", KEYS[1], "-inf", ARGV[1])
if #expired > 0 then
	redis.call("ZREMRANGEBYSCORE", KEYS[1], "-inf", ARGV[1])
	redis.call("HDEL", KEYS[2], unpack(expired))
end
return #expired
`)

func (p *redisPresence) GetAliveMembersWithNames(ctx context.Context, docID string) ([]PresenceMember, error) {
	// expireAt <= now counts as expired
	now := time.Now().Unix()
	_, err := pruneExpired.Run(ctx, p.rdb, []string{roomKey(docID), namesKey(docID)}, now).Int()
	if err != nil && err != redis.Nil {
		return nil, err
	}

	aliveIDs, err := p.rdb.ZRangeByScore(ctx, roomKey(docID), &redis.ZRangeBy{
		Min: "(" + strconv.FormatInt(now, 10),
		Max: "+inf",
	}).Result()
	if err != nil && err != redis.Nil {
		return nil, err
	}
	if len(aliveIDs) == 0 {
		return nil, nil
	}
	ids := make([]uint64, 0, len(aliveIDs))
	for _, aliveID := range aliveIDs {
		uid, err := strconv.ParseUint(aliveID, 10, 64)
		if err != nil {
			return nil, err
		}
		ids = append(ids, uid)
	}

	names, err := p.rdb.HMGet(ctx, namesKey(docID), aliveIDs...).Result()
	if err != nil && err != redis.Nil {
		return nil, err
	}
	members := make([]PresenceMember, 0, len(ids))
	for i, v := range names {
		name, _ := v.(string)
		members = append(members, PresenceMember{UserID: ids[i], Username: name})
	}
	return members, nil
}
