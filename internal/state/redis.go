// internal/state/redis.go
package state

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/user/ohime/internal/types"
)

// RedisConversationStore keeps conversation state and alarms in Redis, as an
// alternative to SQLite for a single relay process. The actor caches state
// and serializes chats in memory, so two processes must not share a prefix.
// State lives at <prefix>:state:<chat>; alarms form a sorted set
// <prefix>:alarms scored by due time in unix milliseconds.
type RedisConversationStore struct {
	client *redis.Client
	prefix string
}

// NewRedisConversationStore connects to addr and verifies the connection.
func NewRedisConversationStore(ctx context.Context, addr, prefix string) (*RedisConversationStore, error) {
	if prefix == "" {
		prefix = "ohime"
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return &RedisConversationStore{client: client, prefix: prefix}, nil
}

// Close closes the Redis client.
func (s *RedisConversationStore) Close() error {
	return s.client.Close()
}

func (s *RedisConversationStore) stateKey(chatID types.ChatID) string {
	return s.prefix + ":state:" + chatID.String()
}

func (s *RedisConversationStore) alarmsKey() string {
	return s.prefix + ":alarms"
}

func (s *RedisConversationStore) SaveState(ctx context.Context, st *types.ConversationState) error {
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("marshal conversation state: %w", err)
	}
	if err := s.client.Set(ctx, s.stateKey(st.ChatID), data, 0).Err(); err != nil {
		return fmt.Errorf("save state for chat %d: %w", st.ChatID, err)
	}
	return nil
}

func (s *RedisConversationStore) LoadState(ctx context.Context, chatID types.ChatID) (*types.ConversationState, error) {
	data, err := s.client.Get(ctx, s.stateKey(chatID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load state for chat %d: %w", chatID, err)
	}
	var st types.ConversationState
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("decode state for chat %d: %w", chatID, err)
	}
	return &st, nil
}

func (s *RedisConversationStore) DeleteState(ctx context.Context, chatID types.ChatID) error {
	if err := s.client.Del(ctx, s.stateKey(chatID)).Err(); err != nil {
		return fmt.Errorf("delete state for chat %d: %w", chatID, err)
	}
	return nil
}

func (s *RedisConversationStore) SetAlarm(ctx context.Context, chatID types.ChatID, due time.Time) error {
	z := redis.Z{Score: float64(due.UnixMilli()), Member: chatID.String()}
	if err := s.client.ZAdd(ctx, s.alarmsKey(), z).Err(); err != nil {
		return fmt.Errorf("set alarm for chat %d: %w", chatID, err)
	}
	return nil
}

func (s *RedisConversationStore) GetAlarm(ctx context.Context, chatID types.ChatID) (time.Time, bool, error) {
	score, err := s.client.ZScore(ctx, s.alarmsKey(), chatID.String()).Result()
	if err == redis.Nil {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("get alarm for chat %d: %w", chatID, err)
	}
	return time.UnixMilli(int64(score)), true, nil
}

func (s *RedisConversationStore) DeleteAlarm(ctx context.Context, chatID types.ChatID) error {
	if err := s.client.ZRem(ctx, s.alarmsKey(), chatID.String()).Err(); err != nil {
		return fmt.Errorf("delete alarm for chat %d: %w", chatID, err)
	}
	return nil
}

// ClaimAlarm removes the chat's alarm; ZREM's count says whether this call
// was the one that removed it.
func (s *RedisConversationStore) ClaimAlarm(ctx context.Context, chatID types.ChatID) (bool, error) {
	n, err := s.client.ZRem(ctx, s.alarmsKey(), chatID.String()).Result()
	if err != nil {
		return false, fmt.Errorf("claim alarm for chat %d: %w", chatID, err)
	}
	return n > 0, nil
}

func (s *RedisConversationStore) PendingAlarms(ctx context.Context) ([]types.Alarm, error) {
	zs, err := s.client.ZRangeWithScores(ctx, s.alarmsKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list alarms: %w", err)
	}
	out := make([]types.Alarm, 0, len(zs))
	for _, z := range zs {
		member, _ := z.Member.(string)
		id, err := strconv.ParseInt(member, 10, 64)
		if err != nil {
			continue
		}
		out = append(out, types.Alarm{ChatID: types.ChatID(id), Due: time.UnixMilli(int64(z.Score))})
	}
	return out, nil
}
