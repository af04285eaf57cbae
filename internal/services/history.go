package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tablemind/rulebook-backend/internal/domain"
	"github.com/tablemind/rulebook-backend/internal/platform/envutil"
	"github.com/tablemind/rulebook-backend/internal/platform/logger"
)

// HistoryStore keeps per-session conversation transcripts. Turns come back
// oldest first. Stores cap the transcript length; only the most recent
// turns survive.
type HistoryStore interface {
	Get(ctx context.Context, sessionID string) ([]domain.Turn, error)
	Append(ctx context.Context, sessionID string, turns ...domain.Turn) error
	Clear(ctx context.Context, sessionID string) error
}

// NewHistoryStoreFromEnv returns a Redis-backed store when REDIS_ADDR is
// set, otherwise an in-process store (fine for a single instance, lost on
// restart).
func NewHistoryStoreFromEnv(baseLog *logger.Logger) HistoryStore {
	maxTurns := envutil.Int("CHAT_HISTORY_MAX_TURNS", 20)
	if maxTurns <= 0 {
		maxTurns = 20
	}

	addr := envutil.String("REDIS_ADDR", "")
	if addr == "" {
		baseLog.Info("Chat history using in-memory store")
		return NewMemoryHistoryStore(maxTurns)
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: envutil.String("REDIS_PASSWORD", ""),
		DB:       envutil.Int("REDIS_DB", 0),
	})
	ttl := envutil.Duration("CHAT_HISTORY_TTL_SECONDS", 24*time.Hour)
	baseLog.Info("Chat history using redis store", "addr", addr, "ttl", ttl.String())
	return NewRedisHistoryStore(client, maxTurns, ttl, baseLog)
}

// -------------------- In-memory --------------------

type memoryHistoryStore struct {
	mu       sync.Mutex
	sessions map[string][]domain.Turn
	maxTurns int
}

func NewMemoryHistoryStore(maxTurns int) HistoryStore {
	return &memoryHistoryStore{
		sessions: make(map[string][]domain.Turn),
		maxTurns: maxTurns,
	}
}

func (s *memoryHistoryStore) Get(_ context.Context, sessionID string) ([]domain.Turn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	turns := s.sessions[sessionID]
	out := make([]domain.Turn, len(turns))
	copy(out, turns)
	return out, nil
}

func (s *memoryHistoryStore) Append(_ context.Context, sessionID string, turns ...domain.Turn) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	merged := append(s.sessions[sessionID], turns...)
	if len(merged) > s.maxTurns {
		merged = merged[len(merged)-s.maxTurns:]
	}
	s.sessions[sessionID] = merged
	return nil
}

func (s *memoryHistoryStore) Clear(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
	return nil
}

// -------------------- Redis --------------------

type redisHistoryStore struct {
	client   *redis.Client
	log      *logger.Logger
	maxTurns int
	ttl      time.Duration
}

func NewRedisHistoryStore(client *redis.Client, maxTurns int, ttl time.Duration, baseLog *logger.Logger) HistoryStore {
	return &redisHistoryStore{
		client:   client,
		log:      baseLog.With("service", "RedisHistoryStore"),
		maxTurns: maxTurns,
		ttl:      ttl,
	}
}

func historyKey(sessionID string) string {
	return "chat:history:" + sessionID
}

func (s *redisHistoryStore) Get(ctx context.Context, sessionID string) ([]domain.Turn, error) {
	raw, err := s.client.LRange(ctx, historyKey(sessionID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("history lrange: %w", err)
	}
	turns := make([]domain.Turn, 0, len(raw))
	for _, item := range raw {
		var t domain.Turn
		if err := json.Unmarshal([]byte(item), &t); err != nil {
			// One bad entry should not wedge the whole session.
			s.log.Warn("Skipping corrupt history entry", "session_id", sessionID, "error", err.Error())
			continue
		}
		turns = append(turns, t)
	}
	return turns, nil
}

func (s *redisHistoryStore) Append(ctx context.Context, sessionID string, turns ...domain.Turn) error {
	if len(turns) == 0 {
		return nil
	}
	key := historyKey(sessionID)

	values := make([]interface{}, 0, len(turns))
	for _, t := range turns {
		raw, err := json.Marshal(t)
		if err != nil {
			return fmt.Errorf("history marshal: %w", err)
		}
		values = append(values, raw)
	}

	pipe := s.client.TxPipeline()
	pipe.RPush(ctx, key, values...)
	pipe.LTrim(ctx, key, int64(-s.maxTurns), -1)
	pipe.Expire(ctx, key, s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("history append: %w", err)
	}
	return nil
}

func (s *redisHistoryStore) Clear(ctx context.Context, sessionID string) error {
	if err := s.client.Del(ctx, historyKey(sessionID)).Err(); err != nil {
		return fmt.Errorf("history clear: %w", err)
	}
	return nil
}
