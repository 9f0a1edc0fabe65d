package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const sessionKeyPrefix = "session:"

// RedisStore keeps each session as a Redis list of JSON turns plus a small
// metadata key. Every write slides the TTL on both keys, so Redis itself
// evicts idle sessions.
type RedisStore struct {
	redis  *redis.Client
	tracer trace.Tracer
	opts   options
}

var _ Store = (*RedisStore)(nil)

func NewRedisStore(client *redis.Client, opts ...Option) *RedisStore {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &RedisStore{
		redis:  client,
		tracer: otel.Tracer("clinic.internal.session.redis"),
		opts:   o,
	}
}

func (s *RedisStore) GetOrCreate(ctx context.Context, id string) (*Session, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, ErrInvalidID
	}

	ctx, span := s.tracer.Start(ctx, "session.redis.get_or_create")
	defer span.End()

	now := s.opts.now().UTC()
	meta, turns := metaKey(id), turnsKey(id)

	var createdCmd *redis.StringCmd
	var turnsCmd *redis.StringSliceCmd
	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SetNX(ctx, meta, now.Format(time.RFC3339Nano), s.opts.ttl)
		pipe.Expire(ctx, meta, s.opts.ttl)
		pipe.Expire(ctx, turns, s.opts.ttl)
		createdCmd = pipe.Get(ctx, meta)
		turnsCmd = pipe.LRange(ctx, turns, 0, -1)
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("session: get or create %s: %w", id, err)
	}

	sess := &Session{ID: id, CreatedAt: now, LastSeen: now}
	if created, err := time.Parse(time.RFC3339Nano, createdCmd.Val()); err == nil {
		sess.CreatedAt = created
	}
	sess.Turns = decodeTurns(turnsCmd.Val(), span)
	return sess, nil
}

func (s *RedisStore) AppendTurn(ctx context.Context, id, userMessage, agentReply string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return ErrInvalidID
	}

	now := s.opts.now().UTC()
	data, err := json.Marshal(Turn{UserMessage: userMessage, AgentReply: agentReply, At: now})
	if err != nil {
		return fmt.Errorf("session: marshal turn: %w", err)
	}

	ctx, span := s.tracer.Start(ctx, "session.redis.append")
	defer span.End()

	meta, turns := metaKey(id), turnsKey(id)
	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SetNX(ctx, meta, now.Format(time.RFC3339Nano), s.opts.ttl)
		pipe.Expire(ctx, meta, s.opts.ttl)
		pipe.RPush(ctx, turns, data)
		pipe.LTrim(ctx, turns, int64(-s.opts.maxTurns), -1)
		pipe.Expire(ctx, turns, s.opts.ttl)
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("session: append turn %s: %w", id, err)
	}
	return nil
}

func (s *RedisStore) RenderContext(ctx context.Context, id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", ErrInvalidID
	}

	ctx, span := s.tracer.Start(ctx, "session.redis.render")
	defer span.End()

	raw, err := s.redis.LRange(ctx, turnsKey(id), int64(-s.opts.maxContextTurns), -1).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", nil
		}
		span.RecordError(err)
		return "", fmt.Errorf("session: render %s: %w", id, err)
	}
	return Render(decodeTurns(raw, span), 0), nil
}

func decodeTurns(raw []string, span trace.Span) []Turn {
	out := make([]Turn, 0, len(raw))
	for _, item := range raw {
		var t Turn
		if err := json.Unmarshal([]byte(item), &t); err != nil {
			span.RecordError(err)
			continue
		}
		out = append(out, t)
	}
	return out
}

func metaKey(id string) string {
	return sessionKeyPrefix + id + ":meta"
}

func turnsKey(id string) string {
	return sessionKeyPrefix + id + ":turns"
}
