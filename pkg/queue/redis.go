package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"sidbot/pkg/logger"
)

// RedisQueue keeps messages in a Redis list: LPUSH on the producer side, RPOP on the consumer.
type RedisQueue struct {
	logger    *logger.Logger
	client    *redis.Client
	keyPrefix string
}

// RedisQueueOption configures RedisQueue.
type RedisQueueOption func(*RedisQueue)

// WithKeyPrefix sets custom key prefix.
func WithKeyPrefix(prefix string) RedisQueueOption {
	return func(r *RedisQueue) {
		r.keyPrefix = prefix
	}
}

func NewRedisQueue(lgr *logger.Logger, client *redis.Client, opts ...RedisQueueOption) *RedisQueue {
	rq := &RedisQueue{logger: lgr, client: client, keyPrefix: "sidbot:queue"}
	for _, opt := range opts {
		opt(rq)
	}
	return rq
}

func (r *RedisQueue) Push(ctx context.Context, msgType string, payload interface{}) (string, error) {
	msg, err := newMessage(msgType, payload)
	if err != nil {
		return "", err
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return "", fmt.Errorf("marshal message: %w", err)
	}
	if err := r.client.LPush(ctx, r.queueKey(), data).Err(); err != nil {
		return "", fmt.Errorf("lpush: %w", err)
	}
	r.logger.Debug("message queued", logger.String("id", msg.ID), logger.String("type", msgType))
	return msg.ID, nil
}

func (r *RedisQueue) Pop(ctx context.Context) (Message, bool, error) {
	data, err := r.client.RPop(ctx, r.queueKey()).Bytes()
	if errors.Is(err, redis.Nil) {
		return Message{}, false, nil
	}
	if err != nil {
		return Message{}, false, fmt.Errorf("rpop: %w", err)
	}
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		r.logger.Error("unmarshal message", logger.Error(err))
		return Message{}, false, fmt.Errorf("unmarshal message: %w", err)
	}
	return msg, true, nil
}

func (r *RedisQueue) DeadLetter(ctx context.Context, msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal dlq: %w", err)
	}
	if err := r.client.LPush(ctx, r.deadLetterKey(), data).Err(); err != nil {
		r.logger.Error("lpush dlq", logger.Error(err))
		return fmt.Errorf("lpush dlq: %w", err)
	}
	return nil
}

func (r *RedisQueue) Len(ctx context.Context) (int64, error) {
	return r.client.LLen(ctx, r.queueKey()).Result()
}

func (r *RedisQueue) queueKey() string {
	return fmt.Sprintf("%s:messages", r.keyPrefix)
}

func (r *RedisQueue) deadLetterKey() string {
	return fmt.Sprintf("%s:dlq", r.keyPrefix)
}

var (
	_ Queue = (*RedisQueue)(nil)
	_ Queue = (*MemoryQueue)(nil)
)
