package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Queue is a FIFO of typed messages. Pop never blocks: an empty queue yields ok=false.
type Queue interface {
	Push(ctx context.Context, msgType string, payload interface{}) (string, error)
	Pop(ctx context.Context) (Message, bool, error)
	// DeadLetter parks a message that failed after its last attempt.
	DeadLetter(ctx context.Context, msg Message) error
	Len(ctx context.Context) (int64, error)
}

// Message represents a message in the queue
type Message struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Attempts  int             `json:"attempts"`
	Timestamp time.Time       `json:"timestamp"`
}

func newMessage(msgType string, payload interface{}) (Message, error) {
	msg := Message{ID: uuid.NewString(), Type: msgType, Timestamp: time.Now().UTC()}
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return Message{}, fmt.Errorf("marshal payload: %w", err)
		}
		msg.Payload = b
	}
	return msg, nil
}

// ParsePayload decodes a message payload into T.
func ParsePayload[T any](msg Message) (*T, error) {
	var result T
	if len(msg.Payload) == 0 {
		return &result, nil
	}
	if err := json.Unmarshal(msg.Payload, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal payload: %w", err)
	}
	return &result, nil
}

// MemoryQueue is an in-process Queue.
type MemoryQueue struct {
	mu   sync.Mutex
	msgs []Message
	dlq  []Message
}

func NewMemoryQueue() *MemoryQueue { return &MemoryQueue{} }

func (q *MemoryQueue) Push(_ context.Context, msgType string, payload interface{}) (string, error) {
	msg, err := newMessage(msgType, payload)
	if err != nil {
		return "", err
	}
	q.mu.Lock()
	q.msgs = append(q.msgs, msg)
	q.mu.Unlock()
	return msg.ID, nil
}

func (q *MemoryQueue) Pop(context.Context) (Message, bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.msgs) == 0 {
		return Message{}, false, nil
	}
	msg := q.msgs[0]
	q.msgs = q.msgs[1:]
	return msg, true, nil
}

func (q *MemoryQueue) DeadLetter(_ context.Context, msg Message) error {
	q.mu.Lock()
	q.dlq = append(q.dlq, msg)
	q.mu.Unlock()
	return nil
}

func (q *MemoryQueue) Len(context.Context) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return int64(len(q.msgs)), nil
}

// DeadLetters returns parked messages.
func (q *MemoryQueue) DeadLetters() []Message {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Message, len(q.dlq))
	copy(out, q.dlq)
	return out
}
