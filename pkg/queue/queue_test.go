package queue

import (
	"context"
	"testing"
)

type trigger struct {
	Job string `json:"job"`
}

func TestMemoryQueueFIFO(t *testing.T) {
	ctx := context.Background()
	q := NewMemoryQueue()
	if _, ok, _ := q.Pop(ctx); ok {
		t.Fatalf("empty queue popped a message")
	}
	id1, _ := q.Push(ctx, "job", trigger{Job: "prep"})
	_, _ = q.Push(ctx, "job", trigger{Job: "exits"})
	if n, _ := q.Len(ctx); n != 2 {
		t.Fatalf("Len = %d", n)
	}

	msg, ok, err := q.Pop(ctx)
	if err != nil || !ok || msg.ID != id1 {
		t.Fatalf("expected first message, got %+v %v %v", msg, ok, err)
	}
	p, err := ParsePayload[trigger](msg)
	if err != nil || p.Job != "prep" {
		t.Fatalf("ParsePayload = %+v, %v", p, err)
	}

	_ = q.DeadLetter(ctx, msg)
	if dl := q.DeadLetters(); len(dl) != 1 || dl[0].ID != id1 {
		t.Fatalf("dead letter not recorded: %+v", dl)
	}
}

func TestParsePayloadEmpty(t *testing.T) {
	p, err := ParsePayload[trigger](Message{Type: "job"})
	if err != nil || p.Job != "" {
		t.Fatalf("empty payload should decode to zero value, got %+v %v", p, err)
	}
}
