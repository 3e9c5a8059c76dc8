package queue

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"sync"
	"time"

	"github.com/google/uuid"
)

// WorkQueue is the contract both the real Queue (SQS) and Memory
// (tests) satisfy.
type WorkQueue interface {
	Publish(ctx context.Context, jobID uuid.UUID) error
	Receive(ctx context.Context, max int32, wait time.Duration) ([]Message, error)
	Delete(ctx context.Context, receiptHandle string) error
}

type memoryItem struct {
	jobID       uuid.UUID
	receipt     string
	visibleFrom time.Time
}

// Memory is an in-process at-least-once queue used by tests and local
// development in place of real SQS. It reproduces the visibility-timeout
// redelivery semantics an at-least-once queue requires: a received
// message is invisible to other receivers until its visibility
// timeout elapses without a matching Delete.
type Memory struct {
	mu         sync.Mutex
	items      []*memoryItem
	visibility time.Duration
}

func NewMemory(visibility time.Duration) *Memory {
	return &Memory{visibility: visibility}
}

func (m *Memory) Publish(ctx context.Context, jobID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items = append(m.items, &memoryItem{jobID: jobID, visibleFrom: time.Time{}})
	return nil
}

func (m *Memory) Receive(ctx context.Context, max int32, wait time.Duration) ([]Message, error) {
	deadline := time.Now().Add(wait)
	for {
		m.mu.Lock()
		var out []Message
		now := time.Now()
		for _, it := range m.items {
			if len(out) >= int(max) {
				break
			}
			if it.visibleFrom.After(now) {
				continue
			}
			it.receipt = newReceipt()
			it.visibleFrom = now.Add(m.visibility)
			out = append(out, Message{JobID: it.jobID, ReceiptHandle: it.receipt})
		}
		m.mu.Unlock()

		if len(out) > 0 || time.Now().After(deadline) {
			return out, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func (m *Memory) Delete(ctx context.Context, receiptHandle string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, it := range m.items {
		if it.receipt == receiptHandle {
			m.items = append(m.items[:i], m.items[i+1:]...)
			return nil
		}
	}
	return nil
}

func newReceipt() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
