package transport

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

var (
	ErrSessionRunning = errors.New("a conversation is already running here")
	ErrNoSession      = errors.New("no conversation is running here")
	ErrNotWaiting     = errors.New("the manager is not waiting for a reply")
)

// Mailbox hands human replies to the session waiting for them. Sessions are
// keyed by whatever identifies the human on a transport (chat, nick, socket).
type Mailbox struct {
	mu    sync.Mutex
	boxes map[string]*box
}

type box struct {
	replies chan string
	cancel  context.CancelFunc
	waiting bool
}

func NewMailbox() *Mailbox {
	return &Mailbox{boxes: make(map[string]*box)}
}

// Open reserves key for a new session. cancel is called by Stop.
func (m *Mailbox) Open(key string, cancel context.CancelFunc) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.boxes[key]; exists {
		return ErrSessionRunning
	}
	m.boxes[key] = &box{replies: make(chan string, 1), cancel: cancel}
	return nil
}

func (m *Mailbox) Close(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.boxes, key)
}

func (m *Mailbox) Active(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.boxes[key]
	return ok
}

func (m *Mailbox) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.boxes)
}

// Stop cancels the session running under key.
func (m *Mailbox) Stop(key string) error {
	m.mu.Lock()
	b, ok := m.boxes[key]
	m.mu.Unlock()

	if !ok {
		return ErrNoSession
	}
	if b.cancel != nil {
		b.cancel()
	}
	return nil
}

// StopAll cancels every running session.
func (m *Mailbox) StopAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, b := range m.boxes {
		if b.cancel != nil {
			b.cancel()
		}
	}
}

// Post delivers a reply. It fails unless the session is blocked in Await.
func (m *Mailbox) Post(key, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.boxes[key]
	if !ok {
		return ErrNoSession
	}
	if !b.waiting {
		return ErrNotWaiting
	}
	select {
	case b.replies <- text:
		b.waiting = false
		return nil
	default:
		return ErrNotWaiting
	}
}

// Await blocks until a reply for key is posted or ctx is done.
func (m *Mailbox) Await(ctx context.Context, key string) (string, error) {
	m.mu.Lock()
	b, ok := m.boxes[key]
	if ok {
		b.waiting = true
	}
	m.mu.Unlock()

	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNoSession, key)
	}

	select {
	case reply := <-b.replies:
		return reply, nil
	case <-ctx.Done():
		m.mu.Lock()
		b.waiting = false
		select {
		case <-b.replies:
		default:
		}
		m.mu.Unlock()
		return "", ctx.Err()
	}
}

// Waiting reports whether the session under key is blocked in Await.
func (m *Mailbox) Waiting(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.boxes[key]
	return ok && b.waiting
}
