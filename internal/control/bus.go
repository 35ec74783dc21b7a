package control

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
)

var ErrBusClosed = errors.New("control bus closed")

// Subscription is an active bus subscription.
type Subscription interface {
	Unsubscribe() error
}

// Bus is the pub/sub transport of control messages.
type Bus interface {
	Publish(subject string, data []byte) error
	Subscribe(subject string, handler func([]byte)) (Subscription, error)
	Close()
}

// NatsBus is a Bus over a NATS connection.
type NatsBus struct {
	conn *nats.Conn
}

/**
 * Connect to the NATS control bus
 * @param {string} url - NATS server url
 * @param {string} name - Client name shown by the server
 * @returns {*NatsBus} Connected bus
 * @returns {error} Error if the server can't be reached
 */
func ConnectNats(url, name string) (*NatsBus, error) {
	conn, err := nats.Connect(url,
		nats.Name(name),
		nats.MaxReconnects(10),
		nats.ReconnectWait(time.Second),
		nats.Timeout(5*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect control bus %s: %w", url, err)
	}
	return &NatsBus{conn: conn}, nil
}

func (b *NatsBus) Publish(subject string, data []byte) error {
	return b.conn.Publish(subject, data)
}

// Subscribe delivers messages on the connection's dispatch goroutine.
func (b *NatsBus) Subscribe(subject string, handler func([]byte)) (Subscription, error) {
	sub, err := b.conn.Subscribe(subject, func(msg *nats.Msg) {
		handler(msg.Data)
	})
	if err != nil {
		return nil, err
	}
	return sub, nil
}

// Close flushes pending publications and closes the connection.
func (b *NatsBus) Close() {
	_ = b.conn.Flush()
	b.conn.Close()
}

// MemoryBus is an in-process Bus. Publish delivers synchronously to every
// matching subscriber on the caller's goroutine.
type MemoryBus struct {
	subs   map[string]map[int]func([]byte)
	nextID int
	closed bool
	mutex  sync.Mutex
}

func NewMemoryBus() *MemoryBus {
	return &MemoryBus{subs: make(map[string]map[int]func([]byte))}
}

func (b *MemoryBus) Publish(subject string, data []byte) error {
	b.mutex.Lock()
	if b.closed {
		b.mutex.Unlock()
		return ErrBusClosed
	}
	handlers := make([]func([]byte), 0, len(b.subs[subject]))
	for _, h := range b.subs[subject] {
		handlers = append(handlers, h)
	}
	b.mutex.Unlock()

	for _, h := range handlers {
		h(append([]byte(nil), data...))
	}
	return nil
}

func (b *MemoryBus) Subscribe(subject string, handler func([]byte)) (Subscription, error) {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	if b.closed {
		return nil, ErrBusClosed
	}
	if b.subs[subject] == nil {
		b.subs[subject] = make(map[int]func([]byte))
	}
	id := b.nextID
	b.nextID++
	b.subs[subject][id] = handler
	return &memorySubscription{bus: b, subject: subject, id: id}, nil
}

func (b *MemoryBus) Close() {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	b.closed = true
	b.subs = make(map[string]map[int]func([]byte))
}

type memorySubscription struct {
	bus     *MemoryBus
	subject string
	id      int
}

func (s *memorySubscription) Unsubscribe() error {
	s.bus.mutex.Lock()
	defer s.bus.mutex.Unlock()
	delete(s.bus.subs[s.subject], s.id)
	return nil
}
