package realtime

import (
	"context"
	"sync"
)

// MemoryClient is an in-process Client used when no Redis address is
// configured, and by tests. Delivery is synchronous.
type MemoryClient struct {
	mu     sync.Mutex
	subs   map[string][]*memoryHandle
	closed bool
}

func NewMemoryClient() *MemoryClient {
	return &MemoryClient{subs: make(map[string][]*memoryHandle)}
}

func (c *MemoryClient) Channel(name string) Channel {
	return &memoryChannel{client: c, name: name}
}

func (c *MemoryClient) Publish(_ context.Context, name string, msg Message) error {
	c.mu.Lock()
	handles := make([]*memoryHandle, len(c.subs[name]))
	copy(handles, c.subs[name])
	c.mu.Unlock()

	for _, h := range handles {
		h.dispatch(msg)
	}
	return nil
}

func (c *MemoryClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subs = make(map[string][]*memoryHandle)
	c.closed = true
	return nil
}

func (c *MemoryClient) remove(name string, target *memoryHandle) {
	c.mu.Lock()
	defer c.mu.Unlock()

	handles := c.subs[name]
	for i, h := range handles {
		if h == target {
			c.subs[name] = append(handles[:i], handles[i+1:]...)
			break
		}
	}
}

// SubscriberCount reports the number of active subscriptions on a
// channel. Exposed for tests asserting teardown behaviour.
func (c *MemoryClient) SubscriberCount(name string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.subs[name])
}

type memoryChannel struct {
	client   *MemoryClient
	name     string
	handlers []struct {
		event string
		fn    Handler
	}
}

func (ch *memoryChannel) On(event string, h Handler) Channel {
	ch.handlers = append(ch.handlers, struct {
		event string
		fn    Handler
	}{event, h})
	return ch
}

func (ch *memoryChannel) Subscribe(_ context.Context) (Handle, error) {
	h := &memoryHandle{client: ch.client, name: ch.name, handlers: ch.handlers}

	ch.client.mu.Lock()
	ch.client.subs[ch.name] = append(ch.client.subs[ch.name], h)
	ch.client.mu.Unlock()

	return h, nil
}

type memoryHandle struct {
	client   *MemoryClient
	name     string
	once     sync.Once
	handlers []struct {
		event string
		fn    Handler
	}
}

func (h *memoryHandle) dispatch(msg Message) {
	for _, reg := range h.handlers {
		if reg.event == EventAll || reg.event == msg.Event {
			reg.fn(msg)
		}
	}
}

func (h *memoryHandle) Unsubscribe() error {
	h.once.Do(func() { h.client.remove(h.name, h) })
	return nil
}
