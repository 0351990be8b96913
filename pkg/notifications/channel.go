package notifications

import (
	"context"
	"sync"
)

// ChannelNotifier pushes notifications to live subscribers of the addressed
// user, e.g. open SSE connections. Subscribers that cannot keep up lose
// messages instead of blocking the sender.
type ChannelNotifier struct {
	mu         sync.RWMutex
	subs       map[string]map[chan Notification]struct{}
	bufferSize int
}

func NewChannelNotifier(bufferSize int) *ChannelNotifier {
	return &ChannelNotifier{
		subs:       make(map[string]map[chan Notification]struct{}),
		bufferSize: max(bufferSize, 1),
	}
}

// Subscribe registers a receiver for userID. The channel is closed and
// removed when ctx is done.
func (c *ChannelNotifier) Subscribe(ctx context.Context, userID string) <-chan Notification {
	ch := make(chan Notification, c.bufferSize)

	c.mu.Lock()
	if c.subs[userID] == nil {
		c.subs[userID] = make(map[chan Notification]struct{})
	}
	c.subs[userID][ch] = struct{}{}
	c.mu.Unlock()

	go func() {
		<-ctx.Done()
		c.mu.Lock()
		defer c.mu.Unlock()
		if set, ok := c.subs[userID]; ok {
			if _, ok := set[ch]; ok {
				delete(set, ch)
				close(ch)
			}
			if len(set) == 0 {
				delete(c.subs, userID)
			}
		}
	}()

	return ch
}

func (c *ChannelNotifier) Notify(_ context.Context, n Notification) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for ch := range c.subs[n.UserID] {
		select {
		case ch <- n:
		default:
		}
	}
	return nil
}
