package store

import (
	"context"
	"sync"
)

// Notifier fans the full item set out to subscribers after every mutation.
// Each subscriber owns a one-slot channel; an undelivered set is replaced by
// the newer one, so publishers never block on slow readers.
type Notifier struct {
	load func(ctx context.Context) ([]Item, error)

	mu     sync.Mutex
	subs   map[int]chan []Item
	nextID int
}

// NewNotifier creates a notifier that reads the current set with load.
func NewNotifier(load func(ctx context.Context) ([]Item, error)) *Notifier {
	return &Notifier{
		load: load,
		subs: make(map[int]chan []Item),
	}
}

// Subscribe registers a subscriber and delivers the current set to it.
func (n *Notifier) Subscribe() (<-chan []Item, func()) {
	ch := make(chan []Item, 1)

	n.mu.Lock()
	id := n.nextID
	n.nextID++
	n.subs[id] = ch
	if items, err := n.load(context.Background()); err == nil {
		ch <- items
	}
	n.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			n.mu.Lock()
			defer n.mu.Unlock()
			if _, ok := n.subs[id]; ok {
				delete(n.subs, id)
				close(ch)
			}
		})
	}
	return ch, cancel
}

// Notify loads the current set and hands it to every subscriber.
// Load failures are dropped; the next mutation publishes again.
func (n *Notifier) Notify(ctx context.Context) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if len(n.subs) == 0 {
		return
	}
	items, err := n.load(ctx)
	if err != nil {
		return
	}
	for _, ch := range n.subs {
		select {
		case <-ch:
		default:
		}
		ch <- cloneItems(items)
	}
}

// Close cancels every subscription.
func (n *Notifier) Close() {
	n.mu.Lock()
	defer n.mu.Unlock()
	for id, ch := range n.subs {
		delete(n.subs, id)
		close(ch)
	}
}

func cloneItems(items []Item) []Item {
	out := make([]Item, len(items))
	copy(out, items)
	return out
}
