// Package history coordinates the clipboard history: it keeps the primary
// clip, the durable history and the host clipboard eventually consistent
// under the sync policy, and evicts old entries.
package history

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/yiblet/clipkeep/internal/clipboard"
	"github.com/yiblet/clipkeep/internal/prefs"
	"github.com/yiblet/clipkeep/internal/store"
)

// DefaultSweepInterval is how often eviction runs when none is configured.
const DefaultSweepInterval = 10 * time.Second

// ErrClosed is returned by operations on a closed Manager.
var ErrClosed = errors.New("clipboard manager closed")

// MediaStore is the media file storage the manager needs.
type MediaStore interface {
	Clone(src io.Reader) (string, error)
	Resolve(handle string) (io.ReadCloser, error)
	ReadAll(handle string) ([]byte, error)
	Has(handle string) bool
	Delete(handle string) error
	Reset() error
	Prune(keep func(handle string, written time.Time) bool) (int, error)
}

// Config wires a Manager to its collaborators.
type Config struct {
	Store  store.HistoryStore
	Media  MediaStore
	Bridge clipboard.Bridge // optional; nil runs without a host clipboard
	Prefs  prefs.Source     // defaults to prefs.Defaults()
	Editor Editor           // optional paste target
	Logger *slog.Logger
	Clock  func() time.Time

	// SweepInterval controls periodic eviction. Negative disables it.
	SweepInterval time.Duration
}

// Manager is the clipboard coordinator.
type Manager struct {
	store  store.HistoryStore
	media  MediaStore
	bridge clipboard.Bridge
	prefs  prefs.Source
	editor Editor
	logger *slog.Logger
	now    func() time.Time

	queue *workQueue

	primaryMu sync.Mutex
	primary   *store.Item

	seenMu   sync.Mutex
	lastSeen *clipboard.Clip

	histMu  sync.RWMutex
	items   []store.Item
	current History
	subs    map[int]chan History
	nextSub int

	refresh     chan chan struct{}
	drift       chan struct{}
	storeCancel func()
	done        chan struct{}
	wg          sync.WaitGroup
	closeOnce   sync.Once
}

// New creates a Manager and starts its background goroutines.
func New(cfg Config) (*Manager, error) {
	if cfg.Store == nil {
		return nil, errors.New("history: store is required")
	}
	if cfg.Media == nil {
		return nil, errors.New("history: media store is required")
	}
	if cfg.Prefs == nil {
		cfg.Prefs = prefs.Static(prefs.Defaults())
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.SweepInterval == 0 {
		cfg.SweepInterval = DefaultSweepInterval
	}

	m := &Manager{
		store:   cfg.Store,
		media:   cfg.Media,
		bridge:  cfg.Bridge,
		prefs:   cfg.Prefs,
		editor:  cfg.Editor,
		logger:  cfg.Logger,
		now:     cfg.Clock,
		queue:   newWorkQueue(),
		subs:    make(map[int]chan History),
		refresh: make(chan chan struct{}),
		drift:   make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	m.current = Partition(nil, m.now())

	items, cancel := m.store.Subscribe()
	m.storeCancel = cancel

	m.wg.Add(1)
	go m.publishLoop(items)

	if m.bridge != nil {
		m.wg.Add(1)
		go m.watchLoop()
	}

	if cfg.SweepInterval > 0 {
		m.wg.Add(1)
		go m.sweepLoop(cfg.SweepInterval)
	}

	return m, nil
}

// History returns the latest published partition.
func (m *Manager) History() History {
	m.histMu.RLock()
	defer m.histMu.RUnlock()
	return m.current
}

// Subscribe delivers the current History and every later one. Slow readers
// only see the newest value.
func (m *Manager) Subscribe() (<-chan History, func()) {
	ch := make(chan History, 1)

	m.histMu.Lock()
	id := m.nextSub
	m.nextSub++
	m.subs[id] = ch
	ch <- m.current
	m.histMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			m.histMu.Lock()
			defer m.histMu.Unlock()
			if _, ok := m.subs[id]; ok {
				delete(m.subs, id)
				close(ch)
			}
		})
	}
}

// Drain waits until every task queued so far has run and the resulting
// history has been published.
func (m *Manager) Drain(ctx context.Context) error {
	if err := m.queue.do(ctx, func(context.Context) error { return nil }); err != nil {
		return err
	}
	return m.requestRefresh(ctx)
}

// Close stops the background goroutines and runs any queued work. It does
// not close the store, media store or bridge.
func (m *Manager) Close() error {
	m.closeOnce.Do(func() {
		m.queue.close()
		close(m.done)
		m.storeCancel()
		m.wg.Wait()

		m.histMu.Lock()
		for id, ch := range m.subs {
			delete(m.subs, id)
			close(ch)
		}
		m.histMu.Unlock()
	})
	return nil
}

func (m *Manager) requestRefresh(ctx context.Context) error {
	ack := make(chan struct{})
	select {
	case m.refresh <- ack:
	case <-m.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-ack:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// publishLoop is the only writer of the published History.
func (m *Manager) publishLoop(items <-chan []store.Item) {
	defer m.wg.Done()
	for {
		select {
		case set, ok := <-items:
			if !ok {
				return
			}
			m.publish(set)
		case ack := <-m.refresh:
			set, err := m.store.QueryAll(context.Background())
			if err != nil {
				m.logger.Warn("failed to refresh history", "err", err)
			} else {
				m.publish(set)
			}
			close(ack)
		case <-m.drift:
			m.histMu.RLock()
			set := m.items
			m.histMu.RUnlock()
			m.publish(set)
		case <-m.done:
			return
		}
	}
}

func (m *Manager) publish(items []store.Item) {
	h := Partition(items, m.now())

	m.histMu.Lock()
	defer m.histMu.Unlock()
	m.items = items
	m.current = h
	for _, ch := range m.subs {
		select {
		case <-ch:
		default:
		}
		ch <- h
	}
}

func (m *Manager) watchLoop() {
	defer m.wg.Done()
	changes := m.bridge.Watch()
	for {
		select {
		case _, ok := <-changes:
			if !ok {
				return
			}
			m.HandleHostChange()
		case <-m.done:
			return
		}
	}
}

func (m *Manager) sweepLoop(interval time.Duration) {
	defer m.wg.Done()
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			m.queue.submit(func(ctx context.Context) {
				if err := m.sweep(ctx); err != nil {
					m.logger.Warn("eviction sweep abandoned", "err", err)
				}
			})
			// Recency drifts with time even when nothing changes.
			select {
			case m.drift <- struct{}{}:
			default:
			}
		case <-m.done:
			return
		}
	}
}

func (m *Manager) policy() prefs.Policy {
	return m.prefs.Policy()
}
