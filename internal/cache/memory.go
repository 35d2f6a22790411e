package cache

import (
	"container/heap"
	"context"
	"strings"
	"sync"
	"time"
)

type memoryEntry struct {
	value []byte
	// expiresAt is zero for entries with no expiry.
	expiresAt time.Time
}

type expiryItem struct {
	key string
	at  time.Time
}

type expiryQueue []expiryItem

func (q expiryQueue) Len() int { return len(q) }

func (q expiryQueue) Less(i, j int) bool {
	return q[i].at.Before(q[j].at)
}

func (q expiryQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
}

func (q *expiryQueue) Push(x any) {
	*q = append(*q, x.(expiryItem))
}

func (q *expiryQueue) Pop() any {
	old := *q
	n := len(old)
	item := old[n-1]
	*q = old[0 : n-1]
	return item
}

// Memory is an in-process Cache with TTL support. Expired entries read as
// misses immediately; a background sweeper reclaims them once due.
type Memory struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	queue   expiryQueue
	wakeup  chan struct{}
	stopCh  chan struct{}
	doneCh  chan struct{}
	stopped bool
}

func NewMemory() *Memory {
	m := &Memory{
		entries: make(map[string]memoryEntry),
		queue:   make(expiryQueue, 0),
		wakeup:  make(chan struct{}, 1),
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
	heap.Init(&m.queue)
	go m.sweep()
	return m
}

func (m *Memory) Close() {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return
	}
	m.stopped = true
	close(m.stopCh)
	m.mu.Unlock()
	<-m.doneCh
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.entries[key]
	if !ok {
		return nil, false, nil
	}
	if !entry.expiresAt.IsZero() && !entry.expiresAt.After(time.Now()) {
		return nil, false, nil
	}
	return entry.value, true, nil
}

func (m *Memory) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry := memoryEntry{value: value}
	if ttl > 0 {
		entry.expiresAt = time.Now().Add(ttl)
		heap.Push(&m.queue, expiryItem{key: key, at: entry.expiresAt})
		m.signalWakeup()
	}
	m.entries[key] = entry
	return nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	return nil
}

func (m *Memory) ScanDelete(_ context.Context, prefix string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key := range m.entries {
		if strings.HasPrefix(key, prefix) {
			delete(m.entries, key)
		}
	}
	return nil
}

// Len reports the number of live entries. Test hook.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

func (m *Memory) sweep() {
	defer close(m.doneCh)

	var timer *time.Timer
	for {
		next, hasNext := m.peek()
		if !hasNext {
			select {
			case <-m.wakeup:
				continue
			case <-m.stopCh:
				return
			}
		}

		wait := time.Until(next.at)
		if wait < 0 {
			wait = 0
		}
		timer = resetTimer(timer, wait)

		select {
		case <-timer.C:
			m.reclaimDue(time.Now())
		case <-m.wakeup:
			continue
		case <-m.stopCh:
			if timer != nil {
				stopTimer(timer)
			}
			return
		}
	}
}

func (m *Memory) signalWakeup() {
	select {
	case m.wakeup <- struct{}{}:
	default:
	}
}

func (m *Memory) peek() (expiryItem, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.queue) == 0 {
		return expiryItem{}, false
	}
	return m.queue[0], true
}

func (m *Memory) reclaimDue(now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for len(m.queue) > 0 {
		next := m.queue[0]
		if next.at.After(now) {
			break
		}
		heap.Pop(&m.queue)
		entry, ok := m.entries[next.key]
		if !ok {
			continue
		}
		// The key may have been re-set with a later expiry since this
		// expiration was scheduled.
		if entry.expiresAt.IsZero() || entry.expiresAt.After(now) {
			continue
		}
		delete(m.entries, next.key)
	}
}

func resetTimer(timer *time.Timer, d time.Duration) *time.Timer {
	if timer == nil {
		return time.NewTimer(d)
	}
	stopTimer(timer)
	timer.Reset(d)
	return timer
}

func stopTimer(timer *time.Timer) {
	if !timer.Stop() {
		select {
		case <-timer.C:
		default:
		}
	}
}
