package cache

import (
	"context"
	"encoding/json"
	"regexp"
	"sync"
	"time"

	"gatekeep.dev/internal/obs"
)

const cleanupInterval = 5 * time.Minute

type memoryItem struct {
	value     []byte
	expiresAt time.Time
}

// Memory is a process-local cache used in development and as the fallback
// when Redis is unavailable.
type Memory struct {
	mu    sync.RWMutex
	items map[string]memoryItem
	now   func() time.Time
	stop  chan struct{}
	once  sync.Once
}

// NewMemory starts a memory cache with a background sweep of expired keys.
func NewMemory() *Memory {
	m := &Memory{
		items: make(map[string]memoryItem),
		now:   time.Now,
		stop:  make(chan struct{}),
	}
	go m.cleanupLoop()
	return m
}

func (m *Memory) cleanupLoop() {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.cleanup()
		case <-m.stop:
			return
		}
	}
}

func (m *Memory) cleanup() {
	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()
	for key, item := range m.items {
		if now.After(item.expiresAt) {
			delete(m.items, key)
		}
	}
}

// Close stops the cleanup goroutine.
func (m *Memory) Close() {
	m.once.Do(func() { close(m.stop) })
}

func (m *Memory) Get(_ context.Context, key string, dest any) (bool, error) {
	m.mu.RLock()
	item, ok := m.items[key]
	m.mu.RUnlock()
	if !ok || m.now().After(item.expiresAt) {
		if ok {
			m.mu.Lock()
			delete(m.items, key)
			m.mu.Unlock()
		}
		obs.ObserveCacheOp("miss")
		return false, nil
	}
	obs.ObserveCacheOp("hit")
	return true, json.Unmarshal(item.value, dest)
}

func (m *Memory) Set(_ context.Context, key string, value any, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.items[key] = memoryItem{value: raw, expiresAt: m.now().Add(ttl)}
	m.mu.Unlock()
	obs.ObserveCacheOp("set")
	return nil
}

func (m *Memory) Delete(_ context.Context, keys ...string) error {
	m.mu.Lock()
	for _, key := range keys {
		delete(m.items, key)
	}
	m.mu.Unlock()
	obs.ObserveCacheOp("delete")
	return nil
}

func (m *Memory) DeletePattern(_ context.Context, pattern string) error {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return err
	}
	m.mu.Lock()
	for key := range m.items {
		if re.MatchString(key) {
			delete(m.items, key)
		}
	}
	m.mu.Unlock()
	obs.ObserveCacheOp("delete")
	return nil
}

func (m *Memory) Clear(context.Context) error {
	m.mu.Lock()
	m.items = make(map[string]memoryItem)
	m.mu.Unlock()
	obs.ObserveCacheOp("clear")
	return nil
}

func (m *Memory) Stats(context.Context) (Stats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0, len(m.items))
	for key := range m.items {
		keys = append(keys, key)
	}
	return Stats{Size: len(keys), Keys: keys}, nil
}

var _ Cache = (*Memory)(nil)
