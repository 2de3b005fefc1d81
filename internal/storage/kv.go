package storage

import (
	"context"
	"errors"
	"sync"
)

// Persisted keys
const (
	KeyAppID             = "algopay_appId"
	KeyEscrowAddress     = "algopay_escrow"
	KeySeenNotifications = "trivia_seen_notif_txids"
)

// ErrKeyNotFound is returned by Get when a key has never been set
var ErrKeyNotFound = errors.New("key not found")

// KeyValueStore persists the organizer's small local settings
type KeyValueStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// MemoryKV is a process-local KeyValueStore. Values are lost on restart.
type MemoryKV struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewMemoryKV creates an empty in-memory store
func NewMemoryKV() *MemoryKV {
	return &MemoryKV{values: make(map[string]string)}
}

// Get returns the value stored under key
func (m *MemoryKV) Get(_ context.Context, key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[key]
	if !ok {
		return "", ErrKeyNotFound
	}
	return v, nil
}

// Set stores value under key
func (m *MemoryKV) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	m.values[key] = value
	m.mu.Unlock()
	return nil
}

// Delete removes key; deleting a missing key is not an error
func (m *MemoryKV) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.values, key)
	m.mu.Unlock()
	return nil
}
