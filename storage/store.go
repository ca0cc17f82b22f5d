/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

// Package storage persists planning poker documents in a key-value store.
package storage

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// Store is a key-value store holding opaque documents. Writes replace the
// whole document; there is no versioning.
type Store interface {
	Put(ctx context.Context, key string, doc []byte) error
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Close() error
}

// Open returns the store selected by kind: "memory", "dir" or "sqlite".
func Open(kind, path string) (Store, error) {
	switch strings.ToLower(kind) {
	case "memory", "":
		return NewMemory(), nil
	case "dir":
		return OpenDir(path)
	case "sqlite":
		return OpenSQLite(path)
	default:
		return nil, fmt.Errorf("unknown storage kind %q", kind)
	}
}

type Memory struct {
	mu   sync.RWMutex
	docs map[string][]byte
}

func NewMemory() *Memory {
	return &Memory{docs: make(map[string][]byte)}
}

func (m *Memory) Put(ctx context.Context, key string, doc []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.docs[key] = append([]byte(nil), doc...)

	return nil
}

func (m *Memory) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	doc, ok := m.docs[key]
	if !ok {
		return nil, false, nil
	}

	return append([]byte(nil), doc...), true, nil
}

func (m *Memory) Close() error {
	return nil
}
