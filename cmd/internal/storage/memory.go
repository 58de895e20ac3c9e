package storage

import (
	"context"
	"sync"
)

// MemoryKV is an in-process KV used for development and tests.
type MemoryKV struct {
	mu     sync.Mutex
	data   map[string]map[string][]byte
	closed bool
}

// NewMemoryKV constructs an empty in-memory store.
func NewMemoryKV() *MemoryKV {
	return &MemoryKV{data: make(map[string]map[string][]byte)}
}

// Get returns a copy of the stored value.
func (m *MemoryKV) Get(ctx context.Context, namespace, key string) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	if err := validKey(namespace, key); err != nil {
		return nil, false, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, false, ErrClosed
	}
	return m.getLocked(namespace, key)
}

// Set stores a copy of value.
func (m *MemoryKV) Set(ctx context.Context, namespace, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validKey(namespace, key); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.setLocked(namespace, key, value)
	return nil
}

// Delete removes a key (idempotent).
func (m *MemoryKV) Delete(ctx context.Context, namespace, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validKey(namespace, key); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.deleteLocked(namespace, key)
	return nil
}

// Update stages writes and applies them only when fn returns nil.
func (m *MemoryKV) Update(ctx context.Context, fn func(tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}

	tx := &memoryTx{kv: m, staged: make(map[memKey]*[]byte)}
	if err := fn(tx); err != nil {
		return err
	}

	for k, v := range tx.staged {
		if v == nil {
			m.deleteLocked(k.namespace, k.key)
			continue
		}
		m.setLocked(k.namespace, k.key, *v)
	}
	return nil
}

// Close marks the store closed. Further calls return ErrClosed.
func (m *MemoryKV) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}

func (m *MemoryKV) getLocked(namespace, key string) ([]byte, bool, error) {
	ns, ok := m.data[namespace]
	if !ok {
		return nil, false, nil
	}
	v, ok := ns[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

func (m *MemoryKV) setLocked(namespace, key string, value []byte) {
	ns, ok := m.data[namespace]
	if !ok {
		ns = make(map[string][]byte)
		m.data[namespace] = ns
	}
	ns[key] = append([]byte(nil), value...)
}

func (m *MemoryKV) deleteLocked(namespace, key string) {
	ns, ok := m.data[namespace]
	if !ok {
		return
	}
	delete(ns, key)
	if len(ns) == 0 {
		delete(m.data, namespace)
	}
}

type memKey struct {
	namespace string
	key       string
}

// memoryTx runs with kv.mu held; a nil staged value is a pending delete.
type memoryTx struct {
	kv     *MemoryKV
	staged map[memKey]*[]byte
}

func (t *memoryTx) Get(ctx context.Context, namespace, key string) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	if err := validKey(namespace, key); err != nil {
		return nil, false, err
	}
	if v, ok := t.staged[memKey{namespace, key}]; ok {
		if v == nil {
			return nil, false, nil
		}
		return append([]byte(nil), (*v)...), true, nil
	}
	return t.kv.getLocked(namespace, key)
}

func (t *memoryTx) Set(ctx context.Context, namespace, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validKey(namespace, key); err != nil {
		return err
	}
	cp := append([]byte(nil), value...)
	t.staged[memKey{namespace, key}] = &cp
	return nil
}

func (t *memoryTx) Delete(ctx context.Context, namespace, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validKey(namespace, key); err != nil {
		return err
	}
	t.staged[memKey{namespace, key}] = nil
	return nil
}
