package objectstore

import (
	"context"
	"sort"
	"strings"
	"sync"

	rcerrors "github.com/alexisbeaulieu97/reportcheck/pkg/errors"
)

// Memory is an in-process Bucket, used in tests and dry runs.
type Memory struct {
	mu      sync.RWMutex
	objects map[string]Object
}

// Object is a stored blob with its content type.
type Object struct {
	Data        []byte
	ContentType string
}

// NewMemory returns an empty bucket.
func NewMemory() *Memory {
	return &Memory{objects: make(map[string]Object)}
}

// Put implements Bucket.
func (m *Memory) Put(_ context.Context, key string, data []byte, contentType string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = Object{Data: append([]byte(nil), data...), ContentType: contentType}
	return nil
}

// Get implements Bucket.
func (m *Memory) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	obj, ok := m.objects[key]
	if !ok {
		return nil, rcerrors.NewNotFoundError("object", key)
	}
	return append([]byte(nil), obj.Data...), nil
}

// List implements Bucket.
func (m *Memory) List(_ context.Context, prefix string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var keys []string
	for key := range m.objects {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// Object returns the stored object for key.
func (m *Memory) Object(key string) (Object, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	obj, ok := m.objects[key]
	return obj, ok
}
