package objectstore

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
)

// Memory is an in-process Store. Listing follows the same delimiter rules as
// Bucket; it is used by tests and local development.
type Memory struct {
	mu      sync.RWMutex
	objects map[string][]byte
	types   map[string]string

	// ListErr and GetErr, when set, are returned by every call.
	ListErr error
	GetErr  error
}

var _ Store = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{objects: make(map[string][]byte), types: make(map[string]string)}
}

func (m *Memory) Put(key string, body []byte) {
	m.PutWithType(key, "", body)
}

func (m *Memory) PutWithType(key, contentType string, body []byte) {
	key = normalizeKey(key)
	m.mu.Lock()
	m.objects[key] = body
	m.types[key] = contentType
	m.mu.Unlock()
}

func (m *Memory) List(ctx context.Context, prefix, delimiter string) ([]ObjectInfo, error) {
	if m.ListErr != nil {
		return nil, m.ListErr
	}
	if delimiter != "" && delimiter != "/" {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedDelimiter, delimiter)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	prefix = normalizeKey(prefix)

	m.mu.RLock()
	defer m.mu.RUnlock()

	seenPrefix := make(map[string]bool)
	var out []ObjectInfo
	for key, body := range m.objects {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		rest := key[len(prefix):]
		if delimiter != "" {
			if i := strings.Index(rest, delimiter); i >= 0 {
				p := prefix + rest[:i+len(delimiter)]
				if !seenPrefix[p] {
					seenPrefix[p] = true
					out = append(out, ObjectInfo{Key: p, IsPrefix: true})
				}
				continue
			}
		}
		out = append(out, ObjectInfo{Key: key, Size: int64(len(body))})
	}
	// S3 lists in key order; map iteration is not.
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (m *Memory) Get(ctx context.Context, key string) (Object, error) {
	if m.GetErr != nil {
		return Object{}, m.GetErr
	}
	if err := ctx.Err(); err != nil {
		return Object{}, err
	}
	m.mu.RLock()
	key = normalizeKey(key)
	body, ok := m.objects[key]
	contentType := m.types[key]
	m.mu.RUnlock()
	if !ok {
		return Object{StatusCode: http.StatusNotFound}, nil
	}
	return Object{StatusCode: http.StatusOK, ContentType: contentType, Body: body}, nil
}
