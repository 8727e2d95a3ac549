package batch

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"

	"github.com/shouni/ai-canvas/pkg/domain"
)

// memStore は JSON で往復させるメモリ上の CheckpointStore なのだ。
type memStore struct {
	mu   sync.Mutex
	data map[string][]byte
	sets int
}

func newMemStore() *memStore {
	return &memStore{data: make(map[string][]byte)}
}

func (m *memStore) Get(key string, out any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.data[key]
	if !ok {
		return domain.ErrNotFound
	}
	return json.Unmarshal(b, out)
}

func (m *memStore) Set(key string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = b
	m.sets++
	return nil
}

func (m *memStore) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

func (m *memStore) Keys(prefix string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var keys []string
	for k := range m.data {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

type mockProducer struct {
	mu           sync.Mutex
	prompts      []string
	generateFunc func(ctx context.Context, settings domain.BatchSettings, prompt string) (*domain.AIImage, error)
}

func (m *mockProducer) GenerateForBatch(ctx context.Context, settings domain.BatchSettings, prompt string) (*domain.AIImage, error) {
	m.mu.Lock()
	m.prompts = append(m.prompts, prompt)
	n := int64(len(m.prompts))
	m.mu.Unlock()
	if m.generateFunc != nil {
		return m.generateFunc(ctx, settings, prompt)
	}
	return &domain.AIImage{ID: n, Prompt: prompt}, nil
}

func (m *mockProducer) calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.prompts...)
}
