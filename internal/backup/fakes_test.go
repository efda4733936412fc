package backup

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type memBlob struct {
	id   string
	ts   int64
	data []byte
}

// memSink is an in-memory Sink keyed by blob name.
type memSink struct {
	mu         sync.Mutex
	blobs      map[string]memBlob
	seq        int
	createErr  error
	listErr    error
	deleteErr  error
	fetchErr   error
	deletedIDs []string
	// onCreate runs before a blob is stored.
	onCreate func()
}

func newMemSink() *memSink { return &memSink{blobs: map[string]memBlob{}} }

func (m *memSink) Kind() string { return "memory" }

func (m *memSink) put(name string, ts int64, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	m.blobs[name] = memBlob{id: fmt.Sprintf("id-%d", m.seq), ts: ts, data: data}
}

func (m *memSink) List(ctx context.Context) ([]BlobInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	out := make([]BlobInfo, 0, len(m.blobs))
	for name, b := range m.blobs {
		out = append(out, BlobInfo{ID: b.id, Name: name, Timestamp: b.ts, Size: int64(len(b.data))})
	}
	SortNewestFirst(out)
	return out, nil
}

func (m *memSink) Create(ctx context.Context, name string, payload []byte) (CreateResult, error) {
	if m.createErr != nil {
		return CreateResult{}, m.createErr
	}
	if err := ctx.Err(); err != nil {
		return CreateResult{}, err
	}
	if m.onCreate != nil {
		m.onCreate()
	}
	m.put(name, time.Now().UnixMilli(), payload)
	m.mu.Lock()
	defer m.mu.Unlock()
	return CreateResult{ID: m.blobs[name].id, Name: name}, nil
}

func (m *memSink) Fetch(ctx context.Context, name string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fetchErr != nil {
		return nil, m.fetchErr
	}
	b, ok := m.blobs[name]
	if !ok {
		return nil, fmt.Errorf("fetch %s: %w", name, ErrBlobNotFound)
	}
	return b.data, nil
}

func (m *memSink) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.deleteErr != nil {
		return m.deleteErr
	}
	for name, b := range m.blobs {
		if b.id == id {
			delete(m.blobs, name)
			m.deletedIDs = append(m.deletedIDs, id)
			return nil
		}
	}
	return ErrBlobNotFound
}

// memStore stands in for the database file.
type memStore struct {
	mu         sync.Mutex
	data       []byte
	replaced   int
	replaceErr error
}

func (s *memStore) Snapshot(ctx context.Context) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]byte(nil), s.data...), nil
}

func (s *memStore) Replace(ctx context.Context, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.replaceErr != nil {
		return s.replaceErr
	}
	s.data = append([]byte(nil), data...)
	s.replaced++
	return nil
}

type memSettings struct {
	raw      json.RawMessage
	imported json.RawMessage
}

func (m *memSettings) Export() (json.RawMessage, error) { return m.raw, nil }

func (m *memSettings) Import(raw json.RawMessage) error {
	m.imported = raw
	return nil
}

func newTestConfigStore(t *testing.T, sinkConfigured bool) *ConfigStore {
	t.Helper()
	return NewConfigStore(filepath.Join(t.TempDir(), "backup-config.json"), "03:00", sinkConfigured, nil)
}

func enableAuto(t *testing.T, cs *ConfigStore, runTime string) {
	t.Helper()
	on := true
	_, err := cs.Update(ConfigUpdate{AutoEnabled: &on, RunTime: &runTime})
	require.NoError(t, err)
}
