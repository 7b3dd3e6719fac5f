package progress

import (
	"context"
	"encoding/json"
	"sync"

	"callsheet/internal/domain"
)

// MemStore is an in-memory SnapshotStore for tests and dry runs. Snapshots
// are stored as serialized documents so callers see the same copy
// semantics as the durable store.
type MemStore struct {
	mu    sync.Mutex
	blobs map[string][]byte
}

func NewMemStore() *MemStore {
	return &MemStore{blobs: map[string][]byte{}}
}

func (m *MemStore) GetSnapshot(_ context.Context, campaignID string) (*domain.CampaignProgress, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	raw, ok := m.blobs[campaignID]
	if !ok {
		return nil, nil
	}
	var snap domain.CampaignProgress
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

func (m *MemStore) PutSnapshot(_ context.Context, campaignID string, snap *domain.CampaignProgress) error {
	raw, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blobs[campaignID] = raw
	return nil
}

func (m *MemStore) DeleteSnapshot(_ context.Context, campaignID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.blobs, campaignID)
	return nil
}
