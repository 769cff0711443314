package device

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore はメモリ上のStore実装
// database.driver: memory の場合に使う。プロセス終了で内容は消える
type MemoryStore struct {
	mu      sync.RWMutex
	nextID  int64
	devices map[int64]Device
	now     func() time.Time
}

// NewMemoryStore は空のMemoryStoreを作成する
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		nextID:  1,
		devices: make(map[int64]Device),
		now:     time.Now,
	}
}

var _ Store = (*MemoryStore)(nil)

func (s *MemoryStore) Create(_ context.Context, in Input) (Device, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d := Device{
		ID:          s.nextID,
		Title:       in.Title,
		Description: in.Description,
		CreatedAt:   s.now(),
	}
	s.devices[d.ID] = d
	s.nextID++
	return d, nil
}

func (s *MemoryStore) List(_ context.Context) ([]Device, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	devices := make([]Device, 0, len(s.devices))
	for _, d := range s.devices {
		devices = append(devices, d)
	}
	sort.Slice(devices, func(i, j int) bool { return devices[i].ID < devices[j].ID })
	return devices, nil
}

func (s *MemoryStore) Update(_ context.Context, id int64, in Input) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.devices[id]
	if !ok {
		return ErrNotFound
	}
	d.Title = in.Title
	d.Description = in.Description
	s.devices[id] = d
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.devices[id]; !ok {
		return ErrNotFound
	}
	delete(s.devices, id)
	return nil
}

// Ping は常に成功する
func (s *MemoryStore) Ping(context.Context) error {
	return nil
}
