package storage

import (
	"errors"
	"sync"

	"ytdlp_proxy/proxypool/model"
)

// ErrNotFound is returned by Load when nothing has been saved yet.
var ErrNotFound = errors.New("proxy list not found, run update first")

// Storage 接口定义了排名列表持久化的行为。
type Storage interface {
	Load() (model.RankedList, error)
	Save(list model.RankedList) error
}

// MemoryStorage 是保存在内存中的 Storage 实现，用于测试。
type MemoryStorage struct {
	mu    sync.RWMutex
	list  model.RankedList
	saved bool
}

// NewMemoryStorage 创建一个空的 MemoryStorage。
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{}
}

func (m *MemoryStorage) Load() (model.RankedList, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.saved {
		return nil, ErrNotFound
	}
	return cloneList(m.list), nil
}

func (m *MemoryStorage) Save(list model.RankedList) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.list = cloneList(list)
	m.saved = true
	return nil
}

func cloneList(list model.RankedList) model.RankedList {
	out := make(model.RankedList, 0, len(list))
	for _, r := range list {
		if r == nil {
			continue
		}
		c := *r
		out = append(out, &c)
	}
	return out
}
