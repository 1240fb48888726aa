package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"

	"ytdlp_proxy/internal/shared/logger"
	"ytdlp_proxy/proxypool/model"
)

// FileStorage 实现了 Storage 接口，把排名列表保存为 JSON 文件。
// 写入先落到同目录的临时文件再 rename，进程中途崩溃不会留下半个文件。
type FileStorage struct {
	filePath string
	mu       sync.RWMutex
}

// NewFileStorage 创建一个新的 FileStorage 实例。
func NewFileStorage(filePath string) *FileStorage {
	return &FileStorage{
		filePath: filePath,
	}
}

// Path returns the backing file path.
func (fs *FileStorage) Path() string {
	return fs.filePath
}

// Load 读取并解析保存的列表。文件不存在时返回 ErrNotFound。
func (fs *FileStorage) Load() (model.RankedList, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	data, err := os.ReadFile(fs.filePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, fs.filePath)
		}
		return nil, fmt.Errorf("failed to read proxy file: %w", err)
	}

	var list model.RankedList
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("failed to parse proxy file %s: %w", fs.filePath, err)
	}
	for i, r := range list {
		if r == nil || r.Host == "" {
			return nil, fmt.Errorf("proxy file %s: entry %d has no host", fs.filePath, i)
		}
	}

	l := logger.WithComponent("ProxyPool/Storage")
	l.Debug().Int("count", len(list)).Str("path", fs.filePath).Msg("Loaded proxies from file.")
	return list, nil
}

// Save 将列表写入文件，覆盖之前的内容。
func (fs *FileStorage) Save(list model.RankedList) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	for _, r := range list {
		if r != nil && (math.IsInf(r.Time, 0) || math.IsNaN(r.Time)) {
			return fmt.Errorf("refusing to save proxy %s with non-finite time", r.String())
		}
	}

	data, err := json.MarshalIndent(list, "", "    ")
	if err != nil {
		return fmt.Errorf("failed to marshal proxy list: %w", err)
	}

	dir := filepath.Dir(fs.filePath)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(fs.filePath)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write proxy list: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync proxy list: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Chmod(tmpName, 0644); err != nil {
		return fmt.Errorf("failed to set permissions: %w", err)
	}
	if err := os.Rename(tmpName, fs.filePath); err != nil {
		return fmt.Errorf("failed to replace proxy file: %w", err)
	}

	l := logger.WithComponent("ProxyPool/Storage")
	l.Info().Int("count", len(list)).Str("path", fs.filePath).Msg("Saved proxies to file.")
	return nil
}
