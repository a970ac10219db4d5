package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
)

// FileBackend 把整张缓存表保存为一个 JSON 文件。
// 每次操作都完整读取文件，修改后整体写回。
type FileBackend struct {
	path string
	mu   sync.Mutex
}

// NewFileBackend 创建文件存储，目录不存在时自动创建
func NewFileBackend(path string) (*FileBackend, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}
	return &FileBackend{path: path}, nil
}

// readTable 读取整张表；文件不存在视为空表，文件损坏时丢弃旧内容
func (b *FileBackend) readTable() (map[string]json.RawMessage, error) {
	table := make(map[string]json.RawMessage)

	data, err := os.ReadFile(b.path)
	if err != nil {
		if os.IsNotExist(err) {
			return table, nil
		}
		return nil, fmt.Errorf("failed to read cache file: %w", err)
	}
	if len(data) == 0 {
		return table, nil
	}

	if err := json.Unmarshal(data, &table); err != nil {
		log.Printf("[Storage] 缓存文件 %s 已损坏，按空表处理: %v", b.path, err)
		return make(map[string]json.RawMessage), nil
	}
	return table, nil
}

// writeTable 先写临时文件再重命名，避免写一半的文件
func (b *FileBackend) writeTable(table map[string]json.RawMessage) error {
	data, err := json.Marshal(table)
	if err != nil {
		return fmt.Errorf("failed to marshal cache table: %w", err)
	}

	tempFile := b.path + ".tmp"
	if err := os.WriteFile(tempFile, data, 0600); err != nil {
		return fmt.Errorf("failed to write cache file: %w", err)
	}
	if err := os.Rename(tempFile, b.path); err != nil {
		os.Remove(tempFile)
		return fmt.Errorf("failed to rename cache file: %w", err)
	}
	return nil
}

func (b *FileBackend) Load(ctx context.Context, key string) (Record, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	table, err := b.readTable()
	if err != nil {
		return Record{}, false, err
	}

	raw, ok := table[key]
	if !ok {
		return Record{}, false, nil
	}

	rec, err := decodeRecord(key, raw)
	if err != nil {
		return Record{}, false, err
	}
	return rec, true, nil
}

func (b *FileBackend) Save(ctx context.Context, rec Record) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	table, err := b.readTable()
	if err != nil {
		return err
	}

	data, err := encodeRecord(rec, false)
	if err != nil {
		return fmt.Errorf("failed to encode record: %w", err)
	}
	table[rec.Key] = data

	return b.writeTable(table)
}

func (b *FileBackend) Delete(ctx context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	table, err := b.readTable()
	if err != nil {
		return err
	}
	if _, ok := table[key]; !ok {
		return nil
	}

	delete(table, key)
	return b.writeTable(table)
}

func (b *FileBackend) Range(ctx context.Context, fn func(Record) bool) error {
	b.mu.Lock()
	table, err := b.readTable()
	b.mu.Unlock()
	if err != nil {
		return err
	}

	for key, raw := range table {
		rec, err := decodeRecord(key, raw)
		if err != nil {
			continue
		}
		if !fn(rec) {
			break
		}
	}
	return nil
}

// Ping 检查缓存目录是否可访问
func (b *FileBackend) Ping(ctx context.Context) error {
	_, err := os.Stat(filepath.Dir(b.path))
	return err
}

func (b *FileBackend) Close() error {
	return nil
}
