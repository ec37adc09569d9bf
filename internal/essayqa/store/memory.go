package store

import (
	"cmp"
	"context"
	"fmt"
	"os"
	"slices"
	"sync"

	"github.com/kart-io/essay-qa/internal/model"
	"github.com/kart-io/essay-qa/pkg/utils/json"
)

var _ DocumentStore = (*MemoryStore)(nil)

// MemoryStore 进程内文章存储，按 ID 升序保存。
type MemoryStore struct {
	mu     sync.RWMutex
	essays []model.Essay
	byURL  map[string]int
	nextID int64
}

// NewMemoryStore 创建内存存储并写入初始文章。
func NewMemoryStore(essays ...model.Essay) *MemoryStore {
	s := &MemoryStore{byURL: make(map[string]int), nextID: 1}
	_ = s.Upsert(context.Background(), essays)
	return s
}

// LoadMemoryStore 从已嵌入的语料 JSON 文件加载内存存储。
func LoadMemoryStore(path string) (*MemoryStore, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read corpus %s: %w", path, err)
	}

	var essays []model.Essay
	if err := json.Unmarshal(data, &essays); err != nil {
		return nil, fmt.Errorf("failed to decode corpus %s: %w", path, err)
	}
	return NewMemoryStore(essays...), nil
}

// SimilaritySearch 暴力计算余弦相似度。
func (s *MemoryStore) SimilaritySearch(ctx context.Context, embedding []float32, threshold float32, limit int) ([]model.RankedCandidate, error) {
	if err := ctx.Err(); err != nil {
		return nil, queryError("similarity search", err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return rankByEmbedding(s.essays, embedding, threshold, limit), nil
}

// FirstN 返回 ID 最小的 limit 篇文章。
func (s *MemoryStore) FirstN(ctx context.Context, limit int) ([]model.Essay, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	n := min(limit, len(s.essays))
	out := make([]model.Essay, n)
	for i := range n {
		out[i] = s.essays[i]
		out[i].Embedding = nil
	}
	return out, nil
}

// Upsert 按 URL 覆盖已有文章，新文章未指定 ID 时自动分配。
func (s *MemoryStore) Upsert(ctx context.Context, essays []model.Essay) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range essays {
		if i, ok := s.byURL[e.URL]; ok {
			e.ID = s.essays[i].ID
			s.essays[i] = e
			continue
		}
		if e.ID == 0 {
			e.ID = s.nextID
		}
		s.nextID = max(s.nextID, e.ID+1)
		s.essays = append(s.essays, e)
		s.byURL[e.URL] = len(s.essays) - 1
	}

	slices.SortFunc(s.essays, func(a, b model.Essay) int {
		return cmp.Compare(a.ID, b.ID)
	})
	for i, e := range s.essays {
		s.byURL[e.URL] = i
	}
	return nil
}

// Count 返回文章数量。
func (s *MemoryStore) Count(context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.essays)), nil
}

// Close 无需释放资源。
func (s *MemoryStore) Close() error {
	return nil
}
