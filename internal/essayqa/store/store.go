package store

import (
	"cmp"
	"context"
	"fmt"
	"math"
	"slices"

	"github.com/kart-io/essay-qa/internal/model"
)

// DocumentStore 定义文章存储接口。
type DocumentStore interface {
	// SimilaritySearch 返回相似度严格大于 threshold 的至多 limit 篇文章，按相似度降序。
	// 查询链路本身失败时返回 *QueryError，与空结果区分。
	SimilaritySearch(ctx context.Context, embedding []float32, threshold float32, limit int) ([]model.RankedCandidate, error)

	// FirstN 按 ID 升序返回前 limit 篇文章，作为检索失败时的降级结果。
	FirstN(ctx context.Context, limit int) ([]model.Essay, error)

	// Upsert 按 URL 写入或更新文章。
	Upsert(ctx context.Context, essays []model.Essay) error

	// Count 返回文章总数。
	Count(ctx context.Context) (int64, error)

	// Close 释放底层连接。
	Close() error
}

// QueryError 表示检索链路失败（而不是没有结果）。
type QueryError struct {
	Op  string
	Err error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("store %s failed: %v", e.Op, e.Err)
}

func (e *QueryError) Unwrap() error {
	return e.Err
}

func queryError(op string, err error) error {
	return &QueryError{Op: op, Err: err}
}

// CosineSimilarity 计算两个向量的余弦相似度，维度不一致或零向量返回 0。
func CosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}

// Rank 按相似度降序、ID 升序排序并截断到 limit。
func Rank(candidates []model.RankedCandidate, limit int) []model.RankedCandidate {
	slices.SortStableFunc(candidates, func(a, b model.RankedCandidate) int {
		if c := cmp.Compare(b.Similarity, a.Similarity); c != 0 {
			return c
		}
		return cmp.Compare(a.Essay.ID, b.Essay.ID)
	})
	if limit > 0 && len(candidates) > limit {
		candidates = candidates[:limit]
	}
	return candidates
}

// rankByEmbedding 在进程内计算相似度并过滤、排序。
func rankByEmbedding(essays []model.Essay, embedding []float32, threshold float32, limit int) []model.RankedCandidate {
	candidates := make([]model.RankedCandidate, 0, len(essays))
	for _, e := range essays {
		if len(e.Embedding) == 0 {
			continue
		}
		sim := CosineSimilarity(embedding, e.Embedding)
		if sim <= threshold {
			continue
		}
		hit := e
		hit.Embedding = nil
		candidates = append(candidates, model.RankedCandidate{Essay: hit, Similarity: sim})
	}
	return Rank(candidates, limit)
}
