package store

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/milvus-io/milvus/client/v2/column"
	"github.com/milvus-io/milvus/client/v2/entity"
	"github.com/milvus-io/milvus/client/v2/milvusclient"

	"github.com/kart-io/essay-qa/internal/model"
	"github.com/kart-io/essay-qa/pkg/component/milvus"
)

// Milvus 集合字段名。
const (
	fieldEssayID   = "essay_id"
	fieldEmbedding = "embedding"
	fieldTitle     = "title"
	fieldURL       = "url"
	fieldContent   = "content"
	fieldDate      = "date"
)

var essayOutputFields = []string{fieldEssayID, fieldTitle, fieldURL, fieldContent, fieldDate}

var _ DocumentStore = (*MilvusStore)(nil)

// MilvusStore 基于 Milvus 的文章存储，一篇文章对应一行，主键为文章 ID。
type MilvusStore struct {
	client     *milvus.Client
	collection string
	dimension  int
}

// NewMilvusStore 创建 Milvus 存储实例。
func NewMilvusStore(client *milvus.Client, collection string, dimension int) *MilvusStore {
	return &MilvusStore{
		client:     client,
		collection: collection,
		dimension:  dimension,
	}
}

// EnsureCollection 创建使用余弦度量的文章集合。
func (s *MilvusStore) EnsureCollection(ctx context.Context) error {
	return s.client.EnsureCollection(ctx, &milvus.CollectionSchema{
		Name:        s.collection,
		Description: "essay corpus",
		PrimaryKey:  fieldEssayID,
		VectorField: fieldEmbedding,
		Dimension:   s.dimension,
		Metric:      entity.COSINE,
		MetaFields: []milvus.MetaField{
			{Name: fieldTitle, DataType: entity.FieldTypeVarChar, MaxLen: 512},
			{Name: fieldURL, DataType: entity.FieldTypeVarChar, MaxLen: 512},
			{Name: fieldContent, DataType: entity.FieldTypeVarChar, MaxLen: 65535},
			{Name: fieldDate, DataType: entity.FieldTypeVarChar, MaxLen: 64},
		},
	})
}

// SimilaritySearch 执行向量检索，阈值在返回的分数上过滤。
func (s *MilvusStore) SimilaritySearch(ctx context.Context, embedding []float32, threshold float32, limit int) ([]model.RankedCandidate, error) {
	results, err := s.client.Raw().Search(ctx, milvusclient.NewSearchOption(
		s.collection,
		limit,
		[]entity.Vector{entity.FloatVector(embedding)},
	).WithANNSField(fieldEmbedding).
		WithSearchParam("nprobe", "16").
		WithOutputFields(essayOutputFields...))
	if err != nil {
		return nil, queryError("similarity search", err)
	}
	if len(results) == 0 {
		return []model.RankedCandidate{}, nil
	}
	return candidatesFromResult(results[0], threshold, limit)
}

// FirstN 先取全部 ID 排序，再按 ID 查询前 limit 篇。
func (s *MilvusStore) FirstN(ctx context.Context, limit int) ([]model.Essay, error) {
	if limit <= 0 {
		return []model.Essay{}, nil
	}

	idSet, err := s.client.Raw().Query(ctx, milvusclient.NewQueryOption(s.collection).
		WithFilter(fieldEssayID+" >= 0").
		WithOutputFields(fieldEssayID))
	if err != nil {
		return nil, fmt.Errorf("failed to list essay ids: %w", err)
	}
	ids := essayIDs(idSet.Fields)
	slices.Sort(ids)
	if len(ids) > limit {
		ids = ids[:limit]
	}
	if len(ids) == 0 {
		return []model.Essay{}, nil
	}

	rs, err := s.client.Raw().Query(ctx, milvusclient.NewQueryOption(s.collection).
		WithFilter(idFilter(ids)).
		WithOutputFields(essayOutputFields...))
	if err != nil {
		return nil, fmt.Errorf("failed to query essays: %w", err)
	}
	essays, err := essaysFromColumns(rs.ResultCount, rs.Fields)
	if err != nil {
		return nil, err
	}
	slices.SortFunc(essays, func(a, b model.Essay) int {
		return cmp.Compare(a.ID, b.ID)
	})
	return essays, nil
}

// Upsert 按主键写入文章，文章必须携带 ID。
func (s *MilvusStore) Upsert(ctx context.Context, essays []model.Essay) error {
	if len(essays) == 0 {
		return nil
	}

	columns, err := essayColumns(essays, s.dimension)
	if err != nil {
		return err
	}
	if _, err := s.client.Raw().Upsert(ctx, milvusclient.NewColumnBasedInsertOption(s.collection, columns...)); err != nil {
		return fmt.Errorf("failed to upsert into milvus: %w", err)
	}
	return s.client.Flush(ctx, s.collection)
}

// essayColumns 将文章转换为按列组织的写入数据。
func essayColumns(essays []model.Essay, dimension int) ([]column.Column, error) {
	n := len(essays)
	ids := make([]int64, n)
	vectors := make([][]float32, n)
	titles := make([]string, n)
	urls := make([]string, n)
	contents := make([]string, n)
	dates := make([]string, n)
	for i, e := range essays {
		if e.ID == 0 {
			return nil, fmt.Errorf("essay %s has no id", e.URL)
		}
		if len(e.Embedding) != dimension {
			return nil, fmt.Errorf("essay %s has embedding dimension %d, want %d", e.URL, len(e.Embedding), dimension)
		}
		ids[i] = e.ID
		vectors[i] = e.Embedding
		titles[i] = e.Title
		urls[i] = e.URL
		contents[i] = e.Content
		dates[i] = e.Date
	}

	return []column.Column{
		column.NewColumnInt64(fieldEssayID, ids),
		column.NewColumnFloatVector(fieldEmbedding, dimension, vectors),
		column.NewColumnVarChar(fieldTitle, titles),
		column.NewColumnVarChar(fieldURL, urls),
		column.NewColumnVarChar(fieldContent, contents),
		column.NewColumnVarChar(fieldDate, dates),
	}, nil
}

// Count 返回集合行数。
func (s *MilvusStore) Count(ctx context.Context) (int64, error) {
	return s.client.RowCount(ctx, s.collection)
}

// Close 关闭 Milvus 连接。
func (s *MilvusStore) Close() error {
	return s.client.Close(context.Background())
}

func candidatesFromResult(rs milvusclient.ResultSet, threshold float32, limit int) ([]model.RankedCandidate, error) {
	essays, err := essaysFromColumns(rs.ResultCount, rs.Fields)
	if err != nil {
		return nil, err
	}
	if len(rs.Scores) < len(essays) {
		return nil, queryError("similarity search", fmt.Errorf("got %d scores for %d rows", len(rs.Scores), len(essays)))
	}

	candidates := make([]model.RankedCandidate, 0, len(essays))
	for i, e := range essays {
		if rs.Scores[i] <= threshold {
			continue
		}
		candidates = append(candidates, model.RankedCandidate{Essay: e, Similarity: rs.Scores[i]})
	}
	return Rank(candidates, limit), nil
}

func essaysFromColumns(count int, fields []column.Column) ([]model.Essay, error) {
	essays := make([]model.Essay, count)
	for _, field := range fields {
		switch col := field.(type) {
		case *column.ColumnInt64:
			if col.Name() != fieldEssayID {
				continue
			}
			if col.Len() < count {
				return nil, fmt.Errorf("column %s has %d rows, want %d", col.Name(), col.Len(), count)
			}
			for i := range count {
				essays[i].ID = col.Data()[i]
			}
		case *column.ColumnVarChar:
			if col.Len() < count {
				return nil, fmt.Errorf("column %s has %d rows, want %d", col.Name(), col.Len(), count)
			}
			for i := range count {
				v := col.Data()[i]
				switch col.Name() {
				case fieldTitle:
					essays[i].Title = v
				case fieldURL:
					essays[i].URL = v
				case fieldContent:
					essays[i].Content = v
				case fieldDate:
					essays[i].Date = v
				}
			}
		}
	}
	return essays, nil
}

func essayIDs(fields []column.Column) []int64 {
	for _, field := range fields {
		if col, ok := field.(*column.ColumnInt64); ok && col.Name() == fieldEssayID {
			return slices.Clone(col.Data())
		}
	}
	return []int64{}
}

func idFilter(ids []int64) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return fieldEssayID + " in [" + strings.Join(parts, ", ") + "]"
}
