package store

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/kart-io/essay-qa/internal/model"
	storeopts "github.com/kart-io/essay-qa/pkg/options/store"
	"github.com/kart-io/essay-qa/pkg/utils/json"
)

var _ DocumentStore = (*SQLStore)(nil)

// essayRow 文章表的行结构。Embedding 以 JSON 数组文本保存，
// 该格式同时是 pgvector 的输入格式。
type essayRow struct {
	ID        int64  `gorm:"primaryKey;autoIncrement"`
	Title     string `gorm:"size:512;not null"`
	URL       string `gorm:"size:512;not null;uniqueIndex"`
	Content   string `gorm:"type:text;not null"`
	Date      string `gorm:"size:64"`
	Embedding string `gorm:"type:text"`
}

type scoredRow struct {
	ID         int64
	Title      string
	URL        string
	Content    string
	Date       string
	Similarity float64
}

// SQLStore 基于 gorm 的文章存储。
// postgres 上相似度检索由 pgvector 完成，其余驱动在进程内排序。
type SQLStore struct {
	db        *gorm.DB
	driver    string
	table     string
	dimension int
}

// NewSQLStore 创建 SQL 存储实例。
func NewSQLStore(db *gorm.DB, driver, table string, dimension int) *SQLStore {
	return &SQLStore{
		db:        db,
		driver:    driver,
		table:     table,
		dimension: dimension,
	}
}

// Migrate 创建文章表。postgres 上同时启用 vector 扩展。
func (s *SQLStore) Migrate(ctx context.Context) error {
	db := s.db.WithContext(ctx)
	if s.driver != storeopts.DriverPostgres {
		if err := db.Table(s.table).AutoMigrate(&essayRow{}); err != nil {
			return fmt.Errorf("failed to migrate table %s: %w", s.table, err)
		}
		return nil
	}

	stmts := []string{
		"CREATE EXTENSION IF NOT EXISTS vector",
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %q (
	id BIGSERIAL PRIMARY KEY,
	title TEXT NOT NULL,
	url TEXT NOT NULL UNIQUE,
	content TEXT NOT NULL,
	date TEXT,
	embedding vector(%d)
)`, s.table, s.dimension),
	}
	for _, stmt := range stmts {
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("failed to migrate table %s: %w", s.table, err)
		}
	}
	return nil
}

// SimilaritySearch 执行相似度检索。
func (s *SQLStore) SimilaritySearch(ctx context.Context, embedding []float32, threshold float32, limit int) ([]model.RankedCandidate, error) {
	if s.driver == storeopts.DriverPostgres {
		return s.vectorSearch(ctx, embedding, threshold, limit)
	}

	var rows []essayRow
	err := s.db.WithContext(ctx).
		Table(s.table).
		Where("embedding IS NOT NULL AND embedding <> ''").
		Order("id").
		Find(&rows).Error
	if err != nil {
		return nil, queryError("similarity search", err)
	}

	essays := make([]model.Essay, 0, len(rows))
	for _, r := range rows {
		e, err := r.toEssay()
		if err != nil {
			return nil, queryError("similarity search", err)
		}
		essays = append(essays, e)
	}
	return rankByEmbedding(essays, embedding, threshold, limit), nil
}

// vectorSearch 将检索下推到 pgvector，<=> 为余弦距离。
func (s *SQLStore) vectorSearch(ctx context.Context, embedding []float32, threshold float32, limit int) ([]model.RankedCandidate, error) {
	vec, err := json.Marshal(embedding)
	if err != nil {
		return nil, queryError("similarity search", err)
	}
	q := string(vec)

	var rows []scoredRow
	err = s.db.WithContext(ctx).Raw(
		`SELECT id, title, url, content, date, 1 - (embedding <=> ?::vector) AS similarity FROM ? `+
			`WHERE 1 - (embedding <=> ?::vector) > ? ORDER BY embedding <=> ?::vector, id LIMIT ?`,
		q, clause.Table{Name: s.table}, q, threshold, q, limit,
	).Scan(&rows).Error
	if err != nil {
		return nil, queryError("similarity search", err)
	}

	candidates := make([]model.RankedCandidate, len(rows))
	for i, r := range rows {
		candidates[i] = model.RankedCandidate{
			Essay: model.Essay{
				ID:      r.ID,
				Title:   r.Title,
				URL:     r.URL,
				Content: r.Content,
				Date:    r.Date,
			},
			Similarity: float32(r.Similarity),
		}
	}
	return Rank(candidates, limit), nil
}

// FirstN 按 ID 升序返回前 limit 篇文章。
func (s *SQLStore) FirstN(ctx context.Context, limit int) ([]model.Essay, error) {
	var rows []essayRow
	err := s.db.WithContext(ctx).
		Table(s.table).
		Select("id", "title", "url", "content", "date").
		Order("id").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	essays := make([]model.Essay, len(rows))
	for i, r := range rows {
		essays[i] = model.Essay{ID: r.ID, Title: r.Title, URL: r.URL, Content: r.Content, Date: r.Date}
	}
	return essays, nil
}

// Upsert 按 URL 写入或更新文章。
func (s *SQLStore) Upsert(ctx context.Context, essays []model.Essay) error {
	if len(essays) == 0 {
		return nil
	}

	rows := make([]essayRow, len(essays))
	for i, e := range essays {
		row, err := fromEssay(e)
		if err != nil {
			return err
		}
		rows[i] = row
	}

	err := s.db.WithContext(ctx).
		Table(s.table).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "url"}},
			DoUpdates: clause.AssignmentColumns([]string{"title", "content", "date", "embedding"}),
		}).
		Create(&rows).Error
	if err != nil {
		return fmt.Errorf("failed to upsert essays: %w", err)
	}
	return nil
}

// Count 返回文章数量。
func (s *SQLStore) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.WithContext(ctx).Table(s.table).Count(&n).Error; err != nil {
		return 0, err
	}
	return n, nil
}

// Close 关闭数据库连接。
func (s *SQLStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func fromEssay(e model.Essay) (essayRow, error) {
	row := essayRow{
		ID:      e.ID,
		Title:   e.Title,
		URL:     e.URL,
		Content: e.Content,
		Date:    e.Date,
	}
	if len(e.Embedding) > 0 {
		vec, err := json.Marshal(e.Embedding)
		if err != nil {
			return essayRow{}, fmt.Errorf("failed to encode embedding of %s: %w", e.URL, err)
		}
		row.Embedding = string(vec)
	}
	return row, nil
}

func (r essayRow) toEssay() (model.Essay, error) {
	e := model.Essay{
		ID:      r.ID,
		Title:   r.Title,
		URL:     r.URL,
		Content: r.Content,
		Date:    r.Date,
	}
	if r.Embedding != "" {
		if err := json.Unmarshal([]byte(r.Embedding), &e.Embedding); err != nil {
			return model.Essay{}, fmt.Errorf("failed to decode embedding of essay %d: %w", r.ID, err)
		}
	}
	return e, nil
}
