// Package ingest 将文章语料向量化后写入文档存储。
package ingest

import (
	"context"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"github.com/kart-io/logger"

	"github.com/kart-io/essay-qa/internal/essayqa/metrics"
	"github.com/kart-io/essay-qa/internal/essayqa/store"
	"github.com/kart-io/essay-qa/internal/model"
	"github.com/kart-io/essay-qa/internal/pkg/textutil"
	"github.com/kart-io/essay-qa/pkg/infra/pool"
	"github.com/kart-io/essay-qa/pkg/llm"
	"github.com/kart-io/essay-qa/pkg/utils/json"
	"github.com/kart-io/essay-qa/pkg/validator"
)

// unknownDate 语料缺少日期时的占位值。
const unknownDate = "Unknown"

// Config 导入配置。
type Config struct {
	// BatchSize 每次 embedding 请求的文章数。
	BatchSize int
	// MaxChars 参与 embedding 的最大字符数。
	MaxChars int
}

// DefaultConfig 返回默认配置。
func DefaultConfig() *Config {
	return &Config{
		BatchSize: 10,
		MaxChars:  8000,
	}
}

// Result 导入统计。
type Result struct {
	Total    int           `json:"total"`
	Indexed  int           `json:"indexed"`
	Skipped  int           `json:"skipped"`
	Duration time.Duration `json:"duration"`
}

// Indexer 负责语料导入。
type Indexer struct {
	store         store.DocumentStore
	embedProvider llm.EmbeddingProvider
	pool          *pool.Pool
	metrics       *metrics.QAMetrics
	config        *Config
}

// NewIndexer 创建导入器，embedding 请求在 p 上并发执行。
func NewIndexer(documentStore store.DocumentStore, embedProvider llm.EmbeddingProvider, p *pool.Pool, m *metrics.QAMetrics, config *Config) *Indexer {
	if config == nil {
		config = DefaultConfig()
	}
	if m == nil {
		m = metrics.Default()
	}
	return &Indexer{
		store:         documentStore,
		embedProvider: embedProvider,
		pool:          p,
		metrics:       m,
		config:        config,
	}
}

// LoadCorpus 读取 [{title,url,content,date}] 格式的语料文件。
// 未携带 id 的文章按文件顺序从已有最大 id 之后依次编号，同一文件多次导入得到相同的 id。
func LoadCorpus(path string) ([]model.Essay, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read corpus %s: %w", path, err)
	}

	var essays []model.Essay
	if err := json.Unmarshal(data, &essays); err != nil {
		return nil, fmt.Errorf("failed to decode corpus %s: %w", path, err)
	}
	for i := range essays {
		if err := validator.Struct(essays[i]); err != nil {
			return nil, fmt.Errorf("%s: essay #%d: %w", path, i+1, err)
		}
		if essays[i].Date == "" {
			essays[i].Date = unknownDate
		}
	}

	assignIDs(essays)

	logger.Infof("Loaded %d essays from %s", len(essays), path)
	return essays, nil
}

func assignIDs(essays []model.Essay) {
	var next int64
	for _, e := range essays {
		next = max(next, e.ID)
	}
	for i := range essays {
		if essays[i].ID == 0 {
			next++
			essays[i].ID = next
		}
	}
}

// Index 分批生成向量并按 URL 写入存储。
// embedding 失败的批次跳过并计数；存储写入失败会中止导入。
func (i *Indexer) Index(ctx context.Context, essays []model.Essay) (Result, error) {
	start := time.Now()
	var indexed, skipped atomic.Int64

	group, _ := pool.NewGroup(ctx, i.pool)
	for begin := 0; begin < len(essays); begin += i.config.BatchSize {
		end := min(begin+i.config.BatchSize, len(essays))
		batch := append([]model.Essay(nil), essays[begin:end]...)

		group.Go(func(ctx context.Context) error {
			n, err := i.indexBatch(ctx, batch)
			if err != nil {
				return err
			}
			indexed.Add(int64(n))
			skipped.Add(int64(len(batch) - n))
			return nil
		})
	}
	err := group.Wait()

	result := Result{
		Total:    len(essays),
		Indexed:  int(indexed.Load()),
		Skipped:  int(skipped.Load()),
		Duration: time.Since(start),
	}
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		return result, fmt.Errorf("indexing aborted: %w", err)
	}

	logger.Infow("indexing completed",
		"total", result.Total,
		"indexed", result.Indexed,
		"skipped", result.Skipped,
		"duration", result.Duration.String(),
	)
	return result, nil
}

// indexBatch 处理一批文章，返回成功写入的数量。
func (i *Indexer) indexBatch(ctx context.Context, batch []model.Essay) (int, error) {
	texts := make([]string, len(batch))
	for idx, e := range batch {
		texts[idx] = textutil.TruncateString(e.Content, i.config.MaxChars)
	}

	embeddings, err := i.embedProvider.Embed(ctx, texts)
	if err == nil && len(embeddings) != len(batch) {
		err = fmt.Errorf("provider returned %d embeddings for %d essays", len(embeddings), len(batch))
	}
	if err != nil {
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		logger.Warnw("failed to embed batch, skipping",
			"first", batch[0].Title,
			"size", len(batch),
			"error", err.Error(),
		)
		i.metrics.RecordIndexing(0, err)
		return 0, nil
	}

	for idx := range batch {
		batch[idx].Embedding = embeddings[idx]
	}
	if err := i.store.Upsert(ctx, batch); err != nil {
		i.metrics.RecordIndexing(0, err)
		return 0, fmt.Errorf("failed to upsert batch starting at %q: %w", batch[0].URL, err)
	}

	i.metrics.RecordIndexing(len(batch), nil)
	logger.Debugw("batch indexed", "first", batch[0].Title, "size", len(batch))
	return len(batch), nil
}
