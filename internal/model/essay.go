// Package model provides the value types shared by the essay QA services.
package model

// Essay 表示语料库中的一篇文章，入库后不再修改。
type Essay struct {
	ID      int64  `json:"id"`
	Title   string `json:"title" validate:"required"`
	URL     string `json:"url" validate:"required"`
	Content string `json:"content"`
	Date    string `json:"date,omitempty"`
	// Embedding 为空表示尚未建立索引。
	Embedding []float32 `json:"embedding,omitempty"`
}

// RankedCandidate 检索命中的文章及其相似度，按相似度降序排列。
type RankedCandidate struct {
	Essay      Essay   `json:"essay"`
	Similarity float32 `json:"similarity"`
}

// Citation 答案中引用的文章，RefIndex 从 1 开始。
type Citation struct {
	RefIndex int    `json:"ref_index"`
	Title    string `json:"title"`
	URL      string `json:"url,omitempty"`
}

// RetrievalOutcome 标记检索结果的来源。
type RetrievalOutcome string

const (
	// OutcomeMatched 向量检索命中。
	OutcomeMatched RetrievalOutcome = "matched"
	// OutcomeEmpty 没有文章达到相似度阈值。
	OutcomeEmpty RetrievalOutcome = "empty"
	// OutcomeDegradedFallback 向量检索失败，退化为按 ID 顺序取前 N 篇。
	OutcomeDegradedFallback RetrievalOutcome = "degraded_fallback"
)

// Answer 一次问答的完整结果。
type Answer struct {
	Question   string            `json:"question"`
	Text       string            `json:"answer"`
	Citations  []Citation        `json:"citations"`
	References string            `json:"references"`
	Sources    []RankedCandidate `json:"sources,omitempty"`
	Outcome    RetrievalOutcome  `json:"outcome"`
	// Degraded 表示生成超时返回了兜底答案。
	Degraded bool `json:"degraded"`
}

// Titles 返回答案引用的文章标题，按 RefIndex 顺序。
func (a *Answer) Titles() []string {
	titles := make([]string, len(a.Citations))
	for i, c := range a.Citations {
		titles[i] = c.Title
	}
	return titles
}

// SourceTitles 返回检索到并用于生成的文章标题。
func (a *Answer) SourceTitles() []string {
	titles := make([]string, len(a.Sources))
	for i, c := range a.Sources {
		titles[i] = c.Essay.Title
	}
	return titles
}
