package biz

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/kart-io/essay-qa/internal/essayqa/store"
	"github.com/kart-io/essay-qa/internal/model"
	"github.com/kart-io/essay-qa/pkg/llm"
)

// mockEmbedder 返回固定向量。
type mockEmbedder struct {
	vector []float32
	err    error
	calls  atomic.Int32
}

func (m *mockEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		v, err := m.EmbedSingle(ctx, texts[i])
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (m *mockEmbedder) EmbedSingle(context.Context, string) ([]float32, error) {
	m.calls.Add(1)
	if m.err != nil {
		return nil, m.err
	}
	return m.vector, nil
}

func (m *mockEmbedder) Name() string { return "mock-embed" }

// mockChat 记录收到的消息并返回预设内容。
type mockChat struct {
	mu       sync.Mutex
	content  string
	err      error
	block    chan struct{}
	usage    *llm.TokenUsage
	calls    int
	messages []llm.Message
	options  llm.GenerateOptions
}

func (m *mockChat) Chat(ctx context.Context, messages []llm.Message, opts ...llm.GenerateOption) (*llm.GenerateResponse, error) {
	m.mu.Lock()
	m.calls++
	m.messages = messages
	m.options = llm.ApplyOptions(opts...)
	m.mu.Unlock()

	if m.block != nil {
		// 忽略 ctx，模拟不响应取消的 provider
		<-m.block
	}
	if m.err != nil {
		return nil, m.err
	}
	return &llm.GenerateResponse{Content: m.content, TokenUsage: m.usage}, nil
}

func (m *mockChat) Generate(ctx context.Context, prompt, systemPrompt string, opts ...llm.GenerateOption) (*llm.GenerateResponse, error) {
	return m.Chat(ctx, llm.BuildMessages(prompt, systemPrompt), opts...)
}

func (m *mockChat) Name() string { return "mock-chat" }

func (m *mockChat) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// failingStore 相似度检索失败，降级查询委托给内存存储。
type failingStore struct {
	*store.MemoryStore
	searchErr   error
	fallbackErr error
}

func (s *failingStore) SimilaritySearch(context.Context, []float32, float32, int) ([]model.RankedCandidate, error) {
	return nil, s.searchErr
}

func (s *failingStore) FirstN(ctx context.Context, limit int) ([]model.Essay, error) {
	if s.fallbackErr != nil {
		return nil, s.fallbackErr
	}
	return s.MemoryStore.FirstN(ctx, limit)
}

var errRPC = errors.New("rpc match_essays failed")

func corpus() []model.Essay {
	return []model.Essay{
		{ID: 1, Title: "How to Start a Startup", URL: "http://paulgraham.com/start.html", Content: "Startups are about solving problems.", Embedding: []float32{1, 0, 0}},
		{ID: 2, Title: "What I Worked On", URL: "http://paulgraham.com/worked.html", Content: "Before college I wrote short stories.", Embedding: []float32{0, 1, 0}},
		{ID: 3, Title: "Do Things that Don't Scale", URL: "http://paulgraham.com/ds.html", Content: "Recruit users manually.", Embedding: []float32{0.9, 0.1, 0}},
		{ID: 4, Title: "Maker's Schedule, Manager's Schedule", URL: "http://paulgraham.com/makersschedule.html", Content: "Meetings cost makers half a day.", Embedding: []float32{0, 0, 1}},
		{ID: 5, Title: "Hackers and Painters", URL: "http://paulgraham.com/hp.html", Content: "Hacking and painting are both making.", Embedding: []float32{0.8, 0.2, 0}},
		{ID: 6, Title: "Default Alive or Default Dead?", URL: "http://paulgraham.com/aord.html", Content: "Will you make it to profitability?", Embedding: []float32{0.7, 0, 0.3}},
		{ID: 7, Title: "Schlep Blindness", URL: "http://paulgraham.com/schlep.html", Content: "Tedious problems are overlooked.", Embedding: []float32{0.95, 0, 0.05}},
	}
}

func candidatesOf(n int) []model.RankedCandidate {
	out := make([]model.RankedCandidate, 0, n)
	for i, e := range corpus() {
		if i == n {
			break
		}
		out = append(out, model.RankedCandidate{Essay: e, Similarity: 0.9})
	}
	return out
}
