package server

import (
	"bytes"
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/essay-qa/internal/essayqa/biz"
	"github.com/kart-io/essay-qa/internal/essayqa/metrics"
	"github.com/kart-io/essay-qa/internal/essayqa/store"
	"github.com/kart-io/essay-qa/internal/model"
	"github.com/kart-io/essay-qa/pkg/llm"
	httpopts "github.com/kart-io/essay-qa/pkg/options/http"
	"github.com/kart-io/essay-qa/pkg/response"
	"github.com/kart-io/essay-qa/pkg/utils/errors"
	"github.com/kart-io/essay-qa/pkg/utils/json"
)

// stubEmbedder 所有文本映射到同一向量。
type stubEmbedder struct {
	vector []float32
	err    error
}

func (s *stubEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		v, err := s.EmbedSingle(ctx, texts[i])
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (s *stubEmbedder) EmbedSingle(context.Context, string) ([]float32, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.vector, nil
}

func (s *stubEmbedder) Name() string { return "stub-embed" }

// stubChat 返回固定内容，wait 为 true 时阻塞到 ctx 结束。
type stubChat struct {
	content string
	wait    bool
	err     error
}

func (s *stubChat) Chat(ctx context.Context, _ []llm.Message, _ ...llm.GenerateOption) (*llm.GenerateResponse, error) {
	if s.wait {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if s.err != nil {
		return nil, s.err
	}
	return &llm.GenerateResponse{Content: s.content}, nil
}

func (s *stubChat) Generate(ctx context.Context, prompt, systemPrompt string, opts ...llm.GenerateOption) (*llm.GenerateResponse, error) {
	return s.Chat(ctx, llm.BuildMessages(prompt, systemPrompt), opts...)
}

func (s *stubChat) Name() string { return "stub-chat" }

func corpus() *store.MemoryStore {
	return store.NewMemoryStore(
		model.Essay{ID: 1, Title: "How to Start a Startup", URL: "https://paulgraham.com/start.html", Content: "You need three things to create a successful startup.", Embedding: []float32{1, 0, 0}},
		model.Essay{ID: 2, Title: "Do Things that Don't Scale", URL: "https://paulgraham.com/ds.html", Content: "One of the most common types of advice we give.", Embedding: []float32{0.9, 0.1, 0}},
		model.Essay{ID: 3, Title: "Cities and Ambition", URL: "https://paulgraham.com/cities.html", Content: "Great cities attract ambitious people.", Embedding: []float32{0, 0, 1}},
	)
}

type testEnv struct {
	router *gin.Engine
	chat   *stubChat
	embed  *stubEmbedder
}

func newTestEnv(t *testing.T, synthTimeout time.Duration) *testEnv {
	t.Helper()
	embed := &stubEmbedder{vector: []float32{1, 0, 0}}
	chat := &stubChat{content: "Startups need growth [1]."}
	m := metrics.New()

	synthCfg := biz.DefaultSynthesizerConfig()
	if synthTimeout > 0 {
		synthCfg.Timeout = synthTimeout
	}
	svc := biz.NewQAService(corpus(), embed, chat, nil, m, &biz.ServiceConfig{SynthesizerConfig: synthCfg})

	opts := httpopts.NewOptions()
	opts.Mode = gin.TestMode
	return &testEnv{
		router: NewRouter(NewHandler(svc), NewRegistry(m), opts),
		chat:   chat,
		embed:  embed,
	}
}

func (e *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v))
	return v
}

func TestSearch(t *testing.T) {
	env := newTestEnv(t, 0)

	w := env.do(t, http.MethodPost, "/api/search", `{"query": "how do I start a startup?"}`)
	require.Equal(t, http.StatusOK, w.Code)

	resp := decode[SearchResponse](t, w)
	require.Len(t, resp.Essays, 2)
	assert.Equal(t, int64(1), resp.Essays[0].ID)
	assert.Equal(t, "Do Things that Don't Scale", resp.Essays[1].Title)
	assert.Equal(t, model.OutcomeMatched, resp.Outcome)
	assert.False(t, resp.Degraded)
}

func TestSearch_EmptyQuery(t *testing.T) {
	env := newTestEnv(t, 0)

	w := env.do(t, http.MethodPost, "/api/search", `{"query": "  "}`)
	require.Equal(t, http.StatusBadRequest, w.Code)

	body := decode[response.ErrorBody](t, w)
	assert.Equal(t, errors.ErrQAInvalidQuery.Code, body.Code)
	assert.Equal(t, "Query is required", body.Message)
	assert.NotEmpty(t, body.RequestID)
}

func TestSearch_MalformedBody(t *testing.T) {
	env := newTestEnv(t, 0)

	w := env.do(t, http.MethodPost, "/api/search", `{`)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, errors.ErrInvalidParam.Code, decode[response.ErrorBody](t, w).Code)
}

func TestSearch_EmbeddingFailure(t *testing.T) {
	env := newTestEnv(t, 0)
	env.embed.err = errors.ErrInternal

	w := env.do(t, http.MethodPost, "/api/search", `{"query": "startups"}`)
	require.Equal(t, http.StatusBadGateway, w.Code)
	assert.Equal(t, errors.ErrQAEmbeddingFailed.Code, decode[response.ErrorBody](t, w).Code)
}

func TestSummarize(t *testing.T) {
	env := newTestEnv(t, 0)

	w := env.do(t, http.MethodPost, "/api/summarize", `{
  "query": "What makes startups work?",
  "essays": [
    {"id": 1, "title": "How to Start a Startup", "url": "https://paulgraham.com/start.html", "content": "You need three things.", "similarity": 0.9},
    {"id": 2, "title": "Do Things that Don't Scale", "url": "https://paulgraham.com/ds.html", "content": "Recruit users manually.", "similarity": 0.8}
  ]
}`)
	require.Equal(t, http.StatusOK, w.Code)

	resp := decode[SummarizeResponse](t, w)
	assert.Equal(t, "Startups need growth [1].", resp.Summary)
	assert.Equal(t, "[1] \"How to Start a Startup\"\n\n[2] \"Do Things that Don't Scale\"", resp.References)
	assert.Empty(t, resp.Error)
}

func TestSummarize_NoEssays(t *testing.T) {
	env := newTestEnv(t, 0)

	w := env.do(t, http.MethodPost, "/api/summarize", `{"query": "q", "essays": []}`)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, errors.ErrQANoDocuments.Code, decode[response.ErrorBody](t, w).Code)
}

func TestSummarize_TimeoutIsDegradedSuccess(t *testing.T) {
	env := newTestEnv(t, 30*time.Millisecond)
	env.chat.wait = true

	w := env.do(t, http.MethodPost, "/api/summarize", `{"query": "q", "essays": [{"id": 1, "title": "T", "url": "u", "content": "c"}]}`)
	require.Equal(t, http.StatusOK, w.Code)

	resp := decode[SummarizeResponse](t, w)
	assert.Equal(t, biz.TimeoutAnswer, resp.Summary)
	assert.Equal(t, biz.TimeoutReferences, resp.References)
	assert.Equal(t, timeoutError, resp.Error)
}

func TestAsk(t *testing.T) {
	env := newTestEnv(t, 0)

	w := env.do(t, http.MethodPost, "/api/ask", `{"question": "How do I start a startup?"}`)
	require.Equal(t, http.StatusOK, w.Code)

	answer := decode[model.Answer](t, w)
	assert.Equal(t, "Startups need growth [1].", answer.Text)
	assert.Equal(t, model.OutcomeMatched, answer.Outcome)
	require.NotEmpty(t, answer.Citations)
	assert.Equal(t, 1, answer.Citations[0].RefIndex)
}

func TestAsk_NoRelevantEssays(t *testing.T) {
	env := newTestEnv(t, 0)
	env.embed.vector = []float32{0, 1, 0}

	w := env.do(t, http.MethodPost, "/api/ask", `{"question": "What about painting?"}`)
	require.Equal(t, http.StatusOK, w.Code)

	answer := decode[model.Answer](t, w)
	assert.Equal(t, biz.NoRelevantInfoMessage, answer.Text)
	assert.Equal(t, model.OutcomeEmpty, answer.Outcome)
}

func TestAsk_GenerationFailure(t *testing.T) {
	env := newTestEnv(t, 0)
	env.chat.err = errors.ErrInternal

	w := env.do(t, http.MethodPost, "/api/ask", `{"question": "How do I start a startup?"}`)
	require.Equal(t, http.StatusBadGateway, w.Code)
	assert.Equal(t, errors.ErrQAGenerationFailed.Code, decode[response.ErrorBody](t, w).Code)
}

func TestAsk_ChineseErrorMessage(t *testing.T) {
	env := newTestEnv(t, 0)

	req := httptest.NewRequest(http.MethodPost, "/api/ask", strings.NewReader(`{"question": ""}`))
	req.Header.Set("Accept-Language", "zh-CN,zh;q=0.9")
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, errors.ErrQAInvalidQuery.MessageZH, decode[response.ErrorBody](t, w).Message)
}

func TestStatsHealthAndMetrics(t *testing.T) {
	env := newTestEnv(t, 0)
	env.do(t, http.MethodPost, "/api/ask", `{"question": "How do I start a startup?"}`)

	w := env.do(t, http.MethodGet, "/api/stats", "")
	require.Equal(t, http.StatusOK, w.Code)
	stats := decode[map[string]any](t, w)
	assert.EqualValues(t, 3, stats["essay_count"])
	assert.Equal(t, "stub-chat", stats["chat_provider"])

	w = env.do(t, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())

	w = env.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "essayqa_")
	assert.Contains(t, w.Body.String(), "go_goroutines")
}

func TestToErrno(t *testing.T) {
	ctx := context.Background()
	deadline, cancel := context.WithTimeout(ctx, 0)
	defer cancel()
	<-deadline.Done()

	tests := []struct {
		name string
		ctx  context.Context
		err  error
		want *errors.Errno
	}{
		{"empty question", ctx, biz.ErrEmptyQuestion, errors.ErrQAInvalidQuery},
		{"no candidates", ctx, biz.ErrNoCandidates, errors.ErrQANoDocuments},
		{"embed", ctx, &biz.ProviderError{Op: "embed", Err: net.ErrClosed}, errors.ErrQAEmbeddingFailed},
		{"generate", ctx, &biz.ProviderError{Op: "generate", Err: net.ErrClosed}, errors.ErrQAGenerationFailed},
		{"store", ctx, &biz.StoreQueryError{Op: "fallback", Err: net.ErrClosed}, errors.ErrQASearchFailed},
		{"deadline", deadline, net.ErrClosed, errors.ErrRequestTimeout},
		{"unknown", ctx, net.ErrClosed, errors.ErrInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want.Code, toErrno(tt.ctx, tt.err).Code)
		})
	}
}

func TestServer_GracefulShutdown(t *testing.T) {
	opts := httpopts.NewOptions()
	opts.ShutdownTimeout = time.Second
	srv := New(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}), opts)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()

	resp, err := http.Post("http://"+ln.Addr().String()+"/", "text/plain", bytes.NewReader(nil))
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("server did not shut down")
	}
}
