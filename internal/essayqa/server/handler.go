package server

import (
	"context"
	stderrors "errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/kart-io/essay-qa/internal/essayqa/biz"
	"github.com/kart-io/essay-qa/internal/model"
	"github.com/kart-io/essay-qa/pkg/response"
	"github.com/kart-io/essay-qa/pkg/utils/errors"
)

// timeoutError 降级摘要随响应返回的错误说明。
const timeoutError = "generation timeout"

// Handler 问答 HTTP 处理器。
type Handler struct {
	service biz.Service
}

// NewHandler 创建处理器。
func NewHandler(service biz.Service) *Handler {
	return &Handler{service: service}
}

// EssayDTO 接口中的文章。
type EssayDTO struct {
	ID         int64   `json:"id"`
	Title      string  `json:"title"`
	URL        string  `json:"url"`
	Content    string  `json:"content"`
	Date       string  `json:"date,omitempty"`
	Similarity float32 `json:"similarity"`
}

// SearchRequest 检索请求。
type SearchRequest struct {
	Query string `json:"query"`
}

// SearchResponse 检索响应。
type SearchResponse struct {
	Essays   []EssayDTO             `json:"essays"`
	Outcome  model.RetrievalOutcome `json:"outcome"`
	Degraded bool                   `json:"degraded"`
}

// SummarizeRequest 摘要请求，essays 为检索接口返回的文章。
type SummarizeRequest struct {
	Essays []EssayDTO `json:"essays"`
	Query  string     `json:"query"`
}

// SummarizeResponse 摘要响应。超时时仍返回 200，Error 说明原因。
type SummarizeResponse struct {
	Summary    string `json:"summary"`
	References string `json:"references"`
	Error      string `json:"error,omitempty"`
}

// AskRequest 问答请求。
type AskRequest struct {
	Question string `json:"question"`
}

// Search 检索相关文章。
func (h *Handler) Search(c *gin.Context) {
	var req SearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.FailWithBind(c, err)
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		response.Fail(c, errors.ErrQAInvalidQuery.WithMessage("Query is required"))
		return
	}

	ctx := c.Request.Context()
	result, err := h.service.Search(ctx, req.Query)
	if err != nil {
		response.Fail(c, toErrno(ctx, err))
		return
	}

	essays := make([]EssayDTO, len(result.Candidates))
	for i, cand := range result.Candidates {
		essays[i] = essayDTO(cand)
	}
	response.OK(c, SearchResponse{
		Essays:   essays,
		Outcome:  result.Outcome,
		Degraded: result.Degraded(),
	})
}

// Summarize 根据给定文章生成带编号引用的摘要。
func (h *Handler) Summarize(c *gin.Context) {
	var req SummarizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.FailWithBind(c, err)
		return
	}
	if len(req.Essays) == 0 {
		response.Fail(c, errors.ErrQANoDocuments)
		return
	}

	candidates := make([]model.RankedCandidate, len(req.Essays))
	for i, e := range req.Essays {
		candidates[i] = model.RankedCandidate{
			Essay: model.Essay{
				ID:      e.ID,
				Title:   e.Title,
				URL:     e.URL,
				Content: e.Content,
				Date:    e.Date,
			},
			Similarity: e.Similarity,
		}
	}

	ctx := c.Request.Context()
	synthesis, err := h.service.Summarize(ctx, req.Query, candidates)
	if err != nil {
		response.Fail(c, toErrno(ctx, err))
		return
	}

	resp := SummarizeResponse{
		Summary:    synthesis.Answer,
		References: synthesis.References,
	}
	if synthesis.Degraded {
		resp.Error = timeoutError
	}
	response.OK(c, resp)
}

// Ask 执行完整问答。
func (h *Handler) Ask(c *gin.Context) {
	var req AskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.FailWithBind(c, err)
		return
	}

	ctx := c.Request.Context()
	answer, err := h.service.Answer(ctx, req.Question)
	if err != nil {
		response.Fail(c, toErrno(ctx, err))
		return
	}
	response.OK(c, answer)
}

// Stats 返回语料与运行统计。
func (h *Handler) Stats(c *gin.Context) {
	stats, err := h.service.Stats(c.Request.Context())
	if err != nil {
		response.Fail(c, errors.ErrQAStatsUnavailable.WithCause(err))
		return
	}
	response.OK(c, stats)
}

// Health 存活检查。
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func essayDTO(c model.RankedCandidate) EssayDTO {
	return EssayDTO{
		ID:         c.Essay.ID,
		Title:      c.Essay.Title,
		URL:        c.Essay.URL,
		Content:    c.Essay.Content,
		Date:       c.Essay.Date,
		Similarity: c.Similarity,
	}
}

// toErrno 将业务错误映射为错误码。
func toErrno(ctx context.Context, err error) *errors.Errno {
	var (
		providerErr *biz.ProviderError
		storeErr    *biz.StoreQueryError
		noCand      *biz.NoCandidatesError
	)

	switch {
	case stderrors.Is(err, context.DeadlineExceeded) || stderrors.Is(ctx.Err(), context.DeadlineExceeded):
		return errors.ErrRequestTimeout.WithCause(err)
	case stderrors.Is(err, biz.ErrEmptyQuestion):
		return errors.ErrQAInvalidQuery
	case stderrors.As(err, &noCand):
		return errors.ErrQANoDocuments
	case stderrors.As(err, &providerErr):
		if providerErr.Op == "embed" {
			return errors.ErrQAEmbeddingFailed.WithCause(err)
		}
		return errors.ErrQAGenerationFailed.WithCause(err)
	case stderrors.As(err, &storeErr):
		return errors.ErrQASearchFailed.WithCause(err)
	default:
		return errors.FromError(err)
	}
}
