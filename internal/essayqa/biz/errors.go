package biz

import (
	"errors"
	"fmt"

	"github.com/kart-io/essay-qa/internal/essayqa/store"
)

// ErrEmptyQuestion 问题为空。
var ErrEmptyQuestion = errors.New("question is required")

// ProviderError 表示向量化或生成调用失败。
type ProviderError struct {
	// Op 失败的操作：embed、generate。
	Op       string
	Provider string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s via %s failed: %v", e.Op, e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// StoreQueryError 检索链路失败，与空结果区分。
type StoreQueryError = store.QueryError

// NoCandidatesError 调用方在没有候选文章时调用了 Synthesizer。
type NoCandidatesError struct{}

func (*NoCandidatesError) Error() string {
	return "no candidate essays to synthesize from"
}

// ErrNoCandidates 是 Synthesizer 在候选为空时返回的错误。
var ErrNoCandidates error = &NoCandidatesError{}
