package resilience

import (
	"context"

	"github.com/kart-io/essay-qa/pkg/llm"
)

// EmbeddingProvider 为 Embedding 调用增加重试与熔断。
type EmbeddingProvider struct {
	next    llm.EmbeddingProvider
	retry   *RetryConfig
	breaker *Breaker
}

// WrapEmbedding 包装 Embedding 供应商。
func WrapEmbedding(next llm.EmbeddingProvider, retry *RetryConfig, breaker *BreakerConfig) *EmbeddingProvider {
	return &EmbeddingProvider{
		next:    next,
		retry:   retry,
		breaker: NewBreaker("embedding:"+next.Name(), breaker),
	}
}

func (p *EmbeddingProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	var out [][]float32
	err := Retry(ctx, p.retry, func() error {
		return p.breaker.Do(func() error {
			var err error
			out, err = p.next.Embed(ctx, texts)
			return err
		})
	})
	return out, err
}

func (p *EmbeddingProvider) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	var out []float32
	err := Retry(ctx, p.retry, func() error {
		return p.breaker.Do(func() error {
			var err error
			out, err = p.next.EmbedSingle(ctx, text)
			return err
		})
	})
	return out, err
}

func (p *EmbeddingProvider) Name() string { return p.next.Name() }

// Breaker 返回内部熔断器。
func (p *EmbeddingProvider) Breaker() *Breaker { return p.breaker }

// ChatProvider 为 Chat 调用增加重试与熔断。
type ChatProvider struct {
	next    llm.ChatProvider
	retry   *RetryConfig
	breaker *Breaker
}

// WrapChat 包装 Chat 供应商。
func WrapChat(next llm.ChatProvider, retry *RetryConfig, breaker *BreakerConfig) *ChatProvider {
	return &ChatProvider{
		next:    next,
		retry:   retry,
		breaker: NewBreaker("chat:"+next.Name(), breaker),
	}
}

func (p *ChatProvider) Chat(ctx context.Context, messages []llm.Message, opts ...llm.GenerateOption) (*llm.GenerateResponse, error) {
	var out *llm.GenerateResponse
	err := Retry(ctx, p.retry, func() error {
		return p.breaker.Do(func() error {
			var err error
			out, err = p.next.Chat(ctx, messages, opts...)
			return err
		})
	})
	return out, err
}

func (p *ChatProvider) Generate(ctx context.Context, prompt string, systemPrompt string, opts ...llm.GenerateOption) (*llm.GenerateResponse, error) {
	return p.Chat(ctx, llm.BuildMessages(prompt, systemPrompt), opts...)
}

func (p *ChatProvider) Name() string { return p.next.Name() }

// Breaker 返回内部熔断器。
func (p *ChatProvider) Breaker() *Breaker { return p.breaker }

var (
	_ llm.EmbeddingProvider = (*EmbeddingProvider)(nil)
	_ llm.ChatProvider      = (*ChatProvider)(nil)
)
