package biz

import (
	"fmt"
	"strings"

	"github.com/kart-io/essay-qa/internal/model"
	"github.com/kart-io/essay-qa/internal/pkg/textutil"
	"github.com/kart-io/essay-qa/pkg/llm"
)

// 面向用户的固定文案。
const (
	// NoRelevantInfoMessage 检索为空时的回答。
	NoRelevantInfoMessage = "I couldn't find any relevant information from Paul Graham's essays to answer your question."

	// TimeoutAnswer 生成超时时的降级回答。
	TimeoutAnswer = "I apologize, but the response took too long to generate. Please try again with a more specific question or try later."

	// TimeoutReferences 生成超时时的引用占位。
	TimeoutReferences = "Response timed out"

	// EmptyGenerationAnswer LLM 返回空内容时的回答。
	EmptyGenerationAnswer = "I couldn't generate an answer based on the available information."
)

// Style 提示词风格。
type Style string

const (
	// StyleQA 基于摘录作答，低温度，用于问答与评测。
	StyleQA Style = "qa"
	// StyleSummary 交互式摘要，较高温度，回答更短。
	StyleSummary Style = "summary"
)

// StyleConfig 某种风格的生成参数。
type StyleConfig struct {
	Temperature  float64
	MaxTokens    int
	ExcerptChars int
}

var styleConfigs = map[Style]StyleConfig{
	StyleQA:      {Temperature: 0.3, MaxTokens: 1000, ExcerptChars: 1500},
	StyleSummary: {Temperature: 0.7, MaxTokens: 350, ExcerptChars: 500},
}

// ParseStyle 解析风格名称。
func ParseStyle(s string) (Style, error) {
	style := Style(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := styleConfigs[style]; !ok {
		return "", fmt.Errorf("unknown prompt style %q", s)
	}
	return style, nil
}

// Config 返回风格的生成参数，未知风格按 StyleQA 处理。
func (s Style) Config() StyleConfig {
	if c, ok := styleConfigs[s]; ok {
		return c
	}
	return styleConfigs[StyleQA]
}

const qaSystemPrompt = `You are an AI assistant specialized in Paul Graham's essays.
Answer questions based ONLY on the provided essay extracts.
If the information isn't in the provided essays, say you don't know instead of making things up.
Cite essays with numbered citations like [1], [2] matching the numbers in the extract headings.
Be concise but comprehensive in addressing the key points related to the question.`

const summaryPromptTemplate = `Based on the following essays by Paul Graham, answer this question: "%s"

%s
Format your response as follows:
1. Use numbered citations like [1], [2], etc. when referencing specific essays
2. Make your response focused and concise
3. Bold important concepts or terms using **term** markdown syntax
4. Include specific examples from the essays when relevant
5. Aim for 1-2 paragraphs in total
6. End with a one-sentence summary that captures the essence of the answer

Your response should show understanding while remaining clear and easy to follow.`

// citedEssay 带引用编号的候选文章。
type citedEssay struct {
	refIndex int
	essay    model.Essay
}

// excerpt 按字符截断，截断时追加省略号。
func excerpt(content string, limit int) string {
	return textutil.Excerpt(content, limit)
}

// buildMessages 按风格构建消息。
func buildMessages(style Style, question string, cited []citedEssay) []llm.Message {
	chars := style.Config().ExcerptChars

	var sb strings.Builder
	if style == StyleSummary {
		for _, c := range cited {
			fmt.Fprintf(&sb, "Essay %d: \"%s\" (%s)\n%s\n\n", c.refIndex, c.essay.Title, c.essay.URL, excerpt(c.essay.Content, chars))
		}
		return []llm.Message{
			{Role: llm.RoleUser, Content: fmt.Sprintf(summaryPromptTemplate, question, sb.String())},
		}
	}

	for i, c := range cited {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		fmt.Fprintf(&sb, "## [%d] %s\n%s\n", c.refIndex, c.essay.Title, excerpt(c.essay.Content, chars))
	}
	return []llm.Message{
		{Role: llm.RoleSystem, Content: qaSystemPrompt},
		{Role: llm.RoleUser, Content: fmt.Sprintf(
			"I want to know about the following: %s\n\nHere are relevant excerpts from Paul Graham's essays:\n\n%s",
			question, sb.String())},
	}
}

// formatReferences 生成 `[n] "title"` 形式的引用列表，以空行分隔。
func formatReferences(citations []model.Citation) string {
	parts := make([]string, len(citations))
	for i, c := range citations {
		parts[i] = fmt.Sprintf("[%d] \"%s\"", c.RefIndex, c.Title)
	}
	return strings.Join(parts, "\n\n")
}
