package evaluator

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// 评审回复中的分数标签，顺序与提示词一致。
const (
	LabelRelevance    = "RELEVANCE"
	LabelAccuracy     = "ACCURACY"
	LabelCompleteness = "COMPLETENESS"
	LabelCitation     = "CITATION QUALITY"
	LabelOverall      = "OVERALL QUALITY"

	labelSuggestions = "IMPROVEMENT SUGGESTIONS"
)

// Labels 返回全部分数标签。
func Labels() []string {
	return []string{LabelRelevance, LabelAccuracy, LabelCompleteness, LabelCitation, LabelOverall}
}

var (
	labelPatterns = func() map[string]*regexp.Regexp {
		m := make(map[string]*regexp.Regexp, 5)
		for _, label := range Labels() {
			m[label] = scorePattern(label)
		}
		return m
	}()

	suggestionsPattern = regexp.MustCompile(`(?is)` + labelWords(labelSuggestions) + `\**\s*[:：]\s*\**(.*)$`)
)

// labelWords 允许标签单词之间出现任意空白。
func labelWords(label string) string {
	return strings.ReplaceAll(regexp.QuoteMeta(label), " ", `\s+`)
}

// scorePattern 匹配 "LABEL: 7"、"**Label**: [8]"、"LABEL (1-10): 9/10" 等写法。
func scorePattern(label string) *regexp.Regexp {
	return regexp.MustCompile(`(?i)\b` + labelWords(label) +
		`\b\**\s*(?:\(\s*1\s*-\s*10\s*\))?\s*\**\s*[:：]\s*\**\s*\[?\s*(\d{1,2})\b`)
}

// ParseError 评审回复中缺少部分分数标签。
type ParseError struct {
	Missing []string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("judge response missing scores for %s", strings.Join(e.Missing, ", "))
}

// ParsedScores 评审回复的解析结果。
type ParsedScores struct {
	Raw         RawScores
	Missing     []string
	Suggestions string
}

// Metrics 返回归一化分数，缺失项为 0。
func (p ParsedScores) Metrics() Metrics {
	return p.Raw.Metrics()
}

// Err 在有缺失标签时返回 *ParseError。
func (p ParsedScores) Err() error {
	if len(p.Missing) == 0 {
		return nil
	}
	return &ParseError{Missing: p.Missing}
}

// ParseScores 从评审回复中提取每个标签的第一个 1-10 分数。
// 缺失或越界的分数记为 0 并计入 Missing。
func ParseScores(text string) ParsedScores {
	var out ParsedScores
	targets := map[string]*int{
		LabelRelevance:    &out.Raw.Relevance,
		LabelAccuracy:     &out.Raw.Accuracy,
		LabelCompleteness: &out.Raw.Completeness,
		LabelCitation:     &out.Raw.Citation,
		LabelOverall:      &out.Raw.Overall,
	}

	for _, label := range Labels() {
		m := labelPatterns[label].FindStringSubmatch(text)
		if m == nil {
			out.Missing = append(out.Missing, label)
			continue
		}
		score, err := strconv.Atoi(m[1])
		if err != nil || score < 1 || score > 10 {
			out.Missing = append(out.Missing, label)
			continue
		}
		*targets[label] = score
	}

	if m := suggestionsPattern.FindStringSubmatch(text); m != nil {
		out.Suggestions = strings.TrimSpace(m[1])
	}
	return out
}
