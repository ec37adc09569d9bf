// Package textutil 提供问答链路使用的文本处理工具函数。
package textutil

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"unicode/utf8"
)

// TruncateString 截断字符串到指定的最大 Unicode 字符数。
func TruncateString(s string, maxLen int) string {
	if maxLen <= 0 || utf8.RuneCountInString(s) <= maxLen {
		return s
	}
	runes := []rune(s)
	return string(runes[:maxLen])
}

// Excerpt 截断到 maxLen 个字符，只有发生截断时追加 "..."。
func Excerpt(s string, maxLen int) string {
	if maxLen <= 0 || utf8.RuneCountInString(s) <= maxLen {
		return s
	}
	return TruncateString(s, maxLen) + "..."
}

// NormalizeQuestion 小写并折叠空白，同义的问题得到相同的文本。
func NormalizeQuestion(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

// HashString 计算字符串的 SHA-256 十六进制摘要。
func HashString(s string) string {
	hash := sha256.Sum256([]byte(s))
	return hex.EncodeToString(hash[:])
}
