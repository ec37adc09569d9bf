package harness

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kart-io/essay-qa/pkg/utils/json"
	"github.com/kart-io/essay-qa/pkg/validator"
)

// Question 评测问题。
type Question struct {
	ID            int      `json:"id" yaml:"id" validate:"gt=0"`
	Question      string   `json:"question" yaml:"question" validate:"required"`
	Tags          []string `json:"tags" yaml:"tags"`
	RelatedEssays []string `json:"related_essays" yaml:"related_essays"`
}

// GoldenAnswer 人工撰写的标准答案。
type GoldenAnswer struct {
	ID        int      `json:"id" yaml:"id" validate:"gt=0"`
	Answer    string   `json:"answer" yaml:"answer" validate:"required"`
	KeyPoints []string `json:"key_points" yaml:"key_points"`
}

// LoadQuestions 读取问题集，按扩展名识别 JSON 或 YAML。
func LoadQuestions(path string) ([]Question, error) {
	var questions []Question
	if err := loadDataset(path, &questions); err != nil {
		return nil, err
	}
	seen := make(map[int]struct{}, len(questions))
	for i := range questions {
		if err := validator.Struct(questions[i]); err != nil {
			return nil, fmt.Errorf("%s: question #%d: %w", path, i+1, err)
		}
		if _, dup := seen[questions[i].ID]; dup {
			return nil, fmt.Errorf("%s: duplicate question id %d", path, questions[i].ID)
		}
		seen[questions[i].ID] = struct{}{}
	}
	return questions, nil
}

// LoadGoldenAnswers 读取标准答案集。
func LoadGoldenAnswers(path string) ([]GoldenAnswer, error) {
	var answers []GoldenAnswer
	if err := loadDataset(path, &answers); err != nil {
		return nil, err
	}
	seen := make(map[int]struct{}, len(answers))
	for i := range answers {
		if err := validator.Struct(answers[i]); err != nil {
			return nil, fmt.Errorf("%s: golden answer #%d: %w", path, i+1, err)
		}
		if _, dup := seen[answers[i].ID]; dup {
			return nil, fmt.Errorf("%s: duplicate golden answer id %d", path, answers[i].ID)
		}
		seen[answers[i].ID] = struct{}{}
	}
	return answers, nil
}

// Limit 返回前 n 个问题，n <= 0 时返回全部。
func Limit(questions []Question, n int) []Question {
	if n <= 0 || n >= len(questions) {
		return questions
	}
	return questions[:n]
}

func loadDataset(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read dataset: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, v)
	default:
		err = json.Unmarshal(data, v)
	}
	if err != nil {
		return fmt.Errorf("decode dataset %s: %w", path, err)
	}
	return nil
}
