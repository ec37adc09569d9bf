package evaluator

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kart-io/logger"
	"golang.org/x/term"

	"github.com/kart-io/essay-qa/internal/pkg/docutil"
)

const panelSeparator = "\n----------------------------------------\n"

// HumanScores 人工给出的原始分数。
type HumanScores struct {
	Relevance    int `json:"relevance"`
	Accuracy     int `json:"accuracy"`
	Completeness int `json:"completeness"`
	Citation     int `json:"citation"`
	Overall      int `json:"overall"`
}

// HumanRecord 一次人工评分记录。
type HumanRecord struct {
	Question        string      `json:"question"`
	SystemAnswer    string      `json:"systemAnswer"`
	GoldenAnswer    string      `json:"goldenAnswer"`
	KeyPoints       []string    `json:"keyPoints"`
	RetrievedEssays []string    `json:"retrievedEssays"`
	Scores          HumanScores `json:"scores"`
	Comments        string      `json:"comments"`
}

type criterion struct {
	label       string
	description string
	target      func(*HumanScores) *int
}

var humanCriteria = []criterion{
	{LabelRelevance, "How relevant were the retrieved essays to answering the question?",
		func(s *HumanScores) *int { return &s.Relevance }},
	{LabelAccuracy, "How factually accurate is the answer compared to the golden answer?",
		func(s *HumanScores) *int { return &s.Accuracy }},
	{LabelCompleteness, "How thoroughly does the answer address the key points?",
		func(s *HumanScores) *int { return &s.Completeness }},
	{LabelCitation, "How well does the system cite specific essays and attribute ideas?",
		func(s *HumanScores) *int { return &s.Citation }},
	{LabelOverall, "What is your overall assessment of the answer quality?",
		func(s *HumanScores) *int { return &s.Overall }},
}

// HumanEvaluator 在终端向评审人展示答案并逐项收集 1-10 分。
// 每评完一题即重写结果文件。
type HumanEvaluator struct {
	mu      sync.Mutex
	in      io.Reader
	reader  *bufio.Reader
	out     io.Writer
	path    string
	records []HumanRecord

	closeOnce sync.Once
	closed    atomic.Bool
}

var _ Evaluator = (*HumanEvaluator)(nil)

// HumanOption 配置 HumanEvaluator。
type HumanOption func(*HumanEvaluator)

// WithInput 替换评分输入，默认为 os.Stdin。
func WithInput(r io.Reader) HumanOption {
	return func(e *HumanEvaluator) {
		e.in = r
	}
}

// WithOutput 替换展示输出，默认为 os.Stdout。
func WithOutput(w io.Writer) HumanOption {
	return func(e *HumanEvaluator) {
		e.out = w
	}
}

// NewHumanEvaluator 创建人工评分器，结果写入 dir/human_eval_<时间戳>.json。
func NewHumanEvaluator(dir string, opts ...HumanOption) *HumanEvaluator {
	e := &HumanEvaluator{
		in:   os.Stdin,
		out:  os.Stdout,
		path: filepath.Join(dir, fmt.Sprintf("human_eval_%s.json", docutil.FileStamp(time.Now()))),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.reader = bufio.NewReader(e.in)

	if f, ok := e.in.(*os.File); ok && !term.IsTerminal(int(f.Fd())) {
		logger.Warnw("human evaluation input is not a terminal", "input", f.Name())
	}
	return e
}

// Name 返回评分器名称。
func (e *HumanEvaluator) Name() string {
	return "human"
}

// ResultsFile 返回人工评分结果文件路径。
func (e *HumanEvaluator) ResultsFile() string {
	return e.path
}

// Records 返回已完成的评分记录副本。
func (e *HumanEvaluator) Records() []HumanRecord {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]HumanRecord(nil), e.records...)
}

// Evaluate 展示答案并收集五项评分和备注。
// 输入结束返回 ErrInputClosed，结果文件写入失败返回 *docutil.PersistenceError。
func (e *HumanEvaluator) Evaluate(ctx context.Context, in EvalInput) (Metrics, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed.Load() {
		return ZeroMetrics(), ErrInputClosed
	}

	e.showPanel(in)

	var scores HumanScores
	for _, c := range humanCriteria {
		if err := ctx.Err(); err != nil {
			return ZeroMetrics(), err
		}
		score, err := e.promptScore(c.label, c.description)
		if err != nil {
			return ZeroMetrics(), err
		}
		*c.target(&scores) = score
	}

	fmt.Fprint(e.out, "Any additional comments or improvement suggestions? ")
	comments, err := e.readLine()
	if err != nil {
		return ZeroMetrics(), err
	}

	e.records = append(e.records, HumanRecord{
		Question:        in.Question,
		SystemAnswer:    in.SystemAnswer,
		GoldenAnswer:    in.GoldenAnswer,
		KeyPoints:       in.KeyPoints,
		RetrievedEssays: in.RetrievedEssays,
		Scores:          scores,
		Comments:        comments,
	})
	if err := docutil.WriteJSON(e.path, e.records); err != nil {
		return ZeroMetrics(), err
	}
	fmt.Fprintf(e.out, "Results saved to %s\n", e.path)

	return RawScores(scores).Metrics(), nil
}

// Close 释放输入，可重复调用。关闭输入会使阻塞中的读取返回 ErrInputClosed。
func (e *HumanEvaluator) Close() error {
	var err error
	e.closeOnce.Do(func() {
		e.closed.Store(true)
		if c, ok := e.in.(io.Closer); ok && e.in != os.Stdin {
			err = c.Close()
		}
	})
	return err
}

func (e *HumanEvaluator) showPanel(in EvalInput) {
	w := e.out
	fmt.Fprint(w, "\n================ HUMAN EVALUATION ================\n\n")
	fmt.Fprintf(w, "QUESTION: %s\n\n", in.Question)

	fmt.Fprintf(w, "SYSTEM ANSWER:\n%s\n", in.SystemAnswer)
	fmt.Fprint(w, panelSeparator+"\n")

	fmt.Fprintf(w, "GOLDEN ANSWER:\n%s\n", in.GoldenAnswer)
	fmt.Fprint(w, panelSeparator+"\n")

	fmt.Fprintln(w, "KEY POINTS:")
	for i, p := range in.KeyPoints {
		fmt.Fprintf(w, "%d. %s\n", i+1, p)
	}
	fmt.Fprint(w, panelSeparator+"\n")

	fmt.Fprintln(w, "RETRIEVED ESSAYS:")
	for i, title := range in.RetrievedEssays {
		fmt.Fprintf(w, "%d. %s\n", i+1, title)
	}
	fmt.Fprint(w, panelSeparator+"\n")

	fmt.Fprintln(w, "Please rate the following on a scale of 1-10:")
}

// promptScore 反复询问直到得到 1-10 的整数，没有次数上限。
func (e *HumanEvaluator) promptScore(label, description string) (int, error) {
	for {
		fmt.Fprintf(e.out, "%s (1-10, %s): ", label, description)
		line, err := e.readLine()
		if err != nil {
			return 0, err
		}
		score, convErr := strconv.Atoi(line)
		if convErr == nil && score >= 1 && score <= 10 {
			return score, nil
		}
		fmt.Fprintln(e.out, "Please enter a number between 1 and 10")
	}
}

// readLine 读取一行并去除首尾空白；输入结束且没有剩余内容时返回 ErrInputClosed。
func (e *HumanEvaluator) readLine() (string, error) {
	line, err := e.reader.ReadString('\n')
	if err != nil {
		if errors.Is(err, io.EOF) && line != "" {
			return strings.TrimSpace(line), nil
		}
		if errors.Is(err, io.EOF) || errors.Is(err, os.ErrClosed) || e.closed.Load() {
			return "", ErrInputClosed
		}
		return "", fmt.Errorf("read evaluation input: %w", err)
	}
	return strings.TrimSpace(line), nil
}
