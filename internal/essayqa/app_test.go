package essayqa

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/kart-io/logger/option"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/essay-qa/internal/essayqa/harness"
	"github.com/kart-io/essay-qa/internal/model"
	"github.com/kart-io/essay-qa/internal/pkg/evaluator"
	"github.com/kart-io/essay-qa/pkg/utils/json"
)

func TestOptions_DefaultsAreValid(t *testing.T) {
	opts := NewOptions()
	require.NoError(t, opts.Complete())
	assert.NoError(t, opts.Validate())
	assert.Equal(t, opts.Embedding.Dimensions, opts.Store.Dimension)
	assert.Equal(t, 0.5, opts.QA.SimilarityThreshold)
	assert.Equal(t, 5, opts.Eval.BatchSize)
}

func TestOptions_ValidateReportsEveryGroup(t *testing.T) {
	opts := NewOptions()
	opts.Chat.Model = ""
	opts.QA.MatchCount = 0
	opts.Eval.Mode = "random"

	err := opts.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chat.model is required")
	assert.Contains(t, err.Error(), "qa.match-count must be positive")
	assert.Contains(t, err.Error(), "eval.mode must be")
}

func TestPrintAnswer(t *testing.T) {
	var buf bytes.Buffer
	printAnswer(&buf, &model.Answer{
		Text:       "Make something people want [1].",
		References: `[1] "How to Start a Startup"`,
		Outcome:    model.OutcomeDegradedFallback,
	})

	out := buf.String()
	assert.Contains(t, out, "fallback selection")
	assert.Contains(t, out, "Make something people want [1].\n\nReferences:\n[1] \"How to Start a Startup\"\n")
}

func TestReloadLogLevel(t *testing.T) {
	opts := NewOptions()
	opts.Log.LogOption = option.DefaultLogOption()
	opts.Log.Level = "INFO"
	handler := reloadLogLevel(opts)

	v := viper.New()
	v.Set("log.level", "info")
	require.NoError(t, handler(v))
	assert.Equal(t, "INFO", opts.Log.Level)

	v.Set("log.level", "DEBUG")
	require.NoError(t, handler(v))
	assert.Equal(t, "DEBUG", opts.Log.Level)
}

func TestReportCommand(t *testing.T) {
	results := []harness.Result{
		{QuestionID: 1, Status: harness.StatusSuccess, Metrics: evaluator.Metrics{Relevance: 0.8, Accuracy: 0.6, Completeness: 0.4, Citation: 0.2, Overall: 0.5}},
		{QuestionID: 2, Status: harness.StatusFailed, Metrics: evaluator.ZeroMetrics(), Error: "boom"},
	}
	data, err := json.Marshal(results)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "eval_interim.json")
	require.NoError(t, os.WriteFile(path, data, 0o600))

	var out bytes.Buffer
	cmd := NewApp().Command()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"report", path})
	require.NoError(t, cmd.ExecuteContext(context.Background()))

	assert.Contains(t, out.String(), "Questions evaluated: 1\n")
	assert.Contains(t, out.String(), "Questions failed: 1\n")
	assert.Contains(t, out.String(), "Average Relevance: 8.00/10\n")
	assert.Contains(t, out.String(), "Results saved to "+path)
}

func TestEvalCommand_RejectsInvalidCount(t *testing.T) {
	cmd := NewApp().Command()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"eval", "zero"})

	err := cmd.ExecuteContext(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), `invalid question count "zero"`)
}

func TestEvalCommand_HumanAndJudgeAreExclusive(t *testing.T) {
	cmd := NewApp().Command()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"eval", "--human", "--judge"})

	assert.Error(t, cmd.ExecuteContext(context.Background()))
}

func TestRunCacheClear(t *testing.T) {
	mr := miniredis.RunT(t)
	port, err := strconv.Atoi(mr.Port())
	require.NoError(t, err)

	opts := NewOptions()
	opts.Cache.Redis.Host = mr.Host()
	opts.Cache.Redis.Port = port
	require.NoError(t, mr.Set(opts.Cache.KeyPrefix+"a1", "{}"))
	require.NoError(t, mr.Set(opts.Cache.KeyPrefix+"b2", "{}"))
	require.NoError(t, mr.Set("essayqa:emb:other", "[]"))

	var out bytes.Buffer
	require.NoError(t, runCacheClear(context.Background(), opts, &out))

	assert.Contains(t, out.String(), "Cleared 2 cached answers")
	assert.False(t, mr.Exists(opts.Cache.KeyPrefix+"a1"))
	assert.True(t, mr.Exists("essayqa:emb:other"))
}

func TestCacheCommand_Registered(t *testing.T) {
	cmd, _, err := NewApp().Command().Find([]string{"cache", "clear"})
	require.NoError(t, err)
	assert.Equal(t, "clear", cmd.Name())
}
