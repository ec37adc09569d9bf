package evaluator

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/essay-qa/internal/pkg/docutil"
)

func newTestHuman(t *testing.T, input string) (*HumanEvaluator, *bytes.Buffer) {
	t.Helper()
	out := &bytes.Buffer{}
	e := NewHumanEvaluator(t.TempDir(), WithInput(strings.NewReader(input)), WithOutput(out))
	t.Cleanup(func() { _ = e.Close() })
	return e, out
}

func TestHumanEvaluator_Evaluate(t *testing.T) {
	e, out := newTestHuman(t, "8\n7\n6\n9\n7\nGood citations.\n")

	m, err := e.Evaluate(context.Background(), sampleInput())
	require.NoError(t, err)

	assert.Equal(t, "human", e.Name())
	assert.Equal(t, Metrics{Relevance: 0.8, Accuracy: 0.7, Completeness: 0.6, Citation: 0.9, Overall: 0.7}, m)

	text := out.String()
	assert.True(t, strings.HasPrefix(text, "\n================ HUMAN EVALUATION ================\n\nQUESTION: How do you get startup ideas?\n\n"))
	assert.Contains(t, text, "KEY POINTS:\n1. Live in the future\n2. Notice problems\n")
	assert.Contains(t, text, "RETRIEVED ESSAYS:\n1. How to Get Startup Ideas\n2. Schlep Blindness\n")
	assert.Contains(t, text, "Please rate the following on a scale of 1-10:\n")
	assert.Contains(t, text, "RELEVANCE (1-10, How relevant were the retrieved essays to answering the question?): ")
	assert.Contains(t, text, "CITATION QUALITY (1-10, How well does the system cite specific essays and attribute ideas?): ")
	assert.Contains(t, text, "Any additional comments or improvement suggestions? ")
	assert.Contains(t, text, "Results saved to "+e.ResultsFile())

	var records []HumanRecord
	require.NoError(t, docutil.ReadJSON(e.ResultsFile(), &records))
	require.Len(t, records, 1)
	assert.Equal(t, "Good citations.", records[0].Comments)
	assert.Equal(t, HumanScores{Relevance: 8, Accuracy: 7, Completeness: 6, Citation: 9, Overall: 7}, records[0].Scores)
	assert.Equal(t, []string{"How to Get Startup Ideas", "Schlep Blindness"}, records[0].RetrievedEssays)
}

func TestHumanEvaluator_RepromptsWithoutLimit(t *testing.T) {
	invalid := strings.Repeat("abc\n0\n11\n\n", 5)
	e, out := newTestHuman(t, invalid+"5\n5\n5\n5\n5\n\n")

	m, err := e.Evaluate(context.Background(), sampleInput())
	require.NoError(t, err)

	assert.InDelta(t, 0.5, m.Relevance, 1e-9)
	assert.Equal(t, 20, strings.Count(out.String(), "Please enter a number between 1 and 10"))
	assert.Equal(t, 21, strings.Count(out.String(), "RELEVANCE (1-10, "))
}

func TestHumanEvaluator_EOF(t *testing.T) {
	e, _ := newTestHuman(t, "8\n7\n")

	_, err := e.Evaluate(context.Background(), sampleInput())

	assert.ErrorIs(t, err, ErrInputClosed)
	assert.Empty(t, e.Records())
}

func TestHumanEvaluator_LastLineWithoutNewline(t *testing.T) {
	e, _ := newTestHuman(t, "8\n7\n6\n9\n7\nno newline")

	_, err := e.Evaluate(context.Background(), sampleInput())
	require.NoError(t, err)
	assert.Equal(t, "no newline", e.Records()[0].Comments)

	_, err = e.Evaluate(context.Background(), sampleInput())
	assert.ErrorIs(t, err, ErrInputClosed)
}

func TestHumanEvaluator_PersistsAfterEachQuestion(t *testing.T) {
	e, _ := newTestHuman(t, "8\n7\n6\n9\n7\n\n1\n2\n3\n4\n5\nweak\n")

	_, err := e.Evaluate(context.Background(), sampleInput())
	require.NoError(t, err)

	var records []HumanRecord
	require.NoError(t, docutil.ReadJSON(e.ResultsFile(), &records))
	assert.Len(t, records, 1)

	_, err = e.Evaluate(context.Background(), sampleInput())
	require.NoError(t, err)
	require.NoError(t, docutil.ReadJSON(e.ResultsFile(), &records))
	require.Len(t, records, 2)
	assert.Equal(t, 5, records[1].Scores.Overall)
}

func TestHumanEvaluator_PersistenceFailure(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))

	e := NewHumanEvaluator(blocker, WithInput(strings.NewReader("8\n7\n6\n9\n7\n\n")), WithOutput(io.Discard))

	_, err := e.Evaluate(context.Background(), sampleInput())

	var pe *docutil.PersistenceError
	assert.True(t, errors.As(err, &pe))
}

func TestHumanEvaluator_CloseIdempotent(t *testing.T) {
	r, w := io.Pipe()
	e := NewHumanEvaluator(t.TempDir(), WithInput(r), WithOutput(io.Discard))

	require.NoError(t, e.Close())
	require.NoError(t, e.Close())
	_ = w.Close()

	_, err := e.Evaluate(context.Background(), sampleInput())
	assert.ErrorIs(t, err, ErrInputClosed)
}

func TestHumanEvaluator_CanceledContext(t *testing.T) {
	e, _ := newTestHuman(t, "8\n")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.Evaluate(ctx, sampleInput())
	assert.ErrorIs(t, err, context.Canceled)
}
