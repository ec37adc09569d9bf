package store

import (
	"testing"

	"github.com/milvus-io/milvus/client/v2/column"
	"github.com/milvus-io/milvus/client/v2/milvusclient"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/essay-qa/internal/model"
)

func TestCandidatesFromResult(t *testing.T) {
	rs := milvusclient.ResultSet{
		ResultCount: 3,
		Scores:      []float32{0.88, 0.88, 0.4},
		Fields: []column.Column{
			column.NewColumnInt64(fieldEssayID, []int64{12, 4, 30}),
			column.NewColumnVarChar(fieldTitle, []string{"Twelve", "Four", "Thirty"}),
			column.NewColumnVarChar(fieldURL, []string{"u12", "u4", "u30"}),
			column.NewColumnVarChar(fieldContent, []string{"c12", "c4", "c30"}),
			column.NewColumnVarChar(fieldDate, []string{"", "2005", ""}),
		},
	}

	got, err := candidatesFromResult(rs, 0.5, 5)
	require.NoError(t, err)
	assert.Equal(t, []int64{4, 12}, ids(got))
	assert.Equal(t, "Four", got[0].Essay.Title)
	assert.Equal(t, "2005", got[0].Essay.Date)
	assert.Equal(t, "u12", got[1].Essay.URL)
}

func TestCandidatesFromResult_ShortColumn(t *testing.T) {
	rs := milvusclient.ResultSet{
		ResultCount: 2,
		Scores:      []float32{0.9, 0.8},
		Fields: []column.Column{
			column.NewColumnVarChar(fieldTitle, []string{"only one"}),
		},
	}

	_, err := candidatesFromResult(rs, 0.5, 5)
	assert.Error(t, err)
}

func TestEssayIDsAndFilter(t *testing.T) {
	fields := []column.Column{
		column.NewColumnVarChar(fieldTitle, []string{"a", "b"}),
		column.NewColumnInt64(fieldEssayID, []int64{9, 2}),
	}
	assert.Equal(t, []int64{9, 2}, essayIDs(fields))
	assert.Empty(t, essayIDs(nil))
	assert.Equal(t, "essay_id in [1, 2, 3]", idFilter([]int64{1, 2, 3}))
}

func TestEssayColumns(t *testing.T) {
	essays := []model.Essay{
		{ID: 1, Title: "Startup = Growth", URL: "https://paulgraham.com/growth.html", Content: "A startup is...", Date: "2012", Embedding: []float32{1, 0, 0}},
		{ID: 2, Title: "Schlep Blindness", URL: "https://paulgraham.com/schlep.html", Content: "There are great...", Embedding: []float32{0, 1, 0}},
	}

	cols, err := essayColumns(essays, 3)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2}, essayIDs(cols))

	got, err := essaysFromColumns(2, cols)
	require.NoError(t, err)
	assert.Equal(t, "Schlep Blindness", got[1].Title)
	assert.Equal(t, "2012", got[0].Date)
}

func TestEssayColumns_RejectsMissingIDAndDimension(t *testing.T) {
	_, err := essayColumns([]model.Essay{{URL: "u", Embedding: []float32{1, 0, 0}}}, 3)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "has no id")

	_, err = essayColumns([]model.Essay{{ID: 1, URL: "u", Embedding: []float32{1, 0}}}, 3)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dimension 2")
}
