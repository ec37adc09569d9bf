package validator

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Title string `json:"title" validate:"required"`
	Count int    `json:"count" validate:"gt=0"`
	Note  string
}

func TestStruct(t *testing.T) {
	assert.NoError(t, Struct(sample{Title: "How to Start a Startup", Count: 1}))

	err := Struct(sample{})
	var verrs *ValidationErrors
	require.True(t, errors.As(err, &verrs))
	require.Len(t, verrs.Errors, 2)
	assert.Equal(t, "title", verrs.Errors[0].Field)
	assert.Equal(t, "required", verrs.Errors[0].Tag)
	assert.Equal(t, "count", verrs.Errors[1].Field)
	assert.Contains(t, err.Error(), "title is a required field")
}

func TestVar(t *testing.T) {
	assert.NoError(t, Var("https://paulgraham.com/ds.html", "url"))
	assert.Error(t, Var("not a url", "url"))
}

func TestNew_Chinese(t *testing.T) {
	v := New(LangZH)
	err := v.Validate(sample{Count: 1})

	var verrs *ValidationErrors
	require.True(t, errors.As(err, &verrs))
	assert.Equal(t, "title", verrs.Errors[0].Field)
	assert.NotContains(t, err.Error(), "is a required field")
}

func TestNew_UnknownLanguageFallsBackToEnglish(t *testing.T) {
	err := New("fr").Validate(sample{Count: 1})
	assert.Contains(t, err.Error(), "title is a required field")
}
