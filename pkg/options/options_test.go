package options

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestJoin(t *testing.T) {
	tests := []struct {
		prefixes []string
		want     string
	}{
		{nil, ""},
		{[]string{""}, ""},
		{[]string{"judge"}, "judge."},
		{[]string{"judge."}, "judge."},
		{[]string{"eval", "judge"}, "eval.judge."},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Join(tt.prefixes...))
	}
}

func TestAggregate(t *testing.T) {
	assert.NoError(t, Aggregate(nil, []error{}))

	err := Aggregate([]error{errors.New("a")}, nil, []error{errors.New("b")})
	assert.EqualError(t, err, "a\nb")
}
