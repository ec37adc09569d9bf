package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
)

func TestMakeAndParseCode(t *testing.T) {
	code := MakeCode(ServiceQA, CategoryRequest, 2)
	assert.Equal(t, 2001002, code)

	svc, cat, seq := ParseCode(code)
	assert.Equal(t, ServiceQA, svc)
	assert.Equal(t, CategoryRequest, cat)
	assert.Equal(t, 2, seq)
	assert.True(t, IsClientError(code))
	assert.False(t, IsClientError(ErrQASearchFailed.Code))
}

func TestErrno_WithCauseKeepsIdentity(t *testing.T) {
	cause := stderrors.New("connection refused")
	err := ErrQAGenerationFailed.WithCause(cause)

	assert.True(t, stderrors.Is(err, ErrQAGenerationFailed))
	assert.True(t, stderrors.Is(err, cause))
	assert.Equal(t, http.StatusBadGateway, err.HTTPStatus())
	assert.Equal(t, codes.Unavailable, err.GRPCStatus())
	assert.Contains(t, err.Error(), "connection refused")

	// 原始注册值不受影响
	assert.Nil(t, ErrQAGenerationFailed.Unwrap())
}

func TestErrno_Message(t *testing.T) {
	e := ErrQANoDocuments.WithMessage("documents must not be empty")
	assert.Equal(t, "documents must not be empty", e.Message("en"))
	assert.Equal(t, "未提供文章", e.Message("zh-CN"))
}

func TestFromError(t *testing.T) {
	assert.Nil(t, FromError(nil))

	wrapped := fmt.Errorf("handler: %w", ErrQAInvalidQuery)
	assert.Equal(t, ErrQAInvalidQuery.Code, FromError(wrapped).Code)

	plain := FromError(stderrors.New("boom"))
	assert.Equal(t, ErrInternal.Code, plain.Code)
}

func TestRegister_DuplicatePanics(t *testing.T) {
	found, ok := Lookup(ErrQAInvalidQuery.Code)
	require.True(t, ok)
	assert.Same(t, ErrQAInvalidQuery, found)

	assert.Panics(t, func() {
		Register(New(ErrQAInvalidQuery.Code, http.StatusBadRequest, codes.InvalidArgument, "dup", "重复"))
	})
}
