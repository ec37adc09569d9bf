package errors

import (
	"net/http"

	"google.golang.org/grpc/codes"
)

// 通用错误
var (
	OK                = Register(New(0, http.StatusOK, codes.OK, "Success", "成功"))
	ErrInvalidParam   = Register(New(MakeCode(ServiceCommon, CategoryRequest, 1), http.StatusBadRequest, codes.InvalidArgument, "Invalid parameter", "参数无效"))
	ErrInternal       = Register(New(MakeCode(ServiceCommon, CategoryInternal, 1), http.StatusInternalServerError, codes.Internal, "Internal server error", "服务器内部错误"))
	ErrRequestTimeout = Register(New(MakeCode(ServiceCommon, CategoryTimeout, 1), http.StatusGatewayTimeout, codes.DeadlineExceeded, "Request timeout", "请求超时"))
)

// 问答服务错误 (服务代码 20)
var (
	ErrQAInvalidQuery     = Register(New(MakeCode(ServiceQA, CategoryRequest, 1), http.StatusBadRequest, codes.InvalidArgument, "Query must not be empty", "查询不能为空"))
	ErrQANoDocuments      = Register(New(MakeCode(ServiceQA, CategoryRequest, 2), http.StatusBadRequest, codes.InvalidArgument, "No essays provided", "未提供文章"))
	ErrQASearchFailed     = Register(New(MakeCode(ServiceQA, CategoryDatabase, 1), http.StatusInternalServerError, codes.Internal, "Essay search failed", "文章检索失败"))
	ErrQAEmbeddingFailed  = Register(New(MakeCode(ServiceQA, CategoryNetwork, 1), http.StatusBadGateway, codes.Unavailable, "Embedding provider failed", "向量化服务调用失败"))
	ErrQAGenerationFailed = Register(New(MakeCode(ServiceQA, CategoryNetwork, 2), http.StatusBadGateway, codes.Unavailable, "Generation provider failed", "生成服务调用失败"))
	ErrQAStatsUnavailable = Register(New(MakeCode(ServiceQA, CategoryInternal, 1), http.StatusInternalServerError, codes.Internal, "Statistics unavailable", "统计信息不可用"))
)
