package errors

// Service codes (AA)
const (
	// ServiceCommon is for common/base errors shared by all services.
	ServiceCommon = 0

	// ServiceQA is for the essay question-answering service.
	ServiceQA = 20
)

// Category codes (BB)
const (
	CategorySuccess   = 0
	CategoryRequest   = 1
	CategoryResource  = 4
	CategoryRateLimit = 6
	CategoryInternal  = 7
	CategoryDatabase  = 8
	CategoryCache     = 9
	CategoryNetwork   = 10
	CategoryTimeout   = 11
	CategoryConfig    = 12
)

// MakeCode creates an error code from service, category, and sequence.
func MakeCode(service, category, sequence int) int {
	return service*100000 + category*1000 + sequence
}

// ParseCode splits an error code into service, category, and sequence.
func ParseCode(code int) (service, category, sequence int) {
	return code / 100000, (code % 100000) / 1000, code % 1000
}

// IsClientError checks if the error code indicates a client error (4xx).
func IsClientError(code int) bool {
	_, category, _ := ParseCode(code)
	return category >= CategoryRequest && category <= CategoryRateLimit
}
