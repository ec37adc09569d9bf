package llm

// GenerateOptions 单次生成调用的参数，零值表示使用供应商默认配置。
type GenerateOptions struct {
	// Temperature 为 nil 时不覆盖供应商配置。
	Temperature *float64
	// MaxTokens 为 0 时不覆盖供应商配置。
	MaxTokens int
}

// GenerateOption 修改 GenerateOptions。
type GenerateOption func(*GenerateOptions)

// WithTemperature 设置采样温度。
func WithTemperature(t float64) GenerateOption {
	return func(o *GenerateOptions) {
		o.Temperature = &t
	}
}

// WithMaxTokens 设置最大生成 token 数。
func WithMaxTokens(n int) GenerateOption {
	return func(o *GenerateOptions) {
		o.MaxTokens = n
	}
}

// ApplyOptions 合并所有选项。
func ApplyOptions(opts ...GenerateOption) GenerateOptions {
	var o GenerateOptions
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return o
}
