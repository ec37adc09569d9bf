package server

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kart-io/essay-qa/internal/essayqa/metrics"
	"github.com/kart-io/essay-qa/pkg/infra/middleware"
	httpopts "github.com/kart-io/essay-qa/pkg/options/http"
)

// metricsNamespace prometheus 指标前缀。
const metricsNamespace = "essayqa"

// NewRegistry 创建包含问答指标与运行时指标的注册表。
func NewRegistry(m *metrics.QAMetrics) *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		metrics.NewCollector(metricsNamespace, m),
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// NewRouter 注册全部路由。
func NewRouter(h *Handler, reg *prometheus.Registry, opts *httpopts.Options) *gin.Engine {
	gin.SetMode(opts.Mode)

	r := gin.New()
	r.Use(
		middleware.RequestID(),
		middleware.Logger(),
		middleware.Recovery(),
		middleware.Timeout(opts.RequestTimeout, "/healthz", "/metrics"),
	)

	r.GET("/healthz", h.Health)
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))

	api := r.Group("/api")
	{
		api.POST("/search", h.Search)
		api.POST("/summarize", h.Summarize)
		api.POST("/ask", h.Ask)
		api.GET("/stats", h.Stats)
	}

	return r
}
