// Package essayqa 组装问答、评测、导入与 HTTP 服务命令。
package essayqa

import (
	"fmt"

	"github.com/kart-io/logger"

	"github.com/kart-io/essay-qa/pkg/infra/app"
)

const (
	appName        = "essayqa"
	appDescription = `Essay QA

Question answering over Paul Graham's essays with retrieval-augmented generation.

Commands:
  ask      answer a question from the command line
  eval     score answers against a golden dataset (judge model or human)
  ingest   embed and store a corpus of essays
  serve    run the HTTP API
  report   summarize an interim or final evaluation file
  cache    clear cached answers`
)

// NewApp 创建应用实例。
func NewApp() *app.App {
	opts := NewOptions()

	var a *app.App
	a = app.NewApp(
		app.WithName(appName),
		app.WithShortDescription("Question answering over Paul Graham's essays"),
		app.WithDescription(appDescription),
		app.WithOptions(opts),
		app.WithCommands(
			newAskCommand(opts),
			newEvalCommand(opts),
			newIngestCommand(opts),
			newServeCommand(opts, func() *app.App { return a }),
			newReportCommand(opts),
			newCacheCommand(opts),
		),
	)
	return a
}

// initLogger 按配置初始化全局日志。
func initLogger(opts *Options) error {
	if err := opts.Log.Init(); err != nil {
		return fmt.Errorf("failed to init logger: %w", err)
	}
	logger.Debugw("logger initialized", "level", opts.Log.Level, "format", opts.Log.Format)
	return nil
}
