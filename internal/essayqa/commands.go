package essayqa

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/kart-io/logger"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/kart-io/essay-qa/internal/essayqa/harness"
	"github.com/kart-io/essay-qa/internal/essayqa/ingest"
	"github.com/kart-io/essay-qa/internal/essayqa/server"
	"github.com/kart-io/essay-qa/internal/model"
	"github.com/kart-io/essay-qa/internal/pkg/evaluator"
	"github.com/kart-io/essay-qa/pkg/infra/app"
	"github.com/kart-io/essay-qa/pkg/infra/config"
	"github.com/kart-io/essay-qa/pkg/component/redis"
	"github.com/kart-io/essay-qa/pkg/infra/pool"
	evalopts "github.com/kart-io/essay-qa/pkg/options/eval"
)

// defaultEvalCount 未指定题数时评测的问题数。
const defaultEvalCount = 5

func newAskCommand(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "ask <question>...",
		Short: "Answer a question with cited essays",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := initLogger(opts); err != nil {
				return err
			}
			c, err := newComponents(cmd.Context(), opts, true)
			if err != nil {
				return err
			}
			defer c.Close()

			answer, err := c.service.Answer(cmd.Context(), strings.Join(args, " "))
			if err != nil {
				return err
			}
			printAnswer(cmd.OutOrStdout(), answer)
			return nil
		},
	}
}

func printAnswer(w io.Writer, answer *model.Answer) {
	if answer.Outcome == model.OutcomeDegradedFallback {
		fmt.Fprintln(w, "(essay search failed, answering from a fallback selection)")
	}
	fmt.Fprintln(w, answer.Text)
	if answer.References != "" {
		fmt.Fprintf(w, "\nReferences:\n%s\n", answer.References)
	}
}

func newEvalCommand(opts *Options) *cobra.Command {
	var human, judge bool
	cmd := &cobra.Command{
		Use:   "eval [count]",
		Short: "Score answers against the golden dataset",
		Long: `Answers the first count questions of the dataset (default 5) and scores
each answer with the judge model or interactively. Interim results are written
after every batch; the summary shows average scores on a 1-10 scale.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			count := defaultEvalCount
			if len(args) == 1 {
				n, err := strconv.Atoi(args[0])
				if err != nil || n <= 0 {
					return fmt.Errorf("invalid question count %q", args[0])
				}
				count = n
			}
			switch {
			case human:
				opts.Eval.Mode = evalopts.ModeHuman
			case judge:
				opts.Eval.Mode = evalopts.ModeJudge
			}
			if err := initLogger(opts); err != nil {
				return err
			}
			return runEval(cmd.Context(), opts, count, cmd.OutOrStdout())
		},
	}
	cmd.Flags().BoolVar(&human, "human", false, "Score answers interactively on the terminal.")
	cmd.Flags().BoolVar(&judge, "judge", false, "Score answers with the judge model.")
	cmd.MarkFlagsMutuallyExclusive("human", "judge")
	return cmd
}

func runEval(ctx context.Context, opts *Options, count int, out io.Writer) error {
	// 1. 加载题目与标准答案
	questions, err := harness.LoadQuestions(opts.Eval.Questions)
	if err != nil {
		return err
	}
	golden, err := harness.LoadGoldenAnswers(opts.Eval.Golden)
	if err != nil {
		return err
	}
	questions = harness.Limit(questions, count)
	fmt.Fprintf(out, "Running evaluation on %d questions\n", len(questions))

	// 2. 创建问答服务与评分器
	c, err := newComponents(ctx, opts, true)
	if err != nil {
		return err
	}
	defer c.Close()

	var ev evaluator.Evaluator
	if opts.Eval.Mode == evalopts.ModeHuman {
		h := evaluator.NewHumanEvaluator(opts.Eval.OutputDir)
		defer func() {
			_ = h.Close()
			fmt.Fprintf(out, "Human evaluations saved to %s\n", h.ResultsFile())
		}()
		ev = h
	} else {
		chat, err := c.newChatProvider(opts.Eval.Judge)
		if err != nil {
			return err
		}
		ev = evaluator.NewJudgeEvaluator(chat, evaluator.WithTimeout(opts.Eval.JudgeTimeout))
	}

	// 3. 分批评测并输出汇总
	h := harness.New(c.service, c.metrics, &harness.Config{
		BatchSize: opts.Eval.BatchSize,
		OutputDir: opts.Eval.OutputDir,
	})
	report, err := h.Run(ctx, questions, golden, ev)
	if err != nil {
		return err
	}
	harness.PrintSummary(out, report)
	return nil
}

func newIngestCommand(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "ingest",
		Short: "Embed the essay corpus and write it to the store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := initLogger(opts); err != nil {
				return err
			}
			return runIngest(cmd.Context(), opts, cmd.OutOrStdout())
		},
	}
}

func runIngest(ctx context.Context, opts *Options, out io.Writer) error {
	essays, err := ingest.LoadCorpus(opts.Ingest.Corpus)
	if err != nil {
		return err
	}

	c, err := newComponents(ctx, opts, false)
	if err != nil {
		return err
	}
	defer c.Close()

	p, err := pool.New("ingest", &pool.Config{
		Capacity:       opts.Ingest.Concurrency,
		ExpiryDuration: 10 * time.Second,
	})
	if err != nil {
		return err
	}
	defer func() { _ = p.Release(30 * time.Second) }()

	indexer := ingest.NewIndexer(c.store, c.embed, p, c.metrics, &ingest.Config{
		BatchSize: opts.Ingest.BatchSize,
		MaxChars:  opts.Ingest.MaxChars,
	})
	result, err := indexer.Index(ctx, essays)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Indexed %d of %d essays (%d skipped) in %s\n",
		result.Indexed, result.Total, result.Skipped, result.Duration.Round(time.Millisecond))
	return nil
}

func newServeCommand(opts *Options, application func() *app.App) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := initLogger(opts); err != nil {
				return err
			}
			ctx := cmd.Context()

			c, err := newComponents(ctx, opts, true)
			if err != nil {
				return err
			}
			defer c.Close()

			watcher := config.NewWatcher(application().Viper())
			watcher.Subscribe("log.level", reloadLogLevel(opts))
			watcher.Start()

			router := server.NewRouter(server.NewHandler(c.service), server.NewRegistry(c.metrics), opts.HTTP)
			return server.New(router, opts.HTTP).Run(ctx)
		},
	}
}

func newCacheCommand(opts *Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the Redis answer cache",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Delete every cached answer",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := initLogger(opts); err != nil {
				return err
			}
			return runCacheClear(cmd.Context(), opts, cmd.OutOrStdout())
		},
	})
	return cmd
}

// runCacheClear 删除 cache.key-prefix 下的全部答案，不要求 cache.enabled。
func runCacheClear(ctx context.Context, opts *Options, out io.Writer) error {
	client, err := redis.New(ctx, opts.Cache.Redis)
	if err != nil {
		return err
	}
	defer func() { _ = client.Close() }()

	deleted, err := newAnswerCache(client, opts.Cache).Clear(ctx)
	if err != nil {
		return fmt.Errorf("failed to clear answer cache: %w", err)
	}
	fmt.Fprintf(out, "Cleared %d cached answers from %s\n", deleted, opts.Cache.Redis.Addr())
	return nil
}

// reloadLogLevel 配置文件中的日志级别变化时替换全局日志。
func reloadLogLevel(opts *Options) config.ChangeHandler {
	return func(v *viper.Viper) error {
		level := v.GetString("log.level")
		if level == "" || strings.EqualFold(level, opts.Log.Level) {
			return nil
		}
		previous := opts.Log.Level
		if _, err := opts.Log.SetLevel(level); err != nil {
			opts.Log.Level = previous
			return err
		}
		logger.Infow("log level reloaded", "from", previous, "to", level)
		return nil
	}
}

func newReportCommand(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "report <file>",
		Short: "Recompute the summary of an interim or final evaluation file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := initLogger(opts); err != nil {
				return err
			}
			report, err := harness.LoadReport(args[0])
			if err != nil {
				return err
			}
			report.Metrics = harness.Aggregate(report.Results)
			harness.PrintSummary(cmd.OutOrStdout(), report)
			return nil
		},
	}
}
