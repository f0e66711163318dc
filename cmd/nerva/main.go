// Command nerva is the local assistant core: dispatch one task, run the
// voice loop, or keep the ambient monitor alive.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"

	"github.com/B-A-M-N/NERVA/internal/browser"
	"github.com/B-A-M-N/NERVA/internal/config"
	"github.com/B-A-M-N/NERVA/internal/dispatch"
	"github.com/B-A-M-N/NERVA/internal/frontend"
	"github.com/B-A-M-N/NERVA/internal/jsonx"
	"github.com/B-A-M-N/NERVA/internal/knowledge"
	"github.com/B-A-M-N/NERVA/internal/llm"
	"github.com/B-A-M-N/NERVA/internal/logging"
	"github.com/B-A-M-N/NERVA/internal/memory"
	"github.com/B-A-M-N/NERVA/internal/skills"
)

// Exit codes mirror the dispatch statuses so shell callers can branch.
const (
	exitOK            = 0
	exitFailed        = 1
	exitClarification = 2
	exitRefused       = 3
	exitCancelled     = 130
)

type runtime struct {
	cfg        *config.Config
	dispatcher *dispatch.Dispatcher
	logger     logging.Logger
}

var (
	flagEmbedModel string
	flagJSON       bool
	flagVerbose    bool
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := &cobra.Command{
		Use:           "nerva",
		Short:         "Local multi-modal assistant core",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&flagEmbedModel, "embed-model", "", "Ollama model for memory embeddings (off when empty)")
	root.PersistentFlags().BoolVar(&flagJSON, "json", false, "print the full TaskResult as JSON")
	root.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "debug logging")

	root.AddCommand(dispatchCmd(ctx), voiceCmd(ctx), ambientCmd(ctx), dailyCmd(ctx), repoCmd(ctx))

	if err := root.Execute(); err != nil {
		if ctx.Err() != nil {
			os.Exit(exitCancelled)
		}
		color.Red("error: %v", err)
		os.Exit(exitFailed)
	}
}

func dispatchCmd(ctx context.Context) *cobra.Command {
	return &cobra.Command{
		Use:   "dispatch [utterance]",
		Short: "Run one task through the pipeline",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := buildRuntime()
			if err != nil {
				return err
			}
			utterance := ""
			for i, a := range args {
				if i > 0 {
					utterance += " "
				}
				utterance += a
			}
			result := rt.dispatcher.Dispatch(ctx, dispatch.TaskContext{
				Utterance: utterance,
				Source:    dispatch.SourceText,
			})
			printResult(result)
			os.Exit(exitFor(ctx, result))
			return nil
		},
	}
}

func voiceCmd(ctx context.Context) *cobra.Command {
	var silence, maxRec time.Duration
	cmd := &cobra.Command{
		Use:   "voice",
		Short: "Run the conversation loop on the console",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := buildRuntime()
			if err != nil {
				return err
			}
			console := frontend.NewConsoleIO(os.Stdin, os.Stdout)
			loop := frontend.NewVoiceLoop(rt.dispatcher, console, console, nil, rt.logger)
			loop.SetWindows(silence, maxRec)
			return loop.Run(ctx)
		},
	}
	cmd.Flags().DurationVar(&silence, "silence", 3*time.Second, "pause that ends an utterance")
	cmd.Flags().DurationVar(&maxRec, "max", 30*time.Second, "longest single recording")
	return cmd
}

func ambientCmd(ctx context.Context) *cobra.Command {
	var (
		every time.Duration
		task  string
	)
	cmd := &cobra.Command{
		Use:   "ambient",
		Short: "Run the ambient monitor until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := buildRuntime()
			if err != nil {
				return err
			}
			monitor := frontend.NewAmbientMonitor(rt.dispatcher, every, rt.logger)
			monitor.SetTask(task)
			monitor.Start(ctx)
			<-ctx.Done()
			monitor.Stop()
			return nil
		},
	}
	cmd.Flags().DurationVar(&every, "every", time.Hour, "cycle interval")
	cmd.Flags().StringVar(&task, "task", "daily briefing", "utterance dispatched each cycle")
	return cmd
}

func dailyCmd(ctx context.Context) *cobra.Command {
	return &cobra.Command{
		Use:   "daily",
		Short: "Run the morning briefing once",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := buildRuntime()
			if err != nil {
				return err
			}
			result := rt.dispatcher.Dispatch(ctx, dispatch.TaskContext{
				Utterance: "daily briefing",
				Source:    dispatch.SourceText,
			})
			printResult(result)
			os.Exit(exitFor(ctx, result))
			return nil
		},
	}
}

func repoCmd(ctx context.Context) *cobra.Command {
	return &cobra.Command{
		Use:   "repo [question]",
		Short: "Ask about local repositories",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := buildRuntime()
			if err != nil {
				return err
			}
			question := "repo question: "
			for i, a := range args {
				if i > 0 {
					question += " "
				}
				question += a
			}
			result := rt.dispatcher.Dispatch(ctx, dispatch.TaskContext{
				Utterance: question,
				Source:    dispatch.SourceText,
			})
			printResult(result)
			os.Exit(exitFor(ctx, result))
			return nil
		},
	}
}

func buildRuntime() (*runtime, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.EnsureDirs(); err != nil {
		return nil, err
	}
	if flagVerbose {
		logging.SetLevel(logging.LevelDebug)
	}
	logger := logging.NewComponentLogger("NERVA")

	routerURL := ""
	if cfg.UseRouter {
		routerURL = cfg.RouterURL
	}
	nodeRouter := llm.NewNodeRouter(routerURL, cfg.LLMNodes, logger)
	textClient := llm.NewOllamaClient(nodeRouter, cfg.LLMModel, logger)
	visionClient := llm.NewOllamaClient(nodeRouter, cfg.VisionModel, logger)

	memOpts := []memory.Option{
		memory.WithPersistDir(cfg.MemoryDir()),
		memory.WithLogger(logger),
	}
	if flagEmbedModel != "" {
		memOpts = append(memOpts, memory.WithEmbedder(llm.NewOllamaEmbedder(nodeRouter, flagEmbedModel)))
	}
	store, err := memory.NewStore(memOpts...)
	if err != nil {
		return nil, err
	}

	threads := knowledge.NewThreadStore(cfg.ThreadsDir(), logger)
	graph := knowledge.NewGraph(cfg.GraphPath(), logger)

	env := &skills.Env{
		LLM:    textClient,
		Vision: visionClient,
		NewBrowser: func() (browser.Driver, error) {
			bcfg := browser.DefaultConfig()
			bcfg.Headless = cfg.Headless
			bcfg.UserDataDir = cfg.UserDataDir
			return browser.NewRodDriver(bcfg, logger)
		},
		Memory: store,
		Config: cfg,
		Logger: logger,
	}

	registry := skills.DefaultRegistry()
	router := dispatch.NewRouter(registry, textClient, logger)
	console := frontend.NewConsoleIO(os.Stdin, os.Stdout)

	dispatcher := dispatch.NewDispatcher(registry, router, env, store, threads, graph,
		dispatch.WithDeadline(cfg.DispatchTimeout),
		dispatch.WithMaxConcurrent(cfg.MaxConcurrent),
		dispatch.WithClarifier(dispatch.SourceText, console),
		dispatch.WithConfirmer(dispatch.SourceText, promptConfirmer()),
		dispatch.WithClarifier(dispatch.SourceVoice, console),
		dispatch.WithConfirmer(dispatch.SourceVoice, console),
		dispatch.WithLogger(logger),
	)

	return &runtime{cfg: cfg, dispatcher: dispatcher, logger: logger}, nil
}

// promptConfirmer backs the text channel's safety gate with an interactive
// y/N prompt.
func promptConfirmer() dispatch.Confirmer {
	return dispatch.ConfirmerFunc(func(ctx context.Context, prompt string) (bool, error) {
		p := promptui.Prompt{Label: prompt, IsConfirm: true}
		if _, err := p.Run(); err != nil {
			return false, nil
		}
		return true, nil
	})
}

func printResult(result *dispatch.TaskResult) {
	if flagJSON {
		data, err := jsonx.MarshalIndent(result, "", "  ")
		if err == nil {
			fmt.Println(string(data))
			return
		}
	}
	switch result.Status {
	case dispatch.StatusOK:
		color.Green("%s", result.Summary)
	case dispatch.StatusClarificationNeeded:
		color.Yellow("%s", result.Summary)
	case dispatch.StatusRefused:
		color.Red("%s", result.Summary)
	default:
		color.Red("failed: %s", result.Summary)
	}
	if result.Answer != "" && result.Answer != result.Summary {
		fmt.Println(result.Answer)
	}
}

func exitFor(ctx context.Context, result *dispatch.TaskResult) int {
	if ctx.Err() != nil {
		return exitCancelled
	}
	switch result.Status {
	case dispatch.StatusOK:
		return exitOK
	case dispatch.StatusClarificationNeeded:
		return exitClarification
	case dispatch.StatusRefused:
		return exitRefused
	default:
		return exitFailed
	}
}
