package skills

import (
	"context"
	"fmt"
	"strings"

	"github.com/B-A-M-N/NERVA/internal/logging"
	"github.com/B-A-M-N/NERVA/internal/memory"
	"github.com/B-A-M-N/NERVA/internal/ops"
	"github.com/B-A-M-N/NERVA/internal/workflow"
)

// DailyOpsSkill assembles the morning briefing: four collectors run in
// parallel, each degrading to a note on failure so the summary always lands.
func DailyOpsSkill() *Skill {
	return &Skill{
		Name:        "daily_ops",
		Description: "Collect TODOs, logs, GitHub, and cluster status into a briefing.",
		Keywords:    []string{"daily", "briefing", "morning", "standup", "status report"},
		Build:       buildDailyOpsDag,
	}
}

func buildDailyOpsDag(env *Env, utterance string) (*workflow.Dag, error) {
	dag := workflow.NewDag("daily_ops")
	logger := logging.OrNop(env.Logger)

	collect := func(name string, gather func(ctx context.Context) ([]string, error)) {
		dag.MustAdd(name, nil, func(ctx context.Context, rc *workflow.RunContext) error {
			lines, err := gather(ctx)
			if err != nil {
				// A dead collector still contributes a line to the briefing.
				logger.Warn("%s collector failed: %v", name, err)
				rc.SetArtifact(name, fmt.Sprintf("(%s unavailable: %v)", name, err))
				return nil
			}
			rc.SetArtifact(name, strings.Join(lines, "\n"))
			return nil
		})
	}

	collect("todos", func(ctx context.Context) ([]string, error) {
		return ops.CollectTodos(env.Config.NotesDir, 50)
	})
	collect("logs", func(ctx context.Context) ([]string, error) {
		return ops.TailLogs(env.Config.LogDir(), 50)
	})
	collect("github", func(ctx context.Context) ([]string, error) {
		return ops.CollectGitHubNotifications(ctx, 20)
	})
	collect("cluster", func(ctx context.Context) ([]string, error) {
		return ops.CollectClusterStatus(ctx, env.Config.RouterURL)
	})

	deps := []string{"todos", "logs", "github", "cluster"}
	dag.MustAdd("summarize", deps, func(ctx context.Context, rc *workflow.RunContext) error {
		var b strings.Builder
		for _, name := range deps {
			fmt.Fprintf(&b, "## %s\n%s\n\n", name, artifactString(rc, name))
		}
		summary, err := chat(ctx, env.LLM,
			"You write a terse morning operations briefing. Produce a prioritized task list from the sections below.",
			b.String())
		if err != nil {
			return err
		}
		rc.SetOutput("summary", summary)
		return nil
	})

	dag.MustAdd("write_memory", []string{"summarize"}, func(ctx context.Context, rc *workflow.RunContext) error {
		summary := rc.OutputString("summary")
		item := memory.NewItem(memory.KindDailyOp, summary, []string{"daily_ops"}, nil)
		_, err := env.Memory.Add(ctx, item)
		return err
	})

	return dag, nil
}
