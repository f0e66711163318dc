package skills

import (
	"context"
	"fmt"
	"regexp"

	"github.com/B-A-M-N/NERVA/internal/browser"
	"github.com/B-A-M-N/NERVA/internal/nerrors"
	"github.com/B-A-M-N/NERVA/internal/vision"
	"github.com/B-A-M-N/NERVA/internal/workflow"
)

var urlPattern = regexp.MustCompile(`https?://[^\s"']+`)

// GenericBrowserSkill handles open-ended browser tasks through the vision
// agent. This is the only skill with per-action verification on; the agent
// has no playbook to constrain it.
func GenericBrowserSkill() *Skill {
	return &Skill{
		Name:          "generic_browser",
		Description:   "Drive the browser step by step for an open-ended task.",
		Keywords:      []string{"browse", "website", "web page", "go to", "open the site"},
		VerifyActions: true,
		Build:         buildGenericBrowserDag,
	}
}

func buildGenericBrowserDag(env *Env, utterance string) (*workflow.Dag, error) {
	dag := workflow.NewDag("generic_browser")

	dag.MustAdd("run_agent", nil, func(ctx context.Context, rc *workflow.RunContext) error {
		startingURL := urlPattern.FindString(utterance)
		return withBrowser(env, func(driver browser.Driver) error {
			opts := []vision.AgentOption{
				vision.WithVerify(true),
				vision.WithLogger(env.Logger),
			}
			if env.Config != nil {
				opts = append(opts, vision.WithScreenshotDir(env.Config.ScreenshotDir()))
			}
			agent := vision.NewAgent(env.Vision, driver, opts...)
			result, err := agent.ExecuteTask(ctx, utterance, startingURL)
			if err != nil {
				return err
			}
			rc.SetArtifact("agent_result", result)
			if result.Answer != "" {
				rc.SetOutput("answer", result.Answer)
			}
			switch result.Status {
			case vision.StatusOK:
				rc.SetOutput("summary", summaryOr(result.Answer,
					fmt.Sprintf("Completed browser task in %d steps", result.Steps)))
				return nil
			case vision.StatusIncomplete:
				return nerrors.Timeout("skills.generic_browser", result.Reason)
			default:
				return nerrors.New(nerrors.KindUnavailable, "skills.generic_browser", result.Reason)
			}
		})
	})

	return dag, nil
}
