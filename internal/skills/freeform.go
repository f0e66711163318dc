package skills

import (
	"context"

	"github.com/B-A-M-N/NERVA/internal/workflow"
)

// FreeFormSkill answers directly with the text model. The router falls back
// here when nothing else matches.
func FreeFormSkill() *Skill {
	return &Skill{
		Name:        "free_form",
		Description: "Answer conversationally with no tools.",
		Build:       buildFreeFormDag,
	}
}

func buildFreeFormDag(env *Env, utterance string) (*workflow.Dag, error) {
	dag := workflow.NewDag("free_form")

	dag.MustAdd("chat", nil, func(ctx context.Context, rc *workflow.RunContext) error {
		answer, err := chat(ctx, env.LLM,
			"You are NERVA, a concise local assistant. Answer in a few sentences.",
			utterance)
		if err != nil {
			return err
		}
		rc.SetOutput("answer", answer)
		rc.SetOutput("summary", answer)
		return nil
	})

	return dag, nil
}
